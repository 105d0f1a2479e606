// Пакет config — загрузка и валидация конфигурации Club Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Политики обработки RoleGrant при выходе участника из клуба.
const (
	// LeaveGrantRetain — RoleGrant сохраняется (поведение по умолчанию).
	LeaveGrantRetain = "retain"
	// LeaveGrantRetract — RoleGrant удаляется вместе с членством.
	LeaveGrantRetract = "retract"
)

// Config содержит все параметры конфигурации Club Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8000-8009)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула соединений
	DBMaxConns int

	// --- JWT / Identity Provider ---

	// URL JWKS endpoint внешнего identity provider
	JWTJWKSURL string
	// Ожидаемый issuer JWT (пусто — не проверяется)
	JWTIssuer string
	// Ожидаемая audience JWT (пусто — не проверяется)
	JWTAudience string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration
	// Путь к CA-сертификату IdP (опционально)
	IDPCACertPath string
	// Таймаут проверки токена (включая загрузку ключей JWKS)
	IDPTimeout time.Duration

	// --- Хранилище и согласованность ---

	// Таймаут одного обращения к PostgreSQL
	StorageTimeout time.Duration
	// Количество повторов производной записи (RoleGrant, global role)
	PropagationRetries int
	// Интервал фоновой сверки производных данных
	ReconcileInterval time.Duration
	// Политика RoleGrant при выходе из клуба (retain, retract)
	LeaveGrantPolicy string
	// Email-адреса, получающие роль super_admin при старте
	SuperAdminEmails []string

	// --- Кэш ---

	// Максимальное количество клубов в кэше чтения
	CacheSize int
	// Время жизни записи кэша
	CacheTTL time.Duration

	// --- События ---

	// Брокеры Kafka (через запятую, пусто — публикация отключена)
	KafkaBrokers []string
	// Топик событий жизненного цикла
	KafkaTopic string
	// Таймаут публикации события
	EventsTimeout time.Duration

	// --- topologymetrics ---

	// Группа сервиса в метриках зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CM_PORT — порт HTTP-сервера (по умолчанию 8000)
	cfg.Port, err = getEnvInt("CM_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("CM_PORT: %w", err)
	}
	if cfg.Port < 8000 || cfg.Port > 8009 {
		return nil, fmt.Errorf("CM_PORT: значение %d вне допустимого диапазона 8000-8009", cfg.Port)
	}

	// CM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CM_LOG_LEVEL: %w", err)
	}

	// CM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("CM_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("CM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CM_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("CM_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("CM_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("CM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("CM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("CM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// CM_DB_MAX_CONNS — размер пула (по умолчанию 20)
	cfg.DBMaxConns, err = getEnvInt("CM_DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("CM_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 500 {
		return nil, fmt.Errorf("CM_DB_MAX_CONNS: значение %d вне допустимого диапазона 1-500", cfg.DBMaxConns)
	}

	// --- JWT ---

	// CM_JWT_JWKS_URL — обязательный
	cfg.JWTJWKSURL, err = getEnvRequired("CM_JWT_JWKS_URL")
	if err != nil {
		return nil, err
	}

	cfg.JWTIssuer = getEnvDefault("CM_JWT_ISSUER", "")
	cfg.JWTAudience = getEnvDefault("CM_JWT_AUDIENCE", "")

	cfg.JWTLeeway, err = getEnvDuration("CM_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_JWT_LEEWAY: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvDuration("CM_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CM_JWKS_REFRESH_INTERVAL: %w", err)
	}

	cfg.IDPCACertPath = getEnvDefault("CM_IDP_CA_CERT_PATH", "")

	cfg.IDPTimeout, err = getEnvPositiveDuration("CM_IDP_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	// --- Хранилище и согласованность ---

	cfg.StorageTimeout, err = getEnvPositiveDuration("CM_STORAGE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.PropagationRetries, err = getEnvInt("CM_PROPAGATION_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("CM_PROPAGATION_RETRIES: %w", err)
	}
	if cfg.PropagationRetries < 0 || cfg.PropagationRetries > 10 {
		return nil, fmt.Errorf("CM_PROPAGATION_RETRIES: значение %d вне допустимого диапазона 0-10", cfg.PropagationRetries)
	}

	cfg.ReconcileInterval, err = getEnvPositiveDuration("CM_RECONCILE_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg.LeaveGrantPolicy = strings.ToLower(getEnvDefault("CM_LEAVE_GRANT_POLICY", LeaveGrantRetain))
	if cfg.LeaveGrantPolicy != LeaveGrantRetain && cfg.LeaveGrantPolicy != LeaveGrantRetract {
		return nil, fmt.Errorf("CM_LEAVE_GRANT_POLICY: недопустимое значение %q, допустимые: retain, retract", cfg.LeaveGrantPolicy)
	}

	// CM_SUPER_ADMIN_EMAILS — начальные администраторы (опционально)
	for _, email := range parseCSV(getEnvDefault("CM_SUPER_ADMIN_EMAILS", "")) {
		if _, perr := mail.ParseAddress(email); perr != nil {
			return nil, fmt.Errorf("CM_SUPER_ADMIN_EMAILS: некорректный email %q", email)
		}
		cfg.SuperAdminEmails = append(cfg.SuperAdminEmails, strings.ToLower(email))
	}

	// --- Кэш ---

	cfg.CacheSize, err = getEnvInt("CM_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("CM_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("CM_CACHE_SIZE: значение %d должно быть положительным", cfg.CacheSize)
	}

	cfg.CacheTTL, err = getEnvPositiveDuration("CM_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	// --- События ---

	cfg.KafkaBrokers = parseCSV(getEnvDefault("CM_KAFKA_BROKERS", ""))
	cfg.KafkaTopic = getEnvDefault("CM_KAFKA_TOPIC", "club-lifecycle")

	cfg.EventsTimeout, err = getEnvPositiveDuration("CM_EVENTS_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, err
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("CM_DEPHEALTH_GROUP", "clubhub")

	cfg.DephealthCheckInterval, err = getEnvDuration("CM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("CM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s pool_max_conns=%d",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode, c.DBMaxConns,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — getEnvDuration с проверкой d > 0.
// Нулевой таймаут означал бы ожидание без ограничения.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: длительность должна быть положительной, получено %s", key, d)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
