// auth.go — проверка учётных данных (JWT) Club Module.
// Проверяет подпись Bearer-токена через JWKS внешнего Identity Provider,
// извлекает email и помещает проверенную личность в контекст запроса.
// Кэша учётных данных нет: каждый запрос проверяется заново.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/clubhub/club-module/internal/api/errors"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/service"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyIdentity — проверенная личность в контексте запроса.
	ContextKeyIdentity contextKey = "identity"
)

// defaultIDPTimeout — таймаут проверки токена, если не задан.
const defaultIDPTimeout = 5 * time.Second

// tokenClaims — claims JWT, используемые модулем.
type tokenClaims struct {
	jwt.RegisteredClaims
	// Email — электронная почта, единственный признак для авторизации.
	Email string `json:"email"`
	// PreferredUsername — имя пользователя (только для журналов).
	PreferredUsername string `json:"preferred_username"`
}

// JWTAuth — проверка JWT через JWKS Identity Provider.
type JWTAuth struct {
	jwks       keyfunc.Keyfunc
	logger     *slog.Logger
	issuer     string
	audience   string
	leeway     time.Duration
	idpTimeout time.Duration
}

// NewJWTAuth создаёт проверку JWT с JWKS из Identity Provider.
// jwksURL — URL к JWKS endpoint.
// caCertPath — опциональный путь к CA-сертификату для TLS (CM_IDP_CA_CERT_PATH).
// issuer, audience — ожидаемые iss и aud (пустое значение — не проверяется).
// idpTimeout — таймаут получения ключей и проверки токена (CM_IDP_TIMEOUT).
// refreshInterval — интервал обновления JWKS-ключей (CM_JWKS_REFRESH_INTERVAL).
// leeway — допустимое отклонение времени при проверке JWT (CM_JWT_LEEWAY).
func NewJWTAuth(
	jwksURL string,
	caCertPath string,
	issuer string,
	audience string,
	idpTimeout time.Duration,
	refreshInterval time.Duration,
	leeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	httpClient := &http.Client{Timeout: idpTimeout}
	if caCertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(caCertPath, idpTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
		}
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	// NoErrorReturnFirstHTTPReq — стартуем даже если IdP ещё недоступен.
	// Пока ключи не получены, запросы отклоняются с IDP_UNAVAILABLE.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		HTTPTimeout:               idpTimeout,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	a := NewJWTAuthWithKeyfunc(k, issuer, audience, logger)
	a.leeway = leeway
	if idpTimeout > 0 {
		a.idpTimeout = idpTimeout
	}
	return a, nil
}

// httpClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
// timeout — таймаут HTTP-запросов.
func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}

// NewJWTAuthWithKeyfunc создаёт проверку JWT с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, issuer, audience string, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:       kf,
		logger:     logger.With(slog.String("component", "jwt_auth")),
		issuer:     issuer,
		audience:   audience,
		idpTimeout: defaultIDPTimeout,
	}
}

// Authenticate проверяет значение заголовка Authorization и возвращает
// проверенную личность.
//
// Ошибки:
//   - service.ErrUnauthenticated — нет заголовка, схема не Bearer, пустой токен
//   - service.ErrForbidden — подпись, issuer, срок действия или алгоритм не прошли проверку, нет email
//   - service.ErrIDPUnavailable — ключи не получены или истёк таймаут проверки
func (j *JWTAuth) Authenticate(ctx context.Context, header string) (*model.Identity, error) {
	if header == "" {
		return nil, fmt.Errorf("%w: отсутствует заголовок Authorization", service.ErrUnauthenticated)
	}

	scheme, tokenString, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, fmt.Errorf("%w: неверный формат Authorization, ожидается Bearer <token>", service.ErrUnauthenticated)
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, fmt.Errorf("%w: пустой Bearer token", service.ErrUnauthenticated)
	}

	ctx, cancel := context.WithTimeout(ctx, j.idpTimeout)
	defer cancel()

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, j.jwks.KeyfuncCtx(ctx), j.parserOptions()...)
	if err != nil {
		if j.idpUnavailable(ctx, err) {
			j.logger.Warn("Проверка JWT невозможна: Identity Provider недоступен",
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("%w: ключи проверки подписи недоступны", service.ErrIDPUnavailable)
		}
		j.logger.Debug("JWT валидация не пройдена", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: невалидный или просроченный токен", service.ErrForbidden)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: невалидный токен", service.ErrForbidden)
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: в токене отсутствует email", service.ErrForbidden)
	}

	return &model.Identity{Email: email, Subject: claims.Subject}, nil
}

// parserOptions — параметры проверки токена.
func (j *JWTAuth) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.leeway),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	if j.audience != "" {
		opts = append(opts, jwt.WithAudience(j.audience))
	}
	return opts
}

// idpUnavailable определяет, вызвана ли ошибка недоступностью ключей,
// а не самим токеном: истёк таймаут или хранилище JWKS пусто.
func (j *JWTAuth) idpUnavailable(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return true
	}
	if !errors.Is(err, keyfunc.ErrKeyfunc) {
		return false
	}
	keys, kerr := j.jwks.Storage().KeyReadAll(ctx)
	return kerr != nil || len(keys) == 0
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Проверенная личность помещается в контекст запроса.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := j.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				apierrors.WriteServiceError(w, err, j.logger)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// --- Context helpers ---

// WithIdentity возвращает контекст с проверенной личностью.
func WithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

// IdentityFromContext извлекает проверенную личность из контекста запроса.
// Возвращает nil, если личность не найдена.
func IdentityFromContext(ctx context.Context) *model.Identity {
	id, _ := ctx.Value(ContextKeyIdentity).(*model.Identity)
	return id
}

// --- ReadinessChecker для Identity Provider ---

// JWKSReadinessChecker — проверка доступности Identity Provider через JWKS.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности JWKS endpoint.
// timeout — таймаут проверки готовности (CM_IDP_TIMEOUT).
func NewJWKSReadinessChecker(jwksURL, caCertPath string, timeout time.Duration) (*JWKSReadinessChecker, error) {
	client := &http.Client{Timeout: timeout}
	if caCertPath != "" {
		var err error
		client, err = httpClientWithCA(caCertPath, timeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
	}

	return &JWKSReadinessChecker{
		jwksURL: jwksURL,
		client:  client,
	}, nil
}

const statusFail = "fail"

// CheckReady проверяет доступность JWKS endpoint.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}

	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
