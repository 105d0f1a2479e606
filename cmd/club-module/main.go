// Точка входа Club Module — API управления клубами.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт сервисный слой и API handlers, запускает фоновые задачи
// (сверка производных данных, topologymetrics) и HTTP-сервер
// с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/clubhub/club-module/internal/api/handlers"
	"github.com/bigkaa/clubhub/club-module/internal/api/middleware"
	"github.com/bigkaa/clubhub/club-module/internal/api/openapi"
	"github.com/bigkaa/clubhub/club-module/internal/config"
	"github.com/bigkaa/clubhub/club-module/internal/database"
	"github.com/bigkaa/clubhub/club-module/internal/events"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
	"github.com/bigkaa/clubhub/club-module/internal/server"
	"github.com/bigkaa/clubhub/club-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Club Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("CM_DEPHEALTH_GROUP") == "" {
		logger.Warn("CM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт
	// через тот же пул и обнаруживает его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	principalRepo := repository.NewPrincipalRepository(pool)
	grantRepo := repository.NewRoleGrantRepository(pool)
	clubRepo := repository.NewClubRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	membershipRepo := repository.NewMembershipRepository(pool)
	appRepo := repository.NewManagerApplicationRepository(pool)
	driftRepo := repository.NewDriftRepository(pool)

	// 6. Propagator и начальные super_admin
	propagator := service.NewPropagator(grantRepo, principalRepo, driftRepo,
		cfg.PropagationRetries, cfg.StorageTimeout, logger)
	if err := propagator.BootstrapSuperAdmins(ctx, cfg.SuperAdminEmails); err != nil {
		logger.Error("Ошибка назначения super_admin", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Публикация событий жизненного цикла (Kafka опциональна)
	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.EventsTimeout, logger)
		logger.Info("Публикация событий в Kafka включена",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic),
		)
	} else {
		logger.Info("CM_KAFKA_BROKERS не задан, события не публикуются")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Ошибка закрытия publisher", slog.String("error", err.Error()))
		}
	}()

	// 8. Services
	clubCache := service.NewClubCache(cfg.CacheSize, cfg.CacheTTL)
	guards := service.NewGuards(principalRepo, clubRepo, cfg.StorageTimeout, logger)
	principalSvc := service.NewPrincipalService(principalRepo, grantRepo, appRepo, cfg.StorageTimeout, logger)
	clubSvc := service.NewClubService(clubRepo, principalRepo, clubCache, publisher, cfg.StorageTimeout, logger)
	eventSvc := service.NewEventService(eventRepo, clubRepo, principalRepo, publisher, cfg.StorageTimeout, logger)
	membershipSvc := service.NewMembershipService(membershipRepo, clubRepo, propagator, publisher,
		service.LeaveGrantPolicy(cfg.LeaveGrantPolicy), cfg.StorageTimeout, logger)
	appSvc := service.NewManagerApplicationService(appRepo, propagator, publisher, cfg.StorageTimeout, logger)

	// 9. Фоновая сверка производных данных
	reconciler := service.NewReconciler(propagator, cfg.ReconcileInterval, logger)
	reconciler.Start(ctx)

	// 9.1 topologymetrics — мониторинг зависимостей (PostgreSQL + IdP)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"club-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.JWTJWKSURL,
		cfg.IDPCACertPath != "",
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.IDPCACertPath,
		cfg.JWTIssuer,
		cfg.JWTAudience,
		cfg.IDPTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 11. Readiness checkers (PostgreSQL + JWKS)
	pgChecker := database.NewReadinessChecker(pool, cfg.StorageTimeout)
	idpChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.IDPCACertPath, cfg.IDPTimeout)
	if err != nil {
		logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. API handler и проверка запросов по контракту
	apiHandler := handlers.NewAPIHandler(
		handlers.NewHealthHandler(pgChecker, idpChecker),
		principalSvc,
		clubSvc,
		eventSvc,
		membershipSvc,
		appSvc,
		reconciler,
		middleware.IdentityFromContext,
		logger,
	)
	validator, err := openapi.NewValidator(logger)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth, guards, validator)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	reconciler.Stop()

	logger.Info("Club Module остановлен")
}
