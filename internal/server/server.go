// Пакет server — HTTP-сервер Club Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/clubhub/club-module/internal/api/handlers"
	"github.com/bigkaa/clubhub/club-module/internal/api/middleware"
	"github.com/bigkaa/clubhub/club-module/internal/api/openapi"
	"github.com/bigkaa/clubhub/club-module/internal/config"
)

// Server — HTTP-сервер Club Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
// jwtAuth и validator могут быть nil (тесты без аутентификации и контракта).
func New(
	cfg *config.Config,
	logger *slog.Logger,
	h *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	authz middleware.Authorizer,
	validator *openapi.Validator,
) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, h, jwtAuth, authz, validator),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты API.
// Порядок: метрики → журнал → JWT → контракт OpenAPI → guard маршрута → обработчик.
func NewRouter(
	logger *slog.Logger,
	h *handlers.APIHandler,
	jwtAuth *middleware.JWTAuth,
	authz middleware.Authorizer,
	validator *openapi.Validator,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую, без API Gateway.
	if jwtAuth != nil {
		router.Use(jwtAuthWithExclusions(jwtAuth, "/health/", "/metrics"))
	}
	if validator != nil {
		router.Use(validator.Middleware())
	}

	superAdmin := middleware.RequireSuperAdmin(authz, logger)
	clubOwner := middleware.RequireClubOwner(authz, "clubId", logger)
	ownerOrAdmin := middleware.RequireClubOwnerOrSuperAdmin(authz, "clubId", logger)

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/users/me", h.GetMe)
		r.Post("/users/me", h.RegisterMe)

		r.Get("/clubs", h.ListClubs)
		r.Post("/clubs", h.CreateClub)
		r.Route("/clubs/{clubId}", func(r chi.Router) {
			r.Get("/", h.GetClub)
			r.With(clubOwner).Patch("/", h.UpdateClub)
			r.With(superAdmin).Patch("/status", h.UpdateClubStatus)

			r.With(ownerOrAdmin).Get("/memberships", h.ListClubMemberships)
			r.Post("/memberships", h.JoinClub)
			r.Delete("/memberships/me", h.LeaveClub)
			r.With(ownerOrAdmin).Patch("/memberships/{membershipId}/status", h.UpdateMembershipStatus)

			r.With(clubOwner).Post("/events", h.CreateEvent)
		})

		r.Get("/events", h.ListEvents)
		r.With(superAdmin).Patch("/events/{eventId}/status", h.UpdateEventStatus)

		r.Post("/manager-applications", h.ApplyForManager)
		r.Get("/manager-applications/me", h.GetOwnManagerApplication)
		r.With(superAdmin).Get("/manager-applications", h.ListManagerApplications)
		r.With(superAdmin).Patch("/manager-applications/{applicationId}/status", h.UpdateManagerApplicationStatus)

		r.With(superAdmin).Get("/admin/drift", h.GetDrift)
		r.With(superAdmin).Post("/admin/reconcile", h.Reconcile)
	})

	return router
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без JWT.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		protected := jwtMiddleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
