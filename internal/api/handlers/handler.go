// handler.go — основной обработчик API Club Module.
// Объединяет health и доменные обработчики и делегирует запросы в
// сервисный слой. Права проверяются middleware до вызова обработчика.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/clubhub/club-module/internal/api/errors"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
	"github.com/bigkaa/clubhub/club-module/internal/service"
)

// Ограничение размера тела запроса.
const maxBodyBytes = 1 << 20

// --- Зависимости (реализуются пакетом service) ---

// PrincipalService — регистрация и профиль пользователя.
type PrincipalService interface {
	Register(ctx context.Context, id *model.Identity, in service.RegisterInput) (*model.Principal, error)
	Me(ctx context.Context, id *model.Identity) (*service.Profile, error)
}

// ClubService — клубы.
type ClubService interface {
	Create(ctx context.Context, id *model.Identity, in service.CreateClubInput) (*model.Club, error)
	Get(ctx context.Context, id *model.Identity, rawClubID string) (*model.Club, error)
	List(ctx context.Context, id *model.Identity, f repository.ClubFilter) (*service.ClubList, error)
	Update(ctx context.Context, rawClubID string, patch model.ClubPatch) (*model.Club, error)
	Transition(ctx context.Context, rawClubID, requested string, actor *model.Identity) (*service.TransitionResult, error)
}

// EventService — мероприятия.
type EventService interface {
	Create(ctx context.Context, rawClubID string, in service.CreateEventInput) (*model.Event, error)
	List(ctx context.Context, id *model.Identity, f repository.EventFilter) (*service.EventList, error)
	Transition(ctx context.Context, rawEventID, requested string, actor *model.Identity) (*service.TransitionResult, error)
}

// MembershipService — членство в клубах.
type MembershipService interface {
	Join(ctx context.Context, id *model.Identity, rawClubID string) (*model.Membership, error)
	ListByClub(ctx context.Context, rawClubID string, status *string, limit, offset int) ([]*model.Membership, error)
	Transition(ctx context.Context, rawClubID, rawMembershipID, requested string, actor *model.Identity) (*service.TransitionResult, error)
	Leave(ctx context.Context, id *model.Identity, rawClubID string) (*service.LeaveResult, error)
}

// ManagerApplicationService — заявки на роль club_manager.
type ManagerApplicationService interface {
	Apply(ctx context.Context, id *model.Identity, in service.ApplyInput) (*model.ManagerApplication, bool, error)
	GetOwn(ctx context.Context, id *model.Identity) (*model.ManagerApplication, error)
	List(ctx context.Context, status *string, limit, offset int) (*service.ManagerApplicationList, error)
	Transition(ctx context.Context, rawApplicationID, requested string, actor *model.Identity) (*service.TransitionResult, error)
}

// Reconciler — поиск и исправление расхождений производных данных.
type Reconciler interface {
	Drift(ctx context.Context) (*model.DriftReport, error)
	ReconcileNow(ctx context.Context) (*model.ReconcileResult, error)
}

// IdentityFunc извлекает проверенную личность из контекста запроса.
type IdentityFunc func(ctx context.Context) *model.Identity

// APIHandler — основной обработчик API Club Module.
type APIHandler struct {
	health      *HealthHandler
	principals  PrincipalService
	clubs       ClubService
	events      EventService
	memberships MembershipService
	apps        ManagerApplicationService
	reconciler  Reconciler
	identity    IdentityFunc
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	principals PrincipalService,
	clubs ClubService,
	events EventService,
	memberships MembershipService,
	apps ManagerApplicationService,
	reconciler Reconciler,
	identity IdentityFunc,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		principals:  principals,
		clubs:       clubs,
		events:      events,
		memberships: memberships,
		apps:        apps,
		reconciler:  reconciler,
		identity:    identity,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError отображает ошибку сервиса в HTTP-ответ.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	apierrors.WriteServiceError(w, err, h.logger)
}

// writeTransition отвечает результатом перехода статуса.
// Незавершённое распространение не отменяет зафиксированный переход:
// ответ 200 с propagation.status = pending и заголовком Warning.
func (h *APIHandler) writeTransition(w http.ResponseWriter, res *service.TransitionResult, err error) {
	if err != nil {
		if res == nil || !service.IsPropagationWarning(err) {
			h.writeError(w, err)
			return
		}
		h.logger.Warn("Переход зафиксирован, распространение отложено",
			slog.String("entity", string(res.Transition.Entity)),
			slog.String("to", res.Transition.To),
			slog.String("error", err.Error()),
		)
		if res.Propagation == nil {
			res.Propagation = &service.Propagation{Status: service.PropagationPending, Warning: err.Error()}
		}
		w.Header().Set("Warning", `199 - "propagation pending"`)
	}
	writeJSON(w, http.StatusOK, toTransition(res))
}

// decodeJSON читает тело запроса в dst. Поля, не описанные в dst,
// отклоняются: идентичность и статус нельзя передать через тело.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("некорректное тело запроса: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("некорректное тело запроса: лишние данные после JSON")
	}
	return nil
}

// pathUUID разбирает UUID из параметра пути name.
func pathUUID(r *http.Request, name string) (types.UUID, error) {
	var id types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return id, fmt.Errorf("некорректный параметр %s: %w", name, err)
	}
	return id, nil
}

// queryParam разбирает необязательный параметр строки запроса в dst (указатель на указатель).
func queryParam(q url.Values, name string, dst any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, q, dst); err != nil {
		return fmt.Errorf("некорректный параметр %s: %w", name, err)
	}
	return nil
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := repository.DefaultLimit
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > repository.MaxLimit {
			l = repository.MaxLimit
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}

// readPagination читает limit и offset из строки запроса.
func readPagination(q url.Values) (int, int, error) {
	var limit, offset *int
	if err := queryParam(q, "limit", &limit); err != nil {
		return 0, 0, err
	}
	if err := queryParam(q, "offset", &offset); err != nil {
		return 0, 0, err
	}
	l, o := paginationDefaults(limit, offset)
	return l, o, nil
}
