// manager_applications.go — заявки на роль club_manager.
//
// Email заявителя всегда берётся из проверенного токена при подаче и из
// сохранённой заявки при одобрении. approved — конечный статус;
// отклонённую заявку можно подать повторно (rejected → pending).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/clubhub/club-module/internal/domain/lifecycle"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/events"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
)

// ApplyInput — изменяемые поля заявки.
type ApplyInput struct {
	Name     string
	Reason   string
	PhotoURL *string
}

// ManagerApplicationList — страница списка заявок.
type ManagerApplicationList struct {
	Items []*model.ManagerApplication
	Total int
}

// ManagerApplicationService — бизнес-логика заявок на роль менеджера.
type ManagerApplicationService struct {
	apps       repository.ManagerApplicationRepository
	propagator *Propagator
	publisher  events.Publisher
	timeout    time.Duration
	logger     *slog.Logger
}

// NewManagerApplicationService создаёт ManagerApplicationService.
func NewManagerApplicationService(
	apps repository.ManagerApplicationRepository,
	propagator *Propagator,
	publisher events.Publisher,
	timeout time.Duration,
	logger *slog.Logger,
) *ManagerApplicationService {
	return &ManagerApplicationService{
		apps:       apps,
		propagator: propagator,
		publisher:  publisher,
		timeout:    storageTimeout(timeout),
		logger:     logger.With(slog.String("component", "manager_applications")),
	}
}

// Apply подаёт заявку вызывающего или повторно подаёт отклонённую.
// Возвращает created = true для новой заявки.
// ErrConflict — заявка уже на рассмотрении или одобрена.
func (s *ManagerApplicationService) Apply(ctx context.Context, id *model.Identity, in ApplyInput) (app *model.ManagerApplication, created bool, err error) {
	if id == nil || id.Email == "" {
		return nil, false, ErrUnauthenticated
	}

	sctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	existing, err := s.apps.GetByEmail(sctx, id.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("получение заявки: %w", err)
	}

	if existing == nil {
		app = &model.ManagerApplication{
			ID:       uuid.New().String(),
			Email:    id.Email,
			Name:     in.Name,
			Reason:   in.Reason,
			PhotoURL: in.PhotoURL,
			Status:   lifecycle.StatusPending,
		}
		if err := s.apps.Create(sctx, app); err != nil {
			return nil, false, mapRepoErr(err, "заявка")
		}
		s.logger.Info("Заявка на роль менеджера подана",
			slog.String("application_id", app.ID),
			slog.String("email", app.Email),
		)
		return app, true, nil
	}

	switch existing.Status {
	case lifecycle.StatusApproved:
		return nil, false, fmt.Errorf("%w: заявка уже одобрена", ErrConflict)
	case lifecycle.StatusPending:
		return nil, false, fmt.Errorf("%w: заявка уже на рассмотрении", ErrConflict)
	}

	tr, err := lifecycle.CheckReapply(existing.Status)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrConflict, err)
	}

	app = &model.ManagerApplication{
		ID:       existing.ID,
		Name:     in.Name,
		Reason:   in.Reason,
		PhotoURL: in.PhotoURL,
	}
	if err := s.apps.Reapply(sctx, app); err != nil {
		return nil, false, mapRepoErr(err, "заявка не найдена")
	}
	recordTransition(lifecycle.EntityManagerApplication, tr.To, nil)

	res := &TransitionResult{Transition: tr, Actor: id.Email, Application: app}
	s.logger.Info("Заявка на роль менеджера подана повторно",
		slog.String("application_id", app.ID),
		slog.String("email", app.Email),
	)
	publishTransition(ctx, s.publisher, s.logger, app.ID, "", res)
	return app, false, nil
}

// GetOwn возвращает заявку вызывающего.
func (s *ManagerApplicationService) GetOwn(ctx context.Context, id *model.Identity) (*model.ManagerApplication, error) {
	if id == nil || id.Email == "" {
		return nil, ErrUnauthenticated
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	app, err := s.apps.GetByEmail(ctx, id.Email)
	if err != nil {
		return nil, mapRepoErr(err, "заявка не найдена")
	}
	return app, nil
}

// List возвращает заявки (для super_admin).
func (s *ManagerApplicationService) List(ctx context.Context, status *string, limit, offset int) (*ManagerApplicationList, error) {
	if status != nil {
		if _, err := parseStatusFilter(lifecycle.EntityManagerApplication, *status); err != nil {
			return nil, err
		}
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	items, err := s.apps.List(ctx, status, limit, offset)
	if err != nil {
		return nil, mapRepoErr(err, "")
	}
	total, err := s.apps.Count(ctx, status)
	if err != nil {
		return nil, mapRepoErr(err, "")
	}
	return &ManagerApplicationList{Items: items, Total: total}, nil
}

// Transition рассматривает заявку (решение super_admin).
// При одобрении повышает роль пользователя с email из сохранённой заявки.
func (s *ManagerApplicationService) Transition(ctx context.Context, rawApplicationID, requested string, actor *model.Identity) (res *TransitionResult, err error) {
	appID, err := parseID(rawApplicationID, "заявки")
	if err != nil {
		return nil, err
	}
	to := requested
	defer func() {
		if IsPropagationWarning(err) {
			recordTransition(lifecycle.EntityManagerApplication, to, nil)
			return
		}
		recordTransition(lifecycle.EntityManagerApplication, to, err)
	}()

	sctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.apps.GetByID(sctx, appID)
	if err != nil {
		return nil, mapRepoErr(err, "заявка не найдена")
	}

	tr, err := lifecycle.Check(lifecycle.EntityManagerApplication, current.Status, to)
	if err != nil {
		return nil, mapTransitionErr(err)
	}

	updated, err := s.apps.UpdateStatus(sctx, appID, current.Status, to)
	if err != nil {
		return nil, mapRepoErr(err, "заявка не найдена")
	}

	res = &TransitionResult{Transition: tr, Actor: actorEmail(actor), Application: updated}
	s.logger.Info("Статус заявки изменён",
		slog.String("application_id", appID),
		slog.String("email", updated.Email),
		slog.String("from", tr.From),
		slog.String("to", tr.To),
		slog.String("actor", res.Actor),
	)

	var perr error
	res.Propagation, perr = s.propagator.Propagate(ctx, res)
	publishTransition(ctx, s.publisher, s.logger, appID, "", res)
	if perr != nil {
		return res, perr
	}
	return res, nil
}
