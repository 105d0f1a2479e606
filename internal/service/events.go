// events.go — мероприятия клубов.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/clubhub/club-module/internal/domain/lifecycle"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/events"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
)

// CreateEventInput — поля нового мероприятия.
type CreateEventInput struct {
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	Fee         float64
}

// EventList — страница списка мероприятий.
type EventList struct {
	Items []*model.Event
	Total int
}

// EventService — бизнес-логика мероприятий.
type EventService struct {
	events     repository.EventRepository
	clubs      repository.ClubRepository
	principals repository.PrincipalRepository
	publisher  events.Publisher
	timeout    time.Duration
	logger     *slog.Logger
}

// NewEventService создаёт EventService.
func NewEventService(
	eventsRepo repository.EventRepository,
	clubs repository.ClubRepository,
	principals repository.PrincipalRepository,
	publisher events.Publisher,
	timeout time.Duration,
	logger *slog.Logger,
) *EventService {
	return &EventService{
		events:     eventsRepo,
		clubs:      clubs,
		principals: principals,
		publisher:  publisher,
		timeout:    storageTimeout(timeout),
		logger:     logger.With(slog.String("component", "events")),
	}
}

// Create создаёт мероприятие одобренного клуба в статусе pending.
// Проверку ClubOwnerGuard выполняет вызывающий код.
func (s *EventService) Create(ctx context.Context, rawClubID string, in CreateEventInput) (*model.Event, error) {
	clubID, err := parseID(rawClubID, "клуба")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, validationf("название мероприятия обязательно")
	}
	if in.StartsAt.IsZero() {
		return nil, validationf("время начала мероприятия обязательно")
	}
	if in.Fee < 0 {
		return nil, validationf("стоимость участия не может быть отрицательной")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	club, err := s.clubs.GetByID(ctx, clubID)
	if err != nil {
		return nil, mapRepoErr(err, "клуб не найден")
	}
	if club.Status != lifecycle.StatusApproved {
		return nil, fmt.Errorf("%w: клуб не одобрен", ErrConflict)
	}

	e := &model.Event{
		ID:          uuid.New().String(),
		ClubID:      clubID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Location:    in.Location,
		StartsAt:    in.StartsAt.UTC(),
		Fee:         in.Fee,
		Status:      lifecycle.StatusPending,
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, mapRepoErr(err, "клуб не найден")
	}

	s.logger.Info("Мероприятие создано",
		slog.String("event_id", e.ID),
		slog.String("club_id", clubID),
	)
	return e, nil
}

// List возвращает мероприятия по фильтру. Вызывающий, не являющийся
// super_admin, видит только одобренные мероприятия, кроме мероприятий
// своего клуба.
func (s *EventService) List(ctx context.Context, id *model.Identity, f repository.EventFilter) (*EventList, error) {
	if err := f.Validate(); err != nil {
		return nil, mapRepoErr(err, "")
	}
	if f.ClubID != nil {
		clubID, err := parseID(*f.ClubID, "клуба")
		if err != nil {
			return nil, err
		}
		f.ClubID = &clubID
	}

	admin, err := lookupSuperAdmin(ctx, s.principals, s.timeout, id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if !admin && !s.ownsClub(ctx, id, f.ClubID) {
		approved := lifecycle.StatusApproved
		f.Status = &approved
	}

	items, err := s.events.List(ctx, f)
	if err != nil {
		return nil, mapRepoErr(err, "")
	}
	total, err := s.events.Count(ctx, f)
	if err != nil {
		return nil, mapRepoErr(err, "")
	}
	return &EventList{Items: items, Total: total}, nil
}

// ownsClub проверяет, что вызывающий — владелец клуба clubID.
func (s *EventService) ownsClub(ctx context.Context, id *model.Identity, clubID *string) bool {
	if id == nil || clubID == nil {
		return false
	}
	club, err := s.clubs.GetByID(ctx, *clubID)
	if err != nil {
		return false
	}
	return club.OwnerEmail == id.Email
}

// Transition меняет статус мероприятия (решение super_admin).
func (s *EventService) Transition(ctx context.Context, rawEventID, requested string, actor *model.Identity) (res *TransitionResult, err error) {
	eventID, err := parseID(rawEventID, "мероприятия")
	if err != nil {
		return nil, err
	}
	to := requested
	defer func() { recordTransition(lifecycle.EntityEvent, to, err) }()

	sctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.events.GetByID(sctx, eventID)
	if err != nil {
		return nil, mapRepoErr(err, "мероприятие не найдено")
	}

	tr, err := lifecycle.Check(lifecycle.EntityEvent, current.Status, to)
	if err != nil {
		return nil, mapTransitionErr(err)
	}

	updated, err := s.events.UpdateStatus(sctx, eventID, current.Status, to)
	if err != nil {
		return nil, mapRepoErr(err, "мероприятие не найдено")
	}

	res = &TransitionResult{Transition: tr, Actor: actorEmail(actor), Event: updated}
	s.logger.Info("Статус мероприятия изменён",
		slog.String("event_id", eventID),
		slog.String("from", tr.From),
		slog.String("to", tr.To),
		slog.String("actor", res.Actor),
	)
	publishTransition(ctx, s.publisher, s.logger, eventID, updated.ClubID, res)
	return res, nil
}
