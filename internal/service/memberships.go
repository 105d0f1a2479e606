// memberships.go — членство в клубах: заявка, рассмотрение, выход.
//
// Переход pending → active выдаёт RoleGrant через Propagator.
// Выход из клуба удаляет активное членство; судьба RoleGrant
// определяется политикой LeaveGrantPolicy.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/clubhub/club-module/internal/domain/lifecycle"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/events"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
)

// LeaveGrantPolicy — политика RoleGrant при выходе из клуба.
type LeaveGrantPolicy string

const (
	// LeaveGrantRetain — RoleGrant сохраняется; Reconciler сообщает о нём как о retained_grant.
	LeaveGrantRetain LeaveGrantPolicy = "retain"
	// LeaveGrantRetract — RoleGrant удаляется после удаления членства.
	LeaveGrantRetract LeaveGrantPolicy = "retract"
)

// LeaveResult — результат выхода из клуба.
type LeaveResult struct {
	Membership *model.Membership
	// GrantRetained — RoleGrant остался после выхода
	GrantRetained bool
	// Warning — RoleGrant не удалён при политике retract
	Warning string
}

// MembershipService — бизнес-логика членства.
type MembershipService struct {
	memberships repository.MembershipRepository
	clubs       repository.ClubRepository
	propagator  *Propagator
	publisher   events.Publisher
	leavePolicy LeaveGrantPolicy
	timeout     time.Duration
	logger      *slog.Logger
}

// NewMembershipService создаёт MembershipService.
func NewMembershipService(
	memberships repository.MembershipRepository,
	clubs repository.ClubRepository,
	propagator *Propagator,
	publisher events.Publisher,
	leavePolicy LeaveGrantPolicy,
	timeout time.Duration,
	logger *slog.Logger,
) *MembershipService {
	if leavePolicy != LeaveGrantRetract {
		leavePolicy = LeaveGrantRetain
	}
	return &MembershipService{
		memberships: memberships,
		clubs:       clubs,
		propagator:  propagator,
		publisher:   publisher,
		leavePolicy: leavePolicy,
		timeout:     storageTimeout(timeout),
		logger:      logger.With(slog.String("component", "memberships")),
	}
}

// Join создаёт заявку на членство вызывающего в одобренном клубе.
func (s *MembershipService) Join(ctx context.Context, id *model.Identity, rawClubID string) (*model.Membership, error) {
	if id == nil || id.Email == "" {
		return nil, ErrUnauthenticated
	}
	clubID, err := parseID(rawClubID, "клуба")
	if err != nil {
		return nil, err
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

	m := &model.Membership{
		ID:        uuid.New().String(),
		ClubID:    clubID,
		UserEmail: id.Email,
		Status:    lifecycle.StatusPending,
	}
	if err := s.memberships.Create(ctx, m); err != nil {
		return nil, mapRepoErr(err, "клуб не найден")
	}

	s.logger.Info("Заявка на членство создана",
		slog.String("membership_id", m.ID),
		slog.String("club_id", clubID),
		slog.String("user_email", m.UserEmail),
	)
	return m, nil
}

// ListByClub возвращает членства клуба. Проверку прав выполняет вызывающий код.
func (s *MembershipService) ListByClub(ctx context.Context, rawClubID string, status *string, limit, offset int) ([]*model.Membership, error) {
	clubID, err := parseID(rawClubID, "клуба")
	if err != nil {
		return nil, err
	}
	if status != nil {
		if _, err := parseStatusFilter(lifecycle.EntityMembership, *status); err != nil {
			return nil, err
		}
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	items, err := s.memberships.ListByClub(ctx, clubID, status, limit, offset)
	if err != nil {
		return nil, mapRepoErr(err, "")
	}
	return items, nil
}

// Transition рассматривает заявку на членство в клубе rawClubID.
// Членство другого клуба считается ненайденным. При переходе в active
// выдаётся RoleGrant; ошибка выдачи возвращается как *PropagationError
// вместе с зафиксированным результатом.
func (s *MembershipService) Transition(ctx context.Context, rawClubID, rawMembershipID, requested string, actor *model.Identity) (res *TransitionResult, err error) {
	clubID, err := parseID(rawClubID, "клуба")
	if err != nil {
		return nil, err
	}
	membershipID, err := parseID(rawMembershipID, "членства")
	if err != nil {
		return nil, err
	}
	to := requested
	defer func() {
		// Основной переход зафиксирован и при незавершённом распространении
		if IsPropagationWarning(err) {
			recordTransition(lifecycle.EntityMembership, to, nil)
			return
		}
		recordTransition(lifecycle.EntityMembership, to, err)
	}()

	sctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.memberships.GetByID(sctx, membershipID)
	if err != nil {
		return nil, mapRepoErr(err, "членство не найдено")
	}
	if current.ClubID != clubID {
		return nil, fmt.Errorf("%w: членство не найдено", ErrNotFound)
	}

	tr, err := lifecycle.Check(lifecycle.EntityMembership, current.Status, to)
	if err != nil {
		return nil, mapTransitionErr(err)
	}

	updated, err := s.memberships.UpdateStatus(sctx, membershipID, current.Status, to)
	if err != nil {
		return nil, mapRepoErr(err, "членство не найдено")
	}
	res = &TransitionResult{Transition: tr, Actor: actorEmail(actor), Membership: updated}
	s.logger.Info("Статус членства изменён",
		slog.String("membership_id", membershipID),
		slog.String("club_id", clubID),
		slog.String("user_email", updated.UserEmail),
		slog.String("from", tr.From),
		slog.String("to", tr.To),
		slog.String("actor", res.Actor),
	)

	var perr error
	res.Propagation, perr = s.propagator.Propagate(ctx, res)
	publishTransition(ctx, s.publisher, s.logger, membershipID, clubID, res)
	if perr != nil {
		return res, perr
	}
	return res, nil
}

// Leave удаляет активное членство вызывающего в клубе.
// При политике retain RoleGrant сохраняется.
func (s *MembershipService) Leave(ctx context.Context, id *model.Identity, rawClubID string) (*LeaveResult, error) {
	if id == nil || id.Email == "" {
		return nil, ErrUnauthenticated
	}
	clubID, err := parseID(rawClubID, "клуба")
	if err != nil {
		return nil, err
	}

	sctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	m, err := s.memberships.DeleteActive(sctx, clubID, id.Email)
	if err != nil {
		return nil, mapRepoErr(err, "активное членство не найдено")
	}

	result := &LeaveResult{Membership: m, GrantRetained: true}
	if s.leavePolicy == LeaveGrantRetract {
		if err := s.propagator.RetractMemberGrant(ctx, clubID, id.Email); err != nil {
			result.Warning = err.Error()
			s.logger.Error("RoleGrant не удалён при выходе из клуба",
				slog.String("club_id", clubID),
				slog.String("user_email", id.Email),
				slog.String("error", err.Error()),
			)
			return result, err
		}
		result.GrantRetained = false
	}

	s.logger.Info("Пользователь вышел из клуба",
		slog.String("club_id", clubID),
		slog.String("user_email", id.Email),
		slog.String("leave_policy", string(s.leavePolicy)),
		slog.Bool("grant_retained", result.GrantRetained),
	)
	return result, nil
}
