// propagator.go — распространение производных записей после перехода статуса.
//
// Двухшаговая сага без транзакции:
//  1. Условная запись основного статуса (выполняет сервис сущности)
//  2. Идемпотентная производная запись (RoleGrant или глобальная роль)
//
// Ошибка шага 2 не откатывает шаг 1: вызывающий получает предупреждение
// (*PropagationError), расхождение находит и исправляет Reconciler.
// Все производные записи — upsert по естественному ключу, поэтому
// повтор безопасен.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/clubhub/club-module/internal/domain/lifecycle"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/domain/rbac"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
)

// Статусы распространения в ответе API.
const (
	PropagationApplied = "applied"
	PropagationPending = "pending"
)

// TransitionResult — результат зафиксированного перехода.
// Сущность заполнена значениями, прочитанными из хранилища после записи.
type TransitionResult struct {
	Transition lifecycle.Transition
	// Actor — email инициатора перехода
	Actor string

	Club        *model.Club
	Event       *model.Event
	Membership  *model.Membership
	Application *model.ManagerApplication

	// Propagation — итог распространения (nil, если побочных эффектов нет)
	Propagation *Propagation
}

// Propagation — итог выполнения побочных эффектов перехода.
type Propagation struct {
	// Status — applied или pending
	Status string
	// RoleGrant — выданная роль в клубе (для membership → active)
	RoleGrant *model.RoleGrant
	// GlobalRole — итоговая глобальная роль (для одобрения заявки)
	GlobalRole string
	// Warning — описание незавершённого распространения
	Warning string
}

// Propagator — единственный писатель производных данных:
// role_grants и principals.global_role.
type Propagator struct {
	grants     repository.RoleGrantRepository
	principals repository.PrincipalRepository
	drift      repository.DriftRepository
	retries    int
	baseDelay  time.Duration
	maxDelay   time.Duration
	timeout    time.Duration
	logger     *slog.Logger
}

// NewPropagator создаёт Propagator.
// retries — число повторов после первой неудачной попытки.
func NewPropagator(
	grants repository.RoleGrantRepository,
	principals repository.PrincipalRepository,
	drift repository.DriftRepository,
	retries int,
	timeout time.Duration,
	logger *slog.Logger,
) *Propagator {
	if retries < 0 {
		retries = 0
	}
	return &Propagator{
		grants:     grants,
		principals: principals,
		drift:      drift,
		retries:    retries,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
		timeout:    storageTimeout(timeout),
		logger:     logger.With(slog.String("component", "propagator")),
	}
}

// SetBackoff задаёт начальную и максимальную паузу между повторами.
func (p *Propagator) SetBackoff(base, max time.Duration) {
	p.baseDelay = base
	p.maxDelay = max
}

// Propagate выполняет побочные эффекты перехода.
// Возвращает nil, nil, если переход их не требует.
// При окончательной неудаче возвращает Propagation{Status: pending}
// и *PropagationError.
func (p *Propagator) Propagate(ctx context.Context, r *TransitionResult) (*Propagation, error) {
	if r == nil || !r.Transition.HasSideEffects() {
		return nil, nil
	}

	// Основная запись уже зафиксирована: отключение клиента
	// не должно прерывать производную запись.
	ctx = context.WithoutCancel(ctx)

	out := &Propagation{Status: PropagationApplied}
	for _, effect := range r.Transition.SideEffects {
		var err error
		switch effect {
		case lifecycle.SideEffectUpsertRoleGrant:
			out.RoleGrant, err = p.UpsertMemberGrant(ctx, r.Membership)
		case lifecycle.SideEffectPromoteGlobalRole:
			out.GlobalRole, err = p.PromoteApplicant(ctx, r.Application)
		default:
			err = &PropagationError{Effect: string(effect), Err: errors.New("неизвестный побочный эффект")}
		}

		if err != nil {
			out.Status = PropagationPending
			out.Warning = err.Error()
			p.logger.Error("Распространение не выполнено, требуется сверка",
				slog.String("entity", string(r.Transition.Entity)),
				slog.String("from", r.Transition.From),
				slog.String("to", r.Transition.To),
				slog.String("effect", string(effect)),
				slog.String("actor", r.Actor),
				slog.String("error", err.Error()),
			)
			return out, err
		}
	}
	return out, nil
}

// UpsertMemberGrant создаёт или обновляет RoleGrant участника по
// сохранённой записи членства. Повторный вызов не меняет assigned_at.
func (p *Propagator) UpsertMemberGrant(ctx context.Context, m *model.Membership) (*model.RoleGrant, error) {
	if m == nil || m.Status != lifecycle.StatusActive {
		return nil, &PropagationError{
			Effect: string(lifecycle.SideEffectUpsertRoleGrant),
			Err:    errors.New("членство отсутствует или не активно"),
		}
	}

	key := m.ClubID + "/" + m.UserEmail
	var grant *model.RoleGrant
	err := p.retry(ctx, string(lifecycle.SideEffectUpsertRoleGrant), key, func(ctx context.Context) error {
		g := &model.RoleGrant{
			ClubID:      m.ClubID,
			UserEmail:   m.UserEmail,
			Role:        model.ClubRoleMember,
			Permissions: rbac.MemberPermissions(),
		}
		if err := p.grants.Upsert(ctx, g); err != nil {
			return err
		}
		grant = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("RoleGrant выдан",
		slog.String("club_id", grant.ClubID),
		slog.String("user_email", grant.UserEmail),
		slog.String("role", grant.Role),
	)
	return grant, nil
}

// PromoteApplicant повышает глобальную роль заявителя до club_manager.
// Email берётся из сохранённой заявки и никогда из запроса.
func (p *Propagator) PromoteApplicant(ctx context.Context, a *model.ManagerApplication) (string, error) {
	if a == nil || a.Status != lifecycle.StatusApproved {
		return "", &PropagationError{
			Effect: string(lifecycle.SideEffectPromoteGlobalRole),
			Err:    errors.New("заявка отсутствует или не одобрена"),
		}
	}

	var role string
	err := p.retry(ctx, string(lifecycle.SideEffectPromoteGlobalRole), a.Email, func(ctx context.Context) error {
		r, err := p.principals.PromoteGlobalRole(ctx, a.Email, model.GlobalRoleClubManager)
		if err != nil {
			return err
		}
		role = r
		return nil
	})
	if err != nil {
		return "", err
	}

	p.logger.Info("Глобальная роль повышена",
		slog.String("email", a.Email),
		slog.String("global_role", role),
	)
	return role, nil
}

// RetractMemberGrant удаляет RoleGrant при выходе из клуба (политика retract).
// Отсутствие записи не считается ошибкой.
func (p *Propagator) RetractMemberGrant(ctx context.Context, clubID, userEmail string) error {
	ctx = context.WithoutCancel(ctx)
	return p.retry(ctx, "retract_role_grant", clubID+"/"+userEmail, func(ctx context.Context) error {
		err := p.grants.Delete(ctx, clubID, userEmail)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	})
}

// Drift возвращает расхождения между основными и производными данными.
func (p *Propagator) Drift(ctx context.Context) (*model.DriftReport, error) {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	report := &model.DriftReport{CheckedAt: time.Now().UTC()}
	var err error

	if report.MissingRoleGrants, err = p.drift.MissingRoleGrants(ctx, repository.MaxLimit); err != nil {
		return nil, fmt.Errorf("поиск членств без RoleGrant: %w", err)
	}
	if report.MissingPromotions, err = p.drift.MissingPromotions(ctx, repository.MaxLimit); err != nil {
		return nil, fmt.Errorf("поиск непродвинутых заявок: %w", err)
	}
	if report.RetainedGrants, err = p.drift.RetainedGrants(ctx, repository.MaxLimit); err != nil {
		return nil, fmt.Errorf("поиск сохранённых RoleGrant: %w", err)
	}

	propagationDrift.WithLabelValues(model.DriftMissingRoleGrant).Set(float64(len(report.MissingRoleGrants)))
	propagationDrift.WithLabelValues(model.DriftMissingPromotion).Set(float64(len(report.MissingPromotions)))
	propagationDrift.WithLabelValues(model.DriftRetainedGrant).Set(float64(len(report.RetainedGrants)))

	return report, nil
}

// retry выполняет fn с ограниченным экспоненциальным backoff.
// Каждая попытка ограничена таймаутом хранилища. ErrNotFound
// (например, клуб удалён) не повторяется.
func (p *Propagator) retry(ctx context.Context, effect, key string, fn func(ctx context.Context) error) error {
	delay := p.baseDelay
	var lastErr error
	attempts := 0

loop:
	for attempt := 0; ; attempt++ {
		attempts++
		callCtx, cancel := withTimeout(ctx, p.timeout)
		lastErr = fn(callCtx)
		cancel()

		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, repository.ErrNotFound) || attempt >= p.retries {
			break
		}

		p.logger.Warn("Повтор производной записи",
			slog.String("effect", effect),
			slog.String("key", key),
			slog.Int("attempt", attempts),
			slog.String("error", lastErr.Error()),
		)

		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break loop
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.maxDelay {
			delay = p.maxDelay
		}
	}

	propagationFailuresTotal.WithLabelValues(effect).Inc()
	return &PropagationError{Effect: effect, Key: key, Attempts: attempts, Err: lastErr}
}

// BootstrapSuperAdmins выдаёт роль super_admin пользователям из
// CM_SUPER_ADMIN_EMAILS при старте сервиса. Повторный запуск ничего не меняет.
func (p *Propagator) BootstrapSuperAdmins(ctx context.Context, emails []string) error {
	for _, email := range emails {
		email = normalizeEmail(email)
		if email == "" {
			continue
		}
		err := p.retry(ctx, "bootstrap_super_admin", email, func(ctx context.Context) error {
			_, err := p.principals.PromoteGlobalRole(ctx, email, model.GlobalRoleSuperAdmin)
			return err
		})
		if err != nil {
			return err
		}
		p.logger.Info("Роль super_admin выдана при старте", slog.String("email", email))
	}
	return nil
}
