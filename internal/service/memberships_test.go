package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bigkaa/clubhub/club-module/internal/domain/lifecycle"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
)

func membershipWorld(policy LeaveGrantPolicy) *world {
	w := newWorld(policy)
	w.principals.rows["root@x.com"] = model.Principal{Email: "root@x.com", GlobalRole: model.GlobalRoleSuperAdmin}
	w.principals.rows["alice@x.com"] = model.Principal{Email: "alice@x.com", GlobalRole: model.GlobalRoleClubManager}
	w.principals.rows["bob@x.com"] = model.Principal{Email: "bob@x.com", GlobalRole: model.GlobalRoleMember}
	w.clubs.rows[clubC1ID] = model.Club{ID: clubC1ID, OwnerEmail: "alice@x.com", Name: "C1", Status: lifecycle.StatusApproved}
	w.clubs.rows[clubC2ID] = model.Club{ID: clubC2ID, OwnerEmail: "alice@x.com", Name: "C2", Status: lifecycle.StatusPending}
	return w
}

// TestMembership_ApproveScenario: клуб C1 (владелец alice, approved),
// bob подаёт заявку, super_admin переводит её в active.
func TestMembership_ApproveScenario(t *testing.T) {
	w := membershipWorld(LeaveGrantRetain)
	ctx := context.Background()

	m, err := w.membership.Join(ctx, identity("bob@x.com"), clubC1ID)
	if err != nil {
		t.Fatalf("Join() ошибка: %v", err)
	}
	if m.Status != lifecycle.StatusPending {
		t.Fatalf("Status = %q, ожидался pending", m.Status)
	}

	res, err := w.membership.Transition(ctx, clubC1ID, m.ID, lifecycle.StatusActive, identity("root@x.com"))
	if err != nil {
		t.Fatalf("Transition() ошибка: %v", err)
	}
	if res.Membership.Status != lifecycle.StatusActive {
		t.Errorf("Membership.Status = %q, ожидался active", res.Membership.Status)
	}
	if res.Propagation == nil || res.Propagation.Status != PropagationApplied {
		t.Fatalf("Propagation = %+v, ожидался applied", res.Propagation)
	}

	grants, _ := w.grants.ListByUser(ctx, "bob@x.com")
	if len(grants) != 1 {
		t.Fatalf("RoleGrant записей = %d, ожидалась 1", len(grants))
	}
	g := grants[0]
	if g.ClubID != clubC1ID || g.Role != model.ClubRoleMember || len(g.Permissions) == 0 {
		t.Errorf("RoleGrant = %+v", g)
	}
	if w.publisher.count() != 1 {
		t.Errorf("опубликовано событий: %d, ожидалось 1", w.publisher.count())
	}
}

// TestMembership_ReplayIsRejected проверяет, что повтор перехода
// не создаёт второй RoleGrant.
func TestMembership_ReplayIsRejected(t *testing.T) {
	w := membershipWorld(LeaveGrantRetain)
	ctx := context.Background()
	m, _ := w.membership.Join(ctx, identity("bob@x.com"), clubC1ID)

	first, err := w.membership.Transition(ctx, clubC1ID, m.ID, lifecycle.StatusActive, identity("alice@x.com"))
	if err != nil {
		t.Fatalf("Transition() ошибка: %v", err)
	}
	assignedAt := first.Propagation.RoleGrant.AssignedAt

	_, err = w.membership.Transition(ctx, clubC1ID, m.ID, lifecycle.StatusActive, identity("alice@x.com"))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("повтор: ожидалась ErrInvalidTransition, получено %v", err)
	}

	g, err := w.grants.Get(ctx, clubC1ID, "bob@x.com")
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if !g.AssignedAt.Equal(assignedAt) {
		t.Errorf("assigned_at изменился: %v → %v", assignedAt, g.AssignedAt)
	}
	if len(w.grants.rows) != 1 {
		t.Errorf("RoleGrant записей = %d, ожидалась 1", len(w.grants.rows))
	}
}

func TestMembership_RejectHasNoSideEffects(t *testing.T) {
	w := membershipWorld(LeaveGrantRetain)
	ctx := context.Background()
	m, _ := w.membership.Join(ctx, identity("bob@x.com"), clubC1ID)

	res, err := w.membership.Transition(ctx, clubC1ID, m.ID, lifecycle.StatusRejected, identity("alice@x.com"))
	if err != nil {
		t.Fatalf("Transition() ошибка: %v", err)
	}
	if res.Propagation != nil {
		t.Errorf("Propagation = %+v, ожидался nil", res.Propagation)
	}
	if w.grants.upsertCalls != 0 {
		t.Error("RoleGrant не должен выдаваться при отклонении")
	}

	// rejected — конечный статус
	if _, err := w.membership.Transition(ctx, clubC1ID, m.ID, lifecycle.StatusActive, identity("alice@x.com")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("rejected → active: ожидалась ErrInvalidTransition, получено %v", err)
	}
}

// TestMembership_PropagationWarning проверяет, что сбой выдачи RoleGrant
// не откатывает переход и возвращается как предупреждение.
func TestMembership_PropagationWarning(t *testing.T) {
	w := membershipWorld(LeaveGrantRetain)
	ctx := context.Background()
	m, _ := w.membership.Join(ctx, identity("bob@x.com"), clubC1ID)
	w.grants.upsertFn = func(context.Context, *model.RoleGrant) error {
		return errors.New("storage down")
	}

	res, err := w.membership.Transition(ctx, clubC1ID, m.ID, lifecycle.StatusActive, identity("alice@x.com"))
	if !IsPropagationWarning(err) {
		t.Fatalf("ожидалось предупреждение о распространении, получено %v", err)
	}
	if res == nil || res.Propagation == nil || res.Propagation.Status != PropagationPending {
		t.Fatalf("ожидался результат с Propagation.Status = pending, получено %+v", res)
	}

	stored, _ := w.memberships.GetByID(ctx, m.ID)
	if stored.Status != lifecycle.StatusActive {
		t.Errorf("основной переход откатился: Status = %q", stored.Status)
	}

	// Reconciler исправляет расхождение
	w.grants.upsertFn = nil
	result, err := w.reconciler.ReconcileNow(ctx)
	if err != nil {
		t.Fatalf("ReconcileNow() ошибка: %v", err)
	}
	if result.MissingRoleGrants != 1 || result.Repaired != 1 {
		t.Errorf("ReconcileResult = %+v", result)
	}
	if !w.grants.has(clubC1ID, "bob@x.com") {
		t.Error("RoleGrant не восстановлен сверкой")
	}
}

func TestMembership_TransitionErrors(t *testing.T) {
	w := membershipWorld(LeaveGrantRetain)
	ctx := context.Background()
	m, _ := w.membership.Join(ctx, identity("bob@x.com"), clubC1ID)

	tests := []struct {
		name         string
		clubID       string
		membershipID string
		status       string
		wantErr      error
	}{
		{"членство другого клуба", clubC2ID, m.ID, lifecycle.StatusActive, ErrNotFound},
		{"неизвестное членство", clubC1ID, unknownID, lifecycle.StatusActive, ErrNotFound},
		{"некорректный ID", clubC1ID, "bad-id", lifecycle.StatusActive, ErrValidation},
		{"approved у членства", clubC1ID, m.ID, "approved", ErrInvalidTransition},
		{"статус вне перечисления", clubC1ID, m.ID, "banned", ErrInvalidTransition},
		{"pending → pending", clubC1ID, m.ID, lifecycle.StatusPending, ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.membership.Transition(ctx, tt.clubID, tt.membershipID, tt.status, identity("alice@x.com"))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Transition() = %v, ожидалась %v", err, tt.wantErr)
			}
		})
	}

	stored, _ := w.memberships.GetByID(ctx, m.ID)
	if stored.Status != lifecycle.StatusPending {
		t.Errorf("статус изменился после ошибок: %q", stored.Status)
	}
}

func TestMembership_Join(t *testing.T) {
	w := membershipWorld(LeaveGrantRetain)
	ctx := context.Background()

	if _, err := w.membership.Join(ctx, identity("bob@x.com"), clubC1ID); err != nil {
		t.Fatalf("Join() ошибка: %v", err)
	}
	if _, err := w.membership.Join(ctx, identity("bob@x.com"), clubC1ID); !errors.Is(err, ErrConflict) {
		t.Errorf("повторная заявка: ожидалась ErrConflict, получено %v", err)
	}
	if _, err := w.membership.Join(ctx, identity("bob@x.com"), clubC2ID); !errors.Is(err, ErrConflict) {
		t.Errorf("неодобренный клуб: ожидалась ErrConflict, получено %v", err)
	}
	if _, err := w.membership.Join(ctx, identity("bob@x.com"), unknownID); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный клуб: ожидалась ErrNotFound, получено %v", err)
	}
	if _, err := w.membership.Join(ctx, nil, clubC1ID); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("без личности: ожидалась ErrUnauthenticated, получено %v", err)
	}
}

func TestMembership_Leave(t *testing.T) {
	tests := []struct {
		policy      LeaveGrantPolicy
		wantGrant   bool
		wantRetains bool
	}{
		{LeaveGrantRetain, true, true},
		{LeaveGrantRetract, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			w := membershipWorld(tt.policy)
			ctx := context.Background()
			m, _ := w.membership.Join(ctx, identity("bob@x.com"), clubC1ID)
			if _, err := w.membership.Transition(ctx, clubC1ID, m.ID, lifecycle.StatusActive, identity("alice@x.com")); err != nil {
				t.Fatalf("Transition() ошибка: %v", err)
			}

			res, err := w.membership.Leave(ctx, identity("bob@x.com"), clubC1ID)
			if err != nil {
				t.Fatalf("Leave() ошибка: %v", err)
			}
			if res.GrantRetained != tt.wantRetains {
				t.Errorf("GrantRetained = %v, ожидалось %v", res.GrantRetained, tt.wantRetains)
			}
			if got := w.grants.has(clubC1ID, "bob@x.com"); got != tt.wantGrant {
				t.Errorf("RoleGrant существует = %v, ожидалось %v", got, tt.wantGrant)
			}

			report, err := w.reconciler.Drift(ctx)
			if err != nil {
				t.Fatalf("Drift() ошибка: %v", err)
			}
			if (len(report.RetainedGrants) == 1) != tt.wantGrant {
				t.Errorf("RetainedGrants = %d", len(report.RetainedGrants))
			}

			// Сверка не удаляет сохранённый RoleGrant
			if _, err := w.reconciler.ReconcileNow(ctx); err != nil {
				t.Fatalf("ReconcileNow() ошибка: %v", err)
			}
			if got := w.grants.has(clubC1ID, "bob@x.com"); got != tt.wantGrant {
				t.Errorf("после сверки RoleGrant существует = %v, ожидалось %v", got, tt.wantGrant)
			}

			if _, err := w.membership.Leave(ctx, identity("bob@x.com"), clubC1ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("повторный выход: ожидалась ErrNotFound, получено %v", err)
			}
		})
	}
}
