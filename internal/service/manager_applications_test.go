package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/clubhub/club-module/internal/domain/lifecycle"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
)

func TestManagerApplication_ApprovePromotesStoredEmail(t *testing.T) {
	w := newWorld(LeaveGrantRetain)
	ctx := context.Background()
	w.principals.rows["carol@x.com"] = model.Principal{Email: "carol@x.com", GlobalRole: model.GlobalRoleMember}

	app, created, err := w.applicant.Apply(ctx, identity("carol@x.com"), ApplyInput{Name: "Carol", Reason: "хочу вести клуб"})
	if err != nil || !created {
		t.Fatalf("Apply() = %v, created=%v", err, created)
	}

	// Инициатор одобрения — root; повышается только carol
	res, err := w.applicant.Transition(ctx, app.ID, lifecycle.StatusApproved, identity("root@x.com"))
	if err != nil {
		t.Fatalf("Transition() ошибка: %v", err)
	}
	if res.Propagation == nil || res.Propagation.GlobalRole != model.GlobalRoleClubManager {
		t.Errorf("Propagation = %+v", res.Propagation)
	}
	if got := w.principals.role("carol@x.com"); got != model.GlobalRoleClubManager {
		t.Errorf("carol: global_role = %q, ожидалась club_manager", got)
	}
	if got := w.principals.role("root@x.com"); got != "" {
		t.Errorf("инициатор не должен получать роль, получено %q", got)
	}
}

// TestManagerApplication_ConcurrentReview проверяет, что из двух
// конкурентных решений побеждает ровно одно.
func TestManagerApplication_ConcurrentReview(t *testing.T) {
	w := newWorld(LeaveGrantRetain)
	ctx := context.Background()
	app, _, err := w.applicant.Apply(ctx, identity("carol@x.com"), ApplyInput{Name: "Carol"})
	if err != nil {
		t.Fatalf("Apply() ошибка: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, status := range []string{lifecycle.StatusApproved, lifecycle.StatusRejected} {
		wg.Add(1)
		go func(i int, status string) {
			defer wg.Done()
			_, errs[i] = w.applicant.Transition(ctx, app.ID, status, identity("root@x.com"))
		}(i, status)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidTransition):
		default:
			t.Errorf("неожиданная ошибка: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("победителей = %d, ожидался 1", winners)
	}

	stored, _ := w.apps.GetByID(ctx, app.ID)
	if stored.Status == lifecycle.StatusPending {
		t.Error("заявка осталась в pending")
	}
}

// TestManagerApplication_StaleWriteConflict проверяет, что проигравшая
// условная запись возвращает ErrConflict.
func TestManagerApplication_StaleWriteConflict(t *testing.T) {
	w := newWorld(LeaveGrantRetain)
	ctx := context.Background()
	app, _, _ := w.applicant.Apply(ctx, identity("carol@x.com"), ApplyInput{Name: "Carol"})

	// Между чтением и записью заявку рассматривает другой администратор
	apps := &racingApps{memApps: w.apps, before: func() {
		_, _ = w.apps.UpdateStatus(ctx, app.ID, lifecycle.StatusPending, lifecycle.StatusRejected)
	}}
	svc := NewManagerApplicationService(apps, w.propagator, nil, time.Second, testLogger())

	_, err := svc.Transition(ctx, app.ID, lifecycle.StatusApproved, identity("root@x.com"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("ожидалась ErrConflict, получено %v", err)
	}
	if w.principals.promoteCalls != 0 {
		t.Error("роль не должна повышаться при проигранной гонке")
	}
}

// racingApps выполняет before перед условной записью.
type racingApps struct {
	*memApps
	before func()
}

func (r *racingApps) UpdateStatus(ctx context.Context, id, expected, next string) (*model.ManagerApplication, error) {
	r.before()
	return r.memApps.UpdateStatus(ctx, id, expected, next)
}

func TestManagerApplication_Reapply(t *testing.T) {
	w := newWorld(LeaveGrantRetain)
	ctx := context.Background()
	carol := identity("carol@x.com")

	app, _, err := w.applicant.Apply(ctx, carol, ApplyInput{Name: "Carol", Reason: "v1"})
	if err != nil {
		t.Fatalf("Apply() ошибка: %v", err)
	}
	if _, _, err := w.applicant.Apply(ctx, carol, ApplyInput{Name: "Carol"}); !errors.Is(err, ErrConflict) {
		t.Errorf("повтор при pending: ожидалась ErrConflict, получено %v", err)
	}

	if _, err := w.applicant.Transition(ctx, app.ID, lifecycle.StatusRejected, identity("root@x.com")); err != nil {
		t.Fatalf("Transition(rejected) ошибка: %v", err)
	}
	time.Sleep(2 * time.Millisecond)

	again, created, err := w.applicant.Apply(ctx, carol, ApplyInput{Name: "Carol", Reason: "v2"})
	if err != nil {
		t.Fatalf("повторная подача: %v", err)
	}
	if created {
		t.Error("повторная подача не должна создавать новую заявку")
	}
	if again.ID != app.ID || again.Status != lifecycle.StatusPending || again.Reason != "v2" {
		t.Errorf("заявка после повторной подачи = %+v", again)
	}
	if !again.AppliedAt.After(app.AppliedAt) {
		t.Errorf("applied_at не обновлён: %v → %v", app.AppliedAt, again.AppliedAt)
	}

	if _, err := w.applicant.Transition(ctx, app.ID, lifecycle.StatusApproved, identity("root@x.com")); err != nil {
		t.Fatalf("Transition(approved) ошибка: %v", err)
	}
	if _, _, err := w.applicant.Apply(ctx, carol, ApplyInput{Name: "Carol"}); !errors.Is(err, ErrConflict) {
		t.Errorf("повтор после одобрения: ожидалась ErrConflict, получено %v", err)
	}
}

func TestManagerApplication_ApprovedIsTerminal(t *testing.T) {
	w := newWorld(LeaveGrantRetain)
	ctx := context.Background()
	app, _, _ := w.applicant.Apply(ctx, identity("carol@x.com"), ApplyInput{Name: "Carol"})
	if _, err := w.applicant.Transition(ctx, app.ID, lifecycle.StatusApproved, identity("root@x.com")); err != nil {
		t.Fatalf("Transition() ошибка: %v", err)
	}

	for _, status := range []string{lifecycle.StatusRejected, lifecycle.StatusPending, lifecycle.StatusApproved} {
		if _, err := w.applicant.Transition(ctx, app.ID, status, identity("root@x.com")); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("approved → %s: ожидалась ErrInvalidTransition, получено %v", status, err)
		}
	}
}

func TestManagerApplication_GetOwnAndList(t *testing.T) {
	w := newWorld(LeaveGrantRetain)
	ctx := context.Background()

	if _, err := w.applicant.GetOwn(ctx, identity("carol@x.com")); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetOwn() без заявки: ожидалась ErrNotFound, получено %v", err)
	}
	_, _, _ = w.applicant.Apply(ctx, identity("carol@x.com"), ApplyInput{Name: "Carol"})
	_, _, _ = w.applicant.Apply(ctx, identity("dave@x.com"), ApplyInput{Name: "Dave"})

	own, err := w.applicant.GetOwn(ctx, identity("carol@x.com"))
	if err != nil || own.Email != "carol@x.com" {
		t.Errorf("GetOwn() = %+v, %v", own, err)
	}

	pending := lifecycle.StatusPending
	list, err := w.applicant.List(ctx, &pending, 100, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if list.Total != 2 || len(list.Items) != 2 {
		t.Errorf("List() Total = %d, Items = %d", list.Total, len(list.Items))
	}

	bad := "active"
	if _, err := w.applicant.List(ctx, &bad, 100, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("статус active: ожидалась ErrValidation, получено %v", err)
	}
}
