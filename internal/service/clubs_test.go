package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bigkaa/clubhub/club-module/internal/domain/lifecycle"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
)

func clubWorld() *world {
	w := newWorld(LeaveGrantRetain)
	w.principals.rows["root@x.com"] = model.Principal{Email: "root@x.com", GlobalRole: model.GlobalRoleSuperAdmin}
	w.principals.rows["alice@x.com"] = model.Principal{Email: "alice@x.com", GlobalRole: model.GlobalRoleClubManager}
	w.principals.rows["bob@x.com"] = model.Principal{Email: "bob@x.com", GlobalRole: model.GlobalRoleMember}
	return w
}

func TestClubService_Create(t *testing.T) {
	w := clubWorld()
	ctx := context.Background()

	club, err := w.clubSvc.Create(ctx, identity("alice@x.com"), CreateClubInput{Name: "  Шахматы  ", MembershipFee: 10})
	if err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if club.Status != lifecycle.StatusPending {
		t.Errorf("Status = %q, ожидался pending", club.Status)
	}
	if club.OwnerEmail != "alice@x.com" {
		t.Errorf("OwnerEmail = %q, ожидался alice@x.com", club.OwnerEmail)
	}
	if club.Name != "Шахматы" {
		t.Errorf("Name = %q, ожидалось без пробелов", club.Name)
	}

	tests := []struct {
		name    string
		id      *model.Identity
		in      CreateClubInput
		wantErr error
	}{
		{"member не может создавать", identity("bob@x.com"), CreateClubInput{Name: "X"}, ErrForbidden},
		{"незарегистрированный", identity("ghost@x.com"), CreateClubInput{Name: "X"}, ErrForbidden},
		{"пустое название", identity("alice@x.com"), CreateClubInput{Name: " "}, ErrValidation},
		{"отрицательный взнос", identity("alice@x.com"), CreateClubInput{Name: "X", MembershipFee: -1}, ErrValidation},
		{"без личности", nil, CreateClubInput{Name: "X"}, ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := w.clubSvc.Create(ctx, tt.id, tt.in); !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() = %v, ожидалась %v", err, tt.wantErr)
			}
		})
	}
}

func TestClubService_Transition(t *testing.T) {
	w := clubWorld()
	ctx := context.Background()
	club, _ := w.clubSvc.Create(ctx, identity("alice@x.com"), CreateClubInput{Name: "C1"})

	res, err := w.clubSvc.Transition(ctx, club.ID, lifecycle.StatusApproved, identity("root@x.com"))
	if err != nil {
		t.Fatalf("Transition() ошибка: %v", err)
	}
	if res.Club.Status != lifecycle.StatusApproved {
		t.Errorf("Status = %q, ожидался approved", res.Club.Status)
	}
	if res.Transition.From != lifecycle.StatusPending {
		t.Errorf("From = %q, ожидался pending", res.Transition.From)
	}
	if w.publisher.count() != 1 {
		t.Errorf("опубликовано событий: %d, ожидалось 1", w.publisher.count())
	}

	// approved → approved
	if _, err := w.clubSvc.Transition(ctx, club.ID, lifecycle.StatusApproved, identity("root@x.com")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("повтор: ожидалась ErrInvalidTransition, получено %v", err)
	}
	if _, err := w.clubSvc.Transition(ctx, unknownID, lifecycle.StatusApproved, identity("root@x.com")); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный клуб: ожидалась ErrNotFound, получено %v", err)
	}
}

// TestClubService_Transition_UnknownStatus проверяет, что статус вне
// таблицы переходов отклоняется как ErrInvalidTransition и не меняет клуб.
func TestClubService_Transition_UnknownStatus(t *testing.T) {
	w := clubWorld()
	ctx := context.Background()
	w.clubs.rows[clubC1ID] = model.Club{ID: clubC1ID, OwnerEmail: "alice@x.com", Name: "C1", Status: lifecycle.StatusPending}

	tests := []struct {
		name   string
		status string
	}{
		{"active у клуба", lifecycle.StatusActive},
		{"вне перечисления", "archived"},
		{"пустой", ""},
		{"верхний регистр", "APPROVED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.clubSvc.Transition(ctx, clubC1ID, tt.status, identity("root@x.com"))
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Transition(%q) = %v, ожидалась ErrInvalidTransition", tt.status, err)
			}
			if errors.Is(err, ErrValidation) {
				t.Errorf("Transition(%q) не должен возвращать ErrValidation", tt.status)
			}
		})
	}

	stored, err := w.clubs.GetByID(ctx, clubC1ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if stored.Status != lifecycle.StatusPending {
		t.Errorf("статус изменился: %q, ожидался pending", stored.Status)
	}
}

// TestClubService_Transition_LostRace проверяет ErrConflict при
// изменении статуса между чтением и условной записью.
func TestClubService_Transition_LostRace(t *testing.T) {
	w := clubWorld()
	ctx := context.Background()
	w.clubs.rows[clubC1ID] = model.Club{ID: clubC1ID, OwnerEmail: "alice@x.com", Status: lifecycle.StatusPending}
	w.clubs.updateStatusFn = func(context.Context, string, string, string) (*model.Club, error) {
		return nil, repository.ErrConflict
	}

	_, err := w.clubSvc.Transition(ctx, clubC1ID, lifecycle.StatusRejected, identity("root@x.com"))
	if !errors.Is(err, ErrConflict) {
		t.Errorf("ожидалась ErrConflict, получено %v", err)
	}
	if w.publisher.count() != 0 {
		t.Error("событие не должно публиковаться при проигранной гонке")
	}
}

func TestClubService_GetVisibility(t *testing.T) {
	w := clubWorld()
	ctx := context.Background()
	w.clubs.rows[clubC1ID] = model.Club{ID: clubC1ID, OwnerEmail: "alice@x.com", Status: lifecycle.StatusApproved}
	w.clubs.rows[clubC2ID] = model.Club{ID: clubC2ID, OwnerEmail: "alice@x.com", Status: lifecycle.StatusPending}

	if _, err := w.clubSvc.Get(ctx, identity("bob@x.com"), clubC1ID); err != nil {
		t.Errorf("одобренный клуб виден всем: %v", err)
	}
	if _, err := w.clubSvc.Get(ctx, identity("bob@x.com"), clubC2ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("неодобренный клуб для bob: ожидалась ErrNotFound, получено %v", err)
	}
	for _, email := range []string{"alice@x.com", "root@x.com"} {
		if _, err := w.clubSvc.Get(ctx, identity(email), clubC2ID); err != nil {
			t.Errorf("%s должен видеть неодобренный клуб: %v", email, err)
		}
	}
}

// TestClubService_GetUsesCache проверяет чтение из кэша и его
// сброс после изменения клуба.
func TestClubService_GetUsesCache(t *testing.T) {
	w := clubWorld()
	ctx := context.Background()
	w.clubs.rows[clubC1ID] = model.Club{ID: clubC1ID, OwnerEmail: "alice@x.com", Name: "C1", Status: lifecycle.StatusApproved}

	for i := 0; i < 3; i++ {
		if _, err := w.clubSvc.Get(ctx, identity("bob@x.com"), clubC1ID); err != nil {
			t.Fatalf("Get() ошибка: %v", err)
		}
	}
	if w.clubs.getCalls != 1 {
		t.Errorf("GetByID вызван %d раз, ожидался 1", w.clubs.getCalls)
	}

	name := "C1 Renamed"
	if _, err := w.clubSvc.Update(ctx, clubC1ID, model.ClubPatch{Name: &name}); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	got, err := w.clubSvc.Get(ctx, identity("bob@x.com"), clubC1ID)
	if err != nil {
		t.Fatalf("Get() ошибка: %v", err)
	}
	if got.Name != name {
		t.Errorf("Name = %q, ожидалось %q (кэш не сброшен)", got.Name, name)
	}
}

func TestClubService_List(t *testing.T) {
	w := clubWorld()
	ctx := context.Background()
	w.clubs.rows[clubC1ID] = model.Club{ID: clubC1ID, OwnerEmail: "alice@x.com", Status: lifecycle.StatusApproved}
	w.clubs.rows[clubC2ID] = model.Club{ID: clubC2ID, OwnerEmail: "alice@x.com", Status: lifecycle.StatusPending}

	list, err := w.clubSvc.List(ctx, identity("bob@x.com"), repository.ClubFilter{})
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("bob видит %d клубов, ожидался 1", list.Total)
	}

	// Запрошенный статус pending для bob заменяется на approved
	pending := lifecycle.StatusPending
	list, _ = w.clubSvc.List(ctx, identity("bob@x.com"), repository.ClubFilter{Status: &pending})
	if list.Total != 1 || list.Items[0].Status != lifecycle.StatusApproved {
		t.Errorf("bob: фильтр статуса не ограничен одобренными")
	}

	owner := "alice@x.com"
	list, _ = w.clubSvc.List(ctx, identity("alice@x.com"), repository.ClubFilter{OwnerEmail: &owner})
	if list.Total != 2 {
		t.Errorf("alice видит своих клубов: %d, ожидалось 2", list.Total)
	}

	list, _ = w.clubSvc.List(ctx, identity("root@x.com"), repository.ClubFilter{})
	if list.Total != 2 {
		t.Errorf("super_admin видит %d клубов, ожидалось 2", list.Total)
	}

	if _, err := w.clubSvc.List(ctx, identity("bob@x.com"), repository.ClubFilter{SortBy: "owner_email"}); !errors.Is(err, ErrValidation) {
		t.Errorf("неизвестная сортировка: ожидалась ErrValidation, получено %v", err)
	}
}

func TestClubService_UpdateValidation(t *testing.T) {
	w := clubWorld()
	empty := ""
	fee := -5.0
	ctx := context.Background()

	if _, err := w.clubSvc.Update(ctx, clubC1ID, model.ClubPatch{Name: &empty}); !errors.Is(err, ErrValidation) {
		t.Errorf("пустое название: ожидалась ErrValidation, получено %v", err)
	}
	if _, err := w.clubSvc.Update(ctx, clubC1ID, model.ClubPatch{MembershipFee: &fee}); !errors.Is(err, ErrValidation) {
		t.Errorf("отрицательный взнос: ожидалась ErrValidation, получено %v", err)
	}
	if _, err := w.clubSvc.Update(ctx, unknownID, model.ClubPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный клуб: ожидалась ErrNotFound, получено %v", err)
	}
}
