// clubs.go — клубы: создание, чтение, изменение владельцем и решение администратора.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/clubhub/club-module/internal/domain/lifecycle"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/domain/rbac"
	"github.com/bigkaa/clubhub/club-module/internal/events"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
)

// CreateClubInput — поля нового клуба. Владелец — вызывающий.
type CreateClubInput struct {
	Name          string
	Description   string
	Category      string
	Location      string
	BannerURL     *string
	MembershipFee float64
}

// ClubList — страница списка клубов.
type ClubList struct {
	Items []*model.Club
	Total int
}

// ClubService — бизнес-логика клубов.
type ClubService struct {
	clubs      repository.ClubRepository
	principals repository.PrincipalRepository
	cache      *ClubCache
	publisher  events.Publisher
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClubService создаёт ClubService. cache и publisher могут быть nil.
func NewClubService(
	clubs repository.ClubRepository,
	principals repository.PrincipalRepository,
	cache *ClubCache,
	publisher events.Publisher,
	timeout time.Duration,
	logger *slog.Logger,
) *ClubService {
	return &ClubService{
		clubs:      clubs,
		principals: principals,
		cache:      cache,
		publisher:  publisher,
		timeout:    storageTimeout(timeout),
		logger:     logger.With(slog.String("component", "clubs")),
	}
}

// Create создаёт клуб в статусе pending. Доступно club_manager и super_admin.
func (s *ClubService) Create(ctx context.Context, id *model.Identity, in CreateClubInput) (*model.Club, error) {
	if id == nil || id.Email == "" {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, validationf("название клуба обязательно")
	}
	if in.MembershipFee < 0 {
		return nil, validationf("членский взнос не может быть отрицательным")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.principals.GetByEmail(ctx, id.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: пользователь не зарегистрирован", ErrForbidden)
		}
		return nil, fmt.Errorf("проверка роли: %w", err)
	}
	if !rbac.CanCreateClub(p.GlobalRole) {
		return nil, fmt.Errorf("%w: создавать клубы может club_manager или super_admin", ErrForbidden)
	}

	club := &model.Club{
		ID:            uuid.New().String(),
		OwnerEmail:    id.Email,
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Category:      in.Category,
		Location:      in.Location,
		BannerURL:     in.BannerURL,
		MembershipFee: in.MembershipFee,
		Status:        lifecycle.StatusPending,
	}
	if err := s.clubs.Create(ctx, club); err != nil {
		return nil, mapRepoErr(err, "клуб")
	}

	s.logger.Info("Клуб создан",
		slog.String("club_id", club.ID),
		slog.String("owner_email", club.OwnerEmail),
	)
	return club, nil
}

// Get возвращает клуб. Неодобренный клуб виден только владельцу и super_admin.
func (s *ClubService) Get(ctx context.Context, id *model.Identity, rawClubID string) (*model.Club, error) {
	clubID, err := parseID(rawClubID, "клуба")
	if err != nil {
		return nil, err
	}

	club, ok := s.cache.Get(clubID)
	if !ok {
		sctx, cancel := withTimeout(ctx, s.timeout)
		defer cancel()

		club, err = s.clubs.GetByID(sctx, clubID)
		if err != nil {
			return nil, mapRepoErr(err, "клуб не найден")
		}
		s.cache.Set(club)
	}

	if club.Status == lifecycle.StatusApproved || (id != nil && club.OwnerEmail == id.Email) {
		return club, nil
	}
	admin, err := s.isSuperAdmin(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, fmt.Errorf("%w: клуб не найден", ErrNotFound)
	}
	return club, nil
}

// List возвращает клубы по фильтру. Вызывающий, не являющийся
// super_admin, видит только одобренные клубы и свои собственные.
func (s *ClubService) List(ctx context.Context, id *model.Identity, f repository.ClubFilter) (*ClubList, error) {
	if err := f.Validate(); err != nil {
		return nil, mapRepoErr(err, "")
	}

	admin, err := s.isSuperAdmin(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin {
		ownList := id != nil && f.OwnerEmail != nil && normalizeEmail(*f.OwnerEmail) == id.Email
		if !ownList {
			approved := lifecycle.StatusApproved
			f.Status = &approved
		}
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	items, err := s.clubs.List(ctx, f)
	if err != nil {
		return nil, mapRepoErr(err, "")
	}
	total, err := s.clubs.Count(ctx, f)
	if err != nil {
		return nil, mapRepoErr(err, "")
	}
	return &ClubList{Items: items, Total: total}, nil
}

// Update применяет патч владельца. Проверку ClubOwnerGuard выполняет вызывающий код.
func (s *ClubService) Update(ctx context.Context, rawClubID string, patch model.ClubPatch) (*model.Club, error) {
	clubID, err := parseID(rawClubID, "клуба")
	if err != nil {
		return nil, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, validationf("название клуба не может быть пустым")
	}
	if patch.MembershipFee != nil && *patch.MembershipFee < 0 {
		return nil, validationf("членский взнос не может быть отрицательным")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	club, err := s.clubs.Update(ctx, clubID, patch)
	s.cache.Invalidate(clubID)
	if err != nil {
		return nil, mapRepoErr(err, "клуб не найден")
	}

	s.logger.Info("Клуб обновлён", slog.String("club_id", clubID))
	return club, nil
}

// Transition меняет статус клуба (решение super_admin).
func (s *ClubService) Transition(ctx context.Context, rawClubID, requested string, actor *model.Identity) (res *TransitionResult, err error) {
	clubID, err := parseID(rawClubID, "клуба")
	if err != nil {
		return nil, err
	}
	// Статус вне таблицы переходов отклоняет lifecycle.Check
	to := requested
	defer func() { recordTransition(lifecycle.EntityClub, to, err) }()

	sctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	current, err := s.clubs.GetByID(sctx, clubID)
	if err != nil {
		return nil, mapRepoErr(err, "клуб не найден")
	}

	tr, err := lifecycle.Check(lifecycle.EntityClub, current.Status, to)
	if err != nil {
		return nil, mapTransitionErr(err)
	}

	updated, err := s.clubs.UpdateStatus(sctx, clubID, current.Status, to)
	s.cache.Invalidate(clubID)
	if err != nil {
		return nil, mapRepoErr(err, "клуб не найден")
	}

	res = &TransitionResult{Transition: tr, Actor: actorEmail(actor), Club: updated}
	s.logger.Info("Статус клуба изменён",
		slog.String("club_id", clubID),
		slog.String("from", tr.From),
		slog.String("to", tr.To),
		slog.String("actor", res.Actor),
	)
	publishTransition(ctx, s.publisher, s.logger, clubID, clubID, res)
	return res, nil
}

// isSuperAdmin проверяет роль super_admin без ошибки Forbidden.
func (s *ClubService) isSuperAdmin(ctx context.Context, id *model.Identity) (bool, error) {
	return lookupSuperAdmin(ctx, s.principals, s.timeout, id)
}

// lookupSuperAdmin возвращает true, если пользователь зарегистрирован с ролью super_admin.
func lookupSuperAdmin(ctx context.Context, principals repository.PrincipalRepository, timeout time.Duration, id *model.Identity) (bool, error) {
	if id == nil || id.Email == "" {
		return false, nil
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	p, err := principals.GetByEmail(ctx, id.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("проверка роли: %w", err)
	}
	return p.GlobalRole == model.GlobalRoleSuperAdmin, nil
}
