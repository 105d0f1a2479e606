// guards.go — проверки прав (SuperAdminGuard, ClubOwnerGuard).
//
// Каждая проверка выполняется после проверки JWT и получает проверенную
// личность. При любой неопределённости (нет записи, ошибка хранилища,
// таймаут) доступ запрещается.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
)

// Guards — проверки прав на уровне ресурсов.
type Guards struct {
	principals repository.PrincipalRepository
	clubs      repository.ClubRepository
	timeout    time.Duration
	logger     *slog.Logger
}

// NewGuards создаёт набор проверок прав.
func NewGuards(
	principals repository.PrincipalRepository,
	clubs repository.ClubRepository,
	timeout time.Duration,
	logger *slog.Logger,
) *Guards {
	return &Guards{
		principals: principals,
		clubs:      clubs,
		timeout:    storageTimeout(timeout),
		logger:     logger.With(slog.String("component", "guards")),
	}
}

// AuthorizeSuperAdmin допускает вызывающего, только если его запись
// principals существует и имеет роль super_admin.
func (g *Guards) AuthorizeSuperAdmin(ctx context.Context, id *model.Identity) error {
	if id == nil || id.Email == "" {
		return ErrUnauthenticated
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	p, err := g.principals.GetByEmail(ctx, id.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: пользователь не зарегистрирован", ErrForbidden)
		}
		g.logger.Error("Ошибка проверки роли super_admin",
			slog.String("email", id.Email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("проверка роли: %w", err)
	}

	if p.GlobalRole != model.GlobalRoleSuperAdmin {
		return fmt.Errorf("%w: требуется роль super_admin", ErrForbidden)
	}
	return nil
}

// AuthorizeClubOwner допускает вызывающего, только если он владелец клуба.
// rawClubID проверяется до обращения к хранилищу. Решение принимается
// по сохранённому owner_email и не зависит от других полей.
func (g *Guards) AuthorizeClubOwner(ctx context.Context, id *model.Identity, rawClubID string) (*model.Club, error) {
	club, err := g.loadClub(ctx, id, rawClubID)
	if err != nil {
		return nil, err
	}
	if club.OwnerEmail != id.Email {
		return nil, fmt.Errorf("%w: вызывающий не владелец клуба", ErrForbidden)
	}
	return club, nil
}

// AuthorizeClubOwnerOrSuperAdmin допускает владельца клуба или super_admin.
// Используется для рассмотрения заявок на членство.
func (g *Guards) AuthorizeClubOwnerOrSuperAdmin(ctx context.Context, id *model.Identity, rawClubID string) (*model.Club, error) {
	club, err := g.loadClub(ctx, id, rawClubID)
	if err != nil {
		return nil, err
	}
	if club.OwnerEmail == id.Email {
		return club, nil
	}
	if err := g.AuthorizeSuperAdmin(ctx, id); err != nil {
		return nil, err
	}
	return club, nil
}

func (g *Guards) loadClub(ctx context.Context, id *model.Identity, rawClubID string) (*model.Club, error) {
	if id == nil || id.Email == "" {
		return nil, ErrUnauthenticated
	}

	clubID, err := parseID(rawClubID, "клуба")
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	club, err := g.clubs.GetByID(ctx, clubID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			g.logger.Error("Ошибка загрузки клуба для проверки прав",
				slog.String("club_id", clubID),
				slog.String("error", err.Error()),
			)
		}
		return nil, mapRepoErr(err, "клуб не найден")
	}
	return club, nil
}
