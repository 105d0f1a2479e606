// principals.go — регистрация пользователя и его профиль.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
)

// RegisterInput — изменяемые пользователем поля профиля.
type RegisterInput struct {
	Name     string
	PhotoURL *string
}

// Profile — профиль вызывающего.
type Profile struct {
	Principal   *model.Principal
	RoleGrants  []*model.RoleGrant
	Application *model.ManagerApplication
}

// PrincipalService — регистрация и профиль пользователя.
// Глобальную роль не изменяет: её пишет только Propagator.
type PrincipalService struct {
	principals repository.PrincipalRepository
	grants     repository.RoleGrantRepository
	apps       repository.ManagerApplicationRepository
	timeout    time.Duration
	logger     *slog.Logger
}

// NewPrincipalService создаёт PrincipalService.
func NewPrincipalService(
	principals repository.PrincipalRepository,
	grants repository.RoleGrantRepository,
	apps repository.ManagerApplicationRepository,
	timeout time.Duration,
	logger *slog.Logger,
) *PrincipalService {
	return &PrincipalService{
		principals: principals,
		grants:     grants,
		apps:       apps,
		timeout:    storageTimeout(timeout),
		logger:     logger.With(slog.String("component", "principals")),
	}
}

// Register создаёт пользователя с ролью member или обновляет имя и фото.
// Email берётся из проверенного токена.
func (s *PrincipalService) Register(ctx context.Context, id *model.Identity, in RegisterInput) (*model.Principal, error) {
	if id == nil || id.Email == "" {
		return nil, ErrUnauthenticated
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	p := &model.Principal{Email: id.Email, Name: in.Name, PhotoURL: in.PhotoURL}
	if err := s.principals.Register(ctx, p); err != nil {
		return nil, mapRepoErr(err, "пользователь")
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("email", p.Email),
		slog.String("global_role", p.GlobalRole),
	)
	return p, nil
}

// Me возвращает профиль вызывающего: запись principals, RoleGrant и заявку.
func (s *PrincipalService) Me(ctx context.Context, id *model.Identity) (*Profile, error) {
	if id == nil || id.Email == "" {
		return nil, ErrUnauthenticated
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.principals.GetByEmail(ctx, id.Email)
	if err != nil {
		return nil, mapRepoErr(err, "пользователь не зарегистрирован")
	}

	grants, err := s.grants.ListByUser(ctx, id.Email)
	if err != nil {
		return nil, mapRepoErr(err, "")
	}

	profile := &Profile{Principal: p, RoleGrants: grants}
	app, err := s.apps.GetByEmail(ctx, id.Email)
	switch {
	case err == nil:
		profile.Application = app
	case !errors.Is(err, repository.ErrNotFound):
		return nil, mapRepoErr(err, "")
	}
	return profile, nil
}
