// guards.go — middleware проверки прав на уровне ресурсов.
// Должны использоваться ПОСЛЕ JWTAuth.Middleware(): без личности
// в контексте запрос отклоняется с 401 и проверка не выполняется.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/clubhub/club-module/internal/api/errors"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
)

// Authorizer — проверки прав. Реализуется service.Guards.
type Authorizer interface {
	AuthorizeSuperAdmin(ctx context.Context, id *model.Identity) error
	AuthorizeClubOwner(ctx context.Context, id *model.Identity, rawClubID string) (*model.Club, error)
	AuthorizeClubOwnerOrSuperAdmin(ctx context.Context, id *model.Identity, rawClubID string) (*model.Club, error)
}

// RequireSuperAdmin пропускает только пользователей с глобальной ролью super_admin.
func RequireSuperAdmin(a Authorizer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if id == nil {
				apierrors.Unauthorized(w, "Отсутствует личность в контексте")
				return
			}
			if err := a.AuthorizeSuperAdmin(r.Context(), id); err != nil {
				apierrors.WriteServiceError(w, err, logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireClubOwner пропускает только владельца клуба из параметра пути param.
func RequireClubOwner(a Authorizer, param string, logger *slog.Logger) func(http.Handler) http.Handler {
	return requireClub(a.AuthorizeClubOwner, param, logger)
}

// RequireClubOwnerOrSuperAdmin пропускает владельца клуба или super_admin.
func RequireClubOwnerOrSuperAdmin(a Authorizer, param string, logger *slog.Logger) func(http.Handler) http.Handler {
	return requireClub(a.AuthorizeClubOwnerOrSuperAdmin, param, logger)
}

type clubAuthorizeFunc func(ctx context.Context, id *model.Identity, rawClubID string) (*model.Club, error)

func requireClub(authorize clubAuthorizeFunc, param string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if id == nil {
				apierrors.Unauthorized(w, "Отсутствует личность в контексте")
				return
			}
			if _, err := authorize(r.Context(), id, chi.URLParam(r, param)); err != nil {
				apierrors.WriteServiceError(w, err, logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
