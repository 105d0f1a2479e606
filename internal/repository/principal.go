package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
)

// PrincipalRepository — доступ к таблице principals.
type PrincipalRepository interface {
	// Register создаёт пользователя с ролью member или обновляет имя и фото.
	// Глобальная роль существующего пользователя не изменяется.
	Register(ctx context.Context, p *model.Principal) error
	// GetByEmail возвращает пользователя по email.
	GetByEmail(ctx context.Context, email string) (*model.Principal, error)
	// PromoteGlobalRole повышает глобальную роль до role (идемпотентно).
	// Если пользователя нет — создаёт его с ролью role.
	// Роль с большим весом не понижается. Возвращает итоговую роль.
	PromoteGlobalRole(ctx context.Context, email, role string) (string, error)
}

type principalRepo struct {
	db DBTX
}

// NewPrincipalRepository создаёт репозиторий пользователей.
func NewPrincipalRepository(db DBTX) PrincipalRepository {
	return &principalRepo{db: db}
}

// roleWeightSQL — вес глобальной роли в SQL, согласован с пакетом rbac.
func roleWeightSQL(col string) string {
	return fmt.Sprintf(
		`CASE %s WHEN 'member' THEN 1 WHEN 'club_manager' THEN 2 WHEN 'super_admin' THEN 3 ELSE 0 END`,
		col,
	)
}

func (r *principalRepo) Register(ctx context.Context, p *model.Principal) error {
	query := `
		INSERT INTO principals (email, global_role, name, photo_url)
		VALUES ($1, 'member', $2, $3)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			photo_url = EXCLUDED.photo_url,
			updated_at = now()
		RETURNING global_role, created_at, updated_at`

	p.Email = strings.ToLower(p.Email)
	err := r.db.QueryRow(ctx, query, p.Email, p.Name, p.PhotoURL).
		Scan(&p.GlobalRole, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка регистрации пользователя: %w", err)
	}
	return nil
}

func (r *principalRepo) GetByEmail(ctx context.Context, email string) (*model.Principal, error) {
	query := `
		SELECT email, global_role, name, photo_url, created_at, updated_at
		FROM principals
		WHERE email = $1`

	p := &model.Principal{}
	err := r.db.QueryRow(ctx, query, strings.ToLower(email)).Scan(
		&p.Email, &p.GlobalRole, &p.Name, &p.PhotoURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return p, nil
}

func (r *principalRepo) PromoteGlobalRole(ctx context.Context, email, role string) (string, error) {
	// Условие WHERE в DO UPDATE не даёт понизить роль:
	// при равном или большем весе строка не изменяется и RETURNING пуст.
	query := fmt.Sprintf(`
		INSERT INTO principals (email, global_role)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET
			global_role = EXCLUDED.global_role,
			updated_at = now()
		WHERE %s < %s
		RETURNING global_role`,
		roleWeightSQL("principals.global_role"), roleWeightSQL("EXCLUDED.global_role"))

	email = strings.ToLower(email)
	var result string
	err := r.db.QueryRow(ctx, query, email, role).Scan(&result)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("ошибка повышения глобальной роли: %w", err)
	}

	// Роль уже не ниже требуемой
	p, err := r.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return p.GlobalRole, nil
}
