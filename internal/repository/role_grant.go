package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
)

// RoleGrantRepository — доступ к производной таблице role_grants.
// Записывать в неё должен только Propagator.
type RoleGrantRepository interface {
	// Upsert создаёт или обновляет RoleGrant по ключу (club_id, user_email).
	// assigned_at устанавливается только при вставке.
	Upsert(ctx context.Context, g *model.RoleGrant) error
	// Get возвращает RoleGrant по ключу.
	Get(ctx context.Context, clubID, userEmail string) (*model.RoleGrant, error)
	// ListByUser возвращает все RoleGrant пользователя.
	ListByUser(ctx context.Context, userEmail string) ([]*model.RoleGrant, error)
	// Delete удаляет RoleGrant. ErrNotFound — записи нет.
	Delete(ctx context.Context, clubID, userEmail string) error
}

type roleGrantRepo struct {
	db DBTX
}

// NewRoleGrantRepository создаёт репозиторий RoleGrant.
func NewRoleGrantRepository(db DBTX) RoleGrantRepository {
	return &roleGrantRepo{db: db}
}

const roleGrantColumns = `club_id, user_email, role, permissions, assigned_at, updated_at`

func scanRoleGrant(row pgx.Row) (*model.RoleGrant, error) {
	g := &model.RoleGrant{}
	err := row.Scan(&g.ClubID, &g.UserEmail, &g.Role, &g.Permissions, &g.AssignedAt, &g.UpdatedAt)
	return g, err
}

func (r *roleGrantRepo) Upsert(ctx context.Context, g *model.RoleGrant) error {
	query := `
		INSERT INTO role_grants (club_id, user_email, role, permissions)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (club_id, user_email) DO UPDATE SET
			role = EXCLUDED.role,
			permissions = EXCLUDED.permissions,
			updated_at = now()
		RETURNING assigned_at, updated_at`

	g.UserEmail = strings.ToLower(g.UserEmail)
	err := r.db.QueryRow(ctx, query, g.ClubID, g.UserEmail, g.Role, g.Permissions).
		Scan(&g.AssignedAt, &g.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка upsert role grant: %w", err)
	}
	return nil
}

func (r *roleGrantRepo) Get(ctx context.Context, clubID, userEmail string) (*model.RoleGrant, error) {
	query := fmt.Sprintf(`SELECT %s FROM role_grants WHERE club_id = $1 AND user_email = $2`, roleGrantColumns)

	g, err := scanRoleGrant(r.db.QueryRow(ctx, query, clubID, strings.ToLower(userEmail)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения role grant: %w", err)
	}
	return g, nil
}

func (r *roleGrantRepo) ListByUser(ctx context.Context, userEmail string) ([]*model.RoleGrant, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM role_grants
		WHERE user_email = $1
		ORDER BY assigned_at ASC`, roleGrantColumns)

	rows, err := r.db.Query(ctx, query, strings.ToLower(userEmail))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения role grants: %w", err)
	}
	defer rows.Close()

	var result []*model.RoleGrant
	for rows.Next() {
		g, err := scanRoleGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования role grant: %w", err)
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

func (r *roleGrantRepo) Delete(ctx context.Context, clubID, userEmail string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM role_grants WHERE club_id = $1 AND user_email = $2`,
		clubID, strings.ToLower(userEmail))
	if err != nil {
		return fmt.Errorf("ошибка удаления role grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
