package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
)

// DriftRepository — поиск расхождений между основными и производными таблицами.
type DriftRepository interface {
	// MissingRoleGrants — активные членства без RoleGrant.
	MissingRoleGrants(ctx context.Context, limit int) ([]model.Membership, error)
	// MissingPromotions — одобренные заявки, у заявителя которых нет
	// записи principals или глобальная роль ниже club_manager.
	MissingPromotions(ctx context.Context, limit int) ([]model.ManagerApplication, error)
	// RetainedGrants — RoleGrant без активного членства.
	RetainedGrants(ctx context.Context, limit int) ([]model.RoleGrant, error)
}

type driftRepo struct {
	db DBTX
}

// NewDriftRepository создаёт репозиторий поиска расхождений.
func NewDriftRepository(db DBTX) DriftRepository {
	return &driftRepo{db: db}
}

func (r *driftRepo) MissingRoleGrants(ctx context.Context, limit int) ([]model.Membership, error) {
	limit, _ = normalizePage(limit, 0)
	query := `
		SELECT m.id, m.club_id, m.user_email, m.status, m.created_at, m.updated_at
		FROM memberships m
		LEFT JOIN role_grants g ON g.club_id = m.club_id AND g.user_email = m.user_email
		WHERE m.status = 'active' AND g.club_id IS NULL
		ORDER BY m.updated_at ASC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска членств без role grant: %w", err)
	}
	defer rows.Close()

	var result []model.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования членства: %w", err)
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

func (r *driftRepo) MissingPromotions(ctx context.Context, limit int) ([]model.ManagerApplication, error) {
	limit, _ = normalizePage(limit, 0)
	query := fmt.Sprintf(`
		SELECT a.id, a.email, a.name, a.reason, a.photo_url, a.status, a.applied_at, a.updated_at
		FROM manager_applications a
		LEFT JOIN principals p ON p.email = a.email
		WHERE a.status = 'approved'
			AND (p.email IS NULL OR %s < 2)
		ORDER BY a.updated_at ASC
		LIMIT $1`, roleWeightSQL("p.global_role"))

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска непродвинутых заявок: %w", err)
	}
	defer rows.Close()

	var result []model.ManagerApplication
	for rows.Next() {
		a, err := scanManagerApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *driftRepo) RetainedGrants(ctx context.Context, limit int) ([]model.RoleGrant, error) {
	limit, _ = normalizePage(limit, 0)
	query := `
		SELECT g.club_id, g.user_email, g.role, g.permissions, g.assigned_at, g.updated_at
		FROM role_grants g
		WHERE NOT EXISTS (
			SELECT 1 FROM memberships m
			WHERE m.club_id = g.club_id AND m.user_email = g.user_email AND m.status = 'active'
		)
		ORDER BY g.updated_at ASC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска сохранённых role grants: %w", err)
	}
	defer rows.Close()

	var result []model.RoleGrant
	for rows.Next() {
		g, err := scanRoleGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования role grant: %w", err)
		}
		result = append(result, *g)
	}
	return result, rows.Err()
}
