package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
)

// MembershipRepository — доступ к таблице memberships.
type MembershipRepository interface {
	// Create создаёт заявку на членство.
	// ErrConflict — у пользователя уже есть pending/active членство в клубе.
	Create(ctx context.Context, m *model.Membership) error
	// GetByID возвращает членство по ID.
	GetByID(ctx context.Context, id string) (*model.Membership, error)
	// ListByClub возвращает членства клуба (status == nil — все статусы).
	ListByClub(ctx context.Context, clubID string, status *string, limit, offset int) ([]*model.Membership, error)
	// UpdateStatus меняет статус при условии, что текущий статус равен expected.
	UpdateStatus(ctx context.Context, id, expected, next string) (*model.Membership, error)
	// DeleteActive удаляет активное членство пользователя в клубе.
	// ErrNotFound — активного членства нет.
	DeleteActive(ctx context.Context, clubID, userEmail string) (*model.Membership, error)
}

type membershipRepo struct {
	db DBTX
}

// NewMembershipRepository создаёт репозиторий членств.
func NewMembershipRepository(db DBTX) MembershipRepository {
	return &membershipRepo{db: db}
}

const membershipColumns = `id, club_id, user_email, status, created_at, updated_at`

func scanMembership(row pgx.Row) (*model.Membership, error) {
	m := &model.Membership{}
	err := row.Scan(&m.ID, &m.ClubID, &m.UserEmail, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (r *membershipRepo) Create(ctx context.Context, m *model.Membership) error {
	query := `
		INSERT INTO memberships (id, club_id, user_email, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	m.UserEmail = strings.ToLower(m.UserEmail)
	err := r.db.QueryRow(ctx, query, m.ID, m.ClubID, m.UserEmail, m.Status).
		Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: заявка на членство уже подана", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка создания членства: %w", err)
	}
	return nil
}

func (r *membershipRepo) GetByID(ctx context.Context, id string) (*model.Membership, error) {
	query := fmt.Sprintf(`SELECT %s FROM memberships WHERE id = $1`, membershipColumns)

	m, err := scanMembership(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения членства: %w", err)
	}
	return m, nil
}

func (r *membershipRepo) ListByClub(ctx context.Context, clubID string, status *string, limit, offset int) ([]*model.Membership, error) {
	var b whereBuilder
	b.add("club_id = ?", clubID)
	if status != nil {
		b.add("status = ?", *status)
	}
	limit, offset = normalizePage(limit, offset)
	args := append(b.args, limit, offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM memberships
		%s
		ORDER BY created_at DESC, id ASC
		LIMIT $%d OFFSET $%d`, membershipColumns, b.sql(), len(b.args)+1, len(b.args)+2)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка членств: %w", err)
	}
	defer rows.Close()

	var result []*model.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования членства: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *membershipRepo) UpdateStatus(ctx context.Context, id, expected, next string) (*model.Membership, error) {
	query := fmt.Sprintf(`
		UPDATE memberships SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING %s`, membershipColumns)

	m, err := scanMembership(r.db.QueryRow(ctx, query, id, expected, next))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, resolveStaleWrite(ctx, r.db, "memberships", id)
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: у пользователя уже есть членство в клубе", ErrConflict)
		}
		return nil, fmt.Errorf("ошибка обновления статуса членства: %w", err)
	}
	return m, nil
}

func (r *membershipRepo) DeleteActive(ctx context.Context, clubID, userEmail string) (*model.Membership, error) {
	query := fmt.Sprintf(`
		DELETE FROM memberships
		WHERE club_id = $1 AND user_email = $2 AND status = 'active'
		RETURNING %s`, membershipColumns)

	m, err := scanMembership(r.db.QueryRow(ctx, query, clubID, strings.ToLower(userEmail)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления членства: %w", err)
	}
	return m, nil
}
