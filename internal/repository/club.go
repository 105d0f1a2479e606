package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
)

// ClubRepository — доступ к таблице clubs.
type ClubRepository interface {
	// Create создаёт клуб.
	Create(ctx context.Context, c *model.Club) error
	// GetByID возвращает клуб по ID.
	GetByID(ctx context.Context, id string) (*model.Club, error)
	// List возвращает клубы по фильтру.
	List(ctx context.Context, f ClubFilter) ([]*model.Club, error)
	// Count возвращает количество клубов по фильтру (без пагинации).
	Count(ctx context.Context, f ClubFilter) (int, error)
	// UpdateStatus меняет статус при условии, что текущий статус равен expected.
	// ErrNotFound — клуба нет, ErrConflict — статус уже изменён.
	UpdateStatus(ctx context.Context, id, expected, next string) (*model.Club, error)
	// Update применяет патч владельца. owner_email и status не изменяются.
	Update(ctx context.Context, id string, patch model.ClubPatch) (*model.Club, error)
}

type clubRepo struct {
	db DBTX
}

// NewClubRepository создаёт репозиторий клубов.
func NewClubRepository(db DBTX) ClubRepository {
	return &clubRepo{db: db}
}

const clubColumns = `id, owner_email, name, description, category, location,
	banner_url, membership_fee, status, created_at, updated_at`

func scanClub(row pgx.Row) (*model.Club, error) {
	c := &model.Club{}
	err := row.Scan(
		&c.ID, &c.OwnerEmail, &c.Name, &c.Description, &c.Category, &c.Location,
		&c.BannerURL, &c.MembershipFee, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (r *clubRepo) Create(ctx context.Context, c *model.Club) error {
	query := `
		INSERT INTO clubs (id, owner_email, name, description, category, location,
			banner_url, membership_fee, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	c.OwnerEmail = strings.ToLower(c.OwnerEmail)
	err := r.db.QueryRow(ctx, query,
		c.ID, c.OwnerEmail, c.Name, c.Description, c.Category, c.Location,
		c.BannerURL, c.MembershipFee, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: клуб с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания клуба: %w", err)
	}
	return nil
}

func (r *clubRepo) GetByID(ctx context.Context, id string) (*model.Club, error) {
	query := fmt.Sprintf(`SELECT %s FROM clubs WHERE id = $1`, clubColumns)

	c, err := scanClub(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения клуба: %w", err)
	}
	return c, nil
}

func (r *clubRepo) List(ctx context.Context, f ClubFilter) ([]*model.Club, error) {
	order, err := orderClause(f.SortBy, f.SortOrder, clubSortColumns, "created_at", "desc")
	if err != nil {
		return nil, err
	}
	where, args := f.where()
	limit, offset := normalizePage(f.Limit, f.Offset)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM clubs
		%s
		%s
		LIMIT $%d OFFSET $%d`, clubColumns, where, order, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка клубов: %w", err)
	}
	defer rows.Close()

	var result []*model.Club
	for rows.Next() {
		c, err := scanClub(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования клуба: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *clubRepo) Count(ctx context.Context, f ClubFilter) (int, error) {
	where, args := f.where()
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM clubs `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта клубов: %w", err)
	}
	return count, nil
}

func (r *clubRepo) UpdateStatus(ctx context.Context, id, expected, next string) (*model.Club, error) {
	query := fmt.Sprintf(`
		UPDATE clubs SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING %s`, clubColumns)

	c, err := scanClub(r.db.QueryRow(ctx, query, id, expected, next))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, resolveStaleWrite(ctx, r.db, "clubs", id)
		}
		return nil, fmt.Errorf("ошибка обновления статуса клуба: %w", err)
	}
	return c, nil
}

func (r *clubRepo) Update(ctx context.Context, id string, patch model.ClubPatch) (*model.Club, error) {
	if patch.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	setClauses := []string{"updated_at = now()"}
	args := []any{id}
	set := func(col string, v any) {
		args = append(args, v)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Category != nil {
		set("category", *patch.Category)
	}
	if patch.Location != nil {
		set("location", *patch.Location)
	}
	if patch.BannerURL != nil {
		set("banner_url", *patch.BannerURL)
	}
	if patch.MembershipFee != nil {
		set("membership_fee", *patch.MembershipFee)
	}

	query := fmt.Sprintf(`
		UPDATE clubs SET %s
		WHERE id = $1
		RETURNING %s`, strings.Join(setClauses, ", "), clubColumns)

	c, err := scanClub(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления клуба: %w", err)
	}
	return c, nil
}
