package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
)

// EventRepository — доступ к таблице events.
type EventRepository interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context, f EventFilter) ([]*model.Event, error)
	Count(ctx context.Context, f EventFilter) (int, error)
	// UpdateStatus меняет статус при условии, что текущий статус равен expected.
	UpdateStatus(ctx context.Context, id, expected, next string) (*model.Event, error)
}

type eventRepo struct {
	db DBTX
}

// NewEventRepository создаёт репозиторий мероприятий.
func NewEventRepository(db DBTX) EventRepository {
	return &eventRepo{db: db}
}

const eventColumns = `id, club_id, title, description, location, starts_at, fee,
	status, created_at, updated_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	e := &model.Event{}
	err := row.Scan(
		&e.ID, &e.ClubID, &e.Title, &e.Description, &e.Location, &e.StartsAt, &e.Fee,
		&e.Status, &e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

func (r *eventRepo) Create(ctx context.Context, e *model.Event) error {
	query := `
		INSERT INTO events (id, club_id, title, description, location, starts_at, fee, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		e.ID, e.ClubID, e.Title, e.Description, e.Location, e.StartsAt, e.Fee, e.Status,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: мероприятие с таким ID уже существует", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка создания мероприятия: %w", err)
	}
	return nil
}

func (r *eventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events WHERE id = $1`, eventColumns)

	e, err := scanEvent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения мероприятия: %w", err)
	}
	return e, nil
}

func (r *eventRepo) List(ctx context.Context, f EventFilter) ([]*model.Event, error) {
	order, err := orderClause(f.SortBy, f.SortOrder, eventSortColumns, "starts_at", "asc")
	if err != nil {
		return nil, err
	}
	where, args := f.where()
	limit, offset := normalizePage(f.Limit, f.Offset)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM events
		%s
		%s
		LIMIT $%d OFFSET $%d`, eventColumns, where, order, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка мероприятий: %w", err)
	}
	defer rows.Close()

	var result []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования мероприятия: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *eventRepo) Count(ctx context.Context, f EventFilter) (int, error) {
	where, args := f.where()
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM events `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта мероприятий: %w", err)
	}
	return count, nil
}

func (r *eventRepo) UpdateStatus(ctx context.Context, id, expected, next string) (*model.Event, error) {
	query := fmt.Sprintf(`
		UPDATE events SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING %s`, eventColumns)

	e, err := scanEvent(r.db.QueryRow(ctx, query, id, expected, next))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, resolveStaleWrite(ctx, r.db, "events", id)
		}
		return nil, fmt.Errorf("ошибка обновления статуса мероприятия: %w", err)
	}
	return e, nil
}
