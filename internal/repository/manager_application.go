package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
)

// ManagerApplicationRepository — доступ к таблице manager_applications.
type ManagerApplicationRepository interface {
	// Create создаёт заявку. ErrConflict — заявка с таким email уже есть.
	Create(ctx context.Context, a *model.ManagerApplication) error
	GetByID(ctx context.Context, id string) (*model.ManagerApplication, error)
	GetByEmail(ctx context.Context, email string) (*model.ManagerApplication, error)
	List(ctx context.Context, status *string, limit, offset int) ([]*model.ManagerApplication, error)
	Count(ctx context.Context, status *string) (int, error)
	// UpdateStatus меняет статус при условии, что текущий статус равен expected.
	UpdateStatus(ctx context.Context, id, expected, next string) (*model.ManagerApplication, error)
	// Reapply переводит отклонённую заявку в pending, перезаписывая
	// name, reason, photo_url и applied_at. Условие — статус rejected.
	Reapply(ctx context.Context, a *model.ManagerApplication) error
}

type managerApplicationRepo struct {
	db DBTX
}

// NewManagerApplicationRepository создаёт репозиторий заявок на роль менеджера.
func NewManagerApplicationRepository(db DBTX) ManagerApplicationRepository {
	return &managerApplicationRepo{db: db}
}

const managerApplicationColumns = `id, email, name, reason, photo_url, status, applied_at, updated_at`

func scanManagerApplication(row pgx.Row) (*model.ManagerApplication, error) {
	a := &model.ManagerApplication{}
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Reason, &a.PhotoURL, &a.Status, &a.AppliedAt, &a.UpdatedAt)
	return a, err
}

func (r *managerApplicationRepo) Create(ctx context.Context, a *model.ManagerApplication) error {
	query := `
		INSERT INTO manager_applications (id, email, name, reason, photo_url, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING applied_at, updated_at`

	a.Email = strings.ToLower(a.Email)
	err := r.db.QueryRow(ctx, query, a.ID, a.Email, a.Name, a.Reason, a.PhotoURL, a.Status).
		Scan(&a.AppliedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: заявка для %s уже существует", ErrConflict, a.Email)
		}
		return fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return nil
}

func (r *managerApplicationRepo) GetByID(ctx context.Context, id string) (*model.ManagerApplication, error) {
	query := fmt.Sprintf(`SELECT %s FROM manager_applications WHERE id = $1`, managerApplicationColumns)

	a, err := scanManagerApplication(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return a, nil
}

func (r *managerApplicationRepo) GetByEmail(ctx context.Context, email string) (*model.ManagerApplication, error) {
	query := fmt.Sprintf(`SELECT %s FROM manager_applications WHERE email = $1`, managerApplicationColumns)

	a, err := scanManagerApplication(r.db.QueryRow(ctx, query, strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return a, nil
}

func (r *managerApplicationRepo) List(ctx context.Context, status *string, limit, offset int) ([]*model.ManagerApplication, error) {
	var b whereBuilder
	if status != nil {
		b.add("status = ?", *status)
	}
	limit, offset = normalizePage(limit, offset)
	args := append(b.args, limit, offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM manager_applications
		%s
		ORDER BY applied_at DESC, id ASC
		LIMIT $%d OFFSET $%d`, managerApplicationColumns, b.sql(), len(b.args)+1, len(b.args)+2)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка заявок: %w", err)
	}
	defer rows.Close()

	var result []*model.ManagerApplication
	for rows.Next() {
		a, err := scanManagerApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *managerApplicationRepo) Count(ctx context.Context, status *string) (int, error) {
	var b whereBuilder
	if status != nil {
		b.add("status = ?", *status)
	}
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM manager_applications `+b.sql(), b.args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта заявок: %w", err)
	}
	return count, nil
}

func (r *managerApplicationRepo) UpdateStatus(ctx context.Context, id, expected, next string) (*model.ManagerApplication, error) {
	query := fmt.Sprintf(`
		UPDATE manager_applications SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING %s`, managerApplicationColumns)

	a, err := scanManagerApplication(r.db.QueryRow(ctx, query, id, expected, next))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, resolveStaleWrite(ctx, r.db, "manager_applications", id)
		}
		return nil, fmt.Errorf("ошибка обновления статуса заявки: %w", err)
	}
	return a, nil
}

func (r *managerApplicationRepo) Reapply(ctx context.Context, a *model.ManagerApplication) error {
	query := fmt.Sprintf(`
		UPDATE manager_applications SET
			name = $2,
			reason = $3,
			photo_url = $4,
			status = 'pending',
			applied_at = now(),
			updated_at = now()
		WHERE id = $1 AND status = 'rejected'
		RETURNING %s`, managerApplicationColumns)

	updated, err := scanManagerApplication(r.db.QueryRow(ctx, query, a.ID, a.Name, a.Reason, a.PhotoURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return resolveStaleWrite(ctx, r.db, "manager_applications", a.ID)
		}
		return fmt.Errorf("ошибка повторной подачи заявки: %w", err)
	}
	*a = *updated
	return nil
}
