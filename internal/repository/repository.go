// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
// Каждая мутация — один оператор над одной записью: многострочные
// транзакции не используются.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности или устаревший ожидаемый статус.
	ErrConflict = errors.New("конфликт — запись уже существует или изменена")
	// ErrInvalidFilter — недопустимый параметр фильтрации или сортировки.
	ErrInvalidFilter = errors.New("недопустимый фильтр")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isForeignKeyViolation — ссылка на несуществующую запись (23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// resolveStaleWrite определяет причину, по которой условное обновление
// не затронуло ни одной строки: запись удалена (ErrNotFound) или её
// статус уже изменён конкурентным запросом (ErrConflict).
func resolveStaleWrite(ctx context.Context, db DBTX, table, id string) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("ошибка повторного чтения %s: %w", table, err)
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("%w: статус записи %s изменён конкурентным запросом", ErrConflict, table)
}
