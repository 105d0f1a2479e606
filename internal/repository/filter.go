package repository

import (
	"fmt"
	"strings"
	"time"
)

// Границы пагинации.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// ClubFilter — фильтры и сортировка списка клубов.
type ClubFilter struct {
	// Search — подстрока в названии или описании (без учёта регистра)
	Search *string
	// Category — точное совпадение категории
	Category *string
	// Status — статус клуба
	Status *string
	// OwnerEmail — email владельца
	OwnerEmail *string
	// SortBy — created_at (по умолчанию), name, membership_fee
	SortBy string
	// SortOrder — asc или desc (по умолчанию desc)
	SortOrder string
	Limit     int
	Offset    int
}

// EventFilter — фильтры и сортировка списка мероприятий.
type EventFilter struct {
	ClubID *string
	Status *string
	// UpcomingOnly — только мероприятия, начинающиеся после Now
	UpcomingOnly bool
	// Now — точка отсчёта для UpcomingOnly (нулевое значение — time.Now())
	Now time.Time
	// SortBy — starts_at (по умолчанию), created_at, title, fee
	SortBy string
	// SortOrder — asc (по умолчанию) или desc
	SortOrder string
	Limit     int
	Offset    int
}

var clubSortColumns = map[string]string{
	"created_at":     "created_at",
	"name":           "name",
	"membership_fee": "membership_fee",
}

var eventSortColumns = map[string]string{
	"starts_at":  "starts_at",
	"created_at": "created_at",
	"title":      "title",
	"fee":        "fee",
}

// Validate проверяет параметры сортировки.
func (f ClubFilter) Validate() error {
	_, err := orderClause(f.SortBy, f.SortOrder, clubSortColumns, "created_at", "desc")
	return err
}

// Validate проверяет параметры сортировки.
func (f EventFilter) Validate() error {
	_, err := orderClause(f.SortBy, f.SortOrder, eventSortColumns, "starts_at", "asc")
	return err
}

func (f ClubFilter) where() (string, []any) {
	var b whereBuilder
	if f.Search != nil && strings.TrimSpace(*f.Search) != "" {
		b.add("(name ILIKE ? OR description ILIKE ?)", "%"+escapeLike(strings.TrimSpace(*f.Search))+"%")
	}
	if f.Category != nil {
		b.add("category = ?", *f.Category)
	}
	if f.Status != nil {
		b.add("status = ?", *f.Status)
	}
	if f.OwnerEmail != nil {
		b.add("owner_email = ?", strings.ToLower(*f.OwnerEmail))
	}
	return b.sql(), b.args
}

func (f EventFilter) where() (string, []any) {
	var b whereBuilder
	if f.ClubID != nil {
		b.add("club_id = ?", *f.ClubID)
	}
	if f.Status != nil {
		b.add("status = ?", *f.Status)
	}
	if f.UpcomingOnly {
		now := f.Now
		if now.IsZero() {
			now = time.Now()
		}
		b.add("starts_at >= ?", now.UTC())
	}
	return b.sql(), b.args
}

// whereBuilder собирает WHERE-условие с позиционными параметрами.
// Символ ? в условии заменяется номером очередного параметра;
// все ? одного условия ссылаются на один и тот же параметр.
type whereBuilder struct {
	conditions []string
	args       []any
}

func (b *whereBuilder) add(cond string, arg any) {
	b.args = append(b.args, arg)
	b.conditions = append(b.conditions, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(b.args))))
}

func (b *whereBuilder) sql() string {
	if len(b.conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.conditions, " AND ")
}

// orderClause строит ORDER BY по белому списку колонок.
// Вторичная сортировка по id делает порядок страниц детерминированным.
func orderClause(sortBy, sortOrder string, allowed map[string]string, defCol, defOrder string) (string, error) {
	col := defCol
	if sortBy != "" {
		c, ok := allowed[sortBy]
		if !ok {
			return "", fmt.Errorf("%w: сортировка по %q не поддерживается", ErrInvalidFilter, sortBy)
		}
		col = c
	}

	order := defOrder
	if sortOrder != "" {
		order = strings.ToLower(sortOrder)
	}
	if order != "asc" && order != "desc" {
		return "", fmt.Errorf("%w: порядок сортировки %q, допустимые: asc, desc", ErrInvalidFilter, sortOrder)
	}

	return fmt.Sprintf("ORDER BY %s %s, id ASC", col, strings.ToUpper(order)), nil
}

// normalizePage ограничивает limit диапазоном 1..MaxLimit, offset — неотрицательный.
func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// escapeLike экранирует спецсимволы шаблона LIKE.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
