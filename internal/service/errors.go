// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthenticated — учётные данные отсутствуют или не извлекаются.
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrForbidden — учётные данные валидны, но прав недостаточно.
	ErrForbidden = errors.New("недостаточно прав")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrInvalidTransition — переход статуса недопустим из текущего статуса.
	ErrInvalidTransition = errors.New("недопустимый переход статуса")
	// ErrConflict — конкурентный переход, дубликат или нарушение конечного статуса.
	ErrConflict = errors.New("конфликт")
	// ErrIDPUnavailable — Identity Provider недоступен или не ответил вовремя.
	ErrIDPUnavailable = errors.New("Identity Provider недоступен")
)

// PropagationError — производные записи не применены после фиксации перехода.
// Основной переход остаётся в силе, расхождение исправит Reconciler.
type PropagationError struct {
	// Effect — невыполненный побочный эффект
	Effect string
	// Key — естественный ключ производной записи
	Key string
	// Attempts — сколько попыток выполнено
	Attempts int
	Err      error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("распространение %s (%s) не выполнено после %d попыток: %v",
		e.Effect, e.Key, e.Attempts, e.Err)
}

func (e *PropagationError) Unwrap() error {
	return e.Err
}

// IsPropagationWarning проверяет, что err — предупреждение о незавершённом распространении.
func IsPropagationWarning(err error) bool {
	var pe *PropagationError
	return errors.As(err, &pe)
}

// validationf оборачивает сообщение в ErrValidation.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// normalizeEmail приводит email к каноническому виду.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
