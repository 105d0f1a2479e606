// Пакет service — бизнес-логика Club Module: проверки прав, жизненные
// циклы сущностей и распространение производных записей.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/clubhub/club-module/internal/domain/lifecycle"
	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
	"github.com/bigkaa/clubhub/club-module/internal/events"
	"github.com/bigkaa/clubhub/club-module/internal/repository"
)

// defaultStorageTimeout — таймаут обращения к хранилищу, если не задан.
const defaultStorageTimeout = 5 * time.Second

// storageTimeout возвращает d или значение по умолчанию.
func storageTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultStorageTimeout
	}
	return d
}

// mapRepoErr переводит ошибки репозитория в ошибки сервисного слоя.
// Прочие ошибки возвращаются как есть и отображаются в INTERNAL_ERROR.
func mapRepoErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrInvalidFilter):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return err
	}
}

// mapTransitionErr переводит *lifecycle.TransitionError в ErrInvalidTransition.
func mapTransitionErr(err error) error {
	var te *lifecycle.TransitionError
	if errors.As(err, &te) {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, te.Message)
	}
	return err
}

// parseID проверяет, что raw — UUID, и возвращает каноническую форму.
func parseID(raw, what string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", validationf("некорректный идентификатор %s: %q", what, raw)
	}
	return id.String(), nil
}

// parseStatusFilter проверяет статус из фильтра списка по перечислению сущности.
func parseStatusFilter(entity lifecycle.Entity, raw string) (string, error) {
	st, err := lifecycle.ParseStatus(entity, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return st, nil
}

// statusLabel — значение метки to для метрик переходов.
// Статусы вне перечисления сводятся к "unknown".
func statusLabel(entity lifecycle.Entity, to string) string {
	if _, err := lifecycle.ParseStatus(entity, to); err != nil {
		return "unknown"
	}
	return to
}

// recordTransition учитывает результат перехода в метриках.
func recordTransition(entity lifecycle.Entity, to string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrConflict):
		result = "conflict"
	case errors.Is(err, ErrInvalidTransition):
		result = "invalid"
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	transitionsTotal.WithLabelValues(string(entity), statusLabel(entity, to), result).Inc()
}

// withTimeout ограничивает ctx таймаутом хранилища.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, storageTimeout(d))
}

// publishTransition публикует событие перехода. Ошибка публикации
// не влияет на результат: событие носит уведомительный характер.
func publishTransition(ctx context.Context, pub events.Publisher, logger *slog.Logger, id, clubID string, r *TransitionResult) {
	if pub == nil || r == nil {
		return
	}
	e := events.LifecycleEvent{
		Entity:     string(r.Transition.Entity),
		ID:         id,
		ClubID:     clubID,
		From:       r.Transition.From,
		To:         r.Transition.To,
		Actor:      r.Actor,
		OccurredAt: time.Now().UTC(),
	}
	if r.Propagation != nil {
		e.Propagation = r.Propagation.Status
	}
	if err := pub.Publish(context.WithoutCancel(ctx), e); err != nil {
		logger.Warn("Событие перехода не опубликовано",
			slog.String("entity", e.Entity),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}
}

// actorEmail возвращает email инициатора или пустую строку.
func actorEmail(id *model.Identity) string {
	if id == nil {
		return ""
	}
	return id.Email
}
