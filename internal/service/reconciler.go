// reconciler.go — фоновая сверка производных данных.
//
// Reconciler запускает горутину с ticker (CM_RECONCILE_INTERVAL), которая:
//  1. Находит расхождения через Propagator.Drift
//  2. Выдаёт недостающие RoleGrant активным участникам
//  3. Повышает глобальную роль заявителям с одобренной заявкой
//
// RoleGrant без активного членства (retained_grant) только попадают в отчёт.
//
// Prometheus-метрики:
//   - cm_reconcile_duration_seconds — длительность сверки
//   - cm_propagation_drift{kind} — число расхождений при последней сверке
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/clubhub/club-module/internal/domain/model"
)

// Reconciler — фоновый сервис исправления расхождений.
type Reconciler struct {
	propagator *Propagator
	interval   time.Duration
	logger     *slog.Logger

	// mu не даёт запускать две сверки одновременно (ticker и ручной запуск)
	mu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReconciler создаёт Reconciler.
func NewReconciler(propagator *Propagator, interval time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		propagator: propagator,
		interval:   interval,
		logger:     logger.With(slog.String("component", "reconciler")),
	}
}

// Start запускает фоновую горутину с периодической сверкой.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		r.logger.Info("Периодическая сверка запущена",
			slog.String("interval", r.interval.String()),
		)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Периодическая сверка остановлена")
				return
			case <-ticker.C:
				result, err := r.ReconcileNow(ctx)
				if err != nil {
					r.logger.Error("Ошибка периодической сверки",
						slog.String("error", err.Error()),
					)
					continue
				}
				level := slog.LevelDebug
				if result.Repaired > 0 || result.Failed > 0 {
					level = slog.LevelInfo
				}
				r.logger.Log(ctx, level, "Периодическая сверка завершена",
					slog.Int("missing_role_grants", result.MissingRoleGrants),
					slog.Int("missing_promotions", result.MissingPromotions),
					slog.Int("retained_grants", result.RetainedGrants),
					slog.Int("repaired", result.Repaired),
					slog.Int("failed", result.Failed),
				)
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

// ReconcileNow выполняет немедленную сверку и исправление.
func (r *Reconciler) ReconcileNow(ctx context.Context) (*model.ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	startedAt := time.Now().UTC()
	defer func() {
		reconcileDuration.Observe(time.Since(startedAt).Seconds())
	}()

	report, err := r.propagator.Drift(ctx)
	if err != nil {
		return nil, fmt.Errorf("поиск расхождений: %w", err)
	}

	result := &model.ReconcileResult{
		StartedAt:         startedAt,
		MissingRoleGrants: len(report.MissingRoleGrants),
		MissingPromotions: len(report.MissingPromotions),
		RetainedGrants:    len(report.RetainedGrants),
	}

	for i := range report.MissingRoleGrants {
		m := &report.MissingRoleGrants[i]
		if _, err := r.propagator.UpsertMemberGrant(ctx, m); err != nil {
			result.Failed++
			r.logger.Warn("RoleGrant не восстановлен",
				slog.String("membership_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Repaired++
	}

	for i := range report.MissingPromotions {
		a := &report.MissingPromotions[i]
		if _, err := r.propagator.PromoteApplicant(ctx, a); err != nil {
			result.Failed++
			r.logger.Warn("Глобальная роль не восстановлена",
				slog.String("application_id", a.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Repaired++
	}

	result.Duration = time.Since(startedAt)
	return result, nil
}

// Drift возвращает отчёт о расхождениях без исправления.
func (r *Reconciler) Drift(ctx context.Context) (*model.DriftReport, error) {
	return r.propagator.Drift(ctx)
}
