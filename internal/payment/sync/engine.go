// Package sync содержит движок сверки платежей со шлюзами.
//
// Callback'и провайдеров теряются: сеть, рестарт, ошибка на нашей стороне.
// Движок периодически опрашивает шлюзы о зависших платежах, отменяет
// просроченные и считает метрики здоровья. Все исходы применяются через
// единый путь PaymentService.ApplyOutcome, поэтому гонка со встречным
// callback'ом безопасна.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/shop-backend/internal/payment/domain"
	"example.com/shop-backend/internal/payment/gateway"
	"example.com/shop-backend/internal/payment/repository"
	"example.com/shop-backend/pkg/config"
	"example.com/shop-backend/pkg/logger"
	"example.com/shop-backend/pkg/metrics"
	"example.com/shop-backend/pkg/scheduler"
)

// ErrInvalidPeriod возвращается при сверке с пустым или перевёрнутым периодом.
var ErrInvalidPeriod = errors.New("некорректный период сверки")

// Имена периодических задач движка.
const (
	JobPendingSync = "pending_sync"
	JobExpirySweep = "expiry_sweep"
	JobReconcile   = "reconcile"
	JobHealthCheck = "health_check"
)

// OutcomeApplier применяет исходы к платежам.
// Подмножество PaymentService, нужное движку.
type OutcomeApplier interface {
	ApplyOutcome(ctx context.Context, payment *domain.Payment, outcome domain.Outcome, providerTransID, rawPayload, changedBy string) (bool, error)
	Expire(ctx context.Context, payment *domain.Payment, note string) (bool, error)
}

// Report — итог одного прохода сверки.
type Report struct {
	Checked   int `json:"checked"`   // Опрошено платежей
	Completed int `json:"completed"` // Переведено в completed
	Failed    int `json:"failed"`    // Переведено в failed
	Unchanged int `json:"unchanged"` // Исход pending или проигранная гонка
	Errors    int `json:"errors"`    // Ошибки опроса шлюза
}

// HealthReport — снимок здоровья платёжного контура.
type HealthReport struct {
	Healthy        bool      `json:"healthy"`
	StuckCount     int64     `json:"stuck_count"`      // Зависшие дольше часа
	StuckThreshold int       `json:"stuck_threshold"`  // Порог для warning
	FailedLastHour int64     `json:"failed_last_hour"` // failed за последний час
	DoneLastHour   int64     `json:"done_last_hour"`   // completed за последний час
	CheckedAt      time.Time `json:"checked_at"`
}

// Engine — движок сверки платежей.
type Engine struct {
	repo     repository.PaymentRepository
	registry *gateway.Registry
	payments OutcomeApplier
	cfg      config.SyncConfig
}

// NewEngine создаёт движок сверки.
func NewEngine(repo repository.PaymentRepository, registry *gateway.Registry, payments OutcomeApplier, cfg config.SyncConfig) *Engine {
	return &Engine{
		repo:     repo,
		registry: registry,
		payments: payments,
		cfg:      cfg,
	}
}

// Jobs возвращает периодические задачи движка для регистрации в планировщике.
func (e *Engine) Jobs() []scheduler.Job {
	return []scheduler.Job{
		{Name: JobPendingSync, Interval: e.cfg.PendingInterval, Run: func(ctx context.Context) error {
			_, err := e.SyncPending(ctx)
			return err
		}},
		{Name: JobExpirySweep, Interval: e.cfg.ExpiryInterval, Run: func(ctx context.Context) error {
			_, err := e.ExpireOverdue(ctx)
			return err
		}},
		{Name: JobReconcile, Interval: e.cfg.ReconcileInterval, Run: func(ctx context.Context) error {
			now := time.Now()
			_, err := e.ReconcileRange(ctx, now.Add(-e.cfg.ReconcileInterval), now)
			return err
		}},
		{Name: JobHealthCheck, Interval: e.cfg.HealthInterval, Run: func(ctx context.Context) error {
			_, err := e.HealthCheck(ctx)
			return err
		}},
	}
}

// SyncPending опрашивает шлюзы о платежах, зависших в pending/processing
// дольше льготного окна, и применяет полученные исходы.
func (e *Engine) SyncPending(ctx context.Context) (*Report, error) {
	log := logger.Ctx(ctx)

	payments, err := e.repo.ListStuckOnline(ctx, e.cfg.GracePeriod, e.cfg.BatchSize)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues(JobPendingSync, "error").Inc()
		return nil, fmt.Errorf("ошибка выборки зависших платежей: %w", err)
	}

	report := e.queryAndApply(ctx, payments)
	metrics.SyncRunsTotal.WithLabelValues(JobPendingSync, "ok").Inc()

	log.Info().
		Int("checked", report.Checked).
		Int("completed", report.Completed).
		Int("failed", report.Failed).
		Int("unchanged", report.Unchanged).
		Int("errors", report.Errors).
		Msg("Сверка зависших платежей завершена")
	return report, nil
}

// ExpireOverdue отменяет платежи, просроченные по таймауту своего метода.
// Офлайн-методы (cod, banking) не истекают.
func (e *Engine) ExpireOverdue(ctx context.Context) (*Report, error) {
	log := logger.Ctx(ctx)
	report := &Report{}

	for _, adapter := range e.registry.Online() {
		expireAfter := adapter.ExpireAfter()
		if expireAfter <= 0 {
			continue
		}

		payments, err := e.repo.ListExpired(ctx, adapter.Method(), expireAfter, e.cfg.BatchSize)
		if err != nil {
			metrics.SyncRunsTotal.WithLabelValues(JobExpirySweep, "error").Inc()
			return nil, fmt.Errorf("ошибка выборки просроченных платежей %s: %w", adapter.Method(), err)
		}

		for _, p := range payments {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Checked++
			expired, err := e.payments.Expire(ctx, p, "Платёж истёк по таймауту")
			if err != nil {
				report.Errors++
				log.Error().Err(err).Str("payment_id", p.ID).Msg("Ошибка отмены просроченного платежа")
				continue
			}
			if expired {
				report.Failed++
			} else {
				report.Unchanged++
			}
		}
	}

	metrics.SyncRunsTotal.WithLabelValues(JobExpirySweep, "ok").Inc()
	log.Info().
		Int("checked", report.Checked).
		Int("expired", report.Failed).
		Msg("Sweep просроченных платежей завершён")
	return report, nil
}

// ReconcileRange сверяет все незавершённые онлайн-платежи, созданные
// в окне [from, to]. Для ручного запуска и суточной сверки.
func (e *Engine) ReconcileRange(ctx context.Context, from, to time.Time) (*Report, error) {
	log := logger.Ctx(ctx)

	if !to.After(from) {
		return nil, fmt.Errorf("%w: %s / %s", ErrInvalidPeriod, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	payments, err := e.repo.ListCreatedBetween(ctx, from, to)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues(JobReconcile, "error").Inc()
		return nil, fmt.Errorf("ошибка выборки платежей за период: %w", err)
	}

	report := e.queryAndApply(ctx, payments)
	metrics.SyncRunsTotal.WithLabelValues(JobReconcile, "ok").Inc()

	log.Info().
		Time("from", from).
		Time("to", to).
		Int("checked", report.Checked).
		Int("completed", report.Completed).
		Int("failed", report.Failed).
		Msg("Сверка за период завершена")
	return report, nil
}

// HealthCheck считает метрики здоровья платёжного контура.
func (e *Engine) HealthCheck(ctx context.Context) (*HealthReport, error) {
	log := logger.Ctx(ctx)
	now := time.Now()

	stuck, err := e.repo.CountStuckSince(ctx, time.Hour)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues(JobHealthCheck, "error").Inc()
		return nil, fmt.Errorf("ошибка подсчёта зависших платежей: %w", err)
	}
	failed, err := e.repo.CountByStatusSince(ctx, domain.StatusFailed, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта неуспешных платежей: %w", err)
	}
	completed, err := e.repo.CountByStatusSince(ctx, domain.StatusCompleted, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта успешных платежей: %w", err)
	}

	report := &HealthReport{
		Healthy:        stuck <= int64(e.cfg.StuckThreshold),
		StuckCount:     stuck,
		StuckThreshold: e.cfg.StuckThreshold,
		FailedLastHour: failed,
		DoneLastHour:   completed,
		CheckedAt:      now,
	}

	if !report.Healthy {
		log.Warn().
			Int64("stuck_count", stuck).
			Int("threshold", e.cfg.StuckThreshold).
			Msg("Слишком много зависших платежей")
	}

	metrics.SyncRunsTotal.WithLabelValues(JobHealthCheck, "ok").Inc()
	return report, nil
}

// Statistics возвращает агрегаты по платежам начиная с since.
func (e *Engine) Statistics(ctx context.Context, since time.Time) ([]repository.StatusStat, error) {
	return e.repo.StatsSince(ctx, since)
}

// queryAndApply опрашивает шлюз по каждому платежу и применяет исход.
// Ошибки отдельных платежей не прерывают проход.
func (e *Engine) queryAndApply(ctx context.Context, payments []*domain.Payment) *Report {
	log := logger.Ctx(ctx)
	report := &Report{}

	for i, p := range payments {
		if ctx.Err() != nil {
			return report
		}
		// Пауза между запросами — бережём rate limit провайдера
		if i > 0 && e.cfg.QueryDelay > 0 {
			select {
			case <-time.After(e.cfg.QueryDelay):
			case <-ctx.Done():
				return report
			}
		}

		report.Checked++

		adapter, err := e.registry.Get(p.Method)
		if err != nil {
			report.Errors++
			log.Error().Err(err).Str("payment_id", p.ID).Str("method", string(p.Method)).Msg("Нет адаптера для метода платежа")
			continue
		}

		result, err := adapter.QueryOrder(ctx, p)
		if err != nil {
			report.Errors++
			log.Warn().Err(err).Str("payment_id", p.ID).Msg("Ошибка опроса шлюза, платёж останется до следующего прохода")
			continue
		}

		applied, err := e.payments.ApplyOutcome(ctx, p, result.Outcome, result.ProviderTransID, result.RawResponse, "system")
		if err != nil {
			report.Errors++
			log.Error().Err(err).Str("payment_id", p.ID).Msg("Ошибка применения исхода при сверке")
			continue
		}
		switch {
		case !applied:
			report.Unchanged++
		case result.Outcome == domain.OutcomeSuccess:
			report.Completed++
		default:
			report.Failed++
		}
	}

	return report
}
