package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedsim/coordinator"
	"github.com/absmach/fedsim/pkg/institution"
	"github.com/absmach/fedsim/pkg/privacy"
	"github.com/absmach/fedsim/training"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) CreateRun(ctx context.Context, run training.Run) (training.Run, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "create-run").Add(1)
		mm.latency.With("method", "create-run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.CreateRun(ctx, run)
}

func (mm *metricsMiddleware) GetRun(ctx context.Context, runID string) (training.Run, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-run").Add(1)
		mm.latency.With("method", "get-run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetRun(ctx, runID)
}

func (mm *metricsMiddleware) ListRuns(ctx context.Context, offset, limit uint64) (training.Page, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-runs").Add(1)
		mm.latency.With("method", "list-runs").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListRuns(ctx, offset, limit)
}

func (mm *metricsMiddleware) UpdateRun(ctx context.Context, run training.Run) (training.Run, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "update-run").Add(1)
		mm.latency.With("method", "update-run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.UpdateRun(ctx, run)
}

func (mm *metricsMiddleware) DeleteRun(ctx context.Context, runID string) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "delete-run").Add(1)
		mm.latency.With("method", "delete-run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.DeleteRun(ctx, runID)
}

func (mm *metricsMiddleware) StartRun(ctx context.Context, runID string) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "start-run").Add(1)
		mm.latency.With("method", "start-run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.StartRun(ctx, runID)
}

func (mm *metricsMiddleware) StopRun(ctx context.Context, runID string) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "stop-run").Add(1)
		mm.latency.With("method", "stop-run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.StopRun(ctx, runID)
}

func (mm *metricsMiddleware) Status(ctx context.Context, runID string) (string, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-status").Add(1)
		mm.latency.With("method", "get-status").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Status(ctx, runID)
}

func (mm *metricsMiddleware) History(ctx context.Context, runID string) ([]training.RoundRecord, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-history").Add(1)
		mm.latency.With("method", "get-history").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.History(ctx, runID)
}

func (mm *metricsMiddleware) Budget(ctx context.Context, runID string) (privacy.BudgetSnapshot, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-budget").Add(1)
		mm.latency.With("method", "get-budget").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Budget(ctx, runID)
}

func (mm *metricsMiddleware) Institutions(ctx context.Context, runID string) ([]institution.Institution, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-institutions").Add(1)
		mm.latency.With("method", "get-institutions").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Institutions(ctx, runID)
}

func (mm *metricsMiddleware) EvaluateAttacks(ctx context.Context, runID string) (privacy.AttackReport, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "evaluate-attacks").Add(1)
		mm.latency.With("method", "evaluate-attacks").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.EvaluateAttacks(ctx, runID)
}

func (mm *metricsMiddleware) Predict(ctx context.Context, runID string, rows [][]float64) ([]coordinator.Prediction, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "predict").Add(1)
		mm.latency.With("method", "predict").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Predict(ctx, runID, rows)
}
