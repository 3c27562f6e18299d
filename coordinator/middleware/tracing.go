package middleware

import (
	"context"

	"github.com/absmach/fedsim/coordinator"
	"github.com/absmach/fedsim/pkg/institution"
	"github.com/absmach/fedsim/pkg/privacy"
	"github.com/absmach/fedsim/training"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) CreateRun(ctx context.Context, run training.Run) (training.Run, error) {
	ctx, span := tm.tracer.Start(ctx, "create-run", trace.WithAttributes(
		attribute.String("name", run.Name),
		attribute.Int("institutions", run.Config.Institutions),
		attribute.Int("rounds", run.Config.Rounds),
	))
	defer span.End()

	return tm.svc.CreateRun(ctx, run)
}

func (tm *tracing) GetRun(ctx context.Context, runID string) (training.Run, error) {
	ctx, span := tm.tracer.Start(ctx, "get-run", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.GetRun(ctx, runID)
}

func (tm *tracing) ListRuns(ctx context.Context, offset, limit uint64) (training.Page, error) {
	ctx, span := tm.tracer.Start(ctx, "list-runs", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListRuns(ctx, offset, limit)
}

func (tm *tracing) UpdateRun(ctx context.Context, run training.Run) (training.Run, error) {
	ctx, span := tm.tracer.Start(ctx, "update-run", trace.WithAttributes(
		attribute.String("id", run.ID),
	))
	defer span.End()

	return tm.svc.UpdateRun(ctx, run)
}

func (tm *tracing) DeleteRun(ctx context.Context, runID string) error {
	ctx, span := tm.tracer.Start(ctx, "delete-run", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.DeleteRun(ctx, runID)
}

func (tm *tracing) StartRun(ctx context.Context, runID string) error {
	ctx, span := tm.tracer.Start(ctx, "start-run", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.StartRun(ctx, runID)
}

func (tm *tracing) StopRun(ctx context.Context, runID string) error {
	ctx, span := tm.tracer.Start(ctx, "stop-run", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.StopRun(ctx, runID)
}

func (tm *tracing) Status(ctx context.Context, runID string) (string, error) {
	ctx, span := tm.tracer.Start(ctx, "get-status", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.Status(ctx, runID)
}

func (tm *tracing) History(ctx context.Context, runID string) ([]training.RoundRecord, error) {
	ctx, span := tm.tracer.Start(ctx, "get-history", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.History(ctx, runID)
}

func (tm *tracing) Budget(ctx context.Context, runID string) (privacy.BudgetSnapshot, error) {
	ctx, span := tm.tracer.Start(ctx, "get-budget", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.Budget(ctx, runID)
}

func (tm *tracing) Institutions(ctx context.Context, runID string) ([]institution.Institution, error) {
	ctx, span := tm.tracer.Start(ctx, "get-institutions", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.Institutions(ctx, runID)
}

func (tm *tracing) EvaluateAttacks(ctx context.Context, runID string) (privacy.AttackReport, error) {
	ctx, span := tm.tracer.Start(ctx, "evaluate-attacks", trace.WithAttributes(
		attribute.String("id", runID),
	))
	defer span.End()

	return tm.svc.EvaluateAttacks(ctx, runID)
}

func (tm *tracing) Predict(ctx context.Context, runID string, rows [][]float64) ([]coordinator.Prediction, error) {
	ctx, span := tm.tracer.Start(ctx, "predict", trace.WithAttributes(
		attribute.String("id", runID),
		attribute.Int("rows", len(rows)),
	))
	defer span.End()

	return tm.svc.Predict(ctx, runID, rows)
}
