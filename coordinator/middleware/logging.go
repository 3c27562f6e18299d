package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedsim/coordinator"
	"github.com/absmach/fedsim/pkg/institution"
	"github.com/absmach/fedsim/pkg/privacy"
	"github.com/absmach/fedsim/training"
)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) CreateRun(ctx context.Context, run training.Run) (resp training.Run, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", resp.ID),
				slog.String("name", resp.Name),
				slog.Int("institutions", resp.Config.Institutions),
				slog.Int("rounds", resp.Config.Rounds),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Create run failed", args...)

			return
		}
		lm.logger.Info("Create run completed successfully", args...)
	}(time.Now())

	return lm.svc.CreateRun(ctx, run)
}

func (lm *loggingMiddleware) GetRun(ctx context.Context, runID string) (resp training.Run, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get run failed", args...)

			return
		}
		lm.logger.Info("Get run completed successfully", args...)
	}(time.Now())

	return lm.svc.GetRun(ctx, runID)
}

func (lm *loggingMiddleware) ListRuns(ctx context.Context, offset, limit uint64) (resp training.Page, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List runs failed", args...)

			return
		}
		lm.logger.Info("List runs completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRuns(ctx, offset, limit)
}

func (lm *loggingMiddleware) UpdateRun(ctx context.Context, run training.Run) (resp training.Run, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", run.ID),
				slog.String("name", run.Name),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Update run failed", args...)

			return
		}
		lm.logger.Info("Update run completed successfully", args...)
	}(time.Now())

	return lm.svc.UpdateRun(ctx, run)
}

func (lm *loggingMiddleware) DeleteRun(ctx context.Context, runID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Delete run failed", args...)

			return
		}
		lm.logger.Info("Delete run completed successfully", args...)
	}(time.Now())

	return lm.svc.DeleteRun(ctx, runID)
}

func (lm *loggingMiddleware) StartRun(ctx context.Context, runID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Start run failed", args...)

			return
		}
		lm.logger.Info("Start run completed successfully", args...)
	}(time.Now())

	return lm.svc.StartRun(ctx, runID)
}

func (lm *loggingMiddleware) StopRun(ctx context.Context, runID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Stop run failed", args...)

			return
		}
		lm.logger.Info("Stop run completed successfully", args...)
	}(time.Now())

	return lm.svc.StopRun(ctx, runID)
}

func (lm *loggingMiddleware) Status(ctx context.Context, runID string) (status string, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
				slog.String("status", status),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get status failed", args...)

			return
		}
		lm.logger.Info("Get status completed successfully", args...)
	}(time.Now())

	return lm.svc.Status(ctx, runID)
}

func (lm *loggingMiddleware) History(ctx context.Context, runID string) (resp []training.RoundRecord, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
				slog.Int("rounds", len(resp)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get history failed", args...)

			return
		}
		lm.logger.Info("Get history completed successfully", args...)
	}(time.Now())

	return lm.svc.History(ctx, runID)
}

func (lm *loggingMiddleware) Budget(ctx context.Context, runID string) (resp privacy.BudgetSnapshot, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
				slog.Float64("epsilon", resp.Epsilon),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get budget failed", args...)

			return
		}
		lm.logger.Info("Get budget completed successfully", args...)
	}(time.Now())

	return lm.svc.Budget(ctx, runID)
}

func (lm *loggingMiddleware) Institutions(ctx context.Context, runID string) (resp []institution.Institution, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
				slog.Int("institutions", len(resp)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get institutions failed", args...)

			return
		}
		lm.logger.Info("Get institutions completed successfully", args...)
	}(time.Now())

	return lm.svc.Institutions(ctx, runID)
}

func (lm *loggingMiddleware) EvaluateAttacks(ctx context.Context, runID string) (resp privacy.AttackReport, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
				slog.Float64("defense_rate", resp.OverallDefenseRate),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Evaluate attacks failed", args...)

			return
		}
		lm.logger.Info("Evaluate attacks completed successfully", args...)
	}(time.Now())

	return lm.svc.EvaluateAttacks(ctx, runID)
}

func (lm *loggingMiddleware) Predict(ctx context.Context, runID string, rows [][]float64) (resp []coordinator.Prediction, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", runID),
				slog.Int("rows", len(rows)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Predict failed", args...)

			return
		}
		lm.logger.Info("Predict completed successfully", args...)
	}(time.Now())

	return lm.svc.Predict(ctx, runID, rows)
}
