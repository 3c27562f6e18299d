package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/fedsim/pkg/cron"
	"github.com/absmach/fedsim/pkg/storage"
	"github.com/absmach/fedsim/training"
)

const defaultCronCheckInterval = time.Minute

// CronScheduler triggers scheduled runs when they come due.
type CronScheduler interface {
	Start(ctx context.Context) error
	Stop()
	ScheduleRun(ctx context.Context, runID string) error
	UnscheduleRun(ctx context.Context, runID string) error
}

type cronScheduler struct {
	runs          storage.RunRepository
	service       Service
	logger        *slog.Logger
	checkInterval time.Duration
	stopChan      chan struct{}
}

func NewCronScheduler(runs storage.RunRepository, service Service, checkInterval time.Duration, logger *slog.Logger) CronScheduler {
	if checkInterval <= 0 {
		checkInterval = defaultCronCheckInterval
	}

	return &cronScheduler{
		runs:          runs,
		service:       service,
		logger:        logger,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

func (cs *cronScheduler) Start(ctx context.Context) error {
	if err := cs.loadScheduledRuns(ctx); err != nil {
		cs.logger.Warn("failed to load scheduled runs from storage", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(cs.checkInterval)
	defer ticker.Stop()

	cs.logger.Info("cron scheduler started", slog.Duration("check_interval", cs.checkInterval))

	for {
		select {
		case <-ctx.Done():
			cs.logger.Info("cron scheduler stopping")

			return ctx.Err()
		case <-cs.stopChan:
			cs.logger.Info("cron scheduler stopped")

			return nil
		case <-ticker.C:
			if err := cs.processScheduledRuns(ctx); err != nil {
				cs.logger.Error("error processing scheduled runs", slog.String("error", err.Error()))
			}
		}
	}
}

func (cs *cronScheduler) Stop() {
	close(cs.stopChan)
}

// ScheduleRun recomputes the next activation for one run.
func (cs *cronScheduler) ScheduleRun(ctx context.Context, runID string) error {
	run, err := cs.runs.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	if run.Schedule == "" {
		return nil
	}

	return cs.updateNextRun(ctx, run)
}

// UnscheduleRun clears a run's schedule so the scanner skips it.
func (cs *cronScheduler) UnscheduleRun(ctx context.Context, runID string) error {
	run, err := cs.runs.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	run.Schedule = ""
	run.NextRun = time.Time{}
	run.UpdatedAt = time.Now()

	if err := cs.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("failed to unschedule run: %w", err)
	}

	return nil
}

func (cs *cronScheduler) processScheduledRuns(ctx context.Context) error {
	runs, err := cs.listAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	now := time.Now()
	for i := range runs {
		run := runs[i]
		if run.Schedule == "" || run.NextRun.IsZero() || run.NextRun.After(now) {
			continue
		}

		if err := cs.triggerScheduledRun(ctx, run); err != nil {
			cs.logger.Error("failed to trigger scheduled run",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()))

			continue
		}

		if run.Recurring {
			if err := cs.updateNextRun(ctx, run); err != nil {
				cs.logger.Error("failed to update next run",
					slog.String("run_id", run.ID),
					slog.String("error", err.Error()))
			}
		} else if err := cs.UnscheduleRun(ctx, run.ID); err != nil {
			cs.logger.Error("failed to clear schedule for one-time run",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()))
		}
	}

	return nil
}

func (cs *cronScheduler) triggerScheduledRun(ctx context.Context, run training.Run) error {
	cs.logger.Info("triggering scheduled run",
		slog.String("run_id", run.ID),
		slog.String("name", run.Name))

	if err := cs.service.StartRun(ctx, run.ID); err != nil {
		return fmt.Errorf("failed to start scheduled run: %w", err)
	}

	return nil
}

func (cs *cronScheduler) updateNextRun(ctx context.Context, run training.Run) error {
	schedule, err := cron.Parse(run.Schedule)
	if err != nil {
		return fmt.Errorf("failed to parse schedule: %w", err)
	}

	// Reload before writing: StartRun may have persisted newer state
	// between the trigger and this update.
	fresh, err := cs.runs.Get(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to reload run: %w", err)
	}

	fresh.NextRun = schedule.Next(time.Now())
	fresh.UpdatedAt = time.Now()

	if err := cs.runs.Update(ctx, fresh); err != nil {
		return fmt.Errorf("failed to update run next activation: %w", err)
	}

	cs.logger.Debug("updated next activation for scheduled run",
		slog.String("run_id", run.ID),
		slog.Time("next_run", fresh.NextRun))

	return nil
}

// loadScheduledRuns recomputes stale activations after a restart.
func (cs *cronScheduler) loadScheduledRuns(ctx context.Context) error {
	runs, err := cs.listAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	loaded := 0
	for i := range runs {
		run := runs[i]
		if run.Schedule == "" {
			continue
		}

		if run.NextRun.IsZero() || run.NextRun.Before(time.Now()) {
			if err := cs.updateNextRun(ctx, run); err != nil {
				cs.logger.Warn("failed to update next activation for scheduled run on load",
					slog.String("run_id", run.ID),
					slog.String("error", err.Error()))

				continue
			}
		}
		loaded++
	}

	if loaded > 0 {
		cs.logger.Info("loaded scheduled runs from storage", slog.Int("count", loaded))
	}

	return nil
}

func (cs *cronScheduler) listAll(ctx context.Context) ([]training.Run, error) {
	const pageSize = 100

	var all []training.Run
	for offset := uint64(0); ; offset += pageSize {
		runs, total, err := cs.runs.List(ctx, offset, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, runs...)
		if uint64(len(all)) >= total || len(runs) == 0 {
			break
		}
	}

	return all, nil
}
