package coordinator_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/absmach/fedsim/coordinator"
	"github.com/absmach/fedsim/coordinator/mocks"
	pkgerrors "github.com/absmach/fedsim/pkg/errors"
	"github.com/absmach/fedsim/pkg/storage"
	"github.com/absmach/fedsim/training"
)

func newCronFixture(t *testing.T, interval time.Duration) (storage.RunRepository, *mocks.MockService, coordinator.CronScheduler, chan string) {
	t.Helper()

	repos, err := storage.NewRepositories(storage.Config{Type: "memory"})
	require.NoError(t, err)

	svc := new(mocks.MockService)
	started := make(chan string, 16)
	svc.On("StartRun", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		started <- args.String(1)
	}).Return(nil)

	scheduler := coordinator.NewCronScheduler(repos.Runs, svc, interval, slog.Default())

	return repos.Runs, svc, scheduler, started
}

func TestCronSchedulerTriggersDueRuns(t *testing.T) {
	t.Parallel()

	repo, svc, scheduler, started := newCronFixture(t, 10*time.Millisecond)
	ctx := context.Background()

	// Due shortly after the boot scan, so the scanner picks them up on a
	// regular tick instead of recomputing them as stale.
	due := time.Now().Add(30 * time.Millisecond)

	_, err := repo.Create(ctx, training.Run{
		ID:        "recurring-run",
		Schedule:  "* * * * *",
		Recurring: true,
		NextRun:   due,
	})
	require.NoError(t, err)
	_, err = repo.Create(ctx, training.Run{
		ID:       "one-time-run",
		Schedule: "0 0 * * *",
		NextRun:  due,
	})
	require.NoError(t, err)
	_, err = repo.Create(ctx, training.Run{ID: "unscheduled-run"})
	require.NoError(t, err)

	go func() {
		_ = scheduler.Start(ctx)
	}()
	defer scheduler.Stop()

	triggered := map[string]bool{}
	deadline := time.After(5 * time.Second)
	for len(triggered) < 2 {
		select {
		case id := <-started:
			triggered[id] = true
		case <-deadline:
			t.Fatalf("due runs never triggered, got %v", triggered)
		}
	}
	assert.True(t, triggered["recurring-run"])
	assert.True(t, triggered["one-time-run"])

	// The recurring run gets a fresh future activation, the one-time run
	// loses its schedule entirely.
	require.Eventually(t, func() bool {
		run, err := repo.Get(ctx, "recurring-run")

		return err == nil && run.NextRun.After(time.Now()) && run.Schedule == "* * * * *"
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		run, err := repo.Get(ctx, "one-time-run")

		return err == nil && run.Schedule == "" && run.NextRun.IsZero()
	}, 5*time.Second, 10*time.Millisecond)

	svc.AssertNotCalled(t, "StartRun", mock.Anything, "unscheduled-run")
}

func TestCronSchedulerRecomputesStaleActivationsOnBoot(t *testing.T) {
	t.Parallel()

	// A check interval this long never ticks during the test, isolating
	// the boot scan.
	repo, svc, scheduler, _ := newCronFixture(t, time.Hour)
	ctx := context.Background()

	_, err := repo.Create(ctx, training.Run{
		ID:        "stale-run",
		Schedule:  "0 0 * * *",
		Recurring: true,
		NextRun:   time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	go func() {
		_ = scheduler.Start(ctx)
	}()
	defer scheduler.Stop()

	// A missed activation is pushed forward, not fired late.
	require.Eventually(t, func() bool {
		run, err := repo.Get(ctx, "stale-run")

		return err == nil && run.NextRun.After(time.Now())
	}, 5*time.Second, 10*time.Millisecond)

	svc.AssertNotCalled(t, "StartRun", mock.Anything, "stale-run")
}

func TestCronSchedulerScheduleRun(t *testing.T) {
	t.Parallel()

	repo, _, scheduler, _ := newCronFixture(t, time.Hour)
	ctx := context.Background()

	_, err := repo.Create(ctx, training.Run{ID: "scheduled", Schedule: "0 6 * * *"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, training.Run{ID: "plain"})
	require.NoError(t, err)

	require.NoError(t, scheduler.ScheduleRun(ctx, "scheduled"))
	run, err := repo.Get(ctx, "scheduled")
	require.NoError(t, err)
	assert.True(t, run.NextRun.After(time.Now()))

	// Without a schedule there is nothing to compute.
	require.NoError(t, scheduler.ScheduleRun(ctx, "plain"))
	run, err = repo.Get(ctx, "plain")
	require.NoError(t, err)
	assert.True(t, run.NextRun.IsZero())

	assert.ErrorIs(t, scheduler.ScheduleRun(ctx, "missing"), pkgerrors.ErrNotFound)
}

func TestCronSchedulerUnscheduleRun(t *testing.T) {
	t.Parallel()

	repo, _, scheduler, _ := newCronFixture(t, time.Hour)
	ctx := context.Background()

	_, err := repo.Create(ctx, training.Run{
		ID:       "scheduled",
		Schedule: "0 6 * * *",
		NextRun:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, scheduler.UnscheduleRun(ctx, "scheduled"))
	run, err := repo.Get(ctx, "scheduled")
	require.NoError(t, err)
	assert.Empty(t, run.Schedule)
	assert.True(t, run.NextRun.IsZero())

	assert.ErrorIs(t, scheduler.UnscheduleRun(ctx, "missing"), pkgerrors.ErrNotFound)
}

func TestCronSchedulerStop(t *testing.T) {
	t.Parallel()

	_, _, scheduler, _ := newCronFixture(t, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- scheduler.Start(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	scheduler.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestCronSchedulerContextCancel(t *testing.T) {
	t.Parallel()

	_, _, scheduler, _ := newCronFixture(t, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- scheduler.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not observe cancellation")
	}
}
