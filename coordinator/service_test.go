package coordinator_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/fedsim/coordinator"
	"github.com/absmach/fedsim/pkg/cron"
	"github.com/absmach/fedsim/pkg/dataset"
	pkgerrors "github.com/absmach/fedsim/pkg/errors"
	"github.com/absmach/fedsim/pkg/fl"
	"github.com/absmach/fedsim/pkg/mqtt"
	"github.com/absmach/fedsim/pkg/results"
	"github.com/absmach/fedsim/pkg/storage"
	"github.com/absmach/fedsim/training"
)

// capturePubSub records published topics while dropping payloads.
type capturePubSub struct {
	mqtt.PubSub

	mu     sync.Mutex
	topics []string
}

func newCapturePubSub() *capturePubSub {
	return &capturePubSub{PubSub: mqtt.NewNoopPubSub()}
}

func (c *capturePubSub) Publish(ctx context.Context, topic string, msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.topics = append(c.topics, topic)

	return nil
}

func (c *capturePubSub) published() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.topics)
}

// slowAdapter holds every local training call until the gate opens,
// keeping runs active long enough to observe their running state.
type slowAdapter struct {
	*fakeAdapter
	gate chan struct{}
}

func (s *slowAdapter) TrainLocal(ctx context.Context, weights fl.Weights, p dataset.Partition, epochs, batchSize int) (fl.Weights, int, error) {
	select {
	case <-s.gate:
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}

	return s.fakeAdapter.TrainLocal(ctx, weights, p, epochs, batchSize)
}

func testEngine(adapter coordinator.ModelAdapter, source coordinator.PartitionSource) coordinator.Engine {
	return coordinator.Engine{
		NewAdapter:     func(seed int64) coordinator.ModelAdapter { return adapter },
		Source:         source,
		AttackSamples:  8,
		InversionSteps: 5,
	}
}

func newTestService(t *testing.T, engine coordinator.Engine) (coordinator.Service, *capturePubSub, *results.Store) {
	t.Helper()

	repos, err := storage.NewRepositories(storage.Config{Type: "memory"})
	require.NoError(t, err)

	dir := t.TempDir()
	store, err := results.NewStore(filepath.Join(dir, "results"), filepath.Join(dir, "models"))
	require.NoError(t, err)

	pubsub := newCapturePubSub()
	svc := coordinator.NewService(repos.Runs, store, pubsub, engine, slog.Default())

	return svc, pubsub, store
}

func waitForStatus(t *testing.T, svc coordinator.Service, runID, want string) {
	t.Helper()

	require.Eventually(t, func() bool {
		status, err := svc.Status(context.Background(), runID)

		return err == nil && status == want
	}, 5*time.Second, 10*time.Millisecond, "run never reached status %q", want)
}

// waitForTopic blocks until the topic shows up, which also means every
// write sequenced before the publish has landed.
func waitForTopic(t *testing.T, pubsub *capturePubSub, topic string) {
	t.Helper()

	require.Eventually(t, func() bool {
		return slices.Contains(pubsub.published(), topic)
	}, 5*time.Second, 10*time.Millisecond, "topic %q never published", topic)
}

func TestServiceCreateRun(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, testEngine(newFakeAdapter(4), fixedSource(40, 40)))
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, training.Run{Config: runConfig(2, 2)})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.NotEmpty(t, run.Name, "name is generated when omitted")
	assert.Equal(t, training.Pending, run.State)

	status, err := svc.Status(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "never run", status)

	named, err := svc.CreateRun(ctx, training.Run{Name: "pilot", Config: runConfig(2, 2)})
	require.NoError(t, err)
	assert.Equal(t, "pilot", named.Name)

	_, err = svc.CreateRun(ctx, training.Run{Config: runConfig(1, 2)})
	assert.ErrorIs(t, err, training.ErrConfiguration)

	scheduled, err := svc.CreateRun(ctx, training.Run{
		Config:   runConfig(2, 2),
		Schedule: "0 3 * * *",
	})
	require.NoError(t, err)
	assert.False(t, scheduled.NextRun.IsZero())

	_, err = svc.CreateRun(ctx, training.Run{
		Config:   runConfig(2, 2),
		Schedule: "not a schedule",
	})
	assert.ErrorIs(t, err, cron.ErrInvalidSchedule)
}

func TestServiceRunLifecycle(t *testing.T) {
	t.Parallel()

	adapter := newFakeAdapter(4)
	adapter.deltas[0] = fl.Weights{0.1, 0.2, 0.3, 0.4}
	adapter.deltas[1] = fl.Weights{0.4, 0.3, 0.2, 0.1}

	svc, pubsub, store := newTestService(t, testEngine(adapter, fixedSource(100, 300)))
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, training.Run{Config: runConfig(2, 2)})
	require.NoError(t, err)

	require.NoError(t, svc.StartRun(ctx, run.ID))
	waitForTopic(t, pubsub, "fedsim/runs/"+run.ID+"/completed")
	waitForStatus(t, svc, run.ID, "completed")

	topics := pubsub.published()
	assert.Contains(t, topics, "fedsim/runs/"+run.ID+"/started")
	roundTopic := "fedsim/runs/" + run.ID + "/round"
	assert.Equal(t, 2, countOf(topics, roundTopic))

	history, err := svc.History(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Round)
	assert.Equal(t, 2, history[1].Round)

	final, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, final.FinalMetrics)
	assert.Positive(t, final.CommCostMB)
	assert.False(t, final.StartTime.IsZero())
	assert.False(t, final.FinishTime.IsZero())
	assert.Empty(t, final.Error)

	institutions, err := svc.Institutions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, institutions, 2)
	assert.Equal(t, 100, institutions[0].SampleCount)
	assert.Equal(t, 300, institutions[1].SampleCount)

	artifact, err := store.LoadArtifact(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, artifact.RunID)
	assert.Len(t, artifact.History, 2)

	weights, version, err := store.LoadWeights(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Len(t, weights, 4)

	// The run is no longer active once it completes.
	assert.ErrorIs(t, svc.StopRun(ctx, run.ID), coordinator.ErrRunNotActive)
}

func TestServiceStopRun(t *testing.T) {
	t.Parallel()

	adapter := &slowAdapter{fakeAdapter: newFakeAdapter(4), gate: make(chan struct{})}
	svc, _, _ := newTestService(t, testEngine(adapter, fixedSource(40, 40)))
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, training.Run{Config: runConfig(2, 3)})
	require.NoError(t, err)
	require.NoError(t, svc.StartRun(ctx, run.ID))

	// While the gate is shut the run stays active.
	assert.ErrorIs(t, svc.StartRun(ctx, run.ID), coordinator.ErrRunActive)
	_, err = svc.UpdateRun(ctx, training.Run{ID: run.ID, Name: "renamed"})
	assert.ErrorIs(t, err, coordinator.ErrRunActive)
	assert.ErrorIs(t, svc.DeleteRun(ctx, run.ID), coordinator.ErrRunActive)

	require.NoError(t, svc.StopRun(ctx, run.ID))
	waitForStatus(t, svc, run.ID, "failed: stopped by operator")

	stopped, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, training.Failed, stopped.State)
	assert.Equal(t, "stopped by operator", stopped.Error)

	// A stopped run restarts from scratch.
	close(adapter.gate)
	require.NoError(t, svc.StartRun(ctx, run.ID))
	waitForStatus(t, svc, run.ID, "completed")

	restarted, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, restarted.Error)
	assert.Len(t, restarted.History, 3)
}

func TestServiceStartAndStopUnknownRun(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, testEngine(newFakeAdapter(4), fixedSource(40, 40)))
	ctx := context.Background()

	assert.ErrorIs(t, svc.StartRun(ctx, "missing"), pkgerrors.ErrNotFound)
	assert.ErrorIs(t, svc.StopRun(ctx, "missing"), pkgerrors.ErrNotFound)

	run, err := svc.CreateRun(ctx, training.Run{Config: runConfig(2, 1)})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.StopRun(ctx, run.ID), coordinator.ErrRunNotActive)
}

func TestServiceUpdateRun(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, testEngine(newFakeAdapter(4), fixedSource(40, 40)))
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, training.Run{Config: runConfig(2, 2)})
	require.NoError(t, err)

	renamed, err := svc.UpdateRun(ctx, training.Run{ID: run.ID, Name: "tuned"})
	require.NoError(t, err)
	assert.Equal(t, "tuned", renamed.Name)
	assert.Equal(t, run.Config, renamed.Config, "empty config leaves the old one in place")

	reconfigured, err := svc.UpdateRun(ctx, training.Run{ID: run.ID, Config: runConfig(3, 4)})
	require.NoError(t, err)
	assert.Equal(t, 3, reconfigured.Config.Institutions)
	assert.Equal(t, "tuned", reconfigured.Name)

	_, err = svc.UpdateRun(ctx, training.Run{ID: run.ID, Config: runConfig(1, 4)})
	assert.ErrorIs(t, err, training.ErrConfiguration)

	scheduled, err := svc.UpdateRun(ctx, training.Run{ID: run.ID, Schedule: "*/10 * * * *", Recurring: true})
	require.NoError(t, err)
	assert.False(t, scheduled.NextRun.IsZero())
	assert.True(t, scheduled.Recurring)

	cleared, err := svc.UpdateRun(ctx, training.Run{ID: run.ID})
	require.NoError(t, err)
	assert.Empty(t, cleared.Schedule)
	assert.True(t, cleared.NextRun.IsZero())

	_, err = svc.UpdateRun(ctx, training.Run{ID: "missing", Name: "x"})
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestServiceDeleteRun(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, testEngine(newFakeAdapter(4), fixedSource(40, 40)))
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, training.Run{Config: runConfig(2, 1)})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRun(ctx, run.ID))
	_, err = svc.GetRun(ctx, run.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteRun(ctx, run.ID), pkgerrors.ErrNotFound)
}

func TestServiceListRuns(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, testEngine(newFakeAdapter(4), fixedSource(40, 40)))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateRun(ctx, training.Run{Config: runConfig(2, 1)})
		require.NoError(t, err)
	}

	page, err := svc.ListRuns(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), page.Total)
	assert.Len(t, page.Runs, 3)

	page, err = svc.ListRuns(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), page.Total)
	assert.Equal(t, uint64(1), page.Offset)
	assert.Len(t, page.Runs, 1)
}

func TestServiceEvaluateAttacks(t *testing.T) {
	t.Parallel()

	svc, pubsub, store := newTestService(t, testEngine(newFakeAdapter(4), fixedSource(60, 60)))
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, training.Run{Config: runConfig(2, 1)})
	require.NoError(t, err)

	_, err = svc.EvaluateAttacks(ctx, run.ID)
	assert.ErrorIs(t, err, coordinator.ErrRunNotCompleted)

	require.NoError(t, svc.StartRun(ctx, run.ID))
	waitForTopic(t, pubsub, "fedsim/runs/"+run.ID+"/completed")
	waitForStatus(t, svc, run.ID, "completed")

	report, err := svc.EvaluateAttacks(ctx, run.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.OverallDefenseRate, 0.0)
	assert.LessOrEqual(t, report.OverallDefenseRate, 1.0)
	assert.False(t, report.EvaluatedAt.IsZero())

	evaluated, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, evaluated.Attack)

	artifact, err := store.LoadArtifact(run.ID)
	require.NoError(t, err)
	require.NotNil(t, artifact.Attack)

	_, err = svc.EvaluateAttacks(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestServicePredict(t *testing.T) {
	t.Parallel()

	svc, pubsub, _ := newTestService(t, testEngine(newFakeAdapter(4), fixedSource(60, 60)))
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, training.Run{Config: runConfig(2, 1)})
	require.NoError(t, err)

	rows := [][]float64{{1, 0}, {2, 1}}
	_, err = svc.Predict(ctx, run.ID, rows)
	assert.ErrorIs(t, err, coordinator.ErrRunNotCompleted)

	require.NoError(t, svc.StartRun(ctx, run.ID))
	waitForTopic(t, pubsub, "fedsim/runs/"+run.ID+"/completed")
	waitForStatus(t, svc, run.ID, "completed")

	predictions, err := svc.Predict(ctx, run.ID, rows)
	require.NoError(t, err)
	require.Len(t, predictions, 2)
	for _, p := range predictions {
		assert.InDelta(t, 0.75, p.FraudProbability, 1e-12)
		assert.True(t, p.IsFraud)
		assert.InDelta(t, 0.5, p.Confidence, 1e-12)
	}

	_, err = svc.Predict(ctx, run.ID, nil)
	assert.ErrorIs(t, err, training.ErrConfiguration)
}

func countOf(values []string, want string) int {
	n := 0
	for _, v := range values {
		if v == want {
			n++
		}
	}

	return n
}
