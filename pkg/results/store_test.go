package results_test

import (
	"path/filepath"
	"testing"
	"time"

	pkgerrors "github.com/absmach/fedsim/pkg/errors"
	"github.com/absmach/fedsim/pkg/fl"
	"github.com/absmach/fedsim/pkg/model"
	"github.com/absmach/fedsim/pkg/privacy"
	"github.com/absmach/fedsim/pkg/results"
	"github.com/absmach/fedsim/training"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *results.Store {
	t.Helper()

	dir := t.TempDir()
	store, err := results.NewStore(filepath.Join(dir, "results"), filepath.Join(dir, "models"))
	require.NoError(t, err)

	return store
}

func testArtifact(runID string) results.Artifact {
	return results.Artifact{
		RunID: runID,
		Name:  "artifact-test",
		Config: training.RunConfig{
			Institutions: 3,
			Rounds:       2,
			LocalEpochs:  1,
			BatchSize:    32,
			UseDP:        true,
		},
		FinalMetrics: model.Metrics{Accuracy: 0.93, AUC: 0.9, F1: 0.7, Loss: 0.2},
		History: []training.RoundRecord{
			{Round: 1, Metrics: model.Metrics{Accuracy: 0.9}, CommCostMB: 0.4},
			{Round: 2, Metrics: model.Metrics{Accuracy: 0.93}, CommCostMB: 0.4},
		},
		Budget:       privacy.BudgetSnapshot{Epsilon: 0.8, Delta: 1e-3, Steps: 6},
		SampleCounts: []int{80, 80, 80},
		CommCostMB:   0.8,
		CompletedAt:  time.Now().UTC(),
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	artifact := testArtifact("run-1")
	require.NoError(t, store.SaveArtifact("run-1", artifact))

	loaded, err := store.LoadArtifact("run-1")
	require.NoError(t, err)
	assert.Equal(t, artifact.RunID, loaded.RunID)
	assert.Equal(t, artifact.Config, loaded.Config)
	assert.Len(t, loaded.History, 2)
	assert.InDelta(t, artifact.Budget.Epsilon, loaded.Budget.Epsilon, 1e-12)
	assert.Equal(t, artifact.SampleCounts, loaded.SampleCounts)
}

func TestLoadArtifactMissing(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	_, err := store.LoadArtifact("no-such-run")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestSaveArtifactRejectsTraversal(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	cases := []string{
		"../../etc/passwd",
		"..\\..\\windows",
		"/absolute/path",
		"run.1",
		"run 1",
		"",
	}
	for _, id := range cases {
		err := store.SaveArtifact(id, testArtifact(id))
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidData, "id %q", id)
	}
}

func TestWeightsVersioning(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	v1 := fl.Weights{0.1, 0.2, 0.3}
	v2 := fl.Weights{0.4, 0.5, 0.6}

	version, err := store.SaveWeights("run-2", v1)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	version, err = store.SaveWeights("run-2", v2)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	loaded, latest, err := store.LoadWeights("run-2")
	require.NoError(t, err)
	assert.Equal(t, 2, latest)
	assert.Equal(t, v2, loaded)

	versions, err := store.Versions("run-2")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)
}

func TestLoadWeightsMissing(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	_, _, err := store.LoadWeights("run-3")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestDeleteRemovesEverything(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	require.NoError(t, store.SaveArtifact("run-4", testArtifact("run-4")))
	_, err := store.SaveWeights("run-4", fl.Weights{1, 2})
	require.NoError(t, err)

	require.NoError(t, store.Delete("run-4"))

	_, err = store.LoadArtifact("run-4")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	_, _, err = store.LoadWeights("run-4")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	// Deleting a run that never wrote anything is a no-op.
	assert.NoError(t, store.Delete("run-5"))
}
