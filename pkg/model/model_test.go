package model_test

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/absmach/fedsim/pkg/dataset"
	"github.com/absmach/fedsim/pkg/fl"
	"github.com/absmach/fedsim/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toyPartition builds a linearly separable two-feature problem: fraud
// whenever x0 + x1 clears a margin.
func toyPartition(seed uint64, samples int) dataset.Partition {
	rng := rand.New(rand.NewPCG(seed, 0))

	p := dataset.Partition{ID: 0}
	for len(p.Labels) < samples {
		x0 := 2*rng.Float64() - 1
		x1 := 2*rng.Float64() - 1
		sum := x0 + x1
		if sum > -0.5 && sum < 0.5 {
			continue
		}

		label := 0.0
		if sum >= 0.5 {
			label = 1.0
		}
		p.Features = append(p.Features, []float64{x0, x1})
		p.Labels = append(p.Labels, label)
	}

	return p
}

func TestParamCount(t *testing.T) {
	t.Parallel()

	n := model.New(1)
	assert.Equal(t, 4545, n.ParamCount())
	assert.Equal(t, dataset.FeatureDim, n.InputDim())

	small := model.NewWithLayers(1, 2, 8, 1)
	assert.Equal(t, 2*8+8+8+1, small.ParamCount())
}

func TestInitWeightsDeterministic(t *testing.T) {
	t.Parallel()

	first := model.New(42).InitWeights()
	second := model.New(42).InitWeights()
	require.Len(t, first, 4545)
	assert.Equal(t, first, second)

	other := model.New(43).InitWeights()
	assert.NotEqual(t, first, other)
}

func TestTrainLocalLearnsSeparableData(t *testing.T) {
	t.Parallel()

	n := model.NewWithLayers(7, 2, 8, 1)
	p := toyPartition(7, 240)

	w := n.InitWeights()
	trained, samples, err := n.TrainLocal(context.Background(), w, p, 60, 16)
	require.NoError(t, err)
	assert.Equal(t, 240, samples)

	metrics, err := n.Evaluate(trained, p.Features, p.Labels)
	require.NoError(t, err)
	assert.Greater(t, metrics.Accuracy, 0.85)
	assert.Greater(t, metrics.AUC, 0.85)
	assert.Positive(t, metrics.Loss)
}

func TestTrainLocalDeterministic(t *testing.T) {
	t.Parallel()

	n := model.NewWithLayers(3, 2, 4, 1)
	p := toyPartition(3, 80)
	w := n.InitWeights()

	first, _, err := n.TrainLocal(context.Background(), w, p, 3, 16)
	require.NoError(t, err)
	second, _, err := n.TrainLocal(context.Background(), w, p, 3, 16)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, n.InitWeights(), w, "training must not mutate the global weights")
}

func TestTrainLocalErrors(t *testing.T) {
	t.Parallel()

	n := model.NewWithLayers(1, 2, 4, 1)
	p := toyPartition(1, 40)
	w := n.InitWeights()

	_, _, err := n.TrainLocal(context.Background(), w, p, 0, 16)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, _, err = n.TrainLocal(context.Background(), w, p, 1, 0)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, _, err = n.TrainLocal(context.Background(), w, dataset.Partition{ID: 9}, 1, 16)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, _, err = n.TrainLocal(context.Background(), fl.Weights{1, 2, 3}, p, 1, 16)
	assert.ErrorIs(t, err, fl.ErrShapeMismatch)
}

func TestTrainLocalCancelled(t *testing.T) {
	t.Parallel()

	n := model.NewWithLayers(1, 2, 4, 1)
	p := toyPartition(1, 40)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := n.TrainLocal(ctx, n.InitWeights(), p, 5, 16)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPredict(t *testing.T) {
	t.Parallel()

	n := model.NewWithLayers(2, 2, 4, 1)
	w := n.InitWeights()

	probs, err := n.Predict(w, [][]float64{{0.5, -0.5}, {1, 1}})
	require.NoError(t, err)
	require.Len(t, probs, 2)
	for _, p := range probs {
		assert.Greater(t, p, 0.0)
		assert.Less(t, p, 1.0)
	}

	_, err = n.Predict(w, [][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = n.Predict(fl.Weights{1}, [][]float64{{1, 2}})
	assert.ErrorIs(t, err, fl.ErrShapeMismatch)
}

func TestEvaluateEdgeCases(t *testing.T) {
	t.Parallel()

	n := model.NewWithLayers(5, 2, 4, 1)
	w := n.InitWeights()

	_, err := n.Evaluate(w, nil, nil)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = n.Evaluate(w, [][]float64{{1, 2}}, []float64{0, 1})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	// single-class data has no ranking information
	metrics, err := n.Evaluate(w, [][]float64{{1, 2}, {3, 4}}, []float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.5, metrics.AUC)
}
