package dataset_test

import (
	"testing"

	"github.com/absmach/fedsim/pkg/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestGenerateCounts(t *testing.T) {
	t.Parallel()

	cfg := dataset.Config{Samples: 1000, FraudRatio: 0.2, TestFraction: 0.2, Seed: 1}
	ds := dataset.Generate(cfg)
	require.Len(t, ds.Rows, 1000)

	var fraud int
	for _, r := range ds.Rows {
		if r.Class == 1 {
			fraud++
		}
	}
	assert.Equal(t, 200, fraud)
}

func TestGenerateDeterministic(t *testing.T) {
	t.Parallel()

	cfg := dataset.Config{Samples: 100, FraudRatio: 0.1, TestFraction: 0.2, Seed: 42}
	first := dataset.Generate(cfg)
	second := dataset.Generate(cfg)
	assert.Equal(t, first.Rows, second.Rows)

	cfg.Seed = 43
	third := dataset.Generate(cfg)
	assert.NotEqual(t, first.Rows, third.Rows)
}

func TestGenerateFraudSignature(t *testing.T) {
	t.Parallel()

	cfg := dataset.Config{Samples: 5000, FraudRatio: 0.3, TestFraction: 0.2, Seed: 7}
	ds := dataset.Generate(cfg)

	var fraudV1, legitV1, fraudV2 []float64
	for _, r := range ds.Rows {
		switch r.Class {
		case 1:
			fraudV1 = append(fraudV1, r.V[0])
			fraudV2 = append(fraudV2, r.V[1])
		default:
			legitV1 = append(legitV1, r.V[0])
		}

		assert.GreaterOrEqual(t, r.Time, 0.0)
		assert.LessOrEqual(t, r.Time, 172800.0)
		assert.Positive(t, r.Amount)
	}

	assert.InDelta(t, 2.5, stat.Mean(fraudV1, nil), 0.3, "fraud V1 shifts high")
	assert.InDelta(t, -2.0, stat.Mean(fraudV2, nil), 0.3, "fraud V2 shifts low")
	assert.InDelta(t, 0.0, stat.Mean(legitV1, nil), 0.1, "legit V1 stays centered")
}
