package secagg_test

import (
	"math/big"
	"testing"

	"github.com/absmach/fedsim/pkg/fl"
	"github.com/absmach/fedsim/pkg/secagg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdSplitReconstruct(t *testing.T) {
	t.Parallel()

	ta, err := secagg.NewThresholdAggregator(5, 3)
	require.NoError(t, err)

	v := fl.Weights{1.25, -3.5, 0, 42.0625}
	shares, err := ta.Split(v)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	// any 3 of the 5 relay share vectors recover the secret
	subsets := [][]int{{1, 2, 3}, {1, 3, 5}, {2, 4, 5}, {3, 4, 5}}
	for _, xs := range subsets {
		picked := make(map[int][]*big.Int, len(xs))
		for _, x := range xs {
			picked[x] = shares[x-1]
		}

		got, err := ta.Reconstruct(picked, len(v))
		require.NoError(t, err)
		for i := range v {
			assert.InDelta(t, v[i], got[i], 1e-5, "relays=%v coordinate=%d", xs, i)
		}
	}
}

func TestThresholdBelowThreshold(t *testing.T) {
	t.Parallel()

	ta, err := secagg.NewThresholdAggregator(5, 3)
	require.NoError(t, err)

	shares, err := ta.Split(fl.Weights{1, 2})
	require.NoError(t, err)

	picked := map[int][]*big.Int{1: shares[0], 2: shares[1]}
	got, err := ta.Reconstruct(picked, 2)
	assert.ErrorIs(t, err, secagg.ErrIncompleteRound)
	assert.Nil(t, got)
}

func TestThresholdSharesAreAdditive(t *testing.T) {
	t.Parallel()

	ta, err := secagg.NewThresholdAggregator(4, 2)
	require.NoError(t, err)

	a := fl.Weights{1.5, -2}
	b := fl.Weights{0.25, 4}

	sa, err := ta.Split(a)
	require.NoError(t, err)
	sb, err := ta.Split(b)
	require.NoError(t, err)

	summed := make(map[int][]*big.Int, 4)
	for x := 1; x <= 4; x++ {
		vec := make([]*big.Int, len(a))
		for i := range vec {
			vec[i] = new(big.Int).Add(sa[x-1][i], sb[x-1][i])
		}
		summed[x] = vec
	}

	got, err := ta.Reconstruct(summed, len(a))
	require.NoError(t, err)
	for i := range a {
		assert.InDelta(t, a[i]+b[i], got[i], 1e-5)
	}
}

func TestThresholdAggregateMatchesFedAvg(t *testing.T) {
	t.Parallel()

	ta, err := secagg.NewThresholdAggregator(3, 2)
	require.NoError(t, err)

	updates := []fl.Update{
		{InstitutionID: 0, Delta: fl.Weights{1, 2, 3}, NumSamples: 100},
		{InstitutionID: 1, Delta: fl.Weights{4, 5, 6}, NumSamples: 200},
		{InstitutionID: 2, Delta: fl.Weights{-1, 0, 1}, NumSamples: 100},
	}

	want, err := fl.NewFedAvgAggregator().Aggregate(updates)
	require.NoError(t, err)

	got, err := ta.Aggregate(updates)
	require.NoError(t, err)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-4)
	}
}

func TestThresholdAggregateIncompleteRound(t *testing.T) {
	t.Parallel()

	ta, err := secagg.NewThresholdAggregator(3, 2)
	require.NoError(t, err)

	_, err = ta.Aggregate([]fl.Update{
		{InstitutionID: 0, Delta: fl.Weights{1}, NumSamples: 10},
		{InstitutionID: 1, Delta: fl.Weights{2}, NumSamples: 10},
	})
	assert.ErrorIs(t, err, secagg.ErrIncompleteRound)
}

func TestNewThresholdAggregatorErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc         string
		institutions int
		threshold    int
	}{
		{desc: "single institution", institutions: 1, threshold: 1},
		{desc: "threshold of one", institutions: 3, threshold: 1},
		{desc: "threshold above institutions", institutions: 3, threshold: 4},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			_, err := secagg.NewThresholdAggregator(tc.institutions, tc.threshold)
			assert.ErrorIs(t, err, secagg.ErrInvalidConfig)
		})
	}
}
