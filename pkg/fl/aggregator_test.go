package fl_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absmach/fedsim/pkg/fl"
)

func TestFedAvgWeightedMean(t *testing.T) {
	t.Parallel()

	d1 := fl.Weights{1, 2, 3}
	d2 := fl.Weights{5, 6, 7}
	updates := []fl.Update{
		{InstitutionID: 1, Delta: d1, NumSamples: 5},
		{InstitutionID: 2, Delta: d2, NumSamples: 15},
	}

	got, err := fl.NewFedAvgAggregator().Aggregate(updates)
	require.NoError(t, err)

	for i := range got {
		want := (5*d1[i] + 15*d2[i]) / 20
		assert.InDelta(t, want, got[i], 1e-12)
	}
}

func TestFedAvgErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		updates []fl.Update
		wantErr error
	}{
		{
			name:    "no updates",
			updates: nil,
			wantErr: fl.ErrNoUpdates,
		},
		{
			name: "all sample counts zero",
			updates: []fl.Update{
				{InstitutionID: 1, Delta: fl.Weights{1, 1}, NumSamples: 0},
				{InstitutionID: 2, Delta: fl.Weights{2, 2}, NumSamples: 0},
			},
			wantErr: fl.ErrAggregation,
		},
		{
			name: "shape mismatch",
			updates: []fl.Update{
				{InstitutionID: 1, Delta: fl.Weights{1, 1}, NumSamples: 10},
				{InstitutionID: 2, Delta: fl.Weights{2}, NumSamples: 10},
			},
			wantErr: fl.ErrShapeMismatch,
		},
		{
			name: "negative sample count",
			updates: []fl.Update{
				{InstitutionID: 1, Delta: fl.Weights{1, 1}, NumSamples: -3},
			},
			wantErr: fl.ErrAggregation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := fl.NewFedAvgAggregator().Aggregate(tc.updates)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.wantErr), "expected %v, got %v", tc.wantErr, err)
			assert.Nil(t, got)
		})
	}
}

func TestFedAvgDeterministic(t *testing.T) {
	t.Parallel()

	updates := []fl.Update{
		{InstitutionID: 1, Delta: fl.Weights{0.5, -1.5, 2}, NumSamples: 100},
		{InstitutionID: 2, Delta: fl.Weights{-0.25, 3, 0}, NumSamples: 300},
	}

	first, err := fl.NewFedAvgAggregator().Aggregate(updates)
	require.NoError(t, err)
	second, err := fl.NewFedAvgAggregator().Aggregate(updates)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMedianAggregator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		updates []fl.Update
		want    fl.Weights
	}{
		{
			name: "odd count takes middle value",
			updates: []fl.Update{
				{InstitutionID: 1, Delta: fl.Weights{1, 10}, NumSamples: 5},
				{InstitutionID: 2, Delta: fl.Weights{2, 20}, NumSamples: 50},
				{InstitutionID: 3, Delta: fl.Weights{100, -5}, NumSamples: 500},
			},
			want: fl.Weights{2, 10},
		},
		{
			name: "even count averages middle pair",
			updates: []fl.Update{
				{InstitutionID: 1, Delta: fl.Weights{1}, NumSamples: 1},
				{InstitutionID: 2, Delta: fl.Weights{3}, NumSamples: 1},
			},
			want: fl.Weights{2},
		},
		{
			name: "outlier institution does not move the median",
			updates: []fl.Update{
				{InstitutionID: 1, Delta: fl.Weights{0.1}, NumSamples: 10},
				{InstitutionID: 2, Delta: fl.Weights{0.2}, NumSamples: 10},
				{InstitutionID: 3, Delta: fl.Weights{1e9}, NumSamples: 10},
			},
			want: fl.Weights{0.2},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := fl.NewMedianAggregator().Aggregate(tc.updates)
			require.NoError(t, err)
			require.Len(t, got, len(tc.want))
			for i := range tc.want {
				assert.InDelta(t, tc.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestMedianNoUpdates(t *testing.T) {
	t.Parallel()

	_, err := fl.NewMedianAggregator().Aggregate(nil)
	assert.True(t, errors.Is(err, fl.ErrNoUpdates))
}

func TestAdaptiveFavorsAccurateInstitution(t *testing.T) {
	t.Parallel()

	updates := []fl.Update{
		{
			InstitutionID: 1,
			Delta:         fl.Weights{1},
			NumSamples:    100,
			Metrics:       map[string]float64{fl.MetricAccuracy: 0.9},
		},
		{
			InstitutionID: 2,
			Delta:         fl.Weights{-1},
			NumSamples:    100,
			Metrics:       map[string]float64{fl.MetricAccuracy: 0.1},
		},
	}

	got, err := fl.NewAdaptiveAggregator().Aggregate(updates)
	require.NoError(t, err)
	// (100*0.9*1 + 100*0.1*-1) / (100*0.9 + 100*0.1) = 0.8
	assert.InDelta(t, 0.8, got[0], 1e-12)
}

func TestAdaptiveFallsBackWithoutMetrics(t *testing.T) {
	t.Parallel()

	updates := []fl.Update{
		{InstitutionID: 1, Delta: fl.Weights{2}, NumSamples: 5},
		{InstitutionID: 2, Delta: fl.Weights{6}, NumSamples: 15},
	}

	got, err := fl.NewAdaptiveAggregator().Aggregate(updates)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, got[0], 1e-12)
}
