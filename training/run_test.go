package training_test

import (
	"fmt"
	"testing"

	"github.com/absmach/fedsim/pkg/dataset"
	"github.com/absmach/fedsim/training"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() training.RunConfig {
	return training.RunConfig{
		Institutions: 3,
		Rounds:       2,
		LocalEpochs:  1,
		BatchSize:    32,
		Dataset:      dataset.Config{Samples: 300},
	}
}

func TestRunConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc   string
		mutate func(cfg *training.RunConfig)
		err    error
	}{
		{
			desc:   "valid",
			mutate: func(cfg *training.RunConfig) {},
			err:    nil,
		},
		{
			desc:   "single institution",
			mutate: func(cfg *training.RunConfig) { cfg.Institutions = 1 },
			err:    training.ErrConfiguration,
		},
		{
			desc:   "negative institutions",
			mutate: func(cfg *training.RunConfig) { cfg.Institutions = -3 },
			err:    training.ErrConfiguration,
		},
		{
			desc:   "zero rounds",
			mutate: func(cfg *training.RunConfig) { cfg.Rounds = 0 },
			err:    training.ErrConfiguration,
		},
		{
			desc:   "zero local epochs",
			mutate: func(cfg *training.RunConfig) { cfg.LocalEpochs = 0 },
			err:    training.ErrConfiguration,
		},
		{
			desc:   "negative batch size",
			mutate: func(cfg *training.RunConfig) { cfg.BatchSize = -1 },
			err:    training.ErrConfiguration,
		},
		{
			desc:   "unknown strategy",
			mutate: func(cfg *training.RunConfig) { cfg.Strategy = "paxos" },
			err:    training.ErrConfiguration,
		},
		{
			desc: "threshold above institutions",
			mutate: func(cfg *training.RunConfig) {
				cfg.Strategy = training.StrategyThreshold
				cfg.Threshold = 5
			},
			err: training.ErrConfiguration,
		},
		{
			desc: "threshold below two",
			mutate: func(cfg *training.RunConfig) {
				cfg.Strategy = training.StrategyThreshold
				cfg.Threshold = 1
			},
			err: training.ErrConfiguration,
		},
		{
			desc: "threshold defaulted",
			mutate: func(cfg *training.RunConfig) {
				cfg.Strategy = training.StrategyThreshold
			},
			err: nil,
		},
		{
			desc:   "bad dataset fraud ratio",
			mutate: func(cfg *training.RunConfig) { cfg.Dataset.FraudRatio = 1.5 },
			err:    training.ErrConfiguration,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunConfigWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := training.RunConfig{}.WithDefaults()
	assert.Equal(t, training.DefInstitutions, cfg.Institutions)
	assert.Equal(t, training.DefRounds, cfg.Rounds)
	assert.Equal(t, training.DefLocalEpochs, cfg.LocalEpochs)
	assert.Equal(t, training.DefBatchSize, cfg.BatchSize)
	assert.Equal(t, dataset.DefaultSamples, cfg.Dataset.Samples)

	custom := training.RunConfig{Institutions: 2, Rounds: 1, LocalEpochs: 3, BatchSize: 8}.WithDefaults()
	assert.Equal(t, 2, custom.Institutions)
	assert.Equal(t, 1, custom.Rounds)
	assert.Equal(t, 3, custom.LocalEpochs)
	assert.Equal(t, 8, custom.BatchSize)
}

func TestResolvedStrategy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc     string
		cfg      training.RunConfig
		strategy string
	}{
		{
			desc:     "default without secure aggregation",
			cfg:      training.RunConfig{},
			strategy: training.StrategyFedAvg,
		},
		{
			desc:     "default with secure aggregation",
			cfg:      training.RunConfig{UseSecureAgg: true},
			strategy: training.StrategyMask,
		},
		{
			desc:     "explicit overrides toggle",
			cfg:      training.RunConfig{UseSecureAgg: true, Strategy: training.StrategyCKKS},
			strategy: training.StrategyCKKS,
		},
		{
			desc:     "explicit without toggle",
			cfg:      training.RunConfig{Strategy: training.StrategyMedian},
			strategy: training.StrategyMedian,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.strategy, tc.cfg.ResolvedStrategy())
		})
	}
}

func TestPrivacyConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	pc := cfg.PrivacyConfig(1000)
	require.NoError(t, pc.Validate())
	assert.Equal(t, 1.0, pc.L2NormClip)
	assert.Equal(t, 1.1, pc.NoiseMultiplier)
	assert.InDelta(t, 0.001, pc.Delta, 1e-12)
	assert.InDelta(t, 0.032, pc.SamplingRatio, 1e-12)

	cfg.L2NormClip = 2.5
	cfg.NoiseMultiplier = 0.8
	cfg.Delta = 1e-6
	pc = cfg.PrivacyConfig(1000)
	assert.Equal(t, 2.5, pc.L2NormClip)
	assert.Equal(t, 0.8, pc.NoiseMultiplier)
	assert.Equal(t, 1e-6, pc.Delta)

	// Batch larger than the partition clamps the sampling ratio.
	cfg = validConfig()
	cfg.BatchSize = 64
	pc = cfg.PrivacyConfig(10)
	assert.Equal(t, 1.0, pc.SamplingRatio)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state training.State
		str   string
	}{
		{training.Pending, "Pending"},
		{training.Running, "Running"},
		{training.Completed, "Completed"},
		{training.Failed, "Failed"},
		{training.State(42), "Unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.str, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.str, tc.state.String())
		})
	}
}

func TestRunStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc   string
		run    training.Run
		status string
	}{
		{
			desc:   "pending",
			run:    training.Run{State: training.Pending},
			status: "never run",
		},
		{
			desc: "running",
			run: training.Run{
				State:  training.Running,
				Round:  3,
				Config: training.RunConfig{Rounds: 10},
			},
			status: "running round 3 of 10",
		},
		{
			desc:   "completed",
			run:    training.Run{State: training.Completed},
			status: "completed",
		},
		{
			desc:   "failed",
			run:    training.Run{State: training.Failed, Error: "institution 2: training diverged"},
			status: "failed: institution 2: training diverged",
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.status, tc.run.Status())
		})
	}
}

func TestConfigurationErrorsCarryDetail(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Institutions = 1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 1")

	cfg = validConfig()
	cfg.Strategy = "paxos"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("%q", "paxos"))
}
