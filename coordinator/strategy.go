package coordinator

import (
	"fmt"

	"github.com/absmach/fedsim/pkg/fl"
	"github.com/absmach/fedsim/pkg/secagg"
	"github.com/absmach/fedsim/training"
)

// strategy bundles everything the round loop needs from the configured
// aggregation scheme: the aggregator itself, the masker when deltas must
// be masked client-side, and whether local accuracy has to travel with
// each update.
type strategy struct {
	agg          fl.Aggregator
	masker       *secagg.Masker
	needAccuracy bool
}

// newStrategy resolves a run configuration into a concrete aggregation
// strategy. Secure schemes draw a fresh secret per run, so two runs of
// the same configuration never share mask streams.
func newStrategy(cfg training.RunConfig) (strategy, error) {
	switch name := cfg.ResolvedStrategy(); name {
	case training.StrategyFedAvg:
		return strategy{agg: fl.NewFedAvgAggregator()}, nil
	case training.StrategyMedian:
		return strategy{agg: fl.NewMedianAggregator()}, nil
	case training.StrategyAdaptive:
		return strategy{agg: fl.NewAdaptiveAggregator(), needAccuracy: true}, nil
	case training.StrategyMask:
		secret, err := secagg.NewSecret()
		if err != nil {
			return strategy{}, fmt.Errorf("%w: %s", training.ErrConfiguration, err)
		}
		masker, err := secagg.NewMasker(secret, cfg.Institutions)
		if err != nil {
			return strategy{}, fmt.Errorf("%w: %s", training.ErrConfiguration, err)
		}

		return strategy{agg: secagg.NewMaskedAggregator(masker), masker: masker}, nil
	case training.StrategyThreshold:
		threshold := cfg.Threshold
		if threshold == 0 {
			threshold = cfg.Institutions/2 + 1
		}
		agg, err := secagg.NewThresholdAggregator(cfg.Institutions, threshold)
		if err != nil {
			return strategy{}, fmt.Errorf("%w: %s", training.ErrConfiguration, err)
		}

		return strategy{agg: agg}, nil
	case training.StrategyCKKS:
		agg, err := secagg.NewHEAggregator(cfg.Institutions)
		if err != nil {
			return strategy{}, fmt.Errorf("%w: %s", training.ErrConfiguration, err)
		}

		return strategy{agg: agg}, nil
	default:
		return strategy{}, fmt.Errorf("%w: unknown aggregation strategy %q",
			training.ErrConfiguration, name)
	}
}
