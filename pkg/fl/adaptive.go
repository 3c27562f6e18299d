package fl

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// MetricAccuracy is the update metric consulted by the adaptive strategy.
const MetricAccuracy = "accuracy"

// AdaptiveAggregator weights each delta by sample count scaled by the
// institution's reported validation accuracy, so better-performing parties
// pull the global model harder. Updates without a reported accuracy fall
// back to plain FedAvg weighting for the whole round.
type AdaptiveAggregator struct{}

func NewAdaptiveAggregator() Aggregator {
	return &AdaptiveAggregator{}
}

func (a *AdaptiveAggregator) Aggregate(updates []Update) (Weights, error) {
	if len(updates) == 0 {
		return nil, ErrNoUpdates
	}

	for _, u := range updates {
		if _, ok := u.Metrics[MetricAccuracy]; !ok {
			return NewFedAvgAggregator().Aggregate(updates)
		}
	}

	dim := len(updates[0].Delta)
	acc := make(Weights, dim)
	var total float64

	for _, u := range updates {
		if len(u.Delta) != dim {
			return nil, fmt.Errorf("%w: institution %d sent %d parameters, want %d",
				ErrShapeMismatch, u.InstitutionID, len(u.Delta), dim)
		}

		w := float64(u.NumSamples) * u.Metrics[MetricAccuracy]
		if w < 0 {
			return nil, fmt.Errorf("%w: institution %d produced a negative weight",
				ErrAggregation, u.InstitutionID)
		}

		floats.AddScaled(acc, w, u.Delta)
		total += w
	}

	if total == 0 {
		return nil, fmt.Errorf("%w: total adaptive weight is zero", ErrAggregation)
	}

	floats.Scale(1/total, acc)

	return acc, nil
}
