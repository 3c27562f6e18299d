package fl

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// FedAvgAggregator computes a sample-count-weighted mean of deltas.
type FedAvgAggregator struct{}

func NewFedAvgAggregator() Aggregator {
	return &FedAvgAggregator{}
}

func (f *FedAvgAggregator) Aggregate(updates []Update) (Weights, error) {
	acc, total, err := weightedSum(updates)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: total sample count is zero", ErrAggregation)
	}

	floats.Scale(1/float64(total), acc)

	return acc, nil
}

// weightedSum accumulates sum(numSamples_i * delta_i) and the total sample
// count. Shared by the weighted strategies.
func weightedSum(updates []Update) (Weights, int64, error) {
	if len(updates) == 0 {
		return nil, 0, ErrNoUpdates
	}

	dim := len(updates[0].Delta)
	acc := make(Weights, dim)
	var total int64

	for _, u := range updates {
		if len(u.Delta) != dim {
			return nil, 0, fmt.Errorf("%w: institution %d sent %d parameters, want %d",
				ErrShapeMismatch, u.InstitutionID, len(u.Delta), dim)
		}
		if u.NumSamples < 0 {
			return nil, 0, fmt.Errorf("%w: institution %d reported negative sample count",
				ErrAggregation, u.InstitutionID)
		}

		floats.AddScaled(acc, float64(u.NumSamples), u.Delta)
		total += int64(u.NumSamples)
	}

	return acc, total, nil
}
