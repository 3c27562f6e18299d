package fl

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// MedianAggregator takes the coordinate-wise median of deltas, ignoring
// sample counts. Robust against a minority of outlier institutions.
type MedianAggregator struct{}

func NewMedianAggregator() Aggregator {
	return &MedianAggregator{}
}

func (m *MedianAggregator) Aggregate(updates []Update) (Weights, error) {
	if len(updates) == 0 {
		return nil, ErrNoUpdates
	}

	dim := len(updates[0].Delta)
	for _, u := range updates {
		if len(u.Delta) != dim {
			return nil, fmt.Errorf("%w: institution %d sent %d parameters, want %d",
				ErrShapeMismatch, u.InstitutionID, len(u.Delta), dim)
		}
	}

	out := make(Weights, dim)
	col := make([]float64, len(updates))
	for i := 0; i < dim; i++ {
		for j, u := range updates {
			col[j] = u.Delta[i]
		}
		sort.Float64s(col)
		out[i] = stat.Quantile(0.5, stat.LinInterp, col, nil)
	}

	return out, nil
}
