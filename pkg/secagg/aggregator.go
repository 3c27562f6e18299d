package secagg

import (
	"fmt"

	"github.com/absmach/fedsim/pkg/fl"
)

// MaskedAggregator implements fl.Aggregator over the masking protocol.
// Incoming deltas must already be masked and scaled by their institution's
// sample count; the aggregator cancels the masks and divides by the total
// sample weight.
type MaskedAggregator struct {
	masker *Masker
}

func NewMaskedAggregator(m *Masker) fl.Aggregator {
	return &MaskedAggregator{masker: m}
}

func (a *MaskedAggregator) Aggregate(updates []fl.Update) (fl.Weights, error) {
	sum, err := a.masker.UnmaskSum(updates)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, u := range updates {
		if u.NumSamples < 0 {
			return nil, fmt.Errorf("%w: institution %d reported negative sample count",
				fl.ErrAggregation, u.InstitutionID)
		}
		total += int64(u.NumSamples)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: total sample count is zero", fl.ErrAggregation)
	}

	return sum.Scale(1 / float64(total)), nil
}
