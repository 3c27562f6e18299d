package fl

import "time"

// Update is one institution's contribution for one round.
type Update struct {
	RoundID       int                `json:"round_id"`
	InstitutionID int                `json:"institution_id"`
	Delta         Weights            `json:"delta"`
	NumSamples    int                `json:"num_samples"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	ReceivedAt    time.Time          `json:"received_at"`
}

// Aggregator combines per-institution updates into one global delta.
// Implementations must refuse partial input rather than aggregate a subset.
type Aggregator interface {
	Aggregate(updates []Update) (Weights, error)
}
