package fl

import "errors"

var (
	ErrNoUpdates     = errors.New("no updates provided for aggregation")
	ErrAggregation   = errors.New("aggregation failed")
	ErrShapeMismatch = errors.New("weight vector shape mismatch")
)
