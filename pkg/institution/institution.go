// Package institution describes the simulated parties holding private
// data partitions.
package institution

import (
	"github.com/0x6flab/namegenerator"
	"github.com/absmach/fedsim/pkg/dataset"
)

var namegen = namegenerator.NewGenerator()

// Institution is one party in a federation. It never shares its raw
// partition, only model updates derived from it.
type Institution struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	SampleCount int     `json:"sample_count"`
	FraudCount  int     `json:"fraud_count"`
	FraudRatio  float64 `json:"fraud_ratio"`
}

// FromPartitions derives the institution roster for a split. Names are
// generated fresh on each call, so the roster should be built once per
// run and persisted with it.
func FromPartitions(parts []dataset.Partition) []Institution {
	insts := make([]Institution, 0, len(parts))
	for _, p := range parts {
		insts = append(insts, Institution{
			ID:          p.ID,
			Name:        namegen.Generate(),
			SampleCount: p.SampleCount(),
			FraudCount:  p.FraudCount(),
			FraudRatio:  p.FraudRatio(),
		})
	}

	return insts
}
