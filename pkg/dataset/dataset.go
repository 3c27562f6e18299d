// Package dataset generates, loads, scales, and partitions the
// fraud-transaction data consumed by training runs.
package dataset

import (
	"errors"
	"fmt"
)

// FeatureDim is the width of a scaled feature vector: Amount plus V1..V28.
// The Time column is kept for generated files but never fed to the model.
const FeatureDim = 29

const (
	DefaultSamples      = 4000
	DefaultFraudRatio   = 0.2
	DefaultTestFraction = 0.2
)

var (
	// ErrInvalidConfig indicates dataset parameters outside their valid ranges.
	ErrInvalidConfig = errors.New("invalid dataset configuration")

	// ErrMalformedFile indicates a dataset file that cannot be parsed.
	ErrMalformedFile = errors.New("malformed dataset file")
)

// Config controls how the training population is produced.
type Config struct {
	Samples      int     `json:"samples"        toml:"samples"`
	FraudRatio   float64 `json:"fraud_ratio"    toml:"fraud_ratio"`
	TestFraction float64 `json:"test_fraction"  toml:"test_fraction"`
	CSVPath      string  `json:"csv_path,omitempty" toml:"csv_path"`
	Seed         int64   `json:"seed"           toml:"seed"`
}

// WithDefaults fills unset fields with the standard simulation values.
func (c Config) WithDefaults() Config {
	if c.Samples == 0 {
		c.Samples = DefaultSamples
	}
	if c.FraudRatio == 0 {
		c.FraudRatio = DefaultFraudRatio
	}
	if c.TestFraction == 0 {
		c.TestFraction = DefaultTestFraction
	}

	return c
}

func (c Config) Validate() error {
	if c.Samples <= 0 {
		return fmt.Errorf("%w: sample count must be positive, got %d", ErrInvalidConfig, c.Samples)
	}
	if c.FraudRatio <= 0 || c.FraudRatio >= 1 {
		return fmt.Errorf("%w: fraud ratio must be in (0, 1), got %g", ErrInvalidConfig, c.FraudRatio)
	}
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		return fmt.Errorf("%w: test fraction must be in (0, 1), got %g", ErrInvalidConfig, c.TestFraction)
	}

	return nil
}

// Row is one raw transaction before scaling.
type Row struct {
	Time   float64
	Amount float64
	V      [28]float64
	Class  int
}

func (r Row) features() []float64 {
	f := make([]float64, 0, FeatureDim)
	f = append(f, r.Amount)
	f = append(f, r.V[:]...)

	return f
}

// Dataset holds raw rows in generation or file order.
type Dataset struct {
	Rows []Row
}

func (d *Dataset) featureMatrix() [][]float64 {
	out := make([][]float64, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = r.features()
	}

	return out
}

func (d *Dataset) labels() []float64 {
	out := make([]float64, len(d.Rows))
	for i, r := range d.Rows {
		out[i] = float64(r.Class)
	}

	return out
}

// Partition is an immutable slice of the population assigned to one
// institution, already scaled.
type Partition struct {
	ID       int         `json:"id"`
	Features [][]float64 `json:"-"`
	Labels   []float64   `json:"-"`
}

func (p Partition) SampleCount() int {
	return len(p.Labels)
}

func (p Partition) FraudCount() int {
	var n int
	for _, y := range p.Labels {
		if y == 1 {
			n++
		}
	}

	return n
}

func (p Partition) FraudRatio() float64 {
	if len(p.Labels) == 0 {
		return 0
	}

	return float64(p.FraudCount()) / float64(len(p.Labels))
}
