// Package privacy implements the differential-privacy accountant and the
// post-hoc attack evaluator for federated training runs.
package privacy

import (
	"fmt"
	"math"

	"github.com/absmach/fedsim/pkg/fl"
	"gonum.org/v1/gonum/stat/distuv"
)

// Config holds the differential-privacy parameters of a training run.
type Config struct {
	L2NormClip      float64 `json:"l2_norm_clip"`
	NoiseMultiplier float64 `json:"noise_multiplier"`
	SamplingRatio   float64 `json:"sampling_ratio"`
	Delta           float64 `json:"delta"`
}

func (c Config) Validate() error {
	if c.NoiseMultiplier <= 0 {
		return fmt.Errorf("%w: noise multiplier must be positive, got %g",
			ErrInvalidPrivacyConfig, c.NoiseMultiplier)
	}
	if c.Delta <= 0 || c.Delta >= 1 {
		return fmt.Errorf("%w: delta must be in (0, 1), got %g", ErrInvalidPrivacyConfig, c.Delta)
	}
	if c.L2NormClip <= 0 {
		return fmt.Errorf("%w: clipping norm must be positive, got %g",
			ErrInvalidPrivacyConfig, c.L2NormClip)
	}
	if c.SamplingRatio <= 0 || c.SamplingRatio > 1 {
		return fmt.Errorf("%w: sampling ratio must be in (0, 1], got %g",
			ErrInvalidPrivacyConfig, c.SamplingRatio)
	}

	return nil
}

// BudgetSnapshot captures the consumed privacy budget after a round.
type BudgetSnapshot struct {
	Epsilon         float64 `json:"epsilon"`
	Delta           float64 `json:"delta"`
	NoiseMultiplier float64 `json:"noise_multiplier"`
	L2NormClip      float64 `json:"l2_norm_clip"`
	Steps           int     `json:"steps"`
}

// EpsilonFor computes the closed-form moments-accountant approximation
// eps = q*T / (sigma * sqrt(2 * ln(1.25/delta))) for T cumulative steps.
func EpsilonFor(q float64, steps int, sigma, delta float64) float64 {
	if steps <= 0 {
		return 0
	}

	return q * float64(steps) / (sigma * math.Sqrt(2*math.Log(1.25/delta)))
}

// Accountant tracks the cumulative privacy cost of a run and produces
// clipped and noised weight deltas. It holds no state beyond the
// configuration, the accumulated step count, and the realized epsilon.
type Accountant struct {
	cfg     Config
	noise   distuv.Normal
	steps   int
	epsilon float64
}

func NewAccountant(cfg Config) (*Accountant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Accountant{
		cfg:   cfg,
		noise: distuv.Normal{Mu: 0, Sigma: cfg.NoiseMultiplier * cfg.L2NormClip},
	}, nil
}

// Clip scales the delta so its L2 norm does not exceed the configured
// clipping norm. Deltas already within the bound pass through unchanged.
func (a *Accountant) Clip(delta fl.Weights) fl.Weights {
	norm := delta.Norm()
	if norm <= a.cfg.L2NormClip {
		return delta.Clone()
	}

	return delta.Scale(a.cfg.L2NormClip / norm)
}

// AddNoise adds independent zero-mean Gaussian noise with standard
// deviation noise_multiplier * l2_norm_clip to every parameter.
func (a *Accountant) AddNoise(delta fl.Weights) fl.Weights {
	out := delta.Clone()
	for i := range out {
		out[i] += a.noise.Rand()
	}

	return out
}

// ConsumeBudget accrues the given number of optimizer steps and recomputes
// the realized epsilon for the configured sampling ratio, noise multiplier,
// and delta target. The returned epsilon never decreases across calls.
func (a *Accountant) ConsumeBudget(steps int) float64 {
	if steps > 0 {
		a.steps += steps
	}
	a.epsilon = EpsilonFor(a.cfg.SamplingRatio, a.steps, a.cfg.NoiseMultiplier, a.cfg.Delta)

	return a.epsilon
}

func (a *Accountant) Epsilon() float64 {
	return a.epsilon
}

func (a *Accountant) Steps() int {
	return a.steps
}

func (a *Accountant) Snapshot() BudgetSnapshot {
	return BudgetSnapshot{
		Epsilon:         a.epsilon,
		Delta:           a.cfg.Delta,
		NoiseMultiplier: a.cfg.NoiseMultiplier,
		L2NormClip:      a.cfg.L2NormClip,
		Steps:           a.steps,
	}
}

// Reset clears the accumulated step count and epsilon. Used when a
// training run is reset, never mid-run.
func (a *Accountant) Reset() {
	a.steps = 0
	a.epsilon = 0
}
