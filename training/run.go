package training

import (
	"errors"
	"fmt"
	"time"

	"github.com/absmach/fedsim/pkg/dataset"
	"github.com/absmach/fedsim/pkg/fl"
	"github.com/absmach/fedsim/pkg/institution"
	"github.com/absmach/fedsim/pkg/model"
	"github.com/absmach/fedsim/pkg/privacy"
)

// ErrConfiguration indicates a run configuration rejected before any
// round starts. Never retried.
var ErrConfiguration = errors.New("invalid training configuration")

type State uint8

const (
	Pending State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Aggregation strategy names accepted in a RunConfig.
const (
	StrategyFedAvg    = "fedavg"
	StrategyMedian    = "median"
	StrategyAdaptive  = "adaptive"
	StrategyMask      = "mask"
	StrategyThreshold = "threshold"
	StrategyCKKS      = "ckks"
)

const (
	DefInstitutions = 5
	DefRounds       = 10
	DefLocalEpochs  = 5
	DefBatchSize    = 32
)

type RunConfig struct {
	Institutions    int            `json:"institutions"`
	Rounds          int            `json:"rounds"`
	LocalEpochs     int            `json:"local_epochs"`
	BatchSize       int            `json:"batch_size"`
	UseDP           bool           `json:"use_dp"`
	UseSecureAgg    bool           `json:"use_secure_agg"`
	Strategy        string         `json:"strategy,omitempty"`
	Threshold       int            `json:"threshold,omitempty"`
	L2NormClip      float64        `json:"l2_norm_clip,omitempty"`
	NoiseMultiplier float64        `json:"noise_multiplier,omitempty"`
	Delta           float64        `json:"delta,omitempty"`
	CompareBaseline bool           `json:"compare_baseline,omitempty"`
	Dataset         dataset.Config `json:"dataset"`
}

// WithDefaults fills unset counts with the standard simulation values.
func (c RunConfig) WithDefaults() RunConfig {
	if c.Institutions == 0 {
		c.Institutions = DefInstitutions
	}
	if c.Rounds == 0 {
		c.Rounds = DefRounds
	}
	if c.LocalEpochs == 0 {
		c.LocalEpochs = DefLocalEpochs
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefBatchSize
	}
	c.Dataset = c.Dataset.WithDefaults()

	return c
}

// ResolvedStrategy returns the effective aggregation strategy: the
// configured name, or the secure-aggregation default when the toggle is
// set and fedavg otherwise.
func (c RunConfig) ResolvedStrategy() string {
	if c.Strategy != "" {
		return c.Strategy
	}
	if c.UseSecureAgg {
		return StrategyMask
	}

	return StrategyFedAvg
}

func (c RunConfig) Validate() error {
	if c.Institutions < 2 {
		return fmt.Errorf("%w: at least 2 institutions required, got %d",
			ErrConfiguration, c.Institutions)
	}
	if c.Rounds <= 0 {
		return fmt.Errorf("%w: round count must be positive, got %d", ErrConfiguration, c.Rounds)
	}
	if c.LocalEpochs <= 0 {
		return fmt.Errorf("%w: local epoch count must be positive, got %d",
			ErrConfiguration, c.LocalEpochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrConfiguration, c.BatchSize)
	}

	switch s := c.ResolvedStrategy(); s {
	case StrategyFedAvg, StrategyMedian, StrategyAdaptive, StrategyMask, StrategyCKKS:
	case StrategyThreshold:
		if c.Threshold != 0 && (c.Threshold < 2 || c.Threshold > c.Institutions) {
			return fmt.Errorf("%w: threshold %d not in 2..%d",
				ErrConfiguration, c.Threshold, c.Institutions)
		}
	default:
		return fmt.Errorf("%w: unknown aggregation strategy %q", ErrConfiguration, s)
	}

	if err := c.Dataset.WithDefaults().Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrConfiguration, err)
	}

	return nil
}

// PrivacyConfig assembles the accountant configuration, deriving the
// delta target and sampling ratio from the average partition size when
// they are not explicitly set.
func (c RunConfig) PrivacyConfig(avgSamples int) privacy.Config {
	cfg := privacy.Config{
		L2NormClip:      c.L2NormClip,
		NoiseMultiplier: c.NoiseMultiplier,
		Delta:           c.Delta,
	}
	if cfg.L2NormClip == 0 {
		cfg.L2NormClip = 1.0
	}
	if cfg.NoiseMultiplier == 0 {
		cfg.NoiseMultiplier = 1.1
	}
	if avgSamples > 0 {
		if cfg.Delta == 0 {
			cfg.Delta = 1 / float64(avgSamples)
		}
		cfg.SamplingRatio = float64(c.BatchSize) / float64(avgSamples)
		if cfg.SamplingRatio > 1 {
			cfg.SamplingRatio = 1
		}
	}

	return cfg
}

// RoundRecord is one completed round in a run's append-only history.
type RoundRecord struct {
	Round       int                    `json:"round"`
	Metrics     model.Metrics          `json:"metrics"`
	Budget      privacy.BudgetSnapshot `json:"budget"`
	CommCostMB  float64                `json:"comm_cost_mb"`
	CompletedAt time.Time              `json:"completed_at"`
}

// Baseline holds the non-federated comparison: each institution trained
// alone for the same effective epochs, evaluated on the global test set.
type Baseline struct {
	Mean           model.Metrics   `json:"mean"`
	PerInstitution []model.Metrics `json:"per_institution,omitempty"`
}

// Result is the outcome of one completed training run.
type Result struct {
	FinalWeights fl.Weights             `json:"-"`
	FinalMetrics model.Metrics          `json:"final_metrics"`
	History      []RoundRecord          `json:"history"`
	Budget       privacy.BudgetSnapshot `json:"budget"`
	CommCostMB   float64                `json:"comm_cost_mb"`
	SampleCounts []int                  `json:"sample_counts"`
	Baseline     *Baseline              `json:"baseline,omitempty"`
	Elapsed      time.Duration          `json:"elapsed"`
}

type Run struct {
	ID           string                    `json:"id"`
	Name         string                    `json:"name"`
	State        State                     `json:"state"`
	Config       RunConfig                 `json:"config"`
	Round        int                       `json:"round"`
	Institutions []institution.Institution `json:"institutions,omitempty"`
	History      []RoundRecord             `json:"history,omitempty"`
	Budget       privacy.BudgetSnapshot    `json:"budget"`
	FinalMetrics *model.Metrics            `json:"final_metrics,omitempty"`
	Attack       *privacy.AttackReport     `json:"attack,omitempty"`
	Baseline     *Baseline                 `json:"baseline,omitempty"`
	CommCostMB   float64                   `json:"comm_cost_mb,omitempty"`
	Error        string                    `json:"error,omitempty"`
	Schedule     string                    `json:"schedule,omitempty"`
	Recurring    bool                      `json:"recurring,omitempty"`
	NextRun      time.Time                 `json:"next_run,omitempty"`
	StartTime    time.Time                 `json:"start_time"`
	FinishTime   time.Time                 `json:"finish_time"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

// Status renders the user-facing training status.
func (r Run) Status() string {
	switch r.State {
	case Running:
		return fmt.Sprintf("running round %d of %d", r.Round, r.Config.Rounds)
	case Completed:
		return "completed"
	case Failed:
		return "failed: " + r.Error
	default:
		return "never run"
	}
}

type Page struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
	Total  uint64 `json:"total"`
	Runs   []Run  `json:"runs"`
}
