package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/absmach/fedsim/pkg/dataset"
	"github.com/absmach/fedsim/pkg/fl"
	"github.com/absmach/fedsim/pkg/model"
	"github.com/absmach/fedsim/pkg/privacy"
	"github.com/absmach/fedsim/training"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"
)

// ModelAdapter bridges the round loop to a trainable model. Implementations
// must be safe for concurrent TrainLocal calls.
type ModelAdapter interface {
	InitWeights() fl.Weights
	TrainLocal(ctx context.Context, weights fl.Weights, p dataset.Partition, epochs, batchSize int) (fl.Weights, int, error)
	Evaluate(weights fl.Weights, features [][]float64, labels []float64) (model.Metrics, error)
	Predict(weights fl.Weights, rows [][]float64) ([]float64, error)
}

// PartitionSource loads the data split for a run.
type PartitionSource func(cfg dataset.Config, institutions int) (*dataset.Split, error)

// Trainer drives the synchronous round loop for one run at a time. Global
// weights only ever change through aggregated deltas; institutions never
// see each other's updates.
type Trainer struct {
	adapter ModelAdapter
	source  PartitionSource
	onRound func(rec training.RoundRecord)

	mu       sync.RWMutex
	state    training.State
	round    int
	rounds   int
	failure  string
	weights  fl.Weights
	history  []training.RoundRecord
	budget   privacy.BudgetSnapshot
	split    *dataset.Split
	commCost float64
}

func NewTrainer(adapter ModelAdapter, source PartitionSource) *Trainer {
	if source == nil {
		source = dataset.Load
	}

	return &Trainer{
		adapter: adapter,
		source:  source,
	}
}

// OnRound registers a callback invoked after every completed round.
// It must be set before Run.
func (t *Trainer) OnRound(fn func(rec training.RoundRecord)) {
	t.onRound = fn
}

// Run executes a full training run. It trains every institution locally
// each round, aggregates the deltas with the configured strategy, applies
// the result to the global weights and evaluates them on the held-out
// test set. Any institution failure aborts the run.
func (t *Trainer) Run(ctx context.Context, cfg training.RunConfig) (training.Result, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return training.Result{}, err
	}

	split, err := t.source(cfg.Dataset, cfg.Institutions)
	if err != nil {
		return training.Result{}, fmt.Errorf("%w: %s", training.ErrConfiguration, err)
	}

	strat, err := newStrategy(cfg)
	if err != nil {
		return training.Result{}, err
	}

	avgSamples := averageSamples(split.Partitions)

	var acct *privacy.Accountant
	stepsPerRound := 0
	if cfg.UseDP {
		acct, err = privacy.NewAccountant(cfg.PrivacyConfig(avgSamples))
		if err != nil {
			return training.Result{}, fmt.Errorf("%w: %s", training.ErrConfiguration, err)
		}
		stepsPerRound = cfg.LocalEpochs * ((avgSamples + cfg.BatchSize - 1) / cfg.BatchSize)
	}

	start := time.Now()
	global := t.adapter.InitWeights()
	roundCost, err := roundCostMB(global, cfg.Institutions)
	if err != nil {
		return training.Result{}, err
	}

	t.begin(cfg, split)

	result := training.Result{SampleCounts: sampleCounts(split.Partitions)}
	for round := 1; round <= cfg.Rounds; round++ {
		select {
		case <-ctx.Done():
			t.fail(ctx.Err().Error())

			return training.Result{}, ctx.Err()
		default:
		}

		t.setRound(round)

		updates, err := t.localRound(ctx, cfg, strat, global, split, round, acct)
		if err != nil {
			t.fail(err.Error())

			return training.Result{}, err
		}

		delta, err := strat.agg.Aggregate(updates)
		if err != nil {
			t.fail(err.Error())

			return training.Result{}, err
		}

		global, err = global.Add(delta)
		if err != nil {
			t.fail(err.Error())

			return training.Result{}, err
		}

		metrics, err := t.adapter.Evaluate(global, split.Test.Features, split.Test.Labels)
		if err != nil {
			t.fail(err.Error())

			return training.Result{}, err
		}

		rec := training.RoundRecord{
			Round:       round,
			Metrics:     metrics,
			CommCostMB:  roundCost,
			CompletedAt: time.Now(),
		}
		if acct != nil {
			acct.ConsumeBudget(stepsPerRound)
			rec.Budget = acct.Snapshot()
		}

		t.appendRound(rec)
		if t.onRound != nil {
			t.onRound(rec)
		}

		result.FinalMetrics = metrics
		result.Budget = rec.Budget
	}

	if cfg.CompareBaseline {
		baseline, err := t.localBaseline(ctx, cfg, split)
		if err != nil {
			t.fail(err.Error())

			return training.Result{}, err
		}
		result.Baseline = baseline
	}

	t.complete(global)

	result.FinalWeights = global
	result.History = t.History()
	result.CommCostMB = roundCost * float64(cfg.Rounds)
	result.Elapsed = time.Since(start)

	return result, nil
}

// localRound runs every institution's local training in parallel and
// collects the deltas. Differential privacy runs before masking so noise
// is part of the protected quantity.
func (t *Trainer) localRound(ctx context.Context, cfg training.RunConfig, strat strategy, global fl.Weights, split *dataset.Split, round int, acct *privacy.Accountant) ([]fl.Update, error) {
	updates := make([]fl.Update, len(split.Partitions))

	g, gctx := errgroup.WithContext(ctx)
	for i := range split.Partitions {
		p := split.Partitions[i]
		g.Go(func() error {
			local, samples, err := t.adapter.TrainLocal(gctx, global, p, cfg.LocalEpochs, cfg.BatchSize)
			if err != nil {
				return fmt.Errorf("institution %d: %w", p.ID, err)
			}

			delta, err := local.Sub(global)
			if err != nil {
				return fmt.Errorf("institution %d: %w", p.ID, err)
			}

			if acct != nil {
				delta = acct.AddNoise(acct.Clip(delta))
			}

			if strat.masker != nil {
				masked, err := strat.masker.Mask(delta.Scale(float64(samples)), p.ID, round)
				if err != nil {
					return fmt.Errorf("institution %d: %w", p.ID, err)
				}
				delta = masked
			}

			u := fl.Update{
				RoundID:       round,
				InstitutionID: p.ID,
				Delta:         delta,
				NumSamples:    samples,
				ReceivedAt:    time.Now(),
			}
			if strat.needAccuracy {
				m, err := t.adapter.Evaluate(local, p.Features, p.Labels)
				if err != nil {
					return fmt.Errorf("institution %d: %w", p.ID, err)
				}
				u.Metrics = map[string]float64{fl.MetricAccuracy: m.Accuracy}
			}
			updates[i] = u

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	received := 0
	for _, u := range updates {
		if u.Delta != nil {
			received++
		}
	}
	if received != cfg.Institutions {
		return nil, fmt.Errorf("%w: received %d of %d updates",
			fl.ErrAggregation, received, cfg.Institutions)
	}

	return updates, nil
}

// localBaseline trains one isolated model per institution for the same
// effective epoch budget and evaluates each on the global test set.
func (t *Trainer) localBaseline(ctx context.Context, cfg training.RunConfig, split *dataset.Split) (*training.Baseline, error) {
	epochs := cfg.LocalEpochs * cfg.Rounds
	per := make([]model.Metrics, len(split.Partitions))

	g, gctx := errgroup.WithContext(ctx)
	for i := range split.Partitions {
		p := split.Partitions[i]
		g.Go(func() error {
			local, _, err := t.adapter.TrainLocal(gctx, t.adapter.InitWeights(), p, epochs, cfg.BatchSize)
			if err != nil {
				return fmt.Errorf("institution %d baseline: %w", p.ID, err)
			}
			m, err := t.adapter.Evaluate(local, split.Test.Features, split.Test.Labels)
			if err != nil {
				return fmt.Errorf("institution %d baseline: %w", p.ID, err)
			}
			per[i] = m

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mean := model.Metrics{}
	for _, m := range per {
		mean.Accuracy += m.Accuracy
		mean.AUC += m.AUC
		mean.Precision += m.Precision
		mean.Recall += m.Recall
		mean.F1 += m.F1
		mean.Loss += m.Loss
	}
	n := float64(len(per))
	mean.Accuracy /= n
	mean.AUC /= n
	mean.Precision /= n
	mean.Recall /= n
	mean.F1 /= n
	mean.Loss /= n

	return &training.Baseline{Mean: mean, PerInstitution: per}, nil
}

// Status renders the trainer's lifecycle as the user-facing status string.
func (t *Trainer) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r := training.Run{State: t.state, Round: t.round, Error: t.failure}
	r.Config.Rounds = t.rounds

	return r.Status()
}

// History returns a copy of the completed round records.
func (t *Trainer) History() []training.RoundRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]training.RoundRecord, len(t.history))
	copy(out, t.history)

	return out
}

// Metrics returns the latest evaluation, or false before any round
// completed.
func (t *Trainer) Metrics() (model.Metrics, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.history) == 0 {
		return model.Metrics{}, false
	}

	return t.history[len(t.history)-1].Metrics, true
}

func (t *Trainer) Budget() privacy.BudgetSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.budget
}

// Weights returns a copy of the current global weights, or false before
// the first completed run.
func (t *Trainer) Weights() (fl.Weights, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.weights == nil {
		return nil, false
	}

	return t.weights.Clone(), true
}

// Split returns the partitions of the last run.
func (t *Trainer) Split() *dataset.Split {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.split
}

// CommCostMB reports the cumulative simulated transfer volume.
func (t *Trainer) CommCostMB() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.commCost
}

// Reset discards all run state, returning the trainer to "never run".
func (t *Trainer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = training.Pending
	t.round = 0
	t.rounds = 0
	t.failure = ""
	t.weights = nil
	t.history = nil
	t.budget = privacy.BudgetSnapshot{}
	t.split = nil
	t.commCost = 0
}

func (t *Trainer) begin(cfg training.RunConfig, split *dataset.Split) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = training.Running
	t.round = 0
	t.rounds = cfg.Rounds
	t.failure = ""
	t.weights = nil
	t.history = nil
	t.budget = privacy.BudgetSnapshot{}
	t.split = split
	t.commCost = 0
}

func (t *Trainer) setRound(round int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.round = round
}

func (t *Trainer) appendRound(rec training.RoundRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = append(t.history, rec)
	t.budget = rec.Budget
	t.commCost += rec.CommCostMB
}

func (t *Trainer) complete(weights fl.Weights) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = training.Completed
	t.weights = weights
}

func (t *Trainer) fail(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = training.Failed
	t.failure = reason
}

// roundCostMB sizes one round of traffic: every institution downloads the
// global weights and uploads an update of the same shape.
func roundCostMB(w fl.Weights, institutions int) (float64, error) {
	payload, err := cbor.Marshal(w)
	if err != nil {
		return 0, fmt.Errorf("weight encoding: %w", err)
	}

	return float64(len(payload)*institutions*2) / (1024 * 1024), nil
}

func averageSamples(parts []dataset.Partition) int {
	if len(parts) == 0 {
		return 0
	}

	total := 0
	for _, p := range parts {
		total += p.SampleCount()
	}

	return total / len(parts)
}

func sampleCounts(parts []dataset.Partition) []int {
	counts := make([]int, len(parts))
	for i, p := range parts {
		counts[i] = p.SampleCount()
	}

	return counts
}
