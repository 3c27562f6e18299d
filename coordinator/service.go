package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/google/uuid"

	"github.com/absmach/fedsim/pkg/cron"
	"github.com/absmach/fedsim/pkg/dataset"
	"github.com/absmach/fedsim/pkg/fl"
	"github.com/absmach/fedsim/pkg/institution"
	"github.com/absmach/fedsim/pkg/model"
	"github.com/absmach/fedsim/pkg/mqtt"
	"github.com/absmach/fedsim/pkg/privacy"
	"github.com/absmach/fedsim/pkg/results"
	"github.com/absmach/fedsim/pkg/storage"
	"github.com/absmach/fedsim/training"
)

// fraudThreshold is the probability above which a scored transaction is
// flagged.
const fraudThreshold = 0.5

var namegen = namegenerator.NewGenerator()

// Engine supplies the training collaborators runs execute with. The
// zero value uses the bundled gonum network and the synthetic dataset
// loader.
type Engine struct {
	// NewAdapter builds the per-run model. Runs seed it from their
	// dataset seed, so a restarted process reproduces the same network.
	NewAdapter func(seed int64) ModelAdapter
	// Source loads the per-institution partitions.
	Source PartitionSource
	// AttackSamples and InversionSteps bound the attack evaluator.
	// Non-positive values fall back to the evaluator defaults.
	AttackSamples  int
	InversionSteps int
}

func (e Engine) withDefaults() Engine {
	if e.NewAdapter == nil {
		e.NewAdapter = func(seed int64) ModelAdapter { return model.New(seed) }
	}
	if e.Source == nil {
		e.Source = dataset.Load
	}

	return e
}

type activeRun struct {
	trainer *Trainer
	cancel  context.CancelFunc
}

type service struct {
	runs   storage.RunRepository
	store  *results.Store
	pubsub mqtt.PubSub
	engine Engine
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*activeRun
	splits map[string]*dataset.Split
}

func NewService(runs storage.RunRepository, store *results.Store, pubsub mqtt.PubSub, engine Engine, logger *slog.Logger) Service {
	return &service{
		runs:   runs,
		store:  store,
		pubsub: pubsub,
		engine: engine.withDefaults(),
		logger: logger,
		active: make(map[string]*activeRun),
		splits: make(map[string]*dataset.Split),
	}
}

func (svc *service) CreateRun(ctx context.Context, run training.Run) (training.Run, error) {
	if err := run.Config.WithDefaults().Validate(); err != nil {
		return training.Run{}, err
	}

	run.ID = uuid.NewString()
	if run.Name == "" {
		run.Name = namegen.Generate()
	}
	run.State = training.Pending
	run.Round = 0
	run.History = nil
	run.Budget = privacy.BudgetSnapshot{}
	run.FinalMetrics = nil
	run.Attack = nil
	run.Baseline = nil
	run.CommCostMB = 0
	run.Error = ""

	now := time.Now()
	run.CreatedAt = now
	run.UpdatedAt = now
	run.NextRun = time.Time{}
	if run.Schedule != "" {
		schedule, err := cron.Parse(run.Schedule)
		if err != nil {
			return training.Run{}, err
		}
		run.NextRun = schedule.Next(now)
	}

	return svc.runs.Create(ctx, run)
}

func (svc *service) GetRun(ctx context.Context, runID string) (training.Run, error) {
	return svc.runs.Get(ctx, runID)
}

func (svc *service) ListRuns(ctx context.Context, offset, limit uint64) (training.Page, error) {
	runs, total, err := svc.runs.List(ctx, offset, limit)
	if err != nil {
		return training.Page{}, err
	}

	return training.Page{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Runs:   runs,
	}, nil
}

// UpdateRun replaces a run's name, configuration, and schedule. The
// lifecycle fields stay untouched; an active run cannot be updated.
func (svc *service) UpdateRun(ctx context.Context, run training.Run) (training.Run, error) {
	existing, err := svc.runs.Get(ctx, run.ID)
	if err != nil {
		return training.Run{}, err
	}
	if svc.isActive(run.ID) {
		return training.Run{}, ErrRunActive
	}

	if run.Name != "" {
		existing.Name = run.Name
	}
	if run.Config != (training.RunConfig{}) {
		if err := run.Config.WithDefaults().Validate(); err != nil {
			return training.Run{}, err
		}
		existing.Config = run.Config

		svc.mu.Lock()
		delete(svc.splits, run.ID)
		svc.mu.Unlock()
	}

	existing.Schedule = run.Schedule
	existing.Recurring = run.Recurring
	existing.NextRun = time.Time{}
	if run.Schedule != "" {
		schedule, err := cron.Parse(run.Schedule)
		if err != nil {
			return training.Run{}, err
		}
		existing.NextRun = schedule.Next(time.Now())
	}
	existing.UpdatedAt = time.Now()

	if err := svc.runs.Update(ctx, existing); err != nil {
		return training.Run{}, err
	}

	return existing, nil
}

// DeleteRun removes the run record together with its results artifact
// and weight snapshots. A running run must be stopped first.
func (svc *service) DeleteRun(ctx context.Context, runID string) error {
	if svc.isActive(runID) {
		return ErrRunActive
	}

	if err := svc.runs.Delete(ctx, runID); err != nil {
		return err
	}

	svc.mu.Lock()
	delete(svc.splits, runID)
	svc.mu.Unlock()

	if err := svc.store.Delete(runID); err != nil {
		svc.logger.Warn("failed to remove run artifacts",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
	}

	return nil
}

// StartRun launches the round loop for a run in its own goroutine. Any
// non-active run can be (re)started; a fresh start discards previous
// results.
func (svc *service) StartRun(ctx context.Context, runID string) error {
	run, err := svc.runs.Get(ctx, runID)
	if err != nil {
		return err
	}

	cfg := run.Config.WithDefaults()
	trainer := NewTrainer(svc.engine.NewAdapter(cfg.Dataset.Seed), svc.engine.Source)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	svc.mu.Lock()
	if _, ok := svc.active[runID]; ok {
		svc.mu.Unlock()
		cancel()

		return ErrRunActive
	}
	svc.active[runID] = &activeRun{trainer: trainer, cancel: cancel}
	delete(svc.splits, runID)
	svc.mu.Unlock()

	run.State = training.Running
	run.Round = 1
	run.History = nil
	run.Budget = privacy.BudgetSnapshot{}
	run.FinalMetrics = nil
	run.Attack = nil
	run.Baseline = nil
	run.CommCostMB = 0
	run.Error = ""
	run.StartTime = time.Now()
	run.FinishTime = time.Time{}
	run.UpdatedAt = run.StartTime
	if err := svc.runs.Update(ctx, run); err != nil {
		svc.release(runID)
		cancel()

		return err
	}

	go svc.execute(runCtx, trainer, run)

	return nil
}

// StopRun cancels an active run. The trainer observes the cancellation
// at the next round boundary and the run finishes as failed.
func (svc *service) StopRun(ctx context.Context, runID string) error {
	if _, err := svc.runs.Get(ctx, runID); err != nil {
		return err
	}

	svc.mu.Lock()
	entry, ok := svc.active[runID]
	svc.mu.Unlock()
	if !ok {
		return ErrRunNotActive
	}

	entry.cancel()

	return nil
}

func (svc *service) Status(ctx context.Context, runID string) (string, error) {
	run, err := svc.runs.Get(ctx, runID)
	if err != nil {
		return "", err
	}

	return run.Status(), nil
}

func (svc *service) History(ctx context.Context, runID string) ([]training.RoundRecord, error) {
	run, err := svc.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}

	return run.History, nil
}

func (svc *service) Budget(ctx context.Context, runID string) (privacy.BudgetSnapshot, error) {
	run, err := svc.runs.Get(ctx, runID)
	if err != nil {
		return privacy.BudgetSnapshot{}, err
	}

	return run.Budget, nil
}

func (svc *service) Institutions(ctx context.Context, runID string) ([]institution.Institution, error) {
	run, err := svc.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}

	return run.Institutions, nil
}

// EvaluateAttacks probes the stored final model with the membership
// inference and model inversion attacks. The run's split is regenerated
// deterministically from its configuration, so the evaluation works
// after a restart as well.
func (svc *service) EvaluateAttacks(ctx context.Context, runID string) (privacy.AttackReport, error) {
	run, err := svc.runs.Get(ctx, runID)
	if err != nil {
		return privacy.AttackReport{}, err
	}
	if run.State != training.Completed {
		return privacy.AttackReport{}, ErrRunNotCompleted
	}

	weights, _, err := svc.store.LoadWeights(runID)
	if err != nil {
		return privacy.AttackReport{}, err
	}

	cfg := run.Config.WithDefaults()
	split, err := svc.splitFor(runID, cfg)
	if err != nil {
		return privacy.AttackReport{}, err
	}

	var train [][]float64
	for _, p := range split.Partitions {
		train = append(train, p.Features...)
	}

	predictor := &weightedPredictor{
		adapter: svc.engine.NewAdapter(cfg.Dataset.Seed),
		weights: weights,
	}
	evaluator := privacy.NewAttackEvaluator(
		svc.engine.AttackSamples, svc.engine.InversionSteps, cfg.Dataset.Seed)
	report, err := evaluator.Run(predictor, train, split.Test.Features)
	if err != nil {
		return privacy.AttackReport{}, err
	}

	run.Attack = &report
	run.UpdatedAt = time.Now()
	if err := svc.runs.Update(ctx, run); err != nil {
		return privacy.AttackReport{}, err
	}

	if artifact, err := svc.store.LoadArtifact(runID); err == nil {
		artifact.Attack = &report
		if err := svc.store.SaveArtifact(runID, artifact); err != nil {
			svc.logger.Warn("failed to record attack report in results artifact",
				slog.String("run_id", runID),
				slog.String("error", err.Error()))
		}
	}

	return report, nil
}

// Predict scores raw transaction rows with a completed run's final
// model. Rows are standardized with the run's fitted scaler before they
// reach the network.
func (svc *service) Predict(ctx context.Context, runID string, rows [][]float64) ([]Prediction, error) {
	run, err := svc.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.State != training.Completed {
		return nil, ErrRunNotCompleted
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows to score", training.ErrConfiguration)
	}

	weights, _, err := svc.store.LoadWeights(runID)
	if err != nil {
		return nil, err
	}

	cfg := run.Config.WithDefaults()
	split, err := svc.splitFor(runID, cfg)
	if err != nil {
		return nil, err
	}

	scaled := make([][]float64, len(rows))
	for i, row := range rows {
		scaled[i] = split.Scaler.TransformRow(row)
	}

	probs, err := svc.engine.NewAdapter(cfg.Dataset.Seed).Predict(weights, scaled)
	if err != nil {
		return nil, err
	}

	predictions := make([]Prediction, len(probs))
	for i, p := range probs {
		predictions[i] = Prediction{
			FraudProbability: p,
			IsFraud:          p >= fraudThreshold,
			Confidence:       2 * math.Abs(p-fraudThreshold),
		}
	}

	return predictions, nil
}

// execute drives one run to completion and persists every state
// transition. It runs in its own goroutine; persistence and events use
// a context that survives cancellation so a stopped run still records
// its fate.
func (svc *service) execute(ctx context.Context, trainer *Trainer, run training.Run) {
	defer svc.release(run.ID)

	persistCtx := context.WithoutCancel(ctx)
	cfg := run.Config.WithDefaults()

	trainer.OnRound(func(rec training.RoundRecord) {
		svc.recordRound(persistCtx, run.ID, cfg.Rounds, rec, trainer)
		svc.publish(persistCtx, topicRound, run.ID, roundEvent{
			RunID:       run.ID,
			Round:       rec.Round,
			Accuracy:    rec.Metrics.Accuracy,
			AUC:         rec.Metrics.AUC,
			Loss:        rec.Metrics.Loss,
			Epsilon:     rec.Budget.Epsilon,
			CommCostMB:  rec.CommCostMB,
			CompletedAt: rec.CompletedAt,
		})
	})

	svc.publish(persistCtx, topicStarted, run.ID, startedEvent{
		RunID:        run.ID,
		Name:         run.Name,
		Institutions: cfg.Institutions,
		Rounds:       cfg.Rounds,
		Strategy:     cfg.ResolvedStrategy(),
		StartedAt:    run.StartTime,
	})

	result, err := trainer.Run(ctx, run.Config)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.Canceled) {
			reason = "stopped by operator"
		}
		svc.finishFailed(persistCtx, run.ID, reason)

		return
	}

	svc.finishCompleted(persistCtx, run.ID, cfg, result)
}

// recordRound folds one completed round into the persisted run so
// readers observe progress without touching the live trainer.
func (svc *service) recordRound(ctx context.Context, runID string, rounds int, rec training.RoundRecord, trainer *Trainer) {
	run, err := svc.runs.Get(ctx, runID)
	if err != nil {
		svc.logger.Warn("failed to load run for round snapshot",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))

		return
	}

	if rec.Round == 1 {
		if split := trainer.Split(); split != nil {
			run.Institutions = institution.FromPartitions(split.Partitions)
		}
	}
	run.History = append(run.History, rec)
	run.Budget = rec.Budget
	run.CommCostMB += rec.CommCostMB
	run.Round = rec.Round
	if rec.Round < rounds {
		run.Round = rec.Round + 1
	}
	run.UpdatedAt = time.Now()

	if err := svc.runs.Update(ctx, run); err != nil {
		svc.logger.Warn("failed to persist round snapshot",
			slog.String("run_id", runID),
			slog.Int("round", rec.Round),
			slog.String("error", err.Error()))
	}
}

func (svc *service) finishCompleted(ctx context.Context, runID string, cfg training.RunConfig, result training.Result) {
	run, err := svc.runs.Get(ctx, runID)
	if err != nil {
		svc.logger.Error("failed to load run for completion",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))

		return
	}

	now := time.Now()
	metrics := result.FinalMetrics
	run.State = training.Completed
	run.Round = cfg.Rounds
	run.History = result.History
	run.Budget = result.Budget
	run.FinalMetrics = &metrics
	run.Baseline = result.Baseline
	run.CommCostMB = result.CommCostMB
	run.Error = ""
	run.FinishTime = now
	run.UpdatedAt = now

	if err := svc.runs.Update(ctx, run); err != nil {
		svc.logger.Error("failed to persist completed run",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
	}

	if err := svc.store.SaveArtifact(runID, results.Artifact{
		RunID:        runID,
		Name:         run.Name,
		Config:       cfg,
		FinalMetrics: result.FinalMetrics,
		History:      result.History,
		Budget:       result.Budget,
		Baseline:     result.Baseline,
		SampleCounts: result.SampleCounts,
		CommCostMB:   result.CommCostMB,
		CompletedAt:  now,
	}); err != nil {
		svc.logger.Error("failed to write results artifact",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
	}
	if _, err := svc.store.SaveWeights(runID, result.FinalWeights); err != nil {
		svc.logger.Error("failed to write weight snapshot",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
	}

	svc.publish(ctx, topicCompleted, runID, completedEvent{
		RunID:      runID,
		Rounds:     cfg.Rounds,
		Accuracy:   result.FinalMetrics.Accuracy,
		AUC:        result.FinalMetrics.AUC,
		Epsilon:    result.Budget.Epsilon,
		CommCostMB: result.CommCostMB,
		Elapsed:    result.Elapsed,
	})

	svc.logger.Info("run completed",
		slog.String("run_id", runID),
		slog.Int("rounds", cfg.Rounds),
		slog.Float64("accuracy", result.FinalMetrics.Accuracy),
		slog.Float64("auc", result.FinalMetrics.AUC),
		slog.Duration("elapsed", result.Elapsed))
}

func (svc *service) finishFailed(ctx context.Context, runID, reason string) {
	run, err := svc.runs.Get(ctx, runID)
	if err != nil {
		svc.logger.Error("failed to load run for failure",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))

		return
	}

	now := time.Now()
	run.State = training.Failed
	run.Error = reason
	run.FinishTime = now
	run.UpdatedAt = now

	if err := svc.runs.Update(ctx, run); err != nil {
		svc.logger.Error("failed to persist failed run",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
	}

	svc.publish(ctx, topicFailed, runID, failedEvent{
		RunID:  runID,
		Round:  run.Round,
		Reason: reason,
	})

	svc.logger.Warn("run failed",
		slog.String("run_id", runID),
		slog.String("reason", reason))
}

func (svc *service) isActive(runID string) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	_, ok := svc.active[runID]

	return ok
}

func (svc *service) release(runID string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	delete(svc.active, runID)
}

// splitFor returns the run's data split, regenerating it from the run
// configuration on first use. Generation is deterministic per seed, so
// the regenerated split matches the one the run trained on.
func (svc *service) splitFor(runID string, cfg training.RunConfig) (*dataset.Split, error) {
	svc.mu.Lock()
	if split, ok := svc.splits[runID]; ok {
		svc.mu.Unlock()

		return split, nil
	}
	svc.mu.Unlock()

	split, err := svc.engine.Source(cfg.Dataset, cfg.Institutions)
	if err != nil {
		return nil, err
	}

	svc.mu.Lock()
	svc.splits[runID] = split
	svc.mu.Unlock()

	return split, nil
}

// weightedPredictor pins a trained weight vector onto the adapter so
// the attack evaluator can score single rows.
type weightedPredictor struct {
	adapter ModelAdapter
	weights fl.Weights
}

func (p *weightedPredictor) Predict(features []float64) float64 {
	probs, err := p.adapter.Predict(p.weights, [][]float64{features})
	if err != nil || len(probs) != 1 {
		return 0
	}

	return probs[0]
}
