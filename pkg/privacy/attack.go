package privacy

import (
	"math"
	randv2 "math/rand/v2"
	"time"
)

// Predictor scores a single feature vector with the probability of the
// positive class. The trained global model satisfies this.
type Predictor interface {
	Predict(features []float64) float64
}

type MembershipInferenceResult struct {
	TrainConfidence    float64 `json:"train_confidence"`
	TestConfidence     float64 `json:"test_confidence"`
	ConfidenceGap      float64 `json:"confidence_gap"`
	AttackSuccessRate  float64 `json:"attack_success_rate"`
	DefenseSuccessRate float64 `json:"defense_success_rate"`
}

type ModelInversionResult struct {
	ReconstructionError float64 `json:"reconstruction_error"`
	PredictionGap       float64 `json:"prediction_gap"`
	AttackSuccessRate   float64 `json:"attack_success_rate"`
	DefenseSuccessRate  float64 `json:"defense_success_rate"`
}

// AttackReport is the outcome of one attack-evaluation run.
type AttackReport struct {
	MembershipInference MembershipInferenceResult `json:"membership_inference"`
	ModelInversion      ModelInversionResult      `json:"model_inversion"`
	OverallDefenseRate  float64                   `json:"overall_defense_rate"`
	EvaluatedAt         time.Time                 `json:"evaluated_at"`
}

const (
	defaultSampleSize     = 100
	defaultInversionSteps = 200
)

// AttackEvaluator probes a trained model for membership-inference and
// model-inversion leakage. It keeps no state between runs; every call
// recomputes from scratch against the supplied model and records.
type AttackEvaluator struct {
	sampleSize     int
	inversionSteps int
	rng            *randv2.Rand
}

// NewAttackEvaluator returns an evaluator probing at most sampleSize
// records per dataset and running inversionSteps hill-climbing steps.
// Non-positive arguments fall back to defaults.
func NewAttackEvaluator(sampleSize, inversionSteps int, seed int64) *AttackEvaluator {
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}
	if inversionSteps <= 0 {
		inversionSteps = defaultInversionSteps
	}

	return &AttackEvaluator{
		sampleSize:     sampleSize,
		inversionSteps: inversionSteps,
		rng:            randv2.New(randv2.NewPCG(uint64(seed), uint64(seed)+1)),
	}
}

// Run executes both attacks against the model and reports per-attack
// success and defense rates together with their unweighted mean.
func (ae *AttackEvaluator) Run(model Predictor, train, test [][]float64) (AttackReport, error) {
	if len(train) == 0 || len(test) == 0 {
		return AttackReport{}, ErrInsufficientData
	}

	mi := ae.membershipInference(model, train, test)
	inv := ae.modelInversion(model, train)

	return AttackReport{
		MembershipInference: mi,
		ModelInversion:      inv,
		OverallDefenseRate:  (mi.DefenseSuccessRate + inv.DefenseSuccessRate) / 2,
		EvaluatedAt:         time.Now(),
	}, nil
}

// membershipInference compares mean prediction confidence, measured as
// distance from 0.5, on seen vs. unseen records. The attacker wins when
// the model is detectably more confident on training members, so the
// attack rate is twice the sum-normalized confidence gap, capped at 1.
func (ae *AttackEvaluator) membershipInference(model Predictor, train, test [][]float64) MembershipInferenceResult {
	n := min(ae.sampleSize, len(train), len(test))
	trainConf := ae.meanConfidence(model, ae.sample(train, n))
	testConf := ae.meanConfidence(model, ae.sample(test, n))

	gap := math.Abs(trainConf-testConf) / (trainConf + testConf + 1e-10)
	attack := math.Min(2*gap, 1)

	return MembershipInferenceResult{
		TrainConfidence:    trainConf,
		TestConfidence:     testConf,
		ConfidenceGap:      gap,
		AttackSuccessRate:  attack,
		DefenseSuccessRate: 1 - attack,
	}
}

// modelInversion hill-climbs from a random input toward the model's
// highest fraud score, then measures how far the reconstruction landed
// from the nearest real training record.
func (ae *AttackEvaluator) modelInversion(model Predictor, train [][]float64) ModelInversionResult {
	dim := len(train[0])

	x := make([]float64, dim)
	for i := range x {
		x[i] = ae.rng.NormFloat64()
	}
	best := model.Predict(x)

	cand := make([]float64, dim)
	for step := 0; step < ae.inversionSteps; step++ {
		for i := range cand {
			cand[i] = x[i] + 0.1*ae.rng.NormFloat64()
		}
		if p := model.Predict(cand); p > best {
			best = p
			copy(x, cand)
		}
	}

	var nearest []float64
	dist := math.Inf(1)
	for _, r := range ae.sample(train, ae.sampleSize) {
		if len(r) != dim {
			continue
		}
		if d := meanAbsDistance(x, r); d < dist {
			dist = d
			nearest = r
		}
	}

	var predictionGap float64
	if nearest != nil {
		predictionGap = math.Abs(best - model.Predict(nearest))
	}

	defense := math.Min(dist/10, 1)

	return ModelInversionResult{
		ReconstructionError: dist,
		PredictionGap:       predictionGap,
		AttackSuccessRate:   1 - defense,
		DefenseSuccessRate:  defense,
	}
}

func (ae *AttackEvaluator) meanConfidence(model Predictor, records [][]float64) float64 {
	if len(records) == 0 {
		return 0
	}

	var sum float64
	for _, r := range records {
		sum += math.Abs(model.Predict(r) - 0.5)
	}

	return sum / float64(len(records))
}

func meanAbsDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}

	return sum / float64(len(a))
}

func (ae *AttackEvaluator) sample(records [][]float64, n int) [][]float64 {
	if n >= len(records) {
		return records
	}

	out := make([][]float64, n)
	for i, j := range ae.rng.Perm(len(records))[:n] {
		out[i] = records[j]
	}

	return out
}
