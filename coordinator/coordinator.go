// Package coordinator orchestrates federated training rounds over
// simulated institutions and exposes the run lifecycle as a service.
package coordinator

import (
	"context"
	"errors"

	"github.com/absmach/fedsim/pkg/institution"
	"github.com/absmach/fedsim/pkg/privacy"
	"github.com/absmach/fedsim/training"
)

// Lifecycle conflicts surfaced by the run service.
var (
	ErrRunActive       = errors.New("run is already active")
	ErrRunNotActive    = errors.New("run is not active")
	ErrRunNotCompleted = errors.New("run has not completed")
)

// Prediction is one scored transaction.
type Prediction struct {
	FraudProbability float64 `json:"fraud_probability"`
	IsFraud          bool    `json:"is_fraud"`
	Confidence       float64 `json:"confidence"`
}

type Service interface {
	CreateRun(ctx context.Context, run training.Run) (training.Run, error)
	GetRun(ctx context.Context, runID string) (training.Run, error)
	ListRuns(ctx context.Context, offset, limit uint64) (training.Page, error)
	UpdateRun(ctx context.Context, run training.Run) (training.Run, error)
	DeleteRun(ctx context.Context, runID string) error

	StartRun(ctx context.Context, runID string) error
	StopRun(ctx context.Context, runID string) error

	Status(ctx context.Context, runID string) (string, error)
	History(ctx context.Context, runID string) ([]training.RoundRecord, error)
	Budget(ctx context.Context, runID string) (privacy.BudgetSnapshot, error)
	Institutions(ctx context.Context, runID string) ([]institution.Institution, error)

	EvaluateAttacks(ctx context.Context, runID string) (privacy.AttackReport, error)
	Predict(ctx context.Context, runID string, rows [][]float64) ([]Prediction, error)
}
