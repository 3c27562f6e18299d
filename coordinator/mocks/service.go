package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/absmach/fedsim/coordinator"
	"github.com/absmach/fedsim/pkg/institution"
	"github.com/absmach/fedsim/pkg/privacy"
	"github.com/absmach/fedsim/training"
)

// MockService is a mock implementation of the coordinator.Service interface
type MockService struct {
	mock.Mock
}

// CreateRun registers a new run
func (m *MockService) CreateRun(ctx context.Context, run training.Run) (training.Run, error) {
	args := m.Called(ctx, run)

	return args.Get(0).(training.Run), args.Error(1)
}

// GetRun retrieves a run by ID
func (m *MockService) GetRun(ctx context.Context, runID string) (training.Run, error) {
	args := m.Called(ctx, runID)

	return args.Get(0).(training.Run), args.Error(1)
}

// ListRuns lists runs with pagination
func (m *MockService) ListRuns(ctx context.Context, offset, limit uint64) (training.Page, error) {
	args := m.Called(ctx, offset, limit)

	return args.Get(0).(training.Page), args.Error(1)
}

// UpdateRun updates a run
func (m *MockService) UpdateRun(ctx context.Context, run training.Run) (training.Run, error) {
	args := m.Called(ctx, run)

	return args.Get(0).(training.Run), args.Error(1)
}

// DeleteRun deletes a run
func (m *MockService) DeleteRun(ctx context.Context, runID string) error {
	args := m.Called(ctx, runID)

	return args.Error(0)
}

// StartRun launches training for a run
func (m *MockService) StartRun(ctx context.Context, runID string) error {
	args := m.Called(ctx, runID)

	return args.Error(0)
}

// StopRun cancels an active run
func (m *MockService) StopRun(ctx context.Context, runID string) error {
	args := m.Called(ctx, runID)

	return args.Error(0)
}

// Status reports the lifecycle state of a run
func (m *MockService) Status(ctx context.Context, runID string) (string, error) {
	args := m.Called(ctx, runID)

	return args.String(0), args.Error(1)
}

// History returns the per-round metrics of a run
func (m *MockService) History(ctx context.Context, runID string) ([]training.RoundRecord, error) {
	args := m.Called(ctx, runID)

	return args.Get(0).([]training.RoundRecord), args.Error(1)
}

// Budget returns the privacy spend of a run
func (m *MockService) Budget(ctx context.Context, runID string) (privacy.BudgetSnapshot, error) {
	args := m.Called(ctx, runID)

	return args.Get(0).(privacy.BudgetSnapshot), args.Error(1)
}

// Institutions returns the simulated participants of a run
func (m *MockService) Institutions(ctx context.Context, runID string) ([]institution.Institution, error) {
	args := m.Called(ctx, runID)

	return args.Get(0).([]institution.Institution), args.Error(1)
}

// EvaluateAttacks probes a completed run's model
func (m *MockService) EvaluateAttacks(ctx context.Context, runID string) (privacy.AttackReport, error) {
	args := m.Called(ctx, runID)

	return args.Get(0).(privacy.AttackReport), args.Error(1)
}

// Predict scores transactions with a completed run's model
func (m *MockService) Predict(ctx context.Context, runID string, rows [][]float64) ([]coordinator.Prediction, error) {
	args := m.Called(ctx, runID, rows)

	return args.Get(0).([]coordinator.Prediction), args.Error(1)
}
