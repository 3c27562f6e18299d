package testutil

import (
	"time"

	"github.com/absmach/fedsim/pkg/dataset"
	"github.com/absmach/fedsim/pkg/institution"
	"github.com/absmach/fedsim/pkg/model"
	"github.com/absmach/fedsim/pkg/privacy"
	"github.com/absmach/fedsim/training"
)

func TestRun(id string) training.Run {
	return training.Run{
		ID:    id,
		Name:  "test-run-" + id,
		State: training.Pending,
		Config: training.RunConfig{
			Institutions: 3,
			Rounds:       2,
			LocalEpochs:  1,
			BatchSize:    32,
			UseDP:        true,
			Dataset:      dataset.Config{Samples: 300, Seed: 7},
		},
		Institutions: []institution.Institution{
			{ID: 0, Name: "test-inst-0", SampleCount: 80, FraudCount: 16, FraudRatio: 0.2},
			{ID: 1, Name: "test-inst-1", SampleCount: 80, FraudCount: 16, FraudRatio: 0.2},
			{ID: 2, Name: "test-inst-2", SampleCount: 80, FraudCount: 16, FraudRatio: 0.2},
		},
		History: []training.RoundRecord{
			{
				Round:       1,
				Metrics:     model.Metrics{Accuracy: 0.91, AUC: 0.88, F1: 0.64, Loss: 0.31},
				Budget:      privacy.BudgetSnapshot{Epsilon: 0.4, Delta: 1e-3, Steps: 3},
				CommCostMB:  0.2,
				CompletedAt: time.Now().Add(-time.Minute).UTC(),
			},
		},
		Budget:    privacy.BudgetSnapshot{Epsilon: 0.4, Delta: 1e-3, Steps: 3},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}
