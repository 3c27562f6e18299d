package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Topics carrying run lifecycle events. Each takes the run ID.
const (
	topicStarted   = "fedsim/runs/%s/started"
	topicRound     = "fedsim/runs/%s/round"
	topicCompleted = "fedsim/runs/%s/completed"
	topicFailed    = "fedsim/runs/%s/failed"
)

type startedEvent struct {
	RunID        string    `json:"run_id"`
	Name         string    `json:"name,omitempty"`
	Institutions int       `json:"institutions"`
	Rounds       int       `json:"rounds"`
	Strategy     string    `json:"strategy"`
	StartedAt    time.Time `json:"started_at"`
}

type roundEvent struct {
	RunID       string    `json:"run_id"`
	Round       int       `json:"round"`
	Accuracy    float64   `json:"accuracy"`
	AUC         float64   `json:"auc"`
	Loss        float64   `json:"loss"`
	Epsilon     float64   `json:"epsilon,omitempty"`
	CommCostMB  float64   `json:"comm_cost_mb"`
	CompletedAt time.Time `json:"completed_at"`
}

type completedEvent struct {
	RunID      string        `json:"run_id"`
	Rounds     int           `json:"rounds"`
	Accuracy   float64       `json:"accuracy"`
	AUC        float64       `json:"auc"`
	Epsilon    float64       `json:"epsilon,omitempty"`
	CommCostMB float64       `json:"comm_cost_mb"`
	Elapsed    time.Duration `json:"elapsed"`
}

type failedEvent struct {
	RunID  string `json:"run_id"`
	Round  int    `json:"round"`
	Reason string `json:"reason"`
}

// publish sends one lifecycle event. Event delivery is best effort; a
// broker outage never disturbs the run itself.
func (svc *service) publish(ctx context.Context, topic, runID string, payload any) {
	resolved := fmt.Sprintf(topic, runID)
	if err := svc.pubsub.Publish(ctx, resolved, payload); err != nil {
		svc.logger.Warn("failed to publish run event",
			slog.String("run_id", runID),
			slog.String("topic", resolved),
			slog.String("error", err.Error()))
	}
}
