package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/grantradar/grantradar/pkg/config"
	"github.com/grantradar/grantradar/pkg/entitystore"
	"github.com/grantradar/grantradar/pkg/models"
)

// Autoscaler evaluates queue depth against config.OrchestratorConfig's
// thresholds and produces a ScalingDecision, persisting each evaluation to
// the entity store for later observability (spec.md's original persists
// the same decision record even without a dashboard to show it).
type Autoscaler struct {
	store *entitystore.Store
	cfg   config.OrchestratorConfig
	log   *slog.Logger
}

// NewAutoscaler builds an Autoscaler.
func NewAutoscaler(store *entitystore.Store, cfg config.OrchestratorConfig) *Autoscaler {
	return &Autoscaler{store: store, cfg: cfg, log: slog.With("component", "autoscaler")}
}

// Evaluate decides whether to scale up, scale down, or hold given the
// current queue depth and active worker count, then persists the decision.
func (a *Autoscaler) Evaluate(ctx context.Context, queueDepth, activeWorkers int) (models.OrchestratorSnapshot, error) {
	decision, reason := a.decide(queueDepth, activeWorkers)

	snap := models.OrchestratorSnapshot{
		QueueDepth:    queueDepth,
		ActiveWorkers: activeWorkers,
		Decision:      decision,
		Reason:        reason,
	}

	id, err := a.store.Orchestrator.Insert(ctx, snap)
	if err != nil {
		return snap, fmt.Errorf("persist scaling decision: %w", err)
	}
	snap.ID = id
	return snap, nil
}

func (a *Autoscaler) decide(queueDepth, activeWorkers int) (models.ScalingDecision, string) {
	if queueDepth > a.cfg.ScaleUpQueueDepth {
		return models.ScaleUp, fmt.Sprintf("queue depth %d exceeds scale-up threshold %d", queueDepth, a.cfg.ScaleUpQueueDepth)
	}
	if queueDepth < a.cfg.ScaleDownQueueDepth && activeWorkers > a.cfg.MinWorkers {
		return models.ScaleDown, fmt.Sprintf("queue depth %d below scale-down threshold %d with %d workers active", queueDepth, a.cfg.ScaleDownQueueDepth, activeWorkers)
	}
	return models.ScaleHold, "queue depth within normal operating range"
}
