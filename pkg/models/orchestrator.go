package models

import "time"

// ScalingDecision is the priority-queue manager's autoscaling verdict,
// recorded rather than just acted on so the decision is observable after
// the fact (spec.md §4.6.4's original persists the same decision record).
type ScalingDecision string

const (
	ScaleUp   ScalingDecision = "scale_up"
	ScaleDown ScalingDecision = "scale_down"
	ScaleHold ScalingDecision = "hold"
)

// OrchestratorSnapshot is the store-side record of one autoscaling
// evaluation: the queue depth observed, the worker count in effect, and
// the decision made.
type OrchestratorSnapshot struct {
	ID            string
	QueueDepth    int
	ActiveWorkers int
	Decision      ScalingDecision
	Reason        string
	CreatedAt     time.Time
}
