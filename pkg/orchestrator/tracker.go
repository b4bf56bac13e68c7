// Package orchestrator implements the Orchestrator (C8): the per-grant
// pipeline tracker, the priority-queue autoscaler, the health checker, the
// on-call sink interface, and the HTTP status surface, which also reports
// the circuit-breaker state mirrored in the entity store, per spec §4.6.
// The Prometheus collectors live in pkg/metrics.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grantradar/grantradar/pkg/bus"
	"github.com/grantradar/grantradar/pkg/models"
)

// PipelineTracker wraps the ephemeral per-grant pipeline state bus.State
// holds in Redis, enforcing the stage-transition and retry rules spec
// §4.6.1/§4.6.2 name.
type PipelineTracker struct {
	state *bus.State
	log   *slog.Logger
}

// NewPipelineTracker builds a PipelineTracker.
func NewPipelineTracker(state *bus.State) *PipelineTracker {
	return &PipelineTracker{state: state, log: slog.With("component", "pipeline_tracker")}
}

// StartPipeline records a grant entering the pipeline at StageDiscovered.
func (t *PipelineTracker) StartPipeline(ctx context.Context, grantID string, priority models.PriorityLevel, now time.Time) error {
	state := models.PipelineState{
		GrantID:         grantID,
		CurrentStage:    models.StageDiscovered,
		StageTimestamps: map[models.Stage]time.Time{models.StageDiscovered: now},
		Latencies:       map[models.Stage]time.Duration{},
		Priority:        priority,
		StartedAt:       now,
		StageStartedAt:  now,
	}
	return t.state.SavePipelineState(ctx, state)
}

// TransitionStage moves grantID from its current stage to `to`, recording
// the prior stage's latency. Rejects non-forward transitions (spec
// §4.6.2's monotonic-stage invariant) unless `to` is StageFailed, which is
// always reachable.
func (t *PipelineTracker) TransitionStage(ctx context.Context, grantID string, to models.Stage, now time.Time) error {
	state, err := t.state.GetPipelineState(ctx, grantID)
	if err != nil {
		return fmt.Errorf("load pipeline state for %s: %w", grantID, err)
	}

	if !models.IsForwardTransition(state.CurrentStage, to) {
		return fmt.Errorf("rejecting non-forward transition for %s: %s -> %s", grantID, state.CurrentStage, to)
	}

	if state.Latencies == nil {
		state.Latencies = map[models.Stage]time.Duration{}
	}
	state.Latencies[state.CurrentStage] = now.Sub(state.StageStartedAt)

	if state.StageTimestamps == nil {
		state.StageTimestamps = map[models.Stage]time.Time{}
	}
	state.StageTimestamps[to] = now

	state.CurrentStage = to
	state.StageStartedAt = now
	if to == models.StageFailed {
		state.RetryCount++
	}

	return t.state.SavePipelineState(ctx, *state)
}

// FailPipeline marks grantID failed, recording err's message. If the grant
// has already exceeded MaxRetries, the caller should route it to a DLQ
// instead of retrying further (spec §4.6.2).
func (t *PipelineTracker) FailPipeline(ctx context.Context, grantID string, cause error, now time.Time) error {
	state, err := t.state.GetPipelineState(ctx, grantID)
	if err != nil {
		return fmt.Errorf("load pipeline state for %s: %w", grantID, err)
	}
	state.Error = cause.Error()
	if err := t.state.SavePipelineState(ctx, *state); err != nil {
		return fmt.Errorf("save pipeline error for %s: %w", grantID, err)
	}
	if err := t.TransitionStage(ctx, grantID, models.StageFailed, now); err != nil {
		return err
	}
	return nil
}

// CompletePipeline marks grantID's pipeline finished and removes its
// tracked state once SLO breaches (if any) have been reported by the
// caller.
func (t *PipelineTracker) CompletePipeline(ctx context.Context, grantID string, now time.Time) error {
	if err := t.TransitionStage(ctx, grantID, models.StageCompleted, now); err != nil {
		return err
	}
	return t.state.DeletePipelineState(ctx, grantID)
}

// ExceededMaxRetries reports whether state has already been retried
// MaxRetries times and should be routed to a DLQ rather than retried again.
func ExceededMaxRetries(state models.PipelineState) bool {
	return state.RetryCount >= models.MaxRetries
}

// GetStalled scans every tracked pipeline and returns the ones that have
// sat in their current stage longer than models.StalledThreshold (spec
// §4.6.1's 300s stalled-pipeline detector).
func (t *PipelineTracker) GetStalled(ctx context.Context, now time.Time) ([]models.PipelineState, error) {
	grantIDs, err := t.state.ScanPipelineKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan pipeline keys: %w", err)
	}

	var stalled []models.PipelineState
	for _, grantID := range grantIDs {
		state, err := t.state.GetPipelineState(ctx, grantID)
		if err != nil {
			t.log.Warn("dropping pipeline key during stalled scan", "grant_id", grantID, "error", err)
			continue
		}
		if state.IsStalled(now) {
			stalled = append(stalled, *state)
		}
	}
	return stalled, nil
}
