package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantradar/grantradar/pkg/bus"
	"github.com/grantradar/grantradar/pkg/models"
)

func newTestTracker(t *testing.T) *PipelineTracker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPipelineTracker(bus.NewState(client))
}

func TestPipelineTrackerAdvancesThroughStages(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, tracker.StartPipeline(ctx, "grant-1", models.PriorityHigh, now))
	require.NoError(t, tracker.TransitionStage(ctx, "grant-1", models.StageValidating, now.Add(time.Second)))
	require.NoError(t, tracker.TransitionStage(ctx, "grant-1", models.StageValidated, now.Add(2*time.Second)))
	require.NoError(t, tracker.CompletePipeline(ctx, "grant-1", now.Add(3*time.Second)))

	_, err := tracker.state.GetPipelineState(ctx, "grant-1")
	assert.ErrorIs(t, err, bus.ErrPipelineStateNotFound)
}

func TestPipelineTrackerRejectsNonForwardTransition(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, tracker.StartPipeline(ctx, "grant-2", models.PriorityMedium, now))
	require.NoError(t, tracker.TransitionStage(ctx, "grant-2", models.StageMatching, now.Add(time.Second)))

	err := tracker.TransitionStage(ctx, "grant-2", models.StageValidating, now.Add(2*time.Second))
	assert.Error(t, err)
}

func TestPipelineTrackerFailPipelineAlwaysAllowed(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, tracker.StartPipeline(ctx, "grant-3", models.PriorityLow, now))
	require.NoError(t, tracker.FailPipeline(ctx, "grant-3", errors.New("llm provider unavailable"), now.Add(time.Second)))

	state, err := tracker.state.GetPipelineState(ctx, "grant-3")
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, state.CurrentStage)
	assert.Equal(t, "llm provider unavailable", state.Error)
}

func TestGetStalledReturnsLongRunningPipelines(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	started := time.Now().UTC().Add(-10 * time.Minute)

	require.NoError(t, tracker.StartPipeline(ctx, "grant-stalled", models.PriorityCritical, started))

	stalled, err := tracker.GetStalled(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, "grant-stalled", stalled[0].GrantID)
}
