package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantradar/grantradar/pkg/models"
)

func newTestState(t *testing.T) (*State, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewState(client), mr
}

func TestSeenSetMarksAndChecks(t *testing.T) {
	s, mr := newTestState(t)
	ctx := context.Background()

	hash := SeenHash("nsf", "NSF-1", "Quantum Research")

	seen, err := s.HasSeen(ctx, "nsf", hash)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.MarkSeen(ctx, "nsf", hash))

	seen, err = s.HasSeen(ctx, "nsf", hash)
	require.NoError(t, err)
	assert.True(t, seen)

	ttl := mr.TTL(seenSetKey("nsf"))
	assert.InDelta(t, seenSetTTL.Seconds(), ttl.Seconds(), 5)
}

func TestValidatedRecentIsBoundedAndOrdered(t *testing.T) {
	s, _ := newTestState(t)
	ctx := context.Background()

	require.NoError(t, s.PushValidatedRecent(ctx, "first"))
	require.NoError(t, s.PushValidatedRecent(ctx, "second"))

	recent, err := s.RecentValidated(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"second", "first"}, recent)
}

func TestDigestPendingLifecycle(t *testing.T) {
	s, _ := newTestState(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	require.NoError(t, s.PushDigestPending(ctx, "user-1", "2026-07-30", `{"grant_id":"g1"}`, expiry))
	require.NoError(t, s.PushDigestPending(ctx, "user-1", "2026-07-30", `{"grant_id":"g2"}`, expiry))

	items, err := s.DigestPending(ctx, "user-1", "2026-07-30")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	require.NoError(t, s.ClearDigestPending(ctx, "user-1", "2026-07-30"))

	items, err = s.DigestPending(ctx, "user-1", "2026-07-30")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPipelineStateSaveGetDelete(t *testing.T) {
	s, mr := newTestState(t)
	ctx := context.Background()

	state := models.PipelineState{
		GrantID:      "g1",
		CurrentStage: models.StageValidating,
		StartedAt:    time.Now(),
	}
	require.NoError(t, s.SavePipelineState(ctx, state))

	got, err := s.GetPipelineState(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, models.StageValidating, got.CurrentStage)

	ttl := mr.TTL(pipelineKey("g1"))
	assert.InDelta(t, pipelineHealthyTTL.Seconds(), ttl.Seconds(), 5)

	require.NoError(t, s.DeletePipelineState(ctx, "g1"))
	_, err = s.GetPipelineState(ctx, "g1")
	assert.ErrorIs(t, err, ErrPipelineStateNotFound)
}

func TestPipelineStateFailedGetsLongerTTL(t *testing.T) {
	s, mr := newTestState(t)
	ctx := context.Background()

	state := models.PipelineState{GrantID: "g2", CurrentStage: models.StageFailed, StartedAt: time.Now()}
	require.NoError(t, s.SavePipelineState(ctx, state))

	ttl := mr.TTL(pipelineKey("g2"))
	assert.InDelta(t, pipelineFailedTTL.Seconds(), ttl.Seconds(), 5)
}

func TestScanPipelineKeys(t *testing.T) {
	s, _ := newTestState(t)
	ctx := context.Background()

	require.NoError(t, s.SavePipelineState(ctx, models.PipelineState{GrantID: "g1", CurrentStage: models.StageDiscovered, StartedAt: time.Now()}))
	require.NoError(t, s.SavePipelineState(ctx, models.PipelineState{GrantID: "g2", CurrentStage: models.StageMatching, StartedAt: time.Now()}))

	keys, err := s.ScanPipelineKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"g1", "g2"}, keys)
}
