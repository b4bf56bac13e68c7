package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *RedisBus {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client)
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, b.EnsureGroup(ctx, "grants:discovered", "curation_validators"))
	require.NoError(t, b.EnsureGroup(ctx, "grants:discovered", "curation_validators"))
}

func TestPublishSubscribeAck(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()
	stream := "grants:discovered"
	group := "curation_validators"

	require.NoError(t, b.EnsureGroup(ctx, stream, group))

	id, err := b.Publish(ctx, stream, []byte(`{"data":{"external_id":"1"}}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := b.Subscribe(ctx, stream, group, "consumer-1", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)

	pending, err := b.Pending(ctx, stream, group)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "consumer-1", pending[0].Consumer)

	require.NoError(t, b.Ack(ctx, stream, group, id))

	pending, err = b.Pending(ctx, stream, group)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSubscribeReturnsEmptyOnTimeout(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()
	require.NoError(t, b.EnsureGroup(ctx, "matches:computed", "alerter"))

	msgs, err := b.Subscribe(ctx, "matches:computed", "alerter", "c1", 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestClaimRedeliversToAnotherConsumer(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()
	stream, group := "grants:validated", "matching_engine"
	require.NoError(t, b.EnsureGroup(ctx, stream, group))

	id, err := b.Publish(ctx, stream, []byte(`{"data":{}}`))
	require.NoError(t, err)

	_, err = b.Subscribe(ctx, stream, group, "consumer-a", 10, 50*time.Millisecond)
	require.NoError(t, err)

	claimed, err := b.Claim(ctx, stream, group, "consumer-b", 0, []string{id})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)
}

func TestConsumerRunAcksOnSuccess(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	id, err := b.Publish(ctx, "grants:discovered", []byte(`{"data":{}}`))
	require.NoError(t, err)

	processed := make(chan string, 1)
	c := &Consumer{Bus: b, Stream: "grants:discovered", Group: "curation_validators", Name: "c1", MaxCount: 10, BlockPeriod: 50 * time.Millisecond}

	go func() {
		_ = c.Run(ctx, func(_ context.Context, msg Message) error {
			processed <- msg.ID
			cancel()
			return nil
		})
	}()

	select {
	case got := <-processed:
		assert.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	time.Sleep(50 * time.Millisecond)
	pending, err := b.Pending(context.Background(), "grants:discovered", "curation_validators")
	require.NoError(t, err)
	assert.Empty(t, pending, "successfully handled message must be acked")
}

func TestConsumerRunDLQsOnFatalError(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := b.Publish(ctx, "grants:discovered", []byte(`{"data":{}}`))
	require.NoError(t, err)

	c := &Consumer{Bus: b, Stream: "grants:discovered", Group: "curation_validators", Name: "c1", MaxCount: 10, BlockPeriod: 50 * time.Millisecond}

	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx, func(_ context.Context, msg Message) error {
			defer close(done)
			defer cancel()
			return &FatalError{Type: "parse_error", Err: errors.New("boom")}
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	time.Sleep(50 * time.Millisecond)
	bg := context.Background()
	require.NoError(t, b.EnsureGroup(bg, "dlq:grants:discovered", "dlq-readers"))
	msgs, err := b.Subscribe(bg, "dlq:grants:discovered", "dlq-readers", "c1", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}
