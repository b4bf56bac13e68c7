// Package bus implements the event bus (C1): durable append-only Redis
// Streams with named consumer groups, per-message acknowledgment, a
// pending-entries list, and DLQ streams. The contract in spec §4.1 is
// phrased abstractly enough that any durable log with consumer-group
// semantics would do; this implementation picks Redis Streams.
package bus

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one delivered stream entry.
type Message struct {
	ID      string
	Payload []byte
}

// PendingEntry describes one unacknowledged delivery, as reported by
// XPENDING.
type PendingEntry struct {
	ID         string
	Consumer   string
	Idle       time.Duration
	DeliveryCt int64
}

// Bus is the event-bus contract every agent depends on. Streams carry only
// JSON envelopes wrapped in a single `data` field (spec §6); Bus itself is
// payload-opaque and deals in raw bytes.
type Bus interface {
	// EnsureGroup creates group on stream starting from the beginning,
	// creating the stream if absent (MKSTREAM). Idempotent: "group already
	// exists" (BUSYGROUP) is treated as success.
	EnsureGroup(ctx context.Context, stream, group string) error

	// Publish appends payload to stream and returns the assigned message id.
	Publish(ctx context.Context, stream string, payload []byte) (string, error)

	// PublishTrimmed is Publish but also approximately trims stream to maxLen.
	PublishTrimmed(ctx context.Context, stream string, payload []byte, maxLen int64) (string, error)

	// Subscribe reads up to maxCount new (">") messages for group/consumer,
	// blocking up to blockPeriod if none are immediately available. Returns
	// an empty slice (not an error) on timeout.
	Subscribe(ctx context.Context, stream, group, consumer string, maxCount int64, blockPeriod time.Duration) ([]Message, error)

	// Ack acknowledges id within group on stream.
	Ack(ctx context.Context, stream, group, id string) error

	// Pending returns the group's pending-entries list for stream.
	Pending(ctx context.Context, stream, group string) ([]PendingEntry, error)

	// Claim reassigns pending entries idle longer than minIdle to consumer,
	// for use when another consumer must take over after a visibility
	// timeout.
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]Message, error)

	// Trim approximately trims stream to maxLen entries.
	Trim(ctx context.Context, stream string, maxLen int64) error

	// Ping checks bus reachability and reports round-trip latency, for the
	// health checker (C8 §4.6.4).
	Ping(ctx context.Context) (time.Duration, error)
}

// RedisBus is the Bus implementation backed by go-redis and Redis Streams.
type RedisBus struct {
	client redis.UniversalClient
}

// New wraps an existing redis client. Accepting redis.UniversalClient lets
// callers pass either *redis.Client or a cluster/failover client, and lets
// tests pass a miniredis-backed client.
func New(client redis.UniversalClient) *RedisBus {
	return &RedisBus{client: client}
}

const dataField = "data"

func (b *RedisBus) EnsureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func (b *RedisBus) Publish(ctx context.Context, stream string, payload []byte) (string, error) {
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{dataField: payload},
	}).Result()
}

func (b *RedisBus) PublishTrimmed(ctx context.Context, stream string, payload []byte, maxLen int64) (string, error) {
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]any{dataField: payload},
	}).Result()
}

func (b *RedisBus) Subscribe(ctx context.Context, stream, group, consumer string, maxCount int64, blockPeriod time.Duration) ([]Message, error) {
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    maxCount,
		Block:    blockPeriod,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return toMessages(res), nil
}

func toMessages(res []redis.XStream) []Message {
	var out []Message
	for _, s := range res {
		for _, m := range s.Messages {
			out = append(out, Message{ID: m.ID, Payload: extractPayload(m.Values)})
		}
	}
	return out
}

func extractPayload(values map[string]any) []byte {
	v, ok := values[dataField]
	if !ok {
		return nil
	}
	switch p := v.(type) {
	case string:
		return []byte(p)
	case []byte:
		return p
	default:
		return nil
	}
}

func (b *RedisBus) Ack(ctx context.Context, stream, group, id string) error {
	return b.client.XAck(ctx, stream, group, id).Err()
}

func (b *RedisBus) Pending(ctx context.Context, stream, group string) ([]PendingEntry, error) {
	res, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  1000,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	out := make([]PendingEntry, 0, len(res))
	for _, e := range res {
		out = append(out, PendingEntry{
			ID:         e.ID,
			Consumer:   e.Consumer,
			Idle:       e.Idle,
			DeliveryCt: e.RetryCount,
		})
	}
	return out, nil
}

func (b *RedisBus) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]Message, error) {
	msgs, _, err := b.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{ID: m.ID, Payload: extractPayload(m.Values)})
	}
	return out, nil
}

func (b *RedisBus) Trim(ctx context.Context, stream string, maxLen int64) error {
	return b.client.XTrimMaxLenApprox(ctx, stream, maxLen, 0).Err()
}

func (b *RedisBus) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := b.client.Ping(ctx).Err(); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}
