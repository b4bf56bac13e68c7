package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grantradar/grantradar/pkg/models"
)

// FatalError marks a processing failure as unrecoverable: the consumer loop
// acks the original message and publishes it (plus error metadata) to
// dlq:<stream> rather than leaving it pending for redelivery (spec §4.1,
// §7 "Fatal" row). Transient errors (network, rate limit, missing
// dependency) should be returned unwrapped so the message stays pending and
// is retried on the next read or claimed by another consumer.
type FatalError struct {
	Type string // populates DLQEnvelope.ErrorType
	Err  error
}

func (e *FatalError) Error() string { return fmt.Sprintf("%s: %v", e.Type, e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Handler processes one delivered message. A nil return acks the message. A
// *FatalError return acks the message and DLQs it. Any other error leaves
// the message pending (no ack) for redelivery.
type Handler func(ctx context.Context, msg Message) error

// Consumer drives the read → handle → ack-or-leave-pending loop for one
// (stream, group, consumer) triple. Multiple Consumers across processes may
// share the same group; Redis Streams guarantees each message goes to
// exactly one of them at a time (spec §5).
type Consumer struct {
	Bus         Bus
	Stream      string
	Group       string
	Name        string
	MaxCount    int64
	BlockPeriod time.Duration

	log *slog.Logger
}

// Run blocks, repeatedly polling Stream until ctx is cancelled. It ensures
// the consumer group exists on first call.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	if c.log == nil {
		c.log = slog.With("component", "bus.consumer", "stream", c.Stream, "group", c.Group, "consumer", c.Name)
	}
	if err := c.Bus.EnsureGroup(ctx, c.Stream, c.Group); err != nil {
		return fmt.Errorf("ensure group: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := c.Bus.Subscribe(ctx, c.Stream, c.Group, c.Name, c.MaxCount, c.BlockPeriod)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.log.Error("subscribe failed", "error", err)
			continue
		}

		for _, msg := range msgs {
			c.handleOne(ctx, msg, handle)
		}
	}
}

func (c *Consumer) handleOne(ctx context.Context, msg Message, handle Handler) {
	err := handle(ctx, msg)
	// The ack and DLQ publish still run if ctx was cancelled during handle,
	// so a message that was already processed is not left pending.
	finishCtx := context.WithoutCancel(ctx)
	if err == nil {
		if ackErr := c.Bus.Ack(finishCtx, c.Stream, c.Group, msg.ID); ackErr != nil {
			c.log.Warn("ack failed", "message_id", msg.ID, "error", ackErr)
		}
		return
	}

	var fatal *FatalError
	if errors.As(err, &fatal) {
		c.dlqAndAck(finishCtx, msg, fatal)
		return
	}

	c.log.Warn("handler failed, leaving pending for redelivery", "message_id", msg.ID, "error", err)
}

func (c *Consumer) dlqAndAck(ctx context.Context, msg Message, fatal *FatalError) {
	now := timeNow()
	dlq := BuildDLQEnvelope(c.Stream, msg.ID, msg.Payload, fatal.Type, fatal.Err, 1, now, now)
	payload, err := EncodeEnvelope(dlq)
	if err != nil {
		c.log.Error("failed to encode DLQ envelope", "message_id", msg.ID, "error", err)
	} else if _, err := c.Bus.Publish(ctx, models.DLQStreamFor(c.Stream), payload); err != nil {
		c.log.Error("failed to publish to DLQ", "message_id", msg.ID, "error", err)
	}

	if err := c.Bus.Ack(ctx, c.Stream, c.Group, msg.ID); err != nil {
		c.log.Warn("ack after DLQ failed", "message_id", msg.ID, "error", err)
	}
}

// timeNow is a seam so tests can inject a fixed clock; production always
// uses time.Now.
var timeNow = defaultNow

func defaultNow() time.Time { return time.Now().UTC() }
