package slackchannel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goslack "github.com/slack-go/slack"
)

func TestSendRetriesOnServerError(t *testing.T) {
	c := New(Config{RetryDelays: []time.Duration{time.Millisecond, time.Millisecond}})
	calls := 0
	c.post = func(ctx context.Context, url string, msg *goslack.WebhookMessage) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("received non-2xx response code: 503")
		}
		return nil
	}

	err := c.Send(context.Background(), "https://hooks.slack.test/x", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestSendDoesNotRetryNonRetryable4xx(t *testing.T) {
	c := New(Config{RetryDelays: []time.Duration{time.Millisecond, time.Millisecond}})
	calls := 0
	c.post = func(ctx context.Context, url string, msg *goslack.WebhookMessage) error {
		calls++
		return fmt.Errorf("received non-2xx response code: 404")
	}

	err := c.Send(context.Background(), "https://hooks.slack.test/x", nil)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSendHonorsRateLimitedRetryAfter(t *testing.T) {
	c := New(Config{RetryDelays: []time.Duration{time.Millisecond}})
	calls := 0
	c.post = func(ctx context.Context, url string, msg *goslack.WebhookMessage) error {
		calls++
		if calls < 2 {
			return &goslack.RateLimitedError{RetryAfter: time.Millisecond}
		}
		return nil
	}

	err := c.Send(context.Background(), "https://hooks.slack.test/x", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSendGivesUpAfterExhaustingDelays(t *testing.T) {
	c := New(Config{RetryDelays: []time.Duration{time.Millisecond}})
	calls := 0
	c.post = func(ctx context.Context, url string, msg *goslack.WebhookMessage) error {
		calls++
		return fmt.Errorf("received non-2xx response code: 500")
	}

	err := c.Send(context.Background(), "https://hooks.slack.test/x", nil)
	assert.Error(t, err)
	assert.Equal(t, 2, calls, "one initial attempt plus one retry from the single configured delay")
}
