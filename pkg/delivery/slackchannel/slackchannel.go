// Package slackchannel sends match alerts to a user's Slack incoming webhook,
// adapted from the teacher's pkg/slack bot-token client to the per-user
// webhook model GrantRadar's UserProfile.SlackWebhookURL requires — same
// github.com/slack-go/slack SDK, different delivery surface.
package slackchannel

import (
	"context"
	"errors"
	"fmt"
	"time"

	goslack "github.com/slack-go/slack"
)

// Client posts Block Kit messages to per-user Slack incoming webhooks.
type Client struct {
	delays []time.Duration // spec §4.5 step 6: [1s,2s,4s]; one retry per delay, so 3 delays give up to 4 attempts and no separate attempt cap applies
	post   func(ctx context.Context, url string, msg *goslack.WebhookMessage) error
}

// Config supplies the retry schedule for New.
type Config struct {
	RetryDelays []time.Duration
}

// New builds a slackchannel.Client.
func New(cfg Config) *Client {
	return &Client{delays: cfg.RetryDelays, post: goslack.PostWebhookContext}
}

// Send posts blocks to webhookURL, retrying per spec §4.5 step 6: up to
// len(delays)+1 attempts, honoring Retry-After on HTTP 429, and never
// retrying any other 4xx.
func (c *Client) Send(ctx context.Context, webhookURL string, blocks []goslack.Block) error {
	msg := &goslack.WebhookMessage{Blocks: &goslack.Blocks{BlockSet: blocks}}

	for attempt := 0; ; attempt++ {
		err := c.post(ctx, webhookURL, msg)
		if err == nil {
			return nil
		}

		var rateLimited *goslack.RateLimitedError
		if errors.As(err, &rateLimited) {
			if attempt >= len(c.delays) {
				return fmt.Errorf("slack webhook rate limited after %d attempts: %w", attempt+1, err)
			}
			c.wait(ctx, rateLimited.RetryAfter)
			continue
		}

		if !isRetryableStatus(err) {
			return fmt.Errorf("slack webhook send failed: %w", err)
		}

		if attempt >= len(c.delays) {
			return fmt.Errorf("slack webhook send failed after %d attempts: %w", attempt+1, err)
		}
		c.wait(ctx, c.delays[attempt])
	}
}

func (c *Client) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// isRetryableStatus reports whether err looks like a transport-level or
// 5xx failure rather than a non-429 4xx, which spec §4.5 step 6 says must
// never be retried. slack-go's webhook path surfaces non-2xx statuses as
// plain errors rather than a typed status error, so this is a best-effort
// text match on the "received non-2xx response code" wrapper it produces.
func isRetryableStatus(err error) bool {
	msg := err.Error()
	for _, code := range []string{"500", "502", "503", "504"} {
		if containsStatus(msg, code) {
			return true
		}
	}
	return !looksLikeClientError(msg)
}

func containsStatus(msg, code string) bool {
	for i := 0; i+len(code) <= len(msg); i++ {
		if msg[i:i+len(code)] == code {
			return true
		}
	}
	return false
}

func looksLikeClientError(msg string) bool {
	for _, code := range []string{"400", "401", "403", "404", "410"} {
		if containsStatus(msg, code) {
			return true
		}
	}
	return false
}
