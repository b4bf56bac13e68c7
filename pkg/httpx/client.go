// Package httpx provides the shared HTTP client every external-service
// gateway (C3) builds on: exponential backoff with jitter, Retry-After
// awareness, and a token-bucket rate limiter, matching spec §4.2's "all
// HTTP: exponential backoff with jitter; retry on connection errors and
// HTTP 429/5xx; do not retry on 4xx other than 408/429" rule and §7's
// rate-limit handling.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client wraps *http.Client with the retry/backoff policy shared by every
// Discovery source client and every C3 gateway.
type Client struct {
	HTTP        *http.Client
	MaxElapsed  time.Duration
	MaxRetries  int
	RateLimiter *RateLimiter // nil disables rate limiting

	// Delays, when non-empty, replaces the default exponential backoff with
	// a fixed delay schedule (e.g. the Alerter's [1s,2s,4s] channel-retry
	// policy, spec §4.5 step 6). Retry-After still overrides the next delay
	// exactly once, same as the exponential path.
	Delays []time.Duration
}

// NewClient builds a Client with the given per-request timeout, up to 5
// retries, and up to 90s of total retry elapsed time.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		HTTP:       &http.Client{Timeout: timeout},
		MaxElapsed: 90 * time.Second,
		MaxRetries: 5,
	}
}

// Do executes req, retrying on transport errors, 408, 429, and 5xx. The
// request body (if any) must be re-readable across retries: req.GetBody
// must be set, as http.NewRequest does for bytes and strings readers.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.RateLimiter != nil {
		if err := c.RateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	retryAfterBO := &retryAfterOverride{inner: c.policy()}
	bo := backoff.WithContext(retryAfterBO, ctx)

	var resp *http.Response
	op := func() error {
		r := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(err)
			}
			r.Body = body
		}

		var err error
		resp, err = c.HTTP.Do(r)
		if err != nil {
			return err // transport error: retryable
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500 {
			retryAfterBO.override = retryAfter(resp)
			drainAndClose(resp)
			return fmt.Errorf("retryable status %d", resp.StatusCode)
		}

		if resp.StatusCode >= 400 && resp.StatusCode != http.StatusRequestTimeout {
			// 4xx other than 408/429 is non-retryable per spec §4.2.
			return backoff.Permanent(&StatusError{StatusCode: resp.StatusCode})
		}

		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) policy() backoff.BackOff {
	if len(c.Delays) > 0 {
		return &fixedDelays{delays: c.Delays}
	}
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = c.MaxElapsed
	return backoff.WithMaxRetries(eb, uint64(c.MaxRetries))
}

// fixedDelays is a backoff.BackOff that steps through an explicit delay
// schedule, stopping after the schedule is exhausted.
type fixedDelays struct {
	delays []time.Duration
	next   int
}

func (f *fixedDelays) NextBackOff() time.Duration {
	if f.next >= len(f.delays) {
		return backoff.Stop
	}
	d := f.delays[f.next]
	f.next++
	return d
}

func (f *fixedDelays) Reset() { f.next = 0 }

// retryAfterOverride wraps a backoff.BackOff, substituting an explicit
// server-provided wait (from a Retry-After header) for the computed
// interval exactly once, then falling back to inner's own schedule.
type retryAfterOverride struct {
	inner    backoff.BackOff
	override time.Duration
}

func (r *retryAfterOverride) NextBackOff() time.Duration {
	if r.override > 0 {
		d := r.override
		r.override = 0
		return d
	}
	return r.inner.NextBackOff()
}

func (r *retryAfterOverride) Reset() { r.inner.Reset() }

// StatusError wraps a non-retryable HTTP status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-retryable HTTP status %d", e.StatusCode)
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(v); err == nil {
		return time.Until(when)
	}
	return 0
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
