package httpx

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token-bucket limiter used by Discovery source clients to
// honor per-source rate caps (spec §4.2, e.g. Grants.gov's ≤1 req/s on
// detail fetches). The ecosystem's usual choice (golang.org/x/time/rate) is
// not part of this module's dependency set, so this is the one concern in
// the discovery path implemented directly: the algorithm is a handful of
// lines and pulling in an otherwise-unused module for it would not be worth
// it.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	max        float64
	refillRate float64 // tokens per second
	last       time.Time
	now        func() time.Time
}

// NewRateLimiter creates a limiter that allows burst up to max tokens and
// refills at ratePerSecond tokens/second.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		tokens:     float64(burst),
		max:        float64(burst),
		refillRate: ratePerSecond,
		last:       time.Now(),
		now:        time.Now,
	}
}

func (r *RateLimiter) refill() {
	now := r.now()
	elapsed := now.Sub(r.last).Seconds()
	r.last = now
	r.tokens += elapsed * r.refillRate
	if r.tokens > r.max {
		r.tokens = r.max
	}
}

// Allow reports whether a token is immediately available, consuming it if so.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		deficit := 1 - r.tokens
		wait := time.Duration(deficit/r.refillRate*1000) * time.Millisecond
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
