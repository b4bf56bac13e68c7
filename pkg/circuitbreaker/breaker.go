// Package circuitbreaker wraps every external-service call (C3 gateways:
// LLM, embedding, email/SMS/Slack, grant-source HTTP) with a
// sony/gobreaker-backed circuit breaker, plus the LLM-specific
// latency-aware fallback routing from spec §4.6.3.
package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/grantradar/grantradar/pkg/config"
	"github.com/grantradar/grantradar/pkg/models"
)

// Breaker wraps one named external dependency.
type Breaker struct {
	name            string
	recoveryTimeout time.Duration
	cb              *gobreaker.CircuitBreaker
}

// New builds a Breaker named `name` from cfg: {failure_threshold=3,
// recovery_timeout=60s} per spec §4.6.3, generalized to every C3 gateway.
func New(name string, cfg config.CircuitBreakerConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one probe request while HALF_OPEN
		Interval:    0, // never reset counts while CLOSED
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &Breaker{name: name, recoveryTimeout: cfg.RecoveryTimeout, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

// State reports the breaker's current state, mapped onto models.CircuitState.
func (b *Breaker) State() models.CircuitState {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return models.CircuitOpen
	case gobreaker.StateHalfOpen:
		return models.CircuitHalfOpen
	default:
		return models.CircuitClosed
	}
}

// Snapshot returns the store-side mirror of this breaker's state for
// dashboards (spec §5 "circuit-breaker state ... mirrored to the store").
func (b *Breaker) Snapshot() models.CircuitBreakerState {
	counts := b.cb.Counts()
	var lastFailure *time.Time
	if counts.ConsecutiveFailures > 0 {
		now := time.Now().UTC()
		lastFailure = &now
	}
	return models.CircuitBreakerState{
		Service:         b.name,
		State:           b.State(),
		FailureCount:    int(counts.ConsecutiveFailures),
		LastFailureAt:   lastFailure,
		RecoveryTimeout: b.recoveryTimeout,
	}
}
