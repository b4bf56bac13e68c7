package models

import "time"

// CircuitState mirrors the classic three-state breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreakerState is the store-side mirror of an in-process breaker,
// used for dashboards and health reporting. The authoritative state lives
// in the owning process (pkg/circuitbreaker); this is a replicated summary.
type CircuitBreakerState struct {
	Service         string
	State           CircuitState
	FailureCount    int
	LastFailureAt   *time.Time
	RecoveryTimeout time.Duration
}
