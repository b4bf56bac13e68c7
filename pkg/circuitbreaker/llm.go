package circuitbreaker

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/grantradar/grantradar/pkg/config"
	"github.com/grantradar/grantradar/pkg/models"
)

// Provider identifies which upstream LLM provider a call should use.
type Provider string

// LLMCircuitBreaker wraps LLM calls with failure-threshold tripping plus a
// sliding window of recent call latencies: if the mean of the last
// (at least 3 of up to LatencyWindowSize) samples exceeds LatencyThreshold,
// a synthetic failure is recorded so a chronically-slow-but-technically-up
// primary still triggers fallback (spec §4.6.3).
type LLMCircuitBreaker struct {
	primary  Provider
	fallback Provider

	latencyThreshold time.Duration
	windowSize       int

	cb *gobreaker.CircuitBreaker

	mu        sync.Mutex
	latencies []time.Duration
}

// NewLLMCircuitBreaker builds the breaker from cfg's primary/fallback
// provider names and shared circuit-breaker settings.
func NewLLMCircuitBreaker(primary, fallback Provider, cfg config.CircuitBreakerConfig) *LLMCircuitBreaker {
	settings := gobreaker.Settings{
		Name:        "llm_" + string(primary),
		MaxRequests: 1,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &LLMCircuitBreaker{
		primary:          primary,
		fallback:         fallback,
		latencyThreshold: cfg.LatencyThreshold,
		windowSize:       cfg.LatencyWindowSize,
		cb:               gobreaker.NewCircuitBreaker(settings),
	}
}

// RecordLatency appends a latency sample, trimming to windowSize. Once at
// least 3 samples are present, a mean exceeding latencyThreshold records a
// synthetic failure against the breaker.
func (l *LLMCircuitBreaker) RecordLatency(d time.Duration) {
	l.mu.Lock()
	l.latencies = append(l.latencies, d)
	if len(l.latencies) > l.windowSize {
		l.latencies = l.latencies[1:]
	}
	mean := l.meanLocked()
	samples := len(l.latencies)
	l.mu.Unlock()

	if samples >= 3 && mean > l.latencyThreshold {
		l.RecordFailure()
	}
}

func (l *LLMCircuitBreaker) meanLocked() time.Duration {
	if len(l.latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range l.latencies {
		total += d
	}
	return total / time.Duration(len(l.latencies))
}

// RecordSuccess reports a successful call to the breaker's counters.
func (l *LLMCircuitBreaker) RecordSuccess() {
	_, _ = l.cb.Execute(func() (any, error) { return nil, nil })
}

// RecordFailure reports a failed call to the breaker's counters.
func (l *LLMCircuitBreaker) RecordFailure() {
	_, _ = l.cb.Execute(func() (any, error) { return nil, errSynthetic })
}

var errSynthetic = synthFailure{}

type synthFailure struct{}

func (synthFailure) Error() string { return "recorded failure" }

// GetProvider returns primary when CLOSED or HALF_OPEN, else fallback, per
// spec §4.6.3.
func (l *LLMCircuitBreaker) GetProvider() Provider {
	if l.cb.State() == gobreaker.StateOpen {
		return l.fallback
	}
	return l.primary
}

// State maps the breaker's gobreaker state onto models.CircuitState.
func (l *LLMCircuitBreaker) State() models.CircuitState {
	switch l.cb.State() {
	case gobreaker.StateOpen:
		return models.CircuitOpen
	case gobreaker.StateHalfOpen:
		return models.CircuitHalfOpen
	default:
		return models.CircuitClosed
	}
}

// Snapshot returns the store-side mirror of breaker state for dashboards.
func (l *LLMCircuitBreaker) Snapshot() models.CircuitBreakerState {
	counts := l.cb.Counts()
	var lastFailure *time.Time
	if counts.ConsecutiveFailures > 0 {
		now := time.Now().UTC()
		lastFailure = &now
	}
	return models.CircuitBreakerState{
		Service:       "llm_" + string(l.primary),
		State:         l.State(),
		FailureCount:  int(counts.ConsecutiveFailures),
		LastFailureAt: lastFailure,
	}
}
