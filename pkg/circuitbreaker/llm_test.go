package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantradar/grantradar/pkg/config"
	"github.com/grantradar/grantradar/pkg/models"
)

func testCfg() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		FailureThreshold:  3,
		RecoveryTimeout:   50 * time.Millisecond,
		LatencyWindowSize: 10,
		LatencyThreshold:  10 * time.Second,
	}
}

func TestLLMCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewLLMCircuitBreaker("anthropic", "openai", testCfg())

	assert.Equal(t, Provider("anthropic"), cb.GetProvider())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, Provider("anthropic"), cb.GetProvider(), "below threshold, still primary")

	cb.RecordFailure()
	assert.Equal(t, models.CircuitOpen, cb.State())
	assert.Equal(t, Provider("openai"), cb.GetProvider(), "tripped, routes to fallback")
}

func TestLLMCircuitBreakerRecoversAfterTimeout(t *testing.T) {
	cb := NewLLMCircuitBreaker("anthropic", "openai", testCfg())
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, models.CircuitOpen, cb.State())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, Provider("anthropic"), cb.GetProvider(), "half-open should retry primary")

	cb.RecordSuccess()
	assert.Equal(t, models.CircuitClosed, cb.State())
}

func TestLLMCircuitBreakerLatencyWindowTriggersSyntheticFailure(t *testing.T) {
	cfg := testCfg()
	cfg.LatencyThreshold = 1 * time.Second
	cb := NewLLMCircuitBreaker("anthropic", "openai", cfg)

	cb.RecordLatency(2 * time.Second)
	assert.Equal(t, models.CircuitClosed, cb.State(), "fewer than 3 samples never trips")

	cb.RecordLatency(2 * time.Second)
	cb.RecordLatency(2 * time.Second)
	cb.RecordLatency(2 * time.Second)
	cb.RecordLatency(2 * time.Second)
	assert.Equal(t, models.CircuitOpen, cb.State(), "samples 3 to 5 each record a synthetic failure; the third failure trips the breaker")
}

func TestLLMCircuitBreakerLatencyWindowIgnoresFastCalls(t *testing.T) {
	cfg := testCfg()
	cfg.LatencyThreshold = 1 * time.Second
	cb := NewLLMCircuitBreaker("anthropic", "openai", cfg)

	cb.RecordLatency(100 * time.Millisecond)
	cb.RecordLatency(100 * time.Millisecond)
	cb.RecordLatency(100 * time.Millisecond)
	assert.Equal(t, models.CircuitClosed, cb.State())
}
