package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/grantradar/grantradar/pkg/circuitbreaker"
)

// Router fronts the primary/fallback providers with the LLM circuit
// breaker: every call records latency and success/failure, and the actual
// provider used is chosen by breaker state (spec §4.6.3).
type Router struct {
	primary  ChatClient
	fallback ChatClient
	breaker  *circuitbreaker.LLMCircuitBreaker

	primaryName  circuitbreaker.Provider
	fallbackName circuitbreaker.Provider
}

// NewRouter builds a Router. primaryName/fallbackName must match the names
// the breaker was constructed with.
func NewRouter(primary, fallback ChatClient, primaryName, fallbackName circuitbreaker.Provider, breaker *circuitbreaker.LLMCircuitBreaker) *Router {
	return &Router{
		primary:      primary,
		fallback:     fallback,
		breaker:      breaker,
		primaryName:  primaryName,
		fallbackName: fallbackName,
	}
}

// Complete routes to whichever provider the breaker currently selects,
// recording latency/success/failure around the call.
func (r *Router) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	provider := r.breaker.GetProvider()
	client := r.primary
	if provider == r.fallbackName {
		client = r.fallback
	}

	start := time.Now()
	text, err := client.Complete(ctx, prompt, maxTokens)
	elapsed := time.Since(start)

	if provider == r.primaryName {
		r.breaker.RecordLatency(elapsed)
	}

	if err != nil {
		r.breaker.RecordFailure()
		return "", fmt.Errorf("llm router (%s): %w", provider, err)
	}
	r.breaker.RecordSuccess()
	return text, nil
}
