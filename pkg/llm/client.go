// Package llm provides the LLM gateway (C3): typed clients for the
// Anthropic (primary) and OpenAI (fallback) providers, fronted by a Router
// that consults pkg/circuitbreaker's LLMCircuitBreaker for primary/fallback
// routing (spec §4.6.3). Every call site gets a plain string completion;
// structured-JSON parsing with rubric/deterministic fallbacks lives one
// layer up, in the agents that know what shape to expect (curation,
// matcher) — this package never assumes a response schema.
package llm

import "context"

// ChatClient is the minimal contract both providers satisfy: send a single
// user-role prompt, get back the model's text completion.
type ChatClient interface {
	// Complete sends prompt (already truncated to the provider's context
	// budget by the caller) and returns the raw text response.
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}
