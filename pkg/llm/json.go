package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON decodes an LLM text completion into T, tolerating the common
// wire wart of a response wrapped in a ```json ... ``` fence (spec §9:
// "model each response as a typed message with explicit parse ... never
// trust the wire shape").
func ParseJSON[T any](text string) (T, error) {
	var out T
	cleaned := stripCodeFence(text)
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return out, fmt.Errorf("parse LLM JSON response: %w", err)
	}
	return out, nil
}

func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

// Truncate truncates s from the right to at most maxChars, the policy spec
// §4.2 mandates for context-budget overflows ("truncation from the right
// is acceptable").
func Truncate(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars])
}
