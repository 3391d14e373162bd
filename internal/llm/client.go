// Package llm defines the model client seam: a minimal completion
// interface, an error classifier that separates transient from terminal
// failures, and a resilient wrapper that retries transient errors with
// exponential backoff.
package llm

import (
	"context"
	"fmt"
)

// Completion is a single model response.
type Completion struct {
	Content      string `json:"content"`
	TokensUsed   int    `json:"tokensUsed"`
	FinishReason string `json:"finishReason"`
	Model        string `json:"model"`
}

// CallConfig carries optional per-call overrides.
type CallConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Client is the provider seam. Implementations include the OpenAI adapter
// and the scripted test client.
type Client interface {
	Complete(ctx context.Context, prompt string, cfg *CallConfig) (*Completion, error)
	CountTokens(text string) int
}

// APIError is the structured error surfaced by provider adapters. The
// classifier inspects Status, Code, and Message; adapters should populate
// whichever fields the provider exposes.
type APIError struct {
	Status        int
	Code          string
	Message       string
	RetryAfterSec float64
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("llm api error: status=%d code=%s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("llm api error: status=%d: %s", e.Status, e.Message)
}
