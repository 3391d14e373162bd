package llm

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/agui/internal/backoff"
)

// Resilient wraps a Client with classified-error retry. Terminal errors
// propagate immediately; transient errors are retried up to MaxRetries
// times after the initial attempt, with exponential backoff that a
// classifier-supplied Retry-After overrides.
type Resilient struct {
	client Client
	policy backoff.Policy
	max    int
	logger *slog.Logger
}

// ResilientConfig tunes the retry behavior.
type ResilientConfig struct {
	// MaxRetries is the number of attempts after the initial one. Default 3.
	MaxRetries int
	// Policy computes per-attempt delays. Defaults to 1s doubling, no jitter.
	Policy backoff.Policy
}

// NewResilient wraps client with the retry policy. A nil logger disables
// retry logging.
func NewResilient(client Client, cfg *ResilientConfig, logger *slog.Logger) *Resilient {
	r := &Resilient{
		client: client,
		policy: backoff.DefaultPolicy(),
		max:    3,
		logger: logger,
	}
	if cfg != nil {
		if cfg.MaxRetries > 0 {
			r.max = cfg.MaxRetries
		}
		if cfg.Policy.Initial > 0 {
			r.policy = cfg.Policy
		}
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r
}

// Complete calls the wrapped client, retrying transient failures. The
// returned error is always a *ClassifiedError.
func (r *Resilient) Complete(ctx context.Context, prompt string, cfg *CallConfig) (*Completion, error) {
	var last *ClassifiedError
	for attempt := 0; ; attempt++ {
		completion, err := r.client.Complete(ctx, prompt, cfg)
		if err == nil {
			return completion, nil
		}
		last = Classify(err)
		if !last.Transient {
			return nil, last
		}
		if attempt >= r.max {
			return nil, last
		}

		delay := backoff.Compute(r.policy, attempt+1)
		if last.RetryAfter > 0 {
			delay = last.RetryAfter
		}
		r.logger.Warn("transient model error, retrying",
			"code", last.Code,
			"attempt", attempt+1,
			"max_retries", r.max,
			"delay", delay,
		)
		if err := backoff.Sleep(ctx, delay); err != nil {
			return nil, &ClassifiedError{Code: CodeCancelled, Transient: false, Err: err}
		}
	}
}

// CountTokens delegates to the wrapped client.
func (r *Resilient) CountTokens(text string) int {
	return r.client.CountTokens(text)
}
