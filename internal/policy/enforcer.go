package policy

import (
	"context"
	"fmt"

	"github.com/haasonsaas/agui/internal/ratelimit"
	"github.com/haasonsaas/agui/internal/tokens"
	"github.com/haasonsaas/agui/pkg/models"
)

// ViolationType identifies which check denied a request.
type ViolationType string

const (
	ViolationRecursion     ViolationType = "RECURSION_DEPTH_EXCEEDED"
	ViolationContextWindow ViolationType = "CONTEXT_WINDOW_EXCEEDED"
	ViolationRateLimit     ViolationType = "RATE_LIMIT_EXCEEDED"
	ViolationToolCalls     ViolationType = "TOOL_CALLS_EXCEEDED"
	ViolationToolAllowlist ViolationType = "TOOL_NOT_ALLOWED"
)

// CheckResult is the enforcer's decision. Details carries the numbers
// behind a denial for the response envelope.
type CheckResult struct {
	Allowed   bool
	Reason    string
	Violation ViolationType
	Details   map[string]any
}

// Enforcer composes the five policy checks into one decision. Checks run
// in a fixed order and return on the first denial; the rate counter is not
// consumed here, so a denial leaves the windows untouched.
type Enforcer struct {
	limiter *ratelimit.Limiter
}

// NewEnforcer creates an enforcer over the given rate limiter.
func NewEnforcer(limiter *ratelimit.Limiter) *Enforcer {
	return &Enforcer{limiter: limiter}
}

// Check runs recursion, context-window, rate, tool-call-count, and tool
// allowlist checks in that order against the effective constraints.
func (e *Enforcer) Check(ctx context.Context, job *models.RunJob, constraints models.PolicyConstraints) CheckResult {
	// 1. Recursion depth: deny at exactly currentDepth == maxRecursionDepth.
	if job.CurrentDepth >= constraints.MaxRecursionDepth {
		return CheckResult{
			Reason:    fmt.Sprintf("recursion depth %d has reached the limit of %d", job.CurrentDepth, constraints.MaxRecursionDepth),
			Violation: ViolationRecursion,
			Details: map[string]any{
				"currentDepth": job.CurrentDepth,
				"maxDepth":     constraints.MaxRecursionDepth,
			},
		}
	}

	// 2. Context window, with the estimator's safety margin applied.
	validation := tokens.ValidateTexts(contextTexts(job), constraints.ContextWindowLimit)
	if !validation.OK {
		return CheckResult{
			Reason:    fmt.Sprintf("estimated %d tokens exceeds the context window limit of %d", validation.Estimated, constraints.ContextWindowLimit),
			Violation: ViolationContextWindow,
			Details: map[string]any{
				"estimated": validation.Estimated,
				"limit":     constraints.ContextWindowLimit,
				"effective": validation.Effective,
			},
		}
	}

	// 3. Rate limits. The window reason names the breached budget.
	decision := e.limiter.Check(ctx, job.UserID, constraints.RateLimit)
	if !decision.Allowed {
		return CheckResult{
			Reason:    decision.Reason,
			Violation: ViolationRateLimit,
			Details: map[string]any{
				"window":            decision.Window,
				"retryAfterSeconds": int(decision.RetryAfter.Seconds()),
			},
		}
	}

	// 4. Tool-call count: deny at exactly len(toolResults) == maxToolCalls.
	if len(job.ToolResults) >= constraints.MaxToolCalls {
		return CheckResult{
			Reason:    fmt.Sprintf("%d tool calls have reached the limit of %d", len(job.ToolResults), constraints.MaxToolCalls),
			Violation: ViolationToolCalls,
			Details: map[string]any{
				"toolCalls":    len(job.ToolResults),
				"maxToolCalls": constraints.MaxToolCalls,
			},
		}
	}

	// 5. Tool allowlist: every prior tool result must be an allowed tool.
	if len(constraints.AllowedTools) > 0 {
		for _, result := range job.ToolResults {
			if !constraints.ToolAllowed(result.ToolName) {
				return CheckResult{
					Reason:    fmt.Sprintf("tool %q is not in the allowed tool list", result.ToolName),
					Violation: ViolationToolAllowlist,
					Details: map[string]any{
						"toolName":     result.ToolName,
						"allowedTools": constraints.AllowedTools,
					},
				}
			}
		}
	}

	return CheckResult{Allowed: true}
}

func contextTexts(job *models.RunJob) []string {
	texts := []string{job.Prompt}
	if job.PreviousContext != "" {
		texts = append(texts, job.PreviousContext)
	}
	return texts
}
