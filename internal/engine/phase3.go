package engine

import (
	"context"

	"github.com/haasonsaas/agui/internal/policy"
	"github.com/haasonsaas/agui/pkg/models"
)

// policyOutcome is the result of phase 3: the effective constraints on
// success, or a structured denial.
type policyOutcome struct {
	Constraints models.PolicyConstraints
	Tier        models.Tier
	Violation   policy.ViolationType
	Err         *models.ErrorInfo
}

// runPolicy loads the user's policy, derives the effective constraints,
// and runs the five checks. The rate counter is consumed only on allow,
// so denied requests never burn budget.
func (e *Engine) runPolicy(ctx context.Context, job *models.RunJob) *policyOutcome {
	started := e.now()
	ctx, span := e.tracer.Start(ctx, "engine.policy")
	defer span.End()
	defer e.observePhase(models.PhasePolicy, started)

	e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhasePolicy, "PHASE_STARTED", nil)

	userPolicy, err := e.policies.GetOrCreate(ctx, job.UserID)
	if err != nil {
		e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhasePolicy, "PHASE_ERROR", map[string]any{
			"error": err.Error(),
		})
		return &policyOutcome{Err: &models.ErrorInfo{
			Code:    CodePolicyUnknownError,
			Message: "policy retrieval failed: " + err.Error(),
		}}
	}
	e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhasePolicy, "POLICY_RETRIEVED", map[string]any{
		"tier":               string(userPolicy.Tier),
		"maxRecursionDepth":  userPolicy.Constraints.MaxRecursionDepth,
		"contextWindowLimit": userPolicy.Constraints.ContextWindowLimit,
		"maxToolCalls":       userPolicy.Constraints.MaxToolCalls,
	})

	constraints := effectiveConstraints(job, userPolicy.Constraints)

	check := e.enforcer.Check(ctx, job, constraints)
	if !check.Allowed {
		e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhasePolicy, "POLICY_VIOLATION", map[string]any{
			"violation": string(check.Violation),
			"reason":    check.Reason,
		})
		return &policyOutcome{
			Tier:      userPolicy.Tier,
			Violation: check.Violation,
			Err: &models.ErrorInfo{
				Code:    violationCode(check.Violation),
				Message: check.Reason,
				Details: check.Details,
			},
		}
	}

	e.limiter.Increment(ctx, job.UserID)
	e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhasePolicy, "POLICY_CHECKS_PASSED", map[string]any{
		"tier": string(userPolicy.Tier),
	})
	return &policyOutcome{Constraints: constraints, Tier: userPolicy.Tier}
}

// effectiveConstraints tightens the policy constraints with the job's own
// caps. A job may request less than its tier allows, never more.
func effectiveConstraints(job *models.RunJob, c models.PolicyConstraints) models.PolicyConstraints {
	if job.MaxDepth > 0 && job.MaxDepth < c.MaxRecursionDepth {
		c.MaxRecursionDepth = job.MaxDepth
	}
	if job.ContextWindowLimit > 0 && job.ContextWindowLimit < c.ContextWindowLimit {
		c.ContextWindowLimit = job.ContextWindowLimit
	}
	return c
}

func violationCode(v policy.ViolationType) string {
	switch v {
	case policy.ViolationRateLimit:
		return CodeRateLimitExceeded
	case policy.ViolationContextWindow:
		return CodeContextExceededPolicy
	case policy.ViolationRecursion:
		return CodeRecursionExceeded
	default:
		return CodePolicyViolation
	}
}
