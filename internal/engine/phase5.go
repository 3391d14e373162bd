package engine

import (
	"context"
	"time"

	"github.com/haasonsaas/agui/internal/serializer"
	"github.com/haasonsaas/agui/pkg/models"
)

// runSerialization assembles the final response for an executed run:
// billing enrichment, schema validation, the cache write for completed
// runs, and metadata persistence. The cache write finishes before the
// response is returned so an immediate replay of the same intent hits.
func (e *Engine) runSerialization(ctx context.Context, ing *ingestion, exec *execution, started time.Time) *models.Response {
	phaseStart := e.now()
	ctx, span := e.tracer.Start(ctx, "engine.serialization")
	defer span.End()
	defer e.observePhase(models.PhaseSerialization, phaseStart)

	job := ing.Job
	now := e.now()
	elapsed := now.Sub(started).Milliseconds()

	resp := &models.Response{
		CorrelationID: job.CorrelationID,
		JobSignature:  ing.Signature,
		Status:        exec.Status,
		Result:        exec.Result,
		Error:         exec.Err,
		PhaseResult:   models.PhaseContinue,
		ExecutionTime: elapsed,
		TokensUsed:    exec.TokensUsed,
		Decisions:     exec.Decisions,
		ToolCalls:     exec.ToolCalls,
		StartedAt:     started.UTC(),
		CompletedAt:   now.UTC(),
	}
	if exec.Err != nil {
		resp.PhaseResult = models.PhaseError
	}

	sum := &models.ExecutionSummary{
		Status:         exec.Status,
		PhaseResult:    resp.PhaseResult,
		TokensUsed:     exec.TokensUsed,
		Decisions:      exec.Decisions,
		ToolCalls:      exec.ToolCalls,
		RecursionDepth: exec.Depth,
		ExecutionTime:  elapsed,
		StartedAt:      resp.StartedAt,
		CompletedAt:    resp.CompletedAt,
	}
	if exec.Err != nil {
		sum.ErrorCode = exec.Err.Code
		sum.ErrorMessage = exec.Err.Message
	}
	e.finalizeBilling(ctx, job.CorrelationID, job.UserID, ing.Signature, resp, sum)

	if issues := e.codec.ValidateWithErrors(resp); issues != nil {
		e.logger.Error("response failed output validation",
			"correlation_id", job.CorrelationID,
			"issues", len(issues),
		)
		return e.errorResponse(job.CorrelationID, ing.Signature, &models.ErrorInfo{
			Code:    CodeOutputInvalid,
			Message: "assembled response failed schema validation",
			Details: map[string]any{"issues": issues},
		}, started)
	}

	if resp.Status == models.RunComplete && !resp.FromCache {
		if err := e.cache.Write(ctx, ing.Signature, job.UserID, resp, e.cacheTTLHours); err != nil {
			e.logger.Warn("result cache write failed",
				"correlation_id", job.CorrelationID,
				"signature", ing.Signature,
				"error", err,
			)
		}
	}

	e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhaseSerialization, "PHASE_COMPLETE", map[string]any{
		"status":          resp.Status,
		"executionTimeMs": elapsed,
	})
	return resp
}

// runCached serves a prior response under the current correlation id.
// The replay is validated and billed as a zero-cost execution record.
func (e *Engine) runCached(ctx context.Context, ing *ingestion, started time.Time) *models.Response {
	ctx, span := e.tracer.Start(ctx, "engine.cached")
	defer span.End()

	job := ing.Job
	resp, err := e.codec.Clone(ing.Cached)
	if err != nil {
		e.logger.Error("cached response clone failed", "correlation_id", job.CorrelationID, "error", err)
		return e.errorResponse(job.CorrelationID, ing.Signature, &models.ErrorInfo{
			Code:    CodeEngineError,
			Message: "cached response could not be restored: " + err.Error(),
		}, started)
	}

	now := e.now()
	resp.CorrelationID = job.CorrelationID
	resp.PhaseResult = models.PhaseCacheHit
	resp.FromCache = true
	resp.TotalCost = 0
	resp.ExecutionTime = now.Sub(started).Milliseconds()
	resp.StartedAt = started.UTC()
	resp.CompletedAt = now.UTC()

	sum := &models.ExecutionSummary{
		Status:        resp.Status,
		PhaseResult:   models.PhaseCacheHit,
		FromCache:     true,
		ExecutionTime: resp.ExecutionTime,
		StartedAt:     resp.StartedAt,
		CompletedAt:   resp.CompletedAt,
	}
	e.finalizeBilling(ctx, job.CorrelationID, job.UserID, ing.Signature, nil, sum)

	if issues := e.codec.ValidateWithErrors(resp); issues != nil {
		e.logger.Error("cached response failed output validation",
			"correlation_id", job.CorrelationID,
			"issues", len(issues),
		)
		return e.errorResponse(job.CorrelationID, ing.Signature, &models.ErrorInfo{
			Code:    CodeOutputInvalid,
			Message: "cached response failed schema validation",
		}, started)
	}

	e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhaseSerialization, "CACHED_RESPONSE_RETURNED", map[string]any{
		"signature": ing.Signature,
	})
	return resp
}

// deniedResponse renders a phase-3 failure. Real policy denials carry the
// POLICY_VIOLATION disposition; infrastructure failures (a policy row that
// could not be retrieved or created) are plain errors. Either way the run
// is still billed: a zero-work execution record keeps the correlation id
// queryable.
func (e *Engine) deniedResponse(ctx context.Context, ing *ingestion, pol *policyOutcome, started time.Time) *models.Response {
	job := ing.Job
	now := e.now()
	elapsed := now.Sub(started).Milliseconds()

	disposition := models.PhasePolicyViolation
	if pol.Err.Code == CodePolicyUnknownError {
		disposition = models.PhaseError
	}

	resp := serializer.NewErrorResponse(job.CorrelationID, ing.Signature, pol.Err.Code, pol.Err.Message, pol.Err.Details)
	resp.PhaseResult = disposition
	resp.ExecutionTime = elapsed
	resp.StartedAt = started.UTC()
	resp.CompletedAt = now.UTC()

	sum := &models.ExecutionSummary{
		Status:        models.RunError,
		PhaseResult:   disposition,
		ExecutionTime: elapsed,
		StartedAt:     resp.StartedAt,
		CompletedAt:   resp.CompletedAt,
		ErrorCode:     pol.Err.Code,
		ErrorMessage:  pol.Err.Message,
	}
	e.finalizeBilling(ctx, job.CorrelationID, job.UserID, ing.Signature, resp, sum)
	return resp
}

// finalizeBilling generates and persists the billing report. resp, when
// non-nil, is enriched with the report's figures. Persistence is
// best-effort: a storage failure is logged, never surfaced.
func (e *Engine) finalizeBilling(ctx context.Context, correlationID, userID, sig string, resp *models.Response, sum *models.ExecutionSummary) {
	report := e.reporter.GenerateReport(correlationID, userID, sum)
	if resp != nil {
		e.codec.Enrich(resp, report)
	}
	e.audit.Event(ctx, correlationID, userID, models.PhaseAggregation, "FINAL_BILLING_REPORT", map[string]any{
		"totalCost":  report.TotalCost,
		"tokensUsed": report.Metrics.TokensUsed,
		"toolCalls":  report.Metrics.ToolCallsCount,
	})

	if err := e.reporter.PersistReport(ctx, report, sig, sum); err != nil {
		e.logger.Warn("execution metadata persist failed",
			"correlation_id", correlationID,
			"error", err,
		)
		return
	}
	e.audit.Event(ctx, correlationID, userID, models.PhaseAggregation, "METADATA_PERSISTED", map[string]any{
		"correlationId": correlationID,
	})
}
