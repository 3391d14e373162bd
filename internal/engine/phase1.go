package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/haasonsaas/agui/internal/schema"
	"github.com/haasonsaas/agui/internal/signature"
	"github.com/haasonsaas/agui/pkg/models"
)

// ingestion is the outcome of phase 1: a validated job with its intent
// signature, plus the cached response when the signature hit.
type ingestion struct {
	Job       *models.RunJob
	Signature string
	Cached    *models.Response
	Err       *models.ErrorInfo
}

func (i *ingestion) correlationID() string {
	if i.Job != nil {
		return i.Job.CorrelationID
	}
	return "unknown"
}

// runIngestion validates the raw payload, derives the intent signature,
// and probes the result cache. Cache failures degrade to a miss.
func (e *Engine) runIngestion(ctx context.Context, raw json.RawMessage) *ingestion {
	started := e.now()
	ctx, span := e.tracer.Start(ctx, "engine.ingestion")
	defer span.End()
	defer e.observePhase(models.PhaseIngestion, started)

	job, err := e.schemas.ValidateJob(raw)
	if err != nil {
		details := map[string]any{}
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			details["issues"] = verr.Issues
		}
		return &ingestion{Err: &models.ErrorInfo{
			Code:    CodeValidationFailed,
			Message: err.Error(),
			Details: details,
		}}
	}
	e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhaseIngestion, "VALIDATION_SUCCESS", map[string]any{
		"maxDepth":           job.MaxDepth,
		"contextWindowLimit": job.ContextWindowLimit,
	})

	sig, err := signature.Compute(job)
	if err != nil {
		return &ingestion{Job: job, Err: &models.ErrorInfo{
			Code:    CodeEngineError,
			Message: "intent signature derivation failed: " + err.Error(),
		}}
	}
	e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhaseIngestion, "SIGNATURE_CALCULATED", map[string]any{
		"signature":      sig,
		"signatureShort": signature.Short(sig),
	})

	lookup := e.cache.Lookup(ctx, sig, job.UserID)
	if lookup.Err != nil {
		e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhaseIngestion, "CACHE_ERROR", map[string]any{
			"signature": sig,
			"error":     lookup.Err.Error(),
		})
		if e.metrics != nil {
			e.metrics.CacheCounter.WithLabelValues("error").Inc()
		}
		return &ingestion{Job: job, Signature: sig}
	}
	if lookup.Hit {
		e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhaseIngestion, "CACHE_HIT", map[string]any{
			"signature":  sig,
			"ageSeconds": int(lookup.Age.Seconds()),
		})
		if e.metrics != nil {
			e.metrics.CacheCounter.WithLabelValues("hit").Inc()
		}
		return &ingestion{Job: job, Signature: sig, Cached: lookup.Response}
	}
	e.audit.Event(ctx, job.CorrelationID, job.UserID, models.PhaseIngestion, "CACHE_MISS", map[string]any{
		"signature": sig,
	})
	if e.metrics != nil {
		e.metrics.CacheCounter.WithLabelValues("miss").Inc()
	}
	return &ingestion{Job: job, Signature: sig}
}
