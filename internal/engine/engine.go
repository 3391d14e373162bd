// Package engine composes the execution pipeline: ingestion, policy,
// execution, and serialization, with audit, caching, rate limiting, and
// billing threaded through every run.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/haasonsaas/agui/internal/audit"
	"github.com/haasonsaas/agui/internal/billing"
	"github.com/haasonsaas/agui/internal/cache"
	"github.com/haasonsaas/agui/internal/llm"
	"github.com/haasonsaas/agui/internal/observability"
	"github.com/haasonsaas/agui/internal/policy"
	"github.com/haasonsaas/agui/internal/ratelimit"
	"github.com/haasonsaas/agui/internal/schema"
	"github.com/haasonsaas/agui/internal/serializer"
	"github.com/haasonsaas/agui/internal/storage"
	"github.com/haasonsaas/agui/internal/tools"
	"github.com/haasonsaas/agui/pkg/models"
)

// Error codes surfaced in response envelopes.
const (
	CodeValidationFailed      = "PHASE1_VALIDATION_FAILED"
	CodeRateLimitExceeded     = "PHASE3_RATE_LIMIT_EXCEEDED"
	CodeContextExceededPolicy = "PHASE3_CONTEXT_EXCEEDED"
	CodeRecursionExceeded     = "PHASE3_RECURSION_EXCEEDED"
	CodePolicyViolation       = "PHASE3_POLICY_VIOLATION"
	CodePolicyUnknownError    = "PHASE3_UNKNOWN_ERROR"
	CodeContextExceeded       = "CONTEXT_EXCEEDED"
	CodeParseFailure          = "PARSE_FAILURE"
	CodeToolNotAllowed        = "TOOL_NOT_ALLOWED"
	CodeToolCallsExceeded     = "TOOL_CALLS_EXCEEDED"
	CodeOutputInvalid         = "PHASE5_VALIDATION_FAILED"
	CodeAggregationError      = "PHASE5_UNKNOWN_ERROR"
	CodeEngineError           = "ENGINE_ERROR"
)

// Config tunes the engine.
type Config struct {
	// CacheTTLHours is the result cache TTL for completed runs. Clamped
	// into [1,168] at write time; zero selects the 24h default.
	CacheTTLHours int

	// Retention overrides the per-tier audit retention in days.
	Retention map[models.Tier]int

	// RetentionInterval is the audit sweep period. Default 1h.
	RetentionInterval time.Duration

	// RateLimiter tunes the in-memory limiter.
	RateLimiter ratelimit.Config

	// LLM tunes retry behavior for model calls.
	LLM llm.ResilientConfig
}

// Engine runs jobs through the pipeline. One Engine serves all tenants;
// construction wires the stores, model client, and tool registry once.
type Engine struct {
	schemas    *schema.Registry
	cache      *cache.Cache
	audit      *audit.Logger
	policies   *policy.Store
	enforcer   *policy.Enforcer
	limiter    *ratelimit.Limiter
	client     *llm.Resilient
	dispatcher *tools.Dispatcher
	reporter   *billing.Reporter
	codec      *serializer.Serializer
	metrics    *observability.Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
	retention  *audit.RetentionSweeper

	cacheTTLHours int
	now           func() time.Time
}

// New assembles an engine over the given stores and model client. metrics
// and tracer may be nil.
func New(
	stores storage.StoreSet,
	client llm.Client,
	registry *tools.Registry,
	cfg Config,
	metrics *observability.Metrics,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("agui")
	}

	auditLogger := audit.NewLogger(stores.Audit, logger)
	limiter := ratelimit.NewLimiter(cfg.RateLimiter, stores.RateLimit, logger)
	schemas := schema.MustRegistry()

	return &Engine{
		schemas:    schemas,
		cache:      cache.New(stores.Cache, logger),
		audit:      auditLogger,
		policies:   policy.NewStore(stores.Policies, logger),
		enforcer:   policy.NewEnforcer(limiter),
		limiter:    limiter,
		client:     llm.NewResilient(client, &cfg.LLM, logger),
		dispatcher: tools.NewDispatcher(registry, auditLogger, metrics, logger),
		reporter:   billing.NewReporter(stores.Billing, logger),
		codec:      serializer.New(schemas),
		metrics:    metrics,
		tracer:     tracer,
		logger:     logger,
		retention:  audit.NewRetentionSweeper(stores.Audit, cfg.Retention, cfg.RetentionInterval, logger),

		cacheTTLHours: cfg.CacheTTLHours,
		now:           time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.cache.WithClock(now)
	e.audit.WithClock(now)
	e.limiter.WithClock(now)
	e.reporter.WithClock(now)
	return e
}

// Audit exposes the audit logger for the transport layer's trail queries.
func (e *Engine) Audit() *audit.Logger { return e.audit }

// Cache exposes the result cache for the transport layer's cache admin.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Reporter exposes the billing reporter for cost queries.
func (e *Engine) Reporter() *billing.Reporter { return e.reporter }

// Serializer exposes the response codec for the transport layer.
func (e *Engine) Serializer() *serializer.Serializer { return e.codec }

// Start launches the background workers: the rate limiter sweeper and
// the audit retention sweeper.
func (e *Engine) Start() {
	e.limiter.Start()
	e.retention.Start()
}

// Close stops the background workers and waits for them to exit.
func (e *Engine) Close() {
	e.limiter.Close()
	e.retention.Close()
}

// Run executes one raw job payload through the full pipeline. It always
// returns a response; failures are encoded in the response envelope.
func (e *Engine) Run(ctx context.Context, raw json.RawMessage) *models.Response {
	started := e.now()
	ctx, span := e.tracer.Start(ctx, "engine.run")
	defer span.End()

	ing := e.runIngestion(ctx, raw)
	if ing.Err != nil {
		resp := e.errorResponse(ing.correlationID(), ing.Signature, ing.Err, started)
		e.observe(resp)
		return resp
	}
	span.SetAttributes(
		attribute.String("correlation_id", ing.Job.CorrelationID),
		attribute.String("user_id", ing.Job.UserID),
	)

	if ing.Cached != nil {
		resp := e.runCached(ctx, ing, started)
		e.observe(resp)
		return resp
	}

	pol := e.runPolicy(ctx, ing.Job)
	if pol.Err != nil {
		resp := e.deniedResponse(ctx, ing, pol, started)
		e.observe(resp)
		return resp
	}

	exec := e.runExecution(ctx, ing.Job, pol.Constraints)
	resp := e.runSerialization(ctx, ing, exec, started)
	e.observe(resp)
	return resp
}

// errorResponse renders a pipeline failure that never reached billing.
func (e *Engine) errorResponse(correlationID, sig string, errInfo *models.ErrorInfo, started time.Time) *models.Response {
	now := e.now()
	resp := serializer.NewErrorResponse(correlationID, sig, errInfo.Code, errInfo.Message, errInfo.Details)
	resp.StartedAt = started.UTC()
	resp.CompletedAt = now.UTC()
	resp.ExecutionTime = now.Sub(started).Milliseconds()
	return resp
}

func (e *Engine) observe(resp *models.Response) {
	if e.metrics == nil {
		return
	}
	e.metrics.RequestCounter.WithLabelValues(string(resp.PhaseResult), resp.Status).Inc()
}

func (e *Engine) observePhase(phase string, started time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.PhaseDuration.WithLabelValues(phase).Observe(e.now().Sub(started).Seconds())
}
