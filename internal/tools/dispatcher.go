package tools

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"context"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/agui/internal/audit"
	"github.com/haasonsaas/agui/internal/billing"
	"github.com/haasonsaas/agui/internal/observability"
	"github.com/haasonsaas/agui/pkg/models"
)

// overtimeThreshold is the execution time included in the base cost;
// beyond it each additional second adds overtimeRate.
const (
	overtimeThresholdMs = 1000
	overtimeRate        = 0.001
)

// DispatchContext identifies the request on whose behalf a tool runs.
// When both fields are set the dispatcher emits audit events.
type DispatchContext struct {
	CorrelationID string
	UserID        string
}

// Call names one tool invocation for batch dispatch.
type Call struct {
	Name string
	Args map[string]any
}

// Metrics is a point-in-time snapshot of dispatcher counters.
type Metrics struct {
	TotalExecutions int64
	ErrorCount      int64
	TotalCost       float64
	TotalTimeMs     int64
	PerToolCounts   map[string]int64
}

// Dispatcher validates, executes, meters, and audits tool calls. Every
// call is metered, including lookup and validation failures.
type Dispatcher struct {
	registry *Registry
	audit    *audit.Logger
	obs      *observability.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	metrics Metrics
}

// NewDispatcher creates a dispatcher. audit and obs may be nil.
func NewDispatcher(registry *Registry, auditLogger *audit.Logger, obs *observability.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		registry: registry,
		audit:    auditLogger,
		obs:      obs,
		logger:   logger,
		metrics:  Metrics{PerToolCounts: make(map[string]int64)},
	}
}

// Dispatch runs one tool call and returns its metered result. The result
// carries an error string instead of failing the pipeline; cost is
// computed and recorded even for failures.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any, dctx *DispatchContext) *models.ToolResult {
	d.auditEvent(ctx, dctx, "TOOL_CALL_START", map[string]any{"toolName": name})
	start := time.Now()

	var output any
	var execErr string

	def, found := d.registry.Get(name)
	switch {
	case !found:
		execErr = fmt.Sprintf("tool not found: %s", name)
	default:
		if verr := d.registry.ValidateArgs(name, args); verr != nil {
			execErr = fmt.Sprintf("Invalid arguments: %v", verr)
		} else {
			output, execErr = d.execute(ctx, def, args)
		}
	}

	elapsed := time.Since(start)
	elapsedMs := elapsed.Milliseconds()
	cost := executionCost(name, elapsedMs)

	result := &models.ToolResult{
		ToolName:      name,
		Result:        output,
		ExecutionTime: elapsedMs,
		Cost:          cost,
		Error:         execErr,
	}
	d.record(result, elapsed)

	if execErr != "" {
		d.auditEvent(ctx, dctx, "TOOL_CALL_ERROR", map[string]any{
			"toolName": name,
			"error":    execErr,
			"cost":     cost,
		})
	} else {
		d.auditEvent(ctx, dctx, "TOOL_CALL_SUCCESS", map[string]any{
			"toolName":        name,
			"executionTimeMs": elapsedMs,
			"cost":            cost,
		})
	}
	return result
}

// DispatchBatch runs the calls concurrently and returns results in input
// order. Calls are independent: one failure does not abort the others.
func (d *Dispatcher) DispatchBatch(ctx context.Context, calls []Call, dctx *DispatchContext) []*models.ToolResult {
	results := make([]*models.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = d.Dispatch(gctx, call.Name, call.Args, dctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// MetricsSnapshot returns a copy of the dispatcher counters.
func (d *Dispatcher) MetricsSnapshot() Metrics {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.metrics
	out.PerToolCounts = make(map[string]int64, len(d.metrics.PerToolCounts))
	for name, n := range d.metrics.PerToolCounts {
		out.PerToolCounts[name] = n
	}
	return out
}

func (d *Dispatcher) execute(ctx context.Context, def *Definition, args map[string]any) (output any, execErr string) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			execErr = fmt.Sprintf("tool panicked: %v", r)
		}
	}()
	out, err := def.Execute(ctx, args)
	if err != nil {
		return nil, err.Error()
	}
	return out, ""
}

// executionCost computes base + overtime, scaled by the per-tool modifier
// and rounded to six decimals.
func executionCost(name string, elapsedMs int64) float64 {
	cost := billing.ToolCost
	if elapsedMs > overtimeThresholdMs {
		cost += float64(elapsedMs-overtimeThresholdMs) / 1000.0 * overtimeRate
	}
	return billing.Round6(cost * CostModifier(name))
}

func (d *Dispatcher) record(result *models.ToolResult, elapsed time.Duration) {
	d.mu.Lock()
	d.metrics.TotalExecutions++
	d.metrics.TotalCost += result.Cost
	d.metrics.TotalTimeMs += result.ExecutionTime
	if result.Error != "" {
		d.metrics.ErrorCount++
	}
	d.metrics.PerToolCounts[result.ToolName]++
	d.mu.Unlock()

	if d.obs != nil {
		status := "success"
		if result.Error != "" {
			status = "error"
		}
		d.obs.ToolExecutionCounter.WithLabelValues(result.ToolName, status).Inc()
		d.obs.ToolExecutionDuration.WithLabelValues(result.ToolName).Observe(elapsed.Seconds())
	}
}

func (d *Dispatcher) auditEvent(ctx context.Context, dctx *DispatchContext, event string, details map[string]any) {
	if d.audit == nil || dctx == nil || dctx.CorrelationID == "" || dctx.UserID == "" {
		return
	}
	d.audit.Event(ctx, dctx.CorrelationID, dctx.UserID, models.PhaseExecution, event, details)
}
