package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the engine's Prometheus instruments.
//
// Tracked series:
//   - Request outcomes by phase result (CONTINUE, CACHE_HIT, …)
//   - Per-phase latency
//   - LLM call counts, latency, and token consumption
//   - Tool execution counts and latency
//   - Cache probe outcomes
type Metrics struct {
	// RequestCounter counts pipeline runs.
	// Labels: phase_result, status
	RequestCounter *prometheus.CounterVec

	// PhaseDuration measures per-phase latency in seconds.
	// Labels: phase
	PhaseDuration *prometheus.HistogramVec

	// LLMRequestCounter counts model calls.
	// Labels: status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures model call latency in seconds.
	LLMRequestDuration prometheus.Histogram

	// LLMTokensUsed accumulates token consumption.
	LLMTokensUsed prometheus.Counter

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool latency in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// CacheCounter counts cache probes.
	// Labels: outcome (hit|miss)
	CacheCounter *prometheus.CounterVec
}

// NewMetrics creates and registers the engine metrics on the given
// registerer. Passing prometheus.DefaultRegisterer exposes them on the
// standard /metrics handler; tests pass a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agui_requests_total",
				Help: "Total pipeline runs by phase result and status",
			},
			[]string{"phase_result", "status"},
		),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agui_phase_duration_seconds",
				Help:    "Per-phase latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"phase"},
		),
		LLMRequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agui_llm_requests_total",
				Help: "Total model calls by status",
			},
			[]string{"status"},
		),
		LLMRequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agui_llm_request_duration_seconds",
				Help:    "Model call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		LLMTokensUsed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agui_llm_tokens_total",
				Help: "Total tokens consumed by model calls",
			},
		),
		ToolExecutionCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agui_tool_executions_total",
				Help: "Total tool invocations by tool and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agui_tool_execution_duration_seconds",
				Help:    "Tool execution latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		CacheCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agui_cache_probes_total",
				Help: "Result cache probes by outcome",
			},
			[]string{"outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.RequestCounter,
			m.PhaseDuration,
			m.LLMRequestCounter,
			m.LLMRequestDuration,
			m.LLMTokensUsed,
			m.ToolExecutionCounter,
			m.ToolExecutionDuration,
			m.CacheCounter,
		)
	}
	return m
}
