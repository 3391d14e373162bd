// Package models defines the wire types shared across the AGUI execution
// engine: jobs, responses, agent decisions, policies, audit events, cache
// entries, and billing records.
package models

// Job limits enforced by the ingestion schema.
const (
	MinMaxDepth          = 1
	MaxMaxDepth          = 20
	DefaultMaxDepth      = 5
	MinContextWindow     = 100
	MaxContextWindow     = 128000
	DefaultContextWindow = 8000
)

// RunJob is the client-submitted unit of work. It travels immutably through
// the pipeline; unknown top-level fields are rejected at ingress.
type RunJob struct {
	// UserID is the tenant key. Required, non-empty.
	UserID string `json:"userId"`

	// Prompt is the natural-language task. Required, non-empty.
	Prompt string `json:"prompt"`

	// CorrelationID is a globally unique id (UUID) for this attempt.
	// It is volatile: two attempts at the same work carry different ids.
	CorrelationID string `json:"correlationId"`

	// MaxDepth bounds the recursion of the reason-act loop. [1,20], default 5.
	MaxDepth int `json:"maxDepth"`

	// CurrentDepth is the depth at which this invocation enters the
	// pipeline. >= 0, default 0. Volatile like CorrelationID.
	CurrentDepth int `json:"currentDepth"`

	// ContextWindowLimit is the token budget. [100,128000], default 8000.
	ContextWindowLimit int `json:"contextWindowLimit"`

	// PreviousContext carries accumulated reasoning from earlier invocations.
	PreviousContext string `json:"previousContext,omitempty"`

	// ToolResults is the ordered sequence of prior tool outcomes.
	ToolResults []ToolResult `json:"toolResults,omitempty"`

	// Metadata is a free-form key/value map.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ApplyDefaults fills the defaulted numeric fields when the client omitted
// them. Zero values are unreachable through the schema, so zero means unset.
func (j *RunJob) ApplyDefaults() {
	if j.MaxDepth == 0 {
		j.MaxDepth = DefaultMaxDepth
	}
	if j.ContextWindowLimit == 0 {
		j.ContextWindowLimit = DefaultContextWindow
	}
}

// ToolResult records the outcome of a single tool dispatch.
type ToolResult struct {
	// ToolName is one of the closed tool name set.
	ToolName string `json:"toolName"`

	// Result is the tool's output, nil when the call failed.
	Result any `json:"result"`

	// ExecutionTime is wall-clock milliseconds spent in the executor.
	ExecutionTime int64 `json:"executionTime,omitempty"`

	// Cost is the metered cost in dollars, computed even for failures.
	Cost float64 `json:"cost,omitempty"`

	// Error holds the failure description when the call did not succeed.
	Error string `json:"error,omitempty"`
}
