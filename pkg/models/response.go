package models

import "time"

// PhaseResult describes how the pipeline disposed of a request.
type PhaseResult string

const (
	PhaseContinue        PhaseResult = "CONTINUE"
	PhaseCacheHit        PhaseResult = "CACHE_HIT"
	PhasePolicyViolation PhaseResult = "POLICY_VIOLATION"
	PhaseError           PhaseResult = "ERROR"
)

// ErrorInfo is the structured error envelope carried by responses and phase
// results. Code is stable and documented; Details is optional context.
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Response is the single structured result of a pipeline run. One Response
// is returned to the caller, optionally written to the result cache,
// mirrored into a billing record, and traced in the audit log.
type Response struct {
	CorrelationID string          `json:"correlationId"`
	JobSignature  string          `json:"jobSignature"`
	Status        string          `json:"status"`
	Result        string          `json:"result,omitempty"`
	Error         *ErrorInfo      `json:"error,omitempty"`
	PhaseResult   PhaseResult     `json:"phaseResult"`
	FromCache     bool            `json:"fromCache"`
	ExecutionTime int64           `json:"executionTime"`
	TokensUsed    int             `json:"tokensUsed,omitempty"`
	TotalCost     float64         `json:"totalCost,omitempty"`
	Decisions     []AgentDecision `json:"decisions"`
	ToolCalls     []ToolResult    `json:"toolCalls"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   time.Time       `json:"completedAt"`
}

// Terminal execution statuses for Response.Status.
const (
	RunComplete = "COMPLETE"
	RunError    = "ERROR"
)

// ExecutionSummary condenses a finished (or denied) run for cost
// attribution and billing persistence.
type ExecutionSummary struct {
	Status         string
	PhaseResult    PhaseResult
	FromCache      bool
	TokensUsed     int
	Decisions      []AgentDecision
	ToolCalls      []ToolResult
	RecursionDepth int
	ExecutionTime  int64
	StartedAt      time.Time
	CompletedAt    time.Time
	ErrorCode      string
	ErrorMessage   string
}

// LLMCallCount returns the number of decisions that continued reasoning
// through another model call.
func (s *ExecutionSummary) LLMCallCount() int {
	n := 0
	for _, d := range s.Decisions {
		if d.ActionType == ActionLLMCall {
			n++
		}
	}
	return n
}
