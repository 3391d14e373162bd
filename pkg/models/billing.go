package models

import "time"

// PhaseCost is one row of a per-phase cost breakdown.
type PhaseCost struct {
	Phase     string  `json:"phase"`
	Tokens    int     `json:"tokens"`
	ToolCalls int     `json:"toolCalls"`
	Cost      float64 `json:"cost"`
}

// BillingMetrics summarizes the measurable work of a run.
type BillingMetrics struct {
	TokensUsed     int `json:"tokensUsed"`
	ToolCallsCount int `json:"toolCallsCount"`
	LLMCallsCount  int `json:"llmCallsCount"`
	RecursionDepth int `json:"recursionDepth"`
}

// BillingReport is the assembled cost record for one correlation id.
type BillingReport struct {
	CorrelationID string         `json:"correlationId"`
	UserID        string         `json:"userId"`
	TotalCost     float64        `json:"totalCost"`
	CostBreakdown []PhaseCost    `json:"costBreakdown"`
	ExecutionTime int64          `json:"executionTime"`
	Timestamp     time.Time      `json:"timestamp"`
	Metrics       BillingMetrics `json:"metrics"`
}

// ExecutionRecord is the persisted execution-metadata row, upserted by
// correlation id.
type ExecutionRecord struct {
	CorrelationID  string      `json:"correlationId"`
	Signature      string      `json:"intentSignature"`
	UserID         string      `json:"userId"`
	StartedAt      time.Time   `json:"startedAt"`
	CompletedAt    time.Time   `json:"completedAt"`
	Status         string      `json:"status"`
	PhaseResult    PhaseResult `json:"phaseResult"`
	FromCache      bool        `json:"fromCache"`
	ExecutionTime  int64       `json:"executionTimeMs"`
	TokensUsed     int         `json:"tokensUsed"`
	TotalCost      float64     `json:"totalCost"`
	RecursionDepth int         `json:"recursionDepth"`
	ToolCallsCount int         `json:"toolCallsCount"`
	LLMCallsCount  int         `json:"llmCallsCount"`
	ErrorCode      string      `json:"errorCode,omitempty"`
	ErrorMessage   string      `json:"errorMessage,omitempty"`
}
