// Package billing owns deterministic cost math and billing persistence.
// Monetary values are computed in integer micro-dollars and exposed as
// floats rounded to six decimals, so repeated float arithmetic never
// drifts the attribution.
package billing

import (
	"fmt"
	"math"

	"github.com/haasonsaas/agui/pkg/models"
)

// Cost constants in micro-dollars.
const (
	tokenCostMicro = 2    // $0.000002 per token
	toolCostMicro  = 5000 // $0.005 per tool call
)

// Cost constants in dollars, for wire compatibility.
const (
	TokenCost = 0.000002
	ToolCost  = 0.005
)

// Round6 rounds a dollar amount to six decimals.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// TokenCostFor returns the cost of n tokens. Negative counts are an error.
func TokenCostFor(n int) (float64, error) {
	if n < 0 {
		return 0, fmt.Errorf("token count must be non-negative, got %d", n)
	}
	return float64(int64(n)*tokenCostMicro) / 1e6, nil
}

// ToolCostFor returns the cost of k tool calls. Negative counts are an error.
func ToolCostFor(k int) (float64, error) {
	if k < 0 {
		return 0, fmt.Errorf("tool call count must be non-negative, got %d", k)
	}
	return float64(int64(k)*toolCostMicro) / 1e6, nil
}

// TotalCost returns the combined cost of n tokens and k tool calls.
func TotalCost(n, k int) (float64, error) {
	if n < 0 || k < 0 {
		return 0, fmt.Errorf("counts must be non-negative, got tokens=%d tools=%d", n, k)
	}
	return float64(int64(n)*tokenCostMicro+int64(k)*toolCostMicro) / 1e6, nil
}

// Breakdown attributes cost across the five pipeline phases in fixed
// order. Execution receives floor(0.9 * tokens) and every tool call;
// aggregation receives the remaining tokens; the bookkeeping phases cost
// nothing.
func Breakdown(tokensUsed int, toolCalls []models.ToolResult, _ []models.AgentDecision) []models.PhaseCost {
	if tokensUsed < 0 {
		tokensUsed = 0
	}
	execTokens := tokensUsed * 9 / 10
	aggTokens := tokensUsed - execTokens
	tools := len(toolCalls)

	rows := []models.PhaseCost{
		{Phase: models.PhaseIngestion},
		{Phase: models.PhasePolicy},
		{Phase: models.PhaseExecution, Tokens: execTokens, ToolCalls: tools},
		{Phase: models.PhaseAggregation, Tokens: aggTokens},
		{Phase: models.PhaseSerialization},
	}
	for i := range rows {
		rows[i].Cost = float64(int64(rows[i].Tokens)*tokenCostMicro+int64(rows[i].ToolCalls)*toolCostMicro) / 1e6
	}
	return rows
}

// ValidateBreakdown checks that the phase rows sum to the total cost of
// their tokens and tool calls within 1e-6.
func ValidateBreakdown(rows []models.PhaseCost) bool {
	var sum float64
	tokens, tools := 0, 0
	for _, row := range rows {
		sum += row.Cost
		tokens += row.Tokens
		tools += row.ToolCalls
	}
	total, err := TotalCost(tokens, tools)
	if err != nil {
		return false
	}
	return math.Abs(sum-total) < 1e-6
}
