package billing

import (
	"math"
	"testing"

	"github.com/haasonsaas/agui/pkg/models"
)

func TestTokenCostFor(t *testing.T) {
	tests := []struct {
		tokens int
		want   float64
	}{
		{0, 0},
		{1, 0.000002},
		{5000, 0.01},
		{1500, 0.003},
	}
	for _, tt := range tests {
		got, err := TokenCostFor(tt.tokens)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("TokenCostFor(%d) = %v, want %v", tt.tokens, got, tt.want)
		}
	}
	if _, err := TokenCostFor(-1); err == nil {
		t.Error("negative token count must error")
	}
}

func TestToolCostFor(t *testing.T) {
	got, err := ToolCostFor(2)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0.01 {
		t.Errorf("ToolCostFor(2) = %v, want 0.01", got)
	}
	if _, err := ToolCostFor(-1); err == nil {
		t.Error("negative tool count must error")
	}
}

func TestTotalCostExactFigures(t *testing.T) {
	// 5000 tokens and 2 tool calls: $0.01 + $0.01 = $0.02 exactly.
	got, err := TotalCost(5000, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0.02 {
		t.Errorf("TotalCost(5000, 2) = %v, want 0.02", got)
	}
}

func TestRound6(t *testing.T) {
	if got := Round6(0.0000014999); got != 0.000001 {
		t.Errorf("Round6 down = %v", got)
	}
	if got := Round6(0.0000015001); got != 0.000002 {
		t.Errorf("Round6 up = %v", got)
	}
}

func TestBreakdownAttribution(t *testing.T) {
	toolCalls := []models.ToolResult{
		{ToolName: "google_search"},
		{ToolName: "code_executor"},
	}
	rows := Breakdown(5000, toolCalls, nil)
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(rows))
	}

	wantPhases := []string{
		models.PhaseIngestion,
		models.PhasePolicy,
		models.PhaseExecution,
		models.PhaseAggregation,
		models.PhaseSerialization,
	}
	for i, row := range rows {
		if row.Phase != wantPhases[i] {
			t.Errorf("row[%d].Phase = %s, want %s", i, row.Phase, wantPhases[i])
		}
	}

	exec := rows[2]
	agg := rows[3]
	if exec.Tokens != 4500 {
		t.Errorf("execution tokens = %d, want 4500", exec.Tokens)
	}
	if exec.ToolCalls != 2 {
		t.Errorf("execution tool calls = %d, want 2", exec.ToolCalls)
	}
	if agg.Tokens != 500 {
		t.Errorf("aggregation tokens = %d, want 500", agg.Tokens)
	}
	if exec.Cost != 0.019 {
		t.Errorf("execution cost = %v, want 0.019", exec.Cost)
	}
	if agg.Cost != 0.001 {
		t.Errorf("aggregation cost = %v, want 0.001", agg.Cost)
	}
	for _, i := range []int{0, 1, 4} {
		if rows[i].Cost != 0 || rows[i].Tokens != 0 || rows[i].ToolCalls != 0 {
			t.Errorf("bookkeeping phase %s must cost nothing: %+v", rows[i].Phase, rows[i])
		}
	}
}

func TestBreakdownFloorSplit(t *testing.T) {
	// 1001 tokens: floor(0.9*1001) = 900 execution, 101 aggregation.
	rows := Breakdown(1001, nil, nil)
	if rows[2].Tokens != 900 || rows[3].Tokens != 101 {
		t.Errorf("split = %d/%d, want 900/101", rows[2].Tokens, rows[3].Tokens)
	}
	if rows[2].Tokens+rows[3].Tokens != 1001 {
		t.Error("split must conserve tokens")
	}
}

func TestBreakdownSumsToTotal(t *testing.T) {
	cases := []struct {
		tokens int
		tools  int
	}{
		{0, 0}, {1, 0}, {999, 3}, {5000, 2}, {123457, 7},
	}
	for _, tc := range cases {
		toolCalls := make([]models.ToolResult, tc.tools)
		rows := Breakdown(tc.tokens, toolCalls, nil)
		if !ValidateBreakdown(rows) {
			t.Errorf("breakdown for %d tokens / %d tools does not sum to total", tc.tokens, tc.tools)
		}
		var sum float64
		for _, row := range rows {
			sum += row.Cost
		}
		total, _ := TotalCost(tc.tokens, tc.tools)
		if math.Abs(sum-total) >= 1e-6 {
			t.Errorf("sum %v vs total %v", sum, total)
		}
	}
}
