package serializer

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/agui/internal/schema"
	"github.com/haasonsaas/agui/pkg/models"
)

func newSerializer() *Serializer {
	return New(schema.MustRegistry())
}

func fullResponse() *models.Response {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	return &models.Response{
		CorrelationID: "11111111-1111-4111-8111-111111111111",
		JobSignature:  strings.Repeat("ab", 32),
		Status:        models.RunComplete,
		Result:        "the answer",
		PhaseResult:   models.PhaseContinue,
		ExecutionTime: 1500,
		TokensUsed:    5000,
		TotalCost:     0.02,
		Decisions: []models.AgentDecision{
			{ActionType: models.ActionToolCall, ToolName: "google_search", ToolArguments: map[string]any{"query": "secret"}},
			{ActionType: models.ActionFinalAnswer, FinalAnswer: "the answer"},
		},
		ToolCalls: []models.ToolResult{
			{ToolName: "google_search", Result: map[string]any{"hits": 3.0}, ExecutionTime: 120, Cost: 0.005},
		},
		StartedAt:   now,
		CompletedAt: now.Add(1500 * time.Millisecond),
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	s := newSerializer()
	data, err := s.Serialize(fullResponse())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("\n  ")) {
		t.Error("Serialize must produce two-space indented JSON")
	}

	got, err := s.Deserialize(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Result != "the answer" || got.TokensUsed != 5000 {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestSerializeCompactIsSingleLine(t *testing.T) {
	s := newSerializer()
	data, err := s.SerializeCompact(fullResponse())
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("\n")) {
		t.Error("compact form must not contain newlines")
	}
}

func TestDeserializeRejectsInvalid(t *testing.T) {
	s := newSerializer()
	if _, err := s.Deserialize([]byte(`{"status":"COMPLETE"}`)); err == nil {
		t.Error("incomplete response accepted")
	}
	if _, err := s.Deserialize([]byte(`not json`)); err == nil {
		t.Error("malformed JSON accepted")
	}
}

func TestEnrichBillingWins(t *testing.T) {
	s := newSerializer()
	resp := fullResponse()
	resp.TotalCost = 99
	resp.TokensUsed = 1

	s.Enrich(resp, &models.BillingReport{
		TotalCost: 0.02,
		Metrics:   models.BillingMetrics{TokensUsed: 5000},
	})
	if resp.TotalCost != 0.02 {
		t.Errorf("totalCost = %v, the report must win", resp.TotalCost)
	}
	if resp.TokensUsed != 5000 {
		t.Errorf("tokensUsed = %d", resp.TokensUsed)
	}

	// Nil report leaves the response untouched.
	s.Enrich(resp, nil)
	if resp.TotalCost != 0.02 {
		t.Error("nil report must be a no-op")
	}
}

func TestNewErrorResponseIsSchemaValid(t *testing.T) {
	s := newSerializer()
	resp := NewErrorResponse("corr-1", "sig-1", "PHASE1_VALIDATION_FAILED", "bad payload", map[string]any{"field": "userId"})
	resp.StartedAt = time.Now().UTC()
	resp.CompletedAt = resp.StartedAt

	if err := s.Validate(resp); err != nil {
		t.Fatalf("error response must be schema valid: %v", err)
	}
	if resp.PhaseResult != models.PhaseError || resp.Status != models.RunError {
		t.Errorf("envelope = %s/%s", resp.PhaseResult, resp.Status)
	}
	if len(resp.Decisions) != 0 || resp.Decisions == nil {
		t.Error("decisions must be present and empty")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := newSerializer()
	original := fullResponse()
	clone, err := s.Clone(original)
	if err != nil {
		t.Fatal(err)
	}
	clone.Decisions[0].ToolArguments["query"] = "mutated"
	if original.Decisions[0].ToolArguments["query"] != "secret" {
		t.Error("clone shares state with the original")
	}
}

func TestSanitizeRedactsWithoutMutating(t *testing.T) {
	s := newSerializer()
	original := fullResponse()

	clean, err := s.Sanitize(original)
	if err != nil {
		t.Fatal(err)
	}
	if clean.ToolCalls[0].Result != SanitizedPlaceholder {
		t.Errorf("tool result = %v, want placeholder", clean.ToolCalls[0].Result)
	}
	args := clean.Decisions[0].ToolArguments
	if len(args) != 1 || args[SanitizedPlaceholder] != true {
		t.Errorf("tool arguments = %v, want the marker object", args)
	}
	// The final answer and prose survive.
	if clean.Result != "the answer" {
		t.Error("sanitize must not touch the result text")
	}
	// The original is untouched.
	if original.ToolCalls[0].Result == SanitizedPlaceholder {
		t.Error("Sanitize mutated its input")
	}
	if original.Decisions[0].ToolArguments["query"] != "secret" {
		t.Error("Sanitize mutated the original arguments")
	}
}

func TestSummarize(t *testing.T) {
	s := newSerializer()
	sum := s.Summarize(fullResponse())
	if sum.DecisionCount != 2 || sum.ToolCallCount != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.ErrorCode != "" {
		t.Errorf("errorCode = %s, want empty", sum.ErrorCode)
	}

	errResp := NewErrorResponse("corr-1", "", "ENGINE_ERROR", "boom", nil)
	sum = s.Summarize(errResp)
	if sum.ErrorCode != "ENGINE_ERROR" {
		t.Errorf("errorCode = %s", sum.ErrorCode)
	}
}

func TestToHTTPResponse(t *testing.T) {
	s := newSerializer()
	resp := fullResponse()
	resp.FromCache = true

	rendered, err := s.ToHTTPResponse(resp)
	if err != nil {
		t.Fatal(err)
	}
	if rendered.StatusCode != 200 {
		t.Errorf("status = %d", rendered.StatusCode)
	}
	wantHeaders := map[string]string{
		"Content-Type":     "application/json",
		"X-Correlation-Id": resp.CorrelationID,
		"X-Cache-Hit":      "true",
		"X-Execution-Time": "1500",
	}
	for name, want := range wantHeaders {
		if got := rendered.Headers[name]; got != want {
			t.Errorf("header %s = %q, want %q", name, got, want)
		}
	}
	var decoded map[string]any
	if err := json.Unmarshal(rendered.Body, &decoded); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}

	errResp := NewErrorResponse("corr-1", "", "ENGINE_ERROR", "boom", nil)
	rendered, err = s.ToHTTPResponse(errResp)
	if err != nil {
		t.Fatal(err)
	}
	if rendered.StatusCode != 500 {
		t.Errorf("error status = %d, want 500", rendered.StatusCode)
	}
}
