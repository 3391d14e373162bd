package schema

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/agui/pkg/models"
)

const validCorrelationID = "7f1a2b3c-4d5e-4f60-8a9b-0c1d2e3f4a5b"

func validJobJSON(overrides map[string]any) json.RawMessage {
	payload := map[string]any{
		"userId":        "user-1",
		"prompt":        "do the thing",
		"correlationId": validCorrelationID,
	}
	for k, v := range overrides {
		if v == nil {
			delete(payload, k)
		} else {
			payload[k] = v
		}
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func TestValidateJobAppliesDefaults(t *testing.T) {
	r := MustRegistry()
	job, err := r.ValidateJob(validJobJSON(nil))
	if err != nil {
		t.Fatal(err)
	}
	if job.MaxDepth != 5 {
		t.Errorf("maxDepth default = %d, want 5", job.MaxDepth)
	}
	if job.ContextWindowLimit != 8000 {
		t.Errorf("contextWindowLimit default = %d, want 8000", job.ContextWindowLimit)
	}
	if job.CurrentDepth != 0 {
		t.Errorf("currentDepth default = %d, want 0", job.CurrentDepth)
	}
}

func TestValidateJobRejections(t *testing.T) {
	r := MustRegistry()
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"missing userId", map[string]any{"userId": nil}},
		{"empty userId", map[string]any{"userId": ""}},
		{"missing prompt", map[string]any{"prompt": nil}},
		{"empty prompt", map[string]any{"prompt": ""}},
		{"missing correlationId", map[string]any{"correlationId": nil}},
		{"non-uuid correlationId", map[string]any{"correlationId": "not-a-uuid"}},
		{"maxDepth zero", map[string]any{"maxDepth": 0}},
		{"maxDepth over cap", map[string]any{"maxDepth": 21}},
		{"contextWindowLimit below floor", map[string]any{"contextWindowLimit": 99}},
		{"contextWindowLimit over cap", map[string]any{"contextWindowLimit": 128001}},
		{"negative currentDepth", map[string]any{"currentDepth": -1}},
		{"unknown top-level field", map[string]any{"surprise": true}},
		{"tool result missing name", map[string]any{"toolResults": []map[string]any{{"result": "x"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ValidateJob(validJobJSON(tt.overrides))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			var verr *ValidationError
			if !asValidationError(err, &verr) {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			if len(verr.Issues) == 0 {
				t.Error("validation error carries no issues")
			}
		})
	}
}

func TestValidateJobBoundaryValues(t *testing.T) {
	r := MustRegistry()
	ok := []map[string]any{
		{"maxDepth": 1},
		{"maxDepth": 20},
		{"contextWindowLimit": 100},
		{"contextWindowLimit": 128000},
		{"currentDepth": 0},
	}
	for _, overrides := range ok {
		if _, err := r.ValidateJob(validJobJSON(overrides)); err != nil {
			t.Errorf("boundary %v rejected: %v", overrides, err)
		}
	}
}

func TestValidateJobMalformedJSON(t *testing.T) {
	r := MustRegistry()
	_, err := r.ValidateJob([]byte("{not json"))
	if err == nil {
		t.Fatal("malformed JSON must fail")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateDecision(t *testing.T) {
	r := MustRegistry()

	good := []string{
		`{"actionType":"FINAL_ANSWER","finalAnswer":"done"}`,
		`{"actionType":"LLM_CALL","nextPrompt":"continue","reasoning":"more work"}`,
		`{"actionType":"TOOL_CALL","toolName":"google_search","toolArguments":{"query":"go"}}`,
	}
	for _, raw := range good {
		if _, err := r.ValidateDecision([]byte(raw)); err != nil {
			t.Errorf("valid decision rejected: %s: %v", raw, err)
		}
	}

	bad := []string{
		`{"actionType":"DANCE"}`,
		`{"reasoning":"missing action"}`,
		`{"actionType":"FINAL_ANSWER","extra":true}`,
		`not json at all`,
	}
	for _, raw := range bad {
		if _, err := r.ValidateDecision([]byte(raw)); err == nil {
			t.Errorf("invalid decision accepted: %s", raw)
		}
	}
}

func TestValidateResponse(t *testing.T) {
	r := MustRegistry()
	now := time.Now().UTC()

	resp := &models.Response{
		CorrelationID: validCorrelationID,
		JobSignature:  strings.Repeat("ab", 32),
		Status:        models.RunComplete,
		Result:        "done",
		PhaseResult:   models.PhaseContinue,
		Decisions:     []models.AgentDecision{},
		ToolCalls:     []models.ToolResult{},
		StartedAt:     now,
		CompletedAt:   now,
	}
	if err := r.ValidateResponse(resp); err != nil {
		t.Fatalf("valid response rejected: %v", err)
	}

	resp.Status = "WEIRD"
	if err := r.ValidateResponse(resp); err == nil {
		t.Error("unknown status accepted")
	}
}

func TestResponseIssuesNilArrays(t *testing.T) {
	r := MustRegistry()
	now := time.Now().UTC()
	resp := &models.Response{
		CorrelationID: validCorrelationID,
		Status:        models.RunComplete,
		PhaseResult:   models.PhaseContinue,
		StartedAt:     now,
		CompletedAt:   now,
	}
	issues := r.ResponseIssues(resp)
	if issues == nil {
		t.Fatal("nil decisions/toolCalls serialize as null and must be flagged")
	}
}
