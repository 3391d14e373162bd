package signature

import (
	"strings"
	"testing"

	"github.com/haasonsaas/agui/pkg/models"
)

func baseJob() *models.RunJob {
	return &models.RunJob{
		UserID:             "user-1",
		Prompt:             "summarize the report",
		CorrelationID:      "0b8f8f04-6f41-4a3c-9a6a-111111111111",
		MaxDepth:           5,
		ContextWindowLimit: 8000,
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	a, err := Compute(baseJob())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compute(baseJob())
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("same job hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("signature length = %d, want 64", len(a))
	}
	if a != strings.ToLower(a) {
		t.Errorf("signature is not lowercase hex: %s", a)
	}
}

func TestComputeIgnoresVolatileFields(t *testing.T) {
	a, _ := Compute(baseJob())

	other := baseJob()
	other.CorrelationID = "ffffffff-ffff-4fff-8fff-ffffffffffff"
	other.CurrentDepth = 3
	b, _ := Compute(other)

	if a != b {
		t.Error("correlation id and current depth must not affect the signature")
	}
}

func TestComputeSensitiveToStableFields(t *testing.T) {
	base, _ := Compute(baseJob())

	mutations := map[string]func(*models.RunJob){
		"prompt":             func(j *models.RunJob) { j.Prompt = "different" },
		"userId":             func(j *models.RunJob) { j.UserID = "user-2" },
		"maxDepth":           func(j *models.RunJob) { j.MaxDepth = 6 },
		"contextWindowLimit": func(j *models.RunJob) { j.ContextWindowLimit = 9000 },
		"previousContext":    func(j *models.RunJob) { j.PreviousContext = "earlier" },
		"toolResults":        func(j *models.RunJob) { j.ToolResults = []models.ToolResult{{ToolName: "google_search"}} },
		"metadata":           func(j *models.RunJob) { j.Metadata = map[string]any{"k": "v"} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			job := baseJob()
			mutate(job)
			sig, err := Compute(job)
			if err != nil {
				t.Fatal(err)
			}
			if sig == base {
				t.Errorf("changing %s did not change the signature", name)
			}
		})
	}
}

func TestComputeMetadataKeyOrderIrrelevant(t *testing.T) {
	a := baseJob()
	a.Metadata = map[string]any{"alpha": 1, "beta": "x", "gamma": nil}
	b := baseJob()
	b.Metadata = map[string]any{"gamma": nil, "beta": "x", "alpha": 1}

	sigA, _ := Compute(a)
	sigB, _ := Compute(b)
	if sigA != sigB {
		t.Error("metadata key order must not affect the signature")
	}
}

func TestComputeOmittedEqualsUnset(t *testing.T) {
	withNil := baseJob()
	withNil.ToolResults = nil
	withNil.Metadata = nil
	withNil.PreviousContext = ""

	plain := baseJob()

	a, _ := Compute(withNil)
	b, _ := Compute(plain)
	if a != b {
		t.Error("explicitly unset optionals must hash like absent ones")
	}
}

func TestComputeEmptySliceDiffersFromNil(t *testing.T) {
	withEmpty := baseJob()
	withEmpty.ToolResults = []models.ToolResult{}

	a, _ := Compute(withEmpty)
	b, _ := Compute(baseJob())
	if a == b {
		t.Error("an empty tool result list is part of the intent and must hash differently from absence")
	}
}

func TestShort(t *testing.T) {
	sig, _ := Compute(baseJob())
	short := Short(sig)
	if len(short) != ShortLength {
		t.Errorf("Short length = %d, want %d", len(short), ShortLength)
	}
	if !strings.HasPrefix(sig, short) {
		t.Error("Short must be a prefix of the signature")
	}
	if Short("abc") != "abc" {
		t.Error("Short of a short string must be the string itself")
	}
}
