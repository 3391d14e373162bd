// Package schema validates inbound jobs and outbound responses against
// JSON Schemas. Job validation is strict: unknown top-level fields are
// rejected and numeric bounds are enforced before anything else runs.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/agui/pkg/models"
)

const jobSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["userId", "prompt", "correlationId"],
  "properties": {
    "userId": {"type": "string", "minLength": 1},
    "prompt": {"type": "string", "minLength": 1},
    "correlationId": {"type": "string", "format": "uuid"},
    "maxDepth": {"type": "integer", "minimum": 1, "maximum": 20},
    "currentDepth": {"type": "integer", "minimum": 0},
    "contextWindowLimit": {"type": "integer", "minimum": 100, "maximum": 128000},
    "previousContext": {"type": "string"},
    "toolResults": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["toolName"],
        "properties": {
          "toolName": {"type": "string", "minLength": 1},
          "result": {},
          "executionTime": {"type": "number", "minimum": 0},
          "cost": {"type": "number", "minimum": 0},
          "error": {"type": "string"}
        }
      }
    },
    "metadata": {"type": "object"}
  }
}`

const decisionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["actionType"],
  "properties": {
    "actionType": {"enum": ["LLM_CALL", "TOOL_CALL", "FINAL_ANSWER"]},
    "status": {"enum": ["COMPLETE", "ERROR", "NEXT_STEP", "TOOL_DISPATCHED", "PARALLEL_PENDING"]},
    "reasoning": {"type": "string"},
    "nextPrompt": {"type": "string"},
    "toolName": {"type": "string"},
    "toolArguments": {"type": "object"},
    "finalAnswer": {"type": "string"}
  }
}`

const responseSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["correlationId", "jobSignature", "status", "phaseResult", "fromCache",
               "executionTime", "decisions", "toolCalls", "startedAt", "completedAt"],
  "properties": {
    "correlationId": {"type": "string", "minLength": 1},
    "jobSignature": {"type": "string"},
    "status": {"enum": ["COMPLETE", "ERROR"]},
    "result": {"type": "string"},
    "error": {
      "type": "object",
      "additionalProperties": false,
      "required": ["code", "message"],
      "properties": {
        "code": {"type": "string", "minLength": 1},
        "message": {"type": "string"},
        "details": {"type": "object"}
      }
    },
    "phaseResult": {"enum": ["CONTINUE", "CACHE_HIT", "POLICY_VIOLATION", "ERROR"]},
    "fromCache": {"type": "boolean"},
    "executionTime": {"type": "number", "minimum": 0},
    "tokensUsed": {"type": "integer", "minimum": 0},
    "totalCost": {"type": "number", "minimum": 0},
    "decisions": {"type": "array", "items": {"$ref": "agui://schemas/decision.json"}},
    "toolCalls": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["toolName"],
        "properties": {
          "toolName": {"type": "string"},
          "result": {},
          "executionTime": {"type": "number", "minimum": 0},
          "cost": {"type": "number", "minimum": 0},
          "error": {"type": "string"}
        }
      }
    },
    "startedAt": {"type": "string", "format": "date-time"},
    "completedAt": {"type": "string", "format": "date-time"}
  }
}`

// FieldError describes a single schema violation.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationError aggregates the violations found in one payload.
type ValidationError struct {
	Issues []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "schema validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		path := issue.Path
		if path == "" {
			path = "/"
		}
		parts = append(parts, path+": "+issue.Message)
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}

// Registry holds the compiled Job, Response, and AgentDecision schemas.
type Registry struct {
	job      *jsonschema.Schema
	decision *jsonschema.Schema
	response *jsonschema.Schema
}

// NewRegistry compiles the schemas. Compilation only fails if the embedded
// schema text is broken, so callers typically use MustRegistry.
func NewRegistry() (*Registry, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat = true
	resources := map[string]string{
		"agui://schemas/job.json":      jobSchema,
		"agui://schemas/decision.json": decisionSchema,
		"agui://schemas/response.json": responseSchema,
	}
	for url, text := range resources {
		if err := c.AddResource(url, strings.NewReader(text)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", url, err)
		}
	}
	r := &Registry{}
	var err error
	if r.job, err = c.Compile("agui://schemas/job.json"); err != nil {
		return nil, fmt.Errorf("compile job schema: %w", err)
	}
	if r.decision, err = c.Compile("agui://schemas/decision.json"); err != nil {
		return nil, fmt.Errorf("compile decision schema: %w", err)
	}
	if r.response, err = c.Compile("agui://schemas/response.json"); err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}
	return r, nil
}

// MustRegistry compiles the schemas and panics on failure.
func MustRegistry() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// ValidateJob checks a raw payload against the Job schema and decodes it.
// Defaults for maxDepth and contextWindowLimit are applied after
// validation. The returned error is a *ValidationError for schema
// violations.
func (r *Registry) ValidateJob(raw json.RawMessage) (*models.RunJob, error) {
	if err := validateRaw(r.job, raw); err != nil {
		return nil, err
	}
	var job models.RunJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	job.ApplyDefaults()
	return &job, nil
}

// ValidateDecision checks a model response against the AgentDecision schema
// and decodes it into the tagged variant.
func (r *Registry) ValidateDecision(raw []byte) (*models.AgentDecision, error) {
	if err := validateRaw(r.decision, raw); err != nil {
		return nil, err
	}
	var d models.AgentDecision
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	return &d, nil
}

// ValidateResponse checks a response object against the Response schema.
func (r *Registry) ValidateResponse(resp *models.Response) error {
	issues := r.ResponseIssues(resp)
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// ResponseIssues returns every schema violation in the response, or nil.
func (r *Registry) ResponseIssues(resp *models.Response) []FieldError {
	raw, err := json.Marshal(resp)
	if err != nil {
		return []FieldError{{Path: "", Message: err.Error(), Code: "marshal"}}
	}
	if err := validateRaw(r.response, raw); err != nil {
		var verr *ValidationError
		if ok := asValidationError(err, &verr); ok {
			return verr.Issues
		}
		return []FieldError{{Path: "", Message: err.Error(), Code: "unknown"}}
	}
	return nil
}

func asValidationError(err error, target **ValidationError) bool {
	v, ok := err.(*ValidationError)
	if ok {
		*target = v
	}
	return ok
}

func validateRaw(schema *jsonschema.Schema, raw []byte) error {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return &ValidationError{Issues: []FieldError{{
			Path:    "",
			Message: "invalid JSON: " + err.Error(),
			Code:    "json",
		}}}
	}
	if err := schema.Validate(payload); err != nil {
		var verr *jsonschema.ValidationError
		if ok := errorsAs(err, &verr); ok {
			return &ValidationError{Issues: flatten(verr)}
		}
		return &ValidationError{Issues: []FieldError{{Message: err.Error(), Code: "unknown"}}}
	}
	return nil
}

func errorsAs(err error, target **jsonschema.ValidationError) bool {
	v, ok := err.(*jsonschema.ValidationError)
	if ok {
		*target = v
	}
	return ok
}

// flatten walks the cause tree and keeps the leaf violations, which carry
// the most specific instance paths and messages.
func flatten(err *jsonschema.ValidationError) []FieldError {
	if len(err.Causes) == 0 {
		return []FieldError{{
			Path:    err.InstanceLocation,
			Message: err.Message,
			Code:    keywordCode(err.KeywordLocation),
		}}
	}
	var out []FieldError
	for _, cause := range err.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}

func keywordCode(keywordLocation string) string {
	if keywordLocation == "" {
		return "unknown"
	}
	parts := strings.Split(keywordLocation, "/")
	return parts[len(parts)-1]
}
