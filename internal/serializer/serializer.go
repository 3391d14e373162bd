// Package serializer shapes pipeline responses for the wire: JSON
// encoding, schema validation, billing enrichment, redaction, and the
// HTTP envelope.
package serializer

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/haasonsaas/agui/internal/schema"
	"github.com/haasonsaas/agui/pkg/models"
)

// SanitizedPlaceholder replaces tool result payloads and tool arguments
// when a response is redacted for logs or third parties.
const SanitizedPlaceholder = "[SANITIZED]"

// HTTPResponse is a transport-ready rendering of a pipeline response.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Summary is the compact operator view of a response.
type Summary struct {
	CorrelationID string             `json:"correlationId"`
	Status        string             `json:"status"`
	PhaseResult   models.PhaseResult `json:"phaseResult"`
	FromCache     bool               `json:"fromCache"`
	ExecutionTime int64              `json:"executionTime"`
	TokensUsed    int                `json:"tokensUsed"`
	TotalCost     float64            `json:"totalCost"`
	DecisionCount int                `json:"decisionCount"`
	ToolCallCount int                `json:"toolCallCount"`
	ErrorCode     string             `json:"errorCode,omitempty"`
}

// Serializer encodes and validates responses.
type Serializer struct {
	schemas *schema.Registry
}

func New(schemas *schema.Registry) *Serializer {
	return &Serializer{schemas: schemas}
}

// Serialize renders the response as indented JSON.
func (s *Serializer) Serialize(resp *models.Response) ([]byte, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize response: %w", err)
	}
	return data, nil
}

// SerializeCompact renders the response as single-line JSON.
func (s *Serializer) SerializeCompact(resp *models.Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("serialize response: %w", err)
	}
	return data, nil
}

// Deserialize parses and schema-validates an encoded response.
func (s *Serializer) Deserialize(data []byte) (*models.Response, error) {
	var resp models.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("deserialize response: %w", err)
	}
	if err := s.schemas.ValidateResponse(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enrich copies cost and usage figures from the billing report onto the
// response. The report wins over any figures already present.
func (s *Serializer) Enrich(resp *models.Response, report *models.BillingReport) {
	if report == nil {
		return
	}
	resp.TotalCost = report.TotalCost
	if report.Metrics.TokensUsed > 0 {
		resp.TokensUsed = report.Metrics.TokensUsed
	}
}

// Validate checks the response against the wire schema.
func (s *Serializer) Validate(resp *models.Response) error {
	return s.schemas.ValidateResponse(resp)
}

// ValidateWithErrors returns every schema violation, or nil.
func (s *Serializer) ValidateWithErrors(resp *models.Response) []schema.FieldError {
	return s.schemas.ResponseIssues(resp)
}

// NewErrorResponse builds a schema-valid error response skeleton. Decisions
// and tool calls are present but empty so consumers never see null arrays.
func NewErrorResponse(correlationID, signature, code, message string, details map[string]any) *models.Response {
	return &models.Response{
		CorrelationID: correlationID,
		JobSignature:  signature,
		Status:        models.RunError,
		Error: &models.ErrorInfo{
			Code:    code,
			Message: message,
			Details: details,
		},
		PhaseResult: models.PhaseError,
		Decisions:   []models.AgentDecision{},
		ToolCalls:   []models.ToolResult{},
	}
}

// Clone deep-copies a response through its wire form.
func (s *Serializer) Clone(resp *models.Response) (*models.Response, error) {
	data, err := s.SerializeCompact(resp)
	if err != nil {
		return nil, err
	}
	var out models.Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone response: %w", err)
	}
	return &out, nil
}

// Sanitize returns a redacted copy: tool result payloads become the
// sanitized placeholder and decision tool arguments collapse to a marker
// object. The input response is not modified.
func (s *Serializer) Sanitize(resp *models.Response) (*models.Response, error) {
	out, err := s.Clone(resp)
	if err != nil {
		return nil, err
	}
	for i := range out.ToolCalls {
		if out.ToolCalls[i].Result != nil {
			out.ToolCalls[i].Result = SanitizedPlaceholder
		}
	}
	for i := range out.Decisions {
		if out.Decisions[i].ToolArguments != nil {
			out.Decisions[i].ToolArguments = map[string]any{SanitizedPlaceholder: true}
		}
	}
	return out, nil
}

// Summarize condenses a response for logs and listings.
func (s *Serializer) Summarize(resp *models.Response) Summary {
	sum := Summary{
		CorrelationID: resp.CorrelationID,
		Status:        resp.Status,
		PhaseResult:   resp.PhaseResult,
		FromCache:     resp.FromCache,
		ExecutionTime: resp.ExecutionTime,
		TokensUsed:    resp.TokensUsed,
		TotalCost:     resp.TotalCost,
		DecisionCount: len(resp.Decisions),
		ToolCallCount: len(resp.ToolCalls),
	}
	if resp.Error != nil {
		sum.ErrorCode = resp.Error.Code
	}
	return sum
}

// ToHTTPResponse renders the response with its transport envelope. A
// response carrying an error maps to 500, everything else to 200.
func (s *Serializer) ToHTTPResponse(resp *models.Response) (*HTTPResponse, error) {
	body, err := s.Serialize(resp)
	if err != nil {
		return nil, err
	}
	status := 200
	if resp.Error != nil {
		status = 500
	}
	return &HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": resp.CorrelationID,
			"X-Cache-Hit":      strconv.FormatBool(resp.FromCache),
			"X-Execution-Time": strconv.FormatInt(resp.ExecutionTime, 10),
		},
		Body: body,
	}, nil
}
