package llm

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Stable error codes produced by the classifier and the execution phase.
const (
	CodeRateLimit     = "RATE_LIMIT"
	CodeNetworkError  = "NETWORK_ERROR"
	CodeTimeout       = "TIMEOUT"
	CodeServerError   = "SERVER_ERROR"
	CodeInvalidAPIKey = "INVALID_API_KEY"
	CodeInvalidReq    = "INVALID_REQUEST"
	CodeNotFound      = "NOT_FOUND"
	CodeInvalidModel  = "INVALID_MODEL"
	CodeContentPolicy = "CONTENT_POLICY_VIOLATION"
	CodeCancelled     = "CANCELLED"
	CodeUnknown       = "UNKNOWN"
)

// ClassifiedError tags a raw model error as transient (retryable) or
// terminal, with a stable code. RetryAfter, when set, overrides the
// computed backoff for the next attempt.
type ClassifiedError struct {
	Code       string
	Transient  bool
	RetryAfter time.Duration
	Err        error
}

func (e *ClassifiedError) Error() string {
	kind := "terminal"
	if e.Transient {
		kind = "transient"
	}
	if e.Err != nil {
		return kind + " model error [" + e.Code + "]: " + e.Err.Error()
	}
	return kind + " model error [" + e.Code + "]"
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

var networkCodes = map[string]bool{
	"ECONNRESET":   true,
	"ETIMEDOUT":    true,
	"ECONNREFUSED": true,
	"ENOTFOUND":    true,
	"EAI_AGAIN":    true,
	"ENETUNREACH":  true,
	"EHOSTUNREACH": true,
}

// Classify maps a raw model or network error to a ClassifiedError. Rules
// apply in order; the first match wins.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return classifyAPI(apiErr, err)
	}

	msg := strings.ToLower(err.Error())
	for code := range networkCodes {
		if strings.Contains(err.Error(), code) {
			return &ClassifiedError{Code: CodeNetworkError, Transient: true, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return &ClassifiedError{Code: CodeTimeout, Transient: true, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &ClassifiedError{Code: CodeCancelled, Transient: false, Err: err}
	}
	return &ClassifiedError{Code: CodeUnknown, Transient: false, Err: err}
}

func classifyAPI(apiErr *APIError, err error) *ClassifiedError {
	msg := strings.ToLower(apiErr.Message)

	switch {
	case apiErr.Status == 429 || apiErr.Code == "rate_limit_exceeded":
		out := &ClassifiedError{Code: CodeRateLimit, Transient: true, Err: err}
		if apiErr.RetryAfterSec > 0 {
			out.RetryAfter = time.Duration(apiErr.RetryAfterSec * float64(time.Second))
		}
		return out

	case networkCodes[apiErr.Code]:
		return &ClassifiedError{Code: CodeNetworkError, Transient: true, Err: err}

	case apiErr.Code == "timeout" || strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return &ClassifiedError{Code: CodeTimeout, Transient: true, Err: err}

	case apiErr.Status == 500 || apiErr.Status == 502 || apiErr.Status == 503 || apiErr.Status == 504:
		return &ClassifiedError{Code: CodeServerError, Transient: true, Err: err}

	case apiErr.Status == 401 || apiErr.Code == "invalid_api_key" || apiErr.Code == "unauthorized":
		return &ClassifiedError{Code: CodeInvalidAPIKey, Transient: false, Err: err}

	case apiErr.Status == 400 || apiErr.Code == "invalid_request_error" || apiErr.Code == "invalid_request":
		return &ClassifiedError{Code: CodeInvalidReq, Transient: false, Err: err}

	case apiErr.Status == 404 || apiErr.Code == "not_found":
		if strings.Contains(msg, "model") {
			return &ClassifiedError{Code: CodeInvalidModel, Transient: false, Err: err}
		}
		return &ClassifiedError{Code: CodeNotFound, Transient: false, Err: err}

	case apiErr.Code == "content_policy_violation" || apiErr.Code == "content_filter" ||
		strings.Contains(msg, "content policy") || strings.Contains(msg, "content filter"):
		return &ClassifiedError{Code: CodeContentPolicy, Transient: false, Err: err}
	}

	code := apiErr.Code
	if code == "" {
		code = CodeUnknown
	}
	return &ClassifiedError{Code: code, Transient: false, Err: err}
}
