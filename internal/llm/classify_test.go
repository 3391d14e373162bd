package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClassifyAPIErrors(t *testing.T) {
	tests := []struct {
		name          string
		err           *APIError
		wantCode      string
		wantTransient bool
	}{
		{"429 status", &APIError{Status: 429, Message: "slow down"}, CodeRateLimit, true},
		{"rate limit code", &APIError{Code: "rate_limit_exceeded"}, CodeRateLimit, true},
		{"network code", &APIError{Code: "ECONNRESET"}, CodeNetworkError, true},
		{"timeout code", &APIError{Code: "timeout"}, CodeTimeout, true},
		{"timeout message", &APIError{Status: 408, Message: "request timed out"}, CodeTimeout, true},
		{"500", &APIError{Status: 500}, CodeServerError, true},
		{"502", &APIError{Status: 502}, CodeServerError, true},
		{"503", &APIError{Status: 503}, CodeServerError, true},
		{"504", &APIError{Status: 504}, CodeServerError, true},
		{"401", &APIError{Status: 401}, CodeInvalidAPIKey, false},
		{"invalid key code", &APIError{Code: "invalid_api_key"}, CodeInvalidAPIKey, false},
		{"400", &APIError{Status: 400}, CodeInvalidReq, false},
		{"404 plain", &APIError{Status: 404, Message: "no such resource"}, CodeNotFound, false},
		{"404 model", &APIError{Status: 404, Message: "model gpt-9 does not exist"}, CodeInvalidModel, false},
		{"content policy code", &APIError{Code: "content_policy_violation"}, CodeContentPolicy, false},
		{"content filter message", &APIError{Status: 422, Message: "rejected by content filter"}, CodeContentPolicy, false},
		{"unknown provider code", &APIError{Status: 418, Code: "teapot"}, "teapot", false},
		{"no code at all", &APIError{Status: 418}, CodeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", got.Code, tt.wantCode)
			}
			if got.Transient != tt.wantTransient {
				t.Errorf("transient = %v, want %v", got.Transient, tt.wantTransient)
			}
		})
	}
}

func TestClassifyRetryAfter(t *testing.T) {
	got := Classify(&APIError{Status: 429, RetryAfterSec: 2.5})
	if got.RetryAfter != 2500*time.Millisecond {
		t.Errorf("retryAfter = %v, want 2.5s", got.RetryAfter)
	}
}

func TestClassifyPlainErrors(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      string
		wantTransient bool
	}{
		{"network code in message", errors.New("dial tcp: ECONNREFUSED"), CodeNetworkError, true},
		{"deadline exceeded", context.DeadlineExceeded, CodeTimeout, true},
		{"timeout in message", errors.New("operation timed out"), CodeTimeout, true},
		{"cancelled", context.Canceled, CodeCancelled, false},
		{"anything else", errors.New("mystery"), CodeUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", got.Code, tt.wantCode)
			}
			if got.Transient != tt.wantTransient {
				t.Errorf("transient = %v, want %v", got.Transient, tt.wantTransient)
			}
		})
	}
}

func TestClassifyPassthrough(t *testing.T) {
	original := &ClassifiedError{Code: CodeRateLimit, Transient: true}
	if got := Classify(original); got != original {
		t.Error("an already-classified error must pass through unchanged")
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) must be nil")
	}
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := Classify(&APIError{Status: 500, Message: inner.Error()})
	if err.Unwrap() == nil {
		t.Error("classified error must unwrap to its cause")
	}
}
