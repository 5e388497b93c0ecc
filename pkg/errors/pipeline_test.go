package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyError_Nil(t *testing.T) {
	if result := ClassifyError(nil, "test-stage"); result != nil {
		t.Errorf("expected nil for nil error, got %v", result)
	}
}

func TestClassifyError_DeadlineExceeded(t *testing.T) {
	result := ClassifyError(context.DeadlineExceeded, "fetch")
	if result == nil {
		t.Fatal("expected non-nil PipelineError")
	}
	if result.Code != ErrProviderTransient {
		t.Errorf("expected ErrProviderTransient, got %s", result.Code)
	}
	if result.Stage != "fetch" {
		t.Errorf("expected stage fetch, got %s", result.Stage)
	}
	if result.Cause != context.DeadlineExceeded {
		t.Errorf("expected cause to be original error")
	}
}

func TestClassifyError_CredentialRevoked(t *testing.T) {
	err := errors.New("invalid_grant: token has been revoked")
	result := ClassifyError(err, "refresh")
	if result.Code != ErrCredentialRevoked {
		t.Errorf("expected ErrCredentialRevoked, got %s", result.Code)
	}
}

func TestClassifyError_RateLimited(t *testing.T) {
	tests := []string{
		"rate limit exceeded",
		"HTTP 429 error",
		"too many requests",
		"quota exceeded for this resource",
		"resource_exhausted error from gRPC",
	}
	for _, msg := range tests {
		result := ClassifyError(errors.New(msg), "fetch")
		if result.Code != ErrRateLimited {
			t.Errorf("expected ErrRateLimited for %q, got %s", msg, result.Code)
		}
	}
}

func TestClassifyError_ProviderTransient(t *testing.T) {
	tests := []string{
		"connection refused",
		"service unavailable",
		"HTTP 503 error",
		"dial tcp: lookup example.com: no such host",
	}
	for _, msg := range tests {
		result := ClassifyError(errors.New(msg), "fetch")
		if result.Code != ErrProviderTransient {
			t.Errorf("expected ErrProviderTransient for %q, got %s", msg, result.Code)
		}
	}
}

func TestClassifyError_LLM(t *testing.T) {
	result := ClassifyError(errors.New("llm model unavailable"), "extract")
	if result.Code != ErrLLMTransient {
		t.Errorf("expected ErrLLMTransient, got %s", result.Code)
	}

	result = ClassifyError(errors.New("llm completion rejected by content policy"), "extract")
	if result.Code != ErrLLMPermanent {
		t.Errorf("expected ErrLLMPermanent, got %s", result.Code)
	}
}

func TestClassifyError_Duplicate(t *testing.T) {
	result := ClassifyError(errors.New("duplicate content hash"), "store")
	if result.Code != ErrDuplicate {
		t.Errorf("expected ErrDuplicate, got %s", result.Code)
	}
}

func TestClassifyError_Default(t *testing.T) {
	result := ClassifyError(errors.New("some random error"), "extract")
	if result.Code != ErrProviderPermanent {
		t.Errorf("expected ErrProviderPermanent default, got %s", result.Code)
	}
}

func TestPipelineError_Error_WithTimeout(t *testing.T) {
	pe := &PipelineError{
		Code:     ErrProviderTransient,
		Stage:    "fetch",
		Duration: 120 * time.Second,
		Timeout:  120 * time.Second,
	}
	expected := "provider_transient: fetch timed out after 2m0s (limit: 2m0s)"
	if pe.Error() != expected {
		t.Errorf("expected %q, got %q", expected, pe.Error())
	}
}

func TestPipelineError_Error_WithStage(t *testing.T) {
	pe := &PipelineError{Code: ErrRateLimited, Stage: "sync", Message: "quota exceeded"}
	expected := "rate_limited: sync: quota exceeded"
	if pe.Error() != expected {
		t.Errorf("expected %q, got %q", expected, pe.Error())
	}
}

func TestPipelineError_Unwrap(t *testing.T) {
	original := errors.New("original")
	pe := &PipelineError{Code: ErrProviderPermanent, Cause: original}
	if pe.Unwrap() != original {
		t.Errorf("expected unwrapped error to be original")
	}
}

func TestIsErrorRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"rate limited", &PipelineError{Code: ErrRateLimited}, true},
		{"provider transient", &PipelineError{Code: ErrProviderTransient}, true},
		{"llm transient", &PipelineError{Code: ErrLLMTransient}, true},
		{"credential revoked", &PipelineError{Code: ErrCredentialRevoked}, false},
		{"duplicate", &PipelineError{Code: ErrDuplicate}, false},
		{"regular error", errors.New("some error"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := IsErrorRetryable(tt.err); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestClassifyError_WrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("wrapped: %w", context.DeadlineExceeded)
	result := ClassifyError(wrapped, "fetch")
	if result.Code != ErrProviderTransient {
		t.Errorf("expected ErrProviderTransient for wrapped deadline, got %s", result.Code)
	}
}
