package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a classified ingestion/extraction error.
type ErrorCode string

const (
	// ErrCredentialRevoked indicates the provider revoked the user's OAuth grant.
	// Not retryable: the sync must pause until the user re-authorizes.
	ErrCredentialRevoked ErrorCode = "credential_revoked"

	// ErrRateLimited indicates the provider or LLM throttled the request.
	// Retryable after the backoff/rate-limit window.
	ErrRateLimited ErrorCode = "rate_limited"

	// ErrProviderTransient indicates a recoverable provider-side failure
	// (5xx, connection reset, timeout).
	ErrProviderTransient ErrorCode = "provider_transient"

	// ErrProviderPermanent indicates a non-recoverable provider error
	// (message deleted, malformed response, unsupported mailbox).
	ErrProviderPermanent ErrorCode = "provider_permanent"

	// ErrLLMTransient indicates a recoverable LLM call failure.
	ErrLLMTransient ErrorCode = "llm_transient"

	// ErrLLMPermanent indicates the LLM call cannot succeed on retry
	// (persistent malformed JSON, content policy rejection).
	ErrLLMPermanent ErrorCode = "llm_permanent"

	// ErrCostCapExceeded indicates the per-user or global LLM cost cap tripped.
	ErrCostCapExceeded ErrorCode = "cost_cap_exceeded"

	// ErrEncryptedPDF indicates the document could not be opened without a password.
	ErrEncryptedPDF ErrorCode = "encrypted_pdf"

	// ErrCorruptedDocument indicates the attachment bytes could not be parsed
	// as the declared document type.
	ErrCorruptedDocument ErrorCode = "corrupted_document"

	// ErrScannedSkipped indicates a scanned/image-only document was skipped
	// under the configured cost policy instead of sent to OCR/LLM.
	ErrScannedSkipped ErrorCode = "scanned_skipped"

	// ErrImageSkipped indicates an image attachment was skipped by the
	// deterministic skip rules (logo/signature/tracking-pixel heuristics).
	ErrImageSkipped ErrorCode = "image_skipped"

	// ErrOutOfScope indicates the message failed qualification and will not
	// be processed further.
	ErrOutOfScope ErrorCode = "out_of_scope"

	// ErrDuplicate indicates the content hash already exists and extraction
	// was skipped in favor of linking the existing Document.
	ErrDuplicate ErrorCode = "duplicate"

	// ErrSyncInProgress indicates a sync run was already active for the user
	// and the new request was rejected rather than queued.
	ErrSyncInProgress ErrorCode = "sync_in_progress"
)

// PipelineError is a structured error attached to a stage of the ingestion
// or extraction pipeline.
type PipelineError struct {
	Code     ErrorCode
	Stage    string
	Message  string
	Duration time.Duration
	Timeout  time.Duration
	Cause    error
}

func (e *PipelineError) Error() string {
	if e.Timeout > 0 && e.Duration > 0 {
		return fmt.Sprintf("%s: %s timed out after %s (limit: %s)", e.Code, e.Stage, e.Duration.Truncate(time.Second), e.Timeout.Truncate(time.Second))
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ClassifyError inspects a foreign error at a component boundary and
// translates it into a *PipelineError carrying this package's taxonomy.
// Components must call this at their boundary rather than propagate
// provider/LLM/library errors upward unclassified (§7).
func ClassifyError(err error, stage string) *PipelineError {
	if err == nil {
		return nil
	}

	pe := &PipelineError{Stage: stage, Cause: err}

	if errors.Is(err, context.DeadlineExceeded) {
		pe.Code = ErrProviderTransient
		pe.Message = "operation timed out"
		return pe
	}
	if errors.Is(err, context.Canceled) {
		pe.Code = ErrProviderTransient
		pe.Message = "operation cancelled"
		return pe
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "revoked") || strings.Contains(lower, "invalid_grant") || strings.Contains(lower, "unauthorized_client"):
		pe.Code = ErrCredentialRevoked
	case strings.Contains(lower, "cost cap") || strings.Contains(lower, "budget exceeded") || strings.Contains(lower, "daily cap"):
		pe.Code = ErrCostCapExceeded
	case strings.Contains(lower, "encrypted") && strings.Contains(lower, "pdf"):
		pe.Code = ErrEncryptedPDF
	case strings.Contains(lower, "password") && strings.Contains(lower, "protected"):
		pe.Code = ErrEncryptedPDF
	case strings.Contains(lower, "corrupt") || strings.Contains(lower, "malformed") || strings.Contains(lower, "unparsable"):
		pe.Code = ErrCorruptedDocument
	case strings.Contains(lower, "duplicate") || strings.Contains(lower, "already exists"):
		pe.Code = ErrDuplicate
	case strings.Contains(lower, "out of scope") || strings.Contains(lower, "not qualified"):
		pe.Code = ErrOutOfScope
	case strings.Contains(lower, "sync in progress") || strings.Contains(lower, "sync already running"):
		pe.Code = ErrSyncInProgress
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests") || strings.Contains(lower, "quota exceeded") || strings.Contains(lower, "resource_exhausted"):
		pe.Code = ErrRateLimited
	case strings.Contains(lower, "llm") || strings.Contains(lower, "completion") || strings.Contains(lower, "model"):
		if strings.Contains(lower, "unavailable") || strings.Contains(lower, "503") || strings.Contains(lower, "connection refused") {
			pe.Code = ErrLLMTransient
		} else {
			pe.Code = ErrLLMPermanent
		}
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "unavailable") || strings.Contains(lower, "503") || strings.Contains(lower, "service unavailable") || strings.Contains(lower, "no such host") || strings.Contains(lower, "reset by peer"):
		pe.Code = ErrProviderTransient
	default:
		pe.Code = ErrProviderPermanent
	}

	pe.Message = msg
	return pe
}

// IsTimeout returns true if the error represents a provider/LLM timeout
// classified as transient.
func IsTimeout(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrProviderTransient && strings.Contains(pe.Message, "timed out")
	}
	return false
}

// IsErrorRetryable returns true if the error is transient and worth retrying
// under the job queue's backoff policy.
func IsErrorRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		if info, ok := ErrorCodeRegistry[pe.Code]; ok {
			return info.Retryable
		}
		return false
	}
	return false
}
