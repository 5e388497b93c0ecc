// Package llm defines the provider abstraction shared by the Qualification
// Engine's (C4) Stage 2 adjudicator and the Extractor Router's (C7) LLM
// fallback tier. Grounded on pkg/mentions/resolver's LLMProvider/
// CompletionRequest/CompletionResponse/LLMError shape, generalized out of
// that package so both C4 and C7 depend on a request/response contract, not
// on the @mentions resolution domain.
package llm

import "context"

// Provider is anything capable of turning a prompt into a structured
// decision. A production deployment wires this to a hosted model API; tests
// use a stub.
type Provider interface {
	// Name returns the provider identifier (e.g. "claude-sonnet", "gpt-4o-mini").
	Name() string

	// Complete sends a completion request and returns the raw response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CompleteStructured sends a request expecting JSON output and decodes
	// it into target, retrying up to the provider's configured attempts on
	// a parse failure.
	CompleteStructured(ctx context.Context, req CompletionRequest, target interface{}) error

	// IsAvailable checks if the provider is currently reachable.
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest represents one call to a Provider.
type CompletionRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	JSONMode     bool    `json:"json_mode"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float32 `json:"temperature,omitempty"`

	// ImageBase64/ImageMimeType carry a page image for C7's vision-OCR
	// fallback tier (spec.md §4.7: scanned PDFs/images routed to vision OCR
	// under the accuracy_first policy). Empty for text-only completions.
	ImageBase64   string `json:"image_base64,omitempty"`
	ImageMimeType string `json:"image_mime_type,omitempty"`

	// TraceID correlates this call with the caller's unit of work (a
	// Message qualification, a Document extraction) for log correlation.
	TraceID string `json:"trace_id,omitempty"`
}

// CompletionResponse is a Provider's reply.
type CompletionResponse struct {
	Content      string     `json:"content"`
	TokensUsed   TokenUsage `json:"tokens_used"`
	LatencyMs    int        `json:"latency_ms"`
	Model        string     `json:"model"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// TokenUsage tracks token consumption, used to derive the dollar cost
// against C7's per-document LLM cap.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// ErrorCode classifies why a Provider call failed.
type ErrorCode string

const (
	ErrTimeout        ErrorCode = "timeout"
	ErrUnavailable    ErrorCode = "unavailable"
	ErrRateLimit      ErrorCode = "rate_limit"
	ErrParseFailure   ErrorCode = "parse_failure"
	ErrInvalidSchema  ErrorCode = "invalid_schema"
	ErrContentTooLong ErrorCode = "content_too_long"
)

// Error is the error type returned by a Provider.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return e.Message }
