package errors

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata (§7 error taxonomy).
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrCredentialRevoked: {
		Code:            ErrCredentialRevoked,
		Retryable:       false,
		Description:     "Provider revoked the user's OAuth grant",
		SuggestedAction: "Prompt the user to re-authorize the mail account before resuming sync",
	},
	ErrRateLimited: {
		Code:            ErrRateLimited,
		Retryable:       true,
		Description:     "Provider or LLM request was rate limited",
		SuggestedAction: "Back off and retry after the provider's reset window",
	},
	ErrProviderTransient: {
		Code:            ErrProviderTransient,
		Retryable:       true,
		Description:     "Recoverable provider-side failure (5xx, reset, timeout)",
		SuggestedAction: "Retry with exponential backoff",
	},
	ErrProviderPermanent: {
		Code:            ErrProviderPermanent,
		Retryable:       false,
		Description:     "Non-recoverable provider error (deleted message, unsupported mailbox)",
		SuggestedAction: "Mark the job failed and surface it for manual review",
	},
	ErrLLMTransient: {
		Code:            ErrLLMTransient,
		Retryable:       true,
		Description:     "Recoverable LLM call failure",
		SuggestedAction: "Retry with backoff, falling back to a secondary model if configured",
	},
	ErrLLMPermanent: {
		Code:            ErrLLMPermanent,
		Retryable:       false,
		Description:     "LLM call cannot succeed on retry (persistent malformed output)",
		SuggestedAction: "Queue the document for manual review",
	},
	ErrCostCapExceeded: {
		Code:            ErrCostCapExceeded,
		Retryable:       false,
		Description:     "Per-user or global LLM cost cap was reached",
		SuggestedAction: "Defer extraction until the cap window resets or the user raises the cap",
	},
	ErrEncryptedPDF: {
		Code:            ErrEncryptedPDF,
		Retryable:       false,
		Description:     "Document requires a password to open",
		SuggestedAction: "Queue for manual review; automatic extraction cannot proceed",
	},
	ErrCorruptedDocument: {
		Code:            ErrCorruptedDocument,
		Retryable:       false,
		Description:     "Attachment bytes could not be parsed as the declared document type",
		SuggestedAction: "Queue for manual review",
	},
	ErrScannedSkipped: {
		Code:            ErrScannedSkipped,
		Retryable:       false,
		Description:     "Scanned/image-only document skipped under the configured cost policy",
		SuggestedAction: "Raise the cost policy ceiling or manually reprocess with OCR forced on",
	},
	ErrImageSkipped: {
		Code:            ErrImageSkipped,
		Retryable:       false,
		Description:     "Image attachment skipped by deterministic heuristics (logo/signature/tracking pixel)",
		SuggestedAction: "No action needed; expected for inline branding images",
	},
	ErrOutOfScope: {
		Code:            ErrOutOfScope,
		Retryable:       false,
		Description:     "Message failed qualification",
		SuggestedAction: "No action needed; expected for non-business-document mail",
	},
	ErrDuplicate: {
		Code:            ErrDuplicate,
		Retryable:       false,
		Description:     "Content hash already exists; extraction skipped in favor of linking",
		SuggestedAction: "No action needed; this is expected for forwarded/duplicate attachments",
	},
	ErrSyncInProgress: {
		Code:            ErrSyncInProgress,
		Retryable:       false,
		Description:     "A sync run is already active for this user",
		SuggestedAction: "Wait for the in-flight sync to complete before requesting another",
	},
}

// IsRetryable returns true if the given error code represents a transient,
// retryable error.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetSuggestedAction returns the suggested action for the given error code.
func GetSuggestedAction(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.SuggestedAction
	}
	return "Check component logs for more detail"
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
