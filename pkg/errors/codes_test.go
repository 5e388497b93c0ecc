package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeRegistry_Completeness(t *testing.T) {
	allCodes := []ErrorCode{
		ErrCredentialRevoked,
		ErrRateLimited,
		ErrProviderTransient,
		ErrProviderPermanent,
		ErrLLMTransient,
		ErrLLMPermanent,
		ErrCostCapExceeded,
		ErrEncryptedPDF,
		ErrCorruptedDocument,
		ErrScannedSkipped,
		ErrImageSkipped,
		ErrOutOfScope,
		ErrDuplicate,
		ErrSyncInProgress,
	}

	for _, code := range allCodes {
		t.Run(string(code), func(t *testing.T) {
			info, ok := ErrorCodeRegistry[code]
			assert.True(t, ok, "ErrorCode %s should be in registry", code)
			assert.Equal(t, code, info.Code)
			assert.NotEmpty(t, info.Description)
			assert.NotEmpty(t, info.SuggestedAction)
		})
	}
}

func TestIsRetryable_ErrorCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected bool
	}{
		{ErrCredentialRevoked, false},
		{ErrRateLimited, true},
		{ErrProviderTransient, true},
		{ErrProviderPermanent, false},
		{ErrLLMTransient, true},
		{ErrLLMPermanent, false},
		{ErrCostCapExceeded, false},
		{ErrEncryptedPDF, false},
		{ErrCorruptedDocument, false},
		{ErrScannedSkipped, false},
		{ErrImageSkipped, false},
		{ErrOutOfScope, false},
		{ErrDuplicate, false},
		{ErrSyncInProgress, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.code))
		})
	}
}

func TestGetSuggestedAction_Unknown(t *testing.T) {
	action := GetSuggestedAction("unknown_code")
	assert.Contains(t, action, "logs")
}

func TestGetDescription_Unknown(t *testing.T) {
	desc := GetDescription("unknown_code")
	assert.Equal(t, "Unknown error", desc)
}

func TestErrorCodeRegistry_AllCodesUnique(t *testing.T) {
	seen := make(map[ErrorCode]bool)
	for code := range ErrorCodeRegistry {
		assert.False(t, seen[code], "Error code %s should be unique", code)
		seen[code] = true
	}
}
