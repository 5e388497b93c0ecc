package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeGmailBase64URL(t *testing.T) {
	// "hello world" URL-safe, unpadded base64.
	out, err := decodeGmailBase64URL("aGVsbG8gd29ybGQ")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
}

func TestDecodeStandardBase64(t *testing.T) {
	out, err := decodeStandardBase64("aGVsbG8gd29ybGQ=")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
}

func TestStaticToken(t *testing.T) {
	ts := StaticToken("abc123")
	tok, err := ts.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)
}
