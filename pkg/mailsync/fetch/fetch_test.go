package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mailgraph/credentials"
)

type fakeCreds struct {
	token string
	cred  *credentials.Credential
	err   error
}

func (f *fakeCreds) GetAccessToken(ctx context.Context, userID string, provider credentials.Provider) (string, error) {
	return f.token, f.err
}

func (f *fakeCreds) Get(ctx context.Context, userID string, provider credentials.Provider) (*credentials.Credential, error) {
	return f.cred, f.err
}

func TestFetcher_FetchAttachment_Gmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{"data": "aGVsbG8"}) // base64 "hello"
	}))
	defer srv.Close()

	creds := &fakeCreds{token: "test-token"}
	f := New(creds, srv.Client())

	adapter, err := f.adapterFor(context.Background(), "user-1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "gmail", string(adapter.Name()))
}

func TestFetcher_UnknownProviderErrors(t *testing.T) {
	f := New(&fakeCreds{}, nil)
	_, err := f.adapterFor(context.Background(), "user-1", "carrier-pigeon")
	require.Error(t, err)
}

func TestFetcher_IMAPMissingHostErrors(t *testing.T) {
	f := New(&fakeCreds{cred: &credentials.Credential{Provider: credentials.ProviderIMAP}}, nil)
	_, err := f.adapterFor(context.Background(), "user-1", "imap")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing host")
}

func TestFetcher_IMAPWithHostBuildsAdapter(t *testing.T) {
	cred := &credentials.Credential{Provider: credentials.ProviderIMAP, IMAPHost: "imap.example.com:993", IMAPUsername: "user@example.com"}
	f := New(&fakeCreds{cred: cred, token: "app-password"}, nil)
	adapter, err := f.adapterFor(context.Background(), "user-1", "imap")
	require.NoError(t, err)
	assert.Equal(t, "imap", string(adapter.Name()))
}
