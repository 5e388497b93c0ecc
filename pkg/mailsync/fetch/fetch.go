// Package fetch adapts C1 (credentials.Store) and C2 (mailsync/provider
// adapters) into the single-method pipeline.AttachmentFetcher that C6 calls
// during the fetching transition. Per provider.go's "no shared mutable
// service objects" redesign flag, it constructs a fresh Adapter from the
// user's current access token on every call rather than caching one.
package fetch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/otherjamesbrown/mailgraph/credentials"
	"github.com/otherjamesbrown/mailgraph/pkg/mailsync/provider"
)

// CredentialSource narrows credentials.Store to what the fetcher needs, for
// test substitutability.
type CredentialSource interface {
	GetAccessToken(ctx context.Context, userID string, provider credentials.Provider) (string, error)
	Get(ctx context.Context, userID string, provider credentials.Provider) (*credentials.Credential, error)
}

var _ CredentialSource = (*credentials.Store)(nil)

// Fetcher implements pipeline.AttachmentFetcher by resolving the caller's
// current credential and constructing the matching provider.Adapter per
// call.
type Fetcher struct {
	creds      CredentialSource
	httpClient *http.Client
}

// New builds a Fetcher. A nil httpClient uses http.DefaultClient for the
// OAuth providers' REST calls.
func New(creds CredentialSource, httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{creds: creds, httpClient: httpClient}
}

// FetchAttachment retrieves one attachment's raw bytes on behalf of userID,
// dispatching to the provider.Adapter matching providerName.
func (f *Fetcher) FetchAttachment(ctx context.Context, userID, providerName, providerMessageID, providerAttachmentID string) ([]byte, error) {
	adapter, err := f.adapterFor(ctx, userID, providerName)
	if err != nil {
		return nil, err
	}
	return adapter.FetchAttachment(ctx, providerMessageID, providerAttachmentID)
}

// AdapterFor constructs the provider.Adapter for (userID, providerName) from
// the user's currently stored credential. Exposed so C3 sync call sites can
// build the same adapter this Fetcher would use for that user's attachments.
func (f *Fetcher) AdapterFor(ctx context.Context, userID, providerName string) (provider.Adapter, error) {
	return f.adapterFor(ctx, userID, providerName)
}

// adapterFor constructs the provider.Adapter for (userID, providerName) from
// the user's currently stored credential.
func (f *Fetcher) adapterFor(ctx context.Context, userID, providerName string) (provider.Adapter, error) {
	p := credentials.Provider(providerName)
	tokens := userTokenSource{creds: f.creds, userID: userID, provider: p}

	switch p {
	case credentials.ProviderGmail:
		return provider.NewGmailAdapter(tokens, f.httpClient), nil
	case credentials.ProviderOutlook:
		return provider.NewOutlookAdapter(tokens, f.httpClient), nil
	case credentials.ProviderIMAP:
		cred, err := f.creds.Get(ctx, userID, p)
		if err != nil {
			return nil, fmt.Errorf("loading imap credential: %w", err)
		}
		if cred.IMAPHost == "" || cred.IMAPUsername == "" {
			return nil, fmt.Errorf("imap credential for user %s missing host/username", userID)
		}
		dial := provider.DialIMAPTLS(cred.IMAPHost, cred.IMAPUsername, tokens)
		return provider.NewIMAPAdapter(dial, "INBOX"), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}
}

// userTokenSource adapts credentials.Store.GetAccessToken to
// provider.TokenSource for one (userID, provider) pair.
type userTokenSource struct {
	creds    CredentialSource
	userID   string
	provider credentials.Provider
}

func (t userTokenSource) AccessToken(ctx context.Context) (string, error) {
	return t.creds.GetAccessToken(ctx, t.userID, t.provider)
}
