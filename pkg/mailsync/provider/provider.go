// Package provider defines the Mail Provider Adapter contract (C2) and the
// rate-limit/pagination types every adapter (Gmail, Outlook, IMAP) must
// honor. Adapters are constructed per sync run from a caller-supplied
// *oauth2.Token/credential — never held as a shared mutable service object,
// per the "no shared mutable service objects" redesign flag.
package provider

import (
	"context"
	"time"
)

// Name identifies a concrete provider implementation.
type Name string

const (
	Gmail   Name = "gmail"
	Outlook Name = "outlook"
	IMAP    Name = "imap"
)

// Cursor is an opaque, provider-specific pagination token plus the rolling
// sync window lower bound. Sync Coordinator (C3) persists this between runs.
type Cursor struct {
	// Token is the provider's own pagination cursor (historyId, deltaLink,
	// UIDNEXT, ...). Empty on the first sync for a user.
	Token string
	// Since bounds the rolling window (spec.md §4.2/§4.3): messages older
	// than this are never fetched, even if the provider would return them.
	Since time.Time
}

// MessageRef is a lightweight reference returned by ListMessages, used to
// decide whether a message needs a full FetchMessage call (dedup against
// already-ingested provider_message_id before paying for the body fetch).
type MessageRef struct {
	ProviderMessageID string
	ThreadID          string
	ReceivedAt        time.Time
}

// Page is one page of message references plus the cursor to resume from.
type Page struct {
	Messages   []MessageRef
	NextCursor Cursor
	HasMore    bool
}

// AttachmentRef describes an attachment without fetching its bytes.
type AttachmentRef struct {
	ProviderAttachmentID string
	Filename             string
	MimeType             string
	SizeBytes            int64
	ContentID            string // non-empty for inline/cid-referenced parts
}

// Message is the normalized representation a provider adapter produces,
// independent of the wire format (Gmail JSON, Graph JSON, RFC822/IMAP).
type Message struct {
	ProviderMessageID string
	ThreadID          string
	From              string
	To                []string
	Subject           string
	Snippet           string
	BodyText          string
	ReceivedAt        time.Time
	RawSizeBytes      int64
	Attachments       []AttachmentRef
}

// RateLimitPolicy describes the provider's documented quota so the Sync
// Coordinator's limiter (C3/§5) can be configured without hardcoding
// provider knowledge outside this package.
type RateLimitPolicy struct {
	RequestsPerSecond float64
	Burst             int
}

// Adapter is the contract every mail provider must satisfy (C2). A fresh
// Adapter is constructed per sync run from the current access token; it
// holds no cross-request state of its own.
type Adapter interface {
	Name() Name

	// ListMessages returns message references received at or after
	// cursor.Since, newest batches first, resuming from cursor.Token.
	ListMessages(ctx context.Context, cursor Cursor, maxResults int) (Page, error)

	// FetchMessage retrieves the full, normalized message body and
	// attachment manifest for one provider message ID.
	FetchMessage(ctx context.Context, providerMessageID string) (*Message, error)

	// FetchAttachment retrieves the raw bytes of one attachment.
	FetchAttachment(ctx context.Context, providerMessageID, providerAttachmentID string) ([]byte, error)

	RateLimit() RateLimitPolicy
}

// TokenSource supplies the bearer token an Adapter uses for one sync run.
// credentials.Store implements this indirectly via GetAccessToken.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// staticToken is a TokenSource that always returns the same token, useful
// for tests and for IMAP app-password auth which has no refresh semantics.
type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

// StaticToken wraps a fixed bearer token as a TokenSource.
func StaticToken(token string) TokenSource { return staticToken(token) }
