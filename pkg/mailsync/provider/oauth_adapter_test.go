package provider

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuthAdapter_ListMessages_Gmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[{"id":"m1"},{"id":"m2"}],"nextPageToken":"p2"}`))
	}))
	defer srv.Close()

	restoreGmail := gmailBaseURL
	gmailBaseURL = srv.URL
	defer func() { gmailBaseURL = restoreGmail }()

	adapter := NewGmailAdapter(StaticToken("test-token"), srv.Client())
	page, err := adapter.ListMessages(t.Context(), Cursor{Since: time.Now().Add(-time.Hour)}, 10)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)
	assert.Equal(t, "m1", page.Messages[0].ProviderMessageID)
	assert.True(t, page.HasMore)
	assert.Equal(t, "p2", page.NextCursor.Token)
}

func TestOAuthAdapter_FetchMessage_Gmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "m1",
			"threadId": "t1",
			"snippet": "hi there",
			"sizeEstimate": 1024,
			"internalDate": "1700000000000",
			"payload": {
				"headers": [
					{"name": "From", "value": "sender@example.com"},
					{"name": "To", "value": "me@example.com"},
					{"name": "Subject", "value": "Invoice #123"}
				],
				"parts": [
					{"mimeType": "text/plain", "body": {"data": "aGVsbG8"}},
					{"filename": "invoice.pdf", "mimeType": "application/pdf", "body": {"attachmentId": "a1", "size": 2048}}
				]
			}
		}`))
	}))
	defer srv.Close()

	restoreGmail := gmailBaseURL
	gmailBaseURL = srv.URL
	defer func() { gmailBaseURL = restoreGmail }()

	adapter := NewGmailAdapter(StaticToken("test-token"), srv.Client())
	msg, err := adapter.FetchMessage(t.Context(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "sender@example.com", msg.From)
	assert.Equal(t, "Invoice #123", msg.Subject)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "invoice.pdf", msg.Attachments[0].Filename)
}

func TestOAuthAdapter_DoJSON_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	restoreGmail := gmailBaseURL
	gmailBaseURL = srv.URL
	defer func() { gmailBaseURL = restoreGmail }()

	adapter := NewGmailAdapter(StaticToken("test-token"), srv.Client())
	_, err := adapter.FetchMessage(t.Context(), "m1")
	require.Error(t, err)
}

func TestOAuthAdapter_DoJSON_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	restoreGraph := graphBaseURL
	graphBaseURL = srv.URL
	defer func() { graphBaseURL = restoreGraph }()

	adapter := NewOutlookAdapter(StaticToken("test-token"), srv.Client())
	_, err := adapter.FetchMessage(t.Context(), "m1")
	require.Error(t, err)
}
