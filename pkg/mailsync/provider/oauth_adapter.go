package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	mgerrors "github.com/otherjamesbrown/mailgraph/pkg/errors"
)

// gmailBaseURL and graphBaseURL are overridable for tests.
var (
	gmailBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"
	graphBaseURL = "https://graph.microsoft.com/v1.0/me"
)

// OAuthAdapter implements Adapter for REST-based OAuth providers (Gmail,
// Outlook/Graph). Each adapter is constructed fresh per sync run with the
// caller's current access token; it never refreshes tokens itself — that is
// credentials.Store's job (C1), kept out of C2 per the component boundary.
type OAuthAdapter struct {
	name   Name
	tokens TokenSource
	client *http.Client
	limit  RateLimitPolicy
}

// NewGmailAdapter constructs a Gmail REST API adapter.
func NewGmailAdapter(tokens TokenSource, client *http.Client) *OAuthAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &OAuthAdapter{
		name:   Gmail,
		tokens: tokens,
		client: client,
		// Gmail's documented quota is 250 units/sec; a simple metadata read
		// costs ~5 units, so ~50 req/s is a conservative approximation.
		limit: RateLimitPolicy{RequestsPerSecond: 50, Burst: 20},
	}
}

// NewOutlookAdapter constructs a Microsoft Graph mail adapter.
func NewOutlookAdapter(tokens TokenSource, client *http.Client) *OAuthAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &OAuthAdapter{
		name:   Outlook,
		tokens: tokens,
		client: client,
		limit:  RateLimitPolicy{RequestsPerSecond: 10, Burst: 20},
	}
}

func (a *OAuthAdapter) Name() Name                   { return a.name }
func (a *OAuthAdapter) RateLimit() RateLimitPolicy    { return a.limit }

func (a *OAuthAdapter) doJSON(ctx context.Context, method, rawURL string, out interface{}) error {
	token, err := a.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return mgerrors.ClassifyError(err, "provider.fetch")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return mgerrors.ClassifyError(fmt.Errorf("invalid_grant: %s returned 401", a.name), "provider.fetch")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return mgerrors.ClassifyError(fmt.Errorf("rate limit: %s returned 429", a.name), "provider.fetch")
	}
	if resp.StatusCode >= 500 {
		return mgerrors.ClassifyError(fmt.Errorf("service unavailable: %s returned %d", a.name, resp.StatusCode), "provider.fetch")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return mgerrors.ClassifyError(fmt.Errorf("malformed request to %s: %d: %s", a.name, resp.StatusCode, body), "provider.fetch")
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListMessages lists message references newer than cursor.Since, using the
// provider's native pagination token stored in cursor.Token.
func (a *OAuthAdapter) ListMessages(ctx context.Context, cursor Cursor, maxResults int) (Page, error) {
	switch a.name {
	case Gmail:
		return a.listGmail(ctx, cursor, maxResults)
	case Outlook:
		return a.listOutlook(ctx, cursor, maxResults)
	default:
		return Page{}, fmt.Errorf("unsupported provider %q", a.name)
	}
}

type gmailListResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

func (a *OAuthAdapter) listGmail(ctx context.Context, cursor Cursor, maxResults int) (Page, error) {
	q := url.Values{}
	q.Set("maxResults", strconv.Itoa(maxResults))
	q.Set("q", "after:"+strconv.FormatInt(cursor.Since.Unix(), 10))
	if cursor.Token != "" {
		q.Set("pageToken", cursor.Token)
	}

	var resp gmailListResponse
	if err := a.doJSON(ctx, http.MethodGet, gmailBaseURL+"/messages?"+q.Encode(), &resp); err != nil {
		return Page{}, err
	}

	refs := make([]MessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		refs = append(refs, MessageRef{ProviderMessageID: m.ID})
	}

	return Page{
		Messages:   refs,
		NextCursor: Cursor{Token: resp.NextPageToken, Since: cursor.Since},
		HasMore:    resp.NextPageToken != "",
	}, nil
}

type graphListResponse struct {
	Value []struct {
		ID                 string `json:"id"`
		ConversationID     string `json:"conversationId"`
		ReceivedDateTime   string `json:"receivedDateTime"`
	} `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

func (a *OAuthAdapter) listOutlook(ctx context.Context, cursor Cursor, maxResults int) (Page, error) {
	reqURL := cursor.Token
	if reqURL == "" {
		q := url.Values{}
		q.Set("$top", strconv.Itoa(maxResults))
		q.Set("$filter", "receivedDateTime ge "+cursor.Since.UTC().Format(time.RFC3339))
		q.Set("$orderby", "receivedDateTime desc")
		reqURL = graphBaseURL + "/messages?" + q.Encode()
	}

	var resp graphListResponse
	if err := a.doJSON(ctx, http.MethodGet, reqURL, &resp); err != nil {
		return Page{}, err
	}

	refs := make([]MessageRef, 0, len(resp.Value))
	for _, m := range resp.Value {
		t, _ := time.Parse(time.RFC3339, m.ReceivedDateTime)
		refs = append(refs, MessageRef{ProviderMessageID: m.ID, ThreadID: m.ConversationID, ReceivedAt: t})
	}

	return Page{
		Messages:   refs,
		NextCursor: Cursor{Token: resp.NextLink, Since: cursor.Since},
		HasMore:    resp.NextLink != "",
	}, nil
}

// FetchMessage retrieves and normalizes one full message.
func (a *OAuthAdapter) FetchMessage(ctx context.Context, providerMessageID string) (*Message, error) {
	switch a.name {
	case Gmail:
		return a.fetchGmailMessage(ctx, providerMessageID)
	case Outlook:
		return a.fetchOutlookMessage(ctx, providerMessageID)
	default:
		return nil, fmt.Errorf("unsupported provider %q", a.name)
	}
}

type gmailMessagePart struct {
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Body     struct {
		AttachmentID string `json:"attachmentId"`
		Size         int64  `json:"size"`
		Data         string `json:"data"`
	} `json:"body"`
	Headers []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"headers"`
	Parts []gmailMessagePart `json:"parts"`
}

type gmailMessage struct {
	ID           string           `json:"id"`
	ThreadID     string           `json:"threadId"`
	Snippet      string           `json:"snippet"`
	SizeEstimate int64            `json:"sizeEstimate"`
	InternalDate string           `json:"internalDate"`
	Payload      gmailMessagePart `json:"payload"`
}

func (a *OAuthAdapter) fetchGmailMessage(ctx context.Context, id string) (*Message, error) {
	var raw gmailMessage
	if err := a.doJSON(ctx, http.MethodGet, gmailBaseURL+"/messages/"+id+"?format=full", &raw); err != nil {
		return nil, err
	}

	msg := &Message{
		ProviderMessageID: raw.ID,
		ThreadID:          raw.ThreadID,
		Snippet:           raw.Snippet,
		RawSizeBytes:      raw.SizeEstimate,
	}
	if ms, err := strconv.ParseInt(raw.InternalDate, 10, 64); err == nil {
		msg.ReceivedAt = time.UnixMilli(ms)
	}
	for _, h := range raw.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = h.Value
		case "to":
			msg.To = strings.Split(h.Value, ",")
		case "subject":
			msg.Subject = h.Value
		}
	}

	var walk func(part gmailMessagePart)
	walk = func(part gmailMessagePart) {
		if part.Filename != "" && part.Body.AttachmentID != "" {
			msg.Attachments = append(msg.Attachments, AttachmentRef{
				ProviderAttachmentID: part.Body.AttachmentID,
				Filename:             part.Filename,
				MimeType:             part.MimeType,
				SizeBytes:            part.Body.Size,
			})
		}
		if part.MimeType == "text/plain" && msg.BodyText == "" && part.Body.Data != "" {
			msg.BodyText = part.Body.Data
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(raw.Payload)

	return msg, nil
}

type graphMessage struct {
	ID               string `json:"id"`
	ConversationID   string `json:"conversationId"`
	Subject          string `json:"subject"`
	BodyPreview      string `json:"bodyPreview"`
	ReceivedDateTime string `json:"receivedDateTime"`
	From             struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	ToRecipients []struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"toRecipients"`
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	HasAttachments bool `json:"hasAttachments"`
}

func (a *OAuthAdapter) fetchOutlookMessage(ctx context.Context, id string) (*Message, error) {
	var raw graphMessage
	if err := a.doJSON(ctx, http.MethodGet, graphBaseURL+"/messages/"+id, &raw); err != nil {
		return nil, err
	}

	msg := &Message{
		ProviderMessageID: raw.ID,
		ThreadID:          raw.ConversationID,
		From:              raw.From.EmailAddress.Address,
		Subject:           raw.Subject,
		Snippet:           raw.BodyPreview,
		BodyText:          raw.Body.Content,
	}
	for _, r := range raw.ToRecipients {
		msg.To = append(msg.To, r.EmailAddress.Address)
	}
	if t, err := time.Parse(time.RFC3339, raw.ReceivedDateTime); err == nil {
		msg.ReceivedAt = t
	}

	if raw.HasAttachments {
		var attResp struct {
			Value []struct {
				ID          string `json:"id"`
				Name        string `json:"name"`
				ContentType string `json:"contentType"`
				Size        int64  `json:"size"`
				ContentID   string `json:"contentId"`
			} `json:"value"`
		}
		if err := a.doJSON(ctx, http.MethodGet, graphBaseURL+"/messages/"+id+"/attachments", &attResp); err != nil {
			return nil, err
		}
		for _, att := range attResp.Value {
			msg.Attachments = append(msg.Attachments, AttachmentRef{
				ProviderAttachmentID: att.ID,
				Filename:             att.Name,
				MimeType:             att.ContentType,
				SizeBytes:            att.Size,
				ContentID:            att.ContentID,
			})
		}
	}

	return msg, nil
}

// FetchAttachment retrieves the raw bytes of one attachment.
func (a *OAuthAdapter) FetchAttachment(ctx context.Context, providerMessageID, providerAttachmentID string) ([]byte, error) {
	switch a.name {
	case Gmail:
		var resp struct {
			Data string `json:"data"`
		}
		rawURL := gmailBaseURL + "/messages/" + providerMessageID + "/attachments/" + providerAttachmentID
		if err := a.doJSON(ctx, http.MethodGet, rawURL, &resp); err != nil {
			return nil, err
		}
		return decodeGmailBase64URL(resp.Data)
	case Outlook:
		var resp struct {
			ContentBytes string `json:"contentBytes"`
		}
		rawURL := graphBaseURL + "/messages/" + providerMessageID + "/attachments/" + providerAttachmentID
		if err := a.doJSON(ctx, http.MethodGet, rawURL, &resp); err != nil {
			return nil, err
		}
		return decodeStandardBase64(resp.ContentBytes)
	default:
		return nil, fmt.Errorf("unsupported provider %q", a.name)
	}
}
