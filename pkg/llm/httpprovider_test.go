package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProvider_CompleteReturnsContentAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":       "test-model",
			"stop_reason": "end_turn",
			"content":     []map[string]string{{"type": "text", "text": "hello world"}},
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{Endpoint: srv.URL, APIKey: "test-key", Model: "test-model"})
	resp, err := p.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", resp.Content)
	assert.Equal(t, 15, resp.TokensUsed.Total)
	assert.Equal(t, "test-model", resp.Model)
}

func TestHTTPProvider_CompleteRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{Endpoint: srv.URL, Model: "test-model"})
	_, err := p.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	llmErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrRateLimit, llmErr.Code)
}

func TestHTTPProvider_CompleteStructuredStripsMarkdownFence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":   "test-model",
			"content": []map[string]string{{"type": "text", "text": "```json\n{\"vendor_name\":\"Acme\"}\n```"}},
			"usage":   map[string]int{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{Endpoint: srv.URL, Model: "test-model"})
	var out struct {
		VendorName string `json:"vendor_name"`
	}
	err := p.CompleteStructured(context.Background(), CompletionRequest{Prompt: "extract fields"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Acme", out.VendorName)
}

func TestHTTPProvider_CompleteStructuredRetriesOnParseFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		text := "not json"
		if calls > 1 {
			text = `{"vendor_name":"Acme"}`
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":   "test-model",
			"content": []map[string]string{{"type": "text", "text": text}},
			"usage":   map[string]int{},
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{Endpoint: srv.URL, Model: "test-model", MaxRetries: 2})
	var out struct {
		VendorName string `json:"vendor_name"`
	}
	err := p.CompleteStructured(context.Background(), CompletionRequest{Prompt: "extract fields"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Acme", out.VendorName)
	assert.Equal(t, 2, calls)
}

func TestHTTPProvider_Name(t *testing.T) {
	p := NewHTTPProvider(HTTPConfig{Endpoint: "http://example.invalid", Model: "claude-sonnet"})
	assert.Equal(t, "claude-sonnet", p.Name())
}
