package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPConfig configures an HTTPProvider. Endpoint and Model describe a
// hosted chat-completion API (the request/response shape below matches the
// widely-deployed "messages" convention: a system prompt, a list of
// user/assistant turns, and a response broken into content blocks with a
// token-usage summary) — no vendor SDK is assumed, only the JSON wire
// contract, so the same HTTPProvider works against any provider exposing
// that shape by pointing Endpoint at it.
type HTTPConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	MaxRetries  int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// HTTPProvider implements Provider against a hosted chat-completion HTTP
// API. Grounded on pkg/mentions/resolver's AIProvider (retry loop + markdown
// code-fence stripping in CompleteStructured), with the transport swapped
// from that package's internal gRPC AIClient for a plain net/http client,
// since no hosted-LLM client SDK appears anywhere in the example corpus.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPProvider constructs an HTTPProvider. A zero-value cfg.HTTPClient
// gets a client with cfg.Timeout (defaulting to 60s) as its overall request
// deadline.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPProvider{cfg: cfg, client: client}
}

func (p *HTTPProvider) Name() string {
	if p.cfg.Model != "" {
		return p.cfg.Model
	}
	return "http-llm"
}

type httpContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Source   *httpImageSource `json:"source,omitempty"`
}

type httpImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type httpMessage struct {
	Role    string              `json:"role"`
	Content []httpContentBlock `json:"content"`
}

type httpRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []httpMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature,omitempty"`
}

type httpResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one completion request and returns the raw response.
func (p *HTTPProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	blocks := []httpContentBlock{{Type: "text", Text: req.Prompt}}
	if req.ImageBase64 != "" {
		blocks = append(blocks, httpContentBlock{
			Type: "image",
			Source: &httpImageSource{
				Type:      "base64",
				MediaType: req.ImageMimeType,
				Data:      req.ImageBase64,
			},
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := httpRequest{
		Model:       p.cfg.Model,
		System:      req.SystemPrompt,
		Messages:    []httpMessage{{Role: "user", Content: blocks}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Code: ErrInvalidSchema, Message: fmt.Sprintf("encoding request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Code: ErrUnavailable, Message: fmt.Sprintf("building request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	if req.TraceID != "" {
		httpReq.Header.Set("X-Trace-Id", req.TraceID)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &Error{Code: ErrTimeout, Message: "request timeout"}
		}
		if ctx.Err() == context.Canceled {
			return nil, &Error{Code: ErrUnavailable, Message: "request canceled"}
		}
		return nil, &Error{Code: ErrUnavailable, Message: fmt.Sprintf("llm http request: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &Error{Code: ErrUnavailable, Message: fmt.Sprintf("reading response: %v", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &Error{Code: ErrRateLimit, Message: "llm provider rate limited"}
	}
	if resp.StatusCode >= 500 {
		return nil, &Error{Code: ErrUnavailable, Message: fmt.Sprintf("llm provider returned %d", resp.StatusCode)}
	}

	var decoded httpResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &Error{Code: ErrParseFailure, Message: fmt.Sprintf("decoding llm response: %v", err)}
	}
	if decoded.Error != nil {
		return nil, &Error{Code: ErrInvalidSchema, Message: decoded.Error.Message}
	}

	var content strings.Builder
	for _, block := range decoded.Content {
		content.WriteString(block.Text)
	}

	usage := TokenUsage{Prompt: decoded.Usage.InputTokens, Completion: decoded.Usage.OutputTokens}
	usage.Total = usage.Prompt + usage.Completion

	return &CompletionResponse{
		Content:      content.String(),
		TokensUsed:   usage,
		LatencyMs:    int(time.Since(start).Milliseconds()),
		Model:        decoded.Model,
		FinishReason: decoded.StopReason,
	}, nil
}

// CompleteStructured sends a request expecting JSON output and decodes it
// into target, retrying on a parse failure with a progressively stronger
// hint that only JSON is acceptable — the same shape as
// pkg/mentions/resolver.AIProvider.CompleteStructured.
func (p *HTTPProvider) CompleteStructured(ctx context.Context, req CompletionRequest, target interface{}) error {
	if !strings.Contains(strings.ToLower(req.Prompt), "json") {
		req.Prompt += "\n\nRespond with valid JSON only."
	}
	req.JSONMode = true

	maxRetries := p.cfg.MaxRetries
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return err
			}
			continue
		}

		content := strings.TrimSpace(resp.Content)
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)

		if err := json.Unmarshal([]byte(content), target); err != nil {
			lastErr = &Error{Code: ErrParseFailure, Message: fmt.Sprintf("parse JSON: %v", err)}
			if attempt < maxRetries {
				req.Prompt += "\n\nIMPORTANT: respond with valid JSON only. No markdown, no explanations."
			}
			continue
		}
		return nil
	}
	return lastErr
}

// IsAvailable reports whether the endpoint currently answers — a cheap GET
// probe against the endpoint's host, not a billed completion call.
func (p *HTTPProvider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.cfg.Endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

var _ Provider = (*HTTPProvider)(nil)
