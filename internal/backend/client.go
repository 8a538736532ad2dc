// Package backend is a client for OpenAI-compatible text-completion servers
// (vLLM, SGLang, llama.cpp) that host the chat-template model families.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

const (
	defaultBaseURL = "http://localhost:8000/v1"
	defaultTimeout = 120 * time.Second
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithKeepSpecialTokens asks the server not to strip special tokens, which
// some servers do by default and which would remove reasoning markers.
func WithKeepSpecialTokens(keep bool) ClientOption {
	return func(c *Client) {
		c.keepSpecial = keep
	}
}

// Client talks to the /completions and /tokenize endpoints.
type Client struct {
	apiKey      string
	baseURL     string
	keepSpecial bool
	httpClient  *http.Client
}

// NewClient creates a new completion client. Outbound requests are traced.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the backend name.
func (c *Client) Name() string {
	return "openai-completions"
}

// Complete implements domain.Completer.
func (c *Client) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	apiReq := &CompletionRequest{
		Model:       req.Model,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	}
	if c.keepSpecial {
		skip := false
		apiReq.SkipSpecialTokens = &skip
	}

	resp, err := c.CreateCompletion(ctx, apiReq)
	if err != nil {
		return nil, domain.ErrBackend("completion request failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, domain.ErrBackend("completion response has no choices", nil)
	}

	out := &domain.CompletionResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Text:  resp.Choices[0].Text,
	}
	if resp.Usage != nil {
		out.Usage = &domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
	}
	return out, nil
}

// CreateCompletion sends a completion request.
func (c *Client) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	var result CompletionResponse
	raw, err := c.post(ctx, "/completions", req, &result)
	if err != nil {
		return nil, err
	}
	result.RawBody = raw
	return &result, nil
}

// Tokenize counts the tokens of text with the served model's tokenizer.
// It implements tokens.Tokenizer.
func (c *Client) Tokenize(ctx context.Context, model, text string) (int, error) {
	var result TokenizeResponse
	if _, err := c.post(ctx, "/tokenize", &TokenizeRequest{Model: model, Prompt: text}, &result); err != nil {
		return 0, err
	}
	if result.Count == 0 && len(result.Tokens) > 0 {
		return len(result.Tokens), nil
	}
	return result.Count, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if apiErr, err := ParseErrorResponse(respBody); err == nil && apiErr != nil {
			return nil, fmt.Errorf("API error (status %d): %w", resp.StatusCode, apiErr)
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return respBody, nil
}

// endpoint resolves path against the base URL. vLLM serves /tokenize beside
// /v1 rather than under it.
func (c *Client) endpoint(path string) string {
	if path == "/tokenize" {
		return strings.TrimSuffix(c.baseURL, "/v1") + path
	}
	return c.baseURL + path
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("User-Agent", "chat-template-codecs/1.0")
}
