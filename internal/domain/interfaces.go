package domain

import "context"

// CompletionRequest is a rendered prompt sent to a text-completion backend.
type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature float32  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// CompletionResponse is the raw completion and its usage envelope.
type CompletionResponse struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Text  string `json:"text"`

	// Usage is nil when the backend did not report token counts.
	Usage *Usage `json:"usage,omitempty"`
}

// Completer runs inference for a rendered prompt.
type Completer interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}
