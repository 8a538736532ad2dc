package domain

import "context"

// TokenCountRequest asks for the token count of rendered text.
type TokenCountRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

// TokenCountResponse represents the response from counting tokens.
type TokenCountResponse struct {
	Tokens int    `json:"tokens"`
	Model  string `json:"model,omitempty"`
	// Estimated indicates whether the count is an estimate (true) or exact (false)
	Estimated bool `json:"estimated,omitempty"`
}

// TokenCounter provides token counting capabilities.
type TokenCounter interface {
	// CountTokens counts the tokens in the given request.
	CountTokens(ctx context.Context, req *TokenCountRequest) (*TokenCountResponse, error)

	// SupportsModel returns true if this counter supports the given model.
	SupportsModel(model string) bool
}
