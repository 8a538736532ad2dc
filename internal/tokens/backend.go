package tokens

import (
	"context"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

// Tokenizer counts tokens with the model's own vocabulary, typically through
// the inference server that hosts it.
type Tokenizer interface {
	Tokenize(ctx context.Context, model, text string) (int, error)
}

// BackendCounter asks the completion backend for exact counts.
type BackendCounter struct {
	tokenizer Tokenizer
	matcher   *ModelMatcher
}

// NewBackendCounter creates a counter for models matching the given prefixes.
// No prefixes means every model.
func NewBackendCounter(t Tokenizer, prefixes ...string) *BackendCounter {
	if len(prefixes) == 0 {
		prefixes = []string{""}
	}
	return &BackendCounter{
		tokenizer: t,
		matcher:   NewModelMatcher(prefixes, nil),
	}
}

// CountTokens counts tokens using the backend's tokenizer.
func (c *BackendCounter) CountTokens(ctx context.Context, req *domain.TokenCountRequest) (*domain.TokenCountResponse, error) {
	n, err := c.tokenizer.Tokenize(ctx, req.Model, req.Text)
	if err != nil {
		return nil, err
	}

	return &domain.TokenCountResponse{
		Tokens: n,
		Model:  req.Model,
	}, nil
}

// SupportsModel returns true for models matching the configured prefixes.
func (c *BackendCounter) SupportsModel(model string) bool {
	return c.matcher.Matches(model)
}
