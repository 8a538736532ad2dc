package tokens

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

// TiktokenCounter counts tokens with a BPE encoding. Counts are exact for
// OpenAI models and an approximation for the open-weight families, whose
// vocabularies differ; those counts are marked estimated.
type TiktokenCounter struct {
	matcher  *ModelMatcher
	encoding tokenizer.Encoding

	// codecCache caches tokenizer codecs by encoding name
	codecCache map[tokenizer.Encoding]tokenizer.Codec
	cacheMu    sync.RWMutex
}

// TiktokenOption configures a TiktokenCounter.
type TiktokenOption func(*TiktokenCounter)

// WithEncoding sets the encoding used for models that are not OpenAI models.
func WithEncoding(name string) TiktokenOption {
	return func(c *TiktokenCounter) {
		if name != "" {
			c.encoding = tokenizer.Encoding(name)
		}
	}
}

// WithModelPrefixes makes the counter claim additional models by prefix.
func WithModelPrefixes(prefixes ...string) TiktokenOption {
	return func(c *TiktokenCounter) {
		c.matcher.prefixes = append(c.matcher.prefixes, prefixes...)
	}
}

// NewTiktokenCounter creates a new tiktoken counter.
func NewTiktokenCounter(opts ...TiktokenOption) *TiktokenCounter {
	c := &TiktokenCounter{
		matcher: NewModelMatcher(
			[]string{"gpt-", "o1", "o3", "o4", "text-embedding", "text-davinci"},
			[]string{"davinci", "curie", "babbage", "ada"},
		),
		encoding:   tokenizer.O200kBase,
		codecCache: make(map[tokenizer.Encoding]tokenizer.Codec),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getCodec returns the tokenizer codec for a model and whether the count is
// native to it.
func (c *TiktokenCounter) getCodec(model string) (tokenizer.Codec, bool, error) {
	if isOpenAIModel(model) {
		if codec, err := tokenizer.ForModel(tokenizer.Model(strings.ToLower(model))); err == nil {
			return codec, true, nil
		}
	}

	encoding := modelToEncoding(model, c.encoding)

	c.cacheMu.RLock()
	if cached, ok := c.codecCache[encoding]; ok {
		c.cacheMu.RUnlock()
		return cached, isOpenAIModel(model), nil
	}
	c.cacheMu.RUnlock()

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}

	c.cacheMu.Lock()
	c.codecCache[encoding] = codec
	c.cacheMu.Unlock()

	return codec, isOpenAIModel(model), nil
}

func isOpenAIModel(model string) bool {
	model = strings.ToLower(model)
	for _, p := range []string{"gpt-", "o1", "o3", "o4", "text-"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	switch model {
	case "davinci", "curie", "babbage", "ada":
		return true
	}
	return false
}

// modelToEncoding maps model names to encoding names.
//
// Encoding reference:
// - O200kBase: GPT-4o, GPT-4.1, GPT-5, O-series
// - Cl100kBase: GPT-4, GPT-3.5-turbo, text-embedding-ada-002
// - P50kBase: text-davinci-003, text-davinci-002
// - R50kBase: davinci, curie, babbage, ada (legacy)
func modelToEncoding(model string, fallback tokenizer.Encoding) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-5"),
		strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"), strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	case strings.HasPrefix(model, "text-davinci"):
		return tokenizer.P50kBase
	case model == "davinci" || model == "curie" || model == "babbage" || model == "ada":
		return tokenizer.R50kBase
	default:
		return fallback
	}
}

// CountTokens counts the tokens of the request text.
func (c *TiktokenCounter) CountTokens(ctx context.Context, req *domain.TokenCountRequest) (*domain.TokenCountResponse, error) {
	codec, native, err := c.getCodec(req.Model)
	if err != nil {
		return nil, err
	}

	ids, _, err := codec.Encode(req.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to encode text: %w", err)
	}

	return &domain.TokenCountResponse{
		Tokens:    len(ids),
		Model:     req.Model,
		Estimated: !native,
	}, nil
}

// SupportsModel returns true for OpenAI models and configured prefixes.
func (c *TiktokenCounter) SupportsModel(model string) bool {
	return c.matcher.Matches(model)
}
