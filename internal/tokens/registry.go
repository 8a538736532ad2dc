// Package tokens counts prompt and completion tokens when the completion
// backend does not report usage.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

// Registry manages token counters for different models.
// It supports:
// 1. Registered domain.TokenCounter implementations, tried in order
// 2. A fallback estimator for models no counter claims
type Registry struct {
	counters []domain.TokenCounter
	fallback domain.TokenCounter
}

// NewRegistry creates a new token counter registry.
func NewRegistry() *Registry {
	return &Registry{
		fallback: NewEstimator(),
	}
}

// Register adds a token counter to the registry.
func (r *Registry) Register(counter domain.TokenCounter) {
	r.counters = append(r.counters, counter)
}

// SetFallback sets the fallback counter for unsupported models.
func (r *Registry) SetFallback(counter domain.TokenCounter) {
	r.fallback = counter
}

// CountTokens counts tokens with the registered counters that support the
// model, in order, then the fallback. A counter that fails (a backend
// tokenizer that is down, say) hands over to the next one; the fallback's
// result is then marked estimated.
func (r *Registry) CountTokens(ctx context.Context, req *domain.TokenCountRequest) (*domain.TokenCountResponse, error) {
	var errs []error
	for _, counter := range r.counters {
		if !counter.SupportsModel(req.Model) {
			continue
		}
		resp, err := counter.CountTokens(ctx, req)
		if err == nil {
			return resp, nil
		}
		errs = append(errs, err)
	}

	if r.fallback != nil {
		resp, err := r.fallback.CountTokens(ctx, req)
		if err != nil {
			return nil, errors.Join(append(errs, err)...)
		}
		if len(errs) > 0 {
			resp.Estimated = true
		}
		return resp, nil
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, fmt.Errorf("no token counter available for model: %s", req.Model)
}

// GetCounter returns the appropriate counter for a model.
func (r *Registry) GetCounter(model string) domain.TokenCounter {
	for _, counter := range r.counters {
		if counter.SupportsModel(model) {
			return counter
		}
	}
	return r.fallback
}

// Usage counts a prompt and its completion. The result is marked estimated
// when either count is.
func (r *Registry) Usage(ctx context.Context, model, prompt, completion string) (domain.Usage, error) {
	in, err := r.CountTokens(ctx, &domain.TokenCountRequest{Model: model, Text: prompt})
	if err != nil {
		return domain.Usage{}, fmt.Errorf("failed to count prompt tokens: %w", err)
	}
	out, err := r.CountTokens(ctx, &domain.TokenCountRequest{Model: model, Text: completion})
	if err != nil {
		return domain.Usage{}, fmt.Errorf("failed to count completion tokens: %w", err)
	}
	return domain.Usage{
		PromptTokens:     in.Tokens,
		CompletionTokens: out.Tokens,
		Estimated:        in.Estimated || out.Estimated,
	}, nil
}

// Estimator provides token count estimation based on character length.
// This is a fallback for models without a tokenizer.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0,
	}
}

// CountTokens estimates the token count.
func (e *Estimator) CountTokens(ctx context.Context, req *domain.TokenCountRequest) (*domain.TokenCountResponse, error) {
	tokens := int(float64(len(req.Text)) / e.CharsPerToken)
	if tokens == 0 && req.Text != "" {
		tokens = 1
	}

	return &domain.TokenCountResponse{
		Tokens:    tokens,
		Model:     req.Model,
		Estimated: true,
	}, nil
}

// SupportsModel returns true - estimator supports all models as a fallback.
func (e *Estimator) SupportsModel(model string) bool {
	return true
}

// ModelMatcher helps match model names to counter patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher. Matching is case insensitive.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{
		prefixes: prefixes,
		exact:    exact,
	}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	model = strings.ToLower(model)

	for _, e := range m.exact {
		if model == strings.ToLower(e) {
			return true
		}
	}

	for _, p := range m.prefixes {
		if strings.HasPrefix(model, strings.ToLower(p)) {
			return true
		}
	}

	return false
}
