package tokens

import (
	"context"
	"errors"
	"testing"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimator()

	tests := []struct {
		name      string
		text      string
		minTokens int
		maxTokens int
	}{
		{"empty", "", 0, 0},
		{"short", "hi", 1, 1},
		{"sentence", "Hello, how are you?", 4, 5},
		{"prompt", "<|im_start|>user\nWhat is 2+2?<|im_end|>\n<|im_start|>assistant\n<think_fast>\n", 15, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := e.CountTokens(context.Background(), &domain.TokenCountRequest{Model: "k2", Text: tt.text})
			if err != nil {
				t.Fatalf("CountTokens() error = %v", err)
			}

			if !resp.Estimated {
				t.Error("expected Estimated to be true for estimator")
			}

			if resp.Tokens < tt.minTokens || resp.Tokens > tt.maxTokens {
				t.Errorf("CountTokens() = %d, want between %d and %d",
					resp.Tokens, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestEstimator_SupportsModel(t *testing.T) {
	e := NewEstimator()

	models := []string{"gpt-4", "LLM360/K2-Think", "unknown-model", ""}
	for _, model := range models {
		if !e.SupportsModel(model) {
			t.Errorf("SupportsModel(%q) = false, want true", model)
		}
	}
}

func TestTiktokenCounter_CountTokens(t *testing.T) {
	c := NewTiktokenCounter(WithModelPrefixes("qwen/"))

	tests := []struct {
		name          string
		model         string
		text          string
		minTokens     int
		maxTokens     int
		wantEstimated bool
	}{
		{
			name:      "common words",
			model:     "gpt-4o",
			text:      "The quick brown fox jumps over the lazy dog.",
			minTokens: 9,
			maxTokens: 12,
		},
		{
			name:      "numbers",
			model:     "gpt-4",
			text:      "123456789 and 987654321",
			minTokens: 5,
			maxTokens: 12,
		},
		{
			name:          "open weight model is estimated",
			model:         "Qwen/Qwen3-8B",
			text:          "getCustomerById calculateTotalPrice",
			minTokens:     4,
			maxTokens:     12,
			wantEstimated: true,
		},
		{
			name:  "empty text",
			model: "gpt-4o",
			text:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.CountTokens(context.Background(), &domain.TokenCountRequest{Model: tt.model, Text: tt.text})
			if err != nil {
				t.Fatalf("CountTokens() error = %v", err)
			}

			if resp.Estimated != tt.wantEstimated {
				t.Errorf("Estimated = %v, want %v", resp.Estimated, tt.wantEstimated)
			}

			if resp.Tokens < tt.minTokens || resp.Tokens > tt.maxTokens {
				t.Errorf("CountTokens() = %d, want between %d and %d",
					resp.Tokens, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestTiktokenCounter_SupportsModel(t *testing.T) {
	c := NewTiktokenCounter(WithModelPrefixes("allenai/"))

	tests := []struct {
		model    string
		expected bool
	}{
		{"gpt-4o", true},
		{"gpt-3.5-turbo", true},
		{"o3-mini", true},
		{"allenai/Olmo-3-7B-Think", true},
		{"LLM360/K2-Think", false},
		{"unknown-model", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := c.SupportsModel(tt.model); got != tt.expected {
				t.Errorf("SupportsModel(%q) = %v, want %v", tt.model, got, tt.expected)
			}
		})
	}
}

type stubTokenizer struct {
	n   int
	err error
}

func (s stubTokenizer) Tokenize(ctx context.Context, model, text string) (int, error) {
	return s.n, s.err
}

func TestBackendCounter(t *testing.T) {
	c := NewBackendCounter(stubTokenizer{n: 42}, "LLM360/")

	if !c.SupportsModel("llm360/K2-Think") {
		t.Error("SupportsModel() = false for a configured prefix")
	}
	if c.SupportsModel("gpt-4o") {
		t.Error("SupportsModel() = true for another model")
	}

	resp, err := c.CountTokens(context.Background(), &domain.TokenCountRequest{Model: "LLM360/K2-Think", Text: "x"})
	if err != nil {
		t.Fatalf("CountTokens() error = %v", err)
	}
	if resp.Tokens != 42 || resp.Estimated {
		t.Errorf("CountTokens() = %+v, want 42 exact", resp)
	}

	if !NewBackendCounter(stubTokenizer{}).SupportsModel("anything") {
		t.Error("counter without prefixes should support every model")
	}
}

func TestRegistry_GetCounter(t *testing.T) {
	registry := NewRegistry()
	tiktoken := NewTiktokenCounter()
	registry.Register(tiktoken)

	if _, ok := registry.GetCounter("gpt-4o").(*TiktokenCounter); !ok {
		t.Error("expected tiktoken counter for gpt-4o")
	}

	if _, ok := registry.GetCounter("unknown-model").(*Estimator); !ok {
		t.Error("expected Estimator fallback for unknown model")
	}
}

func TestRegistry_Usage(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewBackendCounter(stubTokenizer{n: 7}, "k2"))

	usage, err := registry.Usage(context.Background(), "k2-think", "prompt", "completion")
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if usage.PromptTokens != 7 || usage.CompletionTokens != 7 || usage.Estimated {
		t.Errorf("Usage() = %+v", usage)
	}

	usage, err = registry.Usage(context.Background(), "other", "abcdefgh", "abcd")
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if usage.PromptTokens != 2 || usage.CompletionTokens != 1 || !usage.Estimated {
		t.Errorf("Usage() fallback = %+v", usage)
	}

	// A failing backend tokenizer hands over to the fallback.
	failing := NewRegistry()
	failing.Register(NewBackendCounter(stubTokenizer{err: errors.New("down")}))
	usage, err = failing.Usage(context.Background(), "k2", "abcdefgh", "abcd")
	if err != nil {
		t.Fatalf("Usage() error = %v, want fallback", err)
	}
	if usage.PromptTokens != 2 || !usage.Estimated {
		t.Errorf("Usage() after backend failure = %+v", usage)
	}

	failing.SetFallback(nil)
	if _, err := failing.Usage(context.Background(), "k2", "p", "c"); err == nil {
		t.Error("Usage() error = nil, want backend failure without fallback")
	}
}

func TestModelMatcher(t *testing.T) {
	matcher := NewModelMatcher(
		[]string{"gpt-", "LLM360/"},
		[]string{"davinci", "curie"},
	)

	tests := []struct {
		model    string
		expected bool
	}{
		{"gpt-4", true},
		{"llm360/K2-Think", true},
		{"davinci", true},
		{"curie", true},
		{"text-davinci-003", false},
		{"allenai/Olmo-3", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := matcher.Matches(tt.model); got != tt.expected {
				t.Errorf("Matches(%q) = %v, want %v", tt.model, got, tt.expected)
			}
		})
	}
}

func BenchmarkTiktokenCounter_CountTokens(b *testing.B) {
	c := NewTiktokenCounter()
	req := &domain.TokenCountRequest{
		Model: "gpt-4o",
		Text:  "<|im_start|>system\nYou are a helpful assistant.<|im_end|>\n<|im_start|>user\nCan you explain quantum computing in simple terms?<|im_end|>\n",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.CountTokens(context.Background(), req)
	}
}
