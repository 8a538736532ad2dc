// Package session drives one inference turn: render the conversation with a
// codec, run it through a completion backend, and parse the result back into
// a message the conversation can carry forward.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/chat-template-codecs/internal/codec"
	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/tokens"
)

// Runner executes turns for a single codec and backend.
type Runner struct {
	codec     *codec.Codec
	completer domain.Completer
	counter   *tokens.Registry
	logger    *slog.Logger

	model       string
	temperature float32
	maxTokens   int
	stop        []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithTokenRegistry counts usage locally when the backend omits it.
func WithTokenRegistry(registry *tokens.Registry) Option {
	return func(r *Runner) {
		r.counter = registry
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithModel sets the backend model name.
func WithModel(model string) Option {
	return func(r *Runner) {
		r.model = model
	}
}

// WithSampling sets temperature and the completion token limit.
func WithSampling(temperature float32, maxTokens int) Option {
	return func(r *Runner) {
		r.temperature = temperature
		r.maxTokens = maxTokens
	}
}

// WithStop sets stop sequences passed to the backend.
func WithStop(stop ...string) Option {
	return func(r *Runner) {
		r.stop = stop
	}
}

// NewRunner creates a Runner.
func NewRunner(c *codec.Codec, completer domain.Completer, opts ...Option) *Runner {
	r := &Runner{
		codec:     c,
		completer: completer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Turn is the outcome of one Run.
type Turn struct {
	Prompt     string                   `json:"prompt"`
	Completion string                   `json:"completion"`
	Parsed     *domain.ParsedCompletion `json:"parsed"`

	// Messages is the input conversation with the assistant reply appended.
	Messages []domain.Message `json:"messages"`
	Duration time.Duration    `json:"duration_ns"`
}

// Run formats messages, completes the prompt and parses the completion.
// The input slice is not modified. An unknown effort is rejected before the
// backend is called.
func (r *Runner) Run(ctx context.Context, messages []domain.Message, functions []domain.FunctionSpec) (*Turn, error) {
	start := time.Now()

	if effort := r.codec.Effort(); !effort.Valid() {
		return nil, domain.ErrConfiguration(
			fmt.Sprintf("unknown reasoning effort %q", effort), domain.ErrUnknownEffort)
	}

	prompt, err := r.codec.FormatPrompt(ctx, messages, functions)
	if err != nil {
		return nil, err
	}

	resp, err := r.completer.Complete(ctx, &domain.CompletionRequest{
		Model:       r.model,
		Prompt:      prompt,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
		Stop:        r.stop,
	})
	if err != nil {
		r.logger.Error("completion failed",
			slog.String("family", r.codec.Name()),
			slog.String("backend", r.completer.Name()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	parsed, err := r.codec.ParseCompletion(ctx, resp.Text)
	if err != nil {
		return nil, err
	}
	parsed.Usage = r.usage(ctx, prompt, resp)

	history := make([]domain.Message, 0, len(messages)+1)
	history = append(history, messages...)
	history = append(history, parsed.HistoryMessage())

	turn := &Turn{
		Prompt:     prompt,
		Completion: resp.Text,
		Parsed:     parsed,
		Messages:   history,
		Duration:   time.Since(start),
	}

	r.logger.Debug("turn completed",
		slog.String("family", r.codec.Name()),
		slog.Int("tool_calls", len(parsed.ToolCalls)),
		slog.Int("prompt_tokens", parsed.Usage.PromptTokens),
		slog.Int("completion_tokens", parsed.Usage.CompletionTokens),
		slog.Duration("duration", turn.Duration),
	)

	return turn, nil
}

func (r *Runner) usage(ctx context.Context, prompt string, resp *domain.CompletionResponse) domain.Usage {
	if resp.Usage != nil {
		return *resp.Usage
	}
	if r.counter == nil {
		return domain.Usage{}
	}

	model := resp.Model
	if model == "" {
		model = r.model
	}
	usage, err := r.counter.Usage(ctx, model, prompt, resp.Text)
	if err != nil {
		r.logger.Warn("token counting failed",
			slog.String("model", model),
			slog.String("error", err.Error()),
		)
		return domain.Usage{}
	}
	return usage
}

// AppendToolResults returns messages followed by one tool message per result,
// in order. Consecutive tool messages render as a single block.
func AppendToolResults(messages []domain.Message, results ...string) []domain.Message {
	out := make([]domain.Message, 0, len(messages)+len(results))
	out = append(out, messages...)
	for _, result := range results {
		out = append(out, domain.Message{Role: domain.RoleTool, Content: result})
	}
	return out
}
