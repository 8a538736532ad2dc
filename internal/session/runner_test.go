package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/tjfontaine/chat-template-codecs/internal/codec"
	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/tokens"
)

type stubCompleter struct {
	resp *domain.CompletionResponse
	err  error
	got  *domain.CompletionRequest
}

func (s *stubCompleter) Name() string { return "stub" }

func (s *stubCompleter) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunner_RunToolCall(t *testing.T) {
	c := codec.New(codec.K2(), codec.WithEffort(domain.EffortMedium))
	completer := &stubCompleter{resp: &domain.CompletionResponse{
		Text:  "plan\n</think_fast>\n<tool_call>\n{\"name\": \"get_weather\", \"arguments\": {\"city\": \"Paris\"}}\n</tool_call>",
		Usage: &domain.Usage{PromptTokens: 40, CompletionTokens: 12},
	}}
	runner := NewRunner(c, completer,
		WithModel("k2-think"),
		WithSampling(0.001, 512),
		WithLogger(quietLogger()),
	)

	messages := []domain.Message{{Role: domain.RoleUser, Content: "Weather in Paris?"}}
	functions := []domain.FunctionSpec{domain.FunctionSpec(`{"name":"get_weather"}`)}

	turn, err := runner.Run(context.Background(), messages, functions)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantPrompt, err := c.FormatPrompt(context.Background(), messages, functions)
	if err != nil {
		t.Fatalf("FormatPrompt() error = %v", err)
	}
	if completer.got.Prompt != wantPrompt {
		t.Errorf("backend prompt = %q, want %q", completer.got.Prompt, wantPrompt)
	}
	if completer.got.Model != "k2-think" || completer.got.MaxTokens != 512 {
		t.Errorf("backend request = %+v", completer.got)
	}

	if turn.Parsed.ReasoningText != "plan" {
		t.Errorf("ReasoningText = %q, want %q", turn.Parsed.ReasoningText, "plan")
	}
	if len(turn.Parsed.ToolCalls) != 1 || turn.Parsed.ToolCalls[0].Name != "get_weather" {
		t.Fatalf("ToolCalls = %+v", turn.Parsed.ToolCalls)
	}
	if turn.Parsed.Usage.PromptTokens != 40 || turn.Parsed.Usage.Estimated {
		t.Errorf("Usage = %+v, want backend usage", turn.Parsed.Usage)
	}

	if len(turn.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(turn.Messages))
	}
	last := turn.Messages[1]
	if last.Role != domain.RoleAssistant || last.Content != "" || len(last.ToolCalls) != 1 || last.Reasoning != "plan" {
		t.Errorf("appended message = %+v", last)
	}
	if len(messages) != 1 {
		t.Errorf("input messages modified: %+v", messages)
	}
}

func TestRunner_RunCountsMissingUsage(t *testing.T) {
	c := codec.New(codec.QwenNoThinkFC())
	completer := &stubCompleter{resp: &domain.CompletionResponse{Text: "Hello there, how can I help?"}}

	runner := NewRunner(c, completer,
		WithTokenRegistry(tokens.NewRegistry()),
		WithLogger(quietLogger()),
	)

	turn, err := runner.Run(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	usage := turn.Parsed.Usage
	if usage.PromptTokens == 0 || usage.CompletionTokens == 0 {
		t.Errorf("Usage = %+v, want counted tokens", usage)
	}
	if !usage.Estimated {
		t.Error("Usage.Estimated = false, want true for the fallback estimator")
	}
	if got := turn.Messages[len(turn.Messages)-1].Content; got != "Hello there, how can I help?" {
		t.Errorf("appended content = %q", got)
	}
}

func TestRunner_RunWithoutCounter(t *testing.T) {
	completer := &stubCompleter{resp: &domain.CompletionResponse{Text: "ok"}}
	runner := NewRunner(codec.New(codec.Olmo3()), completer, WithLogger(quietLogger()))

	turn, err := runner.Run(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if turn.Parsed.Usage != (domain.Usage{}) {
		t.Errorf("Usage = %+v, want zero", turn.Parsed.Usage)
	}
}

func TestRunner_RunErrors(t *testing.T) {
	backendErr := domain.ErrBackend("upstream down", errors.New("connection refused"))

	tests := []struct {
		name      string
		effort    domain.Effort
		functions []domain.FunctionSpec
		err       error
		wantType  domain.ErrorType
		wantCall  bool
	}{
		{
			name:     "backend failure",
			effort:   domain.EffortHigh,
			err:      backendErr,
			wantType: domain.ErrorTypeBackend,
			wantCall: true,
		},
		{
			name:      "invalid function",
			effort:    domain.EffortHigh,
			functions: []domain.FunctionSpec{domain.FunctionSpec(`{nope`)},
			wantType:  domain.ErrorTypeConfiguration,
		},
		{
			name:     "unknown effort rejected before backend",
			effort:   domain.Effort("extreme"),
			wantType: domain.ErrorTypeConfiguration,
		},
		{
			name:     "unknown effort with backend down",
			effort:   domain.Effort("extreme"),
			err:      backendErr,
			wantType: domain.ErrorTypeConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &stubCompleter{resp: &domain.CompletionResponse{Text: "ok"}, err: tt.err}
			runner := NewRunner(codec.New(codec.K2(), codec.WithEffort(tt.effort)), completer, WithLogger(quietLogger()))

			_, err := runner.Run(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, tt.functions)
			var ce *domain.CodecError
			if !errors.As(err, &ce) || ce.Type != tt.wantType {
				t.Errorf("Run() error = %v, want %s error", err, tt.wantType)
			}
			if (completer.got != nil) != tt.wantCall {
				t.Errorf("backend called = %v, want %v", completer.got != nil, tt.wantCall)
			}
		})
	}
}

func TestAppendToolResults(t *testing.T) {
	messages := []domain.Message{{Role: domain.RoleUser, Content: "q"}}
	got := AppendToolResults(messages, "r1", "r2")

	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"r1", "r2"} {
		m := got[i+1]
		if m.Role != domain.RoleTool || m.Content != want {
			t.Errorf("got[%d] = %+v, want tool %q", i+1, m, want)
		}
	}
	if len(messages) != 1 {
		t.Error("input modified")
	}
}
