package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tjfontaine/chat-template-codecs/internal/backend"
	"github.com/tjfontaine/chat-template-codecs/internal/codec"
	"github.com/tjfontaine/chat-template-codecs/internal/config"
	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/session"
)

type recordingCompleter struct {
	got *domain.CompletionRequest
}

func (r *recordingCompleter) Name() string { return "recording" }

func (r *recordingCompleter) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	r.got = req
	return &domain.CompletionResponse{Text: "ok", Usage: &domain.Usage{PromptTokens: 1, CompletionTokens: 1}}, nil
}

func TestRunnerOptions(t *testing.T) {
	tests := []struct {
		name     string
		backend  config.BackendConfig
		wantStop string
	}{
		{
			name:     "stop sequences",
			backend:  config.BackendConfig{Model: "k2-think", Temperature: 0.6, MaxTokens: 512, Stop: []string{"<|im_end|>", "<|endoftext|>"}},
			wantStop: "<|im_end|>,<|endoftext|>",
		},
		{
			name:    "no stop sequences",
			backend: config.BackendConfig{Model: "k2-think", Temperature: 0.6, MaxTokens: 512},
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &config.Config{Backend: tt.backend}
			completer := &recordingCompleter{}
			runner := session.NewRunner(codec.New(codec.K2()), completer, runnerOptions(c, backend.NewClient(), logger)...)

			if _, err := runner.Run(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, nil); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if completer.got == nil {
				t.Fatal("backend was not called")
			}
			if got := strings.Join(completer.got.Stop, ","); got != tt.wantStop {
				t.Errorf("Stop = %q, want %q", got, tt.wantStop)
			}
			if completer.got.Model != "k2-think" || completer.got.MaxTokens != 512 || completer.got.Temperature != 0.6 {
				t.Errorf("request = %+v", completer.got)
			}
		})
	}
}
