package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/tjfontaine/chat-template-codecs/internal/codec"
	"github.com/tjfontaine/chat-template-codecs/internal/config"
	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

var testDefaults = codecInput{Family: "k2", Effort: domain.EffortMedium}

func TestExecCodec_Format(t *testing.T) {
	var out strings.Builder
	in := `{"family":"qwen","messages":[{"role":"user","content":"hi"}]}`

	if err := execCodec(context.Background(), strings.NewReader(in), &out, testDefaults, formatPrompt); err != nil {
		t.Fatalf("execCodec() error = %v", err)
	}

	want, err := codec.New(codec.QwenNoThinkFC()).FormatPrompt(context.Background(),
		[]domain.Message{{Role: domain.RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("FormatPrompt() error = %v", err)
	}
	if out.String() != want {
		t.Errorf("format output = %q, want %q", out.String(), want)
	}
}

func TestExecCodec_ParseUsesDefaults(t *testing.T) {
	var out strings.Builder
	in := `{"completion":"<think>\nlook it up\n</think>\nParis."}`
	defaults := codecInput{Family: "k2", Effort: domain.EffortHigh}

	if err := execCodec(context.Background(), strings.NewReader(in), &out, defaults, parseCompletion); err != nil {
		t.Fatalf("execCodec() error = %v", err)
	}

	var got struct {
		ReasoningText  string         `json:"reasoning_text"`
		CleanedText    string         `json:"cleaned_text"`
		HistoryMessage domain.Message `json:"history_message"`
	}
	if err := json.Unmarshal([]byte(out.String()), &got); err != nil {
		t.Fatalf("decode output: %v (%s)", err, out.String())
	}
	if got.ReasoningText != "look it up" || got.CleanedText != "Paris." {
		t.Errorf("parsed = %+v", got)
	}
	if got.HistoryMessage.Role != domain.RoleAssistant {
		t.Errorf("history role = %q", got.HistoryMessage.Role)
	}
}

func TestExecCodec_Decode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{
			name: "tagged calls",
			in:   `{"family":"k2","text":"<tool_call>\n{\"name\": \"f\", \"arguments\": {\"a\": 1}}\n</tool_call>"}`,
			want: `[{"f":{"a":1}}]`,
		},
		{
			name: "no calls",
			in:   `{"family":"qwen","text":"just text"}`,
			want: `[]`,
		},
		{
			name:    "shape error",
			in:      `{"family":"olmo-3","text":"<function_calls>\"nope\"</function_calls>"}`,
			wantErr: domain.ErrShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			err := execCodec(context.Background(), strings.NewReader(tt.in), &out, testDefaults, decodeCalls)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("execCodec() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("execCodec() error = %v", err)
			}

			var got, want any
			if err := json.Unmarshal([]byte(out.String()), &got); err != nil {
				t.Fatalf("decode output: %v", err)
			}
			_ = json.Unmarshal([]byte(tt.want), &want)
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("decode output = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestExecCodec_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"malformed json", `{"family":`},
		{"unknown family", `{"family":"llama","messages":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			if err := execCodec(context.Background(), strings.NewReader(tt.in), &out, testDefaults, formatPrompt); err == nil {
				t.Errorf("execCodec() error = nil, want error")
			}
		})
	}
}

func TestListFamilies(t *testing.T) {
	var out strings.Builder
	if err := listFamilies(&out, codec.NewRegistry()); err != nil {
		t.Fatalf("listFamilies() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want header plus 4 families:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "NAME") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[4], "qwen-nothink-fc") || !strings.HasSuffix(lines[4], "-") {
		t.Errorf("qwen row = %q, want no reasoning dialects", lines[4])
	}
}

func TestCodecDefaults(t *testing.T) {
	saved := cfg
	t.Cleanup(func() { cfg = saved })

	cfg = nil
	if got := codecDefaults(); got.Family != "k2" || got.Effort != domain.EffortMedium {
		t.Errorf("codecDefaults() without config = %+v", got)
	}

	cfg = &config.Config{Codec: config.CodecConfig{Family: "olmo-3", Effort: "low"}}
	if got := codecDefaults(); got.Family != "olmo-3" || got.Effort != domain.EffortLow {
		t.Errorf("codecDefaults() = %+v", got)
	}
}

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantNil bool
		wantErr bool
	}{
		{name: "memory", cfg: config.StorageConfig{Type: "memory"}},
		{name: "none", cfg: config.StorageConfig{Type: "none"}, wantNil: true},
		{name: "sqlite", cfg: config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: "file:cmdtest?mode=memory&cache=shared"}}},
		{name: "unknown", cfg: config.StorageConfig{Type: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStore(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("openStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (store == nil) != tt.wantNil {
				t.Errorf("openStore() = %v, wantNil %v", store, tt.wantNil)
			}
			if store != nil {
				store.Close()
			}
		})
	}
}
