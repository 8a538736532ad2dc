package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/chat-template-codecs/internal/auth"
	"github.com/tjfontaine/chat-template-codecs/internal/codec"
	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/recorder"
	"github.com/tjfontaine/chat-template-codecs/internal/session"
	"github.com/tjfontaine/chat-template-codecs/internal/storage/memory"
	"github.com/tjfontaine/chat-template-codecs/internal/tokens"
)

type stubCompleter struct {
	text string
}

func (s *stubCompleter) Name() string { return "stub" }

func (s *stubCompleter) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	return &domain.CompletionResponse{ID: "cmpl-1", Text: s.text}, nil
}

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *memory.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	opts = append([]Option{WithRecorder(recorder.New(store, logger))}, opts...)

	srv := httptest.NewServer(New(0, logger, opts...).Router)
	t.Cleanup(srv.Close)
	return srv, store
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestServer_ListFamilies(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/families")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	var list FamilyList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}

	var names []string
	for _, f := range list.Data {
		names = append(names, f.Name)
	}
	want := "k2,k2-oss,olmo-3,qwen-nothink-fc"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("families = %s, want %s", got, want)
	}
	if list.Data[0].CatalogStyle != "embedded-in-system-header" {
		t.Errorf("k2 catalog style = %q", list.Data[0].CatalogStyle)
	}
	if len(list.Data[3].Reasoning) != 0 {
		t.Errorf("qwen reasoning dialects = %v, want none", list.Data[3].Reasoning)
	}
}

func TestServer_Format(t *testing.T) {
	srv, store := newTestServer(t)

	resp, data := post(t, srv.URL+"/v1/format",
		`{"family":"qwen","messages":[{"role":"user","content":"hi"}],"functions":[{"name":"f","parameters":{"type":"object"}}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, data)
	}

	var got FormatResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	want, err := codec.New(codec.QwenNoThinkFC()).FormatPrompt(context.Background(),
		[]domain.Message{{Role: domain.RoleUser, Content: "hi"}},
		[]domain.FunctionSpec{domain.FunctionSpec(`{"name":"f","parameters":{"type":"object"}}`)})
	if err != nil {
		t.Fatalf("FormatPrompt() error = %v", err)
	}
	if got.Prompt != want {
		t.Errorf("prompt = %q, want %q", got.Prompt, want)
	}
	if got.Family != "qwen-nothink-fc" || got.Effort != domain.EffortMedium {
		t.Errorf("family/effort = %s/%s", got.Family, got.Effort)
	}

	list, _ := store.ListInteractions(context.Background(), domain.InteractionListOptions{})
	if len(list) != 1 || list[0].Operation != domain.OperationFormat {
		t.Errorf("recorded = %+v, want one format interaction", list)
	}
}

func TestServer_Errors(t *testing.T) {
	srv, store := newTestServer(t)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantType   domain.ErrorType
	}{
		{
			name:       "malformed body",
			path:       "/v1/format",
			body:       `{"messages":`,
			wantStatus: http.StatusBadRequest,
			wantType:   domain.ErrorTypeInvalidRequest,
		},
		{
			name:       "unknown family",
			path:       "/v1/format",
			body:       `{"family":"llama","messages":[]}`,
			wantStatus: http.StatusNotFound,
			wantType:   domain.ErrorTypeNotFound,
		},
		{
			name:       "empty body",
			path:       "/v1/parse",
			body:       ``,
			wantStatus: http.StatusBadRequest,
			wantType:   domain.ErrorTypeInvalidRequest,
		},
		{
			name:       "unknown effort on parse",
			path:       "/v1/parse",
			body:       `{"family":"k2","reasoning_effort":"max","completion":"x"}`,
			wantStatus: http.StatusBadRequest,
			wantType:   domain.ErrorTypeConfiguration,
		},
		{
			name:       "shape error on decode",
			path:       "/v1/decode",
			body:       `{"family":"olmo-3","text":"<function_calls>\"just a string\"</function_calls>"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   domain.ErrorTypeShape,
		},
		{
			name:       "turn without backend",
			path:       "/v1/turn",
			body:       `{"messages":[{"role":"user","content":"hi"}]}`,
			wantStatus: http.StatusBadGateway,
			wantType:   domain.ErrorTypeBackend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := post(t, srv.URL+tt.path, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, data)
			}

			var body struct {
				Error struct {
					Type    domain.ErrorType `json:"type"`
					Message string           `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal(data, &body); err != nil {
				t.Fatalf("decode error body: %v (%s)", err, data)
			}
			if body.Error.Type != tt.wantType {
				t.Errorf("error type = %q, want %q", body.Error.Type, tt.wantType)
			}
		})
	}

	// Every request that got past body decoding leaves a failed record.
	list, _ := store.ListInteractions(context.Background(), domain.InteractionListOptions{})
	if want := len(tests) - 2; len(list) != want {
		t.Errorf("recorded %d interactions, want %d", len(list), want)
	}
	for _, s := range list {
		if s.Status != domain.InteractionStatusFailed {
			t.Errorf("interaction %s status = %s, want failed", s.ID, s.Status)
		}
	}
}

func TestServer_Parse(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, data := post(t, srv.URL+"/v1/parse",
		`{"family":"k2","reasoning_effort":"high","completion":"<think>\nweigh options\n</think>\nParis."}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, data)
	}

	var got ParseResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ReasoningText != "weigh options" {
		t.Errorf("reasoning_text = %q", got.ReasoningText)
	}
	if got.CleanedText != "Paris." {
		t.Errorf("cleaned_text = %q", got.CleanedText)
	}
	if got.HistoryMessage.Role != domain.RoleAssistant || got.HistoryMessage.Content != "Paris." {
		t.Errorf("history_message = %+v", got.HistoryMessage)
	}
}

func TestServer_Decode(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, data := post(t, srv.URL+"/v1/decode",
		`{"family":"olmo-3","text":"<function_calls>[{\"name\": \"g\", \"arguments\": \"{\\\"q\\\": \\\"v\\\"}\"}]</function_calls>"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, data)
	}

	var got DecodeResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Calls) != 1 || got.Calls[0]["g"]["q"] != "v" {
		t.Errorf("calls = %+v", got.Calls)
	}
}

func TestServer_TurnAndInteractions(t *testing.T) {
	completer := &stubCompleter{text: "<tool_call>\n{\"name\": \"lookup\", \"arguments\": {\"id\": 7}}\n</tool_call>"}
	srv, _ := newTestServer(t,
		WithDefaults(Defaults{Family: "qwen-nothink-fc", Effort: domain.EffortMedium}),
		WithCompleter(completer, session.WithTokenRegistry(tokens.NewRegistry())),
	)

	resp, data := post(t, srv.URL+"/v1/turn",
		`{"messages":[{"role":"user","content":"find 7"}],"functions":[{"name":"lookup"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, data)
	}

	var turn session.Turn
	if err := json.Unmarshal(data, &turn); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(turn.Parsed.ToolCalls) != 1 || turn.Parsed.ToolCalls[0].Name != "lookup" {
		t.Errorf("tool calls = %+v", turn.Parsed.ToolCalls)
	}
	if turn.Parsed.Usage.PromptTokens == 0 || !turn.Parsed.Usage.Estimated {
		t.Errorf("usage = %+v, want estimated counts", turn.Parsed.Usage)
	}
	if len(turn.Messages) != 2 || len(turn.Messages[1].ToolCalls) != 1 {
		t.Errorf("messages = %+v", turn.Messages)
	}

	listResp, err := http.Get(srv.URL + "/v1/interactions?operation=turn")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer listResp.Body.Close()

	var list struct {
		Data []domain.InteractionSummary `json:"data"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Data) != 1 {
		t.Fatalf("interactions = %+v, want 1", list.Data)
	}

	getResp, err := http.Get(srv.URL + "/v1/interactions/" + list.Data[0].ID)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer getResp.Body.Close()

	var interaction domain.Interaction
	if err := json.NewDecoder(getResp.Body).Decode(&interaction); err != nil {
		t.Fatalf("decode interaction: %v", err)
	}
	if interaction.Family != "qwen-nothink-fc" || interaction.Completion != completer.text {
		t.Errorf("interaction = %+v", interaction)
	}
	if interaction.RequestID == "" || interaction.RequestID != resp.Header.Get(RequestIDHeader) {
		t.Errorf("request id = %q, want the turn's request id %q", interaction.RequestID, resp.Header.Get(RequestIDHeader))
	}

	missing, err := http.Get(srv.URL + "/v1/interactions/int_missing")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing interaction status = %d, want 404", missing.StatusCode)
	}
}

func TestServer_Auth(t *testing.T) {
	srv, _ := newTestServer(t, WithAuthenticator(auth.NewAuthenticator([]auth.Key{
		{KeyHash: auth.HashAPIKey("sk-eval"), Description: "eval"},
	})))

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
	}{
		{"health is open", "/healthz", "", http.StatusOK},
		{"missing key", "/v1/families", "", http.StatusUnauthorized},
		{"wrong key", "/v1/families", "Bearer sk-nope", http.StatusUnauthorized},
		{"valid key", "/v1/families", "Bearer sk-eval", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", srv.URL+tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				var body struct {
					Error struct {
						Type domain.ErrorType `json:"type"`
					} `json:"error"`
				}
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body.Error.Type != domain.ErrorTypeAuthentication {
					t.Errorf("error type = %q, want authentication", body.Error.Type)
				}
			}
		})
	}
}
