package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/chat-template-codecs/internal/codec"
	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/recorder"
	"github.com/tjfontaine/chat-template-codecs/internal/session"
	"github.com/tjfontaine/chat-template-codecs/internal/storage"
)

const maxBodyBytes = 16 << 20

// FamilyInfo describes a registered family.
type FamilyInfo struct {
	Name         string   `json:"name"`
	Aliases      []string `json:"aliases,omitempty"`
	Description  string   `json:"description,omitempty"`
	CatalogStyle string   `json:"catalog_style"`
	Reasoning    []string `json:"reasoning_dialects,omitempty"`
}

// FamilyList is the body of GET /v1/families.
type FamilyList struct {
	Object string       `json:"object"`
	Data   []FamilyInfo `json:"data"`
}

// codecRequest carries the codec selection shared by every operation.
type codecRequest struct {
	Family string        `json:"family,omitempty"`
	Effort domain.Effort `json:"reasoning_effort,omitempty"`
}

type FormatRequest struct {
	codecRequest
	Messages  []domain.Message      `json:"messages"`
	Functions []domain.FunctionSpec `json:"functions,omitempty"`
}

type FormatResponse struct {
	Family string        `json:"family"`
	Effort domain.Effort `json:"reasoning_effort"`
	Prompt string        `json:"prompt"`
}

type ParseRequest struct {
	codecRequest
	Completion string `json:"completion"`
}

type ParseResponse struct {
	*domain.ParsedCompletion
	HistoryMessage domain.Message `json:"history_message"`
}

type DecodeRequest struct {
	codecRequest
	Text string `json:"text"`
}

type DecodeResponse struct {
	Calls []domain.FunctionInvocation `json:"calls"`
}

type TurnRequest struct {
	FormatRequest
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error *domain.CodecError `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListFamilies(w http.ResponseWriter, r *http.Request) {
	list := FamilyList{Object: "list", Data: []FamilyInfo{}}
	for _, f := range s.families.Families() {
		info := FamilyInfo{
			Name:         f.Name,
			Aliases:      f.Aliases,
			Description:  f.Description,
			CatalogStyle: f.Catalog.Style.String(),
		}
		if f.Reasoning != nil {
			for _, d := range f.Reasoning.Dialects.Dialects {
				info.Reasoning = append(info.Reasoning, d.Name)
			}
		}
		list.Data = append(list.Data, info)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req FormatRequest
	raw, ok := s.decode(w, r, &req)
	if !ok {
		return
	}

	c, err := s.codec(r, req.codecRequest)
	if err != nil {
		s.fail(w, r, recorder.Params{Operation: domain.OperationFormat, Family: req.Family, RawRequest: raw}, err)
		return
	}

	prompt, err := c.FormatPrompt(r.Context(), req.Messages, req.Functions)
	params := recorder.Params{
		Operation:  domain.OperationFormat,
		Family:     c.Name(),
		Effort:     c.Effort(),
		RawRequest: raw,
		Prompt:     prompt,
		Duration:   time.Since(start),
	}
	if err != nil {
		s.fail(w, r, params, err)
		return
	}
	s.record(r, params)

	writeJSON(w, http.StatusOK, FormatResponse{Family: c.Name(), Effort: c.Effort(), Prompt: prompt})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req ParseRequest
	raw, ok := s.decode(w, r, &req)
	if !ok {
		return
	}

	c, err := s.codec(r, req.codecRequest)
	if err != nil {
		s.fail(w, r, recorder.Params{Operation: domain.OperationParse, Family: req.Family, RawRequest: raw}, err)
		return
	}

	parsed, err := c.ParseCompletion(r.Context(), req.Completion)
	params := recorder.Params{
		Operation:  domain.OperationParse,
		Family:     c.Name(),
		Effort:     c.Effort(),
		RawRequest: raw,
		Completion: req.Completion,
		Parsed:     parsed,
		Duration:   time.Since(start),
	}
	if err != nil {
		s.fail(w, r, params, err)
		return
	}
	s.record(r, params)

	AddLogField(r.Context(), "tool_calls", strconv.Itoa(len(parsed.ToolCalls)))
	writeJSON(w, http.StatusOK, ParseResponse{ParsedCompletion: parsed, HistoryMessage: parsed.HistoryMessage()})
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req DecodeRequest
	raw, ok := s.decode(w, r, &req)
	if !ok {
		return
	}

	c, err := s.codec(r, req.codecRequest)
	if err != nil {
		s.fail(w, r, recorder.Params{Operation: domain.OperationDecode, Family: req.Family, RawRequest: raw}, err)
		return
	}

	calls, err := c.DecodeCalls(req.Text)
	params := recorder.Params{
		Operation:  domain.OperationDecode,
		Family:     c.Name(),
		Effort:     c.Effort(),
		RawRequest: raw,
		Completion: req.Text,
		Duration:   time.Since(start),
	}
	if err != nil {
		s.fail(w, r, params, err)
		return
	}
	s.record(r, params)

	writeJSON(w, http.StatusOK, DecodeResponse{Calls: calls})
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	raw, ok := s.decode(w, r, &req)
	if !ok {
		return
	}

	params := recorder.Params{Operation: domain.OperationTurn, Family: req.Family, RawRequest: raw}
	if s.completer == nil {
		s.fail(w, r, params, domain.ErrBackend("no completion backend configured", nil))
		return
	}

	c, err := s.codec(r, req.codecRequest)
	if err != nil {
		s.fail(w, r, params, err)
		return
	}
	params.Family, params.Effort = c.Name(), c.Effort()
	AddLogField(r.Context(), "backend", s.completer.Name())

	turn, err := session.NewRunner(c, s.completer, s.runOpts...).Run(r.Context(), req.Messages, req.Functions)
	if err != nil {
		s.fail(w, r, params, err)
		return
	}

	params.Prompt = turn.Prompt
	params.Completion = turn.Completion
	params.Parsed = turn.Parsed
	params.Duration = turn.Duration
	s.record(r, params)

	writeJSON(w, http.StatusOK, turn)
}

func (s *Server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	store := s.recorder.Store()
	if store == nil {
		writeError(w, domain.NewCodecError(domain.ErrorTypeNotFound, "interaction recording is disabled", nil))
		return
	}

	q := r.URL.Query()
	opts := domain.InteractionListOptions{
		Family:    q.Get("family"),
		Operation: domain.Operation(q.Get("operation")),
	}
	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, domain.NewCodecError(domain.ErrorTypeInvalidRequest, "invalid limit", err))
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, domain.NewCodecError(domain.ErrorTypeInvalidRequest, "invalid offset", err))
		return
	}

	list, err := store.ListInteractions(r.Context(), opts)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, domain.NewCodecError(domain.ErrorTypeInternal, "failed to list interactions", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": list})
}

func (s *Server) handleGetInteraction(w http.ResponseWriter, r *http.Request) {
	store := s.recorder.Store()
	if store == nil {
		writeError(w, domain.NewCodecError(domain.ErrorTypeNotFound, "interaction recording is disabled", nil))
		return
	}

	interaction, err := store.GetInteraction(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, domain.NewCodecError(domain.ErrorTypeNotFound, "interaction not found", err))
		return
	}
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, domain.NewCodecError(domain.ErrorTypeInternal, "failed to get interaction", err))
		return
	}
	writeJSON(w, http.StatusOK, interaction)
}

// codec resolves the family and effort of req against the server defaults.
func (s *Server) codec(r *http.Request, req codecRequest) (*codec.Codec, error) {
	family := req.Family
	if family == "" {
		family = s.defaults.Family
	}
	effort := req.Effort
	if effort == "" {
		effort = s.defaults.Effort
	}

	AddLogField(r.Context(), "family", family)
	AddLogField(r.Context(), "reasoning_effort", string(effort))

	return s.families.Codec(family, codec.WithEffort(effort))
}

// decode reads the body into v and returns the raw bytes for recording. On
// failure it writes the error response itself.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) (json.RawMessage, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, v)
	}
	if err != nil {
		s.logger.Error("failed to decode request",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		AddError(r.Context(), err)
		writeError(w, domain.NewCodecError(domain.ErrorTypeInvalidRequest, "invalid request body", err))
		return nil, false
	}
	return body, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, params recorder.Params, err error) {
	AddError(r.Context(), err)
	params.Error = err
	s.record(r, params)
	writeError(w, err)
}

func (s *Server) record(r *http.Request, params recorder.Params) {
	params.RequestID = GetRequestID(r.Context())
	if id := s.recorder.Record(r.Context(), params); id != "" {
		AddLogField(r.Context(), "interaction_id", id)
	}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative: %d", n)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	ce := domain.ToCodecError(err)
	writeJSON(w, ce.HTTPStatusCode(), ErrorBody{Error: ce})
}
