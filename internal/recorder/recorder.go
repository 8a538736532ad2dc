// Package recorder persists an audit record of every codec operation served
// over HTTP.
package recorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/storage"
)

const persistTimeout = 5 * time.Second

// Params describes one finished operation.
type Params struct {
	RequestID string
	Operation domain.Operation
	Family    string
	Effort    domain.Effort
	Model     string

	RawRequest json.RawMessage
	Prompt     string
	Completion string
	Parsed     *domain.ParsedCompletion

	Error    error
	Duration time.Duration
}

// Recorder writes interactions to a store. A nil Recorder records nothing.
type Recorder struct {
	store  storage.InteractionStore
	logger *slog.Logger
}

// New creates a Recorder.
func New(store storage.InteractionStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record stores the interaction and returns its ID. Persistence outlives the
// request context so a disconnected client still leaves a record. Failures
// are logged, never returned.
func (r *Recorder) Record(ctx context.Context, p Params) string {
	if r == nil || r.store == nil {
		return ""
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	interaction := &domain.Interaction{
		ID:         "int_" + uuid.New().String(),
		RequestID:  p.RequestID,
		Operation:  p.Operation,
		Family:     p.Family,
		Effort:     p.Effort,
		Model:      p.Model,
		Request:    p.RawRequest,
		Prompt:     p.Prompt,
		Completion: p.Completion,
		Parsed:     p.Parsed,
		Status:     domain.InteractionStatusCompleted,
		Duration:   p.Duration,
		CreatedAt:  time.Now(),
	}
	if p.Error != nil {
		interaction.Status = domain.InteractionStatusFailed
		interaction.Error = domain.NewInteractionError(p.Error)
	}

	if err := r.store.SaveInteraction(persistCtx, interaction); err != nil {
		r.logger.Error("failed to save interaction",
			slog.String("interaction_id", interaction.ID),
			slog.String("request_id", p.RequestID),
			slog.String("error", err.Error()),
		)
	}

	return interaction.ID
}

// Store returns the underlying store, or nil.
func (r *Recorder) Store() storage.InteractionStore {
	if r == nil {
		return nil
	}
	return r.store
}
