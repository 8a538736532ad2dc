package domain

import (
	"encoding/json"
	"time"
)

// Interaction records one codec operation served over HTTP: what was asked,
// what was rendered or parsed, and how it ended. It is an audit trail, not
// conversation state; nothing reads it back into a conversation.
type Interaction struct {
	// ID uniquely identifies this interaction
	ID string `json:"id"`

	// RequestID correlates the record with the request log
	RequestID string `json:"request_id,omitempty"`

	// Operation is the endpoint that produced the record
	Operation Operation `json:"operation"`

	// Family is the resolved model family name
	Family string `json:"family"`

	// Effort is the reasoning effort the codec was bound to
	Effort Effort `json:"effort,omitempty"`

	// Model is the backend model name, for turns
	Model string `json:"model,omitempty"`

	// Request is the request body as received
	Request json.RawMessage `json:"request,omitempty"`

	// Prompt is the rendered prompt text
	Prompt string `json:"prompt,omitempty"`

	// Completion is the raw completion text
	Completion string `json:"completion,omitempty"`

	// Parsed is the structured completion
	Parsed *ParsedCompletion `json:"parsed,omitempty"`

	// Error contains any error that occurred during processing
	Error *InteractionError `json:"error,omitempty"`

	Status   InteractionStatus `json:"status"`
	Duration time.Duration     `json:"duration_ns"`

	CreatedAt time.Time `json:"created_at"`
}

// Operation names a codec endpoint.
type Operation string

const (
	OperationFormat Operation = "format"
	OperationParse  Operation = "parse"
	OperationDecode Operation = "decode"
	OperationTurn   Operation = "turn"
)

// InteractionStatus represents the status of an interaction
type InteractionStatus string

const (
	InteractionStatusCompleted InteractionStatus = "completed"
	InteractionStatusFailed    InteractionStatus = "failed"
)

// InteractionError contains error details for a failed interaction
type InteractionError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewInteractionError builds the recorded form of err.
func NewInteractionError(err error) *InteractionError {
	ce := ToCodecError(err)
	return &InteractionError{Type: string(ce.Type), Message: ce.Error()}
}

// InteractionSummary is the list view of an interaction.
type InteractionSummary struct {
	ID        string            `json:"id"`
	Operation Operation         `json:"operation"`
	Family    string            `json:"family"`
	Status    InteractionStatus `json:"status"`
	Duration  time.Duration     `json:"duration_ns"`
	CreatedAt time.Time         `json:"created_at"`
}

// InteractionListOptions filters and pages interaction listings.
type InteractionListOptions struct {
	Family    string
	Operation Operation
	Limit     int
	Offset    int
}
