package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Role identifies the speaker of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Effort selects the reasoning tier a codec primes the model with.
type Effort string

const (
	EffortHigh   Effort = "high"
	EffortMedium Effort = "medium"
	EffortLow    Effort = "low"
)

// Valid reports whether e names one of the known tiers.
func (e Effort) Valid() bool {
	switch e {
	case EffortHigh, EffortMedium, EffortLow:
		return true
	}
	return false
}

// Message is one turn of a conversation in canonical form.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Reasoning is the scratchpad text of an assistant turn, when known
	// separately from Content.
	Reasoning string `json:"reasoning_content,omitempty"`

	// ReasoningTag names the dialect Reasoning was produced under
	// (e.g. "think_fast"). Empty means the family default.
	ReasoningTag string `json:"reasoning_tag,omitempty"`

	// ToolCalls for assistant messages that invoke functions.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a single function invocation requested by the model.
//
// Arguments always holds one JSON value. A JSON string means the arguments
// were already string-encoded and are rendered verbatim; anything else is
// structured and serialized when rendered.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// NewToolCall builds a ToolCall from structured arguments.
func NewToolCall(name string, args any) (ToolCall, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return ToolCall{}, fmt.Errorf("failed to marshal arguments for %s: %w", name, err)
	}
	return ToolCall{Name: name, Arguments: raw}, nil
}

// ArgumentsEncoded reports whether Arguments is a JSON string, i.e. the
// arguments object was handed over already serialized.
func (tc ToolCall) ArgumentsEncoded() bool {
	trimmed := bytes.TrimSpace(tc.Arguments)
	return len(trimmed) > 0 && trimmed[0] == '"'
}

// UnmarshalJSON accepts both the flat {"name", "arguments"} shape and the
// OpenAI style {"function": {"name", "arguments"}} shape.
func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var wire struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
		Function  *struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	tc.Name, tc.Arguments = wire.Name, wire.Arguments
	if wire.Function != nil {
		tc.Name, tc.Arguments = wire.Function.Name, wire.Function.Arguments
	}
	if len(bytes.TrimSpace(tc.Arguments)) == 0 || bytes.Equal(bytes.TrimSpace(tc.Arguments), []byte("null")) {
		tc.Arguments = json.RawMessage("{}")
	}
	return nil
}

// FunctionSpec is an opaque function declaration. It is rendered into the
// tool catalog with its key order intact and never inspected otherwise.
type FunctionSpec = json.RawMessage

// Usage carries token counters from the model backend's response envelope.
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// ParsedCompletion is a model completion split into its parts.
//
// When ToolCalls is non-empty CleanedText is empty: the calls consume the turn.
type ParsedCompletion struct {
	CleanedText   string     `json:"cleaned_text"`
	ReasoningText string     `json:"reasoning_text"`
	ToolCalls     []ToolCall `json:"tool_calls"`

	// ReasoningTag names the dialect whose close tag split the completion.
	// Empty when no reasoning block was found.
	ReasoningTag string `json:"reasoning_tag,omitempty"`

	// Raw is the completion text as returned by the backend.
	Raw   string `json:"raw"`
	Usage Usage  `json:"usage"`
}

// HistoryMessage returns the assistant message a harness appends to the
// conversation for the next turn.
func (p *ParsedCompletion) HistoryMessage() Message {
	msg := Message{
		Role:         RoleAssistant,
		Content:      p.CleanedText,
		Reasoning:    p.ReasoningText,
		ReasoningTag: p.ReasoningTag,
	}
	if len(p.ToolCalls) > 0 {
		msg.Content = ""
		msg.ToolCalls = p.ToolCalls
	}
	return msg
}

// FunctionInvocation maps a function name to its decoded argument object,
// the shape evaluation harnesses compare against ground truth.
type FunctionInvocation map[string]map[string]any
