// Package toolcall renders function calls into model-specific call blocks
// and recovers them from raw completions.
//
// Extraction never fails: fragments that cannot be decoded are skipped so a
// harness still receives every call that could be recovered. Scan performs
// the same work and additionally reports payloads that decoded cleanly but
// were not a list of call records.
package toolcall

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/pyjson"
)

// Grammar is one call-block dialect.
type Grammar interface {
	// Extract returns every call that could be recovered from text.
	Extract(text string) []domain.ToolCall

	// Scan is Extract plus a shape error when some payload decoded but was
	// not a list of call records. Calls recovered elsewhere are still returned.
	Scan(text string) ([]domain.ToolCall, error)

	// Render appends the call blocks for an assistant turn whose visible
	// content (already written by the caller) is content.
	Render(b *strings.Builder, content string, calls []domain.ToolCall) error
}

// ErrNotRecord marks a decoded payload that is not a call record.
var ErrNotRecord = errors.New("payload is not a function call record")

// renderArguments returns the text placed after "arguments": in a call
// block. String-encoded arguments pass through verbatim; structured ones are
// serialized like json.dumps.
func renderArguments(tc domain.ToolCall) (string, error) {
	if len(bytes.TrimSpace(tc.Arguments)) == 0 {
		return "{}", nil
	}
	if tc.ArgumentsEncoded() {
		var s string
		if err := json.Unmarshal(tc.Arguments, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return pyjson.Dumps(tc.Arguments)
}

// record normalizes one decoded call object. Entries may carry name and
// arguments directly or nested under "function".
func record(raw json.RawMessage) (domain.ToolCall, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return domain.ToolCall{}, false
	}
	if fn, ok := obj["function"]; ok {
		obj = nil
		if err := json.Unmarshal(fn, &obj); err != nil || obj == nil {
			return domain.ToolCall{}, false
		}
	}

	var name string
	if err := json.Unmarshal(obj["name"], &name); err != nil || name == "" {
		return domain.ToolCall{}, false
	}

	args := bytes.TrimSpace(obj["arguments"])
	if len(args) == 0 || bytes.Equal(args, []byte("null")) {
		args = []byte("{}")
	}
	return domain.ToolCall{Name: name, Arguments: json.RawMessage(args)}, true
}

// decodeStringArguments decodes arguments that arrived as a JSON-encoded
// string one level. On failure the raw string is kept.
func decodeStringArguments(tc domain.ToolCall) domain.ToolCall {
	if !tc.ArgumentsEncoded() {
		return tc
	}
	var s string
	if err := json.Unmarshal(tc.Arguments, &s); err != nil {
		return tc
	}
	inner := strings.TrimSpace(s)
	if json.Valid([]byte(inner)) {
		tc.Arguments = json.RawMessage(inner)
	}
	return tc
}
