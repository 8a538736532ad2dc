package toolcall

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/pyjson"
)

// Strategy decodes one candidate payload into JSON text.
type Strategy struct {
	Name   string
	Decode func(candidate string) (json.RawMessage, error)
}

// Strategies is the fallback chain for loosely formatted payloads, tried in
// order until one succeeds.
var Strategies = []Strategy{
	{Name: "json", Decode: decodeJSON},
	{Name: "json-wrapped", Decode: wrapped(decodeJSON)},
	{Name: "literal", Decode: pyjson.Literal},
	{Name: "literal-wrapped", Decode: wrapped(pyjson.Literal)},
}

// valueStrategies decode a string value that may itself hold a payload.
var valueStrategies = []Strategy{
	{Name: "json", Decode: decodeJSON},
	{Name: "literal", Decode: pyjson.Literal},
}

var errInvalidJSON = errors.New("invalid JSON")

func decodeJSON(candidate string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(candidate)
	if !json.Valid([]byte(trimmed)) {
		return nil, errInvalidJSON
	}
	return json.RawMessage(trimmed), nil
}

func wrapped(decode func(string) (json.RawMessage, error)) func(string) (json.RawMessage, error) {
	return func(candidate string) (json.RawMessage, error) {
		return decode("[" + candidate + "]")
	}
}

// decode runs the strategies in order and returns the first success.
func decode(strategies []Strategy, candidate string) (json.RawMessage, bool) {
	for _, s := range strategies {
		if raw, err := s.Decode(candidate); err == nil {
			return raw, true
		}
	}
	return nil, false
}

// Listed is the list-or-loose dialect:
//
//	<function_calls>[{"name": "f", "arguments": {"x": 1}}]</function_calls>
//
// The close marker may be missing, in which case the payload runs to the end
// of the text. The payload may be an object, an array, comma separated
// objects without brackets, or a Python literal.
type Listed struct {
	Open  string
	Close string

	// Strategies overrides the package default decode chain.
	Strategies []Strategy

	closed   *regexp.Regexp
	unclosed *regexp.Regexp
}

// NewListed creates a listed grammar for the given markers.
func NewListed(open, close string) *Listed {
	g := &Listed{
		Open:       open,
		Close:      close,
		Strategies: Strategies,
		unclosed:   regexp.MustCompile(`(?s)` + regexp.QuoteMeta(open) + `(.*)`),
	}
	if close != "" {
		g.closed = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(open) + `(.*?)` + regexp.QuoteMeta(close))
	}
	return g
}

func (g *Listed) candidates(text string) []string {
	var matches [][]string
	if g.closed != nil {
		matches = g.closed.FindAllStringSubmatch(text, -1)
	}
	if len(matches) == 0 && strings.Contains(text, g.Open) {
		matches = g.unclosed.FindAllStringSubmatch(text, -1)
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if c := strings.TrimSpace(m[1]); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Extract implements Grammar.
func (g *Listed) Extract(text string) []domain.ToolCall {
	calls, _ := g.Scan(text)
	return calls
}

// Scan implements Grammar.
func (g *Listed) Scan(text string) ([]domain.ToolCall, error) {
	var calls []domain.ToolCall
	var shapeErr error

	for _, candidate := range g.candidates(text) {
		raw, ok := decode(g.Strategies, candidate)
		if !ok {
			continue
		}
		items, ok := asList(raw)
		if !ok {
			shapeErr = fmt.Errorf("%w: %s", ErrNotRecord, candidate)
			continue
		}
		// Entries that are not records or lack a name are dropped silently.
		for _, item := range items {
			if call, ok := listItem(item); ok {
				calls = append(calls, decodeStringArguments(call))
			}
		}
	}
	return calls, shapeErr
}

// asList coerces a decoded payload into a list of items: an object becomes a
// singleton and a string is decoded once more.
func asList(raw json.RawMessage) ([]json.RawMessage, bool) {
	for round := 0; round < 2; round++ {
		switch leading(raw) {
		case '{':
			return []json.RawMessage{raw}, true
		case '[':
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, false
			}
			return items, true
		case '"':
			if round > 0 {
				return nil, false
			}
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, false
			}
			next, ok := decode(valueStrategies, s)
			if !ok {
				return nil, false
			}
			raw = next
		default:
			return nil, false
		}
	}
	return nil, false
}

func listItem(item json.RawMessage) (domain.ToolCall, bool) {
	if leading(item) == '"' {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return domain.ToolCall{}, false
		}
		next, ok := decode(valueStrategies, s)
		if !ok {
			return domain.ToolCall{}, false
		}
		item = next
	}
	if leading(item) != '{' {
		return domain.ToolCall{}, false
	}
	return record(item)
}

func leading(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// Render implements Grammar. All calls of a turn share one block holding a
// JSON array, placed directly after the content.
func (g *Listed) Render(b *strings.Builder, content string, calls []domain.ToolCall) error {
	if len(calls) == 0 {
		return nil
	}

	var list strings.Builder
	list.WriteByte('[')
	for i, call := range calls {
		if i > 0 {
			list.WriteString(", ")
		}
		name, err := pyjson.Marshal(call.Name)
		if err != nil {
			return err
		}
		args, err := listArguments(call)
		if err != nil {
			return fmt.Errorf("failed to render arguments for %s: %w", call.Name, err)
		}
		list.WriteString(`{"name": `)
		list.WriteString(name)
		list.WriteString(`, "arguments": `)
		list.WriteString(args)
		list.WriteByte('}')
	}
	list.WriteByte(']')

	b.WriteString(g.Open)
	b.WriteString(list.String())
	b.WriteString(g.Close)
	return nil
}

// listArguments embeds arguments inside the JSON array. String-encoded
// arguments are inlined when they hold JSON and quoted otherwise.
func listArguments(call domain.ToolCall) (string, error) {
	decoded := decodeStringArguments(call)
	if len(bytes.TrimSpace(decoded.Arguments)) == 0 {
		return "{}", nil
	}
	return pyjson.Dumps(decoded.Arguments)
}
