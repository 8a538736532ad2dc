package toolcall

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

// Tagged is the single-object-per-block dialect:
//
//	<tool_call>
//	{"name": "spotify.play", "arguments": {"artist": "Taylor Swift"}}
//	</tool_call>
//
// Every block holds exactly one JSON object. A block that does not parse is
// dropped without any fallback.
type Tagged struct {
	Open  string
	Close string

	pattern *regexp.Regexp
}

// NewTagged creates a tagged grammar for the given markers.
func NewTagged(open, close string) *Tagged {
	return &Tagged{
		Open:    open,
		Close:   close,
		pattern: regexp.MustCompile(`(?s)` + regexp.QuoteMeta(open) + `\n(.*?)\n` + regexp.QuoteMeta(close)),
	}
}

// Extract implements Grammar.
func (g *Tagged) Extract(text string) []domain.ToolCall {
	calls, _ := g.Scan(text)
	return calls
}

// Scan implements Grammar.
func (g *Tagged) Scan(text string) ([]domain.ToolCall, error) {
	var calls []domain.ToolCall
	var shapeErr error

	for _, m := range g.pattern.FindAllStringSubmatch(text, -1) {
		payload := []byte(m[1])
		if !json.Valid(payload) {
			continue
		}
		call, ok := record(payload)
		if !ok {
			shapeErr = fmt.Errorf("%w: %s", ErrNotRecord, m[1])
			continue
		}
		calls = append(calls, call)
	}
	return calls, shapeErr
}

// Render implements Grammar. Blocks are newline separated and follow the
// content on a new line when there is content.
func (g *Tagged) Render(b *strings.Builder, content string, calls []domain.ToolCall) error {
	for i, call := range calls {
		if i > 0 || content != "" {
			b.WriteByte('\n')
		}
		args, err := renderArguments(call)
		if err != nil {
			return fmt.Errorf("failed to render arguments for %s: %w", call.Name, err)
		}
		b.WriteString(g.Open)
		b.WriteString("\n{\"name\": \"")
		b.WriteString(call.Name)
		b.WriteString("\", \"arguments\": ")
		b.WriteString(args)
		b.WriteString("}\n")
		b.WriteString(g.Close)
	}
	return nil
}
