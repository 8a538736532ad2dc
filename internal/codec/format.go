package codec

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/pyjson"
	"github.com/tjfontaine/chat-template-codecs/internal/reasoning"
)

// FormatPrompt renders messages and function declarations into the prompt
// text the family was trained on, ending with the generation cue.
//
// A function declaration that is not valid JSON aborts formatting with a
// configuration error; no declaration is ever dropped.
func (c *Codec) FormatPrompt(ctx context.Context, messages []domain.Message, functions []domain.FunctionSpec) (string, error) {
	_, span := c.tracer.Start(ctx, "codec.FormatPrompt")
	defer span.End()
	span.SetAttributes(
		attribute.String("codec.family", c.family.Name),
		attribute.Int("codec.messages", len(messages)),
		attribute.Int("codec.functions", len(functions)),
	)

	prompt, err := c.format(messages, functions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("codec.prompt_bytes", len(prompt)))
	return prompt, nil
}

func (c *Codec) format(messages []domain.Message, functions []domain.FunctionSpec) (string, error) {
	f := c.family
	var b strings.Builder

	if err := c.writeHeader(&b, messages, functions); err != nil {
		return "", err
	}

	boundary := LastQueryIndex(messages, f.EchoOpen, f.EchoClose)
	for i, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			if i == 0 {
				continue
			}
			c.writeBlock(&b, string(m.Role), m.Content)
		case domain.RoleUser:
			c.writeBlock(&b, string(m.Role), m.Content)
		case domain.RoleAssistant:
			if err := c.writeAssistant(&b, m, i > boundary && i == len(messages)-1); err != nil {
				return "", err
			}
		case domain.RoleTool:
			c.writeToolResult(&b, messages, i)
		}
	}

	c.writeCue(&b)
	return b.String(), nil
}

// writeHeader renders the system block, with the catalog when functions are
// declared.
func (c *Codec) writeHeader(b *strings.Builder, messages []domain.Message, functions []domain.FunctionSpec) error {
	f := c.family

	system, hasSystem := "", false
	if len(messages) > 0 && messages[0].Role == domain.RoleSystem {
		system, hasSystem = messages[0].Content, true
	}

	if len(functions) == 0 {
		switch {
		case hasSystem:
			c.writeBlock(b, string(domain.RoleSystem), system)
		case f.Persona != "":
			c.writeBlock(b, string(domain.RoleSystem), f.Persona)
		}
		return nil
	}

	catalog, err := c.catalog(functions)
	if err != nil {
		return err
	}

	if !hasSystem {
		system = f.Persona
	}
	b.WriteString(f.RoleStart)
	b.WriteString(string(domain.RoleSystem))
	b.WriteByte('\n')
	if system != "" {
		b.WriteString(system)
		b.WriteString(f.SystemSeparator)
	}
	b.WriteString(f.Catalog.Preamble)
	b.WriteString(catalog)
	b.WriteString(f.Catalog.Postamble)
	return nil
}

// catalog serializes the declarations the way json.dumps would.
func (c *Codec) catalog(functions []domain.FunctionSpec) (string, error) {
	var b strings.Builder
	for i, fn := range functions {
		text, err := pyjson.Dumps(fn)
		if err != nil {
			return "", domain.ErrConfiguration(
				fmt.Sprintf("function declaration %d cannot be serialized", i),
				fmt.Errorf("%w: %v", domain.ErrInvalidFunction, err),
			)
		}
		switch c.family.Catalog.Style {
		case CatalogDelegated:
			if i > 0 {
				b.WriteByte('\n')
			}
		default:
			b.WriteByte('\n')
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func (c *Codec) writeBlock(b *strings.Builder, role, content string) {
	b.WriteString(c.family.RoleStart)
	b.WriteString(role)
	b.WriteByte('\n')
	b.WriteString(content)
	b.WriteString(c.family.RoleEnd)
}

// writeAssistant renders one assistant turn. When trailing is set the turn
// carries its reasoning block, empty or not.
func (c *Codec) writeAssistant(b *strings.Builder, m domain.Message, trailing bool) error {
	f := c.family
	content, rendered := m.Content, m.Content

	if r := f.Reasoning; r != nil {
		var thought string
		var dialect reasoning.Dialect
		thought, content, dialect = c.splitReasoning(m)
		rendered = content
		if trailing {
			rendered = r.Layout.Inject(dialect, thought, content)
		}
	}

	b.WriteString(f.RoleStart)
	b.WriteString(string(domain.RoleAssistant))
	b.WriteByte('\n')
	b.WriteString(rendered)
	if f.Calls != nil {
		// The separator before the first call depends on the visible
		// content only.
		if err := f.Calls.Render(b, content, m.ToolCalls); err != nil {
			return domain.ErrConfiguration("tool call cannot be rendered", err)
		}
	}
	b.WriteString(f.RoleEnd)
	return nil
}

// splitReasoning returns the reasoning, the visible content and the dialect
// of an assistant message. Explicit reasoning wins over tags found in the
// content.
func (c *Codec) splitReasoning(m domain.Message) (string, string, reasoning.Dialect) {
	r := c.family.Reasoning

	if m.Reasoning != "" || m.ReasoningTag != "" {
		d, ok := r.Dialects.Lookup(m.ReasoningTag)
		if !ok {
			d = r.Dialects.Dialects[0]
		}
		return m.Reasoning, m.Content, d
	}

	seg := r.Dialects.Extract(m.Content)
	return seg.Reasoning, seg.Remainder, seg.Dialect
}

// writeToolResult renders tool message i. A run of consecutive tool messages
// shares one role block.
func (c *Codec) writeToolResult(b *strings.Builder, messages []domain.Message, i int) {
	t := c.family.ToolTurn

	if i == 0 || messages[i-1].Role != domain.RoleTool {
		b.WriteString(c.family.RoleStart)
		b.WriteString(t.Role)
		b.WriteString(t.Header)
	}

	b.WriteString(t.ItemPrefix)
	b.WriteString(messages[i].Content)
	b.WriteString(t.ItemSuffix)

	if i == len(messages)-1 || messages[i+1].Role != domain.RoleTool {
		b.WriteString(c.family.RoleEnd)
	}
}

// writeCue opens the assistant turn the model is about to generate. Unknown
// efforts fall back to medium so formatting always yields a usable prompt.
func (c *Codec) writeCue(b *strings.Builder) {
	f := c.family
	b.WriteString(f.RoleStart)
	b.WriteString(string(domain.RoleAssistant))
	b.WriteByte('\n')

	r := f.Reasoning
	if r == nil {
		return
	}
	name, ok := r.Format[c.Effort()]
	if !ok {
		name = r.Format[domain.EffortMedium]
	}
	d, ok := r.Dialects.Lookup(name)
	if !ok {
		d = r.Dialects.FallbackDialect()
	}
	b.WriteString(d.Open)
	b.WriteString(r.CueSuffix)
}
