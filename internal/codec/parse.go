package codec

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

// ParseCompletion splits a raw completion into reasoning, tool calls and
// cleaned text.
//
// Calls are extracted from the whole raw text, since some families emit call
// markers before or inside the reasoning block. When any call is found the
// cleaned text is empty. An unknown effort is a configuration error.
func (c *Codec) ParseCompletion(ctx context.Context, raw string) (*domain.ParsedCompletion, error) {
	_, span := c.tracer.Start(ctx, "codec.ParseCompletion")
	defer span.End()
	span.SetAttributes(
		attribute.String("codec.family", c.family.Name),
		attribute.String("codec.effort", string(c.Effort())),
	)

	parsed, err := c.parse(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("codec.tool_calls", len(parsed.ToolCalls)))
	return parsed, nil
}

func (c *Codec) parse(raw string) (*domain.ParsedCompletion, error) {
	effort := c.Effort()
	if !effort.Valid() {
		return nil, domain.ErrConfiguration(
			fmt.Sprintf("unknown reasoning effort %q", effort), domain.ErrUnknownEffort)
	}

	out := &domain.ParsedCompletion{Raw: raw, CleanedText: raw}

	if r := c.family.Reasoning; r != nil {
		d, ok := r.Dialects.Lookup(r.Parse[effort])
		if !ok {
			return nil, domain.ErrConfiguration(
				fmt.Sprintf("family %s has no reasoning dialect for effort %q", c.family.Name, effort),
				domain.ErrUnknownEffort)
		}
		split := d.Split
		if r.KeepLaterCloses {
			split = d.SplitFirst
		}
		if thought, remainder, matched := split(raw); matched {
			out.ReasoningText = thought
			out.CleanedText = remainder
			out.ReasoningTag = d.Name
		}
	}

	if c.family.Calls != nil {
		out.ToolCalls = c.family.Calls.Extract(raw)
	}
	if len(out.ToolCalls) > 0 {
		out.CleanedText = ""
	}
	return out, nil
}

// DecodeCalls extracts the calls in text as name → arguments records, the
// shape evaluation harnesses compare against.
//
// Unlike extraction it fails when a payload decoded but was not a list of
// call records, or when a call's arguments are not an object. Zero calls is
// not an error.
func (c *Codec) DecodeCalls(text string) ([]domain.FunctionInvocation, error) {
	if c.family.Calls == nil {
		return nil, nil
	}

	calls, err := c.family.Calls.Scan(text)
	if err != nil {
		return nil, domain.NewCodecError(domain.ErrorTypeShape,
			fmt.Sprintf("model did not return a list of function calls: %s", text),
			fmt.Errorf("%w: %v", domain.ErrShape, err))
	}

	out := make([]domain.FunctionInvocation, 0, len(calls))
	for _, call := range calls {
		args, err := decodeArguments(call.Arguments)
		if err != nil {
			return nil, domain.NewCodecError(domain.ErrorTypeShape,
				fmt.Sprintf("arguments of %s are not an object", call.Name),
				fmt.Errorf("%w: %v", domain.ErrShape, err))
		}
		out = append(out, domain.FunctionInvocation{call.Name: args})
	}
	return out, nil
}

// decodeArguments decodes an arguments object, unwrapping one level of string
// encoding.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}

	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
