// Package reasoning splits and rebuilds the scratchpad block that reasoning
// models wrap around their chain of thought, e.g. <think>...</think>.
package reasoning

import "strings"

// Dialect is one named open/close tag pair.
type Dialect struct {
	Name  string
	Open  string
	Close string
}

// Tag builds the XML-ish dialect <name>...</name>.
func Tag(name string) Dialect {
	return Dialect{Name: name, Open: "<" + name + ">", Close: "</" + name + ">"}
}

// Set is an ordered list of dialects tried during extraction, plus the
// dialect reported when none of them match.
type Set struct {
	Dialects []Dialect
	Fallback string
}

// NewSet creates a set that tries dialects in the given order.
func NewSet(fallback string, dialects ...Dialect) Set {
	return Set{Dialects: dialects, Fallback: fallback}
}

// Lookup returns the dialect with the given name.
func (s Set) Lookup(name string) (Dialect, bool) {
	for _, d := range s.Dialects {
		if d.Name == name {
			return d, true
		}
	}
	return Dialect{}, false
}

// FallbackDialect returns the dialect named by Fallback, or the first
// dialect of the set when the name is unknown.
func (s Set) FallbackDialect() Dialect {
	if d, ok := s.Lookup(s.Fallback); ok {
		return d
	}
	if len(s.Dialects) > 0 {
		return s.Dialects[0]
	}
	return Tag(s.Fallback)
}

// Segment is the outcome of splitting a text.
type Segment struct {
	Reasoning string
	Remainder string
	Dialect   Dialect

	// Matched is false when no dialect's close tag occurred; Dialect is then
	// the set's fallback and carries no evidence that reasoning was present.
	Matched bool
}

// Extract splits text using the first dialect, in priority order, whose
// close tag occurs in it.
func (s Set) Extract(text string) Segment {
	for _, d := range s.Dialects {
		if reasoning, remainder, ok := d.Split(text); ok {
			return Segment{Reasoning: reasoning, Remainder: remainder, Dialect: d, Matched: true}
		}
	}
	return Segment{Remainder: text, Dialect: s.FallbackDialect()}
}

// Split separates text at the dialect's close tag. The reasoning is the text
// before the first close tag, after the last open tag preceding it, trimmed of
// newlines. The remainder is the text after the last close tag with leading
// newlines removed.
func (d Dialect) Split(text string) (reasoning, remainder string, ok bool) {
	return d.split(text, strings.LastIndex)
}

// SplitFirst is Split with the remainder taken after the first close tag, so
// later close tags stay in the remainder.
func (d Dialect) SplitFirst(text string) (reasoning, remainder string, ok bool) {
	return d.split(text, strings.Index)
}

func (d Dialect) split(text string, tail func(s, substr string) int) (reasoning, remainder string, ok bool) {
	first := strings.Index(text, d.Close)
	if first < 0 {
		return "", text, false
	}

	head := strings.TrimRight(text[:first], "\n")
	if i := strings.LastIndex(head, d.Open); i >= 0 {
		head = head[i+len(d.Open):]
	}
	reasoning = strings.TrimLeft(head, "\n")

	end := tail(text, d.Close)
	remainder = strings.TrimLeft(text[end+len(d.Close):], "\n")
	return reasoning, remainder, true
}

// Layout decides the bytes around an injected reasoning block.
type Layout struct {
	// Trailer follows the close tag, before the remainder.
	Trailer string

	// CompactEmpty renders empty reasoning as "<t>\n</t>" instead of
	// "<t>\n\n</t>".
	CompactEmpty bool
}

var (
	// Compact is the K2 layout: "<t>\nR\n</t>\n".
	Compact = Layout{Trailer: "\n", CompactEmpty: true}

	// Padded is the Olmo layout: "<t>\nR\n</t>\n\n".
	Padded = Layout{Trailer: "\n\n"}
)

// Inject wraps reasoning in the dialect's tag pair followed by remainder.
// The tag pair is emitted even when reasoning is empty.
func (l Layout) Inject(d Dialect, reasoning, remainder string) string {
	reasoning = strings.Trim(reasoning, "\n")

	var b strings.Builder
	b.WriteString(d.Open)
	b.WriteByte('\n')
	if reasoning != "" || !l.CompactEmpty {
		b.WriteString(reasoning)
		b.WriteByte('\n')
	}
	b.WriteString(d.Close)
	b.WriteString(l.Trailer)
	b.WriteString(strings.TrimLeft(remainder, "\n"))
	return b.String()
}
