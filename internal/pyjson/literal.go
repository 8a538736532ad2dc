package pyjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrNotLiteral is returned when the input is not a Python literal.
var ErrNotLiteral = errors.New("pyjson: not a python literal")

// maxDepth bounds nesting so hostile input cannot exhaust the stack.
const maxDepth = 512

// Literal reads a Python literal expression (numbers, strings, lists,
// tuples, dicts, True, False, None) and returns it as JSON text. Tuples
// become arrays and non-string dict keys are stringified the way json.dumps
// does. Nothing is evaluated: names other than the three constants, calls,
// operators and sets are rejected.
func Literal(src string) (json.RawMessage, error) {
	p := &literalParser{src: src}
	var b strings.Builder
	p.skipSpace()
	if err := p.value(&b, 0); err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected %q after literal", p.rest(10))
	}
	return json.RawMessage(b.String()), nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrNotLiteral, p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) rest(n int) string {
	end := p.pos + n
	if end > len(p.src) {
		end = len(p.src)
	}
	return p.src[p.pos:end]
}

func (p *literalParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch c := p.src[p.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			p.pos++
		case c == '\\' && strings.HasPrefix(p.src[p.pos:], "\\\n"):
			p.pos += 2
		case c == '#':
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *literalParser) value(b *strings.Builder, depth int) error {
	if depth > maxDepth {
		return p.errorf("nesting too deep")
	}
	switch c := p.peek(); {
	case c == '{':
		return p.dict(b, depth)
	case c == '[':
		p.pos++
		return p.sequence(b, ']', depth)
	case c == '(':
		return p.paren(b, depth)
	case c == '"' || c == '\'':
		return p.stringValue(b)
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.number(b)
	case isIdentStart(c):
		return p.name(b)
	case c == 0:
		return p.errorf("unexpected end of input")
	default:
		return p.errorf("unexpected %q", c)
	}
}

func (p *literalParser) dict(b *strings.Builder, depth int) error {
	p.pos++ // {
	b.WriteByte('{')
	first := true
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			b.WriteByte('}')
			return nil
		}
		if !first {
			b.WriteString(", ")
		}
		first = false

		var key strings.Builder
		if err := p.value(&key, depth+1); err != nil {
			return err
		}
		writeKey(b, key.String())

		p.skipSpace()
		if p.peek() != ':' {
			return p.errorf("expected ':' in dict")
		}
		p.pos++
		b.WriteString(": ")
		p.skipSpace()
		if err := p.value(b, depth+1); err != nil {
			return err
		}

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return p.errorf("expected ',' or '}' in dict")
		}
	}
}

// writeKey emits a JSON object key for an already-rendered literal, turning
// numbers and constants into strings as json.dumps does.
func writeKey(b *strings.Builder, key string) {
	if strings.HasPrefix(key, `"`) {
		b.WriteString(key)
		return
	}
	writeString(b, key)
}

func (p *literalParser) sequence(b *strings.Builder, closer byte, depth int) error {
	b.WriteByte('[')
	first := true
	for {
		p.skipSpace()
		if p.peek() == closer {
			p.pos++
			b.WriteByte(']')
			return nil
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		if err := p.value(b, depth+1); err != nil {
			return err
		}
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case closer:
		default:
			return p.errorf("expected ',' or %q", closer)
		}
	}
}

// paren handles both tuples and parenthesized expressions.
func (p *literalParser) paren(b *strings.Builder, depth int) error {
	p.pos++ // (
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		b.WriteString("[]")
		return nil
	}

	var inner strings.Builder
	if err := p.value(&inner, depth+1); err != nil {
		return err
	}
	p.skipSpace()
	switch p.peek() {
	case ')':
		p.pos++
		b.WriteString(inner.String())
		return nil
	case ',':
		p.pos++
	default:
		return p.errorf("expected ',' or ')'")
	}

	b.WriteByte('[')
	b.WriteString(inner.String())
	for {
		p.skipSpace()
		if p.peek() == ')' {
			p.pos++
			b.WriteByte(']')
			return nil
		}
		b.WriteString(", ")
		if err := p.value(b, depth+1); err != nil {
			return err
		}
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
		default:
			return p.errorf("expected ',' or ')'")
		}
	}
}

func (p *literalParser) name(b *strings.Builder) error {
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	ident := p.src[start:p.pos]

	// String prefixes: r"..", u'..', b"..", rb'..'.
	if q := p.peek(); (q == '"' || q == '\'') && len(ident) <= 2 && strings.Trim(strings.ToLower(ident), "rub") == "" {
		p.pos = start
		return p.stringValue(b)
	}

	switch ident {
	case "True":
		b.WriteString("true")
	case "False":
		b.WriteString("false")
	case "None":
		b.WriteString("null")
	default:
		p.pos = start
		return p.errorf("name %q is not a literal", ident)
	}
	return nil
}

// stringValue reads one or more adjacent string literals, which Python
// concatenates.
func (p *literalParser) stringValue(b *strings.Builder) error {
	var sb strings.Builder
	for {
		s, err := p.stringLiteral()
		if err != nil {
			return err
		}
		sb.WriteString(s)

		save := p.pos
		p.skipSpace()
		if !p.atStringStart() {
			p.pos = save
			break
		}
	}
	writeString(b, sb.String())
	return nil
}

func (p *literalParser) atStringStart() bool {
	i := p.pos
	for i < len(p.src) && i-p.pos < 2 && strings.ContainsRune("rRuUbB", rune(p.src[i])) {
		i++
	}
	return i < len(p.src) && (p.src[i] == '"' || p.src[i] == '\'')
}

func (p *literalParser) stringLiteral() (string, error) {
	raw := false
	for p.pos < len(p.src) && strings.ContainsRune("rRuUbB", rune(p.src[p.pos])) {
		if p.src[p.pos] == 'r' || p.src[p.pos] == 'R' {
			raw = true
		}
		p.pos++
	}

	quote := p.peek()
	if quote != '"' && quote != '\'' {
		return "", p.errorf("expected string")
	}
	delim := string(quote)
	if strings.HasPrefix(p.src[p.pos:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	p.pos += len(delim)

	var sb strings.Builder
	for {
		if p.pos >= len(p.src) {
			return "", p.errorf("unterminated string")
		}
		if strings.HasPrefix(p.src[p.pos:], delim) {
			p.pos += len(delim)
			return sb.String(), nil
		}

		c := p.src[p.pos]
		if c == '\n' && len(delim) == 1 {
			return "", p.errorf("newline in string")
		}
		if c != '\\' {
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			sb.WriteRune(r)
			p.pos += size
			continue
		}

		if raw {
			// A backslash still protects the following character from
			// ending the string, but both are kept.
			sb.WriteByte('\\')
			p.pos++
			if p.pos < len(p.src) {
				r, size := utf8.DecodeRuneInString(p.src[p.pos:])
				sb.WriteRune(r)
				p.pos += size
			}
			continue
		}
		if err := p.escape(&sb); err != nil {
			return "", err
		}
	}
}

func (p *literalParser) escape(sb *strings.Builder) error {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return p.errorf("unterminated escape")
	}
	c := p.src[p.pos]
	p.pos++
	switch c {
	case '\n':
	case '\\', '\'', '"':
		sb.WriteByte(c)
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case 'x':
		return p.hexEscape(sb, 2)
	case 'u':
		return p.hexEscape(sb, 4)
	case 'U':
		return p.hexEscape(sb, 8)
	case '0', '1', '2', '3', '4', '5', '6', '7':
		start := p.pos - 1
		for p.pos < len(p.src) && p.pos-start < 3 && p.src[p.pos] >= '0' && p.src[p.pos] <= '7' {
			p.pos++
		}
		n, _ := strconv.ParseUint(p.src[start:p.pos], 8, 32)
		sb.WriteRune(rune(n))
	default:
		// Unknown escapes are kept literally.
		sb.WriteByte('\\')
		sb.WriteByte(c)
	}
	return nil
}

func (p *literalParser) hexEscape(sb *strings.Builder, n int) error {
	if p.pos+n > len(p.src) {
		return p.errorf("truncated \\x escape")
	}
	v, err := strconv.ParseUint(p.src[p.pos:p.pos+n], 16, 32)
	if err != nil || v > utf8.MaxRune {
		return p.errorf("invalid hex escape")
	}
	p.pos += n
	sb.WriteRune(rune(v))
	return nil
}

func (p *literalParser) number(b *strings.Builder) error {
	start := p.pos
	neg := false
	for p.peek() == '-' || p.peek() == '+' {
		if p.peek() == '-' {
			neg = !neg
		}
		p.pos++
		p.skipSpace()
	}
	numStart := p.pos
	for p.pos < len(p.src) {
		var prev byte
		if p.pos > numStart {
			prev = p.src[p.pos-1]
		}
		if !isNumberPart(p.src[p.pos], prev) {
			break
		}
		p.pos++
	}
	text := strings.ReplaceAll(p.src[numStart:p.pos], "_", "")
	if text == "" {
		p.pos = start
		return p.errorf("expected number")
	}
	if p.peek() == 'j' || p.peek() == 'J' {
		return p.errorf("complex numbers are not supported")
	}

	sign := ""
	if neg {
		sign = "-"
	}

	if len(text) > 1 && text[0] == '0' && strings.Trim(text, "0123456789") == "" {
		// Python rejects leading zeros on decimals other than 0 itself.
		if strings.Trim(text, "0") != "" {
			return p.errorf("invalid decimal literal %q", text)
		}
		text = "0"
	}
	if n, ok := new(big.Int).SetString(text, 0); ok {
		if neg {
			n.Neg(n)
		}
		b.WriteString(n.String())
		return nil
	}

	f, err := strconv.ParseFloat(sign+text, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return p.errorf("invalid number %q", text)
	}
	out := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(out, ".eE") {
		out += ".0"
	}
	b.WriteString(out)
	return nil
}

func isNumberPart(c, prev byte) bool {
	switch {
	case isDigit(c), c == '.', c == '_':
		return true
	case c == 'x' || c == 'X' || c == 'o' || c == 'O' || c == 'b' || c == 'B':
		return prev == '0'
	case (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F'):
		return true
	case c == '+' || c == '-':
		return prev == 'e' || prev == 'E'
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
