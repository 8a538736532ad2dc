// Package pyjson renders and reads JSON the way the model families' training
// pipelines did: Python's json.dumps separators and ASCII escaping on the way
// out, and a safe Python-literal reader for loosely quoted model output on the
// way in.
package pyjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Dumps re-serializes a JSON document with json.dumps defaults: ", " and
// ": " separators, non-ASCII escaped as \uXXXX, object key order preserved.
// Numbers print the way Python prints the int or float json.loads would
// produce, and a repeated object key keeps its first position with its last
// value.
func Dumps(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var b strings.Builder
	if err := writeValue(&b, dec); err != nil {
		return "", err
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", errors.New("pyjson: trailing data after JSON value")
	}
	return b.String(), nil
}

// MustDumps is Dumps for values produced by encoding/json, which are always valid.
func MustDumps(raw []byte) string {
	s, err := Dumps(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Marshal encodes v with encoding/json and renders it with Dumps.
func Marshal(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return Dumps(raw)
}

func writeValue(b *strings.Builder, dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return errors.New("pyjson: unexpected end of JSON input")
		}
		return err
	}
	return writeToken(b, dec, tok)
}

func writeToken(b *strings.Builder, dec *json.Decoder, tok json.Token) error {
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return writeObject(b, dec)
		case '[':
			return writeArray(b, dec)
		}
		return fmt.Errorf("pyjson: unexpected delimiter %q", v)
	case string:
		writeString(b, v)
	case json.Number:
		return writeNumber(b, v)
	case bool:
		if v {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case nil:
		b.WriteString("null")
	default:
		return fmt.Errorf("pyjson: unexpected token %T", tok)
	}
	return nil
}

func writeObject(b *strings.Builder, dec *json.Decoder) error {
	var keys []string
	values := make(map[string]string)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("pyjson: object key is %T", tok)
		}
		var v strings.Builder
		if err := writeValue(&v, dec); err != nil {
			return err
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = v.String()
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	b.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		writeString(b, key)
		b.WriteString(": ")
		b.WriteString(values[key])
	}
	b.WriteByte('}')
	return nil
}

func writeArray(b *strings.Builder, dec *json.Decoder) error {
	b.WriteByte('[')
	first := true
	for dec.More() {
		if !first {
			b.WriteString(", ")
		}
		first = false
		if err := writeValue(b, dec); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	b.WriteByte(']')
	return nil
}

// writeNumber prints integers as Python ints and everything with a fraction
// or exponent as a Python float repr.
func writeNumber(b *strings.Builder, n json.Number) error {
	lit := n.String()
	if !strings.ContainsAny(lit, ".eE") {
		if lit == "-0" {
			lit = "0"
		}
		b.WriteString(lit)
		return nil
	}

	f, err := strconv.ParseFloat(lit, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("pyjson: invalid number %q: %w", lit, err)
	}
	b.WriteString(floatRepr(f))
	return nil
}

// floatRepr matches Python's repr(float): shortest round-trip digits, fixed
// notation for decimal exponents in [-4, 16), scientific otherwise.
func floatRepr(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.LastIndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

const hexDigits = "0123456789abcdef"

func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			switch {
			case r < 0x20 || (r > 0x7e && r <= 0xffff):
				writeEscape(b, r)
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				writeEscape(b, hi)
				writeEscape(b, lo)
			default:
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

func writeEscape(b *strings.Builder, r rune) {
	b.WriteString(`\u`)
	b.WriteByte(hexDigits[(r>>12)&0xf])
	b.WriteByte(hexDigits[(r>>8)&0xf])
	b.WriteByte(hexDigits[(r>>4)&0xf])
	b.WriteByte(hexDigits[r&0xf])
}
