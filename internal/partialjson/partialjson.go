// Package partialjson recovers the well-formed leading structure of a JSON
// document that may have been cut off mid-value.
//
// Values decode to the same Go types as encoding/json with an `any`
// target: map[string]any, []any, string, float64, bool and nil.
//
// Recovery rules: an object keeps every completed member and any
// incomplete object or array member; incomplete scalar members are
// dropped. An array keeps only completed elements.
package partialjson

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrNoJSON is returned when the input contains no '{' or '['.
var ErrNoJSON = errors.New("no JSON structure found")

// SyntaxError reports malformed input. Parse may return it alongside the
// value recovered before the error.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("partialjson: %s at offset %d", e.Msg, e.Offset)
}

// Parse decodes the first object or array in s. complete is true when the
// structure closed normally. Text before the structure and after it is
// ignored.
func Parse(s string) (value any, complete bool, err error) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, false, ErrNoJSON
	}
	p := &parser{s: s, i: start}
	v, ok := p.value()
	if p.err != nil {
		return v, false, p.err
	}
	return v, ok, nil
}

type parser struct {
	s   string
	i   int
	err *SyntaxError
}

func (p *parser) eof() bool { return p.i >= len(p.s) }

func (p *parser) fail(msg string) {
	if p.err == nil {
		p.err = &SyntaxError{Offset: p.i, Msg: msg}
	}
}

func (p *parser) skipSpace() {
	for p.i < len(p.s) {
		switch p.s[p.i] {
		case ' ', '\t', '\n', '\r':
			p.i++
		default:
			return
		}
	}
}

// value parses any JSON value. ok is false when input ended or a syntax
// error occurred before the value closed.
func (p *parser) value() (any, bool) {
	p.skipSpace()
	if p.eof() {
		return nil, false
	}
	switch c := p.s[p.i]; {
	case c == '{':
		return p.object()
	case c == '[':
		return p.array()
	case c == '"':
		return p.str()
	case c == 't':
		return p.literal("true", true)
	case c == 'f':
		return p.literal("false", false)
	case c == 'n':
		return p.literal("null", nil)
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		p.fail(fmt.Sprintf("unexpected character %q", c))
		return nil, false
	}
}

func (p *parser) object() (any, bool) {
	p.i++ // '{'
	m := make(map[string]any)
	first := true
	for {
		p.skipSpace()
		if p.eof() {
			return m, false
		}
		if p.s[p.i] == '}' {
			p.i++
			return m, true
		}
		if !first {
			if p.s[p.i] != ',' {
				p.fail("expected ',' or '}' in object")
				return m, false
			}
			p.i++
			p.skipSpace()
			if p.eof() {
				return m, false
			}
		}
		first = false

		if p.s[p.i] != '"' {
			p.fail("expected object key")
			return m, false
		}
		k, ok := p.str()
		if !ok {
			return m, false
		}
		key := k.(string)

		p.skipSpace()
		if p.eof() {
			return m, false
		}
		if p.s[p.i] != ':' {
			p.fail("expected ':' after object key")
			return m, false
		}
		p.i++

		v, ok := p.value()
		if !ok {
			switch v.(type) {
			case map[string]any, []any:
				m[key] = v
			}
			return m, false
		}
		m[key] = v
	}
}

func (p *parser) array() (any, bool) {
	p.i++ // '['
	arr := []any{}
	first := true
	for {
		p.skipSpace()
		if p.eof() {
			return arr, false
		}
		if p.s[p.i] == ']' {
			p.i++
			return arr, true
		}
		if !first {
			if p.s[p.i] != ',' {
				p.fail("expected ',' or ']' in array")
				return arr, false
			}
			p.i++
		}
		first = false

		v, ok := p.value()
		if !ok {
			return arr, false
		}
		arr = append(arr, v)
	}
}

func (p *parser) str() (any, bool) {
	p.i++ // opening quote
	var b strings.Builder
	for p.i < len(p.s) {
		c := p.s[p.i]
		switch {
		case c == '"':
			p.i++
			return b.String(), true
		case c == '\\':
			if p.i+1 >= len(p.s) {
				p.i = len(p.s)
				return nil, false
			}
			esc := p.s[p.i+1]
			p.i += 2
			switch esc {
			case '"', '\\', '/':
				b.WriteByte(esc)
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'u':
				r, ok := p.unicodeEscape()
				if !ok {
					return nil, false
				}
				b.WriteRune(r)
			default:
				p.i -= 2
				p.fail(fmt.Sprintf("invalid escape '\\%c'", esc))
				return nil, false
			}
		case c < 0x20:
			// Models sometimes emit raw newlines inside strings.
			b.WriteByte(c)
			p.i++
		default:
			r, size := utf8.DecodeRuneInString(p.s[p.i:])
			b.WriteRune(r)
			p.i += size
		}
	}
	return nil, false
}

// unicodeEscape reads the four hex digits after "\u", combining a
// following low surrogate when present.
func (p *parser) unicodeEscape() (rune, bool) {
	r1, ok := p.hex4()
	if !ok {
		return 0, false
	}
	if !utf16.IsSurrogate(r1) {
		return r1, true
	}

	rest := p.s[p.i:]
	if len(rest) < 6 && strings.HasPrefix(`\u`, rest[:min(2, len(rest))]) {
		// High surrogate cut off before its pair.
		p.i = len(p.s)
		return 0, false
	}
	if strings.HasPrefix(rest, `\u`) {
		if n, err := strconv.ParseUint(rest[2:6], 16, 32); err == nil {
			if r := utf16.DecodeRune(r1, rune(n)); r != utf8.RuneError {
				p.i += 6
				return r, true
			}
		}
	}
	return utf8.RuneError, true
}

func (p *parser) hex4() (rune, bool) {
	if p.i+4 > len(p.s) {
		p.i = len(p.s)
		return 0, false
	}
	n, err := strconv.ParseUint(p.s[p.i:p.i+4], 16, 32)
	if err != nil {
		p.fail("invalid unicode escape")
		return 0, false
	}
	p.i += 4
	return rune(n), true
}

func (p *parser) literal(word string, v any) (any, bool) {
	rest := p.s[p.i:]
	if strings.HasPrefix(rest, word) {
		p.i += len(word)
		return v, true
	}
	if strings.HasPrefix(word, rest) {
		p.i = len(p.s)
		return nil, false
	}
	p.fail("invalid literal")
	return nil, false
}

func (p *parser) number() (any, bool) {
	start := p.i
	for p.i < len(p.s) {
		c := p.s[p.i]
		if (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E' {
			p.i++
			continue
		}
		break
	}
	// A number running into end of input may have lost digits.
	if p.eof() {
		return nil, false
	}
	f, err := strconv.ParseFloat(p.s[start:p.i], 64)
	if err != nil {
		p.i = start
		p.fail("invalid number")
		return nil, false
	}
	return f, true
}
