// Package scanner tokenizes PDF file and content stream syntax.
package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenKeyword                  // other keywords (obj, endobj, stream, >>, ], operators)
)

func (t TokenType) String() string {
	switch t {
	case TokenDict:
		return "dict"
	case TokenArray:
		return "array"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	default:
		return "keyword"
	}
}

type Token struct {
	Type  TokenType
	Str   string // name or keyword
	Bytes []byte // decoded string contents
	Hex   bool
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Pos   int64
}

// Number returns the numeric value of a number token.
func (t Token) Number() float64 {
	if t.IsInt {
		return float64(t.Int)
	}
	return t.Float
}

// ErrSyntax reports malformed input.
var ErrSyntax = errors.New("pdf syntax error")

// Scanner reads tokens from an in-memory buffer.
type Scanner struct {
	data []byte
	pos  int
}

// New returns a scanner over data.
func New(data []byte) *Scanner { return &Scanner{data: data} }

func (s *Scanner) Position() int64 { return int64(s.pos) }

// Len returns the size of the underlying buffer.
func (s *Scanner) Len() int64 { return int64(len(s.data)) }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek %d out of range: %w", offset, ErrSyntax)
	}
	s.pos = int(offset)
	return nil
}

func isWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(c byte) bool { return !isWhitespace(c) && !isDelimiter(c) }

func (s *Scanner) skipWSAndComments() {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return
	}
}

// Next returns the next token, or io.EOF at the end of input.
func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= len(s.data) {
		return Token{}, io.EOF
	}
	start := int64(s.pos)
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Str: "<<", Pos: start}, nil
		}
		b, err := s.readHexString()
		return Token{Type: TokenString, Bytes: b, Hex: true, Pos: start}, err
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{}, fmt.Errorf("unexpected '>' at %d: %w", start, ErrSyntax)
	case '[':
		s.pos++
		return Token{Type: TokenArray, Str: "[", Pos: start}, nil
	case ']', '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	case '(':
		b, err := s.readLiteralString()
		return Token{Type: TokenString, Bytes: b, Pos: start}, err
	case ')':
		s.pos++
		return Token{}, fmt.Errorf("unbalanced ')' at %d: %w", start, ErrSyntax)
	case '/':
		s.pos++
		return Token{Type: TokenName, Str: s.readName(), Pos: start}, nil
	}

	if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
		if tok, ok := s.readNumber(); ok {
			tok.Pos = start
			return tok, nil
		}
	}

	for s.pos < len(s.data) && isRegular(s.data[s.pos]) {
		s.pos++
	}
	word := string(s.data[start:s.pos])
	switch word {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: word == "true", Str: word, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: word, Pos: start}, nil
	}
	return Token{Type: TokenKeyword, Str: word, Pos: start}, nil
}

func (s *Scanner) peek(off int) byte {
	if s.pos+off < len(s.data) {
		return s.data[s.pos+off]
	}
	return 0
}

func (s *Scanner) readNumber() (Token, bool) {
	start := s.pos
	end := start
	if s.data[end] == '+' || s.data[end] == '-' {
		end++
	}
	digits, dot := 0, false
	for end < len(s.data) {
		c := s.data[end]
		if c >= '0' && c <= '9' {
			digits++
		} else if c == '.' && !dot {
			dot = true
		} else {
			break
		}
		end++
	}
	if digits == 0 {
		return Token{}, false
	}
	text := string(s.data[start:end])
	s.pos = end
	if !dot {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Token{Type: TokenNumber, Int: i, IsInt: true, Str: text}, true
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		f = 0
	}
	return Token{Type: TokenNumber, Float: f, Str: text}, true
}

func (s *Scanner) readName() string {
	var b []byte
	for s.pos < len(s.data) && isRegular(s.data[s.pos]) {
		c := s.data[s.pos]
		if c == '#' && s.pos+2 < len(s.data) {
			if v, err := strconv.ParseUint(string(s.data[s.pos+1:s.pos+3]), 16, 8); err == nil {
				b = append(b, byte(v))
				s.pos += 3
				continue
			}
		}
		b = append(b, c)
		s.pos++
	}
	return string(b)
}

func (s *Scanner) readLiteralString() ([]byte, error) {
	s.pos++ // (
	var out []byte
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return out, nil
			}
		case '\\':
			if s.pos >= len(s.data) {
				return out, fmt.Errorf("unterminated string: %w", ErrSyntax)
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if s.peek(0) == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; i++ {
						v = v*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
			continue
		}
		out = append(out, c)
	}
	return out, fmt.Errorf("unterminated string: %w", ErrSyntax)
}

func (s *Scanner) readHexString() ([]byte, error) {
	s.pos++ // <
	var digits []byte
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			out := make([]byte, len(digits)/2)
			for i := range out {
				out[i] = unhex(digits[2*i])<<4 | unhex(digits[2*i+1])
			}
			return out, nil
		}
		if isWhitespace(c) {
			continue
		}
		if unhex(c) == 0xFF {
			return nil, fmt.Errorf("invalid hex digit %q: %w", c, ErrSyntax)
		}
		digits = append(digits, c)
	}
	return nil, fmt.Errorf("unterminated hex string: %w", ErrSyntax)
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0xFF
}

// StreamData returns the stream body following a "stream" keyword the
// scanner has just consumed. A negative length makes it search for
// "endstream" instead.
func (s *Scanner) StreamData(length int64) ([]byte, error) {
	if s.peek(0) == '\r' {
		s.pos++
	}
	if s.peek(0) == '\n' {
		s.pos++
	}
	start := s.pos
	if length >= 0 && int64(start)+length <= int64(len(s.data)) {
		end := start + int(length)
		rest := s.data[end:]
		trimmed := bytes.TrimLeft(rest, "\r\n \t")
		if bytes.HasPrefix(trimmed, []byte("endstream")) {
			s.pos = end + (len(rest) - len(trimmed)) + len("endstream")
			return s.data[start:end], nil
		}
	}
	idx := bytes.Index(s.data[start:], []byte("endstream"))
	if idx < 0 {
		return nil, fmt.Errorf("endstream not found: %w", ErrSyntax)
	}
	end := start + idx
	s.pos = end + len("endstream")
	for end > start && (s.data[end-1] == '\n' || s.data[end-1] == '\r') {
		end--
	}
	return s.data[start:end], nil
}

// SkipInlineImage moves past inline image data following an ID operator
// and its terminating EI.
func (s *Scanner) SkipInlineImage() error {
	for i := s.pos + 1; i+2 <= len(s.data); i++ {
		if s.data[i] == 'E' && s.data[i+1] == 'I' && isWhitespace(s.data[i-1]) &&
			(i+2 == len(s.data) || !isRegular(s.data[i+2])) {
			s.pos = i + 2
			return nil
		}
	}
	return fmt.Errorf("inline image without EI: %w", ErrSyntax)
}
