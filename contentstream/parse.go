package contentstream

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/wudi/pdfcompose/scanner"
)

// Dict is a dictionary operand, as used by BDC and inline images.
type Dict map[string]Operand

// Raw is an operand written verbatim, such as true, false or null.
type Raw string

func (d Dict) appendTo(b []byte) []byte {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b = append(b, "<<"...)
	for i, k := range keys {
		if i > 0 {
			b = append(b, ' ')
		}
		b = AppendName(b, k)
		b = append(b, ' ')
		b = d[k].appendTo(b)
	}
	return append(b, ">>"...)
}

func (r Raw) appendTo(b []byte) []byte { return append(b, r...) }

// Parse splits a content stream into operations. Inline image data is
// skipped; the BI operation keeps the image dictionary as its operand.
func Parse(data []byte) ([]Operation, error) {
	s := scanner.New(data)
	var ops []Operation
	var operands []Operand
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return ops, nil
		}
		if err != nil {
			return ops, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str != "{" && tok.Str != "}" {
			if tok.Str == "BI" {
				dict, err := inlineImage(s)
				if err != nil {
					return ops, err
				}
				ops = append(ops, Op("BI", dict))
				operands = nil
				continue
			}
			ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
			operands = nil
			continue
		}
		o, err := operand(s, tok, 0)
		if err != nil {
			return ops, err
		}
		operands = append(operands, o)
	}
}

func operand(s *scanner.Scanner, tok scanner.Token, depth int) (Operand, error) {
	if depth > 64 {
		return nil, fmt.Errorf("operands nested too deeply: %w", scanner.ErrSyntax)
	}
	switch tok.Type {
	case scanner.TokenNumber:
		return Number(tok.Number()), nil
	case scanner.TokenName:
		return Name(tok.Str), nil
	case scanner.TokenString:
		return String(tok.Bytes), nil
	case scanner.TokenBoolean, scanner.TokenNull:
		return Raw(tok.Str), nil
	case scanner.TokenArray:
		var arr Array
		for {
			next, err := s.Next()
			if err != nil {
				return nil, err
			}
			if next.Type == scanner.TokenKeyword && next.Str == "]" {
				return arr, nil
			}
			o, err := operand(s, next, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, o)
		}
	case scanner.TokenDict:
		return dictOperand(s, depth, ">>")
	}
	return Raw(tok.Str), nil
}

func dictOperand(s *scanner.Scanner, depth int, end string) (Dict, error) {
	d := Dict{}
	for {
		key, err := s.Next()
		if err != nil {
			return nil, err
		}
		if key.Type == scanner.TokenKeyword && key.Str == end {
			return d, nil
		}
		if key.Type != scanner.TokenName {
			return nil, fmt.Errorf("dictionary key at %d is not a name: %w", key.Pos, scanner.ErrSyntax)
		}
		valTok, err := s.Next()
		if err != nil {
			return nil, err
		}
		val, err := operand(s, valTok, depth+1)
		if err != nil {
			return nil, err
		}
		d[key.Str] = val
	}
}

func inlineImage(s *scanner.Scanner) (Dict, error) {
	d, err := dictOperand(s, 0, "ID")
	if err != nil {
		return nil, fmt.Errorf("inline image: %w", err)
	}
	return d, s.SkipInlineImage()
}

// ExtractText collects the strings shown by text operators. A new line
// starts whenever the text position moves vertically or a text object
// begins. decode turns string bytes into text; nil keeps them as is.
func ExtractText(ops []Operation, decode func([]byte) string) string {
	if decode == nil {
		decode = func(b []byte) string { return string(b) }
	}
	var lines []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
		}
	}
	for _, op := range ops {
		switch op.Operator {
		case "BT", "T*":
			flush()
		case "Td", "TD":
			if len(op.Operands) == 2 && op.Operands[1] != Number(0) {
				flush()
			}
		case "Tm":
			flush()
		case "Tj":
			if len(op.Operands) == 1 {
				if s, ok := op.Operands[0].(String); ok {
					cur.WriteString(decode(s))
				}
			}
		case "'", "\"":
			flush()
			if n := len(op.Operands); n > 0 {
				if s, ok := op.Operands[n-1].(String); ok {
					cur.WriteString(decode(s))
				}
			}
		case "TJ":
			if len(op.Operands) != 1 {
				continue
			}
			arr, _ := op.Operands[0].(Array)
			for _, it := range arr {
				switch v := it.(type) {
				case String:
					cur.WriteString(decode(v))
				case Number:
					// Large negative kerning is a word gap.
					if v < -200 {
						cur.WriteByte(' ')
					}
				}
			}
		}
	}
	flush()
	return strings.Join(lines, "\n")
}
