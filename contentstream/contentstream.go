// Package contentstream models PDF content stream operations and encodes
// them to bytes.
package contentstream

import (
	"bytes"
	"math"
	"strconv"
)

// Operand is a content stream operand.
type Operand interface {
	appendTo(b []byte) []byte
}

// Number is a numeric operand.
type Number float64

// Name is a name operand, written with a leading slash.
type Name string

// String is a literal string operand.
type String []byte

// Array is an array operand.
type Array []Operand

// Operation is an operator with its operands.
type Operation struct {
	Operator string
	Operands []Operand
}

// Op builds an operation.
func Op(operator string, operands ...Operand) Operation {
	return Operation{Operator: operator, Operands: operands}
}

// Numbers converts float64 values to operands.
func Numbers(vals ...float64) []Operand {
	out := make([]Operand, len(vals))
	for i, v := range vals {
		out[i] = Number(v)
	}
	return out
}

// Encode serializes ops, one operation per line.
func Encode(ops []Operation) []byte {
	var b []byte
	for _, op := range ops {
		for _, o := range op.Operands {
			b = o.appendTo(b)
			b = append(b, ' ')
		}
		b = append(b, op.Operator...)
		b = append(b, '\n')
	}
	return b
}

// FormatNumber writes f with at most four decimals and no trailing zeros.
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	r := math.Round(f*10000) / 10000
	if r == 0 {
		return "0"
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func (n Number) appendTo(b []byte) []byte { return append(b, FormatNumber(float64(n))...) }

func (n Name) appendTo(b []byte) []byte { return AppendName(b, string(n)) }

// AppendName appends name with a leading slash, escaping delimiters and
// bytes outside the printable ASCII range as #XX.
func AppendName(b []byte, name string) []byte {
	b = append(b, '/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < '!' || c > '~' || bytes.IndexByte([]byte("()<>[]{}/%#"), c) >= 0 {
			b = append(b, '#')
			b = append(b, "0123456789ABCDEF"[c>>4], "0123456789ABCDEF"[c&0xF])
			continue
		}
		b = append(b, c)
	}
	return b
}

func (s String) appendTo(b []byte) []byte { return AppendString(b, s) }

func (a Array) appendTo(b []byte) []byte {
	b = append(b, '[')
	for i, o := range a {
		if i > 0 {
			b = append(b, ' ')
		}
		b = o.appendTo(b)
	}
	return append(b, ']')
}

// AppendString appends s as a PDF literal string, escaping delimiters and
// control characters.
func AppendString(b []byte, s []byte) []byte {
	b = append(b, '(')
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			b = append(b, '\\', c)
		case '\n':
			b = append(b, '\\', 'n')
		case '\r':
			b = append(b, '\\', 'r')
		case '\t':
			b = append(b, '\\', 't')
		default:
			b = append(b, c)
		}
	}
	return append(b, ')')
}
