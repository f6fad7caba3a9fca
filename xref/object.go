package xref

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/scanner"
)

const maxNesting = 256

// ReadObject parses one direct object at the scanner position. Indirect
// references "n g R" are returned as raw.RefObj.
func ReadObject(s *scanner.Scanner) (raw.Object, error) {
	return readObject(s, 0)
}

func readObject(s *scanner.Scanner, depth int) (raw.Object, error) {
	if depth > maxNesting {
		return nil, fmt.Errorf("objects nested too deeply: %w", scanner.ErrSyntax)
	}
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameLiteral(tok.Str), nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenNumber:
		if !tok.IsInt {
			return raw.NumberFloat(tok.Float), nil
		}
		if ref, ok := tryRef(s, tok); ok {
			return ref, nil
		}
		return raw.NumberInt(tok.Int), nil
	case scanner.TokenArray:
		arr := raw.NewArray()
		for {
			if peekKeyword(s, "]") {
				return arr, nil
			}
			item, err := readObject(s, depth+1)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case scanner.TokenDict:
		dict := raw.Dict()
		for {
			if peekKeyword(s, ">>") {
				return dict, nil
			}
			key, err := s.Next()
			if err != nil {
				return nil, err
			}
			if key.Type != scanner.TokenName {
				return nil, fmt.Errorf("dictionary key %q at %d is not a name: %w", key.Str, key.Pos, scanner.ErrSyntax)
			}
			val, err := readObject(s, depth+1)
			if err != nil {
				return nil, err
			}
			if _, null := val.(raw.NullObj); !null {
				dict.Set(key.Str, val)
			}
		}
	}
	return nil, fmt.Errorf("unexpected %q at %d: %w", tok.Str, tok.Pos, scanner.ErrSyntax)
}

// tryRef looks ahead for "g R" after an integer.
func tryRef(s *scanner.Scanner, num scanner.Token) (raw.Object, bool) {
	save := s.Position()
	gen, err := s.Next()
	if err == nil && gen.Type == scanner.TokenNumber && gen.IsInt {
		r, err := s.Next()
		if err == nil && r.Type == scanner.TokenKeyword && r.Str == "R" {
			return raw.Ref(int(num.Int), int(gen.Int)), true
		}
	}
	s.Seek(save)
	return nil, false
}

func peekKeyword(s *scanner.Scanner, kw string) bool {
	save := s.Position()
	tok, err := s.Next()
	if err == nil && tok.Type == scanner.TokenKeyword && tok.Str == kw {
		return true
	}
	s.Seek(save)
	return false
}

// LengthFunc resolves an indirect /Length entry. It returns -1 when the
// length is unknown.
type LengthFunc func(raw.Object) int64

// ReadIndirect parses "n g obj ... endobj" at offset.
func ReadIndirect(data []byte, offset int64, length LengthFunc) (raw.ObjectRef, raw.Object, error) {
	s := scanner.New(data)
	if err := s.Seek(offset); err != nil {
		return raw.ObjectRef{}, nil, err
	}
	num, err1 := s.Next()
	gen, err2 := s.Next()
	kw, err3 := s.Next()
	if err := errors.Join(err1, err2, err3); err != nil {
		return raw.ObjectRef{}, nil, err
	}
	if num.Type != scanner.TokenNumber || gen.Type != scanner.TokenNumber || kw.Str != "obj" {
		return raw.ObjectRef{}, nil, fmt.Errorf("no object header at %d: %w", offset, scanner.ErrSyntax)
	}
	ref := raw.ObjectRef{Num: int(num.Int), Gen: int(gen.Int)}

	obj, err := ReadObject(s)
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return ref, obj, nil
	}
	save := s.Position()
	tok, err := s.Next()
	if err != nil || tok.Str != "stream" {
		s.Seek(save)
		return ref, dict, nil
	}
	n := int64(-1)
	if l, ok := dict.Get("Length"); ok {
		switch v := l.(type) {
		case raw.NumberObj:
			n = v.Int()
		case raw.RefObj:
			if length != nil {
				n = length(v)
			}
		}
	}
	body, err := s.StreamData(n)
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}
	return ref, raw.NewStream(dict, body), nil
}
