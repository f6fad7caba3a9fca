// Package xref locates objects in a PDF file through its cross-reference
// tables and streams, rebuilding them from a full scan when they are broken.
package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfcompose/filters"
	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/scanner"
)

type EntryKind int

const (
	Free EntryKind = iota
	InUse
	// Compressed entries live inside an object stream.
	Compressed
)

type Entry struct {
	Kind   EntryKind
	Offset int64 // InUse
	Gen    int
	Stream int // Compressed: object stream number
	Index  int // Compressed: index within the stream
}

// Table holds the merged cross-reference information of a file.
type Table struct {
	entries  map[int]Entry
	Trailer  *raw.DictObj
	Repaired bool
}

func newTable() *Table { return &Table{entries: make(map[int]Entry)} }

func (t *Table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Kind == Free {
		return Entry{}, false
	}
	return e, true
}

func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != Free {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

// add keeps the first entry seen; sections are read newest first.
func (t *Table) add(num int, e Entry) {
	if _, ok := t.entries[num]; !ok {
		t.entries[num] = e
	}
}

const maxSections = 64

// Resolve reads the cross-reference chain starting at startxref. When it is
// missing or damaged the file is scanned with Repair instead.
func Resolve(ctx context.Context, data []byte) (*Table, error) {
	t, err := resolveChain(ctx, data)
	if err == nil {
		return t, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	repaired, rerr := Repair(ctx, data)
	if rerr != nil {
		return nil, fmt.Errorf("%w (repair: %v)", err, rerr)
	}
	return repaired, nil
}

func resolveChain(ctx context.Context, data []byte) (*Table, error) {
	offset, err := startXref(data)
	if err != nil {
		return nil, err
	}
	t := newTable()
	seen := make(map[int64]bool)
	for i := 0; offset >= 0; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i >= maxSections || seen[offset] {
			break
		}
		seen[offset] = true
		if offset >= int64(len(data)) {
			return nil, fmt.Errorf("xref offset %d out of range", offset)
		}

		var trailer *raw.DictObj
		if bytes.HasPrefix(bytes.TrimLeft(data[offset:], " \t\r\n"), []byte("xref")) {
			trailer, err = readTable(data, offset, t)
			if err == nil {
				if stm, ok := intEntry(trailer, "XRefStm"); ok {
					if _, err := readStream(ctx, data, stm, t); err != nil {
						return nil, fmt.Errorf("hybrid xref stream: %w", err)
					}
				}
			}
		} else {
			trailer, err = readStream(ctx, data, offset, t)
		}
		if err != nil {
			return nil, err
		}
		if t.Trailer == nil {
			t.Trailer = trailer
		}
		prev, ok := intEntry(trailer, "Prev")
		if !ok {
			break
		}
		offset = prev
	}
	if t.Trailer == nil {
		return nil, errors.New("trailer not found")
	}
	if _, ok := t.Trailer.Get("Root"); !ok {
		return nil, errors.New("trailer has no /Root")
	}
	return t, nil
}

func startXref(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	s := scanner.New(data[idx+len("startxref"):])
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, errors.New("startxref has no offset")
	}
	return tok.Int, nil
}

func intEntry(d *raw.DictObj, key string) (int64, bool) {
	o, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := o.(raw.NumberObj)
	return n.Int(), ok
}

// readTable parses a classic "xref" section and its trailer dictionary.
func readTable(data []byte, offset int64, t *Table) (*raw.DictObj, error) {
	s := scanner.New(data)
	s.Seek(offset)
	if tok, err := s.Next(); err != nil || tok.Str != "xref" {
		return nil, errors.New("xref keyword not found at offset")
	}
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("xref section: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			break
		}
		countTok, err := s.Next()
		if err != nil || tok.Type != scanner.TokenNumber || countTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("invalid xref subsection header at %d", tok.Pos)
		}
		start, count := int(tok.Int), int(countTok.Int)
		for i := 0; i < count; i++ {
			off, err1 := s.Next()
			gen, err2 := s.Next()
			kind, err3 := s.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, fmt.Errorf("xref entry %d: %w", start+i, err)
			}
			e := Entry{Kind: Free, Gen: int(gen.Int)}
			if kind.Str == "n" {
				e.Kind = InUse
				e.Offset = off.Int
			}
			t.add(start+i, e)
		}
	}
	obj, err := ReadObject(s)
	if err != nil {
		return nil, fmt.Errorf("trailer: %w", err)
	}
	trailer, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("trailer is not a dictionary")
	}
	return trailer, nil
}

// readStream parses a cross-reference stream object at offset.
func readStream(ctx context.Context, data []byte, offset int64, t *Table) (*raw.DictObj, error) {
	_, obj, err := ReadIndirect(data, offset, nil)
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("xref offset does not point at a table or stream")
	}
	if typ, _ := stream.Dict.Name("Type"); typ != "XRef" {
		return nil, errors.New("stream at xref offset is not /Type /XRef")
	}
	body, err := filters.Default().DecodeStream(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}

	widths, err := intArray(stream.Dict, "W")
	if err != nil || len(widths) != 3 {
		return nil, errors.New("xref stream has an invalid /W")
	}
	size, _ := intEntry(stream.Dict, "Size")
	index, err := intArray(stream.Dict, "Index")
	if err != nil || len(index) == 0 {
		index = []int{0, int(size)}
	}
	rowLen := widths[0] + widths[1] + widths[2]
	if rowLen == 0 {
		return nil, errors.New("xref stream has zero-width rows")
	}

	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+rowLen > len(body) {
				return stream.Dict, nil
			}
			row := body[pos : pos+rowLen]
			pos += rowLen
			typ := 1
			if widths[0] > 0 {
				typ = int(field(row[:widths[0]]))
			}
			f2 := field(row[widths[0] : widths[0]+widths[1]])
			f3 := field(row[widths[0]+widths[1]:])
			switch typ {
			case 0:
				t.add(start+j, Entry{Kind: Free})
			case 1:
				t.add(start+j, Entry{Kind: InUse, Offset: f2, Gen: int(f3)})
			case 2:
				t.add(start+j, Entry{Kind: Compressed, Stream: int(f2), Index: int(f3)})
			}
		}
	}
	return stream.Dict, nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func intArray(d *raw.DictObj, key string) ([]int, error) {
	o, ok := d.Get(key)
	if !ok {
		return nil, fmt.Errorf("missing /%s", key)
	}
	arr, ok := o.(*raw.ArrayObj)
	if !ok {
		return nil, fmt.Errorf("/%s is not an array", key)
	}
	out := make([]int, 0, arr.Len())
	for _, it := range arr.Items {
		f, ok := raw.Float(it)
		if !ok {
			return nil, fmt.Errorf("/%s holds a non-number", key)
		}
		out = append(out, int(f))
	}
	return out, nil
}

// Repair scans the whole file for "n g obj" headers and trailer
// dictionaries. Later definitions of an object win.
func Repair(ctx context.Context, data []byte) (*Table, error) {
	t := newTable()
	t.Repaired = true
	for i := 0; i < len(data); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		j := bytes.Index(data[i:], []byte("obj"))
		if j < 0 {
			break
		}
		at := i + j
		i = at + 3
		if at+3 < len(data) && isRegularByte(data[at+3]) {
			continue
		}
		if start, num, gen, ok := objectHeader(data, at); ok {
			t.entries[num] = Entry{Kind: InUse, Offset: int64(start), Gen: gen}
		}
	}

	for i := 0; ; {
		j := bytes.Index(data[i:], []byte("trailer"))
		if j < 0 {
			break
		}
		s := scanner.New(data)
		s.Seek(int64(i + j + len("trailer")))
		if obj, err := ReadObject(s); err == nil {
			if d, ok := obj.(*raw.DictObj); ok {
				t.Trailer = d
			}
		}
		i += j + len("trailer")
	}

	if len(t.entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}
	if t.Trailer == nil || !hasKey(t.Trailer, "Root") {
		root, ok := findCatalog(data, t)
		if !ok {
			return nil, errors.New("repair failed: no document catalog")
		}
		if t.Trailer == nil {
			t.Trailer = raw.Dict()
		}
		t.Trailer.Set("Root", raw.Ref(root.Num, root.Gen))
	}
	return t, nil
}

func hasKey(d *raw.DictObj, key string) bool {
	_, ok := d.Get(key)
	return ok
}

func findCatalog(data []byte, t *Table) (raw.ObjectRef, bool) {
	for _, num := range t.Objects() {
		e := t.entries[num]
		_, obj, err := ReadIndirect(data, e.Offset, nil)
		if err != nil {
			continue
		}
		if d, ok := obj.(*raw.DictObj); ok {
			if typ, _ := d.Name("Type"); typ == "Catalog" {
				return raw.ObjectRef{Num: num, Gen: e.Gen}, true
			}
		}
	}
	return raw.ObjectRef{}, false
}

// objectHeader walks back from the "obj" keyword at pos over "num gen ".
func objectHeader(data []byte, pos int) (start, num, gen int, ok bool) {
	i := pos
	skipSpace := func() {
		for i > 0 && isSpaceByte(data[i-1]) {
			i--
		}
	}
	readInt := func() (int, bool) {
		end := i
		for i > 0 && data[i-1] >= '0' && data[i-1] <= '9' {
			i--
		}
		if i == end {
			return 0, false
		}
		v, err := strconv.Atoi(string(data[i:end]))
		return v, err == nil
	}
	skipSpace()
	if i == pos {
		return 0, 0, 0, false
	}
	gen, ok = readInt()
	if !ok {
		return 0, 0, 0, false
	}
	mid := i
	skipSpace()
	if i == mid {
		return 0, 0, 0, false
	}
	num, ok = readInt()
	if !ok || (i > 0 && isRegularByte(data[i-1])) {
		return 0, 0, 0, false
	}
	return i, num, gen, true
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isRegularByte(c byte) bool {
	if isSpaceByte(c) {
		return false
	}
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}
