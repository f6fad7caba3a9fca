// Package raw is the PDF object model shared by the writer and the parser.
package raw

import (
	"fmt"
	"sort"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
}

// NameObj is a PDF name without the leading slash.
type NameObj struct{ Val string }

func (n NameObj) Type() string  { return "name" }
func (n NameObj) Value() string { return n.Val }

// NumberObj is an integer or real number.
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string { return "number" }
func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}
func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}
func (n NumberObj) IsInteger() bool { return n.IsInt }

type BoolObj struct{ V bool }

func (b BoolObj) Type() string { return "boolean" }
func (b BoolObj) Value() bool  { return b.V }

type NullObj struct{}

func (NullObj) Type() string { return "null" }

// StringObj is a literal or hexadecimal string.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string  { return "string" }
func (s StringObj) Value() []byte { return s.Bytes }

type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string { return "array" }
func (a *ArrayObj) Get(i int) (Object, bool) {
	if i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}
func (a *ArrayObj) Len() int        { return len(a.Items) }
func (a *ArrayObj) Append(o Object) { a.Items = append(a.Items, o) }

type DictObj struct{ KV map[string]Object }

func (d *DictObj) Type() string { return "dict" }
func (d *DictObj) Get(key string) (Object, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.KV[key]
	return o, ok
}
func (d *DictObj) Set(key string, value Object) {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key] = value
}
func (d *DictObj) Delete(key string) { delete(d.KV, key) }
func (d *DictObj) Len() int          { return len(d.KV) }

// Keys returns the keys in sorted order.
func (d *DictObj) Keys() []string {
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Name returns the value of key if it is a name.
func (d *DictObj) Name(key string) (string, bool) {
	o, _ := d.Get(key)
	n, ok := o.(NameObj)
	return n.Val, ok
}

type StreamObj struct {
	Dict *DictObj
	Data []byte
}

func (s *StreamObj) Type() string { return "stream" }

type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string   { return "ref" }
func (r RefObj) Ref() ObjectRef { return r.R }

// Helpers
func NameLiteral(v string) NameObj                    { return NameObj{Val: v} }
func NumberInt(i int64) NumberObj                     { return NumberObj{I: i, IsInt: true} }
func NumberFloat(f float64) NumberObj                 { return NumberObj{F: f} }
func Bool(v bool) BoolObj                             { return BoolObj{V: v} }
func Str(bytes []byte) StringObj                      { return StringObj{Bytes: bytes} }
func NewArray(items ...Object) *ArrayObj              { return &ArrayObj{Items: items} }
func Dict() *DictObj                                  { return &DictObj{KV: make(map[string]Object)} }
func NewStream(dict *DictObj, data []byte) *StreamObj { return &StreamObj{Dict: dict, Data: data} }
func Ref(num, gen int) RefObj                         { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }

// Number returns a NumberObj holding f, as an integer when f is integral.
func Number(f float64) NumberObj {
	if f == float64(int64(f)) {
		return NumberInt(int64(f))
	}
	return NumberFloat(f)
}

// Rect builds a [llx lly urx ury] array.
func Rect(llx, lly, urx, ury float64) *ArrayObj {
	return NewArray(Number(llx), Number(lly), Number(urx), Number(ury))
}

// Float returns the numeric value of o.
func Float(o Object) (float64, bool) {
	n, ok := o.(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

// Resolver resolves indirect references.
type Resolver interface {
	Resolve(o Object) (Object, error)
}
