// Package pagesize maps named paper sizes to PDF point dimensions and
// classifies arbitrary dimensions back to the nearest named size.
package pagesize

import (
	"fmt"
	"math"
	"strings"
)

// Kind enumerates the supported paper sizes.
type Kind int

const (
	KindA4 Kind = iota
	KindA3
	KindA5
	KindLetter
	KindLegal
	KindTabloid
	KindCustom
)

// Tolerance is the absolute difference, in points, accepted on each axis
// when classifying dimensions.
const Tolerance = 1.0

// Size is a paper size. Width and Height are only meaningful for KindCustom;
// named kinds always resolve through the catalog.
type Size struct {
	Kind   Kind
	Width  float64
	Height float64
}

// Named sizes.
var (
	A4      = Size{Kind: KindA4}
	A3      = Size{Kind: KindA3}
	A5      = Size{Kind: KindA5}
	Letter  = Size{Kind: KindLetter}
	Legal   = Size{Kind: KindLegal}
	Tabloid = Size{Kind: KindTabloid}
)

type entry struct {
	kind          Kind
	name          string
	width, height float64
}

// catalog is in classification order; first match wins.
var catalog = []entry{
	{KindA4, "A4", 595.276, 841.890},
	{KindA3, "A3", 841.890, 1190.551},
	{KindA5, "A5", 419.528, 595.276},
	{KindLetter, "Letter", 612, 792},
	{KindLegal, "Legal", 612, 1008},
	{KindTabloid, "Tabloid", 792, 1224},
}

// Custom returns a custom size carrying explicit dimensions.
func Custom(width, height float64) Size {
	return Size{Kind: KindCustom, Width: width, Height: height}
}

// Dimensions returns the width and height of size in points.
func Dimensions(size Size) (width, height float64) {
	for _, e := range catalog {
		if e.kind == size.Kind {
			return e.width, e.height
		}
	}
	return size.Width, size.Height
}

// Classify returns the first named size within Tolerance of (width, height)
// on both axes, or a custom size carrying the input dimensions.
func Classify(width, height float64) Size {
	for _, e := range catalog {
		if math.Abs(e.width-width) <= Tolerance && math.Abs(e.height-height) <= Tolerance {
			return Size{Kind: e.kind}
		}
	}
	return Custom(width, height)
}

// Named returns all named sizes in classification order.
func Named() []Size {
	out := make([]Size, 0, len(catalog))
	for _, e := range catalog {
		out = append(out, Size{Kind: e.kind})
	}
	return out
}

// Parse resolves a case-insensitive size name such as "a4" or "letter".
func Parse(name string) (Size, error) {
	n := strings.TrimSpace(name)
	for _, e := range catalog {
		if strings.EqualFold(e.name, n) {
			return Size{Kind: e.kind}, nil
		}
	}
	return Size{}, fmt.Errorf("unknown page size %q", name)
}

// Landscape returns a custom size with the axes of s swapped.
func (s Size) Landscape() Size {
	w, h := Dimensions(s)
	return Custom(h, w)
}

func (k Kind) String() string {
	for _, e := range catalog {
		if e.kind == k {
			return e.name
		}
	}
	if k == KindCustom {
		return "Custom"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (s Size) String() string {
	if s.Kind == KindCustom {
		return fmt.Sprintf("Custom(%gx%g)", s.Width, s.Height)
	}
	return s.Kind.String()
}
