// Package graphics defines the drawing primitives a page's surface exposes.
//
// Coordinates are in points with the origin at the top-left corner of the
// page and y growing downwards. A text position is the top-left corner of
// the first line's box. Backends translate to their native coordinate
// system.
package graphics

// Surface is the drawing capability bound to exactly one page.
// Implementations return an error wrapping pdferr.ErrDisposed once Close
// has been called.
type Surface interface {
	DrawText(text string, x, y float64, style TextStyle) error
	DrawImage(data []byte, x, y, width, height float64) error
	DrawLine(x1, y1, x2, y2 float64, color Color, width float64) error
	DrawRect(r Rect, style ShapeStyle) error
	DrawEllipse(r Rect, style ShapeStyle) error
	MeasureText(text string, style TextStyle) (width, height float64, err error)

	// Clone returns an independent surface with the same geometry and the
	// same content drawn so far.
	Clone() (Surface, error)

	// Close releases the surface.
	Close() error
}

// TextExtractor is implemented by surfaces that can report the text drawn
// on them.
type TextExtractor interface {
	ExtractText() (string, error)
}

// Rect is an axis-aligned rectangle; (X, Y) is the top-left corner.
type Rect struct {
	X, Y, Width, Height float64
}

// ShapeStyle configures stroking and filling of rectangles and ellipses.
// A nil Stroke disables stroking and a nil Fill disables filling.
type ShapeStyle struct {
	Stroke      *Color
	Fill        *Color
	StrokeWidth float64
}

// Color is an RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float64
}

// Common colors.
var (
	Black = Color{A: 1}
	White = Color{R: 1, G: 1, B: 1, A: 1}
	Gray  = Color{R: 0.5, G: 0.5, B: 0.5, A: 1}
)

// RGB returns an opaque color.
func RGB(r, g, b float64) Color { return Color{R: r, G: g, B: b, A: 1} }

// Ptr returns a pointer to a copy of c, for ShapeStyle fields.
func (c Color) Ptr() *Color { return &c }

// Weight is a font weight.
type Weight int

const (
	WeightNormal Weight = iota
	WeightBold
)

// Slant is a font slant.
type Slant int

const (
	SlantNormal Slant = iota
	SlantItalic
)

// Align controls horizontal text alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
	AlignJustify
)

// TextStyle describes how text is drawn. It is a value type; callers build
// a new value to vary styling.
type TextStyle struct {
	Family     string
	Size       float64
	Weight     Weight
	Slant      Slant
	Color      Color
	Align      Align
	LineHeight float64 // multiplier of Size
}

// Default text style values.
const (
	DefaultFamily     = "Arial"
	DefaultFontSize   = 12.0
	DefaultLineHeight = 1.2
	HeaderFontSize    = 16.0
)

// DefaultTextStyle returns 12pt regular opaque black left-aligned Arial with
// line height 1.2.
func DefaultTextStyle() TextStyle {
	return TextStyle{
		Family:     DefaultFamily,
		Size:       DefaultFontSize,
		Weight:     WeightNormal,
		Slant:      SlantNormal,
		Color:      Black,
		Align:      AlignLeft,
		LineHeight: DefaultLineHeight,
	}
}

// HeaderTextStyle returns the bold, larger style used for page headers.
func HeaderTextStyle() TextStyle {
	s := DefaultTextStyle()
	s.Weight = WeightBold
	s.Size = HeaderFontSize
	return s
}

// Bold returns a copy of s with bold weight.
func (s TextStyle) Bold() TextStyle {
	s.Weight = WeightBold
	return s
}

// Italic returns a copy of s with italic slant.
func (s TextStyle) Italic() TextStyle {
	s.Slant = SlantItalic
	return s
}

// WithSize returns a copy of s with the given font size.
func (s TextStyle) WithSize(size float64) TextStyle {
	s.Size = size
	return s
}

// WithAlign returns a copy of s with the given alignment.
func (s TextStyle) WithAlign(a Align) TextStyle {
	s.Align = a
	return s
}

// Normalized fills zero fields of s with the defaults.
func (s TextStyle) Normalized() TextStyle {
	d := DefaultTextStyle()
	if s.Family == "" {
		s.Family = d.Family
	}
	if s.Size <= 0 {
		s.Size = d.Size
	}
	if s.LineHeight <= 0 {
		s.LineHeight = d.LineHeight
	}
	if s.Color == (Color{}) {
		s.Color = d.Color
	}
	return s
}

// Leading returns the distance between baselines of consecutive lines.
func (s TextStyle) Leading() float64 {
	s = s.Normalized()
	return s.Size * s.LineHeight
}
