package graphics

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/wudi/pdfcompose/pdferr"
)

// CallKind identifies a recorded primitive.
type CallKind int

const (
	CallText CallKind = iota
	CallImage
	CallLine
	CallRect
	CallEllipse
)

func (k CallKind) String() string {
	switch k {
	case CallText:
		return "text"
	case CallImage:
		return "image"
	case CallLine:
		return "line"
	case CallRect:
		return "rect"
	case CallEllipse:
		return "ellipse"
	}
	return "unknown"
}

// Call is one recorded primitive. Only the fields relevant to Kind are set.
type Call struct {
	Kind      CallKind
	Text      string
	Rect      Rect // text/image position, rect/ellipse bounds
	X2, Y2    float64
	TextStyle TextStyle
	Shape     ShapeStyle
	Color     Color
	Width     float64
	DataLen   int
}

// Recorder is a Surface that keeps the calls made on it in order. It draws
// nothing and measures text with a fixed average glyph width of half the
// font size.
type Recorder struct {
	mu     sync.Mutex
	width  float64
	height float64
	calls  []Call
	closed bool
}

// NewRecorder returns a recorder for a page of the given size.
func NewRecorder(width, height float64) *Recorder {
	return &Recorder{width: width, height: height}
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Reset drops the recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

func (r *Recorder) record(op string, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return pdferr.Closed(op, "surface")
	}
	r.calls = append(r.calls, c)
	return nil
}

// DrawText records a text call whose box is the measured extent.
func (r *Recorder) DrawText(text string, x, y float64, style TextStyle) error {
	w, h, err := r.MeasureText(text, style)
	if err != nil {
		return err
	}
	return r.record("recorder.DrawText", Call{Kind: CallText, Text: text, Rect: Rect{x, y, w, h}, TextStyle: style})
}

// DrawImage records an image call. Only the data length is kept.
func (r *Recorder) DrawImage(data []byte, x, y, width, height float64) error {
	if len(data) == 0 {
		return pdferr.Invalid("recorder.DrawImage", "image data is empty")
	}
	return r.record("recorder.DrawImage", Call{Kind: CallImage, Rect: Rect{x, y, width, height}, DataLen: len(data)})
}

// DrawLine records a line from (x1, y1) to (x2, y2).
func (r *Recorder) DrawLine(x1, y1, x2, y2 float64, color Color, width float64) error {
	return r.record("recorder.DrawLine", Call{Kind: CallLine, Rect: Rect{X: x1, Y: y1}, X2: x2, Y2: y2, Color: color, Width: width})
}

// DrawRect records a rectangle call.
func (r *Recorder) DrawRect(rect Rect, style ShapeStyle) error {
	return r.record("recorder.DrawRect", Call{Kind: CallRect, Rect: rect, Shape: style})
}

// DrawEllipse records an ellipse inscribed in rect.
func (r *Recorder) DrawEllipse(rect Rect, style ShapeStyle) error {
	return r.record("recorder.DrawEllipse", Call{Kind: CallEllipse, Rect: rect, Shape: style})
}

// MeasureText treats every rune as half the font size wide and every line
// as one leading tall.
func (r *Recorder) MeasureText(text string, style TextStyle) (float64, float64, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return 0, 0, pdferr.Closed("recorder.MeasureText", "surface")
	}
	style = style.Normalized()
	lines := strings.Split(text, "\n")
	widest := 0
	for _, l := range lines {
		if n := utf8.RuneCountInString(l); n > widest {
			widest = n
		}
	}
	return float64(widest) * style.Size * 0.5, float64(len(lines)) * style.Leading(), nil
}

// Clone copies the recorder and its calls.
func (r *Recorder) Clone() (Surface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, pdferr.Closed("recorder.Clone", "surface")
	}
	c := &Recorder{width: r.width, height: r.height}
	c.calls = append([]Call(nil), r.calls...)
	return c, nil
}

// Close marks the recorder closed. Later calls fail.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// ExtractText returns the recorded text calls joined by newlines.
func (r *Recorder) ExtractText() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var parts []string
	for _, c := range r.calls {
		if c.Kind == CallText {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// Size returns the page dimensions the recorder was created with.
func (r *Recorder) Size() (width, height float64) { return r.width, r.height }
