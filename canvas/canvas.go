// Package canvas implements graphics.Surface by recording PDF content
// stream operations and the font, image and graphics state resources they
// use. A canvas is turned into a writer.Page when the document is saved.
package canvas

import (
	"crypto/sha256"
	"fmt"
	"math"
	"strings"
	"sync"

	cs "github.com/wudi/pdfcompose/contentstream"
	"github.com/wudi/pdfcompose/coords"
	"github.com/wudi/pdfcompose/fonts"
	"github.com/wudi/pdfcompose/graphics"
	"github.com/wudi/pdfcompose/images"
	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/pdferr"
	"github.com/wudi/pdfcompose/writer"
)

// Resource name prefixes. Names already used by imported resources are
// skipped when allocating.
const (
	fontPrefix  = "PCF"
	imagePrefix = "PCI"
	statePrefix = "PCG"
)

// Option configures a Canvas.
type Option func(*Canvas)

// WithMetrics sets the text measurer. The default is fonts.Default().
func WithMetrics(m *fonts.Metrics) Option {
	return func(c *Canvas) { c.metrics = m }
}

// WithImageOptions passes options to images.Decode for every DrawImage.
func WithImageOptions(opts ...images.Option) Option {
	return func(c *Canvas) { c.imageOpts = opts }
}

// Imported is page content carried over from a parsed file.
type Imported struct {
	Content   []byte
	Resources *raw.DictObj
	// Origin is the lower-left corner of the source media box.
	OriginX, OriginY float64
	Rotate           int
}

// Canvas is a graphics.Surface for one PDF page.
type Canvas struct {
	mu     sync.Mutex
	width  float64
	height float64
	flip   coords.Matrix

	imported *Imported
	ops      []cs.Operation
	texts    []string

	fonts     map[string]string // resource name -> BaseFont
	fontNames map[fonts.Face]string
	images    map[string]*images.Image
	imageKeys map[[sha256.Size]byte]string
	states    map[string]float64
	stateKeys map[float64]string

	metrics   *fonts.Metrics
	imageOpts []images.Option
	closed    bool
}

var _ graphics.Surface = (*Canvas)(nil)
var _ graphics.TextExtractor = (*Canvas)(nil)

// New returns an empty canvas for a page of the given size in points.
func New(width, height float64, opts ...Option) *Canvas {
	c := &Canvas{
		width:     width,
		height:    height,
		flip:      coords.FlipY(height),
		fonts:     make(map[string]string),
		fontNames: make(map[fonts.Face]string),
		images:    make(map[string]*images.Image),
		imageKeys: make(map[[sha256.Size]byte]string),
		states:    make(map[string]float64),
		stateKeys: make(map[float64]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = fonts.Default()
	}
	return c
}

// Import returns a canvas whose existing content is imp. New drawing goes
// on top of it.
func Import(width, height float64, imp Imported, opts ...Option) *Canvas {
	c := New(width, height, opts...)
	c.imported = &imp
	return c
}

// Size returns the page dimensions.
func (c *Canvas) Size() (width, height float64) { return c.width, c.height }

func (c *Canvas) begin(op string) error {
	if c.closed {
		return pdferr.Closed(op, "surface")
	}
	return nil
}

func (c *Canvas) point(x, y float64) (float64, float64) {
	p := c.flip.Transform(coords.Point{X: x, Y: y})
	return p.X, p.Y
}

// DrawText draws text with its first line's box top-left at (x, y). Lines
// are separated by '\n' and advance by the style's leading.
func (c *Canvas) DrawText(text string, x, y float64, style graphics.TextStyle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("canvas.DrawText"); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	style = style.Normalized()
	font := c.fontResource(fonts.FaceFor(style))

	ops := []cs.Operation{cs.Op("q")}
	ops = append(ops, c.alphaOps(style.Color.A)...)
	ops = append(ops,
		cs.Op("BT"),
		cs.Op("Tf", cs.Name(font), cs.Number(style.Size)),
		cs.Op("rg", colorOperands(style.Color)...),
	)
	for i, line := range strings.Split(text, "\n") {
		bx, by := c.point(x, y+style.Size+float64(i)*style.Leading())
		ops = append(ops,
			cs.Op("Tm", cs.Numbers(1, 0, 0, 1, bx, by)...),
			cs.Op("Tj", cs.String(fonts.EncodeWinAnsi(line))),
		)
	}
	ops = append(ops, cs.Op("ET"), cs.Op("Q"))
	c.ops = append(c.ops, ops...)
	c.texts = append(c.texts, text)
	return nil
}

// DrawImage decodes data and paints it into the given box.
func (c *Canvas) DrawImage(data []byte, x, y, width, height float64) error {
	if len(data) == 0 {
		return pdferr.Invalid("canvas.DrawImage", "image data is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("canvas.DrawImage"); err != nil {
		return err
	}
	name, err := c.imageResource(data)
	if err != nil {
		return err
	}
	bx, by := c.point(x, y+height)
	c.ops = append(c.ops,
		cs.Op("q"),
		cs.Op("cm", cs.Numbers(width, 0, 0, height, bx, by)...),
		cs.Op("Do", cs.Name(name)),
		cs.Op("Q"),
	)
	return nil
}

func (c *Canvas) DrawLine(x1, y1, x2, y2 float64, color graphics.Color, width float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("canvas.DrawLine"); err != nil {
		return err
	}
	if width <= 0 {
		width = 1
	}
	ax, ay := c.point(x1, y1)
	bx, by := c.point(x2, y2)
	ops := []cs.Operation{cs.Op("q")}
	ops = append(ops, c.alphaOps(color.A)...)
	ops = append(ops,
		cs.Op("RG", colorOperands(color)...),
		cs.Op("w", cs.Number(width)),
		cs.Op("m", cs.Numbers(ax, ay)...),
		cs.Op("l", cs.Numbers(bx, by)...),
		cs.Op("S"),
		cs.Op("Q"),
	)
	c.ops = append(c.ops, ops...)
	return nil
}

func (c *Canvas) DrawRect(r graphics.Rect, style graphics.ShapeStyle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("canvas.DrawRect"); err != nil {
		return err
	}
	paint, state := c.shapeState(style)
	if paint == "" {
		return nil
	}
	bx, by := c.point(r.X, r.Y+r.Height)
	ops := append([]cs.Operation{cs.Op("q")}, state...)
	ops = append(ops,
		cs.Op("re", cs.Numbers(bx, by, r.Width, r.Height)...),
		cs.Op(paint),
		cs.Op("Q"),
	)
	c.ops = append(c.ops, ops...)
	return nil
}

// DrawEllipse draws the ellipse inscribed in r with four Bézier curves.
func (c *Canvas) DrawEllipse(r graphics.Rect, style graphics.ShapeStyle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("canvas.DrawEllipse"); err != nil {
		return err
	}
	paint, state := c.shapeState(style)
	if paint == "" {
		return nil
	}
	start, segs := coords.Ellipse(r.X, r.Y, r.Width, r.Height)
	ops := append([]cs.Operation{cs.Op("q")}, state...)
	sx, sy := c.point(start.X, start.Y)
	ops = append(ops, cs.Op("m", cs.Numbers(sx, sy)...))
	for _, s := range segs {
		x1, y1 := c.point(s.C1.X, s.C1.Y)
		x2, y2 := c.point(s.C2.X, s.C2.Y)
		x3, y3 := c.point(s.To.X, s.To.Y)
		ops = append(ops, cs.Op("c", cs.Numbers(x1, y1, x2, y2, x3, y3)...))
	}
	ops = append(ops, cs.Op("h"), cs.Op(paint), cs.Op("Q"))
	c.ops = append(c.ops, ops...)
	return nil
}

// MeasureText returns the extent of text in points.
func (c *Canvas) MeasureText(text string, style graphics.TextStyle) (float64, float64, error) {
	c.mu.Lock()
	err := c.begin("canvas.MeasureText")
	c.mu.Unlock()
	if err != nil {
		return 0, 0, err
	}
	return c.metrics.Measure(text, style)
}

// Clone copies the canvas, including the imported content.
func (c *Canvas) Clone() (graphics.Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("canvas.Clone"); err != nil {
		return nil, err
	}
	n := New(c.width, c.height, WithMetrics(c.metrics), WithImageOptions(c.imageOpts...))
	n.imported = c.imported
	n.ops = append([]cs.Operation(nil), c.ops...)
	n.texts = append([]string(nil), c.texts...)
	for k, v := range c.fonts {
		n.fonts[k] = v
	}
	for k, v := range c.fontNames {
		n.fontNames[k] = v
	}
	for k, v := range c.images {
		n.images[k] = v
	}
	for k, v := range c.imageKeys {
		n.imageKeys[k] = v
	}
	for k, v := range c.states {
		n.states[k] = v
	}
	for k, v := range c.stateKeys {
		n.stateKeys[k] = v
	}
	return n, nil
}

// Close releases the canvas. Closing twice is a no-op.
func (c *Canvas) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.ops = nil
	c.imported = nil
	return nil
}

// ExtractText returns the text of the imported content followed by the
// text drawn on the canvas, one entry per line.
func (c *Canvas) ExtractText() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("canvas.ExtractText"); err != nil {
		return "", err
	}
	var parts []string
	if c.imported != nil && len(c.imported.Content) > 0 {
		// Keep whatever parsed before a syntax error.
		ops, _ := cs.Parse(c.imported.Content)
		if t := cs.ExtractText(ops, fonts.DecodeWinAnsi); t != "" {
			parts = append(parts, t)
		}
	}
	parts = append(parts, c.texts...)
	return strings.Join(parts, "\n"), nil
}

// Page returns the canvas as a page for the writer.
func (c *Canvas) Page() (writer.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("canvas.Page"); err != nil {
		return writer.Page{}, err
	}
	p := writer.Page{
		Width:      c.width,
		Height:     c.height,
		Fonts:      copyMap(c.fonts),
		Images:     copyMap(c.images),
		ExtGStates: copyMap(c.states),
	}
	var content []byte
	if c.imported != nil {
		p.Resources = c.imported.Resources
		p.Rotate = c.imported.Rotate
		pre := []cs.Operation{cs.Op("q")}
		if c.imported.OriginX != 0 || c.imported.OriginY != 0 {
			pre = append(pre, cs.Op("cm", cs.Numbers(1, 0, 0, 1, -c.imported.OriginX, -c.imported.OriginY)...))
		}
		content = append(content, cs.Encode(pre)...)
		content = append(content, c.imported.Content...)
		content = append(content, "\nQ\n"...)
	}
	p.Content = append(content, cs.Encode(c.ops)...)
	return p, nil
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// shapeState returns the painting operator and the state operations for
// style. An empty operator means nothing is painted.
func (c *Canvas) shapeState(style graphics.ShapeStyle) (string, []cs.Operation) {
	var ops []cs.Operation
	alpha := 1.0
	if style.Fill != nil {
		ops = append(ops, cs.Op("rg", colorOperands(*style.Fill)...))
		alpha = style.Fill.A
	}
	if style.Stroke != nil {
		width := style.StrokeWidth
		if width <= 0 {
			width = 1
		}
		ops = append(ops, cs.Op("RG", colorOperands(*style.Stroke)...), cs.Op("w", cs.Number(width)))
		if style.Fill == nil {
			alpha = style.Stroke.A
		}
	}
	ops = append(c.alphaOps(alpha), ops...)
	switch {
	case style.Fill != nil && style.Stroke != nil:
		return "B", ops
	case style.Fill != nil:
		return "f", ops
	case style.Stroke != nil:
		return "S", ops
	}
	return "", nil
}

// alphaOps selects a graphics state for translucent colors. A zero alpha
// is treated as opaque, matching the zero value of graphics.Color.
func (c *Canvas) alphaOps(a float64) []cs.Operation {
	if a <= 0 || a >= 1 {
		return nil
	}
	a = math.Round(a*1000) / 1000
	name, ok := c.stateKeys[a]
	if !ok {
		name = c.allocate(statePrefix, "ExtGState", func(n string) bool { _, used := c.states[n]; return used })
		c.states[name] = a
		c.stateKeys[a] = name
	}
	return []cs.Operation{cs.Op("gs", cs.Name(name))}
}

func (c *Canvas) fontResource(face fonts.Face) string {
	if name, ok := c.fontNames[face]; ok {
		return name
	}
	name := c.allocate(fontPrefix, "Font", func(n string) bool { _, used := c.fonts[n]; return used })
	c.fonts[name] = face.BaseFont()
	c.fontNames[face] = name
	return name
}

func (c *Canvas) imageResource(data []byte) (string, error) {
	key := sha256.Sum256(data)
	if name, ok := c.imageKeys[key]; ok {
		return name, nil
	}
	img, err := images.Decode(data, c.imageOpts...)
	if err != nil {
		return "", fmt.Errorf("canvas.DrawImage: %w", err)
	}
	name := c.allocate(imagePrefix, "XObject", func(n string) bool { _, used := c.images[n]; return used })
	c.images[name] = img
	c.imageKeys[key] = name
	return name, nil
}

// allocate returns the first prefixN name unused by the canvas and by the
// imported resource category.
func (c *Canvas) allocate(prefix, category string, used func(string) bool) string {
	var imported *raw.DictObj
	if c.imported != nil && c.imported.Resources != nil {
		if o, ok := c.imported.Resources.Get(category); ok {
			imported, _ = o.(*raw.DictObj)
		}
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s%d", prefix, i)
		if used(name) {
			continue
		}
		if _, taken := imported.Get(name); taken {
			continue
		}
		return name
	}
}

func colorOperands(col graphics.Color) []cs.Operand {
	return cs.Numbers(clamp(col.R), clamp(col.G), clamp(col.B))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
