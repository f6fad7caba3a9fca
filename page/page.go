// Package page holds the geometry of one page and the surface it draws on.
// The helpers are thin compositions of graphics.Surface calls.
package page

import (
	"context"
	"fmt"
	"sync"

	"github.com/wudi/pdfcompose/graphics"
	"github.com/wudi/pdfcompose/pagesize"
	"github.com/wudi/pdfcompose/pdferr"
	"github.com/wudi/pdfcompose/table"
)

const (
	// DefaultMargin is the distance of headers and footers from the page edge.
	DefaultMargin = 50.0

	// DefaultImageSize replaces a missing image width or height.
	DefaultImageSize = 100.0
)

// Options configures a page.
type Options struct {
	Margin    float64
	TextStyle graphics.TextStyle
	Table     []table.Option
}

// Option defines a configuration option for New.
type Option func(*Options)

// WithMargin sets the header and footer margin.
func WithMargin(m float64) Option {
	return func(o *Options) {
		o.Margin = m
	}
}

// WithTextStyle sets the style used when AddText or AddFooter get no style.
func WithTextStyle(s graphics.TextStyle) Option {
	return func(o *Options) {
		o.TextStyle = s
	}
}

// WithTableOptions sets options applied to every AddTable call before the
// call's own options.
func WithTableOptions(opts ...table.Option) Option {
	return func(o *Options) {
		o.Table = append([]table.Option(nil), opts...)
	}
}

// Page is one page of a document. It owns its surface for its whole
// lifetime; Close releases it.
type Page struct {
	mu      sync.Mutex
	width   float64
	height  float64
	surface graphics.Surface
	opts    Options
	closed  bool
}

// New binds surface to a page of the given size. The page takes ownership
// of the surface.
func New(width, height float64, surface graphics.Surface, opts ...Option) (*Page, error) {
	if width <= 0 || height <= 0 {
		return nil, pdferr.Invalid("page.New", "page size %gx%g must be positive", width, height)
	}
	if surface == nil {
		return nil, pdferr.Invalid("page.New", "surface is nil")
	}
	o := Options{Margin: DefaultMargin, TextStyle: graphics.DefaultTextStyle()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Page{width: width, height: height, surface: surface, opts: o}, nil
}

// Width returns the page width in points.
func (p *Page) Width() float64 { return p.width }

// Height returns the page height in points.
func (p *Page) Height() float64 { return p.height }

// Size classifies the page dimensions.
func (p *Page) Size() pagesize.Size { return pagesize.Classify(p.width, p.height) }

// Surface returns the page's surface. Drawing on it directly bypasses the
// page's liveness and cancellation checks.
func (p *Page) Surface() graphics.Surface { return p.surface }

// Closed reports whether Close has been called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close releases the surface. Closing twice is a no-op.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.surface.Close()
}

// Clone returns a new page with the same geometry, options and content.
func (p *Page) Clone() (*Page, error) {
	if err := p.check(context.Background(), "page.Clone"); err != nil {
		return nil, err
	}
	s, err := p.surface.Clone()
	if err != nil {
		return nil, fmt.Errorf("page.Clone: %w", err)
	}
	return &Page{width: p.width, height: p.height, surface: s, opts: p.opts}, nil
}

func (p *Page) check(ctx context.Context, op string) error {
	if p.Closed() {
		return pdferr.Closed(op, "page")
	}
	return pdferr.CheckContext(ctx, op)
}

// AddText draws text with its top-left corner at (x, y). Empty text is a
// no-op; a nil style uses the page's default text style.
func (p *Page) AddText(ctx context.Context, text string, x, y float64, style *graphics.TextStyle) error {
	if err := p.check(ctx, "page.AddText"); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	st := p.opts.TextStyle
	if style != nil {
		st = *style
	}
	return p.surface.DrawText(text, x, y, st)
}

// AddImage draws encoded image data into the given box. A width or height
// that is not positive is replaced by DefaultImageSize.
func (p *Page) AddImage(ctx context.Context, data []byte, x, y, width, height float64) error {
	const op = "page.AddImage"
	if err := p.check(ctx, op); err != nil {
		return err
	}
	if len(data) == 0 {
		return pdferr.Invalid(op, "image data is empty")
	}
	if width <= 0 {
		width = DefaultImageSize
	}
	if height <= 0 {
		height = DefaultImageSize
	}
	return p.surface.DrawImage(data, x, y, width, height)
}

// AddHeader draws text at the margin from the top-left corner, bold and
// larger by default.
func (p *Page) AddHeader(ctx context.Context, text string, style *graphics.TextStyle) error {
	if err := p.check(ctx, "page.AddHeader"); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	st := graphics.HeaderTextStyle()
	if style != nil {
		st = *style
	}
	return p.surface.DrawText(text, p.opts.Margin, p.opts.Margin, st)
}

// AddFooter draws text so that its line box ends at the margin from the
// bottom: y = height - margin - font size.
func (p *Page) AddFooter(ctx context.Context, text string, style *graphics.TextStyle) error {
	if err := p.check(ctx, "page.AddFooter"); err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	st := p.opts.TextStyle
	if style != nil {
		st = *style
	}
	st = st.Normalized()
	return p.surface.DrawText(text, p.opts.Margin, p.height-p.opts.Margin-st.Size, st)
}

// AddTable lays t out with its top-left corner at (x, y). See table.Draw.
func (p *Page) AddTable(ctx context.Context, t *table.Table, x, y float64, opts ...table.Option) error {
	const op = "page.AddTable"
	if err := p.check(ctx, op); err != nil {
		return err
	}
	if t == nil {
		return pdferr.Invalid(op, "table is nil")
	}
	all := append(append([]table.Option(nil), p.opts.Table...), opts...)
	return table.Draw(ctx, p.surface, t, x, y, all...)
}

// DrawLine draws a straight line from (x1, y1) to (x2, y2).
func (p *Page) DrawLine(ctx context.Context, x1, y1, x2, y2 float64, color graphics.Color, width float64) error {
	if err := p.check(ctx, "page.DrawLine"); err != nil {
		return err
	}
	return p.surface.DrawLine(x1, y1, x2, y2, color, width)
}

// DrawRect draws r with the given stroke and fill.
func (p *Page) DrawRect(ctx context.Context, r graphics.Rect, style graphics.ShapeStyle) error {
	if err := p.check(ctx, "page.DrawRect"); err != nil {
		return err
	}
	return p.surface.DrawRect(r, style)
}

// DrawEllipse draws the ellipse inscribed in r.
func (p *Page) DrawEllipse(ctx context.Context, r graphics.Rect, style graphics.ShapeStyle) error {
	if err := p.check(ctx, "page.DrawEllipse"); err != nil {
		return err
	}
	return p.surface.DrawEllipse(r, style)
}

// MeasureText measures text with the page's surface.
func (p *Page) MeasureText(text string, style graphics.TextStyle) (float64, float64, error) {
	if err := p.check(context.Background(), "page.MeasureText"); err != nil {
		return 0, 0, err
	}
	return p.surface.MeasureText(text, style)
}

// ExtractText returns the text drawn on the page when the surface can
// report it. Otherwise, or when the page holds no text, it returns a
// placeholder naming the page geometry, such as "[page 595.28x841.89 A4]".
func (p *Page) ExtractText(ctx context.Context) (string, error) {
	if err := p.check(ctx, "page.ExtractText"); err != nil {
		return "", err
	}
	if te, ok := p.surface.(graphics.TextExtractor); ok {
		text, err := te.ExtractText()
		if err != nil {
			return "", err
		}
		if text != "" {
			return text, nil
		}
	}
	return p.Placeholder(), nil
}

// Placeholder describes the page geometry.
func (p *Page) Placeholder() string {
	return fmt.Sprintf("[page %.2fx%.2f %s]", p.width, p.height, p.Size())
}
