package table

import (
	"context"

	"github.com/wudi/pdfcompose/graphics"
	"github.com/wudi/pdfcompose/pdferr"
)

// Options configures a layout run.
type Options struct {
	RowHeight          float64
	DefaultColumnWidth float64
	MergeSpans         bool

	// CellPadding and BorderWidth replace the table style's values when set.
	CellPadding *float64
	BorderWidth *float64
}

// Option defines a configuration option for Compute and Draw.
type Option func(*Options)

// WithRowHeight sets the fixed height of every row.
func WithRowHeight(h float64) Option {
	return func(o *Options) {
		o.RowHeight = h
	}
}

// WithDefaultColumnWidth sets the fallback width of columns without an
// explicit width.
func WithDefaultColumnWidth(w float64) Option {
	return func(o *Options) {
		o.DefaultColumnWidth = w
	}
}

// WithSpanMerging makes a cell with ColSpan > 1 cover the widths of the
// columns it spans. Row spans are never merged.
func WithSpanMerging() Option {
	return func(o *Options) {
		o.MergeSpans = true
	}
}

// WithCellPadding draws every table with padding p instead of its
// Style.CellPadding. Negative values are ignored.
func WithCellPadding(p float64) Option {
	return func(o *Options) {
		if p >= 0 {
			o.CellPadding = &p
		}
	}
}

// WithBorderWidth draws every table with border width w instead of its
// Style.BorderWidth. Negative values are ignored.
func WithBorderWidth(w float64) Option {
	return func(o *Options) {
		if w >= 0 {
			o.BorderWidth = &w
		}
	}
}

// style applies the overrides of o to s.
func (o Options) style(s Style) Style {
	if o.CellPadding != nil {
		s.CellPadding = *o.CellPadding
	}
	if o.BorderWidth != nil {
		s.BorderWidth = *o.BorderWidth
	}
	return s
}

func buildOptions(opts []Option) Options {
	o := Options{RowHeight: DefaultRowHeight, DefaultColumnWidth: DefaultColumnWidth}
	for _, opt := range opts {
		opt(&o)
	}
	if o.RowHeight <= 0 {
		o.RowHeight = DefaultRowHeight
	}
	if o.DefaultColumnWidth <= 0 {
		o.DefaultColumnWidth = DefaultColumnWidth
	}
	return o
}

// CellBox is the computed placement of one cell.
type CellBox struct {
	Row, Column int
	Cell        Cell
	Box         graphics.Rect
	Style       graphics.TextStyle

	// TextX, TextY is the padded top-left text origin for left alignment.
	TextX, TextY float64
}

// Geometry is the result of laying out a table without drawing it.
type Geometry struct {
	Columns   []float64 // effective width of each column
	RowHeight float64
	Outer     graphics.Rect
	Cells     []CellBox
}

// Compute lays out t with its top-left corner at (x, y).
func Compute(t *Table, x, y float64, opts ...Option) (Geometry, error) {
	if t == nil {
		return Geometry{}, pdferr.Invalid("table.Compute", "table is nil")
	}
	return compute(t, x, y, buildOptions(opts)), nil
}

func compute(t *Table, x, y float64, o Options) Geometry {
	limit := columnCount(t)
	cols := 0
	for _, row := range t.Rows {
		if n := columnsUsed(row, o.MergeSpans, limit); n > cols {
			cols = n
		}
	}
	widths := make([]float64, cols)
	total := 0.0
	for i := range widths {
		widths[i] = columnWidth(t.ColumnWidths, i, o.DefaultColumnWidth)
		total += widths[i]
	}

	g := Geometry{
		Columns:   widths,
		RowHeight: o.RowHeight,
		Outer:     graphics.Rect{X: x, Y: y, Width: total, Height: float64(len(t.Rows)) * o.RowHeight},
	}
	pad := o.style(t.Style).CellPadding

	curY := y
	for r, row := range t.Rows {
		curX := x
		col := 0
		for _, cell := range row.Cells {
			span := effectiveSpan(cell, col, limit, o.MergeSpans)
			w := 0.0
			for i := col; i < col+span; i++ {
				w += columnWidth(widths, i, o.DefaultColumnWidth)
			}
			g.Cells = append(g.Cells, CellBox{
				Row:    r,
				Column: col,
				Cell:   cell,
				Box:    graphics.Rect{X: curX, Y: curY, Width: w, Height: o.RowHeight},
				Style:  t.resolveStyle(row, cell),
				TextX:  curX + pad,
				TextY:  curY + pad,
			})
			curX += w
			col += span
		}
		curY += o.RowHeight
	}
	return g
}

// columnCount is the number of columns a merged span may cover: the
// declared widths or the longest row, whichever is larger.
func columnCount(t *Table) int {
	n := len(t.ColumnWidths)
	for _, row := range t.Rows {
		if len(row.Cells) > n {
			n = len(row.Cells)
		}
	}
	return n
}

// effectiveSpan is the number of columns cell covers when it starts at col.
// Merged spans are clamped to the columns left of limit, but never below 1.
func effectiveSpan(cell Cell, col, limit int, mergeSpans bool) int {
	if !mergeSpans {
		return 1
	}
	span := cell.Span()
	if left := limit - col; span > left {
		span = left
	}
	if span < 1 {
		span = 1
	}
	return span
}

func columnsUsed(row Row, mergeSpans bool, limit int) int {
	if !mergeSpans {
		return len(row.Cells)
	}
	n := 0
	for _, c := range row.Cells {
		n += effectiveSpan(c, n, limit, true)
	}
	return n
}

func columnWidth(widths []float64, i int, fallback float64) float64 {
	if i >= 0 && i < len(widths) {
		return widths[i]
	}
	return fallback
}

// Draw lays out t at (x, y) and issues the primitive calls on s.
//
// With borders enabled the outer rectangle, including the optional
// background fill, is drawn before any cell so the fill never covers text.
// Each cell then draws its text and, with borders, a stroked rectangle.
// Cancellation is checked once on entry and once per row; rows drawn before
// the cancellation stay on the surface.
func Draw(ctx context.Context, s graphics.Surface, t *Table, x, y float64, opts ...Option) error {
	const op = "table.Draw"
	if t == nil {
		return pdferr.Invalid(op, "table is nil")
	}
	if s == nil {
		return pdferr.Invalid(op, "surface is nil")
	}
	if err := pdferr.CheckContext(ctx, op); err != nil {
		return err
	}
	o := buildOptions(opts)
	g := compute(t, x, y, o)
	st := o.style(t.Style)

	switch {
	case st.ShowBorders:
		border := st.BorderColor
		if err := s.DrawRect(g.Outer, graphics.ShapeStyle{
			Stroke:      &border,
			Fill:        st.Background,
			StrokeWidth: st.BorderWidth,
		}); err != nil {
			return err
		}
	case st.Background != nil:
		if err := s.DrawRect(g.Outer, graphics.ShapeStyle{Fill: st.Background}); err != nil {
			return err
		}
	}

	row := -1
	for _, cb := range g.Cells {
		if cb.Row != row {
			row = cb.Row
			if err := pdferr.CheckContext(ctx, op); err != nil {
				return err
			}
		}
		if err := drawCell(s, st, cb); err != nil {
			return err
		}
	}
	return nil
}

func drawCell(s graphics.Surface, st Style, cb CellBox) error {
	if cb.Cell.Text != "" {
		x := cb.TextX
		if cb.Style.Align == graphics.AlignCenter || cb.Style.Align == graphics.AlignRight {
			tw, _, err := s.MeasureText(cb.Cell.Text, cb.Style)
			if err != nil {
				return err
			}
			avail := cb.Box.Width - 2*st.CellPadding
			if cb.Style.Align == graphics.AlignCenter {
				x += (avail - tw) / 2
			} else {
				x += avail - tw
			}
		}
		if err := s.DrawText(cb.Cell.Text, x, cb.TextY, cb.Style); err != nil {
			return err
		}
	}
	if st.ShowBorders {
		border := st.BorderColor
		return s.DrawRect(cb.Box, graphics.ShapeStyle{Stroke: &border, StrokeWidth: st.BorderWidth})
	}
	return nil
}
