// Package layout flows content down the pages of a document. It keeps a
// cursor below the top margin, wraps text to the content width and starts a
// new page whenever the next line, row or image would cross the bottom
// margin. Tables are split across pages with optional header repetition.
package layout

import (
	"context"
	"strconv"
	"strings"

	"github.com/wudi/pdfcompose/config"
	"github.com/wudi/pdfcompose/document"
	"github.com/wudi/pdfcompose/graphics"
	"github.com/wudi/pdfcompose/observability"
	"github.com/wudi/pdfcompose/page"
	"github.com/wudi/pdfcompose/pagesize"
	"github.com/wudi/pdfcompose/pdferr"
	"github.com/wudi/pdfcompose/table"
)

// PageNumber is replaced by the page number in header and footer text.
const PageNumber = "{page}"

// Engine lays out content on the pages of one document.
type Engine struct {
	doc *document.Document

	// Configuration
	TextStyle     graphics.TextStyle
	Margins       Margins
	Header        string
	Footer        string
	RepeatHeaders int // table rows repeated at the top of continuation pages
	size          pagesize.Size
	tableOpts     []table.Option
	tracer        observability.Tracer

	// State
	page    *page.Page
	cursorY float64
	pageNum int
}

// Margins defines page margins in points.
type Margins struct {
	Top, Bottom, Left, Right float64
}

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithTextStyle sets the style of paragraphs.
func WithTextStyle(s graphics.TextStyle) Option {
	return func(e *Engine) {
		e.TextStyle = s
	}
}

// WithMargins sets the page margins.
func WithMargins(margins Margins) Option {
	return func(e *Engine) {
		e.Margins = margins
	}
}

// WithPageSize sets the size of pages the engine adds.
func WithPageSize(size pagesize.Size) Option {
	return func(e *Engine) {
		e.size = size
	}
}

// WithHeader draws text as the header of every page the engine adds.
// PageNumber in text is replaced by the page number.
func WithHeader(text string) Option {
	return func(e *Engine) {
		e.Header = text
	}
}

// WithFooter is like WithHeader for the footer.
func WithFooter(text string) Option {
	return func(e *Engine) {
		e.Footer = text
	}
}

// WithRepeatedHeaderRows repeats the first n rows of a table on every page
// it continues on.
func WithRepeatedHeaderRows(n int) Option {
	return func(e *Engine) {
		e.RepeatHeaders = n
	}
}

// WithTableOptions sets options for every table the engine draws.
func WithTableOptions(opts ...table.Option) Option {
	return func(e *Engine) {
		e.tableOpts = opts
	}
}

// WithTracer traces every table the engine draws.
func WithTracer(t observability.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithConfig takes margins, text style, page size and table geometry from
// cfg.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.Margins = Margins{
			Top:    cfg.Layout.MarginTop,
			Bottom: cfg.Layout.MarginBottom,
			Left:   cfg.Layout.MarginLeft,
			Right:  cfg.Layout.MarginRight,
		}
		if cfg.Text.Family != "" {
			e.TextStyle.Family = cfg.Text.Family
		}
		if cfg.Text.Size > 0 {
			e.TextStyle.Size = cfg.Text.Size
		}
		if cfg.Text.LineHeight > 0 {
			e.TextStyle.LineHeight = cfg.Text.LineHeight
		}
		if size, err := cfg.PageSize(); err == nil {
			e.size = size
		}
		e.tableOpts = []table.Option{
			table.WithRowHeight(cfg.Table.RowHeight),
			table.WithDefaultColumnWidth(cfg.Table.ColumnWidth),
			table.WithCellPadding(cfg.Table.CellPadding),
			table.WithBorderWidth(cfg.Table.BorderWidth),
		}
	}
}

// NewEngine creates a layout engine that appends pages to doc.
func NewEngine(doc *document.Document, opts ...Option) *Engine {
	e := &Engine{
		doc:       doc,
		TextStyle: graphics.DefaultTextStyle(),
		Margins: Margins{
			Top:    50,
			Bottom: 50,
			Left:   50,
			Right:  50,
		},
		size:   pagesize.A4,
		tracer: observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Page returns the page being filled, or nil before the first content.
func (e *Engine) Page() *page.Page { return e.page }

// Cursor returns the y position where the next block starts.
func (e *Engine) Cursor() float64 { return e.cursorY }

func (e *Engine) headerSpace() float64 {
	if e.Header == "" {
		return 0
	}
	return graphics.HeaderTextStyle().Leading()
}

func (e *Engine) footerSpace() float64 {
	if e.Footer == "" {
		return 0
	}
	return e.TextStyle.Normalized().Leading()
}

// top and bottom bound the content area of the current page.
func (e *Engine) top() float64 { return e.Margins.Top + e.headerSpace() }

func (e *Engine) bottom() float64 {
	return e.page.Height() - e.Margins.Bottom - e.footerSpace()
}

func (e *Engine) contentWidth() float64 {
	w, _ := pagesize.Dimensions(e.size)
	if e.page != nil {
		w = e.page.Width()
	}
	return w - e.Margins.Left - e.Margins.Right
}

// NewPage adds a page, draws its header and footer and moves the cursor to
// the top margin.
func (e *Engine) NewPage(ctx context.Context) error {
	p, err := e.doc.AddPageSize(ctx, e.size)
	if err != nil {
		return err
	}
	e.page = p
	e.pageNum++
	num := strconv.Itoa(e.pageNum)
	if e.Header != "" {
		if err := p.AddHeader(ctx, strings.ReplaceAll(e.Header, PageNumber, num), nil); err != nil {
			return err
		}
	}
	if e.Footer != "" {
		style := e.TextStyle
		if err := p.AddFooter(ctx, strings.ReplaceAll(e.Footer, PageNumber, num), &style); err != nil {
			return err
		}
	}
	e.cursorY = e.top()
	return nil
}

func (e *Engine) ensurePage(ctx context.Context) error {
	if e.page == nil {
		return e.NewPage(ctx)
	}
	return nil
}

// checkPageBreak starts a new page unless height fits above the bottom
// margin. A page that is still empty is kept even if height does not fit.
func (e *Engine) checkPageBreak(ctx context.Context, height float64) error {
	if e.page == nil {
		return e.NewPage(ctx)
	}
	if e.cursorY+height > e.bottom() && e.cursorY > e.top() {
		return e.NewPage(ctx)
	}
	return nil
}

// Space moves the cursor down by height.
func (e *Engine) Space(ctx context.Context, height float64) error {
	if err := e.ensurePage(ctx); err != nil {
		return err
	}
	e.cursorY += height
	return nil
}

// Rule draws a horizontal line across the content width.
func (e *Engine) Rule(ctx context.Context) error {
	lh := e.TextStyle.Normalized().Leading()
	if err := e.checkPageBreak(ctx, lh); err != nil {
		return err
	}
	y := e.cursorY + lh/2
	if err := e.page.DrawLine(ctx, e.Margins.Left, y, e.Margins.Left+e.contentWidth(), y, graphics.Gray, 0.5); err != nil {
		return err
	}
	e.cursorY += lh
	return nil
}

// Paragraph draws text wrapped to the content width. A nil style uses the
// engine's text style.
func (e *Engine) Paragraph(ctx context.Context, text string, style *graphics.TextStyle) error {
	st := e.TextStyle
	if style != nil {
		st = *style
	}
	return e.Spans(ctx, []Span{{Text: text, Style: st}})
}

// Heading draws a heading; level 1 is twice the text size, 2 one and a half
// times, deeper levels a quarter larger.
func (e *Engine) Heading(ctx context.Context, text string, level int) error {
	return e.Spans(ctx, []Span{{Text: text, Style: e.headingStyle(level)}})
}

func (e *Engine) headingStyle(level int) graphics.TextStyle {
	base := e.TextStyle.Normalized()
	scale := 1.25
	switch level {
	case 1:
		scale = 2
	case 2:
		scale = 1.5
	}
	return base.Bold().WithSize(base.Size * scale)
}

// Image draws encoded image data at the cursor, scaled down to the content
// width when wider.
func (e *Engine) Image(ctx context.Context, data []byte, width, height float64) error {
	if len(data) == 0 {
		return pdferr.Invalid("layout.Image", "image data is empty")
	}
	if width <= 0 {
		width = page.DefaultImageSize
	}
	if height <= 0 {
		height = page.DefaultImageSize
	}
	if err := e.ensurePage(ctx); err != nil {
		return err
	}
	if avail := e.contentWidth(); width > avail {
		height *= avail / width
		width = avail
	}
	if err := e.checkPageBreak(ctx, height); err != nil {
		return err
	}
	if err := e.page.AddImage(ctx, data, e.Margins.Left, e.cursorY, width, height); err != nil {
		return err
	}
	e.cursorY += height
	return nil
}

// Table draws t at the cursor and continues it on new pages when rows run
// past the bottom margin. The first RepeatHeaders rows are drawn again at
// the top of every continuation page.
func (e *Engine) Table(ctx context.Context, t *table.Table, opts ...table.Option) error {
	return e.table(ctx, t, e.RepeatHeaders, e.Margins.Left, opts)
}

func (e *Engine) table(ctx context.Context, t *table.Table, headers int, x float64, opts []table.Option) (err error) {
	const op = "layout.Table"
	if t == nil {
		return pdferr.Invalid(op, "table is nil")
	}
	ctx, span := e.tracer.StartSpan(ctx, observability.SpanTableDraw)
	span.SetTag("rows", len(t.Rows))
	startPage := e.pageNum
	defer func() {
		span.SetTag("new_pages", e.pageNum-startPage)
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()
	all := append(append([]table.Option(nil), e.tableOpts...), opts...)
	g, err := table.Compute(t, 0, 0, all...)
	if err != nil {
		return err
	}
	rowHeight := g.RowHeight
	if headers > len(t.Rows) {
		headers = len(t.Rows)
	}
	if err := e.checkPageBreak(ctx, rowHeight*float64(headers+1)); err != nil {
		return err
	}

	next := 0
	for next < len(t.Rows) {
		if err := pdferr.CheckContext(ctx, op); err != nil {
			return err
		}
		var rows []table.Row
		if next > 0 && headers > 0 {
			rows = append(rows, t.Rows[:headers]...)
			// The repeated prefix already holds header rows the last page cut off.
			if next < headers {
				next = headers
			}
		}
		room := int((e.bottom() - e.cursorY) / rowHeight)
		body := room - len(rows)
		if body < 1 {
			body = 1
		}
		end := next + body
		if end > len(t.Rows) {
			end = len(t.Rows)
		}
		rows = append(rows, t.Slice(next, end).Rows...)
		chunk := &table.Table{Rows: rows, ColumnWidths: t.ColumnWidths, Style: t.Style}
		if err := e.page.AddTable(ctx, chunk, x, e.cursorY, all...); err != nil {
			return err
		}
		e.cursorY += rowHeight * float64(len(rows))
		next = end
		if next < len(t.Rows) {
			if err := e.NewPage(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
