// Package document is the page collection of a PDF being composed. It adds,
// removes, merges and splits pages and serializes them through a Backend.
//
// A Document guards its page list with a read-write mutex: queries such as
// PageCount may run concurrently with each other, mutation is not meant to
// be concurrent. Every blocking operation takes a context and returns an
// error matching pdferr.ErrCanceled once the context is done.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/wudi/pdfcompose/backend"
	"github.com/wudi/pdfcompose/config"
	"github.com/wudi/pdfcompose/graphics"
	"github.com/wudi/pdfcompose/observability"
	"github.com/wudi/pdfcompose/page"
	"github.com/wudi/pdfcompose/pagesize"
	"github.com/wudi/pdfcompose/pdferr"
	"github.com/wudi/pdfcompose/table"
	"github.com/wudi/pdfcompose/writer"
)

// Backend creates page surfaces and converts documents to and from bytes.
type Backend = backend.Backend

// Info is the document metadata.
type Info struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
}

// Options configures a document.
type Options struct {
	Backend Backend
	Config  *config.Config
	Logger  observability.Logger
	Tracer  observability.Tracer
}

// Option defines a configuration option for New and the loaders.
type Option func(*Options)

// WithBackend sets the serialization backend. The default is the PDF
// backend configured from the document config.
func WithBackend(b Backend) Option {
	return func(o *Options) {
		o.Backend = b
	}
}

// WithConfig sets the composition defaults.
func WithConfig(cfg *config.Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithLogger sets the logger for document events.
func WithLogger(l observability.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithTracer sets the tracer that spans document operations.
func WithTracer(t observability.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

func buildOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.Config == nil {
		o.Config = config.Default()
	}
	if o.Logger == nil {
		o.Logger = observability.NopLogger{}
	}
	if o.Tracer == nil {
		o.Tracer = observability.NopTracer()
	}
	if o.Backend == nil {
		o.Backend = backend.New(
			backend.WithWriterConfig(writer.Config{
				Compress:      o.Config.Writer.Compress,
				Deterministic: o.Config.Writer.Deterministic,
				Producer:      o.Config.Writer.Producer,
			}),
			backend.WithLogger(o.Logger),
		)
	}
	return o
}

// Document is an ordered list of pages plus metadata.
type Document struct {
	mu     sync.RWMutex
	pages  []*page.Page
	info   Info
	opts   Options
	closed bool
}

// New returns an empty document.
func New(opts ...Option) *Document {
	return newDocument(buildOptions(opts))
}

func newDocument(o Options) *Document {
	return &Document{opts: o}
}

// Load reads a document from r.
func Load(ctx context.Context, r io.Reader, opts ...Option) (*Document, error) {
	o := buildOptions(opts)
	ctx, span := o.Tracer.StartSpan(ctx, observability.SpanDocumentLoad)
	defer span.Finish()
	if err := pdferr.CheckContext(ctx, "document.Load"); err != nil {
		span.SetError(err)
		return nil, err
	}

	pages, info, err := o.Backend.Decode(ctx, r)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	d := newDocument(o)
	d.info = Info(info)
	for i, bp := range pages {
		p, err := page.New(bp.Width, bp.Height, bp.Surface, d.pageOptions()...)
		if err != nil {
			for _, rest := range pages[i:] {
				rest.Surface.Close()
			}
			d.Close()
			span.SetError(err)
			return nil, fmt.Errorf("document.Load: page %d: %w", i, err)
		}
		d.pages = append(d.pages, p)
	}
	span.SetTag("pages", len(d.pages))
	o.Logger.Debug("document loaded", observability.Int("pages", len(d.pages)))
	return d, nil
}

// FromBytes reads a document from data.
func FromBytes(ctx context.Context, data []byte, opts ...Option) (*Document, error) {
	if len(data) == 0 {
		return nil, pdferr.Invalid("document.FromBytes", "data is empty")
	}
	return Load(ctx, bytes.NewReader(data), opts...)
}

// Open reads the document stored at path. A missing file is reported as
// pdferr.ErrNotFound.
func Open(ctx context.Context, path string, opts ...Option) (*Document, error) {
	const op = "document.Open"
	if path == "" {
		return nil, pdferr.Invalid(op, "path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, pdferr.Wrap(pdferr.NotFound, op, err, "%s does not exist", path)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()
	return Load(ctx, f, opts...)
}

func (d *Document) pageOptions() []page.Option {
	cfg := d.opts.Config
	style := graphics.DefaultTextStyle()
	if cfg.Text.Family != "" {
		style.Family = cfg.Text.Family
	}
	if cfg.Text.Size > 0 {
		style.Size = cfg.Text.Size
	}
	if cfg.Text.LineHeight > 0 {
		style.LineHeight = cfg.Text.LineHeight
	}
	opts := []page.Option{
		page.WithTextStyle(style),
		page.WithTableOptions(
			table.WithRowHeight(cfg.Table.RowHeight),
			table.WithDefaultColumnWidth(cfg.Table.ColumnWidth),
			table.WithCellPadding(cfg.Table.CellPadding),
			table.WithBorderWidth(cfg.Table.BorderWidth),
		),
	}
	if cfg.Page.HeaderMargin > 0 {
		opts = append(opts, page.WithMargin(cfg.Page.HeaderMargin))
	}
	return opts
}

// check must be called with d.mu held.
func (d *Document) check(ctx context.Context, op string) error {
	if d.closed {
		return pdferr.Closed(op, "document")
	}
	return pdferr.CheckContext(ctx, op)
}

// AddPage appends a page of the configured default size, A4 unless the
// config says otherwise.
func (d *Document) AddPage(ctx context.Context) (*page.Page, error) {
	size, err := d.opts.Config.PageSize()
	if err != nil {
		size = pagesize.A4
	}
	return d.AddPageSize(ctx, size)
}

// AddPageSize appends a page of the given size.
func (d *Document) AddPageSize(ctx context.Context, size pagesize.Size) (*page.Page, error) {
	const op = "document.AddPage"
	w, h := pagesize.Dimensions(size)
	if w <= 0 || h <= 0 {
		return nil, pdferr.Invalid(op, "page size %v has no area", size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, op); err != nil {
		return nil, err
	}
	s, err := d.opts.Backend.NewSurface(w, h)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := page.New(w, h, s, d.pageOptions()...)
	if err != nil {
		s.Close()
		return nil, err
	}
	d.pages = append(d.pages, p)
	d.opts.Logger.Debug("page added", observability.Float64("width", w), observability.Float64("height", h))
	return p, nil
}

// RemovePage removes p from the document. Removing a page that is not a
// member is a no-op. The removed page stays usable.
func (d *Document) RemovePage(p *page.Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(context.Background(), "document.RemovePage"); err != nil {
		return err
	}
	for i, q := range d.pages {
		if q == p {
			d.pages = append(d.pages[:i], d.pages[i+1:]...)
			return nil
		}
	}
	return nil
}

// RemovePageAt removes the page at index.
func (d *Document) RemovePageAt(index int) error {
	const op = "document.RemovePageAt"
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(context.Background(), op); err != nil {
		return err
	}
	if index < 0 || index >= len(d.pages) {
		return pdferr.OutOfRange(op, index, len(d.pages))
	}
	d.pages = append(d.pages[:index], d.pages[index+1:]...)
	return nil
}

// Merge appends a copy of every page of other, in order. The pages keep
// their content; other is left unchanged and its metadata is not copied.
// Pages copied before a cancellation stay appended.
func (d *Document) Merge(ctx context.Context, other *Document) (err error) {
	const op = "document.Merge"
	if other == nil {
		return pdferr.Invalid(op, "other document is nil")
	}
	ctx, span := d.opts.Tracer.StartSpan(ctx, observability.SpanDocumentMerge)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	src, err := other.snapshot(op)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(ctx, op); err != nil {
		return err
	}
	for i, p := range src {
		if err := pdferr.CheckContext(ctx, op); err != nil {
			return err
		}
		c, err := p.Clone()
		if err != nil {
			return fmt.Errorf("%s: page %d: %w", op, i, err)
		}
		d.pages = append(d.pages, c)
	}
	span.SetTag("pages", len(src))
	d.opts.Logger.Debug("documents merged", observability.Int("added", len(src)), observability.Int("pages", len(d.pages)))
	return nil
}

// snapshot returns the current page list.
func (d *Document) snapshot(op string) ([]*page.Page, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, pdferr.Closed(op, "document")
	}
	return append([]*page.Page(nil), d.pages...), nil
}

// Split returns one document per page. Each carries this document's
// metadata and options and a copy of one page.
func (d *Document) Split(ctx context.Context) (out []*Document, err error) {
	const op = "document.Split"
	ctx, span := d.opts.Tracer.StartSpan(ctx, observability.SpanDocumentSplit)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.check(ctx, op); err != nil {
		return nil, err
	}
	out = make([]*Document, 0, len(d.pages))
	release := func() {
		for _, doc := range out {
			doc.Close()
		}
	}
	for i, p := range d.pages {
		if err := pdferr.CheckContext(ctx, op); err != nil {
			release()
			return nil, err
		}
		c, err := p.Clone()
		if err != nil {
			release()
			return nil, fmt.Errorf("%s: page %d: %w", op, i, err)
		}
		doc := newDocument(d.opts)
		doc.info = d.info
		doc.pages = []*page.Page{c}
		out = append(out, doc)
	}
	span.SetTag("documents", len(out))
	return out, nil
}

// PageCount returns the number of pages. It is zero after Close.
func (d *Document) PageCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.pages)
}

// Page returns the page at index.
func (d *Document) Page(index int) (*page.Page, error) {
	const op = "document.Page"
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.check(context.Background(), op); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(d.pages) {
		return nil, pdferr.OutOfRange(op, index, len(d.pages))
	}
	return d.pages[index], nil
}

// Pages returns a copy of the page list. A closed document has no pages.
func (d *Document) Pages() []*page.Page {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*page.Page(nil), d.pages...)
}

// Info returns the document metadata, or the zero Info once the document
// is closed.
func (d *Document) Info() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return Info{}
	}
	return d.info
}

func (d *Document) updateInfo(op string, update func(*Info)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(context.Background(), op); err != nil {
		return err
	}
	update(&d.info)
	return nil
}

// SetInfo replaces all metadata fields.
func (d *Document) SetInfo(info Info) error {
	return d.updateInfo("document.SetInfo", func(i *Info) { *i = info })
}

// SetTitle sets the document title.
func (d *Document) SetTitle(title string) error {
	return d.updateInfo("document.SetTitle", func(i *Info) { i.Title = title })
}

// SetAuthor sets the document author.
func (d *Document) SetAuthor(author string) error {
	return d.updateInfo("document.SetAuthor", func(i *Info) { i.Author = author })
}

// SetSubject sets the document subject.
func (d *Document) SetSubject(subject string) error {
	return d.updateInfo("document.SetSubject", func(i *Info) { i.Subject = subject })
}

// SetKeywords sets the document keywords.
func (d *Document) SetKeywords(keywords string) error {
	return d.updateInfo("document.SetKeywords", func(i *Info) { i.Keywords = keywords })
}

// WriteTo serializes the document to w.
func (d *Document) WriteTo(ctx context.Context, w io.Writer) (err error) {
	const op = "document.WriteTo"
	ctx, span := d.opts.Tracer.StartSpan(ctx, observability.SpanDocumentSave)
	defer func() {
		if err != nil {
			span.SetError(err)
		}
		span.Finish()
	}()

	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.check(ctx, op); err != nil {
		return err
	}
	pages := make([]backend.Page, len(d.pages))
	for i, p := range d.pages {
		pages[i] = backend.Page{Width: p.Width(), Height: p.Height(), Surface: p.Surface()}
	}
	span.SetTag("pages", len(pages))
	if err := d.opts.Backend.Encode(ctx, w, pages, backend.Info(d.info)); err != nil {
		d.opts.Logger.Error("encode failed", observability.Error("error", err))
		return err
	}
	return nil
}

// ToBytes serializes the document. Output starts with "%PDF".
func (d *Document) ToBytes(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := d.WriteTo(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the document to path. The file is only created once
// serialization has succeeded.
func (d *Document) Save(ctx context.Context, path string) error {
	const op = "document.Save"
	if path == "" {
		return pdferr.Invalid(op, "path is empty")
	}
	data, err := d.ToBytes(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	d.opts.Logger.Info("document saved", observability.String("path", path), observability.Int("bytes", len(data)))
	return nil
}

// ExtractText returns the text of every page, one page after another. See
// page.Page.ExtractText for pages without extractable text.
func (d *Document) ExtractText(ctx context.Context) (string, error) {
	const op = "document.ExtractText"
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.check(ctx, op); err != nil {
		return "", err
	}
	parts := make([]string, 0, len(d.pages))
	for _, p := range d.pages {
		if err := pdferr.CheckContext(ctx, op); err != nil {
			return "", err
		}
		text, err := p.ExtractText(ctx)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n"), nil
}

// Close closes every page and releases the document. Closing twice is a
// no-op.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	var errs []error
	for _, p := range d.pages {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.pages = nil
	return errors.Join(errs...)
}
