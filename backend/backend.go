// Package backend connects composed pages to PDF bytes. It creates the
// surfaces pages draw on, serializes them with the writer and loads files
// back into drawable pages through the parser.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfcompose/canvas"
	"github.com/wudi/pdfcompose/graphics"
	"github.com/wudi/pdfcompose/observability"
	"github.com/wudi/pdfcompose/parser"
	"github.com/wudi/pdfcompose/pdferr"
	"github.com/wudi/pdfcompose/writer"
)

// Info is the document metadata that travels with the pages.
type Info struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
}

// Page is one page handed to or returned from a backend.
type Page struct {
	Width, Height float64
	Surface       graphics.Surface
}

// Backend is the serialization port of a document.
type Backend interface {
	// NewSurface returns an empty surface for a page of the given size.
	NewSurface(width, height float64) (graphics.Surface, error)

	// Encode writes pages and info to w. Surfaces must come from
	// NewSurface or Decode of the same backend.
	Encode(ctx context.Context, w io.Writer, pages []Page, info Info) error

	// Decode reads a document; each returned page owns a new surface
	// holding the page's existing content.
	Decode(ctx context.Context, r io.Reader) ([]Page, Info, error)
}

// pageSource is implemented by surfaces the PDF backend can serialize.
type pageSource interface {
	Page() (writer.Page, error)
}

// PDF is the PDF backend.
type PDF struct {
	writer       writer.Writer
	writerConfig writer.Config
	parserConfig parser.Config
	canvasOpts   []canvas.Option
	logger       observability.Logger
}

// Option configures the PDF backend.
type Option func(*PDF)

// WithWriterConfig sets the serialization settings.
func WithWriterConfig(cfg writer.Config) Option {
	return func(p *PDF) { p.writerConfig = cfg }
}

// WithParserConfig sets the limits used when loading documents.
func WithParserConfig(cfg parser.Config) Option {
	return func(p *PDF) { p.parserConfig = cfg }
}

// WithCanvasOptions passes options to every surface the backend creates.
func WithCanvasOptions(opts ...canvas.Option) Option {
	return func(p *PDF) { p.canvasOpts = opts }
}

// WithLogger sets the logger for encode and decode events. A nil logger
// is ignored.
func WithLogger(l observability.Logger) Option {
	return func(p *PDF) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a PDF backend. Output is compressed unless a writer config
// says otherwise.
func New(opts ...Option) *PDF {
	p := &PDF{
		writer:       writer.NewWriter(),
		writerConfig: writer.Config{Compress: true, Producer: "pdfcompose"},
		logger:       observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ Backend = (*PDF)(nil)

// NewSurface returns a content stream canvas of the given size.
func (p *PDF) NewSurface(width, height float64) (graphics.Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, pdferr.Invalid("backend.NewSurface", "page size %gx%g must be positive", width, height)
	}
	return canvas.New(width, height, p.canvasOpts...), nil
}

// Encode writes pages and info to w as one PDF file.
func (p *PDF) Encode(ctx context.Context, w io.Writer, pages []Page, info Info) error {
	const op = "backend.Encode"
	if w == nil {
		return pdferr.Invalid(op, "writer is nil")
	}
	doc := &writer.Document{
		Info: writer.Info{
			Title:    info.Title,
			Author:   info.Author,
			Subject:  info.Subject,
			Keywords: info.Keywords,
		},
		Pages: make([]writer.Page, 0, len(pages)),
	}
	for i, pg := range pages {
		if err := pdferr.CheckContext(ctx, op); err != nil {
			return err
		}
		src, ok := pg.Surface.(pageSource)
		if !ok {
			return pdferr.Invalid(op, "page %d: surface %T was not created by this backend", i, pg.Surface)
		}
		wp, err := src.Page()
		if err != nil {
			return fmt.Errorf("%s: page %d: %w", op, i, err)
		}
		wp.Width, wp.Height = pg.Width, pg.Height
		doc.Pages = append(doc.Pages, wp)
	}
	if err := p.writer.Write(ctx, doc, w, p.writerConfig); err != nil {
		return err
	}
	p.logger.Debug("document encoded", observability.Int("pages", len(pages)))
	return nil
}

// Decode parses a PDF file into pages whose surfaces keep the original
// content.
func (p *PDF) Decode(ctx context.Context, r io.Reader) ([]Page, Info, error) {
	const op = "backend.Decode"
	if r == nil {
		return nil, Info{}, pdferr.Invalid(op, "reader is nil")
	}
	doc, err := parser.NewDocumentParser(p.parserConfig).Parse(ctx, r)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, Info{}, pdferr.Wrap(pdferr.Canceled, op, err, "load interrupted")
		}
		return nil, Info{}, fmt.Errorf("%s: %w", op, err)
	}
	if doc.Repaired {
		p.logger.Warn("cross-reference table was damaged, objects recovered by scanning")
	}
	pages := make([]Page, 0, len(doc.Pages))
	for _, pp := range doc.Pages {
		w, h := pp.Width(), pp.Height()
		c := canvas.Import(w, h, canvas.Imported{
			Content:   pp.Content,
			Resources: pp.Resources,
			OriginX:   pp.MediaBox[0],
			OriginY:   pp.MediaBox[1],
			Rotate:    pp.Rotate,
		}, p.canvasOpts...)
		pages = append(pages, Page{Width: w, Height: h, Surface: c})
	}
	info := Info{
		Title:    doc.Info.Title,
		Author:   doc.Info.Author,
		Subject:  doc.Info.Subject,
		Keywords: doc.Info.Keywords,
	}
	p.logger.Debug("document decoded", observability.Int("pages", len(pages)), observability.String("version", doc.Version))
	return pages, info, nil
}
