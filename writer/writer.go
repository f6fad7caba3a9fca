// Package writer serializes composed pages and document metadata to PDF.
package writer

import (
	"context"
	"io"

	"github.com/wudi/pdfcompose/images"
	"github.com/wudi/pdfcompose/ir/raw"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF17 PDFVersion = "1.7"
)

// Config controls serialization.
type Config struct {
	Version       PDFVersion
	Compress      bool // FlateDecode content and image streams
	Deterministic bool // omit dates and derive /ID from the content
	Producer      string
}

// Info is the document information dictionary.
type Info struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
	Creator  string
	Producer string
}

// Page is one page ready for serialization.
type Page struct {
	Width, Height float64
	Rotate        int // multiple of 90, written only when non-zero

	// Content is the complete content stream of the page.
	Content []byte

	// Fonts maps resource names to standard font /BaseFont names.
	Fonts map[string]string

	// Images maps resource names to image XObjects.
	Images map[string]*images.Image

	// ExtGStates maps resource names to a constant stroke and fill alpha.
	ExtGStates map[string]float64

	// Resources holds resources carried over from a loaded page. Streams
	// inside it are written as indirect objects.
	Resources *raw.DictObj
}

// Document is the input of Write.
type Document struct {
	Pages []Page
	Info  Info
}

// Writer writes documents.
type Writer interface {
	Write(ctx context.Context, doc *Document, w io.Writer, cfg Config) error
}

// NewWriter returns the default writer.
func NewWriter() Writer { return &impl{} }

func version(cfg Config) string {
	if cfg.Version == "" {
		return string(PDF17)
	}
	return string(cfg.Version)
}
