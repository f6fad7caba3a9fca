// Package parser reads existing PDF files into pages whose content and
// resources can be drawn on again.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/pdfcompose/filters"
	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/xref"
)

var (
	// ErrNotPDF is returned when the input has no %PDF- header.
	ErrNotPDF = errors.New("not a PDF file")
	// ErrEncrypted is returned for files protected by an /Encrypt dictionary.
	ErrEncrypted = errors.New("encrypted documents are not supported")
)

type Config struct {
	MaxIndirectDepth int
	MaxPages         int
	Limits           filters.Limits
}

// Page is one page of a parsed document. Content is the decoded
// concatenation of the page content streams.
type Page struct {
	MediaBox  [4]float64
	Rotate    int
	Content   []byte
	Resources *raw.DictObj
}

func (p Page) Width() float64  { return p.MediaBox[2] - p.MediaBox[0] }
func (p Page) Height() float64 { return p.MediaBox[3] - p.MediaBox[1] }

type Info struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
	Creator  string
	Producer string
}

type Document struct {
	Version  string
	Pages    []Page
	Info     Info
	Repaired bool
}

type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.MaxIndirectDepth <= 0 {
		cfg.MaxIndirectDepth = 64
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100000
	}
	if cfg.Limits.MaxDecompressedSize == 0 {
		cfg.Limits = filters.DefaultLimits
	}
	return &DocumentParser{cfg: cfg}
}

// Parse reads r to the end and parses it.
func (p *DocumentParser) Parse(ctx context.Context, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return p.ParseBytes(ctx, data)
}

func (p *DocumentParser) ParseBytes(ctx context.Context, data []byte) (*Document, error) {
	version, ok := headerVersion(data)
	if !ok {
		return nil, ErrNotPDF
	}
	table, err := xref.Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("xref: %w", err)
	}
	if _, ok := table.Trailer.Get("Encrypt"); ok {
		return nil, ErrEncrypted
	}

	pipeline := filters.NewPipeline([]filters.Decoder{
		filters.NewFlateDecoder(),
		filters.NewLZWDecoder(),
		filters.NewASCII85Decoder(),
		filters.NewASCIIHexDecoder(),
		filters.NewRunLengthDecoder(),
	}, p.cfg.Limits)
	loader := newObjectLoader(data, table, pipeline, p.cfg.MaxIndirectDepth)
	doc := &Document{Version: version, Repaired: table.Repaired}

	rootRef, _ := table.Trailer.Get("Root")
	root, err := loader.Resolve(ctx, rootRef)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	catalog, ok := root.(*raw.DictObj)
	if !ok {
		return nil, errors.New("catalog is not a dictionary")
	}
	if pagesRef, ok := catalog.Get("Pages"); ok {
		w := &pageWalker{loader: loader, pipeline: pipeline, max: p.cfg.MaxPages, seen: make(map[raw.ObjectRef]bool)}
		if err := w.walk(ctx, pagesRef, inherited{mediaBox: defaultMediaBox}, 0); err != nil {
			return nil, err
		}
		doc.Pages = w.pages
	}

	if infoRef, ok := table.Trailer.Get("Info"); ok {
		if obj, err := loader.Resolve(ctx, infoRef); err == nil {
			if d, ok := obj.(*raw.DictObj); ok {
				doc.Info = readInfo(d)
			}
		}
	}
	return doc, nil
}

// US Letter, the default media box of PDF readers.
var defaultMediaBox = [4]float64{0, 0, 612, 792}

type inherited struct {
	mediaBox  [4]float64
	resources raw.Object
	rotate    int
}

type pageWalker struct {
	loader   *objectLoader
	pipeline *filters.Pipeline
	pages    []Page
	max      int
	seen     map[raw.ObjectRef]bool
}

func (w *pageWalker) walk(ctx context.Context, nodeRef raw.Object, inh inherited, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > w.loader.maxDepth {
		return errors.New("page tree too deep")
	}
	if r, ok := nodeRef.(raw.RefObj); ok {
		if w.seen[r.R] {
			return fmt.Errorf("page tree cycle at %s", r.R)
		}
		w.seen[r.R] = true
	}
	obj, err := w.loader.Resolve(ctx, nodeRef)
	if err != nil {
		return err
	}
	node, ok := obj.(*raw.DictObj)
	if !ok {
		return nil
	}

	if box, ok := w.rect(ctx, node, "MediaBox"); ok {
		inh.mediaBox = box
	}
	if res, ok := node.Get("Resources"); ok {
		inh.resources = res
	}
	if rot, ok := node.Get("Rotate"); ok {
		if f, ok := raw.Float(rot); ok {
			inh.rotate = int(f)
		}
	}

	typ, _ := node.Name("Type")
	kidsObj, hasKids := node.Get("Kids")
	if typ == "Pages" || (typ == "" && hasKids) {
		kids, err := w.loader.Resolve(ctx, kidsObj)
		if err != nil {
			return err
		}
		arr, ok := kids.(*raw.ArrayObj)
		if !ok {
			return nil
		}
		for _, kid := range arr.Items {
			if err := w.walk(ctx, kid, inh, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if len(w.pages) >= w.max {
		return fmt.Errorf("document has more than %d pages", w.max)
	}
	page := Page{MediaBox: inh.mediaBox, Rotate: normalizeRotation(inh.rotate)}
	if box, ok := w.rect(ctx, node, "CropBox"); ok && box != page.MediaBox {
		page.MediaBox = intersect(page.MediaBox, box)
	}
	if inh.resources != nil {
		res, err := w.loader.ResolveDeep(ctx, inh.resources)
		if err != nil {
			return fmt.Errorf("page %d resources: %w", len(w.pages), err)
		}
		page.Resources, _ = res.(*raw.DictObj)
	}
	if contents, ok := node.Get("Contents"); ok {
		data, err := w.content(ctx, contents)
		if err != nil {
			return fmt.Errorf("page %d contents: %w", len(w.pages), err)
		}
		page.Content = data
	}
	w.pages = append(w.pages, page)
	return nil
}

func (w *pageWalker) content(ctx context.Context, contents raw.Object) ([]byte, error) {
	obj, err := w.loader.Resolve(ctx, contents)
	if err != nil {
		return nil, err
	}
	var streams []raw.Object
	switch v := obj.(type) {
	case *raw.StreamObj:
		streams = append(streams, v)
	case *raw.ArrayObj:
		streams = v.Items
	}
	var out bytes.Buffer
	for _, s := range streams {
		resolved, err := w.loader.Resolve(ctx, s)
		if err != nil {
			return nil, err
		}
		st, ok := resolved.(*raw.StreamObj)
		if !ok {
			continue
		}
		data, err := w.pipeline.DecodeStream(ctx, st)
		if err != nil {
			return nil, err
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.Write(data)
	}
	return out.Bytes(), nil
}

func (w *pageWalker) rect(ctx context.Context, d *raw.DictObj, key string) ([4]float64, bool) {
	o, ok := d.Get(key)
	if !ok {
		return [4]float64{}, false
	}
	o, err := w.loader.Resolve(ctx, o)
	if err != nil {
		return [4]float64{}, false
	}
	arr, ok := o.(*raw.ArrayObj)
	if !ok || arr.Len() != 4 {
		return [4]float64{}, false
	}
	var r [4]float64
	for i, it := range arr.Items {
		f, ok := raw.Float(it)
		if !ok {
			return [4]float64{}, false
		}
		r[i] = f
	}
	if r[0] > r[2] {
		r[0], r[2] = r[2], r[0]
	}
	if r[1] > r[3] {
		r[1], r[3] = r[3], r[1]
	}
	return r, r[2] > r[0] && r[3] > r[1]
}

func intersect(a, b [4]float64) [4]float64 {
	r := [4]float64{max(a[0], b[0]), max(a[1], b[1]), min(a[2], b[2]), min(a[3], b[3])}
	if r[2] <= r[0] || r[3] <= r[1] {
		return a
	}
	return r
}

func normalizeRotation(rot int) int {
	rot %= 360
	if rot < 0 {
		rot += 360
	}
	if rot%90 != 0 {
		return 0
	}
	return rot
}

func headerVersion(data []byte) (string, bool) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	i := bytes.Index(head, []byte("%PDF-"))
	if i < 0 {
		return "", false
	}
	v := head[i+5:]
	end := 0
	for end < len(v) && end < 4 && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	return string(v[:end]), true
}

func readInfo(d *raw.DictObj) Info {
	return Info{
		Title:    textValue(d, "Title"),
		Author:   textValue(d, "Author"),
		Subject:  textValue(d, "Subject"),
		Keywords: textValue(d, "Keywords"),
		Creator:  textValue(d, "Creator"),
		Producer: textValue(d, "Producer"),
	}
}

// textValue decodes a PDF text string: UTF-16 with a byte order mark, or
// single-byte PDFDocEncoding.
func textValue(d *raw.DictObj, key string) string {
	o, ok := d.Get(key)
	if !ok {
		return ""
	}
	s, ok := o.(raw.StringObj)
	if !ok {
		return ""
	}
	b := s.Bytes
	if len(b) >= 2 && ((b[0] == 0xFE && b[1] == 0xFF) || (b[0] == 0xFF && b[1] == 0xFE)) {
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err == nil {
			return string(out)
		}
	}
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return string(b[3:])
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
