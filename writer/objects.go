package writer

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/pdfcompose/images"
	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/pdferr"
)

type object struct {
	ref raw.ObjectRef
	obj raw.Object
}

// objectBuilder assigns object numbers and collects the indirect objects of
// one document.
type objectBuilder struct {
	cfg     Config
	objects []object
	next    int
	fonts   map[string]raw.ObjectRef
	images  map[*images.Image]raw.ObjectRef
	streams map[*raw.StreamObj]raw.ObjectRef
}

func newObjectBuilder(cfg Config) *objectBuilder {
	return &objectBuilder{
		cfg:     cfg,
		next:    1,
		fonts:   make(map[string]raw.ObjectRef),
		images:  make(map[*images.Image]raw.ObjectRef),
		streams: make(map[*raw.StreamObj]raw.ObjectRef),
	}
}

func (b *objectBuilder) reserve() raw.ObjectRef {
	ref := raw.ObjectRef{Num: b.next}
	b.next++
	return ref
}

func (b *objectBuilder) set(ref raw.ObjectRef, obj raw.Object) {
	b.objects = append(b.objects, object{ref: ref, obj: obj})
}

func (b *objectBuilder) add(obj raw.Object) raw.ObjectRef {
	ref := b.reserve()
	b.set(ref, obj)
	return ref
}

func (b *objectBuilder) sorted() []object {
	out := append([]object(nil), b.objects...)
	sort.Slice(out, func(i, j int) bool { return out[i].ref.Num < out[j].ref.Num })
	return out
}

// build turns doc into indirect objects and returns the catalog and info
// references.
func (b *objectBuilder) build(ctx context.Context, doc *Document) (catalog, info raw.ObjectRef, err error) {
	catalog = b.reserve()
	pagesRef := b.reserve()

	kids := raw.NewArray()
	for i := range doc.Pages {
		if err := pdferr.CheckContext(ctx, "writer.Write"); err != nil {
			return catalog, info, err
		}
		ref, err := b.page(&doc.Pages[i], pagesRef)
		if err != nil {
			return catalog, info, fmt.Errorf("page %d: %w", i, err)
		}
		kids.Append(raw.Ref(ref.Num, ref.Gen))
	}

	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", kids)
	pages.Set("Count", raw.NumberInt(int64(kids.Len())))
	b.set(pagesRef, pages)

	cat := raw.Dict()
	cat.Set("Type", raw.NameLiteral("Catalog"))
	cat.Set("Pages", raw.Ref(pagesRef.Num, pagesRef.Gen))
	b.set(catalog, cat)

	info = b.add(b.infoDict(doc.Info))
	return catalog, info, nil
}

func (b *objectBuilder) page(p *Page, parent raw.ObjectRef) (raw.ObjectRef, error) {
	res := raw.Dict()
	if p.Resources != nil {
		res = b.importObject(p.Resources).(*raw.DictObj)
	}
	if len(p.Fonts) > 0 {
		fonts := subDict(res, "Font")
		for _, name := range sortedKeys(p.Fonts) {
			ref := b.font(p.Fonts[name])
			fonts.Set(name, raw.Ref(ref.Num, ref.Gen))
		}
	}
	if len(p.Images) > 0 {
		xobjects := subDict(res, "XObject")
		for _, name := range sortedKeys(p.Images) {
			ref, err := b.image(p.Images[name])
			if err != nil {
				return raw.ObjectRef{}, fmt.Errorf("image %s: %w", name, err)
			}
			xobjects.Set(name, raw.Ref(ref.Num, ref.Gen))
		}
	}

	if len(p.ExtGStates) > 0 {
		states := subDict(res, "ExtGState")
		for _, name := range sortedKeys(p.ExtGStates) {
			gs := raw.Dict()
			gs.Set("Type", raw.NameLiteral("ExtGState"))
			gs.Set("ca", raw.Number(p.ExtGStates[name]))
			gs.Set("CA", raw.Number(p.ExtGStates[name]))
			states.Set(name, gs)
		}
	}

	content, err := b.stream(raw.Dict(), p.Content)
	if err != nil {
		return raw.ObjectRef{}, err
	}
	contentRef := b.add(content)

	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("Page"))
	dict.Set("Parent", raw.Ref(parent.Num, parent.Gen))
	dict.Set("MediaBox", raw.Rect(0, 0, p.Width, p.Height))
	if p.Rotate != 0 {
		dict.Set("Rotate", raw.NumberInt(int64(p.Rotate)))
	}
	dict.Set("Resources", res)
	dict.Set("Contents", raw.Ref(contentRef.Num, contentRef.Gen))
	return b.add(dict), nil
}

// font returns the shared font dictionary for a standard 14 font.
func (b *objectBuilder) font(baseFont string) raw.ObjectRef {
	if ref, ok := b.fonts[baseFont]; ok {
		return ref
	}
	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("Font"))
	dict.Set("Subtype", raw.NameLiteral("Type1"))
	dict.Set("BaseFont", raw.NameLiteral(baseFont))
	if baseFont != "Symbol" && baseFont != "ZapfDingbats" {
		dict.Set("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	}
	ref := b.add(dict)
	b.fonts[baseFont] = ref
	return ref
}

func (b *objectBuilder) image(img *images.Image) (raw.ObjectRef, error) {
	if ref, ok := b.images[img]; ok {
		return ref, nil
	}
	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("XObject"))
	dict.Set("Subtype", raw.NameLiteral("Image"))
	dict.Set("Width", raw.NumberInt(int64(img.Width)))
	dict.Set("Height", raw.NumberInt(int64(img.Height)))
	dict.Set("ColorSpace", raw.NameLiteral(img.ColorSpace))
	dict.Set("BitsPerComponent", raw.NumberInt(int64(img.BitsPerComponent)))
	if len(img.Decode) > 0 {
		arr := raw.NewArray()
		for _, v := range img.Decode {
			arr.Append(raw.Number(v))
		}
		dict.Set("Decode", arr)
	}
	if img.SMask != nil {
		mask, err := b.image(img.SMask)
		if err != nil {
			return raw.ObjectRef{}, err
		}
		dict.Set("SMask", raw.Ref(mask.Num, mask.Gen))
	}

	var obj *raw.StreamObj
	if img.Filter != "" {
		dict.Set("Filter", raw.NameLiteral(img.Filter))
		obj = raw.NewStream(dict, img.Data)
	} else {
		var err error
		if obj, err = b.stream(dict, img.Data); err != nil {
			return raw.ObjectRef{}, err
		}
	}
	ref := b.add(obj)
	b.images[img] = ref
	return ref, nil
}

// stream wraps data, compressing it when the config asks for it.
func (b *objectBuilder) stream(dict *raw.DictObj, data []byte) (*raw.StreamObj, error) {
	if !b.cfg.Compress || len(data) == 0 {
		return raw.NewStream(dict, data), nil
	}
	compressed, err := flateEncode(data)
	if err != nil {
		return nil, err
	}
	dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	return raw.NewStream(dict, compressed), nil
}

// importObject deep-copies a resource tree loaded from another file. Streams
// become indirect objects, shared streams are written once.
func (b *objectBuilder) importObject(o raw.Object) raw.Object {
	switch v := o.(type) {
	case *raw.DictObj:
		out := raw.Dict()
		for _, k := range v.Keys() {
			out.Set(k, b.importObject(v.KV[k]))
		}
		return out
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, it := range v.Items {
			out.Append(b.importObject(it))
		}
		return out
	case *raw.StreamObj:
		if ref, ok := b.streams[v]; ok {
			return raw.Ref(ref.Num, ref.Gen)
		}
		ref := b.reserve()
		b.streams[v] = ref
		var dict *raw.DictObj
		if v.Dict != nil {
			dict = b.importObject(v.Dict).(*raw.DictObj)
		} else {
			dict = raw.Dict()
		}
		b.set(ref, raw.NewStream(dict, v.Data))
		return raw.Ref(ref.Num, ref.Gen)
	case raw.RefObj:
		// References are resolved by the parser; anything left dangles.
		return raw.NullObj{}
	case nil:
		return raw.NullObj{}
	default:
		return v
	}
}

func (b *objectBuilder) infoDict(info Info) *raw.DictObj {
	dict := raw.Dict()
	producer := info.Producer
	if producer == "" {
		producer = b.cfg.Producer
	}
	for _, kv := range []struct{ key, val string }{
		{"Title", info.Title},
		{"Author", info.Author},
		{"Subject", info.Subject},
		{"Keywords", info.Keywords},
		{"Creator", info.Creator},
		{"Producer", producer},
	} {
		if kv.val != "" {
			dict.Set(kv.key, textString(kv.val))
		}
	}
	if !b.cfg.Deterministic {
		dict.Set("CreationDate", raw.Str([]byte(pdfDate(time.Now()))))
	}
	return dict
}

// textString encodes s as a PDF text string: plain bytes for ASCII, UTF-16BE
// with a byte order mark otherwise.
func textString(s string) raw.StringObj {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return raw.Str([]byte(s))
	}
	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return raw.Str([]byte(s))
	}
	return raw.StringObj{Bytes: out, Hex: true}
}

func pdfDate(t time.Time) string {
	return "D:" + t.UTC().Format("20060102150405") + "Z"
}

// fileID returns the two halves of the trailer /ID. Deterministic output
// derives them from the document content.
func fileID(doc *Document, cfg Config) [2][]byte {
	if !cfg.Deterministic {
		id := uuid.New()
		return [2][]byte{id[:], id[:]}
	}
	h := sha256.New()
	h.Write([]byte(version(cfg)))
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%d", doc.Info.Title, doc.Info.Author, doc.Info.Subject,
		doc.Info.Keywords, doc.Info.Creator, len(doc.Pages))
	for _, p := range doc.Pages {
		fmt.Fprintf(h, "|%g:%g", p.Width, p.Height)
		h.Write(p.Content)
	}
	id := uuid.NewSHA1(uuid.NameSpaceOID, h.Sum(nil))
	return [2][]byte{id[:], id[:]}
}

func flateEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func subDict(parent *raw.DictObj, key string) *raw.DictObj {
	if o, ok := parent.Get(key); ok {
		if d, ok := o.(*raw.DictObj); ok {
			return d
		}
	}
	d := raw.Dict()
	parent.Set(key, d)
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
