package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/pdferr"
)

type impl struct{}

func (w *impl) Write(ctx context.Context, doc *Document, out io.Writer, cfg Config) error {
	if doc == nil {
		return pdferr.Invalid("writer.Write", "document is nil")
	}
	if err := pdferr.CheckContext(ctx, "writer.Write"); err != nil {
		return err
	}

	b := newObjectBuilder(cfg)
	catalog, info, err := b.build(ctx, doc)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-" + version(cfg) + "\n%\xE2\xE3\xCF\xD3\n")

	objects := b.sorted()
	offsets := make([]int, b.next)
	var scratch []byte
	for _, o := range objects {
		offsets[o.ref.Num] = buf.Len()
		scratch = appendObject(scratch[:0], o.ref, o.obj)
		buf.Write(scratch)
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", b.next)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num < b.next; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}

	id := fileID(doc, cfg)
	trailer := raw.Dict()
	trailer.Set("Size", raw.NumberInt(int64(b.next)))
	trailer.Set("Root", raw.Ref(catalog.Num, catalog.Gen))
	trailer.Set("Info", raw.Ref(info.Num, info.Gen))
	trailer.Set("ID", raw.NewArray(
		raw.StringObj{Bytes: id[0], Hex: true},
		raw.StringObj{Bytes: id[1], Hex: true},
	))
	buf.WriteString("trailer\n")
	buf.Write(appendPrimitive(nil, trailer))
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%EOF\n", xrefOffset)

	if err := pdferr.CheckContext(ctx, "writer.Write"); err != nil {
		return err
	}
	_, err = out.Write(buf.Bytes())
	return err
}
