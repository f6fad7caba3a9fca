package parser

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/writer"
)

// buildPDF writes objects numbered from 1 with a classic xref table.
func buildPDF(objects []string, trailer string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	offsets := make([]int, len(objects))
	for i, o := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xrefOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n%s\nstartxref\n%d\n%%%%EOF\n", trailer, xrefOff)
	return buf.Bytes()
}

func parse(t *testing.T, data []byte) *Document {
	t.Helper()
	doc, err := NewDocumentParser(Config{}).ParseBytes(context.Background(), data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestParseWriterOutput(t *testing.T) {
	in := &writer.Document{
		Info: writer.Info{Title: "Quarterly Größen", Author: "ops"},
		Pages: []writer.Page{
			{Width: 595.28, Height: 841.89, Content: []byte("BT /PCF1 12 Tf (first) Tj ET"), Fonts: map[string]string{"PCF1": "Helvetica"}},
			{Width: 612, Height: 792, Content: []byte("BT /PCF1 12 Tf (second) Tj ET"), Fonts: map[string]string{"PCF1": "Helvetica"}},
		},
	}
	var buf bytes.Buffer
	if err := writer.NewWriter().Write(context.Background(), in, &buf, writer.Config{Compress: true}); err != nil {
		t.Fatalf("write: %v", err)
	}

	doc := parse(t, buf.Bytes())
	if doc.Version != "1.7" {
		t.Fatalf("version = %q", doc.Version)
	}
	if len(doc.Pages) != 2 {
		t.Fatalf("pages = %d", len(doc.Pages))
	}
	if w, h := doc.Pages[0].Width(), doc.Pages[0].Height(); w != 595.28 || h != 841.89 {
		t.Fatalf("page 0 size = %vx%v", w, h)
	}
	if got := string(doc.Pages[1].Content); got != "BT /PCF1 12 Tf (second) Tj ET" {
		t.Fatalf("page 1 content = %q", got)
	}
	fonts, _ := doc.Pages[0].Resources.Get("Font")
	f1, _ := fonts.(*raw.DictObj).Get("PCF1")
	if base, _ := f1.(*raw.DictObj).Name("BaseFont"); base != "Helvetica" {
		t.Fatalf("font resource = %#v", f1)
	}
	if doc.Info.Title != "Quarterly Größen" || doc.Info.Author != "ops" {
		t.Fatalf("info = %+v", doc.Info)
	}
}

func TestParseInheritance(t *testing.T) {
	data := buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 /MediaBox [0 0 300 400] /Resources << /Font << /F1 5 0 R >> >> /Rotate 90 >>",
		"<< /Type /Page /Parent 2 0 R /Contents [6 0 R 7 0 R] >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 100] /Rotate -90 >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Courier >>",
		"<< /Length 5 >>\nstream\nq 1 w\nendstream",
		"<< /Length 8 0 R >>\nstream\nQ\nendstream",
		"1",
	}, "<< /Size 9 /Root 1 0 R >>")

	doc := parse(t, data)
	if len(doc.Pages) != 2 {
		t.Fatalf("pages = %d", len(doc.Pages))
	}
	p0, p1 := doc.Pages[0], doc.Pages[1]
	if p0.MediaBox != [4]float64{0, 0, 300, 400} || p0.Rotate != 90 {
		t.Fatalf("inherited box/rotate = %v %d", p0.MediaBox, p0.Rotate)
	}
	if p1.MediaBox != [4]float64{0, 0, 200, 100} || p1.Rotate != 270 {
		t.Fatalf("own box/rotate = %v %d", p1.MediaBox, p1.Rotate)
	}
	if string(p0.Content) != "q 1 w\nQ" {
		t.Fatalf("joined content = %q", p0.Content)
	}
	if p1.Resources == nil {
		t.Fatalf("resources not inherited")
	}
	f0, _ := p0.Resources.Get("Font")
	f1, _ := p1.Resources.Get("Font")
	a, _ := f0.(*raw.DictObj).Get("F1")
	b, _ := f1.(*raw.DictObj).Get("F1")
	if a != b {
		t.Fatalf("shared font resolved into separate copies")
	}
}

func TestParseObjectStream(t *testing.T) {
	obj3 := "<< /Type /Page /MediaBox [0 0 50 60] /Parent 2 0 R >> "
	obj4 := "<< /Title (packed) >>"
	objs := fmt.Sprintf("3 0 4 %d ", len(obj3))
	payload := objs + obj3 + obj4
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	zw.Write([]byte(payload))
	zw.Close()

	// Objects 3 and 4 live in object stream 5; write a cross-reference stream.
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	off5 := buf.Len()
	fmt.Fprintf(&buf, "5 0 obj\n<< /Type /ObjStm /N 2 /First %d /Filter /FlateDecode /Length %d >>\nstream\n", len(objs), z.Len())
	buf.Write(z.Bytes())
	buf.WriteString("\nendstream\nendobj\n")

	rows := []byte{
		0, 0, 0, 0,
		1, 0, byte(off1), 0,
		1, 0, byte(off2), 0,
		2, 0, 5, 0,
		2, 0, 5, 1,
		1, byte(off5 >> 8), byte(off5), 0,
	}
	xrefOff := buf.Len()
	fmt.Fprintf(&buf, "6 0 obj\n<< /Type /XRef /Size 6 /W [1 2 1] /Root 1 0 R /Info 4 0 R /Length %d >>\nstream\n", len(rows))
	buf.Write(rows)
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	doc := parse(t, buf.Bytes())
	if len(doc.Pages) != 1 || doc.Pages[0].MediaBox != [4]float64{0, 0, 50, 60} {
		t.Fatalf("pages = %+v", doc.Pages)
	}
	if doc.Info.Title != "packed" {
		t.Fatalf("info from object stream = %+v", doc.Info)
	}
}

func TestParseErrors(t *testing.T) {
	p := NewDocumentParser(Config{})
	if _, err := p.ParseBytes(context.Background(), []byte("hello")); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}

	enc := buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>",
		"<< /Filter /Standard /V 2 >>",
	}, "<< /Size 4 /Root 1 0 R /Encrypt 3 0 R >>")
	if _, err := p.ParseBytes(context.Background(), enc); !errors.Is(err, ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}

	cyclic := buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [2 0 R] /Count 1 >>",
	}, "<< /Size 3 /Root 1 0 R >>")
	if _, err := p.ParseBytes(context.Background(), cyclic); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	valid := buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>",
	}, "<< /Size 3 /Root 1 0 R >>")
	if _, err := p.ParseBytes(ctx, valid); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
