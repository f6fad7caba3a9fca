package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/wudi/pdfcompose/images"
	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/pdferr"
)

func samplePage(text string) Page {
	return Page{
		Width:   595.28,
		Height:  841.89,
		Content: []byte("BT\n/PCF1 12 Tf\n1 0 0 1 50 779.89 Tm\n(" + text + ") Tj\nET\n"),
		Fonts:   map[string]string{"PCF1": "Helvetica"},
	}
}

func write(t *testing.T, doc *Document, cfg Config) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := NewWriter().Write(context.Background(), doc, &buf, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	return buf.Bytes()
}

func TestWriteStructure(t *testing.T) {
	doc := &Document{Pages: []Page{samplePage("one"), samplePage("two")}, Info: Info{Title: "Report"}}
	out := string(write(t, doc, Config{Deterministic: true}))

	if !strings.HasPrefix(out, "%PDF-1.7\n") {
		t.Fatalf("missing header: %q", out[:20])
	}
	if !strings.HasSuffix(out, "%%EOF\n") {
		t.Fatalf("missing EOF marker")
	}
	for _, want := range []string{
		"/MediaBox [0 0 595.28 841.89]",
		"/Type /Pages",
		"/Count 2",
		"/Encoding /WinAnsiEncoding",
		"(one) Tj",
		"(two) Tj",
		"/Title (Report)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q", want)
		}
	}
	if n := strings.Count(out, "/BaseFont /Helvetica"); n != 1 {
		t.Fatalf("font dictionary written %d times, want 1", n)
	}
	if strings.Contains(out, "/CreationDate") {
		t.Fatalf("deterministic output carries a creation date")
	}
}

func TestXrefOffsets(t *testing.T) {
	out := write(t, &Document{Pages: []Page{samplePage("x")}}, Config{Compress: true})

	m := regexp.MustCompile(`startxref\n(\d+)\n`).FindSubmatch(out)
	if m == nil {
		t.Fatalf("no startxref")
	}
	start, _ := strconv.Atoi(string(m[1]))
	if !bytes.HasPrefix(out[start:], []byte("xref\n0 ")) {
		t.Fatalf("startxref does not point at xref table")
	}
	entries := regexp.MustCompile(`(\d{10}) 00000 n `).FindAllSubmatch(out[start:], -1)
	if len(entries) == 0 {
		t.Fatalf("no xref entries")
	}
	for i, e := range entries {
		off, _ := strconv.Atoi(string(e[1]))
		want := fmt.Sprintf("%d 0 obj", i+1)
		if !bytes.HasPrefix(out[off:], []byte(want)) {
			t.Fatalf("entry %d points at %q", i+1, out[off:off+10])
		}
	}
	if !bytes.Contains(out, []byte("/Filter /FlateDecode")) {
		t.Fatalf("compressed content missing filter")
	}
}

func TestDeterministicOutput(t *testing.T) {
	doc := &Document{Pages: []Page{samplePage("same")}}
	a := write(t, doc, Config{Deterministic: true})
	b := write(t, doc, Config{Deterministic: true})
	if !bytes.Equal(a, b) {
		t.Fatalf("deterministic writes differ")
	}
	other := write(t, &Document{Pages: []Page{samplePage("different")}}, Config{Deterministic: true})
	idRe := regexp.MustCompile(`/ID \[<([0-9a-f]+)>`)
	if string(idRe.FindSubmatch(a)[1]) == string(idRe.FindSubmatch(other)[1]) {
		t.Fatalf("different content produced the same /ID")
	}
}

func TestImportedResources(t *testing.T) {
	form := raw.NewStream(raw.Dict(), []byte("0 0 m 10 10 l S"))
	xobjects := raw.Dict()
	xobjects.Set("Fm0", form)
	res := raw.Dict()
	res.Set("XObject", xobjects)

	p := samplePage("imported")
	p.Resources = res
	p.Images = map[string]*images.Image{"PCI1": {
		Width: 1, Height: 1, ColorSpace: "DeviceGray", BitsPerComponent: 8, Data: []byte{0x80},
	}}
	second := p
	out := string(write(t, &Document{Pages: []Page{p, second}}, Config{Deterministic: true}))

	if !regexp.MustCompile(`/Fm0 \d+ 0 R`).MatchString(out) {
		t.Fatalf("imported form not written as indirect object")
	}
	if n := strings.Count(out, "0 0 m 10 10 l S"); n != 1 {
		t.Fatalf("shared imported stream written %d times", n)
	}
	if n := strings.Count(out, "/Subtype /Image"); n != 1 {
		t.Fatalf("shared image written %d times", n)
	}
	if !regexp.MustCompile(`/PCI1 \d+ 0 R`).MatchString(out) {
		t.Fatalf("image not registered in page resources")
	}
}

func TestTextStringEncoding(t *testing.T) {
	if s := textString("plain"); s.Hex || string(s.Bytes) != "plain" {
		t.Fatalf("ascii string = %+v", s)
	}
	s := textString("Grüße")
	if !s.Hex || !bytes.HasPrefix(s.Bytes, []byte{0xFE, 0xFF}) {
		t.Fatalf("non-ascii string not UTF-16BE with BOM: % x", s.Bytes)
	}
}

func TestWriteCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err := NewWriter().Write(ctx, &Document{Pages: []Page{samplePage("x")}}, &buf, Config{})
	if !errors.Is(err, pdferr.ErrCanceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("canceled write produced output")
	}
}
