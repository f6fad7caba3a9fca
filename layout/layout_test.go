package layout

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfcompose/config"
	"github.com/wudi/pdfcompose/document"
	"github.com/wudi/pdfcompose/graphics"
	"github.com/wudi/pdfcompose/observability"
	"github.com/wudi/pdfcompose/page"
	"github.com/wudi/pdfcompose/pagesize"
	"github.com/wudi/pdfcompose/pdferr"
	"github.com/wudi/pdfcompose/table"
)

var bg = context.Background()

// recorderBackend hands out recording surfaces so tests can inspect what
// the engine drew. Encoding is not used.
type recorderBackend struct {
	document.Backend
}

func (recorderBackend) NewSurface(w, h float64) (graphics.Surface, error) {
	return graphics.NewRecorder(w, h), nil
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *document.Document) {
	t.Helper()
	doc := document.New(document.WithBackend(recorderBackend{}))
	t.Cleanup(func() { doc.Close() })
	return NewEngine(doc, opts...), doc
}

func calls(t *testing.T, doc *document.Document, index int) []graphics.Call {
	t.Helper()
	p, err := doc.Page(index)
	if err != nil {
		t.Fatal(err)
	}
	return p.Surface().(*graphics.Recorder).Calls()
}

func ofKind(cs []graphics.Call, kind graphics.CallKind) []graphics.Call {
	var out []graphics.Call
	for _, c := range cs {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func texts(cs []graphics.Call) []string {
	var out []string
	for _, c := range ofKind(cs, graphics.CallText) {
		out = append(out, c.Text)
	}
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// A 200pt wide page with 50pt margins leaves 100pt, which is 16 glyphs of
// 12pt text on a recorder.
var narrow = WithPageSize(pagesize.Custom(200, 300))

func TestParagraphWraps(t *testing.T) {
	e, doc := newEngine(t, narrow)
	if err := e.Paragraph(bg, "aaaa bbbb   cccc dddd eeee", nil); err != nil {
		t.Fatal(err)
	}
	got := ofKind(calls(t, doc, 0), graphics.CallText)
	if diff := cmp.Diff([]string{"aaaa bbbb cccc", "dddd eeee"}, texts(got)); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
	if got[0].Rect.X != 50 || got[0].Rect.Y != 50 || got[1].Rect.X != 50 || !near(got[1].Rect.Y, 50+14.4) {
		t.Fatalf("positions %+v %+v", got[0].Rect, got[1].Rect)
	}
	if !near(e.Cursor(), 50+2*14.4) {
		t.Fatalf("cursor = %v", e.Cursor())
	}
}

func TestLongWordSplits(t *testing.T) {
	e, doc := newEngine(t, narrow)
	if err := e.Paragraph(bg, "abcdefghijklmnopqrstuvwxyz", nil); err != nil {
		t.Fatal(err)
	}
	want := []string{"abcdefghijklmnop", "qrstuvwxyz"}
	if diff := cmp.Diff(want, texts(calls(t, doc, 0))); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
}

func TestHardBreaksAndPageBreak(t *testing.T) {
	// Content area is y 50..100: three lines of 14.4pt per page.
	e, doc := newEngine(t, WithPageSize(pagesize.Custom(200, 150)))
	if err := e.Paragraph(bg, "a\nb\nc\nd\ne", nil); err != nil {
		t.Fatal(err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("pages = %d", doc.PageCount())
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, texts(calls(t, doc, 0))); diff != "" {
		t.Fatalf("page 1 (-want +got):\n%s", diff)
	}
	second := ofKind(calls(t, doc, 1), graphics.CallText)
	if diff := cmp.Diff([]string{"d", "e"}, texts(second)); diff != "" {
		t.Fatalf("page 2 (-want +got):\n%s", diff)
	}
	if second[0].Rect.Y != 50 {
		t.Fatalf("continuation starts at %v", second[0].Rect.Y)
	}
	if e.Page() != doc.Pages()[1] {
		t.Fatalf("engine is not on the last page")
	}
}

func TestEmptyLineAdvances(t *testing.T) {
	e, _ := newEngine(t, narrow)
	if err := e.Paragraph(bg, "a\n\nb", nil); err != nil {
		t.Fatal(err)
	}
	if !near(e.Cursor(), 50+3*14.4) {
		t.Fatalf("cursor = %v", e.Cursor())
	}
}

func TestHeaderFooterPageNumbers(t *testing.T) {
	e, doc := newEngine(t,
		WithPageSize(pagesize.Custom(200, 200)),
		WithHeader("Report"),
		WithFooter("Page "+PageNumber),
	)
	if err := e.Paragraph(bg, "1\n2\n3\n4\n5", nil); err != nil {
		t.Fatal(err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("pages = %d", doc.PageCount())
	}
	want := [][]string{
		{"Report", "Page 1", "1", "2", "3", "4"},
		{"Report", "Page 2", "5"},
	}
	for i, w := range want {
		if diff := cmp.Diff(w, texts(calls(t, doc, i))); diff != "" {
			t.Fatalf("page %d (-want +got):\n%s", i+1, diff)
		}
	}
	first := ofKind(calls(t, doc, 0), graphics.CallText)
	if !near(first[2].Rect.Y, 50+19.2) {
		t.Fatalf("content starts at %v, want below the header", first[2].Rect.Y)
	}
}

func TestTablePaginatesWithRepeatedHeader(t *testing.T) {
	// 100pt of content height holds five 20pt rows.
	e, doc := newEngine(t, WithPageSize(pagesize.Custom(300, 200)), WithRepeatedHeaderRows(1))
	tb := table.New(150).AddRow("Name")
	for i := 1; i <= 11; i++ {
		tb.AddRow("r" + strconv.Itoa(i))
	}
	if err := e.Table(bg, tb); err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"Name", "r1", "r2", "r3", "r4"},
		{"Name", "r5", "r6", "r7", "r8"},
		{"Name", "r9", "r10", "r11"},
	}
	if doc.PageCount() != len(want) {
		t.Fatalf("pages = %d", doc.PageCount())
	}
	for i, w := range want {
		if diff := cmp.Diff(w, texts(calls(t, doc, i))); diff != "" {
			t.Fatalf("page %d (-want +got):\n%s", i+1, diff)
		}
	}
	outer := ofKind(calls(t, doc, 2), graphics.CallRect)[0].Rect
	if outer != (graphics.Rect{X: 50, Y: 50, Width: 150, Height: 80}) {
		t.Fatalf("last chunk outer = %+v", outer)
	}
	if e.Cursor() != 130 {
		t.Fatalf("cursor = %v", e.Cursor())
	}
	if len(tb.Rows) != 12 {
		t.Fatalf("source table modified: %d rows", len(tb.Rows))
	}
}

func TestTableHeaderTallerThanPage(t *testing.T) {
	// One 80pt row fits; the two header rows cannot share a page.
	e, doc := newEngine(t, WithPageSize(pagesize.Custom(300, 200)), WithRepeatedHeaderRows(2),
		WithTableOptions(table.WithRowHeight(80)))
	tb := table.FromStrings([][]string{{"h0"}, {"h1"}, {"b1"}, {"b2"}}, nil)
	if err := e.Table(bg, tb); err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"h0"},
		{"h0", "h1", "b1"},
		{"h0", "h1", "b2"},
	}
	if doc.PageCount() != len(want) {
		t.Fatalf("pages = %d", doc.PageCount())
	}
	for i, w := range want {
		if diff := cmp.Diff(w, texts(calls(t, doc, i))); diff != "" {
			t.Fatalf("page %d (-want +got):\n%s", i+1, diff)
		}
	}
}

func TestTableWithoutRepeatedHeader(t *testing.T) {
	e, doc := newEngine(t, WithPageSize(pagesize.Custom(300, 200)), WithTableOptions(table.WithRowHeight(50)))
	tb := table.FromStrings([][]string{{"a"}, {"b"}, {"c"}}, nil)
	if err := e.Table(bg, tb); err != nil {
		t.Fatal(err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("pages = %d", doc.PageCount())
	}
	if diff := cmp.Diff([]string{"c"}, texts(calls(t, doc, 1))); diff != "" {
		t.Fatalf("page 2 (-want +got):\n%s", diff)
	}
}

func TestAlignment(t *testing.T) {
	for _, tc := range []struct {
		align graphics.Align
		x     float64
	}{
		{graphics.AlignLeft, 50},
		{graphics.AlignCenter, 88},
		{graphics.AlignRight, 126},
	} {
		e, doc := newEngine(t, narrow, WithTextStyle(graphics.DefaultTextStyle().WithAlign(tc.align)))
		if err := e.Paragraph(bg, "abcd", nil); err != nil {
			t.Fatal(err)
		}
		if got := ofKind(calls(t, doc, 0), graphics.CallText)[0].Rect.X; got != tc.x {
			t.Fatalf("align %v: x = %v, want %v", tc.align, got, tc.x)
		}
	}
}

func TestJustify(t *testing.T) {
	e, doc := newEngine(t, narrow)
	st := graphics.DefaultTextStyle().WithAlign(graphics.AlignJustify)
	if err := e.Paragraph(bg, "aa bb cc dd ee ff", &st); err != nil {
		t.Fatal(err)
	}
	got := ofKind(calls(t, doc, 0), graphics.CallText)
	var xs []float64
	for _, c := range got {
		xs = append(xs, c.Rect.X)
	}
	if diff := cmp.Diff([]string{"aa", "bb", "cc", "dd", "ee", "ff"}, texts(got)); diff != "" {
		t.Fatalf("words (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{50, 72, 94, 116, 138, 50}, xs); diff != "" {
		t.Fatalf("x (-want +got):\n%s", diff)
	}
}

func TestMixedSizesShareBaseline(t *testing.T) {
	e, doc := newEngine(t)
	big := graphics.DefaultTextStyle().WithSize(24)
	err := e.Spans(bg, []Span{
		{Text: "big", Style: big},
		{Text: " small", Style: graphics.DefaultTextStyle()},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := ofKind(calls(t, doc, 0), graphics.CallText)
	if diff := cmp.Diff([]string{"big", " small"}, texts(got)); diff != "" {
		t.Fatalf("runs (-want +got):\n%s", diff)
	}
	if got[0].Rect.Y != 50 || got[1].Rect.Y != 62 || got[1].Rect.X != 86 {
		t.Fatalf("positions %+v %+v", got[0].Rect, got[1].Rect)
	}
	if !near(e.Cursor(), 50+28.8) {
		t.Fatalf("cursor = %v", e.Cursor())
	}
}

func TestDecorations(t *testing.T) {
	e, doc := newEngine(t)
	err := e.Spans(bg, []Span{
		{Text: "link", Style: graphics.DefaultTextStyle(), Underline: true},
		{Text: " gone", Style: graphics.DefaultTextStyle().Bold(), Strikethrough: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	lines := ofKind(calls(t, doc, 0), graphics.CallLine)
	if len(lines) != 2 {
		t.Fatalf("lines = %+v", lines)
	}
	if u := lines[0]; u.Rect.X != 50 || u.X2 != 74 || u.Rect.Y != 64 || u.Y2 != 64 {
		t.Fatalf("underline = %+v", u)
	}
	if s := lines[1]; s.Rect.X != 74 || s.X2 != 104 || !near(s.Rect.Y, 57.8) {
		t.Fatalf("strikethrough = %+v", s)
	}
}

func TestImage(t *testing.T) {
	e, doc := newEngine(t, WithPageSize(pagesize.Custom(200, 400)))
	if err := e.Image(bg, []byte{1, 2, 3}, 200, 100); err != nil {
		t.Fatal(err)
	}
	img := ofKind(calls(t, doc, 0), graphics.CallImage)[0]
	if img.Rect != (graphics.Rect{X: 50, Y: 50, Width: 100, Height: 50}) {
		t.Fatalf("image = %+v", img.Rect)
	}
	if e.Cursor() != 100 {
		t.Fatalf("cursor = %v", e.Cursor())
	}

	// Taller than a page: drawn on the fresh page anyway.
	if err := e.NewPage(bg); err != nil {
		t.Fatal(err)
	}
	if err := e.Image(bg, []byte{1}, 50, 1000); err != nil {
		t.Fatal(err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("pages = %d", doc.PageCount())
	}
}

func TestRuleAndSpace(t *testing.T) {
	e, doc := newEngine(t, narrow)
	if err := e.Space(bg, 10); err != nil {
		t.Fatal(err)
	}
	if err := e.Rule(bg); err != nil {
		t.Fatal(err)
	}
	line := ofKind(calls(t, doc, 0), graphics.CallLine)[0]
	if line.Rect.X != 50 || line.X2 != 150 || !near(line.Rect.Y, 60+7.2) || line.Color != graphics.Gray {
		t.Fatalf("rule = %+v", line)
	}
}

func TestHeading(t *testing.T) {
	e, doc := newEngine(t)
	for level := 1; level <= 3; level++ {
		if err := e.Heading(bg, "H", level); err != nil {
			t.Fatal(err)
		}
	}
	var sizes []float64
	for _, c := range ofKind(calls(t, doc, 0), graphics.CallText) {
		if c.TextStyle.Weight != graphics.WeightBold {
			t.Fatalf("heading not bold: %+v", c.TextStyle)
		}
		sizes = append(sizes, c.TextStyle.Size)
	}
	if diff := cmp.Diff([]float64{24, 18, 15}, sizes); diff != "" {
		t.Fatalf("sizes (-want +got):\n%s", diff)
	}
}

func TestWithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Page.Size = "Letter"
	cfg.Layout.MarginLeft = 72
	cfg.Text.Size = 10
	cfg.Table.RowHeight = 30
	cfg.Table.CellPadding = 7
	cfg.Table.BorderWidth = 3
	e, doc := newEngine(t, WithConfig(cfg))
	if err := e.Paragraph(bg, "x", nil); err != nil {
		t.Fatal(err)
	}
	if err := e.Table(bg, table.FromStrings([][]string{{"a"}}, nil)); err != nil {
		t.Fatal(err)
	}
	if e.Page().Size() != pagesize.Letter {
		t.Fatalf("size = %v", e.Page().Size())
	}
	cs := calls(t, doc, 0)
	text := ofKind(cs, graphics.CallText)[0]
	if text.Rect.X != 72 || text.TextStyle.Size != 10 {
		t.Fatalf("text = %+v", text)
	}
	outer := ofKind(cs, graphics.CallRect)[0]
	if outer.Rect.Height != 30 || outer.Rect.X != 72 || outer.Shape.StrokeWidth != 3 {
		t.Fatalf("table outer = %+v", outer)
	}
	if cell := ofKind(cs, graphics.CallText)[1]; cell.Text != "a" || cell.Rect.X != 79 {
		t.Fatalf("cell text = %+v", cell)
	}
}

func TestErrors(t *testing.T) {
	e, _ := newEngine(t)
	if err := e.Table(bg, nil); !errors.Is(err, pdferr.ErrInvalidArgument) {
		t.Fatalf("nil table: %v", err)
	}
	if err := e.Image(bg, nil, 10, 10); !errors.Is(err, pdferr.ErrInvalidArgument) {
		t.Fatalf("empty image: %v", err)
	}

	ctx, cancel := context.WithCancel(bg)
	cancel()
	if err := e.Paragraph(ctx, "x", nil); !errors.Is(err, pdferr.ErrCanceled) {
		t.Fatalf("canceled: %v", err)
	}

	e, doc := newEngine(t)
	if err := e.Paragraph(bg, "x", nil); err != nil {
		t.Fatal(err)
	}
	doc.Close()
	if err := e.Paragraph(bg, "y", nil); !errors.Is(err, pdferr.ErrDisposed) {
		t.Fatalf("closed document: %v", err)
	}
}

func TestDefaultPageSize(t *testing.T) {
	e, _ := newEngine(t)
	if err := e.Space(bg, 1); err != nil {
		t.Fatal(err)
	}
	if got := e.Page().Size(); got != pagesize.A4 {
		t.Fatalf("size = %v", got)
	}
	if page.DefaultMargin != e.Margins.Left {
		t.Fatalf("margin = %v", e.Margins.Left)
	}
}

type tagSpan struct {
	name string
	tags map[string]interface{}
	err  error
	done bool
}

func (s *tagSpan) SetTag(k string, v interface{}) { s.tags[k] = v }
func (s *tagSpan) SetError(err error)             { s.err = err }
func (s *tagSpan) Finish()                        { s.done = true }

type tagTracer struct{ spans []*tagSpan }

func (t *tagTracer) StartSpan(ctx context.Context, name string) (context.Context, observability.Span) {
	s := &tagSpan{name: name, tags: map[string]interface{}{}}
	t.spans = append(t.spans, s)
	return ctx, s
}

func TestTableSpan(t *testing.T) {
	tr := &tagTracer{}
	e, _ := newEngine(t, WithPageSize(pagesize.Custom(300, 200)), WithTracer(tr))
	tb := table.New()
	for i := 0; i < 7; i++ {
		tb.AddRow("x")
	}
	if err := e.Table(bg, tb); err != nil {
		t.Fatal(err)
	}
	if len(tr.spans) != 1 {
		t.Fatalf("spans = %d", len(tr.spans))
	}
	s := tr.spans[0]
	want := map[string]interface{}{"rows": 7, "new_pages": 2}
	if s.name != observability.SpanTableDraw || !s.done || s.err != nil {
		t.Fatalf("span = %+v", s)
	}
	if diff := cmp.Diff(want, s.tags); diff != "" {
		t.Fatalf("tags (-want +got):\n%s", diff)
	}
}
