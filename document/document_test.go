package document

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfcompose/config"
	"github.com/wudi/pdfcompose/graphics"
	"github.com/wudi/pdfcompose/observability"
	"github.com/wudi/pdfcompose/pagesize"
	"github.com/wudi/pdfcompose/pdferr"
	"github.com/wudi/pdfcompose/table"
)

var bg = context.Background()

// withText builds a document whose pages each hold one line of text.
func withText(t *testing.T, texts ...string) *Document {
	t.Helper()
	d := New()
	for _, s := range texts {
		p, err := d.AddPage(bg)
		if err != nil {
			t.Fatalf("add page: %v", err)
		}
		if err := p.AddText(bg, s, 50, 50, nil); err != nil {
			t.Fatalf("add text: %v", err)
		}
	}
	return d
}

func pageTexts(t *testing.T, d *Document) []string {
	t.Helper()
	var out []string
	for _, p := range d.Pages() {
		text, err := p.ExtractText(bg)
		if err != nil {
			t.Fatalf("extract: %v", err)
		}
		out = append(out, text)
	}
	return out
}

func TestNewDocumentIsEmpty(t *testing.T) {
	d := New()
	if d.PageCount() != 0 {
		t.Fatalf("page count = %d", d.PageCount())
	}
	if diff := cmp.Diff(Info{}, d.Info()); diff != "" {
		t.Fatalf("info (-want +got):\n%s", diff)
	}
}

func TestAddPage(t *testing.T) {
	d := New()
	p, err := d.AddPage(bg)
	if err != nil {
		t.Fatal(err)
	}
	w, h := pagesize.Dimensions(pagesize.A4)
	if d.PageCount() != 1 || p.Width() != w || p.Height() != h {
		t.Fatalf("count=%d size=%vx%v", d.PageCount(), p.Width(), p.Height())
	}
	if p.Size() != pagesize.A4 {
		t.Fatalf("size = %v", p.Size())
	}

	q, err := d.AddPageSize(bg, pagesize.Legal)
	if err != nil {
		t.Fatal(err)
	}
	if q.Width() != 612 || q.Height() != 1008 || d.PageCount() != 2 {
		t.Fatalf("legal page %vx%v, count %d", q.Width(), q.Height(), d.PageCount())
	}
	if got, _ := d.Page(1); got != q {
		t.Fatalf("Page(1) is not the appended page")
	}
	if _, err := d.AddPageSize(bg, pagesize.Custom(0, 100)); !errors.Is(err, pdferr.ErrInvalidArgument) {
		t.Fatalf("zero-area page: %v", err)
	}
}

func TestConfigTableStyle(t *testing.T) {
	cfg, err := config.Parse([]byte("table:\n  cell_padding: 8\n  border_width: 2\n"))
	if err != nil {
		t.Fatal(err)
	}
	d := New(WithConfig(cfg), WithBackend(&countingBackend{}))
	p, err := d.AddPage(bg)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.AddTable(bg, table.FromStrings([][]string{{"a"}}, nil), 0, 0); err != nil {
		t.Fatal(err)
	}
	calls := p.Surface().(*graphics.Recorder).Calls()
	if calls[0].Shape.StrokeWidth != 2 {
		t.Fatalf("border width = %v", calls[0].Shape.StrokeWidth)
	}
	text := calls[1]
	if text.Kind != graphics.CallText || text.Rect.X != 8 || text.Rect.Y != 8 {
		t.Fatalf("cell text = %+v", text)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte("page:\n  size: letter\n  header_margin: 30\ntable:\n  row_height: 25\n"))
	if err != nil {
		t.Fatal(err)
	}
	d := New(WithConfig(cfg), WithBackend(&countingBackend{}))
	p, err := d.AddPage(bg)
	if err != nil {
		t.Fatal(err)
	}
	if p.Size() != pagesize.Letter {
		t.Fatalf("size = %v", p.Size())
	}
	if err := p.AddTable(bg, table.FromStrings([][]string{{"a"}, {"b"}}, nil), 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.AddHeader(bg, "top", nil); err != nil {
		t.Fatal(err)
	}
	calls := p.Surface().(*graphics.Recorder).Calls()
	if outer := calls[0].Rect; outer != (graphics.Rect{Width: 100, Height: 50}) {
		t.Fatalf("outer rect = %+v", outer)
	}
	if header := calls[len(calls)-1]; header.Rect.X != 30 || header.Rect.Y != 30 {
		t.Fatalf("header at %v,%v", header.Rect.X, header.Rect.Y)
	}
}

func TestRemovePage(t *testing.T) {
	d := withText(t, "one", "two", "three")
	if err := d.RemovePageAt(3); !errors.Is(err, pdferr.ErrIndexOutOfRange) {
		t.Fatalf("index == count: %v", err)
	}
	if err := d.RemovePageAt(-1); !errors.Is(err, pdferr.ErrIndexOutOfRange) {
		t.Fatalf("negative index: %v", err)
	}

	stranger := withText(t, "x").Pages()[0]
	if err := d.RemovePage(stranger); err != nil {
		t.Fatalf("non-member removal: %v", err)
	}
	if d.PageCount() != 3 {
		t.Fatalf("non-member removal changed count to %d", d.PageCount())
	}

	second := d.Pages()[1]
	if err := d.RemovePage(second); err != nil {
		t.Fatal(err)
	}
	if err := d.RemovePageAt(0); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"three"}, pageTexts(t, d)); diff != "" {
		t.Fatalf("remaining pages (-want +got):\n%s", diff)
	}
	if second.Closed() {
		t.Fatalf("removed page was closed")
	}
}

func TestMergeOrder(t *testing.T) {
	a := withText(t, "A0", "A1")
	a.SetInfo(Info{Title: "A"})
	b := withText(t, "B0")
	b.SetInfo(Info{Title: "B", Author: "someone"})

	if err := a.Merge(bg, b); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"A0", "A1", "B0"}, pageTexts(t, a)); diff != "" {
		t.Fatalf("merged order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Info{Title: "A"}, a.Info()); diff != "" {
		t.Fatalf("metadata changed (-want +got):\n%s", diff)
	}

	// The merged page is a copy; b stays usable and independent.
	a.Pages()[2].AddText(bg, "only in A", 50, 80, nil)
	if diff := cmp.Diff([]string{"B0"}, pageTexts(t, b)); diff != "" {
		t.Fatalf("source document changed (-want +got):\n%s", diff)
	}
	if b.PageCount() != 1 {
		t.Fatalf("source page count = %d", b.PageCount())
	}

	// Merging twice concatenates.
	c := withText(t, "C0")
	if err := a.Merge(bg, c); err != nil {
		t.Fatal(err)
	}
	if a.PageCount() != 4 {
		t.Fatalf("page count after second merge = %d", a.PageCount())
	}

	if err := a.Merge(bg, a); err != nil {
		t.Fatalf("self merge: %v", err)
	}
	if a.PageCount() != 8 {
		t.Fatalf("page count after self merge = %d", a.PageCount())
	}
	if err := a.Merge(bg, nil); !errors.Is(err, pdferr.ErrInvalidArgument) {
		t.Fatalf("nil merge: %v", err)
	}
}

func TestSplit(t *testing.T) {
	d := New()
	d.SetInfo(Info{Title: "T", Author: "A", Subject: "S", Keywords: "K"})
	sizes := []pagesize.Size{pagesize.A4, pagesize.Letter, pagesize.Custom(300, 400)}
	for i, s := range sizes {
		p, err := d.AddPageSize(bg, s)
		if err != nil {
			t.Fatal(err)
		}
		p.AddText(bg, strings.Repeat("x", i+1), 10, 10, nil)
	}

	parts, err := d.Split(bg)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != len(sizes) {
		t.Fatalf("split into %d documents", len(parts))
	}
	for i, part := range parts {
		if part.PageCount() != 1 {
			t.Fatalf("part %d has %d pages", i, part.PageCount())
		}
		src, got := d.Pages()[i], part.Pages()[0]
		if got.Width() != src.Width() || got.Height() != src.Height() {
			t.Fatalf("part %d geometry %vx%v, want %vx%v", i, got.Width(), got.Height(), src.Width(), src.Height())
		}
		if diff := cmp.Diff(d.Info(), part.Info()); diff != "" {
			t.Fatalf("part %d info (-want +got):\n%s", i, diff)
		}
		if diff := cmp.Diff([]string{strings.Repeat("x", i+1)}, pageTexts(t, part)); diff != "" {
			t.Fatalf("part %d content (-want +got):\n%s", i, diff)
		}
		if got == src {
			t.Fatalf("part %d shares the page with the source", i)
		}
	}

	empty, err := New().Split(bg)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty split = %d, %v", len(empty), err)
	}
}

func TestToBytesRoundTrip(t *testing.T) {
	d := withText(t, "hello", "world")
	d.SetTitle("Quarterly")
	d.SetAuthor("Finance")
	d.SetSubject("Revenue")
	d.SetKeywords("q3")
	p, _ := d.AddPageSize(bg, pagesize.Letter)
	tbl := table.FromStrings([][]string{{"Product", "Price"}, {"Widget", "$5"}}, []float64{150, 100})
	if err := p.AddTable(bg, tbl, 50, 50); err != nil {
		t.Fatal(err)
	}

	data, err := d.ToBytes(bg)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("output starts with %q", data[:4])
	}

	loaded, err := FromBytes(bg, data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PageCount() != 3 {
		t.Fatalf("loaded %d pages", loaded.PageCount())
	}
	for i, p := range loaded.Pages() {
		src := d.Pages()[i]
		if p.Width() != src.Width() || p.Height() != src.Height() {
			t.Fatalf("page %d geometry %vx%v", i, p.Width(), p.Height())
		}
	}
	want := Info{Title: "Quarterly", Author: "Finance", Subject: "Revenue", Keywords: "q3"}
	if diff := cmp.Diff(want, loaded.Info()); diff != "" {
		t.Fatalf("info (-want +got):\n%s", diff)
	}
	text, err := loaded.ExtractText(bg)
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello\nworld\nProduct\nPrice\nWidget\n$5" {
		t.Fatalf("text = %q", text)
	}
}

func TestEmptyDocumentToBytes(t *testing.T) {
	data, err := New().ToBytes(bg)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("not a PDF")
	}
	d, err := FromBytes(bg, data)
	if err != nil {
		t.Fatal(err)
	}
	if d.PageCount() != 0 {
		t.Fatalf("page count = %d", d.PageCount())
	}
	if _, err := FromBytes(bg, nil); !errors.Is(err, pdferr.ErrInvalidArgument) {
		t.Fatalf("empty input: %v", err)
	}
}

func TestSaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pdf")
	var logs bytes.Buffer
	logger := observability.NewSlogLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	d := New(WithLogger(logger))
	p, _ := d.AddPage(bg)
	p.AddText(bg, "saved", 50, 50, nil)
	if err := d.Save(bg, path); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(logs.String(), "document saved") {
		t.Fatalf("save not logged: %q", logs.String())
	}

	loaded, err := Open(bg, path)
	if err != nil {
		t.Fatal(err)
	}
	if text, _ := loaded.ExtractText(bg); text != "saved" {
		t.Fatalf("text = %q", text)
	}

	if err := d.Save(bg, ""); !errors.Is(err, pdferr.ErrInvalidArgument) {
		t.Fatalf("empty path: %v", err)
	}
	if _, err := Open(bg, filepath.Join(dir, "missing.pdf")); !errors.Is(err, pdferr.ErrNotFound) {
		t.Fatalf("missing file: %v", err)
	}
	if _, err := Open(bg, ""); !errors.Is(err, pdferr.ErrInvalidArgument) {
		t.Fatalf("empty open path: %v", err)
	}
}

func TestExtractTextPlaceholder(t *testing.T) {
	d := New()
	d.AddPage(bg)
	d.AddPageSize(bg, pagesize.Letter)
	text, err := d.ExtractText(bg)
	if err != nil {
		t.Fatal(err)
	}
	if text != "[page 595.28x841.89 A4]\n[page 612.00x792.00 Letter]" {
		t.Fatalf("text = %q", text)
	}
}

func TestClose(t *testing.T) {
	d := withText(t, "a", "b")
	pages := d.Pages()
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	for i, p := range pages {
		if !p.Closed() {
			t.Fatalf("page %d not closed", i)
		}
	}
	var errs []error
	_, err := d.AddPage(bg)
	errs = append(errs, err)
	errs = append(errs, d.RemovePageAt(0))
	errs = append(errs, d.Merge(bg, New()))
	errs = append(errs, New().Merge(bg, d))
	_, err = d.Split(bg)
	errs = append(errs, err)
	_, err = d.ToBytes(bg)
	errs = append(errs, err)
	_, err = d.ExtractText(bg)
	errs = append(errs, err)
	errs = append(errs, d.SetInfo(Info{Title: "late"}))
	errs = append(errs, d.SetTitle("late"))
	errs = append(errs, d.SetAuthor("late"))
	errs = append(errs, d.SetSubject("late"))
	errs = append(errs, d.SetKeywords("late"))
	for i, err := range errs {
		if !errors.Is(err, pdferr.ErrDisposed) {
			t.Errorf("call %d after close: %v", i, err)
		}
	}
	if err := pages[0].AddText(bg, "x", 0, 0, nil); !errors.Is(err, pdferr.ErrDisposed) {
		t.Fatalf("page use after document close: %v", err)
	}
	if _, _, err := pages[0].MeasureText("x", graphics.DefaultTextStyle()); !errors.Is(err, pdferr.ErrDisposed) {
		t.Fatalf("measure after document close: %v", err)
	}
	if diff := cmp.Diff(Info{}, d.Info()); diff != "" {
		t.Fatalf("info after close (-want +got):\n%s", diff)
	}
	if got := d.Pages(); len(got) != 0 {
		t.Fatalf("pages after close = %d", len(got))
	}
}

func TestCanceled(t *testing.T) {
	d := withText(t, "a", "b")
	ctx, cancel := context.WithCancel(bg)
	cancel()

	var errs []error
	_, err := d.AddPage(ctx)
	errs = append(errs, err)
	errs = append(errs, d.Merge(ctx, withText(t, "c")))
	_, err = d.Split(ctx)
	errs = append(errs, err)
	_, err = d.ToBytes(ctx)
	errs = append(errs, err)
	_, err = FromBytes(ctx, []byte("%PDF-1.7"))
	errs = append(errs, err)
	for i, err := range errs {
		if !errors.Is(err, pdferr.ErrCanceled) || !errors.Is(err, context.Canceled) {
			t.Errorf("call %d: %v", i, err)
		}
	}
	if d.PageCount() != 2 {
		t.Fatalf("canceled calls changed page count to %d", d.PageCount())
	}
	if _, err := d.ToBytes(bg); err != nil {
		t.Fatalf("document unusable after cancellation: %v", err)
	}
}

type recordingTracer struct {
	mu    sync.Mutex
	names []string
	errs  int
}

type recordingSpan struct{ t *recordingTracer }

func (r *recordingTracer) StartSpan(ctx context.Context, name string) (context.Context, observability.Span) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	return ctx, recordingSpan{r}
}

func (s recordingSpan) SetTag(string, interface{}) {}
func (s recordingSpan) SetError(error) {
	s.t.mu.Lock()
	s.t.errs++
	s.t.mu.Unlock()
}
func (s recordingSpan) Finish() {}

func TestTracing(t *testing.T) {
	tr := &recordingTracer{}
	d := New(WithTracer(tr))
	d.AddPage(bg)
	data, err := d.ToBytes(bg)
	if err != nil {
		t.Fatal(err)
	}
	d.Merge(bg, New())
	d.Split(bg)
	if _, err := FromBytes(bg, data, WithTracer(tr)); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(bg)
	cancel()
	d.ToBytes(ctx)

	want := []string{
		observability.SpanDocumentSave,
		observability.SpanDocumentMerge,
		observability.SpanDocumentSplit,
		observability.SpanDocumentLoad,
		observability.SpanDocumentSave,
	}
	if diff := cmp.Diff(want, tr.names); diff != "" {
		t.Fatalf("spans (-want +got):\n%s", diff)
	}
	if tr.errs != 1 {
		t.Fatalf("errored spans = %d", tr.errs)
	}
}

type countingBackend struct {
	Backend
	surfaces int
}

func (c *countingBackend) NewSurface(w, h float64) (graphics.Surface, error) {
	c.surfaces++
	return graphics.NewRecorder(w, h), nil
}

func TestCustomBackend(t *testing.T) {
	b := &countingBackend{}
	d := New(WithBackend(b))
	p, err := d.AddPage(bg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Surface().(*graphics.Recorder); !ok || b.surfaces != 1 {
		t.Fatalf("surface %T from %d calls", p.Surface(), b.surfaces)
	}
	// Layout runs against the recorder; the bordered table draws its outer
	// rectangle first.
	tbl := table.FromStrings([][]string{{"Product", "Price"}, {"Widget", "$5"}}, []float64{150, 100})
	if err := p.AddTable(bg, tbl, 50, 50); err != nil {
		t.Fatal(err)
	}
	calls := p.Surface().(*graphics.Recorder).Calls()
	if calls[0].Kind != graphics.CallRect || calls[0].Rect != (graphics.Rect{X: 50, Y: 50, Width: 250, Height: 40}) {
		t.Fatalf("first call = %+v", calls[0])
	}
}

func TestConcurrentReads(t *testing.T) {
	d := withText(t, "a", "b", "c")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if d.PageCount() != 3 {
					t.Error("page count changed")
					return
				}
				_ = d.Info()
				if _, err := d.Page(j % 3); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
