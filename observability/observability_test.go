package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, SpanDocumentSave)
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	l.With(String("doc", "report")).Warn("page dropped", Int("index", 3), Error("err", errors.New("boom")))

	out := buf.String()
	for _, want := range []string{"page dropped", "doc=report", "index=3", "err=boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}
}
