package observability

import (
	"context"
	"log/slog"
)

// Logger is the structured logger accepted by documents, pages and the
// serialization backend.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type stringField struct{ key, val string }

func (f stringField) Key() string        { return f.key }
func (f stringField) Value() interface{} { return f.val }

type intField struct {
	key string
	val int
}

func (f intField) Key() string        { return f.key }
func (f intField) Value() interface{} { return f.val }

type floatField struct {
	key string
	val float64
}

func (f floatField) Key() string        { return f.key }
func (f floatField) Value() interface{} { return f.val }

type errorField struct {
	key string
	err error
}

func (f errorField) Key() string        { return f.key }
func (f errorField) Value() interface{} { return f.err }

func String(key, value string) Field         { return stringField{key, value} }
func Int(key string, value int) Field        { return intField{key, value} }
func Float64(key string, value float64) Field { return floatField{key, value} }
func Error(key string, err error) Field      { return errorField{key, err} }

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// slogLogger forwards to a *slog.Logger.
type slogLogger struct{ l *slog.Logger }

// NewSlogLogger adapts l to the Logger interface. A nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

func (s slogLogger) Debug(msg string, fields ...Field) { s.l.Debug(msg, attrs(fields)...) }
func (s slogLogger) Info(msg string, fields ...Field)  { s.l.Info(msg, attrs(fields)...) }
func (s slogLogger) Warn(msg string, fields ...Field)  { s.l.Warn(msg, attrs(fields)...) }
func (s slogLogger) Error(msg string, fields ...Field) { s.l.Error(msg, attrs(fields)...) }
func (s slogLogger) With(fields ...Field) Logger {
	return slogLogger{l: s.l.With(attrs(fields)...)}
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key(), f.Value()))
	}
	return out
}

// Tracer provides distributed tracing hooks for library operations.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span represents a tracing span.
type Span interface {
	SetTag(key string, value interface{})
	SetError(err error)
	Finish()
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// NopTracer returns a tracer that does nothing.
func NopTracer() Tracer { return nopTracer{} }

type nopSpan struct{}

func (nopSpan) SetTag(string, interface{}) {}
func (nopSpan) SetError(error)             {}
func (nopSpan) Finish()                    {}

// Standard span names emitted by the library.
const (
	SpanDocumentSave  = "pdf.document.save"
	SpanDocumentLoad  = "pdf.document.load"
	SpanDocumentMerge = "pdf.document.merge"
	SpanDocumentSplit = "pdf.document.split"
	SpanTableDraw     = "pdf.table.draw"
)
