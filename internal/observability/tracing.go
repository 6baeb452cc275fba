package observability

import (
	"context"
	"log/slog"
	"time"
)

// Span times one operation and logs its duration when it ends.
type Span interface {
	SetAttribute(key string, value any)
	RecordError(err error)
	End()
	Duration() time.Duration
}

// LocalSpan is a lightweight span that reports through slog.
type LocalSpan struct {
	ctx        context.Context
	name       string
	startTime  time.Time
	endTime    time.Time
	attributes []slog.Attr
	err        error
}

func (s *LocalSpan) SetAttribute(key string, value any) {
	s.attributes = append(s.attributes, slog.Any(key, value))
}

func (s *LocalSpan) RecordError(err error) {
	if err != nil {
		s.err = err
	}
}

// End logs the span at debug level, or at error level when an error was recorded.
func (s *LocalSpan) End() {
	if !s.endTime.IsZero() {
		return
	}
	s.endTime = time.Now()
	attrs := append([]slog.Attr{
		slog.String("span", s.name),
		slog.Int64("duration_ms", s.Duration().Milliseconds()),
	}, s.attributes...)
	if s.err != nil {
		logWithContext(s.ctx, slog.LevelError, "Span failed", append(attrs, slog.String("error", s.err.Error())))
		return
	}
	logWithContext(s.ctx, slog.LevelDebug, "Span ended", attrs)
}

// Duration is the elapsed time, frozen once the span ends.
func (s *LocalSpan) Duration() time.Duration {
	if s.endTime.IsZero() {
		return time.Since(s.startTime)
	}
	return s.endTime.Sub(s.startTime)
}

type contextKey string

const spanContextKey contextKey = "span"

// StartSpan creates a span for a named operation and stores it in the returned context.
func StartSpan(ctx context.Context, name string) (context.Context, Span) {
	span := &LocalSpan{ctx: ctx, name: name, startTime: time.Now()}
	return context.WithValue(ctx, spanContextKey, span), span
}

// SpanFromContext extracts span from context.
func SpanFromContext(ctx context.Context) (Span, bool) {
	span, ok := ctx.Value(spanContextKey).(Span)
	return span, ok
}

// EndSpan records err, if any, and ends span.
func EndSpan(span Span, err error) {
	if span == nil {
		return
	}
	span.RecordError(err)
	span.End()
}
