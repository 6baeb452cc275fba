package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/progan/internal/config"
)

// captureDefault swaps the default logger for a JSON logger writing to the returned buffer.
func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var m map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &m))
	return m
}

func TestContextChaining(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithPhase(ctx, "gtrns")
	ctx = WithStage(ctx, "stage-3")
	ctx = WithPhase(ctx, "gstab")

	lc := GetContext(ctx)
	assert.Equal(t, LogContext{RunID: "run-1", Phase: "gstab", Stage: "stage-3"}, lc)
	assert.Equal(t, LogContext{}, GetContext(context.Background()))
}

func TestInfoContextAddsRunAttributes(t *testing.T) {
	buf := captureDefault(t)
	ctx := WithPhase(WithRunID(t.Context(), "run-1"), "dstab")

	InfoContext(ctx, "Checkpoint saved", slog.Int("tick", 50))
	m := lastLine(t, buf)
	assert.Equal(t, "Checkpoint saved", m["msg"])
	assert.Equal(t, "run-1", m["run_id"])
	assert.Equal(t, "dstab", m["phase"])
	assert.InDelta(t, 50, m["tick"], 0)

	WarnContext(ctx, "warn")
	assert.Equal(t, "WARN", lastLine(t, buf)["level"])
}

func TestLogBuilder(t *testing.T) {
	buf := captureDefault(t)
	NewLogBuilder(WithRunID(t.Context(), "r")).
		With("iteration", 7).
		With("lr", 0.001).
		With("skip", true).
		WithAttrs(slog.String("role", "gen")).
		Info("Progress")

	m := lastLine(t, buf)
	assert.Equal(t, "r", m["run_id"])
	assert.InDelta(t, 7, m["iteration"], 0)
	assert.Equal(t, true, m["skip"])
	assert.Equal(t, "gen", m["role"])
}

func TestNewLoggerHonoursFormatAndVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, config.LoggingConfig{Level: config.LogLevelInfo, Format: config.LogFormatJSON}, false)
	logger.Debug("hidden")
	assert.Empty(t, buf.String())
	logger.Info("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	NewLogger(&buf, config.LoggingConfig{Format: config.LogFormatText}, true).Debug("verbose")
	assert.Contains(t, buf.String(), "msg=verbose")
}

func TestSpanLogsDurationAndError(t *testing.T) {
	buf := captureDefault(t)
	ctx, span := StartSpan(WithRunID(t.Context(), "run-1"), "checkpoint.resume")
	got, ok := SpanFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, span, got)

	span.SetAttribute("tick", 50)
	EndSpan(span, errors.New("boom"))
	m := lastLine(t, buf)
	assert.Equal(t, "Span failed", m["msg"])
	assert.Equal(t, "checkpoint.resume", m["span"])
	assert.Equal(t, "boom", m["error"])

	d := span.Duration()
	span.End()
	assert.Equal(t, d, span.Duration(), "ending twice keeps the first duration")

	EndSpan(nil, nil)
}
