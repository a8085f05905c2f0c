package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer, level string) *slog.Logger {
	return NewLogger(Config{
		Level:       level,
		Format:      "json",
		Output:      buf,
		ServiceName: "event-attendance",
		Environment: "test",
	})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var lines []map[string]any
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		var line map[string]any
		require.NoError(t, json.Unmarshal(raw, &line))
		lines = append(lines, line)
	}
	return lines
}

func TestNewLogger_AddsServiceAndContextIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, "info")

	ctx := WithUserID(WithRequestID(context.Background(), "req-1"), "user-9")
	logger.InfoContext(ctx, "joined", "event_id", "e1")
	logger.With("component", "hub").Info("no context")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "event-attendance", lines[0]["service"])
	assert.Equal(t, "test", lines[0]["environment"])
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.Equal(t, "user-9", lines[0]["user_id"])
	assert.Equal(t, "e1", lines[0]["event_id"])

	assert.Equal(t, "hub", lines[1]["component"])
	assert.NotContains(t, lines[1], "request_id")
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, "warn")

	logger.Info("dropped")
	logger.Warn("kept")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(&buf, "info")

	assert.Same(t, base, LoggerFromContext(context.Background(), base))

	ctx := WithRequestID(context.Background(), "req-2")
	LoggerFromContext(ctx, base).Info("bound")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-2", lines[0]["request_id"])
}

func TestHTTPRequestLogger_LevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	l := &HTTPRequestLogger{Logger: newTestLogger(&buf, "debug")}

	for _, status := range []int{200, 404, 503} {
		l.LogRequest(context.Background(), "GET", "/api/v1/events", status, 3*time.Millisecond, 10, "127.0.0.1", "test")
	}

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "ERROR", lines[2]["level"])
	assert.Equal(t, float64(503), lines[2]["status_code"])
}
