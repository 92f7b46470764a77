package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/mailmerge/internal/logger"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := logger.ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := logger.ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_WritesJSONToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.log")
	log, closeFn, err := logger.New(logger.Config{Level: "debug", Format: "json", Output: path}, logger.RunIDExtractor())
	require.NoError(t, err)

	ctx := logger.WithRunID(context.Background(), "run-42")
	log.DebugContext(ctx, "hello", slog.Int("index", 1))
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "run-42", entry["run_id"])
	assert.EqualValues(t, 1, entry["index"])
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	_, _, err := logger.New(logger.Config{Format: "xml"})
	assert.Error(t, err)
}

func TestDecorator_SkipsMissingRunID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := logger.NewLogHandlerDecorator(slog.NewJSONHandler(&buf, nil), nil, logger.RunIDExtractor())
	slog.New(h).With("component", "test").InfoContext(context.Background(), "no run")

	assert.NotContains(t, buf.String(), "run_id")
	assert.Contains(t, buf.String(), `"component":"test"`)
}

func TestNewNope(t *testing.T) {
	t.Parallel()

	log := logger.NewNope()
	require.NotNil(t, log)
	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
	log.Info("discarded")
}
