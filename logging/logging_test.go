package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ identity.Logger = (*logging.Logger)(nil)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, logging.ParseLevel(tt.in))
		})
	}
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, logging.Config{Level: "info", Format: "json"}).With("component", "store")

	logger.Debug("hidden %d", 1)
	logger.Info("identity %d approved", 7)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "identity 7 approved", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "store", entry["component"])
}

func TestTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, logging.Config{Level: "warn"})

	logger.Info("skipped")
	logger.Error("failed: %v", "boom")

	out := buf.String()
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `msg="failed: boom"`)
}

func TestFromSlog(t *testing.T) {
	assert.NotNil(t, logging.FromSlog(nil).Slog())
}
