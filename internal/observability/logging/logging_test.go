package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{ServiceName: "accounts", Environment: "test", Level: "warn", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "accounts", rec["service"])
	assert.Equal(t, "test", rec["env"])
	assert.Equal(t, "v", rec["k"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
