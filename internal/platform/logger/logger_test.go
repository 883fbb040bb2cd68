package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskrelay/internal/config"
)

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		name  string
		level slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"WARN", slog.LevelWarn, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}
	for _, tc := range cases {
		level, ok := parseLevel(tc.name)
		assert.Equal(t, tc.level, level, "level for %q", tc.name)
		assert.Equal(t, tc.ok, ok, "ok for %q", tc.name)
	}
}

func TestSetupHonorsConfiguredLevel(t *testing.T) {
	restoreDefaultLogger(t)

	logger, err := Setup(config.ServerConfig{Port: 8080, LogLevel: "error"})
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, logger.Enabled(ctx, slog.LevelError))
	assert.False(t, logger.Enabled(ctx, slog.LevelWarn))
}

func TestSetupDefaultsInvalidLevelToInfo(t *testing.T) {
	restoreDefaultLogger(t)

	logger, err := Setup(config.ServerConfig{Port: 8080, LogLevel: "loud"})
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
}

func TestSetupInstallsDefaultLogger(t *testing.T) {
	restoreDefaultLogger(t)

	logger, err := Setup(config.ServerConfig{Port: 8080, LogLevel: "info"})
	require.NoError(t, err)
	assert.Same(t, logger, slog.Default())
}

func TestNewHandlerSelectsByEnvironment(t *testing.T) {
	t.Run("plain JSON outside CI", func(t *testing.T) {
		t.Setenv("CI", "")
		t.Setenv("GITHUB_ACTIONS", "")

		var buf bytes.Buffer
		handler := newHandler(&buf, slog.LevelInfo)
		_, isCI := handler.(*CIHandler)
		assert.False(t, isCI)

		slog.New(handler).Info("queue drained")
		entry := decodeLogLine(t, buf.Bytes())
		assert.Equal(t, "queue drained", entry["msg"])
		assert.NotContains(t, entry, "ci")
	})

	t.Run("CI handler under CI", func(t *testing.T) {
		t.Setenv("CI", "true")

		var buf bytes.Buffer
		handler := newHandler(&buf, slog.LevelInfo)
		_, isCI := handler.(*CIHandler)
		assert.True(t, isCI)
	})
}

func TestWithLoggerRoundTrip(t *testing.T) {
	base := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), base)
	assert.Same(t, base, FromContext(ctx))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestFromContextOrDefault(t *testing.T) {
	fallback := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	assert.Same(t, fallback, FromContextOrDefault(context.Background(), fallback))

	stored := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), stored)
	assert.Same(t, stored, FromContextOrDefault(ctx, fallback))
}

// decodeLogLine parses a single JSON log record.
func decodeLogLine(t *testing.T, line []byte) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(line, &entry))
	return entry
}
