package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunningInCI(t *testing.T) {
	t.Run("off when env is clear", func(t *testing.T) {
		t.Setenv("CI", "")
		t.Setenv("GITHUB_ACTIONS", "")
		assert.False(t, RunningInCI())
	})

	t.Run("on under generic CI", func(t *testing.T) {
		t.Setenv("CI", "true")
		assert.True(t, RunningInCI())
	})

	t.Run("on under GitHub Actions", func(t *testing.T) {
		t.Setenv("CI", "")
		t.Setenv("GITHUB_ACTIONS", "true")
		assert.True(t, RunningInCI())
	})
}

func TestCIHandlerStampsRunMetadata(t *testing.T) {
	t.Setenv("GITHUB_RUN_ID", "12345")
	t.Setenv("GITHUB_WORKFLOW", "deploy")
	t.Setenv("GITHUB_SHA", "abc123")
	t.Setenv("GITHUB_REF", "refs/heads/main")

	var buf bytes.Buffer
	logger := slog.New(NewCIHandler(&buf, nil))
	logger.Info("worker started", "worker_id", 3)

	entry := decodeLogLine(t, buf.Bytes())
	assert.Equal(t, "worker started", entry["msg"])
	assert.Equal(t, float64(3), entry["worker_id"])
	assert.Equal(t, true, entry["ci"])
	assert.Equal(t, "12345", entry["ci_run_id"])
	assert.Equal(t, "deploy", entry["ci_workflow"])
	assert.Equal(t, "abc123", entry["ci_commit"])
	assert.Equal(t, "refs/heads/main", entry["ci_ref"])
}

func TestCIHandlerSkipsUnsetProviderFields(t *testing.T) {
	t.Setenv("GITHUB_RUN_ID", "")
	t.Setenv("GITHUB_WORKFLOW", "")
	t.Setenv("GITHUB_SHA", "")
	t.Setenv("GITHUB_REF", "")

	var buf bytes.Buffer
	slog.New(NewCIHandler(&buf, nil)).Info("task queued")

	entry := decodeLogLine(t, buf.Bytes())
	assert.Equal(t, true, entry["ci"])
	assert.NotContains(t, entry, "ci_run_id")
	assert.NotContains(t, entry, "ci_workflow")
}

func TestCIHandlerPreservesAttrsAndGroups(t *testing.T) {
	t.Setenv("GITHUB_RUN_ID", "77")

	var buf bytes.Buffer
	logger := slog.New(NewCIHandler(&buf, nil)).
		With("component", "scheduler").
		WithGroup("task")
	logger.Info("dispatched", "id", "t-1")

	entry := decodeLogLine(t, buf.Bytes())
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "77", entry["ci_run_id"])

	group, ok := entry["task"].(map[string]interface{})
	require.True(t, ok, "grouped attrs must nest under the group")
	assert.Equal(t, "t-1", group["id"])
}

func TestCIHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCIHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})

	assert.False(t, handler.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelWarn))

	slog.New(handler).Info("dropped")
	assert.Zero(t, buf.Len())
}
