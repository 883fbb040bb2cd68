package intent

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestKeywordParser(t *testing.T) {
	ctx := context.Background()
	parser := NewKeywordParser()

	t.Run("content generation keywords", func(t *testing.T) {
		result, err := parser.Parse(ctx, "Write a caption for our new product post")
		require.NoError(t, err)
		assert.Equal(t, "content_generation", result.Intent)
		assert.Greater(t, result.Confidence, 0.5)
	})

	t.Run("media brief keywords", func(t *testing.T) {
		result, err := parser.Parse(ctx, "Prepare an image brief for the campaign")
		require.NoError(t, err)
		assert.Equal(t, "media_brief", result.Intent)
	})

	t.Run("no match falls back to default", func(t *testing.T) {
		result, err := parser.Parse(ctx, "do something unusual")
		require.NoError(t, err)
		assert.Equal(t, DefaultIntent, result.Intent)
		assert.Equal(t, 0.0, result.Confidence)
	})

	t.Run("empty description", func(t *testing.T) {
		_, err := parser.Parse(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyDescription)
	})
}

// stubParser returns a fixed result or error.
type stubParser struct {
	result *Result
	err    error
}

func (s *stubParser) Parse(ctx context.Context, description string) (*Result, error) {
	return s.result, s.err
}

func TestFallbackParser(t *testing.T) {
	ctx := context.Background()
	logger := setupTestLogger()

	t.Run("passes through confident result", func(t *testing.T) {
		p := NewFallbackParser(&stubParser{
			result: &Result{Intent: "content_generation", Confidence: 0.9},
		}, 0.5, logger)

		result, err := p.Parse(ctx, "write a caption")
		require.NoError(t, err)
		assert.Equal(t, "content_generation", result.Intent)
	})

	t.Run("propagates parser error", func(t *testing.T) {
		upstream := errors.New("upstream unavailable")
		p := NewFallbackParser(&stubParser{err: upstream}, 0.5, logger)

		result, err := p.Parse(ctx, "write a caption")
		assert.ErrorIs(t, err, upstream)
		assert.Nil(t, result)
	})

	t.Run("degrades below confidence threshold", func(t *testing.T) {
		p := NewFallbackParser(&stubParser{
			result: &Result{Intent: "media_brief", Confidence: 0.3},
		}, 0.5, logger)

		result, err := p.Parse(ctx, "something vague")
		require.NoError(t, err)
		assert.Equal(t, DefaultIntent, result.Intent)
	})

	t.Run("empty description still errors", func(t *testing.T) {
		p := NewFallbackParser(&stubParser{}, 0.5, logger)
		_, err := p.Parse(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyDescription)
	})
}
