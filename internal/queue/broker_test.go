package queue

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskrelay/internal/domain"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestRoute(t *testing.T) {
	assert.Equal(t, LaneUrgent, Route(domain.TaskPriorityUrgent))
	assert.Equal(t, LaneNormal, Route(domain.TaskPriorityNormal))
	assert.Equal(t, LaneLow, Route(domain.TaskPriorityLow))
}

func TestEnqueue(t *testing.T) {
	logger := setupTestLogger()

	t.Run("full lane rejects", func(t *testing.T) {
		b := NewBroker(1, logger)
		defer b.Close()

		require.NoError(t, b.Enqueue(LaneNormal, uuid.New()))
		err := b.Enqueue(LaneNormal, uuid.New())
		assert.ErrorIs(t, err, ErrLaneFull)

		// other lanes unaffected
		assert.NoError(t, b.Enqueue(LaneUrgent, uuid.New()))
	})

	t.Run("closed broker rejects", func(t *testing.T) {
		b := NewBroker(1, logger)
		b.Close()
		assert.ErrorIs(t, b.Enqueue(LaneNormal, uuid.New()), ErrClosed)
	})

	t.Run("unknown lane rejects", func(t *testing.T) {
		b := NewBroker(1, logger)
		defer b.Close()
		assert.Error(t, b.Enqueue(Lane("express"), uuid.New()))
	})
}

func TestDequeueFIFOWithinLane(t *testing.T) {
	b := NewBroker(10, setupTestLogger())
	defer b.Close()

	first := uuid.New()
	second := uuid.New()
	require.NoError(t, b.Enqueue(LaneUrgent, first))
	require.NoError(t, b.Enqueue(LaneUrgent, second))

	id, lane, ok := b.Dequeue(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, LaneUrgent, lane)
	assert.Equal(t, first, id)

	id, _, ok = b.Dequeue(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, second, id)
}

func TestDequeuePrefersUrgent(t *testing.T) {
	b := NewBroker(10, setupTestLogger())
	defer b.Close()

	urgent := uuid.New()
	require.NoError(t, b.Enqueue(LaneNormal, uuid.New()))
	require.NoError(t, b.Enqueue(LaneUrgent, urgent))

	// cycle 1 prefers urgent
	id, lane, ok := b.Dequeue(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, LaneUrgent, lane)
	assert.Equal(t, urgent, id)
}

func TestDequeueAntiStarvation(t *testing.T) {
	b := NewBroker(64, setupTestLogger())
	defer b.Close()

	// keep the urgent lane saturated while normal and low wait
	for i := 0; i < 32; i++ {
		require.NoError(t, b.Enqueue(LaneUrgent, uuid.New()))
	}
	normalID := uuid.New()
	lowID := uuid.New()
	require.NoError(t, b.Enqueue(LaneNormal, normalID))
	require.NoError(t, b.Enqueue(LaneLow, lowID))

	seen := map[Lane]int{}
	var gotNormal, gotLow bool
	for i := 0; i < lowEvery+normalEvery; i++ {
		id, lane, ok := b.Dequeue(context.Background(), time.Second)
		require.True(t, ok)
		seen[lane]++
		if id == normalID {
			gotNormal = true
		}
		if id == lowID {
			gotLow = true
		}
	}

	// within lowEvery+normalEvery cycles both starved lanes were serviced
	assert.True(t, gotNormal, "normal lane starved: %v", seen)
	assert.True(t, gotLow, "low lane starved: %v", seen)
	assert.Greater(t, seen[LaneUrgent], seen[LaneNormal])
}

func TestDequeueBlocking(t *testing.T) {
	b := NewBroker(10, setupTestLogger())
	defer b.Close()

	t.Run("timeout", func(t *testing.T) {
		start := time.Now()
		_, _, ok := b.Dequeue(context.Background(), 50*time.Millisecond)
		assert.False(t, ok)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, _, ok := b.Dequeue(ctx, 5*time.Second)
		assert.False(t, ok)
	})

	t.Run("wakes on enqueue", func(t *testing.T) {
		id := uuid.New()
		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = b.Enqueue(LaneLow, id)
		}()

		got, lane, ok := b.Dequeue(context.Background(), 5*time.Second)
		require.True(t, ok)
		assert.Equal(t, id, got)
		assert.Equal(t, LaneLow, lane)
	})
}
