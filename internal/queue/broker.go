package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Every normalEvery-th dispatch cycle prefers the normal lane and every
// lowEvery-th prefers the low lane, so neither can be starved by a
// sustained stream of urgent tasks. lowEvery is checked first, so a cycle
// divisible by both serves low.
const (
	normalEvery = 4
	lowEvery    = 8
)

// Broker owns the three lanes. Enqueue never blocks; Dequeue blocks with a
// timeout so idle workers do not busy-spin. Lanes carry task IDs only; the
// task store remains the source of truth for task state.
type Broker struct {
	lanes     map[Lane]chan uuid.UUID
	cycle     atomic.Uint64
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewBroker creates a broker whose lanes each buffer size task IDs.
func NewBroker(size int, logger *slog.Logger) *Broker {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Broker{
		lanes: map[Lane]chan uuid.UUID{
			LaneUrgent: make(chan uuid.UUID, size),
			LaneNormal: make(chan uuid.UUID, size),
			LaneLow:    make(chan uuid.UUID, size),
		},
		logger: logger.With("component", "queue_broker"),
		done:   make(chan struct{}),
	}
}

// Enqueue adds a task ID to the lane. Returns ErrLaneFull when the lane's
// buffer is exhausted and ErrClosed after Close.
func (b *Broker) Enqueue(lane Lane, id uuid.UUID) error {
	ch, ok := b.lanes[lane]
	if !ok {
		return fmt.Errorf("unknown lane %q", lane)
	}

	select {
	case <-b.done:
		return ErrClosed
	default:
	}

	select {
	case ch <- id:
		b.logger.Debug("task enqueued",
			"task_id", id,
			"lane", string(lane),
			"lane_len", len(ch),
			"lane_cap", cap(ch))
		return nil
	default:
		return fmt.Errorf("%w: lane %s capacity %d reached", ErrLaneFull, lane, cap(ch))
	}
}

// Dequeue returns the next task ID using priority-weighted polling: the
// urgent lane is preferred, but periodically the normal or low lane gets
// first pick so each is serviced within a bounded number of cycles. When
// all lanes are empty it blocks until work arrives, the timeout elapses,
// the context is cancelled, or the broker closes; ok is false in the
// latter three cases.
func (b *Broker) Dequeue(ctx context.Context, timeout time.Duration) (id uuid.UUID, lane Lane, ok bool) {
	cycle := b.cycle.Add(1)

	order := []Lane{LaneUrgent, LaneNormal, LaneLow}
	switch {
	case cycle%lowEvery == 0:
		order = []Lane{LaneLow, LaneUrgent, LaneNormal}
	case cycle%normalEvery == 0:
		order = []Lane{LaneNormal, LaneUrgent, LaneLow}
	}

	// Non-blocking sweep in this cycle's preference order.
	for _, lane := range order {
		select {
		case id, open := <-b.lanes[lane]:
			if !open {
				return uuid.Nil, "", false
			}
			return id, lane, true
		default:
		}
	}

	// All lanes empty: block on all three at once. Selection among lanes
	// that become ready simultaneously is random; the priority bias is
	// applied by the sweep above on busy cycles.
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case id := <-b.lanes[LaneUrgent]:
		return id, LaneUrgent, true
	case id := <-b.lanes[LaneNormal]:
		return id, LaneNormal, true
	case id := <-b.lanes[LaneLow]:
		return id, LaneLow, true
	case <-timer.C:
		return uuid.Nil, "", false
	case <-ctx.Done():
		return uuid.Nil, "", false
	case <-b.done:
		return uuid.Nil, "", false
	}
}

// Len returns the number of buffered task IDs in the lane.
func (b *Broker) Len(lane Lane) int {
	return len(b.lanes[lane])
}

// Close stops the broker. Buffered IDs are dropped; startup recovery
// re-seeds lanes from the store, so nothing is lost durably.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.logger.Info("queue broker closed")
	})
}
