// Package scheduler promotes scheduled tasks into the execution queue
// when they come due. It periodically scans the store for submitted tasks
// whose scheduled_for has passed and moves each to queued with a
// compare-and-swap, so concurrent replicas promote every task exactly
// once.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/taskrelay/internal/config"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/queue"
	"github.com/phrazzld/taskrelay/internal/store"
)

// Scheduler scans for due tasks and hands them to the queue broker.
type Scheduler struct {
	store  store.TaskStore
	broker *queue.Broker
	cfg    config.SchedulerConfig
	logger *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	// now is swappable for tests.
	now func() time.Time
}

// New creates a scheduler. Start must be called before it scans anything.
func New(
	taskStore store.TaskStore,
	broker *queue.Broker,
	cfg config.SchedulerConfig,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:      taskStore,
		broker:     broker,
		cfg:        cfg,
		logger:     logger.With("component", "scheduler"),
		ctx:        ctx,
		cancelFunc: cancel,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the periodic scan loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("scheduler started", "scan_interval", s.cfg.ScanInterval)
}

// Stop halts the scan loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.cancelFunc()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.ctx)
		}
	}
}

// Sweep promotes one batch of due tasks. Each promotion is an individual
// compare-and-swap; a conflict means another replica already promoted the
// task and is skipped silently. Any task that fails to promote or enqueue
// stays due and is retried on the next sweep.
func (s *Scheduler) Sweep(ctx context.Context) {
	due, err := s.store.FindDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("failed to scan for due tasks", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Debug("promoting due tasks", "count", len(due))

	promoted := 0
	for _, task := range due {
		if ctx.Err() != nil {
			return
		}
		if s.promote(ctx, task) {
			promoted++
		}
	}

	if promoted > 0 {
		s.logger.Info("due tasks promoted", "promoted", promoted, "scanned", len(due))
	}
}

// promote moves one due task from submitted to queued and enqueues it.
func (s *Scheduler) promote(ctx context.Context, task *domain.Task) bool {
	queued := domain.TaskStatusQueued
	updated, err := s.store.CompareAndSwap(ctx, task.ID, task.Version, store.TaskMutation{
		Status:            &queued,
		ClearScheduledFor: true,
		AppendSteps: []domain.ExecutionStep{{
			Step:      "promoted to queue",
			Status:    "completed",
			Timestamp: s.now(),
		}},
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another replica won the promotion.
			s.logger.Debug("task already promoted elsewhere", "task_id", task.ID)
			return false
		}
		s.logger.Error("failed to promote due task", "task_id", task.ID, "error", err)
		return false
	}

	if err := s.broker.Enqueue(queue.Route(updated.Priority), updated.ID); err != nil {
		// The task stays queued; startup recovery re-enqueues it if no
		// capacity opens up before then.
		s.logger.Warn("failed to enqueue promoted task",
			"task_id", updated.ID,
			"lane", string(queue.Route(updated.Priority)),
			"error", err)
		return false
	}

	return true
}
