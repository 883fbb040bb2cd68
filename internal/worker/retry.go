package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/phrazzld/taskrelay/internal/config"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/queue"
	"github.com/phrazzld/taskrelay/internal/store"
)

// RetryController decides what happens to a task after a transient
// failure: an immediate re-enqueue for short delays, a parked schedule for
// longer ones, or a terminal failure once the retry budget is spent.
type RetryController struct {
	store  store.TaskStore
	broker *queue.Broker
	cfg    config.RetryConfig
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewRetryController creates a retry controller over the given store and broker.
func NewRetryController(
	taskStore store.TaskStore,
	broker *queue.Broker,
	cfg config.RetryConfig,
	logger *slog.Logger,
) *RetryController {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryController{
		store:  taskStore,
		broker: broker,
		cfg:    cfg,
		logger: logger.With("component", "retry_controller"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Delay returns the backoff delay for the given attempt number
// (retryCount is the number of attempts already consumed).
func (c *RetryController) Delay(retryCount int) time.Duration {
	delay := c.cfg.BaseDelay << uint(retryCount)
	if delay > c.cfg.MaxDelay || delay <= 0 {
		delay = c.cfg.MaxDelay
	}
	if c.cfg.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(c.cfg.Jitter)))
	}
	if delay > c.cfg.MaxDelay {
		delay = c.cfg.MaxDelay
	}
	return delay
}

// HandleFailure records a failed attempt on the task and routes it to the
// retry path or, when the budget is exhausted, to the terminal failed
// state. The task argument is the version the caller last observed; a CAS
// conflict means another writer got there first and is returned as-is.
func (c *RetryController) HandleFailure(ctx context.Context, task *domain.Task, cause error) error {
	logger := c.logger.With("task_id", task.ID, "retry_count", task.RetryCount)

	if task.RetryCount+1 >= task.MaxRetries {
		return c.failTerminally(ctx, task, cause)
	}

	delay := c.Delay(task.RetryCount)
	nextRetry := task.RetryCount + 1
	errMsg := cause.Error()
	step := domain.ExecutionStep{
		Step:      fmt.Sprintf("attempt %d failed", nextRetry),
		Status:    "failed",
		Output:    errMsg,
		Timestamp: c.now(),
	}

	if delay <= c.cfg.ImmediateThreshold {
		// Short delay: bounce straight back to the queue.
		queued := domain.TaskStatusQueued
		updated, err := c.store.CompareAndSwap(ctx, task.ID, task.Version, store.TaskMutation{
			Status:       &queued,
			RetryCount:   &nextRetry,
			ErrorMessage: &errMsg,
			AppendSteps:  []domain.ExecutionStep{step},
		})
		if err != nil {
			return fmt.Errorf("failed to requeue task for retry: %w", err)
		}

		if err := c.broker.Enqueue(queue.Route(updated.Priority), updated.ID); err != nil {
			// Lane is full; the watchdog or a manual retry will pick the
			// task up from its queued state later.
			logger.Warn("retry enqueue failed, task stays queued", "error", err)
		}
		logger.Info("task requeued for retry", "delay", delay, "next_attempt", nextRetry+1)
		return nil
	}

	// Longer delay: park the task for the scheduler to promote when due.
	submitted := domain.TaskStatusSubmitted
	runAt := c.now().Add(delay)
	_, err := c.store.CompareAndSwap(ctx, task.ID, task.Version, store.TaskMutation{
		Status:       &submitted,
		RetryCount:   &nextRetry,
		ErrorMessage: &errMsg,
		ScheduledFor: &runAt,
		AppendSteps:  []domain.ExecutionStep{step},
	})
	if err != nil {
		return fmt.Errorf("failed to park task for delayed retry: %w", err)
	}

	logger.Info("task parked for delayed retry", "delay", delay, "run_at", runAt)
	return nil
}

// failTerminally moves the task to failed with its final error message.
// The task remains visible as a dead letter until deleted or force-retried.
func (c *RetryController) failTerminally(ctx context.Context, task *domain.Task, cause error) error {
	failed := domain.TaskStatusFailed
	errMsg := cause.Error()
	endedAt := c.now()
	step := domain.ExecutionStep{
		Step:      "retries exhausted",
		Status:    "failed",
		Output:    errMsg,
		Timestamp: endedAt,
	}
	finalRetry := task.RetryCount + 1

	_, err := c.store.CompareAndSwap(ctx, task.ID, task.Version, store.TaskMutation{
		Status:            &failed,
		RetryCount:        &finalRetry,
		ErrorMessage:      &errMsg,
		ProcessingEndedAt: &endedAt,
		AppendSteps:       []domain.ExecutionStep{step},
	})
	if err != nil {
		return fmt.Errorf("failed to mark task as failed: %w", err)
	}

	c.logger.Error("task failed permanently",
		"task_id", task.ID,
		"attempts", finalRetry,
		"error", errMsg)
	return nil
}
