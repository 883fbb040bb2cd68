// Package worker drives tasks through their execution lifecycle: a pool of
// goroutines dequeues task ids, resolves processors, executes them, and
// records every transition through compare-and-swap store writes. The
// package also owns retry/backoff policy, crash recovery, and the
// watchdog that rescues tasks stuck in progress.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskrelay/internal/config"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/processor"
	"github.com/phrazzld/taskrelay/internal/queue"
	"github.com/phrazzld/taskrelay/internal/store"
)

// Pool manages the worker goroutines that execute queued tasks.
type Pool struct {
	store    store.TaskStore
	broker   *queue.Broker
	registry *processor.Registry
	retries  *RetryController
	cfg      config.WorkerConfig
	logger   *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	now func() time.Time
}

// NewPool creates a worker pool. Start must be called before it processes
// anything.
func NewPool(
	taskStore store.TaskStore,
	broker *queue.Broker,
	registry *processor.Registry,
	retries *RetryController,
	cfg config.WorkerConfig,
	logger *slog.Logger,
) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		store:      taskStore,
		broker:     broker,
		registry:   registry,
		retries:    retries,
		cfg:        cfg,
		logger:     logger.With("component", "worker_pool"),
		ctx:        ctx,
		cancelFunc: cancel,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start recovers unfinished tasks from a previous run, then launches the
// workers and the stuck-task watchdog.
func (p *Pool) Start() error {
	if err := p.Recover(p.ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for i := 0; i < p.cfg.Count; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.watchdog()

	p.logger.Info("worker pool started", "workers", p.cfg.Count)
	return nil
}

// Stop signals all workers to finish their current task and waits for them.
func (p *Pool) Stop() {
	p.cancelFunc()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Recover re-enters tasks interrupted by a previous shutdown or crash:
// queued tasks are put back on their lanes, and tasks caught mid-pipeline
// (planning, assigned, in_progress) are reset to queued first.
func (p *Pool) Recover(ctx context.Context) error {
	queuedTasks, err := p.store.FindByStatus(ctx, domain.TaskStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to load queued tasks: %w", err)
	}

	orphaned, err := p.store.FindByStatus(ctx,
		domain.TaskStatusPlanning,
		domain.TaskStatusAssigned,
		domain.TaskStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to load orphaned tasks: %w", err)
	}

	p.logger.Info("recovering unfinished tasks",
		"queued_count", len(queuedTasks),
		"orphaned_count", len(orphaned))

	for _, task := range queuedTasks {
		if err := p.broker.Enqueue(queue.Route(task.Priority), task.ID); err != nil {
			p.logger.Warn("failed to requeue recovered task",
				"task_id", task.ID, "error", err)
		}
	}

	for _, task := range orphaned {
		queued := domain.TaskStatusQueued
		step := domain.ExecutionStep{
			Step:      "reset after restart",
			Status:    "recovered",
			Timestamp: p.now(),
		}
		reset, err := p.store.CompareAndSwap(ctx, task.ID, task.Version, store.TaskMutation{
			Status:      &queued,
			AppendSteps: []domain.ExecutionStep{step},
		})
		if err != nil {
			// Another replica already moved the task on.
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			p.logger.Warn("failed to reset orphaned task",
				"task_id", task.ID, "error", err)
			continue
		}
		if err := p.broker.Enqueue(queue.Route(reset.Priority), reset.ID); err != nil {
			p.logger.Warn("failed to requeue recovered task",
				"task_id", reset.ID, "error", err)
		}
	}

	return nil
}

// worker dequeues task ids and processes them until the pool stops.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		taskID, lane, ok := p.broker.Dequeue(p.ctx, p.cfg.DequeueTimeout)
		if !ok {
			if p.ctx.Err() != nil {
				logger.Debug("worker stopping")
				return
			}
			continue // dequeue timed out, check for shutdown and go again
		}
		p.process(taskID, lane, logger)
	}
}

// process drives one task from queued through execution to a terminal or
// retry state. Every transition is a compare-and-swap; losing a swap means
// a cancel or another worker won, and the task is dropped without harm.
func (p *Pool) process(taskID uuid.UUID, lane queue.Lane, logger *slog.Logger) {
	ctx := p.ctx
	logger = logger.With("task_id", taskID, "lane", string(lane))

	task, err := p.store.GetByID(ctx, taskID)
	if err != nil {
		logger.Warn("dequeued task not found, dropping", "error", err)
		return
	}
	if task.Status != domain.TaskStatusQueued {
		// Cancelled or already claimed while sitting on the lane.
		logger.Debug("dequeued task no longer queued, dropping", "status", string(task.Status))
		return
	}

	// queued → planning. Progress restarts from zero on every attempt.
	planning := domain.TaskStatusPlanning
	progress := 0
	current, err := p.store.CompareAndSwap(ctx, task.ID, task.Version, store.TaskMutation{
		Status:   &planning,
		Progress: &progress,
	})
	if err != nil {
		logger.Debug("lost claim on task, dropping", "error", err)
		return
	}

	intentName := ""
	if current.ParsedIntent != nil {
		intentName = current.ParsedIntent.Intent
	}
	proc := p.registry.Resolve(intentName)
	logger = logger.With("intent", proc.Intent())

	// planning → assigned, recording the resolved retry budget.
	assigned := domain.TaskStatusAssigned
	maxRetries := proc.MaxRetries()
	current, err = p.store.CompareAndSwap(ctx, current.ID, current.Version, store.TaskMutation{
		Status:     &assigned,
		MaxRetries: &maxRetries,
		AppendSteps: []domain.ExecutionStep{{
			Step:      "processor assigned",
			Status:    "completed",
			Output:    proc.Intent(),
			Timestamp: p.now(),
		}},
	})
	if err != nil {
		logger.Debug("task cancelled during planning, dropping", "error", err)
		return
	}

	// assigned → in_progress
	inProgress := domain.TaskStatusInProgress
	startedAt := p.now()
	current, err = p.store.CompareAndSwap(ctx, current.ID, current.Version, store.TaskMutation{
		Status:              &inProgress,
		ProcessingStartedAt: &startedAt,
	})
	if err != nil {
		logger.Debug("task cancelled before execution, dropping", "error", err)
		return
	}

	logger.Info("executing task", "attempt", current.RetryCount+1)
	p.execute(ctx, current, proc, logger)
}

// execute runs the processor and settles the task's outcome.
func (p *Pool) execute(ctx context.Context, current *domain.Task, proc processor.Processor, logger *slog.Logger) {
	report := func(ctx context.Context, percentage int, step string) error {
		if percentage <= current.Progress {
			return nil // progress is monotone; ignore regressions
		}
		updated, err := p.store.CompareAndSwap(ctx, current.ID, current.Version, store.TaskMutation{
			Progress: &percentage,
			AppendSteps: []domain.ExecutionStep{{
				Step:      step,
				Status:    "completed",
				Timestamp: p.now(),
			}},
		})
		if err != nil {
			return fmt.Errorf("failed to record progress: %w", err)
		}
		current = updated
		return nil
	}

	ec := processor.NewExecutionContext(current, logger, report)
	result, execErr := proc.Execute(ctx, ec)

	if execErr != nil {
		if ctx.Err() != nil {
			// Shutdown interrupted the attempt; recovery resets the task
			// on the next start.
			logger.Warn("execution interrupted by shutdown")
			return
		}
		if processor.IsPermanent(execErr) {
			p.failPermanently(ctx, current, execErr, logger)
			return
		}
		logger.Warn("transient execution failure", "error", execErr)
		if err := p.retries.HandleFailure(ctx, current, execErr); err != nil {
			logger.Error("failed to schedule retry", "error", err)
		}
		return
	}

	p.complete(ctx, current, result, logger)
}

// complete settles a successful attempt into review or completed, and
// spawns the next occurrence for recurring tasks.
func (p *Pool) complete(ctx context.Context, current *domain.Task, result *processor.Result, logger *slog.Logger) {
	endedAt := p.now()
	progress := 100

	mut := store.TaskMutation{
		Progress:          &progress,
		ProcessingEndedAt: &endedAt,
	}
	if result != nil {
		if result.OutputFormat != "" {
			mut.OutputFormat = &result.OutputFormat
		}
		mut.OutputData = result.OutputData
		mut.OutputMediaRefs = result.MediaRefs
	}

	final := domain.TaskStatusCompleted
	stepName := "execution completed"
	if result != nil && result.NeedsReview {
		final = domain.TaskStatusReview
		stepName = "awaiting review"
	}
	mut.Status = &final
	mut.AppendSteps = []domain.ExecutionStep{{
		Step:      stepName,
		Status:    "completed",
		Timestamp: endedAt,
	}}

	updated, err := p.store.CompareAndSwap(ctx, current.ID, current.Version, mut)
	if err != nil {
		// A watchdog reset or concurrent writer won; their outcome stands.
		logger.Warn("completion swap lost, outcome already settled elsewhere", "error", err)
		return
	}

	logger.Info("task settled", "status", string(updated.Status))

	if updated.Status == domain.TaskStatusCompleted && updated.RecurringPattern != "" {
		if err := p.spawnNextOccurrence(ctx, updated); err != nil {
			logger.Error("failed to spawn next occurrence", "error", err)
		}
	}
}

// failPermanently moves the task straight to failed with no retry.
func (p *Pool) failPermanently(ctx context.Context, current *domain.Task, cause error, logger *slog.Logger) {
	failed := domain.TaskStatusFailed
	errMsg := cause.Error()
	endedAt := p.now()

	_, err := p.store.CompareAndSwap(ctx, current.ID, current.Version, store.TaskMutation{
		Status:            &failed,
		ErrorMessage:      &errMsg,
		ProcessingEndedAt: &endedAt,
		AppendSteps: []domain.ExecutionStep{{
			Step:      "permanent failure",
			Status:    "failed",
			Output:    errMsg,
			Timestamp: endedAt,
		}},
	})
	if err != nil {
		logger.Warn("failure swap lost, outcome already settled elsewhere", "error", err)
		return
	}
	logger.Error("task failed permanently", "error", errMsg)
}

// spawnNextOccurrence creates the next task of a recurring series, linked
// to the occurrence that just completed.
func (p *Pool) spawnNextOccurrence(ctx context.Context, completed *domain.Task) error {
	next, err := completed.NextOccurrence(p.now())
	if err != nil {
		return fmt.Errorf("failed to compute next occurrence: %w", err)
	}

	child, err := domain.NewTask(completed.InstanceID, completed.Description, completed.Priority)
	if err != nil {
		return fmt.Errorf("failed to build next occurrence: %w", err)
	}
	child.ParsedIntent = completed.ParsedIntent
	child.RecurringPattern = completed.RecurringPattern
	child.ScheduledFor = &next
	child.MaxRetries = completed.MaxRetries
	parentID := completed.ID
	child.ParentTaskID = &parentID

	if err := p.store.Create(ctx, child); err != nil {
		return fmt.Errorf("failed to create next occurrence: %w", err)
	}

	p.logger.Info("spawned next recurring occurrence",
		"parent_task_id", completed.ID,
		"task_id", child.ID,
		"scheduled_for", next)
	return nil
}

// watchdog periodically rescues tasks stuck in progress longer than the
// configured maximum, treating each as a transient failure.
func (p *Pool) watchdog() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.sweepStuck()
		}
	}
}

func (p *Pool) sweepStuck() {
	stuck, err := p.store.FindStuck(p.ctx, p.cfg.MaxInProgress)
	if err != nil {
		p.logger.Error("failed to scan for stuck tasks", "error", err)
		return
	}
	if len(stuck) == 0 {
		return
	}

	p.logger.Info("found stuck tasks", "count", len(stuck))
	for _, task := range stuck {
		cause := fmt.Errorf("task exceeded maximum processing time of %s", p.cfg.MaxInProgress)
		if err := p.retries.HandleFailure(p.ctx, task, cause); err != nil {
			p.logger.Warn("failed to reset stuck task",
				"task_id", task.ID, "error", err)
		}
	}
}
