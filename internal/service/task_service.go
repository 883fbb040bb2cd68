package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/intent"
	"github.com/phrazzld/taskrelay/internal/queue"
	"github.com/phrazzld/taskrelay/internal/store"
)

// TaskServiceError wraps unexpected failures inside service operations.
type TaskServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
func NewTaskServiceError(operation, message string, err error) *TaskServiceError {
	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// SubmitParams carries the caller-controlled fields of a submission.
type SubmitParams struct {
	Description      string
	Priority         domain.TaskPriority
	ScheduledFor     *time.Time
	RecurringPattern string
}

// PatchParams carries the mutable fields of a patch request. Nil fields
// are left untouched.
type PatchParams struct {
	Priority         *domain.TaskPriority
	ScheduledFor     *time.Time
	RecurringPattern *string
}

// StatusView is the lightweight status projection of a task.
type StatusView struct {
	ID           uuid.UUID         `json:"id"`
	Status       domain.TaskStatus `json:"status"`
	Progress     int               `json:"progress_percentage"`
	RetryCount   int               `json:"retry_count"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// TaskService exposes the task pipeline's user-facing operations. All
// status writes go through the store's compare-and-swap so concurrent
// user actions and worker writes cannot both win.
type TaskService struct {
	store  store.TaskStore
	parser intent.Parser
	broker *queue.Broker
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewTaskService creates the task service.
func NewTaskService(
	taskStore store.TaskStore,
	parser intent.Parser,
	broker *queue.Broker,
	logger *slog.Logger,
) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{
		store:  taskStore,
		parser: parser,
		broker: broker,
		logger: logger.With("component", "task_service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates and persists a new task, classifies its description,
// and dispatches it to the queue unless it is scheduled for the future.
// Parser failures leave the intent unset and never block submission.
func (s *TaskService) Submit(ctx context.Context, instanceID uuid.UUID, params SubmitParams) (*domain.Task, error) {
	if params.ScheduledFor != nil &&
		params.ScheduledFor.Before(s.now()) &&
		params.RecurringPattern == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrScheduledInPast)
	}

	task, err := domain.NewTask(instanceID, params.Description, params.Priority)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	task.ScheduledFor = params.ScheduledFor
	task.RecurringPattern = params.RecurringPattern
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	task.ParsedIntent = s.parseIntent(ctx, params.Description)

	if err := s.store.Create(ctx, task); err != nil {
		return nil, NewTaskServiceError("submit", "failed to persist task", err)
	}

	logger := s.logger.With("task_id", task.ID, "instance_id", instanceID)

	if !task.DueAt(s.now()) {
		logger.Info("task submitted for later", "scheduled_for", task.ScheduledFor)
		return task, nil
	}

	dispatched, err := s.dispatch(ctx, task)
	if err != nil {
		// The task is durably submitted; the scheduler or recovery will
		// dispatch it later.
		logger.Warn("immediate dispatch failed, task remains submitted", "error", err)
		return task, nil
	}

	logger.Info("task submitted and queued",
		"priority", string(dispatched.Priority),
		"intent", intentName(dispatched))
	return dispatched, nil
}

// parseIntent classifies the description, degrading to nil on failure.
func (s *TaskService) parseIntent(ctx context.Context, description string) *domain.ParsedIntent {
	result, err := s.parser.Parse(ctx, description)
	if err != nil {
		// The task is still accepted; a nil intent routes to the
		// default processor at claim time.
		s.logger.Warn("intent parsing failed, persisting task without intent", "error", err)
		return nil
	}
	return &domain.ParsedIntent{
		Intent:     result.Intent,
		Entities:   result.Entities,
		Confidence: result.Confidence,
	}
}

// dispatch promotes a due task to queued and puts it on its lane.
func (s *TaskService) dispatch(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	queued := domain.TaskStatusQueued
	updated, err := s.store.CompareAndSwap(ctx, task.ID, task.Version, store.TaskMutation{
		Status: &queued,
	})
	if err != nil {
		return nil, err
	}

	if err := s.broker.Enqueue(queue.Route(updated.Priority), updated.ID); err != nil {
		// Stays queued; startup recovery re-enqueues it.
		s.logger.Warn("lane full, queued task awaits recovery",
			"task_id", updated.ID, "error", err)
	}
	return updated, nil
}

// Get returns the full task including its execution history.
func (s *TaskService) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.store.GetByID(ctx, id)
}

// GetStatus returns the lightweight status projection.
func (s *TaskService) GetStatus(ctx context.Context, id uuid.UUID) (*StatusView, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		ID:           task.ID,
		Status:       task.Status,
		Progress:     task.Progress,
		RetryCount:   task.RetryCount,
		ErrorMessage: task.ErrorMessage,
	}, nil
}

// List returns one page of an instance's tasks.
func (s *TaskService) List(
	ctx context.Context,
	instanceID uuid.UUID,
	filter store.TaskFilter,
	page store.Page,
) (*store.TaskPage, error) {
	if instanceID == uuid.Nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrEmptyInstanceID)
	}
	return s.store.List(ctx, instanceID, filter, page)
}

// Patch updates a task's mutable fields. Priority may only change before
// dispatch (submitted or queued); scheduling fields follow the same rule
// since they only matter pre-dispatch.
func (s *TaskService) Patch(ctx context.Context, id uuid.UUID, params PatchParams) (*domain.Task, error) {
	if params.Priority != nil && !domain.IsValidTaskPriority(*params.Priority) {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrInvalidPriority)
	}
	if params.RecurringPattern != nil && *params.RecurringPattern != "" {
		scratch := domain.Task{RecurringPattern: *params.RecurringPattern}
		if _, err := scratch.NextOccurrence(s.now()); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrInvalidRecurringPattern)
		}
	}

	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if task.Status != domain.TaskStatusSubmitted && task.Status != domain.TaskStatusQueued {
		return nil, fmt.Errorf("%w: task is %s", ErrNotPatchable, task.Status)
	}

	// A past schedule is only meaningful when a recurring pattern can
	// advance it, same rule as at submission.
	if params.ScheduledFor != nil && params.ScheduledFor.Before(s.now()) {
		pattern := task.RecurringPattern
		if params.RecurringPattern != nil {
			pattern = *params.RecurringPattern
		}
		if pattern == "" {
			return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrScheduledInPast)
		}
	}

	updated, err := s.store.CompareAndSwap(ctx, task.ID, task.Version, store.TaskMutation{
		Priority:         params.Priority,
		ScheduledFor:     params.ScheduledFor,
		RecurringPattern: params.RecurringPattern,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("task patched", "task_id", id)
	return updated, nil
}

// Cancel moves the task to cancelled if it is still inside the
// cancellable window, otherwise returns a conflict. Callers should treat
// the conflict as a no-op rather than retrying.
func (s *TaskService) Cancel(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !task.Status.Cancellable() {
		return nil, fmt.Errorf("%w: %w: task is %s", store.ErrConflict, ErrNotCancellable, task.Status)
	}

	cancelled := domain.TaskStatusCancelled
	updated, err := s.store.CompareAndSwap(ctx, task.ID, task.Version, store.TaskMutation{
		Status: &cancelled,
		AppendSteps: []domain.ExecutionStep{{
			Step:      "cancelled by user",
			Status:    "completed",
			Timestamp: s.now(),
		}},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("task cancelled", "task_id", id)
	return updated, nil
}

// ForceRetry resets a failed task's retry budget and re-enters it into
// the pipeline. This is the only way past the retry-exhaustion guard.
func (s *TaskService) ForceRetry(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if task.Status != domain.TaskStatusFailed {
		return nil, fmt.Errorf("%w: %w: task is %s", store.ErrConflict, ErrNotRetryable, task.Status)
	}

	queued := domain.TaskStatusQueued
	zero := 0
	empty := ""
	updated, err := s.store.CompareAndSwap(ctx, task.ID, task.Version, store.TaskMutation{
		Status:       &queued,
		RetryCount:   &zero,
		ErrorMessage: &empty,
		AppendSteps: []domain.ExecutionStep{{
			Step:      "force retry",
			Status:    "completed",
			Timestamp: s.now(),
		}},
	})
	if err != nil {
		return nil, err
	}

	if err := s.broker.Enqueue(queue.Route(updated.Priority), updated.ID); err != nil {
		s.logger.Warn("lane full, retried task awaits recovery",
			"task_id", updated.ID, "error", err)
	}

	s.logger.Info("task force-retried", "task_id", id)
	return updated, nil
}

// Review resolves a task waiting for human review. Approval completes the
// task; decline moves it to rejected. Tasks in any other state return a
// conflict.
func (s *TaskService) Review(ctx context.Context, id uuid.UUID, approved bool) (*domain.Task, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if task.Status != domain.TaskStatusReview {
		return nil, fmt.Errorf("%w: %w: task is %s", store.ErrConflict, ErrNotReviewable, task.Status)
	}

	target := domain.TaskStatusCompleted
	step := "review approved"
	if !approved {
		target = domain.TaskStatusRejected
		step = "review rejected"
	}

	updated, err := s.store.CompareAndSwap(ctx, task.ID, task.Version, store.TaskMutation{
		Status: &target,
		AppendSteps: []domain.ExecutionStep{{
			Step:      step,
			Status:    "completed",
			Timestamp: s.now(),
		}},
	})
	if err != nil {
		return nil, err
	}

	if approved && updated.RecurringPattern != "" {
		if err := s.spawnNextOccurrence(ctx, updated); err != nil {
			s.logger.Error("failed to spawn next occurrence",
				"task_id", updated.ID, "error", err)
		}
	}

	s.logger.Info("task review resolved", "task_id", id, "approved", approved)
	return updated, nil
}

// spawnNextOccurrence creates the next task of a recurring series once a
// reviewed occurrence is approved, mirroring what the worker does for
// tasks that complete without review.
func (s *TaskService) spawnNextOccurrence(ctx context.Context, completed *domain.Task) error {
	next, err := completed.NextOccurrence(s.now())
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

	if err := s.store.Create(ctx, child); err != nil {
		return fmt.Errorf("failed to create next occurrence: %w", err)
	}

	s.logger.Info("spawned next recurring occurrence",
		"parent_task_id", completed.ID, "task_id", child.ID, "scheduled_for", next)
	return nil
}

// Delete soft-deletes a terminal task. Non-terminal tasks return a conflict.
func (s *TaskService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("task deleted", "task_id", id)
	return nil
}

func intentName(task *domain.Task) string {
	if task.ParsedIntent == nil {
		return intent.DefaultIntent
	}
	return task.ParsedIntent.Intent
}
