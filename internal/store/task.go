package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
)

// TaskFilter narrows a task listing. Zero values mean "no constraint".
type TaskFilter struct {
	// Statuses restricts results to tasks in any of the given statuses.
	Statuses []domain.TaskStatus

	// Priority restricts results to a single priority.
	Priority *domain.TaskPriority

	// CreatedFrom/CreatedTo bound the creation time (inclusive).
	CreatedFrom *time.Time
	CreatedTo   *time.Time

	// ScheduledFrom/ScheduledTo bound the scheduled_for time (inclusive).
	ScheduledFrom *time.Time
	ScheduledTo   *time.Time
}

// Page describes a pagination window. Listing uses a stable ordering
// (created_at, then id) so offset pagination does not skip rows.
type Page struct {
	Limit  int
	Offset int
}

// TaskPage is one page of a task listing plus the total match count.
type TaskPage struct {
	Tasks  []*domain.Task
	Total  int
	Limit  int
	Offset int
}

// TaskMutation is the patch applied by a compare-and-swap write. Nil
// fields are left untouched. AppendSteps only ever extends the execution
// history; existing steps are never rewritten.
type TaskMutation struct {
	Status       *domain.TaskStatus
	Priority     *domain.TaskPriority
	Progress     *int
	AppendSteps  []domain.ExecutionStep
	ParsedIntent *domain.ParsedIntent

	ScheduledFor      *time.Time
	ClearScheduledFor bool
	RecurringPattern  *string

	OutputFormat    *string
	OutputData      map[string]any
	OutputMediaRefs []string

	ProcessingStartedAt *time.Time
	ProcessingEndedAt   *time.Time
	RetryCount          *int
	MaxRetries          *int
	ErrorMessage        *string
}

// TaskStore defines the interface for task persistence. It is the single
// source of truth for task state; every status mutation goes through
// CompareAndSwap so concurrent writers cannot both win.
// Version: 1.0
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns validation errors from the domain Task if data is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist or is deleted.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List retrieves tasks for an instance matching the filter, ordered by
	// creation time then id.
	List(ctx context.Context, instanceID uuid.UUID, filter TaskFilter, page Page) (*TaskPage, error)

	// CompareAndSwap applies the mutation to the task only if its current
	// version equals expectedVersion, bumping the version on success.
	// Returns the updated task, ErrConflict if the version is stale, or
	// ErrTaskNotFound if the task does not exist. Callers must re-read and
	// retry on conflict rather than overwrite.
	CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, mut TaskMutation) (*domain.Task, error)

	// FindDue retrieves up to limit submitted tasks whose scheduled_for is
	// at or before now, oldest first. Tasks without a schedule are not
	// returned; they are enqueued directly on submission.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error)

	// FindByStatus retrieves all tasks in any of the given statuses,
	// oldest first. Used for startup recovery.
	FindByStatus(ctx context.Context, statuses ...domain.TaskStatus) ([]*domain.Task, error)

	// FindStuck retrieves in-progress tasks whose processing started more
	// than olderThan ago, for the watchdog to hand to the retry controller.
	FindStuck(ctx context.Context, olderThan time.Duration) ([]*domain.Task, error)

	// Delete soft-deletes a task. Returns ErrTaskNotFound if it does not
	// exist and ErrConflict if the task is not in a terminal state.
	Delete(ctx context.Context, id uuid.UUID) error
}
