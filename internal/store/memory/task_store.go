// Package memory provides an in-memory TaskStore implementation with the
// same compare-and-swap semantics as the postgres backend. It backs unit
// tests and single-process development deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/store"
)

// TaskStore is a thread-safe in-memory implementation of store.TaskStore.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
}

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
	}
}

// Ensure TaskStore implements store.TaskStore.
var _ store.TaskStore = (*TaskStore)(nil)

func copyTask(t *domain.Task) *domain.Task {
	c := *t
	c.ExecutionSteps = append([]domain.ExecutionStep(nil), t.ExecutionSteps...)
	return &c
}

// Create implements store.TaskStore.Create.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return store.NewStoreError("task", "create", "duplicate task id", store.ErrInvalidEntity)
	}

	s.tasks[task.ID] = copyTask(task)
	return nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok || task.DeletedAt != nil {
		return nil, store.ErrTaskNotFound
	}
	return copyTask(task), nil
}

func matches(task *domain.Task, filter store.TaskFilter) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, st := range filter.Statuses {
			if task.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Priority != nil && task.Priority != *filter.Priority {
		return false
	}
	if filter.CreatedFrom != nil && task.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && task.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	if filter.ScheduledFrom != nil &&
		(task.ScheduledFor == nil || task.ScheduledFor.Before(*filter.ScheduledFrom)) {
		return false
	}
	if filter.ScheduledTo != nil &&
		(task.ScheduledFor == nil || task.ScheduledFor.After(*filter.ScheduledTo)) {
		return false
	}
	return true
}

// List implements store.TaskStore.List with stable (created_at, id) ordering.
func (s *TaskStore) List(
	ctx context.Context,
	instanceID uuid.UUID,
	filter store.TaskFilter,
	page store.Page,
) (*store.TaskPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Task
	for _, task := range s.tasks {
		if task.InstanceID != instanceID || task.DeletedAt != nil {
			continue
		}
		if matches(task, filter) {
			matched = append(matched, task)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := len(matched)

	start := page.Offset
	if start > total {
		start = total
	}
	end := total
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}

	tasks := make([]*domain.Task, 0, end-start)
	for _, task := range matched[start:end] {
		tasks = append(tasks, copyTask(task))
	}

	return &store.TaskPage{
		Tasks:  tasks,
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}, nil
}

// CompareAndSwap implements store.TaskStore.CompareAndSwap. Status changes
// are additionally checked against the domain state machine, so an illegal
// transition is a conflict even when the version matches.
func (s *TaskStore) CompareAndSwap(
	ctx context.Context,
	id uuid.UUID,
	expectedVersion int64,
	mut store.TaskMutation,
) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.DeletedAt != nil {
		return nil, store.ErrTaskNotFound
	}

	if task.Version != expectedVersion {
		return nil, store.ErrConflict
	}

	if mut.Status != nil && *mut.Status != task.Status &&
		!domain.CanTransition(task.Status, *mut.Status) {
		return nil, store.ErrConflict
	}

	updated := mut.Apply(task)
	s.tasks[id] = updated
	return copyTask(updated), nil
}

// FindDue implements store.TaskStore.FindDue.
func (s *TaskStore) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*domain.Task
	for _, task := range s.tasks {
		if task.DeletedAt != nil || task.Status != domain.TaskStatusSubmitted {
			continue
		}
		if task.ScheduledFor == nil || task.ScheduledFor.After(now) {
			continue
		}
		due = append(due, task)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledFor.Before(*due[j].ScheduledFor)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*domain.Task, 0, len(due))
	for _, task := range due {
		out = append(out, copyTask(task))
	}
	return out, nil
}

// FindByStatus implements store.TaskStore.FindByStatus.
func (s *TaskStore) FindByStatus(
	ctx context.Context,
	statuses ...domain.TaskStatus,
) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Task
	for _, task := range s.tasks {
		if task.DeletedAt != nil {
			continue
		}
		for _, st := range statuses {
			if task.Status == st {
				matched = append(matched, task)
				break
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	out := make([]*domain.Task, 0, len(matched))
	for _, task := range matched {
		out = append(out, copyTask(task))
	}
	return out, nil
}

// FindStuck implements store.TaskStore.FindStuck.
func (s *TaskStore) FindStuck(
	ctx context.Context,
	olderThan time.Duration,
) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-olderThan)

	var stuck []*domain.Task
	for _, task := range s.tasks {
		if task.DeletedAt != nil || task.Status != domain.TaskStatusInProgress {
			continue
		}
		if task.ProcessingStartedAt != nil && task.ProcessingStartedAt.Before(cutoff) {
			stuck = append(stuck, copyTask(task))
		}
	}

	sort.Slice(stuck, func(i, j int) bool {
		return stuck[i].ProcessingStartedAt.Before(*stuck[j].ProcessingStartedAt)
	})

	return stuck, nil
}

// Delete implements store.TaskStore.Delete (soft delete, terminal tasks only).
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.DeletedAt != nil {
		return store.ErrTaskNotFound
	}

	if !task.Status.IsTerminal() {
		return store.ErrConflict
	}

	now := time.Now().UTC()
	task.DeletedAt = &now
	return nil
}

