package events

import (
	"context"

	"github.com/google/uuid"

	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/store"
)

// PublishingStore decorates a TaskStore so every state-affecting write
// publishes its lifecycle events. Wiring the broadcaster here, rather
// than in each caller, is what guarantees no transition goes unannounced.
type PublishingStore struct {
	store.TaskStore
	broadcaster *Broadcaster
}

// NewPublishingStore wraps the inner store with event publication.
func NewPublishingStore(inner store.TaskStore, broadcaster *Broadcaster) *PublishingStore {
	return &PublishingStore{
		TaskStore:   inner,
		broadcaster: broadcaster,
	}
}

// Ensure PublishingStore implements store.TaskStore.
var _ store.TaskStore = (*PublishingStore)(nil)

// Create persists the task and announces its arrival.
func (s *PublishingStore) Create(ctx context.Context, task *domain.Task) error {
	if err := s.TaskStore.Create(ctx, task); err != nil {
		return err
	}
	s.broadcaster.Publish(NewTaskUpdateEvent(task))
	return nil
}

// CompareAndSwap applies the mutation and publishes the resulting events:
// a task_update for status/priority/progress changes, an execution_step
// per appended step, and an error event when the task lands in failed or
// rejected.
func (s *PublishingStore) CompareAndSwap(
	ctx context.Context,
	id uuid.UUID,
	expectedVersion int64,
	mut store.TaskMutation,
) (*domain.Task, error) {
	updated, err := s.TaskStore.CompareAndSwap(ctx, id, expectedVersion, mut)
	if err != nil {
		return nil, err
	}

	if mut.Status != nil || mut.Priority != nil || mut.Progress != nil {
		s.broadcaster.Publish(NewTaskUpdateEvent(updated))
	}
	for _, step := range mut.AppendSteps {
		s.broadcaster.Publish(NewExecutionStepEvent(updated, step))
	}
	if mut.Status != nil &&
		(updated.Status == domain.TaskStatusFailed || updated.Status == domain.TaskStatusRejected) {
		s.broadcaster.Publish(NewErrorEvent(updated))
	}

	return updated, nil
}

