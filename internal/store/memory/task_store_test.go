package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/store"
)

func newTask(t *testing.T, instanceID uuid.UUID) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(instanceID, "generate a caption", domain.TaskPriorityNormal)
	require.NoError(t, err)
	return task
}

func statusPtr(s domain.TaskStatus) *domain.TaskStatus { return &s }

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	task := newTask(t, uuid.New())

	require.NoError(t, s.Create(ctx, task))

	got, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, domain.TaskStatusSubmitted, got.Status)

	_, err = s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()

	t.Run("stale version is rejected", func(t *testing.T) {
		s := NewTaskStore()
		task := newTask(t, uuid.New())
		require.NoError(t, s.Create(ctx, task))

		updated, err := s.CompareAndSwap(ctx, task.ID, 0, store.TaskMutation{
			Status: statusPtr(domain.TaskStatusQueued),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated.Version)

		// second writer still holds version 0
		_, err = s.CompareAndSwap(ctx, task.ID, 0, store.TaskMutation{
			Status: statusPtr(domain.TaskStatusCancelled),
		})
		assert.ErrorIs(t, err, store.ErrConflict)

		got, err := s.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusQueued, got.Status)
	})

	t.Run("illegal transition is a conflict", func(t *testing.T) {
		s := NewTaskStore()
		task := newTask(t, uuid.New())
		require.NoError(t, s.Create(ctx, task))

		_, err := s.CompareAndSwap(ctx, task.ID, 0, store.TaskMutation{
			Status: statusPtr(domain.TaskStatusCompleted),
		})
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("steps are appended, never replaced", func(t *testing.T) {
		s := NewTaskStore()
		task := newTask(t, uuid.New())
		require.NoError(t, s.Create(ctx, task))

		first, err := s.CompareAndSwap(ctx, task.ID, 0, store.TaskMutation{
			AppendSteps: []domain.ExecutionStep{
				{Step: "parse_intent", Status: "completed", Timestamp: time.Now().UTC()},
			},
		})
		require.NoError(t, err)
		require.Len(t, first.ExecutionSteps, 1)

		second, err := s.CompareAndSwap(ctx, task.ID, first.Version, store.TaskMutation{
			AppendSteps: []domain.ExecutionStep{
				{Step: "enqueue", Status: "completed", Timestamp: time.Now().UTC()},
			},
		})
		require.NoError(t, err)
		require.Len(t, second.ExecutionSteps, 2)
		assert.Equal(t, "parse_intent", second.ExecutionSteps[0].Step)
		assert.Equal(t, "enqueue", second.ExecutionSteps[1].Step)
	})

	t.Run("unknown task", func(t *testing.T) {
		s := NewTaskStore()
		_, err := s.CompareAndSwap(ctx, uuid.New(), 0, store.TaskMutation{})
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	instanceID := uuid.New()

	for i := 0; i < 5; i++ {
		task := newTask(t, instanceID)
		task.CreatedAt = time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC)
		require.NoError(t, s.Create(ctx, task))
	}
	// another tenant's task must never show up
	other := newTask(t, uuid.New())
	require.NoError(t, s.Create(ctx, other))

	t.Run("pagination with stable ordering", func(t *testing.T) {
		page1, err := s.List(ctx, instanceID, store.TaskFilter{}, store.Page{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, page1.Total)
		require.Len(t, page1.Tasks, 2)

		page2, err := s.List(ctx, instanceID, store.TaskFilter{}, store.Page{Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, page2.Tasks, 2)
		assert.True(t, page1.Tasks[1].CreatedAt.Before(page2.Tasks[0].CreatedAt))
	})

	t.Run("status filter", func(t *testing.T) {
		page, err := s.List(ctx, instanceID, store.TaskFilter{
			Statuses: []domain.TaskStatus{domain.TaskStatusQueued},
		}, store.Page{})
		require.NoError(t, err)
		assert.Empty(t, page.Tasks)
	})
}

func TestFindDue(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()
	now := time.Now().UTC()

	due := newTask(t, uuid.New())
	past := now.Add(-time.Minute)
	due.ScheduledFor = &past
	require.NoError(t, s.Create(ctx, due))

	notYet := newTask(t, uuid.New())
	future := now.Add(time.Hour)
	notYet.ScheduledFor = &future
	require.NoError(t, s.Create(ctx, notYet))

	unscheduled := newTask(t, uuid.New())
	require.NoError(t, s.Create(ctx, unscheduled))

	found, err := s.FindDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, due.ID, found[0].ID)
}

func TestFindStuck(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()

	task := newTask(t, uuid.New())
	started := time.Now().UTC().Add(-time.Hour)
	task.Status = domain.TaskStatusInProgress
	task.ProcessingStartedAt = &started
	require.NoError(t, s.Create(ctx, task))

	stuck, err := s.FindStuck(ctx, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, stuck, 1)

	stuck, err = s.FindStuck(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stuck)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore()

	task := newTask(t, uuid.New())
	require.NoError(t, s.Create(ctx, task))

	t.Run("non-terminal task cannot be deleted", func(t *testing.T) {
		assert.ErrorIs(t, s.Delete(ctx, task.ID), store.ErrConflict)
	})

	t.Run("terminal task is soft-deleted", func(t *testing.T) {
		cancelled, err := s.CompareAndSwap(ctx, task.ID, 0, store.TaskMutation{
			Status: statusPtr(domain.TaskStatusCancelled),
		})
		require.NoError(t, err)
		require.True(t, cancelled.Status.IsTerminal())

		require.NoError(t, s.Delete(ctx, task.ID))

		_, err = s.GetByID(ctx, task.ID)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}
