package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskrelay/internal/domain"
)

// EventType discriminates the lifecycle events pushed to subscribers.
type EventType string

// Event types published by the pipeline.
const (
	// EventTaskUpdate is published when a task's status, priority or
	// progress changes.
	EventTaskUpdate EventType = "task_update"

	// EventExecutionStep is published when a new execution step is
	// appended to a task's history.
	EventExecutionStep EventType = "execution_step"

	// EventError is published when a task enters the failed or rejected
	// state.
	EventError EventType = "error"
)

// Event is one lifecycle notification, scoped to a single instance.
// Delivery to subscribers is best-effort at-most-once; the task store
// remains authoritative for clients that need guaranteed history.
type Event struct {
	Type       EventType `json:"type"`
	InstanceID uuid.UUID `json:"instance_id"`
	TaskID     uuid.UUID `json:"task_id"`

	Status   domain.TaskStatus     `json:"status,omitempty"`
	Priority domain.TaskPriority   `json:"priority,omitempty"`
	Progress int                   `json:"progress_percentage"`
	Step     *domain.ExecutionStep `json:"step,omitempty"`
	Error    string                `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewTaskUpdateEvent builds a task_update event from the task's current state.
func NewTaskUpdateEvent(task *domain.Task) Event {
	return Event{
		Type:       EventTaskUpdate,
		InstanceID: task.InstanceID,
		TaskID:     task.ID,
		Status:     task.Status,
		Priority:   task.Priority,
		Progress:   task.Progress,
		Timestamp:  time.Now().UTC(),
	}
}

// NewExecutionStepEvent builds an execution_step event for one appended step.
func NewExecutionStepEvent(task *domain.Task, step domain.ExecutionStep) Event {
	s := step
	return Event{
		Type:       EventExecutionStep,
		InstanceID: task.InstanceID,
		TaskID:     task.ID,
		Status:     task.Status,
		Progress:   task.Progress,
		Step:       &s,
		Timestamp:  time.Now().UTC(),
	}
}

// NewErrorEvent builds an error event for a task that entered failed or rejected.
func NewErrorEvent(task *domain.Task) Event {
	return Event{
		Type:       EventError,
		InstanceID: task.InstanceID,
		TaskID:     task.ID,
		Status:     task.Status,
		Progress:   task.Progress,
		Error:      task.ErrorMessage,
		Timestamp:  time.Now().UTC(),
	}
}
