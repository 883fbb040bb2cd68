package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// TaskPriority determines which queue lane a task is dispatched through.
type TaskPriority string

// Possible task priority values.
const (
	TaskPriorityUrgent TaskPriority = "urgent"
	TaskPriorityNormal TaskPriority = "normal"
	TaskPriorityLow    TaskPriority = "low"
)

// DefaultMaxRetries is applied when the resolved processor does not
// specify its own retry budget.
const DefaultMaxRetries = 3

// IsValidTaskPriority reports whether the given priority is a known TaskPriority.
func IsValidTaskPriority(p TaskPriority) bool {
	switch p {
	case TaskPriorityUrgent, TaskPriorityNormal, TaskPriorityLow:
		return true
	default:
		return false
	}
}

// ParsedIntent is the structured classification of a task's free-text
// description produced by the intent parser collaborator. It is nil on a
// task whose description could not be parsed.
type ParsedIntent struct {
	Intent     string         `json:"intent"`
	Entities   map[string]any `json:"entities,omitempty"`
	Confidence float64        `json:"confidence"`
}

// ExecutionStep is an immutable record of sub-progress within a task
// attempt. Steps are only ever appended, never mutated or reordered.
type ExecutionStep struct {
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Output    string    `json:"output,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task represents a unit of requested work submitted by an instance
// (tenant). It tracks the original description, its structured intent,
// full lifecycle status, and an append-only execution history.
type Task struct {
	ID           uuid.UUID     `json:"id"`
	InstanceID   uuid.UUID     `json:"instance_id"`
	Description  string        `json:"description"`
	ParsedIntent *ParsedIntent `json:"parsed_intent,omitempty"`
	Priority     TaskPriority  `json:"priority"`

	Status         TaskStatus      `json:"status"`
	Progress       int             `json:"progress_percentage"`
	ExecutionSteps []ExecutionStep `json:"execution_steps"`

	ScheduledFor     *time.Time `json:"scheduled_for,omitempty"`
	RecurringPattern string     `json:"recurring_pattern,omitempty"`

	OutputFormat    string         `json:"output_format,omitempty"`
	OutputData      map[string]any `json:"output_data,omitempty"`
	OutputMediaRefs []string       `json:"output_media_refs,omitempty"`

	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	ProcessingEndedAt   *time.Time `json:"processing_ended_at,omitempty"`
	RetryCount          int        `json:"retry_count"`
	MaxRetries          int        `json:"max_retries"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	ParentTaskID        *uuid.UUID `json:"parent_task_id,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`

	// Version increments on every state-affecting write and is the
	// optimistic-concurrency token for compare-and-swap updates.
	Version int64 `json:"version"`
}

// NewTask creates a new Task in the submitted state with version 0.
// It generates a new UUID, applies the normal priority when none is given,
// and validates the result.
func NewTask(instanceID uuid.UUID, description string, priority TaskPriority) (*Task, error) {
	if priority == "" {
		priority = TaskPriorityNormal
	}

	now := time.Now().UTC()
	task := &Task{
		ID:             uuid.New(),
		InstanceID:     instanceID,
		Description:    description,
		Priority:       priority,
		Status:         TaskStatusSubmitted,
		Progress:       0,
		ExecutionSteps: []ExecutionStep{},
		MaxRetries:     DefaultMaxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        0,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.InstanceID == uuid.Nil {
		return ErrEmptyInstanceID
	}

	if t.Description == "" {
		return ErrEmptyDescription
	}

	if !IsValidTaskPriority(t.Priority) {
		return ErrInvalidPriority
	}

	if !IsValidTaskStatus(t.Status) {
		return ErrInvalidStatus
	}

	if t.Progress < 0 || t.Progress > 100 {
		return ErrInvalidProgress
	}

	if t.RecurringPattern != "" {
		if _, err := cron.ParseStandard(t.RecurringPattern); err != nil {
			return ErrInvalidRecurringPattern
		}
	}

	return nil
}

// NextOccurrence computes the next due time after the given reference
// time from the task's recurring pattern. Returns ErrNotRecurring when
// the task has no pattern.
func (t *Task) NextOccurrence(after time.Time) (time.Time, error) {
	if t.RecurringPattern == "" {
		return time.Time{}, ErrNotRecurring
	}

	schedule, err := cron.ParseStandard(t.RecurringPattern)
	if err != nil {
		return time.Time{}, ErrInvalidRecurringPattern
	}

	return schedule.Next(after), nil
}

// DueAt reports whether the task is eligible for dispatch at the given
// time. A task with a future scheduled_for must not be selected by the
// router until its due time.
func (t *Task) DueAt(now time.Time) bool {
	return t.ScheduledFor == nil || !t.ScheduledFor.After(now)
}

// RetriesExhausted reports whether the task has used up its retry budget.
func (t *Task) RetriesExhausted() bool {
	return t.RetryCount >= t.MaxRetries
}

// AppendStep returns the task's execution steps with one more record
// appended. The receiver is not mutated; steps are applied through the
// store's compare-and-swap so the history stays append-only.
func (t *Task) AppendStep(step, status, output string) []ExecutionStep {
	steps := make([]ExecutionStep, len(t.ExecutionSteps), len(t.ExecutionSteps)+1)
	copy(steps, t.ExecutionSteps)
	return append(steps, ExecutionStep{
		Step:      step,
		Status:    status,
		Output:    output,
		Timestamp: time.Now().UTC(),
	})
}
