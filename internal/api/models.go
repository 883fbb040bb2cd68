package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskrelay/internal/domain"
)

// SubmitTaskRequest defines the payload for the task submission endpoint.
type SubmitTaskRequest struct {
	Description      string     `json:"description"                 validate:"required,min=1,max=10000"`
	Priority         string     `json:"priority,omitempty"          validate:"omitempty,oneof=urgent normal low"`
	ScheduledFor     *time.Time `json:"scheduled_for,omitempty"`
	RecurringPattern string     `json:"recurring_pattern,omitempty" validate:"omitempty,max=100"`
}

// PatchTaskRequest defines the payload for the task patch endpoint. All
// fields are optional; absent fields are left untouched.
type PatchTaskRequest struct {
	Priority         *string    `json:"priority,omitempty"          validate:"omitempty,oneof=urgent normal low"`
	ScheduledFor     *time.Time `json:"scheduled_for,omitempty"`
	RecurringPattern *string    `json:"recurring_pattern,omitempty" validate:"omitempty,max=100"`
}

// ReviewTaskRequest defines the payload for the review decision endpoint.
// Approved is a pointer so that a missing field fails validation instead
// of silently rejecting the output.
type ReviewTaskRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

// TaskResponse is the full task representation returned by the API.
type TaskResponse struct {
	ID               uuid.UUID              `json:"id"`
	InstanceID       uuid.UUID              `json:"instance_id"`
	Description      string                 `json:"description"`
	ParsedIntent     *domain.ParsedIntent   `json:"parsed_intent,omitempty"`
	Priority         string                 `json:"priority"`
	Status           string                 `json:"status"`
	Progress         int                    `json:"progress_percentage"`
	ExecutionSteps   []domain.ExecutionStep `json:"execution_steps"`
	ScheduledFor     *time.Time             `json:"scheduled_for,omitempty"`
	RecurringPattern string                 `json:"recurring_pattern,omitempty"`
	OutputFormat     string                 `json:"output_format,omitempty"`
	OutputData       map[string]any         `json:"output_data,omitempty"`
	OutputMediaRefs  []string               `json:"output_media_refs,omitempty"`
	RetryCount       int                    `json:"retry_count"`
	MaxRetries       int                    `json:"max_retries"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	ParentTaskID     *uuid.UUID             `json:"parent_task_id,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	Version          int64                  `json:"version"`
}

// TaskListResponse is one page of a task listing.
type TaskListResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// taskToResponse converts a domain task into its API representation.
func taskToResponse(task *domain.Task) TaskResponse {
	steps := task.ExecutionSteps
	if steps == nil {
		steps = []domain.ExecutionStep{}
	}
	return TaskResponse{
		ID:               task.ID,
		InstanceID:       task.InstanceID,
		Description:      task.Description,
		ParsedIntent:     task.ParsedIntent,
		Priority:         string(task.Priority),
		Status:           string(task.Status),
		Progress:         task.Progress,
		ExecutionSteps:   steps,
		ScheduledFor:     task.ScheduledFor,
		RecurringPattern: task.RecurringPattern,
		OutputFormat:     task.OutputFormat,
		OutputData:       task.OutputData,
		OutputMediaRefs:  task.OutputMediaRefs,
		RetryCount:       task.RetryCount,
		MaxRetries:       task.MaxRetries,
		ErrorMessage:     task.ErrorMessage,
		ParentTaskID:     task.ParentTaskID,
		CreatedAt:        task.CreatedAt,
		UpdatedAt:        task.UpdatedAt,
		Version:          task.Version,
	}
}
