package store

import (
	"time"

	"github.com/phrazzld/taskrelay/internal/domain"
)

// Apply returns a copy of the task with the mutation applied, the version
// bumped, and updated_at refreshed. It is shared by store implementations
// so the compare-and-swap semantics stay identical between backends.
func (m TaskMutation) Apply(task *domain.Task) *domain.Task {
	updated := *task

	if m.Status != nil {
		updated.Status = *m.Status
	}
	if m.Priority != nil {
		updated.Priority = *m.Priority
	}
	if m.Progress != nil {
		updated.Progress = *m.Progress
	}
	if len(m.AppendSteps) > 0 {
		steps := make([]domain.ExecutionStep, len(task.ExecutionSteps), len(task.ExecutionSteps)+len(m.AppendSteps))
		copy(steps, task.ExecutionSteps)
		updated.ExecutionSteps = append(steps, m.AppendSteps...)
	}
	if m.ParsedIntent != nil {
		updated.ParsedIntent = m.ParsedIntent
	}
	if m.ClearScheduledFor {
		updated.ScheduledFor = nil
	} else if m.ScheduledFor != nil {
		t := *m.ScheduledFor
		updated.ScheduledFor = &t
	}
	if m.RecurringPattern != nil {
		updated.RecurringPattern = *m.RecurringPattern
	}
	if m.OutputFormat != nil {
		updated.OutputFormat = *m.OutputFormat
	}
	if m.OutputData != nil {
		updated.OutputData = m.OutputData
	}
	if m.OutputMediaRefs != nil {
		updated.OutputMediaRefs = m.OutputMediaRefs
	}
	if m.ProcessingStartedAt != nil {
		t := *m.ProcessingStartedAt
		updated.ProcessingStartedAt = &t
	}
	if m.ProcessingEndedAt != nil {
		t := *m.ProcessingEndedAt
		updated.ProcessingEndedAt = &t
	}
	if m.RetryCount != nil {
		updated.RetryCount = *m.RetryCount
	}
	if m.MaxRetries != nil {
		updated.MaxRetries = *m.MaxRetries
	}
	if m.ErrorMessage != nil {
		updated.ErrorMessage = *m.ErrorMessage
	}

	updated.Version = task.Version + 1
	updated.UpdatedAt = time.Now().UTC()

	return &updated
}
