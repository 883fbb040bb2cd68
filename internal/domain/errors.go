package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyTaskID is returned when a task ID is missing.
	ErrEmptyTaskID = errors.New("task ID cannot be empty")

	// ErrEmptyInstanceID is returned when the tenant scope is missing.
	ErrEmptyInstanceID = errors.New("instance ID cannot be empty")

	// ErrEmptyDescription is returned when a task has no description.
	ErrEmptyDescription = errors.New("task description cannot be empty")

	// ErrInvalidPriority is returned when a priority is not urgent, normal or low.
	ErrInvalidPriority = errors.New("invalid task priority")

	// ErrInvalidStatus is returned when a status is not a known TaskStatus.
	ErrInvalidStatus = errors.New("invalid task status")

	// ErrInvalidProgress is returned when a progress percentage is outside [0,100].
	ErrInvalidProgress = errors.New("progress percentage must be between 0 and 100")

	// ErrInvalidRecurringPattern is returned when a recurrence rule does not parse.
	ErrInvalidRecurringPattern = errors.New("invalid recurring pattern")

	// ErrNotRecurring is returned when a recurrence operation is requested
	// on a task without a recurring pattern.
	ErrNotRecurring = errors.New("task has no recurring pattern")

	// ErrInvalidTransition is returned when a status change violates the
	// task state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrScheduledInPast is returned when a non-recurring task is submitted
	// with a scheduled time that has already passed.
	ErrScheduledInPast = errors.New("scheduled time is in the past")
)
