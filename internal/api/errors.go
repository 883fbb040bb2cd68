package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/service"
	"github.com/phrazzld/taskrelay/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status
// codes based on the error type. This prevents leaking internal error
// types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Malformed submissions and patches.
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Unknown task or instance ids.
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Illegal state transitions: cancel outside the window, stale
	// version writes, retry of a non-failed task, delete of a live task.
	// Always safe for the caller to treat as a no-op.
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, service.ErrNotCancellable),
		errors.Is(err, service.ErrNotRetryable),
		errors.Is(err, service.ErrNotPatchable),
		errors.Is(err, service.ErrNotReviewable):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, domain.ErrScheduledInPast):
		return "Scheduled time is in the past"

	case errors.Is(err, domain.ErrInvalidPriority):
		return "Invalid task priority"

	case errors.Is(err, domain.ErrInvalidRecurringPattern):
		return "Invalid recurring pattern"

	case errors.Is(err, domain.ErrEmptyDescription):
		return "Task description is required"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, service.ErrNotCancellable):
		return "Task can no longer be cancelled"

	case errors.Is(err, service.ErrNotRetryable):
		return "Only failed tasks can be retried"

	case errors.Is(err, service.ErrNotPatchable):
		return "Task can no longer be modified"

	case errors.Is(err, service.ErrNotReviewable):
		return "Task is not awaiting review"

	case errors.Is(err, store.ErrConflict):
		return "Task was modified concurrently, request not applied"

	default:
		return "An unexpected error occurred"
	}
}
