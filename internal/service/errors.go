// Package service provides the application-level operations on tasks:
// submission, querying, patching, cancellation, retry and deletion. It
// orchestrates the task store, the intent parser and the queue broker;
// all status changes funnel through the store's compare-and-swap.
package service

import "errors"

// Sentinel errors returned by the task service. Callers check them with
// errors.Is; the API layer maps them to HTTP status codes.
var (
	// ErrNotCancellable is returned when a cancel request arrives after
	// the task has left the cancellable window. Treated as a conflict.
	ErrNotCancellable = errors.New("task can no longer be cancelled")

	// ErrNotRetryable is returned when a force retry is requested on a
	// task that is not in the failed state.
	ErrNotRetryable = errors.New("only failed tasks can be force-retried")

	// ErrNotPatchable is returned when a patch touches a field that can
	// no longer change, such as priority after dispatch.
	ErrNotPatchable = errors.New("task can no longer be modified")

	// ErrNotReviewable is returned when a review decision is submitted
	// for a task that is not waiting for review.
	ErrNotReviewable = errors.New("task is not awaiting review")
)
