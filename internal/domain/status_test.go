package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		name    string
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{"submitted to queued", TaskStatusSubmitted, TaskStatusQueued, true},
		{"queued to planning", TaskStatusQueued, TaskStatusPlanning, true},
		{"planning to assigned", TaskStatusPlanning, TaskStatusAssigned, true},
		{"assigned to in_progress", TaskStatusAssigned, TaskStatusInProgress, true},
		{"in_progress to review", TaskStatusInProgress, TaskStatusReview, true},
		{"in_progress to completed", TaskStatusInProgress, TaskStatusCompleted, true},
		{"review to completed", TaskStatusReview, TaskStatusCompleted, true},
		{"review to rejected", TaskStatusReview, TaskStatusRejected, true},
		{"in_progress retry to queued", TaskStatusInProgress, TaskStatusQueued, true},
		{"failed force-retry to queued", TaskStatusFailed, TaskStatusQueued, true},

		{"no skipping submitted to in_progress", TaskStatusSubmitted, TaskStatusInProgress, false},
		{"no skipping queued to completed", TaskStatusQueued, TaskStatusCompleted, false},
		{"no reversing completed to queued", TaskStatusCompleted, TaskStatusQueued, false},
		{"no reversing review to in_progress", TaskStatusReview, TaskStatusInProgress, false},
		{"cancelled is terminal", TaskStatusCancelled, TaskStatusQueued, false},
		{"rejected is terminal", TaskStatusRejected, TaskStatusQueued, false},
		{"submitted cannot fail before queueing", TaskStatusSubmitted, TaskStatusFailed, false},
		{"review cannot be cancelled", TaskStatusReview, TaskStatusCancelled, false},
		{"in_progress cannot be cancelled", TaskStatusInProgress, TaskStatusCancelled, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []TaskStatus{
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusRejected,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}

	active := []TaskStatus{
		TaskStatusSubmitted, TaskStatusQueued, TaskStatusPlanning,
		TaskStatusAssigned, TaskStatusInProgress, TaskStatusReview,
	}
	for _, s := range active {
		assert.False(t, s.IsTerminal(), "expected %s to be non-terminal", s)
	}
}

func TestCancellable(t *testing.T) {
	cancellable := []TaskStatus{
		TaskStatusSubmitted, TaskStatusQueued, TaskStatusPlanning, TaskStatusAssigned,
	}
	for _, s := range cancellable {
		assert.True(t, s.Cancellable(), "expected %s to be cancellable", s)
	}

	notCancellable := []TaskStatus{
		TaskStatusInProgress, TaskStatusReview, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled, TaskStatusRejected,
	}
	for _, s := range notCancellable {
		assert.False(t, s.Cancellable(), "expected %s not to be cancellable", s)
	}
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	all := []TaskStatus{
		TaskStatusSubmitted, TaskStatusQueued, TaskStatusPlanning,
		TaskStatusAssigned, TaskStatusInProgress, TaskStatusReview,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled,
		TaskStatusRejected,
	}

	for _, to := range all {
		assert.False(t, CanTransition(TaskStatusCompleted, to))
		assert.False(t, CanTransition(TaskStatusCancelled, to))
		assert.False(t, CanTransition(TaskStatusRejected, to))
	}

	// failed only re-enters via the force-retry edge
	for _, to := range all {
		if to == TaskStatusQueued {
			continue
		}
		assert.False(t, CanTransition(TaskStatusFailed, to))
	}
}
