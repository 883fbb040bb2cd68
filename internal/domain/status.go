package domain

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusSubmitted  TaskStatus = "submitted"
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusPlanning   TaskStatus = "planning"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusRejected   TaskStatus = "rejected"
)

// transitions is the authoritative edge set of the task state machine.
// A status not present in the map is terminal.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusSubmitted: {TaskStatusQueued, TaskStatusCancelled},
	TaskStatusQueued: {
		TaskStatusPlanning,
		TaskStatusFailed,
		TaskStatusCancelled,
	},
	TaskStatusPlanning: {
		TaskStatusAssigned,
		TaskStatusQueued, // transient failure before assignment
		TaskStatusFailed,
		TaskStatusCancelled,
	},
	TaskStatusAssigned: {
		TaskStatusInProgress,
		TaskStatusQueued,
		TaskStatusFailed,
		TaskStatusCancelled,
	},
	TaskStatusInProgress: {
		TaskStatusReview,
		TaskStatusCompleted,
		TaskStatusQueued,    // immediate retry on transient failure
		TaskStatusSubmitted, // delayed retry, parked with a scheduled_for
		TaskStatusFailed,
	},
	TaskStatusReview: {
		TaskStatusCompleted,
		TaskStatusRejected,
		TaskStatusQueued,
		TaskStatusFailed,
	},
	// Failed tasks may re-enter the pipeline, but only through the explicit
	// force-retry operation which resets the retry budget first.
	TaskStatusFailed: {TaskStatusQueued},
}

// IsValidTaskStatus reports whether the given status is a known TaskStatus.
func IsValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusSubmitted, TaskStatusQueued, TaskStatusPlanning,
		TaskStatusAssigned, TaskStatusInProgress, TaskStatusReview,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled,
		TaskStatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status permits no further automatic transitions.
// Failed is treated as terminal here even though force-retry can leave it,
// because leaving it requires an explicit operator action.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusRejected:
		return true
	default:
		return false
	}
}

// Cancellable reports whether a user-initiated cancel is still permitted.
// Once a task has entered in_progress, cancellation is rejected with a
// conflict.
func (s TaskStatus) Cancellable() bool {
	switch s {
	case TaskStatusSubmitted, TaskStatusQueued, TaskStatusPlanning, TaskStatusAssigned:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the state machine permits moving from one
// status to another. Terminal states have no outgoing edges except
// failed → queued, which callers must additionally gate on force-retry.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
