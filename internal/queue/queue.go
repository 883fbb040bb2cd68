// Package queue provides the three priority lanes tasks are dispatched
// through. Lanes are in-memory buffered channels; durability lives in the
// task store, which re-seeds the lanes on startup recovery.
package queue

import (
	"errors"

	"github.com/phrazzld/taskrelay/internal/domain"
)

// Lane identifies one of the three logical queues.
type Lane string

// The three lanes, in priority order.
const (
	LaneUrgent Lane = "urgent"
	LaneNormal Lane = "normal"
	LaneLow    Lane = "low"
)

// Common errors returned by the Broker.
var (
	ErrLaneFull = errors.New("queue lane is full")
	ErrClosed   = errors.New("queue broker is closed")
)

// Route maps a task priority to its lane. The mapping is fixed: urgent
// tasks go to the urgent lane, and so on. Fairness across lanes is the
// dequeue side's job, not the router's.
func Route(priority domain.TaskPriority) Lane {
	switch priority {
	case domain.TaskPriorityUrgent:
		return LaneUrgent
	case domain.TaskPriorityLow:
		return LaneLow
	default:
		return LaneNormal
	}
}
