// Package processor defines the pluggable capability that executes tasks
// of a given intent, and the closed registry that resolves intents to
// processors at dispatch time.
package processor

import (
	"context"
	"log/slog"

	"github.com/phrazzld/taskrelay/internal/domain"
)

// Result is what a processor produces on success.
type Result struct {
	// OutputFormat names the shape of OutputData (e.g. "text", "json").
	OutputFormat string

	// OutputData is the structured output persisted on the task.
	OutputData map[string]any

	// MediaRefs are opaque references to media assets produced elsewhere.
	MediaRefs []string

	// NeedsReview routes the task to the review state instead of
	// completing it directly.
	NeedsReview bool
}

// Processor is a pluggable handler capable of executing tasks of one
// intent. Delivery is at-least-once: Execute may be invoked more than once
// for the same attempt, so implementations must either be naturally
// idempotent or consult the execution history via the ExecutionContext to
// skip sub-steps that already completed.
//
// Outcomes are signalled through three channels: a nil error means the
// task completed (or enters review when the Result says so); a
// *TransientError makes the attempt eligible for retry; a *PermanentError
// fails the task with no retry. Any other error is treated as transient.
//
// Execute must honor ctx cancellation promptly, checking it between steps.
// Version: 1.0
type Processor interface {
	// Intent returns the intent string this processor handles.
	Intent() string

	// MaxRetries returns the retry budget for tasks of this intent.
	MaxRetries() int

	// Execute runs the task logic.
	Execute(ctx context.Context, ec *ExecutionContext) (*Result, error)
}

// ProgressFunc reports attempt progress back to the pipeline. The worker
// wires it to a CAS-guarded store write plus an event publish.
type ProgressFunc func(ctx context.Context, percentage int, step string) error

// ExecutionContext exposes the task's parameters and progress reporting to
// a processor. The cancellation token is the context passed to Execute.
type ExecutionContext struct {
	// Task is a snapshot of the task at the start of the attempt. The
	// processor must not mutate it; all writes go through the pipeline.
	Task *domain.Task

	// Logger is scoped to the task and attempt.
	Logger *slog.Logger

	report ProgressFunc
}

// NewExecutionContext creates an execution context for one attempt.
func NewExecutionContext(task *domain.Task, logger *slog.Logger, report ProgressFunc) *ExecutionContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecutionContext{
		Task:   task,
		Logger: logger,
		report: report,
	}
}

// ReportProgress records attempt progress. Percentage must be monotone
// non-decreasing within the attempt; the pipeline enforces this and
// ignores regressions.
func (ec *ExecutionContext) ReportProgress(ctx context.Context, percentage int, step string) error {
	if ec.report == nil {
		return nil
	}
	return ec.report(ctx, percentage, step)
}

// Entities returns the parsed-intent entities, or an empty map when the
// description was never parsed.
func (ec *ExecutionContext) Entities() map[string]any {
	if ec.Task.ParsedIntent == nil || ec.Task.ParsedIntent.Entities == nil {
		return map[string]any{}
	}
	return ec.Task.ParsedIntent.Entities
}

// StepCompleted reports whether a named sub-step already completed in a
// previous delivery of this attempt, letting processors skip work on
// redelivery.
func (ec *ExecutionContext) StepCompleted(step string) bool {
	for _, s := range ec.Task.ExecutionSteps {
		if s.Step == step && s.Status == "completed" {
			return true
		}
	}
	return false
}
