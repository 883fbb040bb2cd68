// Package intent defines the boundary to the intent-parsing collaborator
// that classifies a task's free-text description. The pipeline treats the
// parser as a black box: parse failures never block submission, the task is
// simply persisted without a classification and routed to the default
// processor.
package intent

import (
	"context"
	"errors"
)

// DefaultIntent is the classification used when the parser's confidence is
// below the configured threshold, or when no keyword matches. The processor
// registry resolves it, and the absence of any intent, to the default
// processor.
const DefaultIntent = "general"

// Result is the structured classification of a task description.
type Result struct {
	Intent     string         `json:"intent"`
	Entities   map[string]any `json:"entities,omitempty"`
	Confidence float64        `json:"confidence"`
}

// Parser maps a free-text description into a structured intent.
// Implementations may call external services; callers must tolerate errors
// and accept the task without a classification.
type Parser interface {
	Parse(ctx context.Context, description string) (*Result, error)
}

// Common parser errors.
var (
	// ErrEmptyDescription is returned when there is nothing to parse.
	ErrEmptyDescription = errors.New("description cannot be empty")

	// ErrInvalidConfig is returned when a parser is constructed with
	// missing or malformed configuration.
	ErrInvalidConfig = errors.New("invalid parser configuration")

	// ErrInvalidResponse is returned when the upstream service answers in
	// an unexpected shape.
	ErrInvalidResponse = errors.New("invalid parser response")
)
