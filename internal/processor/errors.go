package processor

import (
	"errors"
	"fmt"
)

// TransientError marks a failure that may succeed on a later attempt
// (upstream timeout, rate limit). The retry controller re-enqueues the
// task with backoff until the retry budget runs out.
type TransientError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transient: %s", e.Reason)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError.
func Transient(reason string, err error) *TransientError {
	return &TransientError{Reason: reason, Err: err}
}

// PermanentError marks a failure that no retry can fix (malformed
// parameters, content rejected upstream). The task fails terminally with
// the reason recorded in error_message.
type PermanentError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("permanent: %s", e.Reason)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as a PermanentError.
func Permanent(reason string, err error) *PermanentError {
	return &PermanentError{Reason: reason, Err: err}
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
// Everything else, including plain errors, is handled as transient so an
// unclassified infrastructure failure still gets its retries.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Registry errors.
var (
	// ErrDuplicateIntent is returned when two processors register the same intent.
	ErrDuplicateIntent = errors.New("intent already registered")

	// ErrNilProcessor is returned when registering a nil processor.
	ErrNilProcessor = errors.New("processor cannot be nil")
)
