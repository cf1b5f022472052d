package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while replaying a log.
//
// Runtime errors are fatal for the run. Rule violations are not errors: they
// are recorded as ir.Violation values on the trace's record.
//
// Runtime errors include:
//   - Unknown activity: an event names an activity the graph does not declare
//     (strict mode only)
//   - Run cancelled: the context was cancelled before every trace was replayed
//   - Nil graph: a checker or driver was built without a graph
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// TraceID identifies the affected trace, if any.
	TraceID string

	// Activity identifies the offending activity, if any.
	Activity string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownActivity indicates an event named an undeclared activity.
	ErrCodeUnknownActivity RuntimeErrorCode = "UNKNOWN_ACTIVITY"

	// ErrCodeRunCancelled indicates the run stopped before all traces replayed.
	ErrCodeRunCancelled RuntimeErrorCode = "RUN_CANCELLED"

	// ErrCodeNilGraph indicates a checker was constructed without a graph.
	ErrCodeNilGraph RuntimeErrorCode = "NIL_GRAPH"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.TraceID != "" && e.Activity != "" {
		return fmt.Sprintf("%s: %s (trace=%s, activity=%s)", e.Code, e.Message, e.TraceID, e.Activity)
	}
	if e.TraceID != "" {
		return fmt.Sprintf("%s: %s (trace=%s)", e.Code, e.Message, e.TraceID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

// UnknownActivityError is returned by a strict checker when an event names
// an activity the graph does not declare.
type UnknownActivityError struct {
	TraceID  string
	Activity string
	Position int
}

// Error implements the error interface.
func (e *UnknownActivityError) Error() string {
	return fmt.Sprintf("unknown activity %q at position %d (trace=%s)", e.Activity, e.Position, e.TraceID)
}

// RuntimeError converts e into its RuntimeError form.
func (e *UnknownActivityError) RuntimeError() *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnknownActivity,
		Message:  "event names an activity the graph does not declare",
		TraceID:  e.TraceID,
		Activity: e.Activity,
		Details: map[string]string{
			"position": fmt.Sprintf("%d", e.Position),
		},
		Err: e,
	}
}

// IsUnknownActivity returns true if the error reports an unknown activity.
// Matches both UnknownActivityError and RuntimeError with
// ErrCodeUnknownActivity. Uses errors.As to handle wrapped errors.
func IsUnknownActivity(err error) bool {
	var ue *UnknownActivityError
	if errors.As(err, &ue) {
		return true
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownActivity
	}
	return false
}

// IsCancelled returns true if the run was cancelled.
// Uses errors.As to handle wrapped errors.
func IsCancelled(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeRunCancelled
	}
	return false
}

// NewCancelledError creates a RuntimeError for a cancelled run.
func NewCancelledError(done, total int, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeRunCancelled,
		Message: fmt.Sprintf("run cancelled after %d of %d traces", done, total),
		Details: map[string]string{
			"done":  fmt.Sprintf("%d", done),
			"total": fmt.Sprintf("%d", total),
		},
		Err: cause,
	}
}

// NewNilGraphError creates a RuntimeError for a missing graph.
func NewNilGraphError() *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNilGraph,
		Message: "graph is nil",
	}
}
