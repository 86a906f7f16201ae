// Package core provides the Hibiki dialogue pipeline and the client that wires it
// to language models and long-term memory storage.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrStoreUnavailable indicates that the memory backend is unreachable or failed
	// a search or create call.
	ErrStoreUnavailable = errors.New("memory store unavailable")

	// ErrMalformedMemoryRecord indicates that a search result lacks a string content
	// field. Retrieval degrades locally and never returns it.
	ErrMalformedMemoryRecord = errors.New("malformed memory record")

	// ErrPlanningFailed indicates that the guidance model call failed or timed out.
	ErrPlanningFailed = errors.New("planning failed")

	// ErrResponseFailed indicates that the persona model call failed or timed out.
	ErrResponseFailed = errors.New("response failed")

	// ErrMemoryWriteFailed indicates that the reply was produced but the exchange
	// could not be stored.
	ErrMemoryWriteFailed = errors.New("memory write failed")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// MemoryError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &MemoryError{
//	    Op:  "NewClient",
//	    Err: ErrInvalidConfig,
//	}
//	// Error() returns: "hibiki: NewClient: invalid configuration"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "hibiki: <Op>: <Err>"
func (e *MemoryError) Error() string {
	return fmt.Sprintf("hibiki: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with MemoryError.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewMemoryError("Create", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "Search", "Create", "NewClient")
//   - err: The underlying error to wrap
//
// Returns a MemoryError, or nil if err is nil.
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}

// StageError reports a pipeline failure tagged with the stage that failed.
//
// Kind is one of the stage sentinels (ErrStoreUnavailable, ErrPlanningFailed,
// ErrResponseFailed, ErrMemoryWriteFailed). Both Kind and the cause are visible to
// errors.Is, so a planning timeout matches ErrPlanningFailed and
// context.DeadlineExceeded at the same time.
//
// Example:
//
//	result, err := runner.Run(ctx, "user_001", "hello")
//	var stageErr *core.StageError
//	if errors.As(err, &stageErr) {
//	    log.Printf("stage %s failed", stageErr.Stage)
//	}
type StageError struct {
	// Stage is the stage that failed.
	Stage Stage

	// Kind is the failure kind sentinel.
	Kind error

	// Err is the underlying cause.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "hibiki: <stage>: <kind>: <cause>"
func (e *StageError) Error() string {
	return fmt.Sprintf("hibiki: %s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap returns both the kind and the cause.
func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// newStageError creates a StageError. If err already is a StageError it is returned as is.
func newStageError(stage Stage, kind, err error) error {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// KindName returns a short snake_case name for the failure kind of err, suitable
// as a metric label. It returns "unknown" for errors that carry no known kind.
func KindName(err error) string {
	// the stage kind wins over sentinels carried by the cause
	var stageErr *StageError
	if errors.As(err, &stageErr) && stageErr.Kind != nil && stageErr.Kind != err {
		return KindName(stageErr.Kind)
	}

	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrPlanningFailed):
		return "planning_failed"
	case errors.Is(err, ErrResponseFailed):
		return "response_failed"
	case errors.Is(err, ErrMemoryWriteFailed):
		return "memory_write_failed"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "unknown"
	}
}
