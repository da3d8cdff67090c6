/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The leave package wraps these with domain context.

ERROR CATEGORIES:
  1. Validation errors - Malformed input, rejected before any mutation
  2. Transition errors - State machine rule violations
  3. Concurrency errors - Optimistic version conflicts on a balance row
  4. Store errors - Missing rows, database failures

NOT AN ERROR:
  A restore that would drive used days below zero is floored and reported
  as a warning on the mutation result (see leave.InsufficientBalanceWarning).

SEE ALSO:
  - retry.go: Bounded retry for concurrency conflicts
  - api/handlers.go: HTTP status mapping
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input. Nothing is persisted.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidAdjustment is returned when a manual adjustment would make
	// allocated days negative.
	ErrInvalidAdjustment = errors.New("invalid adjustment")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrNotFound is returned when a referenced row doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrMissingJoinDate is a data error: the employee record has no join date.
	ErrMissingJoinDate = errors.New("employee has no join date")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrAppendOnly is returned when something tries to modify an audit row.
	ErrAppendOnly = errors.New("audit trail is append-only")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// AdjustmentError reports an adjustment that would drive allocated days negative.
type AdjustmentError struct {
	Allocated Amount
	Requested Amount
}

func (e *AdjustmentError) Error() string {
	return fmt.Sprintf("invalid adjustment: subtracting %v from allocated %v would be negative",
		e.Requested.Value, e.Allocated.Value)
}

func (e *AdjustmentError) Unwrap() error { return ErrInvalidAdjustment }

// NotFoundError names what was missing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.ID) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidAdjustment) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
