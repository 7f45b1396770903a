/*
errors.go - Centralized error types for the reservation engine

PURPOSE:
  All error kinds in one place. Every operation fails with one of these,
  wrapped with context via %w, so callers branch with errors.Is/errors.As.

ERROR CATEGORIES:
  1. Conflict          - unit not available when the lock was taken
  2. InvalidTransition - state change not allowed from the current state
  3. GuardViolation    - transition blocked by a business rule
  4. Validation        - malformed input
  5. NotFound          - referenced entity does not exist
  6. InvariantViolation - stored data contradicts an invariant (server defect)

USAGE:
  if errors.Is(err, sales.ErrConflict) {
      // unit already taken, do not retry
  }

SEE ALSO:
  - api/handlers.go: Maps kinds to HTTP status codes
*/
package sales

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConflict is returned when the target unit is no longer available.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition is returned for a state change the current state
	// does not allow, e.g. cancelling a cancelled reservation.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrGuardViolation is returned when a business rule blocks a transition.
	ErrGuardViolation = errors.New("guard violation")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation means stored state is corrupt. Never swallowed.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrLockOutsideTx is returned when LockUnit is called without a transaction.
	ErrLockOutsideTx = errors.New("unit lock requires an enclosing transaction")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConflictError reports a unit that cannot be reserved.
type ConflictError struct {
	UnitID UnitID
	Status UnitStatus
}

func (e *ConflictError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("unit %d already has an active reservation", e.UnitID)
	}
	return fmt.Sprintf("unit %d is no longer available (status: %s)", e.UnitID, e.Status)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// TransitionError reports a disallowed state change.
type TransitionError struct {
	Entity string // "reservation" or "payment"
	ID     int64
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %d cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// GuardError reports a transition blocked by a business rule.
type GuardError struct {
	ReservationID ReservationID
	UnitID        UnitID
	Reason        string
}

func (e *GuardError) Error() string {
	if e.ReservationID == 0 {
		return fmt.Sprintf("unit %d: %s", e.UnitID, e.Reason)
	}
	return fmt.Sprintf("reservation %d: %s", e.ReservationID, e.Reason)
}

func (e *GuardError) Unwrap() error {
	return ErrGuardViolation
}

// ValidationError reports a single invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InvariantError reports stored state that contradicts an invariant.
type InvariantError struct {
	Message string
	Err     error
}

func (e *InvariantError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invariant violation: %s: %v", e.Message, e.Err)
	}
	return "invariant violation: " + e.Message
}

func (e *InvariantError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvariantViolation, e.Err}
	}
	return []error{ErrInvariantViolation}
}

// =============================================================================
// HELPERS
// =============================================================================

// Kind names the error category, or "internal" for anything unclassified.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrGuardViolation):
		return "guard_violation"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvariantViolation):
		return "internal"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// IsClientError reports whether err is an expected business or input failure.
func IsClientError(err error) bool {
	switch Kind(err) {
	case "conflict", "invalid_transition", "guard_violation", "validation", "not_found":
		return true
	}
	return false
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
