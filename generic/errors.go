/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The payroll package and the stores wrap these with context; the HTTP
  layer maps them to status codes with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Authorization - caller may not run, finalize or read payroll
  2. Invalid input - malformed period selector, negative adjustments
  3. Record state  - unknown record, record already processed
  4. Concurrency   - lock contention on a (driver, period) key

SEE ALSO:
  - payroll/settlement.go: Raises authorization and record-state errors
  - api/handlers.go: Maps errors to HTTP status codes
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
	// ErrInvalidPeriod is returned for a malformed (year, month, half) selector.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrUnauthorized is returned when the caller may not perform an operation.
	// Raised before any read or write.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRecordNotFound is returned when a salary record id does not exist.
	ErrRecordNotFound = errors.New("salary record not found")

	// ErrRecordProcessed is returned when a change targets a processed record.
	ErrRecordProcessed = errors.New("salary record already processed")

	// ErrConcurrentModification is returned when a keyed lock cannot be taken
	// or a conditional write lost a race it cannot resolve.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidAmount is returned for negative or otherwise unusable amounts.
	ErrInvalidAmount = errors.New("invalid amount")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PeriodError describes why a period selector was rejected.
type PeriodError struct {
	Year   int
	Month  int
	Half   int
	Reason string
}

func (e *PeriodError) Error() string {
	return fmt.Sprintf("invalid period %d-%02d half %d: %s", e.Year, e.Month, e.Half, e.Reason)
}

func (e *PeriodError) Unwrap() error { return ErrInvalidPeriod }

// AuthorizationError names the actor and the permission that was missing.
// An empty ActorID means the caller was not authenticated at all.
type AuthorizationError struct {
	ActorID    string
	Permission string
}

func (e *AuthorizationError) Error() string {
	if e.ActorID == "" {
		return fmt.Sprintf("unauthenticated: %s requires an authenticated caller", e.Permission)
	}
	return fmt.Sprintf("forbidden: %s lacks permission %s", e.ActorID, e.Permission)
}

func (e *AuthorizationError) Unwrap() error { return ErrUnauthorized }

// Unauthenticated reports whether no caller identity was present.
func (e *AuthorizationError) Unauthenticated() bool { return e.ActorID == "" }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
