/*
errors.go - Centralized error types for the dues engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Data-quality errors - A single malformed record (inverted or missing
     period). Recovered locally by the normalizer and reported as
     diagnostics, never returned from the calculator.
  2. Contract errors - The caller broke the calculator's input contract
     (e.g. a record without a user ID). Returned immediately, no partial
     result.
  3. Store errors - Lookups and persistence failures.

USAGE:
  if errors.Is(err, generic.ErrMissingUserID) {
      var recErr *generic.RecordError
      errors.As(err, &recErr) // recErr.Index is the offending record
  }
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
	// ErrInvalidPeriod is returned when a period is malformed (end before start
	// or a missing bound).
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrUnknownIntervalType is returned for an interval type outside
	// monthly/quarterly/half_yearly/annual.
	ErrUnknownIntervalType = errors.New("unknown interval type")

	// ErrMissingUserID is a contract error: every payment period must name
	// the member it belongs to.
	ErrMissingUserID = errors.New("payment period without user id")

	ErrMemberNotFound   = errors.New("member not found")
	ErrCategoryNotFound = errors.New("payment category not found")
	ErrPaymentNotFound  = errors.New("payment not found")

	// ErrDuplicateIdempotencyKey is returned when a payment with the same
	// idempotency key already exists. Expected on client retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	ErrDuplicateCategory = errors.New("payment category name already exists")

	// ErrInvalidAmount is returned for non-positive or unparsable amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidMethod = errors.New("unknown payment method")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RecordError pins a contract violation to a position in an input batch.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrUnknownIntervalType) ||
		errors.Is(err, ErrMissingUserID) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidMethod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsConflict returns true if the write clashes with existing data.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrDuplicateCategory)
}
