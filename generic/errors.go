/*
errors.go - Centralized error types for the storage substrate

PURPOSE:
  Errors shared by every store adapter (memory, SQLite, Redis) so that
  the payroll engine can react to them without knowing the backend.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Concurrency errors - optimistic version check failed, lock not obtained
  2. Store errors - decode failures, unavailable substrate
  3. Validation errors - malformed periods

USAGE:
  if generic.IsRetryable(err) {
      // re-read the blob and apply the mutation again
  }

SEE ALSO:
  - store.go: KV contract returning these errors
  - payroll/errors.go: domain errors layered on top
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
	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrLockNotObtained is returned when a keyed lock could not be acquired in time.
	ErrLockNotObtained = errors.New("lock not obtained")

	// ErrStoreUnavailable is returned when the substrate cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrCorruptRecord is returned when a stored blob cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// VersionConflictError reports which key lost an optimistic write.
type VersionConflictError struct {
	Key      string
	Expected Version
	Actual   Version
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %q: expected %d, found %d", e.Key, e.Expected, e.Actual)
}

func (e *VersionConflictError) Unwrap() error {
	return ErrConcurrentModification
}

// CorruptRecordError is returned when the JSON under a key does not decode.
type CorruptRecordError struct {
	Key string
	Err error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt record under %q: %v", e.Key, e.Err)
}

func (e *CorruptRecordError) Unwrap() []error {
	return []error{ErrCorruptRecord, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrLockNotObtained)
}
