package payroll

import (
	"errors"
	"fmt"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadyPaid is returned when paying a cycle that is already closed.
	ErrAlreadyPaid = errors.New("cycle already paid")

	// ErrNoHistoryToUndo is returned by undo when nothing was ever paid.
	// Callers treat it as a no-op.
	ErrNoHistoryToUndo = errors.New("no paid cycle to undo")

	// ErrInvalidCadence is returned for roster rows with an unknown cadence.
	ErrInvalidCadence = errors.New("invalid payment cadence")

	// ErrLedgerInconsistency is reported when a reversed payslip has no ledger entry.
	ErrLedgerInconsistency = errors.New("ledger inconsistency")

	// ErrEmployeeNotFound is returned for ids absent from the roster.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrPayslipNotFound is returned when no ledger entry carries the payslip id.
	ErrPayslipNotFound = errors.New("payslip not found")

	// ErrNegativeAdjustment is returned when bonuses or deductions are below zero.
	ErrNegativeAdjustment = errors.New("adjustments must not be negative")

	// ErrCycleLocked is returned when editing adjustments of a closed cycle.
	ErrCycleLocked = errors.New("cycle is closed")

	// ErrInvalidRecord is returned when a stored record fails validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidEmployee is returned for a roster row that fails validation.
	// The engine leaves such rows out and reports them.
	ErrInvalidEmployee = errors.New("invalid roster row")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AlreadyPaidError names the cycle that blocked a payment.
type AlreadyPaidError struct {
	EmployeeID string
	Status     Status
	PayslipID  string
}

func (e *AlreadyPaidError) Error() string {
	return fmt.Sprintf("employee %s: current cycle is %s (payslip %s)", e.EmployeeID, e.Status, e.PayslipID)
}

func (e *AlreadyPaidError) Unwrap() error { return ErrAlreadyPaid }

// InvalidCadenceError names the roster row that was skipped.
type InvalidCadenceError struct {
	EmployeeID string
	Cadence    string
}

func (e *InvalidCadenceError) Error() string {
	return fmt.Sprintf("employee %s: unsupported payment cadence %q", e.EmployeeID, e.Cadence)
}

func (e *InvalidCadenceError) Unwrap() error { return ErrInvalidCadence }

// LedgerInconsistencyError is raised when undo finds no ledger entry for the
// payslip it reverses. Cycle state is reverted regardless.
type LedgerInconsistencyError struct {
	EmployeeID string
	PayslipID  string
}

func (e *LedgerInconsistencyError) Error() string {
	if e.PayslipID == "" {
		return fmt.Sprintf("employee %s: reversed cycle carries no payslip id", e.EmployeeID)
	}
	return fmt.Sprintf("employee %s: no ledger entry for payslip %s", e.EmployeeID, e.PayslipID)
}

func (e *LedgerInconsistencyError) Unwrap() error { return ErrLedgerInconsistency }

// RecordError locates a record that failed validation.
type RecordError struct {
	Key    string
	Record string
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Key, e.Record, e.Err)
}

func (e *RecordError) Unwrap() []error { return []error{ErrInvalidRecord, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsBenign returns true for errors that callers report as no-ops.
func IsBenign(err error) bool {
	return errors.Is(err, ErrAlreadyPaid) || errors.Is(err, ErrNoHistoryToUndo)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) || errors.Is(err, ErrPayslipNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCadence) ||
		errors.Is(err, ErrNegativeAdjustment) ||
		errors.Is(err, generic.ErrInvalidPeriod)
}

// IsConflict returns true when the request clashes with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrCycleLocked) ||
		errors.Is(err, ErrInvalidEmployee) ||
		generic.IsRetryable(err)
}
