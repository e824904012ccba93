package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

// =============================================================================
// CYCLE FACTORY - Period boundaries per cadence
// =============================================================================

// Boundaries returns the end and due date of a cycle starting on start.
//
//	weekly:  end = start + 6 days, due = start + 7 days
//	monthly: end = last day of start's month,
//	         due = same day-of-month next month (clamped to month end)
func Boundaries(cadence Cadence, start generic.Date) (end, due generic.Date, err error) {
	switch cadence {
	case CadenceWeekly:
		return start.AddDays(6), start.AddDays(7), nil
	case CadenceMonthly:
		return start.EndOfMonth(), start.AddMonthsClamped(1), nil
	default:
		return generic.Date{}, generic.Date{}, fmt.Errorf("%w: %q", ErrInvalidCadence, cadence)
	}
}

// NewInitialCycle opens the first cycle of an employee, starting today.
func NewInitialCycle(emp Employee, today generic.Date) (Cycle, error) {
	cadence, ok := emp.Cadence()
	if !ok {
		return Cycle{}, &InvalidCadenceError{EmployeeID: emp.ID, Cadence: emp.PaymentCadence}
	}
	return newCycle(emp.ID, cadence, today)
}

// NextCycleFrom opens the cycle that follows closed: it starts the day after
// closed.PeriodEnd with zero adjustments and an empty audit trail.
func NextCycleFrom(closed Cycle) (Cycle, error) {
	return newCycle(closed.EmployeeID, closed.Cadence, closed.PeriodEnd.AddDays(1))
}

func newCycle(employeeID string, cadence Cadence, start generic.Date) (Cycle, error) {
	end, due, err := Boundaries(cadence, start)
	if err != nil {
		return Cycle{}, err
	}
	return Cycle{
		EmployeeID:  employeeID,
		Cadence:     cadence,
		PeriodStart: start,
		PeriodEnd:   end,
		DueDate:     due,
		Bonuses:     decimal.Zero,
		Deductions:  decimal.Zero,
		Status:      StatusPending,
		Audit:       []AuditEntry{},
	}, nil
}
