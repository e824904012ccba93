package payroll

import "github.com/dagm95/CXinas-bakery-system/generic"

// ResolveStatus derives the display status of a cycle on day today.
// Stored statuses (Paid, Early Paid, Reversed) are returned unchanged;
// otherwise the cycle is Pending before its due date, Due on it and
// Overdue after it.
func ResolveStatus(c Cycle, today generic.Date) Status {
	if c.Status.isAuthoritative() {
		return c.Status
	}
	switch {
	case today.Before(c.DueDate):
		return StatusPending
	case today.Equal(c.DueDate):
		return StatusDue
	default:
		return StatusOverdue
	}
}

// DaysUntilDue is negative once the due date has passed.
func DaysUntilDue(c Cycle, today generic.Date) int {
	return generic.DaysBetween(today, c.DueDate)
}
