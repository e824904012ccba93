package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

// UpcomingWindowDays is how far ahead a due date still counts as upcoming.
const UpcomingWindowDays = 7

// Stats are the payroll dashboard figures.
type Stats struct {
	AsOf               generic.Date    `json:"as_of"`
	TotalPaidThisMonth decimal.Decimal `json:"total_paid_this_month"`
	OverdueCount       int             `json:"overdue_count"`
	UpcomingCount      int             `json:"upcoming_count"`

	// Roster salary per cadence, i.e. what one full run of each cadence costs.
	ScheduledByCadence map[Cadence]decimal.Decimal `json:"scheduled_by_cadence"`
	// Ledger amounts per cadence paid during the current month.
	PaidThisMonthByCadence map[Cadence]decimal.Decimal `json:"paid_this_month_by_cadence"`
	EmployeesByCadence     map[Cadence]int             `json:"employees_by_cadence"`

	// Roster rows left out because of an unknown cadence.
	Skipped []string `json:"skipped,omitempty"`
}

// Aggregate computes dashboard figures from normalized cycles. It is a pure
// read: nothing is modified.
//
// Paid this month is taken from the pay and pay-partial audit entries of
// closed cycles, so an undone payment stops counting as soon as its audit
// entry is stripped.
func Aggregate(cycles CycleStore, roster []Employee, ledger []PaymentLogEntry, now time.Time, loc *time.Location) Stats {
	today := generic.DateOf(now, loc)
	stats := Stats{
		AsOf:                   today,
		TotalPaidThisMonth:     decimal.Zero,
		ScheduledByCadence:     make(map[Cadence]decimal.Decimal, len(Cadences)),
		PaidThisMonthByCadence: make(map[Cadence]decimal.Decimal, len(Cadences)),
		EmployeesByCadence:     make(map[Cadence]int, len(Cadences)),
	}
	for _, c := range Cadences {
		stats.ScheduledByCadence[c] = decimal.Zero
		stats.PaidThisMonthByCadence[c] = decimal.Zero
	}

	for _, emp := range roster {
		cadence, ok := emp.Cadence()
		if !ok {
			stats.Skipped = append(stats.Skipped, emp.ID)
			continue
		}
		stats.ScheduledByCadence[cadence] = stats.ScheduledByCadence[cadence].Add(emp.Salary)
		stats.EmployeesByCadence[cadence]++

		pack, ok := cycles[emp.ID]
		if !ok {
			continue
		}
		for _, h := range pack.History {
			for _, a := range h.Audit {
				if a.isPayout() && a.Amount != nil && generic.DateOf(a.Timestamp, loc).SameMonth(today) {
					stats.TotalPaidThisMonth = stats.TotalPaidThisMonth.Add(*a.Amount)
				}
			}
		}

		status := ResolveStatus(pack.Current, today)
		if status == StatusOverdue {
			stats.OverdueCount++
		}
		if isUpcoming(pack.Current, status, today) {
			stats.UpcomingCount++
		}
	}

	for _, e := range ledger {
		if !generic.DateOf(e.PaidAt, loc).SameMonth(today) {
			continue
		}
		if _, ok := stats.PaidThisMonthByCadence[e.Cadence]; ok {
			stats.PaidThisMonthByCadence[e.Cadence] = stats.PaidThisMonthByCadence[e.Cadence].Add(e.Amount)
		}
	}
	return stats
}

func isUpcoming(c Cycle, status Status, today generic.Date) bool {
	if status == StatusPending || status == StatusDue {
		return true
	}
	days := DaysUntilDue(c, today)
	return days >= 0 && days <= UpcomingWindowDays
}
