package payroll_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagm95/CXinas-bakery-system/generic"
	"github.com/dagm95/CXinas-bakery-system/payroll"
)

func day(s string) generic.Date { return generic.MustParseDate(s) }

func weeklyBaker() payroll.Employee {
	return payroll.Employee{ID: "E1", Name: "Abebe", Salary: decimal.NewFromInt(700), PaymentCadence: "weekly"}
}

func monthlyCashier() payroll.Employee {
	return payroll.Employee{ID: "E2", Name: "Hanna", Salary: decimal.NewFromInt(3100), PaymentCadence: "monthly"}
}

// =============================================================================
// CYCLE FACTORY
// =============================================================================

func TestNewInitialCycle_Weekly(t *testing.T) {
	c, err := payroll.NewInitialCycle(weeklyBaker(), day("2024-01-01"))
	require.NoError(t, err)

	assert.Equal(t, payroll.CadenceWeekly, c.Cadence)
	assert.Equal(t, "2024-01-01", c.PeriodStart.String())
	assert.Equal(t, "2024-01-07", c.PeriodEnd.String())
	assert.Equal(t, "2024-01-08", c.DueDate.String())
	assert.Equal(t, payroll.StatusPending, c.Status)
	assert.True(t, c.Bonuses.IsZero())
	assert.True(t, c.Deductions.IsZero())
	assert.Empty(t, c.PayslipID)
	assert.Empty(t, c.Audit)
}

func TestNewInitialCycle_Monthly(t *testing.T) {
	cases := []struct {
		start, end, due string
	}{
		{"2024-01-15", "2024-01-31", "2024-02-15"},
		{"2024-01-31", "2024-01-31", "2024-02-29"},
		{"2023-01-31", "2023-01-31", "2023-02-28"},
		{"2024-02-01", "2024-02-29", "2024-03-01"},
		{"2024-12-10", "2024-12-31", "2025-01-10"},
	}
	for _, tc := range cases {
		c, err := payroll.NewInitialCycle(monthlyCashier(), day(tc.start))
		require.NoError(t, err)
		assert.Equal(t, tc.end, c.PeriodEnd.String(), "end for start %s", tc.start)
		assert.Equal(t, tc.due, c.DueDate.String(), "due for start %s", tc.start)
		assert.True(t, c.DueDate.After(c.PeriodStart))
	}
}

func TestNewInitialCycle_CadenceDefaultsAndErrors(t *testing.T) {
	legacy := payroll.Employee{ID: "E9", Salary: decimal.NewFromInt(100)}
	c, err := payroll.NewInitialCycle(legacy, day("2024-03-05"))
	require.NoError(t, err)
	assert.Equal(t, payroll.CadenceMonthly, c.Cadence, "missing cadence means monthly")

	bad := payroll.Employee{ID: "E10", PaymentCadence: "fortnightly"}
	_, err = payroll.NewInitialCycle(bad, day("2024-03-05"))
	require.Error(t, err)
	assert.ErrorIs(t, err, payroll.ErrInvalidCadence)
	var ic *payroll.InvalidCadenceError
	require.ErrorAs(t, err, &ic)
	assert.Equal(t, "E10", ic.EmployeeID)
	assert.Equal(t, "fortnightly", ic.Cadence)
}

func TestNextCycleFrom_StartsAfterClosedEnd(t *testing.T) {
	first, err := payroll.NewInitialCycle(weeklyBaker(), day("2024-01-01"))
	require.NoError(t, err)
	first.Bonuses = decimal.NewFromInt(50)
	first.Status = payroll.StatusPaid
	first.PayslipID = "PS-1"

	next, err := payroll.NextCycleFrom(first)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08", next.PeriodStart.String())
	assert.Equal(t, "2024-01-14", next.PeriodEnd.String())
	assert.Equal(t, "2024-01-15", next.DueDate.String())
	assert.True(t, next.Bonuses.IsZero(), "adjustments reset")
	assert.Equal(t, payroll.StatusPending, next.Status)
	assert.Empty(t, next.PayslipID)

	// Monthly successor of a clamped month
	m, err := payroll.NewInitialCycle(monthlyCashier(), day("2024-01-31"))
	require.NoError(t, err)
	mNext, err := payroll.NextCycleFrom(m)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", mNext.PeriodStart.String())
	assert.Equal(t, "2024-02-29", mNext.PeriodEnd.String())
}

func TestCadence_Correctness(t *testing.T) {
	// Every generated weekly cycle spans 7 days and every monthly cycle ends
	// on a month end, for a full year of successors.
	w, err := payroll.NewInitialCycle(weeklyBaker(), day("2024-01-03"))
	require.NoError(t, err)
	m, err := payroll.NewInitialCycle(monthlyCashier(), day("2024-01-03"))
	require.NoError(t, err)

	for i := 0; i < 52; i++ {
		assert.Equal(t, 7, w.Period().InclusiveDays())
		assert.Equal(t, 7, generic.DaysBetween(w.PeriodStart, w.DueDate))
		w, err = payroll.NextCycleFrom(w)
		require.NoError(t, err)
	}
	for i := 0; i < 12; i++ {
		assert.True(t, m.PeriodEnd.Equal(m.PeriodStart.EndOfMonth()))
		assert.True(t, m.DueDate.After(m.PeriodStart))
		m, err = payroll.NextCycleFrom(m)
		require.NoError(t, err)
	}
}

// =============================================================================
// STATUS RESOLVER
// =============================================================================

func TestResolveStatus(t *testing.T) {
	c, err := payroll.NewInitialCycle(weeklyBaker(), day("2024-01-01"))
	require.NoError(t, err)

	assert.Equal(t, payroll.StatusPending, payroll.ResolveStatus(c, day("2024-01-07")))
	assert.Equal(t, payroll.StatusDue, payroll.ResolveStatus(c, day("2024-01-08")))
	assert.Equal(t, payroll.StatusOverdue, payroll.ResolveStatus(c, day("2024-01-09")))

	for _, stored := range []payroll.Status{payroll.StatusPaid, payroll.StatusEarlyPaid, payroll.StatusReversed} {
		c.Status = stored
		assert.Equal(t, stored, payroll.ResolveStatus(c, day("2024-03-01")), "stored status %s is kept", stored)
	}
}

func TestResolveStatus_Idempotent(t *testing.T) {
	c, err := payroll.NewInitialCycle(weeklyBaker(), day("2024-01-01"))
	require.NoError(t, err)

	for _, today := range []string{"2024-01-02", "2024-01-08", "2024-01-20"} {
		once := payroll.ResolveStatus(c, day(today))
		c2 := c
		c2.Status = once
		assert.Equal(t, once, payroll.ResolveStatus(c2, day(today)))
	}
}

func TestDaysUntilDue(t *testing.T) {
	c, err := payroll.NewInitialCycle(weeklyBaker(), day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 7, payroll.DaysUntilDue(c, day("2024-01-01")))
	assert.Equal(t, 0, payroll.DaysUntilDue(c, day("2024-01-08")))
	assert.Equal(t, -2, payroll.DaysUntilDue(c, day("2024-01-10")))
}

// =============================================================================
// PRORATION
// =============================================================================

func TestElapsedDaysInclusive(t *testing.T) {
	start, end := day("2024-01-01"), day("2024-01-07")
	assert.Equal(t, 1, payroll.ElapsedDaysInclusive(start, start, end))
	assert.Equal(t, 4, payroll.ElapsedDaysInclusive(start, day("2024-01-04"), end))
	assert.Equal(t, 7, payroll.ElapsedDaysInclusive(start, day("2024-01-30"), end))
	assert.Equal(t, 1, payroll.ElapsedDaysInclusive(start, day("2023-12-25"), end))
}

func TestProratedNet_ExactCents(t *testing.T) {
	c, err := payroll.NewInitialCycle(weeklyBaker(), day("2024-01-01"))
	require.NoError(t, err)

	net := payroll.ProratedNet(c, decimal.NewFromInt(700), day("2024-01-04"))
	assert.Equal(t, "400.00", net.StringFixed(2))

	// 1000 * 3/7 = 428.571... rounds to cents
	net = payroll.ProratedNet(c, decimal.NewFromInt(1000), day("2024-01-03"))
	assert.Equal(t, "428.57", net.StringFixed(2))
}

func TestProratedNet_BoundsAndMonotonic(t *testing.T) {
	c, err := payroll.NewInitialCycle(monthlyCashier(), day("2024-01-01"))
	require.NoError(t, err)
	c.Bonuses = decimal.NewFromInt(120)
	c.Deductions = decimal.NewFromInt(45)
	salary := decimal.NewFromInt(3100)
	full := payroll.FullNet(c, salary)

	prev := decimal.Zero
	for d := c.PeriodStart; d.BeforeOrEqual(c.PeriodEnd); d = d.AddDays(1) {
		net := payroll.ProratedNet(c, salary, d)
		assert.False(t, net.IsNegative())
		assert.True(t, net.LessThanOrEqual(full), "prorated %s exceeds full %s on %s", net, full, d)
		assert.True(t, net.GreaterThanOrEqual(prev), "not monotonic on %s", d)
		prev = net
	}
	assert.True(t, payroll.ProratedNet(c, salary, c.PeriodEnd).Equal(full), "last day pays in full")
}

func TestNet_FloorsAtZero(t *testing.T) {
	c, err := payroll.NewInitialCycle(weeklyBaker(), day("2024-01-01"))
	require.NoError(t, err)
	c.Deductions = decimal.NewFromInt(1000)

	assert.True(t, payroll.FullNet(c, decimal.NewFromInt(700)).IsZero())
	assert.True(t, payroll.ProratedNet(c, decimal.NewFromInt(700), day("2024-01-04")).IsZero())
}

// =============================================================================
// PAYSLIP IDS
// =============================================================================

func TestNewPayslipID_Shape(t *testing.T) {
	at := time.Date(2024, time.January, 9, 10, 0, 0, 0, time.UTC)
	a := payroll.NewPayslipID("101", at)
	b := payroll.NewPayslipID("201", at)

	assert.Regexp(t, `^PS-[0-9A-Z]+01-[0-9A-F]{4}$`, a)
	assert.NotEqual(t, a, b, "shared suffix and timestamp still yield distinct ids")
	assert.Regexp(t, `^PS-[0-9A-Z]+07-`, payroll.NewPayslipID("7", at))
}
