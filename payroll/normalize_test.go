package payroll_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagm95/CXinas-bakery-system/payroll"
)

func TestNormalize_SeedsMissingEmployees(t *testing.T) {
	// GIVEN: an empty store and a roster with one bad cadence
	roster := []payroll.Employee{weeklyBaker(), monthlyCashier(), {ID: "E3", PaymentCadence: "daily"}}

	// WHEN
	out, report := payroll.Normalize(payroll.CycleStore{}, roster, day("2024-01-01"))

	// THEN: valid employees get a cycle starting today, the bad one is reported
	require.Len(t, out, 2)
	assert.Equal(t, "2024-01-01", out["E1"].Current.PeriodStart.String())
	assert.Equal(t, payroll.CadenceMonthly, out["E2"].Current.Cadence)
	assert.Empty(t, out["E1"].History)
	assert.ElementsMatch(t, []string{"E1", "E2"}, report.Seeded)
	assert.Equal(t, []string{"E3"}, report.InvalidIDs())
	assert.True(t, report.Changed())
}

func TestNormalize_ArchivesTerminalCurrent(t *testing.T) {
	c, err := payroll.NewInitialCycle(weeklyBaker(), day("2024-01-01"))
	require.NoError(t, err)
	c.Status = payroll.StatusPaid
	c.PayslipID = "PS-A"
	in := payroll.CycleStore{"E1": {Current: c, History: []payroll.Cycle{}}}

	out, report := payroll.Normalize(in, []payroll.Employee{weeklyBaker()}, day("2024-01-09"))

	pack := out["E1"]
	require.Len(t, pack.History, 1)
	assert.Equal(t, "PS-A", pack.History[0].PayslipID)
	assert.Equal(t, "2024-01-08", pack.Current.PeriodStart.String())
	assert.Equal(t, payroll.StatusPending, pack.Current.Status)
	assert.Equal(t, []string{"E1"}, report.Archived)

	// Input untouched
	assert.Equal(t, payroll.StatusPaid, in["E1"].Current.Status)
	assert.Empty(t, in["E1"].History)
}

func TestNormalize_DoesNotArchiveTwice(t *testing.T) {
	// GIVEN: a Paid current that already sits at history[0]
	c, err := payroll.NewInitialCycle(weeklyBaker(), day("2024-01-01"))
	require.NoError(t, err)
	c.Status = payroll.StatusPaid
	c.PayslipID = "PS-A"
	in := payroll.CycleStore{"E1": {Current: c, History: []payroll.Cycle{c}}}

	out, _ := payroll.Normalize(in, nil, day("2024-01-09"))

	assert.Len(t, out["E1"].History, 1)
	assert.Equal(t, "2024-01-08", out["E1"].Current.PeriodStart.String())
}

func TestNormalize_RelabelsAndIsIdempotent(t *testing.T) {
	roster := []payroll.Employee{weeklyBaker(), monthlyCashier()}
	seeded, _ := payroll.Normalize(payroll.CycleStore{}, roster, day("2024-01-01"))

	// WHEN: a week later the weekly cycle is due
	out, report := payroll.Normalize(seeded, roster, day("2024-01-08"))
	assert.Equal(t, payroll.StatusDue, out["E1"].Current.Status)
	assert.Equal(t, payroll.StatusPending, out["E2"].Current.Status)
	assert.Equal(t, []string{"E1"}, report.Relabeled)

	// THEN: a second pass changes nothing
	again, report := payroll.Normalize(out, roster, day("2024-01-08"))
	assert.False(t, report.Changed())
	assert.Equal(t, out["E1"].Current.Status, again["E1"].Current.Status)
}

func TestNormalize_KeepsReversedLabel(t *testing.T) {
	c, err := payroll.NewInitialCycle(weeklyBaker(), day("2024-01-01"))
	require.NoError(t, err)
	c.Status = payroll.StatusReversed
	in := payroll.CycleStore{"E1": {Current: c}}

	out, report := payroll.Normalize(in, nil, day("2024-01-20"))
	assert.Equal(t, payroll.StatusReversed, out["E1"].Current.Status)
	assert.False(t, report.Changed())
}
