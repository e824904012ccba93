/*
ledger.go - Payments ledger operations

PURPOSE:
  The ledger is the list of PaymentLogEntry rows, newest first. It is
  append-and-delete only: rows are added when a cycle is closed and removed
  when that closure is undone. Nothing edits a row in place.

SEE ALSO:
  - processor.go: Appends entries
  - reversal.go: Removes entries by payslip id
  - aggregate.go: Reads entries for totals
*/
package payroll

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// newLedgerEntry builds the row recorded for a closed cycle.
func newLedgerEntry(emp Employee, closed Cycle, amount decimal.Decimal, paidAt time.Time, prorated bool) PaymentLogEntry {
	return PaymentLogEntry{
		ID:           "LOG-" + uuid.NewString(),
		PayslipID:    closed.PayslipID,
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name,
		Amount:       amount,
		Cadence:      closed.Cadence,
		PeriodStart:  closed.PeriodStart,
		PeriodEnd:    closed.PeriodEnd,
		PaidAt:       paidAt,
		Prorated:     prorated,
	}
}

// prependEntries returns ledger with entries added in front. entries are in
// the order they were paid; the last one paid ends up first.
func prependEntries(ledger []PaymentLogEntry, entries []PaymentLogEntry) []PaymentLogEntry {
	out := make([]PaymentLogEntry, 0, len(ledger)+len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	return append(out, ledger...)
}

// removeByPayslip drops every row whose payslip id is in ids and reports the
// ids that matched nothing.
func removeByPayslip(ledger []PaymentLogEntry, ids []string) (rest []PaymentLogEntry, removed []PaymentLogEntry, missing []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = false
	}
	rest = make([]PaymentLogEntry, 0, len(ledger))
	for _, e := range ledger {
		if _, ok := want[e.PayslipID]; ok {
			want[e.PayslipID] = true
			removed = append(removed, e)
			continue
		}
		rest = append(rest, e)
	}
	for _, id := range ids {
		if !want[id] {
			missing = append(missing, id)
		}
	}
	return rest, removed, missing
}

// FindByPayslip returns the ledger row for a payslip id.
func FindByPayslip(ledger []PaymentLogEntry, payslipID string) (PaymentLogEntry, bool) {
	for _, e := range ledger {
		if e.PayslipID == payslipID {
			return e, true
		}
	}
	return PaymentLogEntry{}, false
}

// Recent returns at most limit rows; limit <= 0 means all.
func Recent(ledger []PaymentLogEntry, limit int) []PaymentLogEntry {
	if limit <= 0 || limit >= len(ledger) {
		return ledger
	}
	return ledger[:limit]
}
