// Package report exports the payments ledger as a spreadsheet.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/dagm95/CXinas-bakery-system/payroll"
)

const (
	PaymentsSheet = "Payments"
	SummarySheet  = "Summary"
)

var paymentHeaders = []string{
	"Payslip", "Employee ID", "Employee", "Cadence",
	"Period Start", "Period End", "Paid At", "Amount", "Prorated",
}

// WriteLedger writes entries (newest first, as stored) to w as XLSX with a
// per-cadence summary sheet.
func WriteLedger(w io.Writer, entries []payroll.PaymentLogEntry, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", PaymentsSheet); err != nil {
		return err
	}
	if err := writePayments(f, entries, loc); err != nil {
		return err
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	if err := writeSummary(f, entries); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writePayments(f *excelize.File, entries []payroll.PaymentLogEntry, loc *time.Location) error {
	for i, h := range paymentHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(PaymentsSheet, cell, h); err != nil {
			return err
		}
	}

	for i, e := range entries {
		row := []any{
			e.PayslipID,
			e.EmployeeID,
			e.EmployeeName,
			string(e.Cadence),
			e.PeriodStart.String(),
			e.PeriodEnd.String(),
			e.PaidAt.In(loc).Format("2006-01-02 15:04"),
			e.Amount.InexactFloat64(),
			e.Prorated,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(PaymentsSheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, entries []payroll.PaymentLogEntry) error {
	type bucket struct {
		count int
		total decimal.Decimal
	}
	byCadence := map[payroll.Cadence]*bucket{}
	for _, e := range entries {
		b, ok := byCadence[e.Cadence]
		if !ok {
			b = &bucket{}
			byCadence[e.Cadence] = b
		}
		b.count++
		b.total = b.total.Add(e.Amount)
	}

	cadences := make([]string, 0, len(byCadence))
	for c := range byCadence {
		cadences = append(cadences, string(c))
	}
	sort.Strings(cadences)

	header := []any{"Cadence", "Payments", "Total"}
	if err := f.SetSheetRow(SummarySheet, "A1", &header); err != nil {
		return err
	}
	grand := decimal.Zero
	for i, c := range cadences {
		b := byCadence[payroll.Cadence(c)]
		grand = grand.Add(b.total)
		row := []any{c, b.count, b.total.InexactFloat64()}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return err
		}
	}
	cell, _ := excelize.CoordinatesToCellName(1, len(cadences)+2)
	total := []any{"All", len(entries), grand.InexactFloat64()}
	return f.SetSheetRow(SummarySheet, cell, &total)
}
