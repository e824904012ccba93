// Package payslip renders a recorded payment as a one-page PDF.
package payslip

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/dagm95/CXinas-bakery-system/payroll"
)

// Slip is everything printed on a payslip. Bonuses and Deductions come from
// the archived cycle and may be zero when it is no longer in history.
type Slip struct {
	Business   string
	Entry      payroll.PaymentLogEntry
	Bonuses    decimal.Decimal
	Deductions decimal.Decimal
	Location   *time.Location
}

// FromHistory builds a Slip for entry, taking adjustments from the matching
// archived cycle if one exists.
func FromHistory(business string, entry payroll.PaymentLogEntry, history []payroll.Cycle, loc *time.Location) Slip {
	s := Slip{Business: business, Entry: entry, Location: loc}
	for _, c := range history {
		if c.PayslipID == entry.PayslipID {
			s.Bonuses = c.Bonuses
			s.Deductions = c.Deductions
			break
		}
	}
	return s
}

// Render writes the PDF to w.
func Render(w io.Writer, s Slip) error {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	e := s.Entry

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Payslip "+e.PayslipID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	title := "Payslip"
	if s.Business != "" {
		title = s.Business + " - Payslip"
	}
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	line := func(label, value string) {
		pdf.CellFormat(50, 8, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 8, value, "", 1, "L", false, 0, "")
	}
	line("Payslip", e.PayslipID)
	line("Employee", fmt.Sprintf("%s (%s)", e.EmployeeName, e.EmployeeID))
	line("Cadence", string(e.Cadence))
	line("Period", fmt.Sprintf("%s to %s", e.PeriodStart, e.PeriodEnd))
	line("Paid at", e.PaidAt.In(loc).Format("2006-01-02 15:04 MST"))
	pdf.Ln(4)

	line("Bonuses", s.Bonuses.StringFixed(2))
	line("Deductions", s.Deductions.StringFixed(2))
	pdf.SetFont("Helvetica", "B", 12)
	line("Net paid", e.Amount.StringFixed(2))

	if e.Prorated {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.Ln(4)
		pdf.MultiCell(0, 6, "Prorated payment: the period was closed early and the amount covers the days worked.", "", "L", false)
	}

	return pdf.Output(w)
}
