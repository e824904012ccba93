/*
types.go - Payroll domain records

PURPOSE:
  The records the engine reads and writes: roster employees, pay cycles,
  per-employee cycle packs, and payments ledger entries. All of them are
  persisted as JSON documents through generic.KV.

KEY CONCEPTS:
  Cycle:  One pay period for one employee (start, end, due date, adjustments)
  Pack:   The employee's current cycle plus closed cycles, most recent first
  Status: Pending/Due/Overdue are derived from the clock; Paid/Early Paid are
          written when a cycle is closed and are never recomputed

SEE ALSO:
  - factory.go: How cycles are created
  - status.go: How derived statuses are computed
  - repository.go: Validation at the persistence boundary
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

// =============================================================================
// CADENCE
// =============================================================================

// Cadence is how often an employee is paid.
type Cadence string

const (
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// Cadences lists the supported cadences in display order.
var Cadences = []Cadence{CadenceWeekly, CadenceMonthly}

func (c Cadence) Valid() bool {
	return c == CadenceWeekly || c == CadenceMonthly
}

// ParseCadence maps a stored cadence string to a Cadence.
// Legacy roster rows carry no cadence and are paid monthly.
func ParseCadence(s string) (Cadence, bool) {
	switch Cadence(s) {
	case "":
		return CadenceMonthly, true
	case CadenceWeekly, CadenceMonthly:
		return Cadence(s), true
	default:
		return Cadence(s), false
	}
}

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending   Status = "Pending"
	StatusDue       Status = "Due"
	StatusOverdue   Status = "Overdue"
	StatusPaid      Status = "Paid"
	StatusEarlyPaid Status = "Early Paid"

	// StatusReversed is accepted on records written by older clients.
	// The engine itself never produces it: undo reopens cycles as Pending.
	StatusReversed Status = "Reversed"
)

// IsTerminal reports whether the cycle has been closed by a payout.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusEarlyPaid
}

// isAuthoritative statuses are stored, not derived from the clock.
func (s Status) isAuthoritative() bool {
	return s.IsTerminal() || s == StatusReversed
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditAction string

const (
	AuditPay        AuditAction = "pay"
	AuditPayPartial AuditAction = "pay-partial"
	AuditUndo       AuditAction = "undo"
)

// AuditEntry records one action taken on a cycle.
type AuditEntry struct {
	Action    AuditAction      `json:"action" validate:"oneof=pay pay-partial undo"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// isPayout reports whether the entry is a pay or pay-partial record.
func (a AuditEntry) isPayout() bool {
	return a.Action == AuditPay || a.Action == AuditPayPartial
}

// =============================================================================
// EMPLOYEE - Roster row (owned outside the engine, read-only here)
// =============================================================================

type Employee struct {
	ID             string          `json:"id" validate:"required"`
	Name           string          `json:"name"`
	Salary         decimal.Decimal `json:"salary"`
	PaymentCadence string          `json:"payment_cadence,omitempty"`
}

// Cadence resolves the employee's cadence. ok is false for unknown values.
func (e Employee) Cadence() (Cadence, bool) {
	return ParseCadence(e.PaymentCadence)
}

// =============================================================================
// CYCLE
// =============================================================================

type Cycle struct {
	EmployeeID  string          `json:"employee_id" validate:"required"`
	Cadence     Cadence         `json:"cadence" validate:"oneof=weekly monthly"`
	PeriodStart generic.Date    `json:"period_start"`
	PeriodEnd   generic.Date    `json:"period_end"`
	DueDate     generic.Date    `json:"due_date"`
	Bonuses     decimal.Decimal `json:"bonuses"`
	Deductions  decimal.Decimal `json:"deductions"`
	Status      Status          `json:"status" validate:"oneof=Pending Due Overdue Paid 'Early Paid' Reversed"`
	PayslipID   string          `json:"payslip_id,omitempty"`
	Audit       []AuditEntry    `json:"audit" validate:"dive"`

	// Boundaries the cycle had before a pay-to-date closure shortened it.
	OriginalPeriodEnd *generic.Date `json:"original_period_end,omitempty"`
	OriginalDueDate   *generic.Date `json:"original_due_date,omitempty"`
}

// Period returns [PeriodStart, PeriodEnd].
func (c Cycle) Period() generic.Period {
	return generic.Period{Start: c.PeriodStart, End: c.PeriodEnd}
}

// Clone returns a deep copy.
func (c Cycle) Clone() Cycle {
	out := c
	if c.Audit != nil {
		out.Audit = make([]AuditEntry, len(c.Audit))
		copy(out.Audit, c.Audit)
	}
	if c.OriginalPeriodEnd != nil {
		d := *c.OriginalPeriodEnd
		out.OriginalPeriodEnd = &d
	}
	if c.OriginalDueDate != nil {
		d := *c.OriginalDueDate
		out.OriginalDueDate = &d
	}
	return out
}

// =============================================================================
// PACK + CYCLE STORE
// =============================================================================

// Pack is the cycle state of one employee.
type Pack struct {
	Current Cycle   `json:"current"`
	History []Cycle `json:"history" validate:"dive"`
}

func (p Pack) Clone() Pack {
	out := Pack{Current: p.Current.Clone()}
	if p.History != nil {
		out.History = make([]Cycle, len(p.History))
		for i, c := range p.History {
			out.History[i] = c.Clone()
		}
	}
	return out
}

// CycleStore maps employee id to pack.
type CycleStore map[string]Pack

func (s CycleStore) Clone() CycleStore {
	out := make(CycleStore, len(s))
	for id, p := range s {
		out[id] = p.Clone()
	}
	return out
}

// =============================================================================
// PAYMENT LOG ENTRY - Ledger row
// =============================================================================

type PaymentLogEntry struct {
	ID           string          `json:"id" validate:"required"`
	PayslipID    string          `json:"payslip_id" validate:"required"`
	EmployeeID   string          `json:"employee_id" validate:"required"`
	EmployeeName string          `json:"employee_name"`
	Amount       decimal.Decimal `json:"amount"`
	Cadence      Cadence         `json:"cadence" validate:"oneof=weekly monthly"`
	PeriodStart  generic.Date    `json:"period_start"`
	PeriodEnd    generic.Date    `json:"period_end"`
	PaidAt       time.Time       `json:"paid_at"`
	Prorated     bool            `json:"prorated"`
}
