/*
repository.go - Typed access to the payroll documents

PURPOSE:
  Wraps a generic.KV and turns the three JSON documents (roster, cycle
  store, ledger) into typed values. Every record is validated on the way in
  and on the way out, so a malformed row written by another client surfaces
  as a RecordError instead of a wrong payout. Roster rows are the exception
  on the way out: ScreenRoster sets bad rows aside so the rest still pay.

DOCUMENTS:
  Keys.Roster: []Employee (owned by the roster surface, read-only for the engine)
  Keys.Cycles: CycleStore
  Keys.Ledger: []PaymentLogEntry, newest first

SEE ALSO:
  - generic/store.go: KV contract
  - engine.go: The only writer of cycles and ledger
*/
package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

// Keys names the documents in the substrate.
type Keys struct {
	Roster string
	Cycles string
	Ledger string
}

// DefaultKeys are the keys used by the bakery web console.
func DefaultKeys() Keys {
	return Keys{
		Roster: "bakery_employees",
		Cycles: "bakery_employee_cycles",
		Ledger: "bakery_employee_payments",
	}
}

var errDuplicateEmployee = errors.New("duplicate employee id")

type Repository struct {
	kv       generic.KV
	keys     Keys
	validate *validator.Validate
}

func NewRepository(kv generic.KV, keys Keys) *Repository {
	v := validator.New()
	v.RegisterStructValidation(validateEmployee, Employee{})
	v.RegisterStructValidation(validateCycle, Cycle{})
	v.RegisterStructValidation(validateAuditEntry, AuditEntry{})
	v.RegisterStructValidation(validateLedgerEntry, PaymentLogEntry{})
	return &Repository{kv: kv, keys: keys, validate: v}
}

func (r *Repository) Keys() Keys { return r.keys }

// =============================================================================
// ROSTER
// =============================================================================

// Roster returns the rows as stored. The roster is written by other clients,
// so callers that compute with it run it through ScreenRoster first.
func (r *Repository) Roster(ctx context.Context) ([]Employee, generic.Version, error) {
	var roster []Employee
	version, err := r.load(ctx, r.keys.Roster, &roster)
	if err != nil {
		return nil, 0, err
	}
	return roster, version, nil
}

// ScreenRoster splits the roster into rows fit to compute with and rows that
// fail validation. Of several rows sharing an id only the first is kept.
// Unknown cadences pass here; Normalize reports those.
func (r *Repository) ScreenRoster(roster []Employee) ([]Employee, []*RecordError) {
	valid := make([]Employee, 0, len(roster))
	var rejected []*RecordError
	seen := make(map[string]bool, len(roster))
	for i, emp := range roster {
		if err := r.ValidateEmployee(emp); err != nil {
			rec := err.(*RecordError)
			if rec.Record == "" {
				rec.Record = fmt.Sprintf("row %d", i)
			}
			rejected = append(rejected, rec)
			continue
		}
		if seen[emp.ID] {
			rejected = append(rejected, &RecordError{Key: r.keys.Roster, Record: emp.ID, Err: errDuplicateEmployee})
			continue
		}
		seen[emp.ID] = true
		valid = append(valid, emp)
	}
	return valid, rejected
}

// SaveRoster writes the roster. Every row must validate and ids must be unique.
func (r *Repository) SaveRoster(ctx context.Context, roster []Employee, expected generic.Version) (generic.Version, error) {
	seen := make(map[string]bool, len(roster))
	for _, emp := range roster {
		if err := r.ValidateEmployee(emp); err != nil {
			return 0, err
		}
		if seen[emp.ID] {
			return 0, &RecordError{Key: r.keys.Roster, Record: emp.ID, Err: errDuplicateEmployee}
		}
		seen[emp.ID] = true
	}
	if roster == nil {
		roster = []Employee{}
	}
	return r.save(ctx, r.keys.Roster, roster, expected)
}

// ValidateEmployee checks one roster row. Unknown cadences pass: the engine
// skips those rows and reports them instead of failing the whole roster.
func (r *Repository) ValidateEmployee(emp Employee) error {
	if err := r.validate.Struct(emp); err != nil {
		return &RecordError{Key: r.keys.Roster, Record: emp.ID, Err: err}
	}
	return nil
}

// =============================================================================
// CYCLES
// =============================================================================

func (r *Repository) Cycles(ctx context.Context) (CycleStore, generic.Version, error) {
	cycles := CycleStore{}
	version, err := r.load(ctx, r.keys.Cycles, &cycles)
	if err != nil {
		return nil, 0, err
	}
	if cycles == nil {
		cycles = CycleStore{}
	}
	if err := r.validateCycles(cycles); err != nil {
		return nil, 0, err
	}
	return cycles, version, nil
}

func (r *Repository) SaveCycles(ctx context.Context, cycles CycleStore, expected generic.Version) (generic.Version, error) {
	if err := r.validateCycles(cycles); err != nil {
		return 0, err
	}
	return r.save(ctx, r.keys.Cycles, cycles, expected)
}

func (r *Repository) validateCycles(cycles CycleStore) error {
	for id, pack := range cycles {
		if err := r.validate.Struct(pack); err != nil {
			return &RecordError{Key: r.keys.Cycles, Record: id, Err: err}
		}
		if pack.Current.EmployeeID != id {
			return &RecordError{Key: r.keys.Cycles, Record: id, Err: fmt.Errorf("current cycle belongs to %q", pack.Current.EmployeeID)}
		}
	}
	return nil
}

// =============================================================================
// LEDGER
// =============================================================================

func (r *Repository) Ledger(ctx context.Context) ([]PaymentLogEntry, generic.Version, error) {
	var entries []PaymentLogEntry
	version, err := r.load(ctx, r.keys.Ledger, &entries)
	if err != nil {
		return nil, 0, err
	}
	for _, e := range entries {
		if err := r.validate.Struct(e); err != nil {
			return nil, 0, &RecordError{Key: r.keys.Ledger, Record: e.ID, Err: err}
		}
	}
	if entries == nil {
		entries = []PaymentLogEntry{}
	}
	return entries, version, nil
}

func (r *Repository) SaveLedger(ctx context.Context, entries []PaymentLogEntry, expected generic.Version) (generic.Version, error) {
	for _, e := range entries {
		if err := r.validate.Struct(e); err != nil {
			return 0, &RecordError{Key: r.keys.Ledger, Record: e.ID, Err: err}
		}
	}
	if entries == nil {
		entries = []PaymentLogEntry{}
	}
	return r.save(ctx, r.keys.Ledger, entries, expected)
}

// =============================================================================
// HELPERS
// =============================================================================

func (r *Repository) load(ctx context.Context, key string, dst any) (generic.Version, error) {
	data, version, err := r.kv.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	if len(data) == 0 || string(data) == "null" {
		return version, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return 0, &generic.CorruptRecordError{Key: key, Err: err}
	}
	return version, nil
}

func (r *Repository) save(ctx context.Context, key string, value any, expected generic.Version) (generic.Version, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", key, err)
	}
	version, err := r.kv.Set(ctx, key, data, expected)
	if err != nil {
		return 0, fmt.Errorf("set %s: %w", key, err)
	}
	return version, nil
}

// =============================================================================
// STRUCT-LEVEL RULES
// =============================================================================

func validateEmployee(sl validator.StructLevel) {
	emp := sl.Current().Interface().(Employee)
	if emp.Salary.IsNegative() {
		sl.ReportError(emp.Salary, "Salary", "salary", "gte0", "")
	}
}

func validateCycle(sl validator.StructLevel) {
	c := sl.Current().Interface().(Cycle)
	if c.PeriodStart.IsZero() {
		sl.ReportError(c.PeriodStart, "PeriodStart", "period_start", "required", "")
		return
	}
	if c.Period().Validate() != nil {
		sl.ReportError(c.PeriodEnd, "PeriodEnd", "period_end", "gtefield", "PeriodStart")
	}
	switch {
	case c.DueDate.IsZero():
		sl.ReportError(c.DueDate, "DueDate", "due_date", "required", "")
	case c.DueDate.Before(c.PeriodStart):
		sl.ReportError(c.DueDate, "DueDate", "due_date", "gtfield", "PeriodStart")
	case c.DueDate.Equal(c.PeriodStart) && !c.Status.IsTerminal():
		// Only a pay-to-date closure on the first day collapses due onto start.
		sl.ReportError(c.DueDate, "DueDate", "due_date", "gtfield", "PeriodStart")
	}
	if c.Bonuses.IsNegative() {
		sl.ReportError(c.Bonuses, "Bonuses", "bonuses", "gte0", "")
	}
	if c.Deductions.IsNegative() {
		sl.ReportError(c.Deductions, "Deductions", "deductions", "gte0", "")
	}
}

func validateAuditEntry(sl validator.StructLevel) {
	a := sl.Current().Interface().(AuditEntry)
	if a.Timestamp.IsZero() {
		sl.ReportError(a.Timestamp, "Timestamp", "timestamp", "required", "")
	}
}

func validateLedgerEntry(sl validator.StructLevel) {
	e := sl.Current().Interface().(PaymentLogEntry)
	if e.PaidAt.IsZero() {
		sl.ReportError(e.PaidAt, "PaidAt", "paid_at", "required", "")
	}
	if e.Amount.IsNegative() {
		sl.ReportError(e.Amount, "Amount", "amount", "gte0", "")
	}
	if e.PeriodEnd.Before(e.PeriodStart) {
		sl.ReportError(e.PeriodEnd, "PeriodEnd", "period_end", "gtefield", "PeriodStart")
	}
}
