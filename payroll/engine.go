/*
engine.go - Payroll cycle engine

PURPOSE:
  Entry point for every payroll read and mutation. The engine owns the
  cycle store and the payments ledger; the roster is read-only input.

TRANSACTIONS:
  A mutation touches exactly one employee:
    1. acquire that employee's lock (Locker)
    2. read roster + cycle store (with version)
    3. Normalize for today
    4. apply the change to the employee's pack
    5. write the whole cycle store back, conditional on the version read
       in step 2; on ErrConcurrentModification go back to step 2
  Ledger rows are written after the cycle write with the same
  read/modify/conditional-write loop. Bulk operations are loops of
  single-employee transactions and report partial success.

NOTIFICATION:
  After a successful write the engine publishes a best-effort event.
  A failing Notifier is logged and never fails the operation.

SEE ALSO:
  - processor.go: Pay in full, pay to date, pay all
  - reversal.go: Undo, undo all
  - normalize.go: Canonical store shape before every read
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dagm95/CXinas-bakery-system/generic"
	"github.com/dagm95/CXinas-bakery-system/generic/store"
)

const (
	defaultMaxAttempts = 5
	ledgerLockKey      = "payroll:ledger"
	ledgerWriteTimeout = 30 * time.Second
)

// Observer receives engine counters. api/metrics.go exports them to Prometheus.
type Observer interface {
	PaymentRecorded(cadence Cadence, amount decimal.Decimal, prorated bool)
	PaymentReversed(cadence Cadence)
	LedgerInconsistency()
	WriteConflict(document string)
}

type nopObserver struct{}

func (nopObserver) PaymentRecorded(Cadence, decimal.Decimal, bool) {}
func (nopObserver) PaymentReversed(Cadence)                        {}
func (nopObserver) LedgerInconsistency()                           {}
func (nopObserver) WriteConflict(string)                           {}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	repo        *Repository
	locker      generic.Locker
	notifier    generic.Notifier
	observer    Observer
	logger      *zap.Logger
	now         func() time.Time
	loc         *time.Location
	payslipID   PayslipIDFunc
	origin      string
	maxAttempts int
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithLocation sets the zone in which instants become calendar days.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithLocker(l generic.Locker) Option     { return func(e *Engine) { e.locker = l } }
func WithNotifier(n generic.Notifier) Option { return func(e *Engine) { e.notifier = n } }
func WithObserver(o Observer) Option         { return func(e *Engine) { e.observer = o } }
func WithLogger(l *zap.Logger) Option        { return func(e *Engine) { e.logger = l } }
func WithPayslipIDs(f PayslipIDFunc) Option  { return func(e *Engine) { e.payslipID = f } }

// WithOrigin stamps published events with the name of the publishing process.
func WithOrigin(origin string) Option { return func(e *Engine) { e.origin = origin } }

// WithMaxAttempts bounds optimistic write retries.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func NewEngine(repo *Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:        repo,
		locker:      store.NewKeyedMutex(),
		observer:    nopObserver{},
		logger:      zap.NewNop(),
		now:         time.Now,
		loc:         time.UTC,
		payslipID:   NewPayslipID,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Repository exposes the engine's persistence layer.
func (e *Engine) Repository() *Repository { return e.repo }

// Location is the zone used to derive calendar days.
func (e *Engine) Location() *time.Location { return e.loc }

// Today returns the current calendar day in the engine's location.
func (e *Engine) Today() generic.Date { return generic.DateOf(e.now(), e.loc) }

// =============================================================================
// READS
// =============================================================================

// View is a normalized snapshot of all payroll documents.
type View struct {
	Now    time.Time
	Today  generic.Date
	Roster []Employee
	Cycles CycleStore
	Ledger []PaymentLogEntry
	Report NormalizeReport
}

// Employee looks up a roster row.
func (v *View) Employee(id string) (Employee, bool) {
	return findEmployee(v.Roster, id)
}

// Snapshot reads and normalizes everything. Normalization results are
// persisted opportunistically; a lost race is ignored because the winner
// wrote an equally normalized store.
func (e *Engine) Snapshot(ctx context.Context) (*View, error) {
	return e.snapshot(ctx, true)
}

func (e *Engine) snapshot(ctx context.Context, persist bool) (*View, error) {
	now := e.now()
	today := generic.DateOf(now, e.loc)

	roster, rejected, err := e.loadRoster(ctx)
	if err != nil {
		return nil, err
	}
	cycles, version, err := e.repo.Cycles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cycles: %w", err)
	}
	ledger, _, err := e.repo.Ledger(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	normalized, report := Normalize(cycles, roster, today)
	for _, rec := range rejected {
		report.Rejected = append(report.Rejected, rec.Record)
	}
	e.logInvalid(report)

	if persist && report.Changed() {
		if _, err := e.repo.SaveCycles(ctx, normalized, version); err != nil {
			if !generic.IsRetryable(err) {
				return nil, fmt.Errorf("persist normalized cycles: %w", err)
			}
			e.observer.WriteConflict("cycles")
		} else {
			e.publish(ctx, generic.TopicCyclesChanged, report.ChangedIDs())
		}
	}

	return &View{
		Now:    now,
		Today:  today,
		Roster: roster,
		Cycles: normalized,
		Ledger: ledger,
		Report: report,
	}, nil
}

// Refresh normalizes and persists the cycle store. Used by the scheduler so
// that Due/Overdue transitions reach listeners without a client read.
func (e *Engine) Refresh(ctx context.Context) (NormalizeReport, error) {
	v, err := e.Snapshot(ctx)
	if err != nil {
		return NormalizeReport{}, err
	}
	return v.Report, nil
}

// CycleView is one employee's cycle state as shown on the payroll page.
type CycleView struct {
	Employee     Employee        `json:"employee"`
	Current      Cycle           `json:"current"`
	History      []Cycle         `json:"history"`
	FullNet      decimal.Decimal `json:"full_net"`
	Accrued      decimal.Decimal `json:"accrued"`
	DaysUntilDue int             `json:"days_until_due"`
}

// Cycles returns the cycle view of every roster employee with a valid cadence,
// in roster order.
func (e *Engine) Cycles(ctx context.Context) ([]CycleView, error) {
	v, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]CycleView, 0, len(v.Roster))
	for _, emp := range v.Roster {
		pack, ok := v.Cycles[emp.ID]
		if !ok {
			continue
		}
		views = append(views, newCycleView(emp, pack, v.Today))
	}
	return views, nil
}

// Cycle returns one employee's cycle view.
func (e *Engine) Cycle(ctx context.Context, employeeID string) (*CycleView, error) {
	v, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	emp, pack, err := v.lookup(employeeID)
	if err != nil {
		return nil, err
	}
	cv := newCycleView(emp, pack, v.Today)
	return &cv, nil
}

// Accrued returns what the employee has earned so far in the current cycle,
// as of asOf (today when zero).
func (e *Engine) Accrued(ctx context.Context, employeeID string, asOf generic.Date) (decimal.Decimal, error) {
	v, err := e.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	emp, pack, err := v.lookup(employeeID)
	if err != nil {
		return decimal.Zero, err
	}
	if asOf.IsZero() {
		asOf = v.Today
	}
	return ProratedNet(pack.Current, emp.Salary, asOf), nil
}

// Stats returns the dashboard aggregates.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	v, err := e.Snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Aggregate(v.Cycles, v.Roster, v.Ledger, v.Now, e.loc)
	stats.Skipped = append(stats.Skipped, v.Report.Rejected...)
	return stats, nil
}

// Ledger returns the most recent ledger rows, newest first.
func (e *Engine) Ledger(ctx context.Context, limit int) ([]PaymentLogEntry, error) {
	entries, _, err := e.repo.Ledger(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return Recent(entries, limit), nil
}

// Payslip returns the ledger row of one payslip.
func (e *Engine) Payslip(ctx context.Context, payslipID string) (PaymentLogEntry, error) {
	entries, _, err := e.repo.Ledger(ctx)
	if err != nil {
		return PaymentLogEntry{}, fmt.Errorf("load ledger: %w", err)
	}
	entry, ok := FindByPayslip(entries, payslipID)
	if !ok {
		return PaymentLogEntry{}, fmt.Errorf("%w: %s", ErrPayslipNotFound, payslipID)
	}
	return entry, nil
}

func newCycleView(emp Employee, pack Pack, today generic.Date) CycleView {
	history := pack.History
	if history == nil {
		history = []Cycle{}
	}
	return CycleView{
		Employee:     emp,
		Current:      pack.Current,
		History:      history,
		FullNet:      FullNet(pack.Current, emp.Salary),
		Accrued:      ProratedNet(pack.Current, emp.Salary, today),
		DaysUntilDue: DaysUntilDue(pack.Current, today),
	}
}

func (v *View) lookup(employeeID string) (Employee, Pack, error) {
	emp, ok := findEmployee(v.Roster, employeeID)
	if !ok {
		return Employee{}, Pack{}, fmt.Errorf("%w: %s", ErrEmployeeNotFound, employeeID)
	}
	pack, ok := v.Cycles[employeeID]
	if !ok {
		return Employee{}, Pack{}, &InvalidCadenceError{EmployeeID: emp.ID, Cadence: emp.PaymentCadence}
	}
	return emp, pack, nil
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// SetAdjustments replaces bonuses and/or deductions on the employee's open
// cycle. A nil value leaves that field unchanged.
func (e *Engine) SetAdjustments(ctx context.Context, employeeID string, bonuses, deductions *decimal.Decimal) (*Cycle, error) {
	if (bonuses != nil && bonuses.IsNegative()) || (deductions != nil && deductions.IsNegative()) {
		return nil, ErrNegativeAdjustment
	}
	var updated Cycle
	err := e.withEmployee(ctx, employeeID, func(tx *employeeTx) error {
		if (tx.stored != nil && tx.stored.Current.Status.IsTerminal()) || tx.pack.Current.Status.IsTerminal() {
			return fmt.Errorf("%w: employee %s", ErrCycleLocked, employeeID)
		}
		if bonuses != nil {
			tx.pack.Current.Bonuses = bonuses.Round(2)
		}
		if deductions != nil {
			tx.pack.Current.Deductions = deductions.Round(2)
		}
		updated = tx.pack.Current.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("adjustments updated",
		zap.String("employee_id", employeeID),
		zap.String("bonuses", updated.Bonuses.StringFixed(2)),
		zap.String("deductions", updated.Deductions.StringFixed(2)))
	e.publish(ctx, generic.TopicCyclesChanged, []string{employeeID})
	return &updated, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// employeeTx is the working state of one single-employee transaction.
type employeeTx struct {
	now   time.Time
	today generic.Date
	emp   Employee
	// stored is the pack as persisted before normalization, nil when the
	// employee had no pack yet.
	stored *Pack
	pack   Pack
}

// withEmployee runs fn under the employee's lock and commits tx.pack with an
// optimistic write, retrying fn on a lost race. Returning an error from fn
// aborts without writing.
func (e *Engine) withEmployee(ctx context.Context, employeeID string, fn func(tx *employeeTx) error) error {
	unlock, err := e.locker.Lock(ctx, "payroll:employee:"+employeeID)
	if err != nil {
		return fmt.Errorf("lock employee %s: %w", employeeID, err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		now := e.now()
		today := generic.DateOf(now, e.loc)

		roster, rejected, err := e.loadRoster(ctx)
		if err != nil {
			return err
		}
		emp, ok := findEmployee(roster, employeeID)
		if !ok {
			for _, rec := range rejected {
				if rec.Record == employeeID {
					return fmt.Errorf("%w: %w", ErrInvalidEmployee, rec)
				}
			}
			return fmt.Errorf("%w: %s", ErrEmployeeNotFound, employeeID)
		}
		cycles, version, err := e.repo.Cycles(ctx)
		if err != nil {
			return fmt.Errorf("load cycles: %w", err)
		}

		normalized, report := Normalize(cycles, roster, today)
		pack, ok := normalized[employeeID]
		if !ok {
			return &InvalidCadenceError{EmployeeID: emp.ID, Cadence: emp.PaymentCadence}
		}

		tx := &employeeTx{now: now, today: today, emp: emp, pack: pack.Clone()}
		if raw, ok := cycles[employeeID]; ok {
			raw := raw.Clone()
			tx.stored = &raw
		}
		if err := fn(tx); err != nil {
			return err
		}

		tx.pack.Current.Status = ResolveStatus(tx.pack.Current, today)
		normalized[employeeID] = tx.pack
		_, err = e.repo.SaveCycles(ctx, normalized, version)
		if err == nil {
			if ids := report.ChangedIDs(); len(ids) > 0 {
				e.logger.Debug("normalized cycles during transaction", zap.Strings("employee_ids", ids))
			}
			return nil
		}
		if !generic.IsRetryable(err) || attempt >= e.maxAttempts {
			return fmt.Errorf("commit cycles for %s: %w", employeeID, err)
		}
		e.observer.WriteConflict("cycles")
		e.logger.Debug("cycle store write conflict, retrying",
			zap.String("employee_id", employeeID), zap.Int("attempt", attempt))
	}
}

// ledgerContext detaches a ledger write from the caller's cancellation. It
// follows a committed cycle write and must not be skipped.
func ledgerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
}

// updateLedger applies fn to the freshly read ledger and writes the result
// conditionally, retrying on a lost race.
func (e *Engine) updateLedger(ctx context.Context, fn func([]PaymentLogEntry) []PaymentLogEntry) error {
	unlock, err := e.locker.Lock(ctx, ledgerLockKey)
	if err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		entries, version, err := e.repo.Ledger(ctx)
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		_, err = e.repo.SaveLedger(ctx, fn(entries), version)
		if err == nil {
			return nil
		}
		if !generic.IsRetryable(err) || attempt >= e.maxAttempts {
			return fmt.Errorf("commit ledger: %w", err)
		}
		e.observer.WriteConflict("ledger")
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) publish(ctx context.Context, topic generic.Topic, employeeIDs []string) {
	if e.notifier == nil {
		return
	}
	ev := generic.Event{Topic: topic, EmployeeIDs: employeeIDs, Origin: e.origin, At: e.now().UTC()}
	if err := e.notifier.Publish(ctx, ev); err != nil {
		e.logger.Warn("publish change notification failed", zap.String("topic", string(topic)), zap.Error(err))
	}
}

// loadRoster reads the roster and sets aside rows that fail validation, so
// one bad row does not stop payroll for everyone else.
func (e *Engine) loadRoster(ctx context.Context) ([]Employee, []*RecordError, error) {
	raw, _, err := e.repo.Roster(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load roster: %w", err)
	}
	roster, rejected := e.repo.ScreenRoster(raw)
	for _, rec := range rejected {
		e.logger.Warn("skipping invalid roster row", zap.String("employee_id", rec.Record), zap.Error(rec.Err))
	}
	return roster, rejected, nil
}

func (e *Engine) logInvalid(report NormalizeReport) {
	for _, ic := range report.Invalid {
		e.logger.Warn("skipping employee with invalid cadence",
			zap.String("employee_id", ic.EmployeeID), zap.String("cadence", ic.Cadence))
	}
}

func findEmployee(roster []Employee, id string) (Employee, bool) {
	for _, emp := range roster {
		if emp.ID == id {
			return emp, true
		}
	}
	return Employee{}, false
}

// sortedIDs returns the store's employee ids whose pack satisfies keep.
func sortedIDs(cycles CycleStore, keep func(Pack) bool) []string {
	var ids []string
	for id, pack := range cycles {
		if keep(pack) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// SkippedEmployee explains why a bulk operation left an employee alone.
type SkippedEmployee struct {
	EmployeeID string `json:"employee_id"`
	Reason     string `json:"reason"`
	err        error
}

// Err is the underlying error.
func (s SkippedEmployee) Err() error { return s.err }

func skipped(id string, err error) SkippedEmployee {
	var reason string
	var ic *InvalidCadenceError
	switch {
	case errors.Is(err, ErrAlreadyPaid):
		reason = "already paid"
	case errors.As(err, &ic):
		reason = "invalid cadence"
	case errors.Is(err, ErrNoHistoryToUndo):
		reason = "nothing to undo"
	case errors.Is(err, ErrInvalidEmployee):
		reason = "invalid roster row"
	default:
		reason = err.Error()
	}
	return SkippedEmployee{EmployeeID: id, Reason: reason, err: err}
}
