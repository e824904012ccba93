package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

// =============================================================================
// CLOSING A CYCLE (pure)
// =============================================================================

// closure is the outcome of closing one employee's current cycle.
type closure struct {
	pack  Pack
	entry PaymentLogEntry
}

// payInFull closes the current cycle at its full net. The cycle is Early Paid
// when closed before its due date and Paid otherwise.
func payInFull(pack Pack, emp Employee, now time.Time, today generic.Date, payslipID string) (closure, error) {
	c := pack.Current.Clone()
	if c.Status.IsTerminal() {
		return closure{}, &AlreadyPaidError{EmployeeID: emp.ID, Status: c.Status, PayslipID: c.PayslipID}
	}

	net := FullNet(c, emp.Salary)
	if today.Before(c.DueDate) {
		c.Status = StatusEarlyPaid
	} else {
		c.Status = StatusPaid
	}
	c.PayslipID = payslipID
	c.Audit = append(c.Audit, AuditEntry{Action: AuditPay, Amount: &net, Timestamp: now})

	return archive(pack, c, emp, net, now, today, false)
}

// payToDate closes the current cycle early, paying only the days elapsed so
// far. The cycle is shortened to end (and fall due) today; its original
// boundaries are kept for undo.
func payToDate(pack Pack, emp Employee, now time.Time, today generic.Date, payslipID string) (closure, error) {
	c := pack.Current.Clone()
	if c.Status.IsTerminal() {
		return closure{}, &AlreadyPaidError{EmployeeID: emp.ID, Status: c.Status, PayslipID: c.PayslipID}
	}

	net := ProratedNet(c, emp.Salary, today)

	originalEnd, originalDue := c.PeriodEnd, c.DueDate
	c.OriginalPeriodEnd = &originalEnd
	c.OriginalDueDate = &originalDue
	end := c.Period().Clamp(today)
	c.PeriodEnd = end
	c.DueDate = end
	c.Status = StatusEarlyPaid
	c.PayslipID = payslipID
	c.Audit = append(c.Audit, AuditEntry{Action: AuditPayPartial, Amount: &net, Timestamp: now})

	return archive(pack, c, emp, net, now, today, true)
}

// archive pushes a closed cycle onto history and installs its successor.
func archive(pack Pack, closed Cycle, emp Employee, net decimal.Decimal, now time.Time, today generic.Date, prorated bool) (closure, error) {
	next, err := NextCycleFrom(closed)
	if err != nil {
		return closure{}, err
	}
	next.Status = ResolveStatus(next, today)
	history := make([]Cycle, 0, len(pack.History)+1)
	history = append(history, closed)
	for _, h := range pack.History {
		history = append(history, h.Clone())
	}
	return closure{
		pack:  Pack{Current: next, History: history},
		entry: newLedgerEntry(emp, closed, net, now, prorated),
	}, nil
}

// =============================================================================
// PAYMENT PROCESSOR
// =============================================================================

// PaymentResult describes one closed cycle.
type PaymentResult struct {
	EmployeeID string          `json:"employee_id"`
	PayslipID  string          `json:"payslip_id"`
	Amount     decimal.Decimal `json:"amount"`
	Status     Status          `json:"status"`
	Prorated   bool            `json:"prorated"`
	Closed     Cycle           `json:"closed"`
	Next       Cycle           `json:"next"`
	Entry      PaymentLogEntry `json:"entry"`
}

// BulkPaymentResult reports a pay-all run.
type BulkPaymentResult struct {
	Cadence  Cadence           `json:"cadence"`
	Count    int               `json:"count"`
	Total    decimal.Decimal   `json:"total"`
	Payments []PaymentResult   `json:"payments"`
	Skipped  []SkippedEmployee `json:"skipped"`
	Failed   []SkippedEmployee `json:"failed"`
}

type closeFunc func(pack Pack, emp Employee, now time.Time, today generic.Date, payslipID string) (closure, error)

// PayInFull pays the employee's current cycle in full.
func (e *Engine) PayInFull(ctx context.Context, employeeID string) (*PaymentResult, error) {
	return e.pay(ctx, employeeID, payInFull)
}

// PayToDate pays the employee's current cycle prorated to today and closes it.
func (e *Engine) PayToDate(ctx context.Context, employeeID string) (*PaymentResult, error) {
	return e.pay(ctx, employeeID, payToDate)
}

func (e *Engine) pay(ctx context.Context, employeeID string, closeCycle closeFunc) (*PaymentResult, error) {
	res, err := e.settle(ctx, employeeID, closeCycle)
	if err != nil {
		return nil, err
	}
	// The cycle is closed at this point; its ledger row is written even if
	// the caller has gone away.
	lctx, cancel := ledgerContext(ctx)
	defer cancel()
	if err := e.recordPayments(lctx, []PaymentResult{*res}); err != nil {
		return res, err
	}
	return res, nil
}

// PayAllForCadence pays in full every employee of the cadence whose current
// cycle is open. Employees already paid are skipped; one failing employee
// does not stop the run. A cancelled context stops the run, but the ledger
// rows of the cycles already closed are still written before ctx.Err() is
// returned.
func (e *Engine) PayAllForCadence(ctx context.Context, cadence Cadence) (*BulkPaymentResult, error) {
	if !cadence.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCadence, cadence)
	}
	v, err := e.snapshot(ctx, false)
	if err != nil {
		return nil, err
	}

	result := &BulkPaymentResult{Cadence: cadence, Total: decimal.Zero, Payments: []PaymentResult{}}
	ids := sortedIDs(v.Cycles, func(p Pack) bool { return p.Current.Cadence == cadence })
loop:
	for _, id := range ids {
		res, err := e.settle(ctx, id, payInFull)
		switch {
		case err == nil:
			result.Payments = append(result.Payments, *res)
			result.Total = result.Total.Add(res.Amount)
		case IsBenign(err) || errors.Is(err, ErrInvalidCadence) || errors.Is(err, ErrInvalidEmployee):
			result.Skipped = append(result.Skipped, skipped(id, err))
		case ctx.Err() != nil:
			result.Failed = append(result.Failed, skipped(id, err))
			break loop
		default:
			e.logger.Error("bulk payment failed for employee", zap.String("employee_id", id), zap.Error(err))
			result.Failed = append(result.Failed, skipped(id, err))
		}
	}
	result.Count = len(result.Payments)

	lctx, cancel := ledgerContext(ctx)
	defer cancel()
	if err := e.recordPayments(lctx, result.Payments); err != nil {
		return result, errors.Join(err, ctx.Err())
	}
	if err := ctx.Err(); err != nil {
		e.logger.Warn("bulk payment interrupted",
			zap.String("cadence", string(cadence)), zap.Int("paid", result.Count), zap.Error(err))
		return result, err
	}
	e.logger.Info("bulk payment completed",
		zap.String("cadence", string(cadence)),
		zap.Int("paid", result.Count),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)),
		zap.String("total", result.Total.StringFixed(2)))
	return result, nil
}

// settle runs the cycle half of a payment: one employee transaction that
// closes the current cycle. The ledger row is returned, not yet written.
func (e *Engine) settle(ctx context.Context, employeeID string, closeCycle closeFunc) (*PaymentResult, error) {
	var res *PaymentResult
	err := e.withEmployee(ctx, employeeID, func(tx *employeeTx) error {
		// A closed cycle still stored as current has not been archived yet;
		// it is the cycle the caller sees as paid.
		if tx.stored != nil && tx.stored.Current.Status.IsTerminal() {
			c := tx.stored.Current
			return &AlreadyPaidError{EmployeeID: employeeID, Status: c.Status, PayslipID: c.PayslipID}
		}
		out, err := closeCycle(tx.pack, tx.emp, tx.now, tx.today, e.payslipID(employeeID, tx.now))
		if err != nil {
			return err
		}
		tx.pack = out.pack
		closed := out.pack.History[0]
		res = &PaymentResult{
			EmployeeID: employeeID,
			PayslipID:  closed.PayslipID,
			Amount:     out.entry.Amount,
			Status:     closed.Status,
			Prorated:   out.entry.Prorated,
			Closed:     closed,
			Next:       out.pack.Current,
			Entry:      out.entry,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, generic.TopicCyclesChanged, []string{employeeID})
	return res, nil
}

// recordPayments appends the ledger rows of committed closures in one write.
// A failure here leaves closed cycles without ledger rows, which is logged
// and reported as a ledger inconsistency.
func (e *Engine) recordPayments(ctx context.Context, payments []PaymentResult) error {
	if len(payments) == 0 {
		return nil
	}
	entries := make([]PaymentLogEntry, len(payments))
	for i, p := range payments {
		entries[i] = p.Entry
	}
	err := e.updateLedger(ctx, func(ledger []PaymentLogEntry) []PaymentLogEntry {
		return prependEntries(ledger, entries)
	})
	if err != nil {
		errs := []error{err}
		for _, p := range payments {
			e.observer.LedgerInconsistency()
			e.logger.Error("ledger append failed after cycle was closed",
				zap.String("employee_id", p.EmployeeID), zap.String("payslip_id", p.PayslipID), zap.Error(err))
			errs = append(errs, &LedgerInconsistencyError{EmployeeID: p.EmployeeID, PayslipID: p.PayslipID})
		}
		return errors.Join(errs...)
	}

	ids := make([]string, len(payments))
	for i, p := range payments {
		ids[i] = p.EmployeeID
		e.observer.PaymentRecorded(p.Closed.Cadence, p.Amount, p.Prorated)
		e.logger.Info("payment recorded",
			zap.String("employee_id", p.EmployeeID),
			zap.String("payslip_id", p.PayslipID),
			zap.String("amount", p.Amount.StringFixed(2)),
			zap.String("status", string(p.Status)),
			zap.Bool("prorated", p.Prorated))
	}
	e.publish(ctx, generic.TopicLedgerChanged, ids)
	return nil
}
