package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

// =============================================================================
// REOPENING A CYCLE (pure)
// =============================================================================

// reopening is the outcome of undoing the most recent closure.
type reopening struct {
	pack      Pack
	reopened  Cycle
	payslipID string
	// restored is set when a pay-to-date closure had its boundaries put back.
	restored bool
	// recomputed is set when those boundaries had to be derived again because
	// the record predates stored originals.
	recomputed bool
}

// reopenLatest pops history[0] and makes it the open current cycle again,
// discarding the successor that the closure installed.
func reopenLatest(pack Pack, now time.Time) (reopening, error) {
	if len(pack.History) == 0 {
		return reopening{}, ErrNoHistoryToUndo
	}
	c := pack.History[0].Clone()
	payslipID := c.PayslipID

	partial := c.OriginalPeriodEnd != nil || c.OriginalDueDate != nil
	audit := make([]AuditEntry, 0, len(c.Audit)+1)
	undo := AuditEntry{Action: AuditUndo, Timestamp: now}
	for _, a := range c.Audit {
		if a.isPayout() {
			if a.Action == AuditPayPartial {
				partial = true
			}
			if a.Amount != nil {
				amount := *a.Amount
				undo.Amount = &amount
			}
			continue
		}
		audit = append(audit, a)
	}
	c.Audit = append(audit, undo)

	var r reopening
	if partial {
		r.restored = true
		if c.OriginalPeriodEnd != nil && c.OriginalDueDate != nil {
			c.PeriodEnd = *c.OriginalPeriodEnd
			c.DueDate = *c.OriginalDueDate
		} else {
			end, due, err := Boundaries(c.Cadence, c.PeriodStart)
			if err != nil {
				return reopening{}, err
			}
			c.PeriodEnd, c.DueDate = end, due
			r.recomputed = true
		}
		c.OriginalPeriodEnd = nil
		c.OriginalDueDate = nil
	}
	c.Status = StatusPending
	c.PayslipID = ""

	rest := make([]Cycle, 0, len(pack.History)-1)
	for _, h := range pack.History[1:] {
		rest = append(rest, h.Clone())
	}

	r.pack = Pack{Current: c, History: rest}
	r.reopened = c
	r.payslipID = payslipID
	return r, nil
}

// =============================================================================
// REVERSAL HANDLER
// =============================================================================

// UndoResult describes one reversed closure.
type UndoResult struct {
	EmployeeID string `json:"employee_id"`
	PayslipID  string `json:"payslip_id"`
	Reopened   Cycle  `json:"reopened"`
	Restored   bool   `json:"restored_boundaries"`
	Recomputed bool   `json:"recomputed_boundaries"`
	// LedgerInconsistency is set when no ledger row matched the payslip.
	// The cycle was reopened regardless.
	LedgerInconsistency *LedgerInconsistencyError `json:"-"`
}

// LedgerConsistent is false when the ledger lacked the reversed payslip.
func (r UndoResult) LedgerConsistent() bool { return r.LedgerInconsistency == nil }

// BulkUndoResult reports an undo-all run.
type BulkUndoResult struct {
	Count           int               `json:"count"`
	Reversals       []UndoResult      `json:"reversals"`
	Failed          []SkippedEmployee `json:"failed"`
	Inconsistencies int               `json:"ledger_inconsistencies"`
}

// Undo reverses the employee's most recent closure. Returns
// ErrNoHistoryToUndo (benign) when nothing was ever paid.
func (e *Engine) Undo(ctx context.Context, employeeID string) (*UndoResult, error) {
	res, err := e.reopen(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	results := []UndoResult{*res}
	lctx, cancel := ledgerContext(ctx)
	defer cancel()
	if err := e.removePayments(lctx, results); err != nil {
		return &results[0], err
	}
	return &results[0], nil
}

// UndoAll reverses the most recent closure of every employee that has one.
// On cancellation the run stops, the ledger rows of the cycles already
// reopened are removed, and ctx.Err() is returned with the partial result.
func (e *Engine) UndoAll(ctx context.Context) (*BulkUndoResult, error) {
	v, err := e.snapshot(ctx, false)
	if err != nil {
		return nil, err
	}

	result := &BulkUndoResult{Reversals: []UndoResult{}}
	ids := sortedIDs(v.Cycles, func(p Pack) bool { return len(p.History) > 0 })
loop:
	for _, id := range ids {
		res, err := e.reopen(ctx, id)
		switch {
		case err == nil:
			result.Reversals = append(result.Reversals, *res)
		case IsBenign(err):
			// history emptied by a concurrent undo
		case ctx.Err() != nil:
			result.Failed = append(result.Failed, skipped(id, err))
			break loop
		default:
			e.logger.Error("bulk undo failed for employee", zap.String("employee_id", id), zap.Error(err))
			result.Failed = append(result.Failed, skipped(id, err))
		}
	}
	result.Count = len(result.Reversals)

	lctx, cancel := ledgerContext(ctx)
	defer cancel()
	err = e.removePayments(lctx, result.Reversals)
	for _, r := range result.Reversals {
		if !r.LedgerConsistent() {
			result.Inconsistencies++
		}
	}
	if err != nil {
		return result, errors.Join(err, ctx.Err())
	}
	if err := ctx.Err(); err != nil {
		e.logger.Warn("bulk undo interrupted", zap.Int("reversed", result.Count), zap.Error(err))
		return result, err
	}
	e.logger.Info("bulk undo completed",
		zap.Int("reversed", result.Count),
		zap.Int("failed", len(result.Failed)),
		zap.Int("ledger_inconsistencies", result.Inconsistencies))
	return result, nil
}

// reopen runs the cycle half of an undo as one employee transaction.
func (e *Engine) reopen(ctx context.Context, employeeID string) (*UndoResult, error) {
	var res *UndoResult
	err := e.withEmployee(ctx, employeeID, func(tx *employeeTx) error {
		r, err := reopenLatest(tx.pack, tx.now)
		if err != nil {
			return fmt.Errorf("employee %s: %w", employeeID, err)
		}
		tx.pack = r.pack
		r.reopened.Status = ResolveStatus(r.reopened, tx.today)
		res = &UndoResult{
			EmployeeID: employeeID,
			PayslipID:  r.payslipID,
			Reopened:   r.reopened,
			Restored:   r.restored,
			Recomputed: r.recomputed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Recomputed {
		e.logger.Warn("restored pay-to-date boundaries by recomputation",
			zap.String("employee_id", employeeID), zap.String("period_start", res.Reopened.PeriodStart.String()))
	}
	e.publish(ctx, generic.TopicCyclesChanged, []string{employeeID})
	return res, nil
}

// removePayments deletes the ledger rows of reopened cycles in one write and
// marks every result whose payslip was not found.
func (e *Engine) removePayments(ctx context.Context, results []UndoResult) error {
	if len(results) == 0 {
		return nil
	}
	var ids []string
	for i := range results {
		if results[i].PayslipID == "" {
			results[i].LedgerInconsistency = &LedgerInconsistencyError{EmployeeID: results[i].EmployeeID}
			continue
		}
		ids = append(ids, results[i].PayslipID)
	}

	var missing map[string]bool
	if len(ids) > 0 {
		err := e.updateLedger(ctx, func(ledger []PaymentLogEntry) []PaymentLogEntry {
			rest, _, miss := removeByPayslip(ledger, ids)
			missing = make(map[string]bool, len(miss))
			for _, id := range miss {
				missing[id] = true
			}
			return rest
		})
		if err != nil {
			errs := []error{err}
			for i := range results {
				if results[i].LedgerInconsistency == nil {
					results[i].LedgerInconsistency = &LedgerInconsistencyError{EmployeeID: results[i].EmployeeID, PayslipID: results[i].PayslipID}
				}
				e.observer.LedgerInconsistency()
				errs = append(errs, results[i].LedgerInconsistency)
			}
			e.logger.Error("ledger delete failed after cycles were reopened", zap.Error(err))
			return errors.Join(errs...)
		}
	}

	var changed []string
	for i := range results {
		r := &results[i]
		if missing[r.PayslipID] {
			r.LedgerInconsistency = &LedgerInconsistencyError{EmployeeID: r.EmployeeID, PayslipID: r.PayslipID}
		}
		if r.LedgerInconsistency != nil {
			e.observer.LedgerInconsistency()
			e.logger.Warn("reversed payment had no ledger entry",
				zap.String("employee_id", r.EmployeeID), zap.String("payslip_id", r.PayslipID))
		} else {
			changed = append(changed, r.EmployeeID)
		}
		e.observer.PaymentReversed(r.Reopened.Cadence)
		e.logger.Info("payment reversed",
			zap.String("employee_id", r.EmployeeID), zap.String("payslip_id", r.PayslipID))
	}
	if len(changed) > 0 {
		e.publish(ctx, generic.TopicLedgerChanged, changed)
	}
	return nil
}
