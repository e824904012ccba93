/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Populates the roster, cycle store and ledger with realistic bakery data.
  Dates are relative to the engine's today so every scenario looks the
  same whenever it is loaded.

AVAILABLE SCENARIOS:
  bakery-staff:    Fresh roster, cycles seeded on first read
  overdue-payroll: Open cycles that are Due and Overdue, with adjustments
  paid-history:    Three weeks of payments already in the ledger
  legacy-records:  Records written by older clients (no cadence, unknown
                   cadence, pay-to-date without original boundaries,
                   payment missing from the ledger)

HOW SCENARIOS WORK:
  1. Replace all three documents (unconditional writes)
  2. Optionally replay past payments through an engine whose clock is
     set in the past, so history and ledger are produced by the real
     payment code
  3. Announce roster and cycle changes

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "paid-history"}

NOTE:
  Loading a scenario discards existing payroll data. Development and demo
  environments only.

SEE ALSO:
  - handlers.go: Handler
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dagm95/CXinas-bakery-system/generic"
	"github.com/dagm95/CXinas-bakery-system/payroll"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "bakery-staff",
		Name:        "Bakery Staff",
		Description: "Weekly bakers and monthly front-of-house staff, no payments yet",
	},
	{
		ID:          "overdue-payroll",
		Name:        "Overdue Payroll",
		Description: "Open cycles past their due date, one due today, bonuses and deductions set",
	},
	{
		ID:          "paid-history",
		Name:        "Paid History",
		Description: "Three weeks of full and prorated payments in the ledger",
	},
	{
		ID:          "legacy-records",
		Name:        "Legacy Records",
		Description: "Missing and unknown cadences, an old pay-to-date and a payment missing from the ledger",
	},
}

func bakeryRoster() []payroll.Employee {
	return []payroll.Employee{
		{ID: "B-001", Name: "Abebe Kebede", Salary: decimal.NewFromInt(700), PaymentCadence: "weekly"},
		{ID: "B-002", Name: "Selam Tesfaye", Salary: decimal.NewFromInt(650), PaymentCadence: "weekly"},
		{ID: "B-003", Name: "Dawit Alemu", Salary: decimal.NewFromInt(560), PaymentCadence: "weekly"},
		{ID: "F-001", Name: "Hanna Girma", Salary: decimal.NewFromInt(3100), PaymentCadence: "monthly"},
		{ID: "F-002", Name: "Meron Bekele", Salary: decimal.NewFromInt(4200), PaymentCadence: "monthly"},
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, or null.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario replaces payroll data with a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("%w: %s", err, req.ScenarioID))
			return
		}
		h.fail(w, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

var errUnknownScenario = errors.New("unknown scenario")

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var err error
	switch id {
	case "bakery-staff":
		err = h.replaceAll(ctx, bakeryRoster(), payroll.CycleStore{}, nil)
	case "overdue-payroll":
		err = h.loadOverduePayrollScenario(ctx)
	case "paid-history":
		err = h.loadPaidHistoryScenario(ctx)
	case "legacy-records":
		err = h.loadLegacyRecordsScenario(ctx)
	default:
		return errUnknownScenario
	}
	if err != nil {
		return err
	}

	roster, _, rerr := h.Engine.Repository().Roster(ctx)
	if rerr == nil {
		ids := make([]string, len(roster))
		for i, e := range roster {
			ids[i] = e.ID
		}
		h.announce(ctx, generic.TopicRosterChanged, ids)
		h.announce(ctx, generic.TopicCyclesChanged, ids)
		h.announce(ctx, generic.TopicLedgerChanged, ids)
	}
	return nil
}

// loadOverduePayrollScenario opens cycles in the past so the dashboard has
// Overdue and Due rows.
func (h *Handler) loadOverduePayrollScenario(ctx context.Context) error {
	today := h.Engine.Today()
	roster := bakeryRoster()

	starts := map[string]generic.Date{
		"B-001": today.AddDays(-9),          // due two days ago
		"B-002": today.AddDays(-7),          // due today
		"B-003": today.AddDays(-3),          // pending
		"F-001": today.AddMonthsClamped(-1), // due about today
		"F-002": today.AddMonthsClamped(-2), // a month overdue
	}
	cycles := payroll.CycleStore{}
	for _, emp := range roster {
		c, err := payroll.NewInitialCycle(emp, starts[emp.ID])
		if err != nil {
			return err
		}
		c.Status = payroll.ResolveStatus(c, today)
		cycles[emp.ID] = payroll.Pack{Current: c, History: []payroll.Cycle{}}
	}

	b := cycles["B-001"]
	b.Current.Bonuses = decimal.NewFromInt(50)
	b.Current.Deductions = decimal.NewFromInt(20)
	cycles["B-001"] = b

	f := cycles["F-002"]
	f.Current.Deductions = decimal.NewFromInt(150)
	cycles["F-002"] = f

	return h.replaceAll(ctx, roster, cycles, nil)
}

// loadPaidHistoryScenario replays three weeks of payroll.
func (h *Handler) loadPaidHistoryScenario(ctx context.Context) error {
	if err := h.replaceAll(ctx, bakeryRoster(), payroll.CycleStore{}, nil); err != nil {
		return err
	}
	today := h.Engine.Today()

	// Week 1: everyone starts, weekly staff paid on the due date.
	if err := h.replay(ctx, today.AddDays(-21), nil); err != nil {
		return err
	}
	if err := h.replay(ctx, today.AddDays(-14), func(ctx context.Context, e *payroll.Engine) error {
		_, err := e.PayAllForCadence(ctx, payroll.CadenceWeekly)
		return err
	}); err != nil {
		return err
	}
	// Week 2: paid again, and one monthly employee leaves mid-month.
	return h.replay(ctx, today.AddDays(-7), func(ctx context.Context, e *payroll.Engine) error {
		if _, err := e.PayAllForCadence(ctx, payroll.CadenceWeekly); err != nil {
			return err
		}
		_, err := e.PayToDate(ctx, "F-002")
		return err
	})
}

// loadLegacyRecordsScenario writes records shaped like those of older clients.
func (h *Handler) loadLegacyRecordsScenario(ctx context.Context) error {
	roster := []payroll.Employee{
		{ID: "B-001", Name: "Abebe Kebede", Salary: decimal.NewFromInt(700), PaymentCadence: "weekly"},
		{ID: "B-004", Name: "Tigist Haile", Salary: decimal.NewFromInt(630), PaymentCadence: "weekly"},
		// No cadence: paid monthly.
		{ID: "F-003", Name: "Yonas Tadesse", Salary: decimal.NewFromInt(2900)},
		// Unknown cadence: skipped by the engine and reported.
		{ID: "F-004", Name: "Liya Mekonnen", Salary: decimal.NewFromInt(2500), PaymentCadence: "biweekly"},
	}
	if err := h.replaceAll(ctx, roster, payroll.CycleStore{}, nil); err != nil {
		return err
	}
	today := h.Engine.Today()

	var removed string
	err := h.replay(ctx, today.AddDays(-4), func(ctx context.Context, e *payroll.Engine) error {
		if _, err := e.PayToDate(ctx, "B-001"); err != nil {
			return err
		}
		res, err := e.PayInFull(ctx, "B-004")
		if err != nil {
			return err
		}
		removed = res.PayslipID
		return nil
	})
	if err != nil {
		return err
	}

	repo := h.Engine.Repository()

	// Older clients did not keep the original boundaries of a pay-to-date.
	cycles, version, err := repo.Cycles(ctx)
	if err != nil {
		return err
	}
	if p, ok := cycles["B-001"]; ok && len(p.History) > 0 {
		p.History[0].OriginalPeriodEnd = nil
		p.History[0].OriginalDueDate = nil
		cycles["B-001"] = p
	}
	if _, err := repo.SaveCycles(ctx, cycles, version); err != nil {
		return err
	}

	// And sometimes lost the ledger row of a payment.
	ledger, version, err := repo.Ledger(ctx)
	if err != nil {
		return err
	}
	kept := ledger[:0]
	for _, e := range ledger {
		if e.PayslipID != removed {
			kept = append(kept, e)
		}
	}
	_, err = repo.SaveLedger(ctx, kept, version)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// replaceAll overwrites the three payroll documents.
func (h *Handler) replaceAll(ctx context.Context, roster []payroll.Employee, cycles payroll.CycleStore, ledger []payroll.PaymentLogEntry) error {
	repo := h.Engine.Repository()
	if ledger == nil {
		ledger = []payroll.PaymentLogEntry{}
	}
	if _, err := repo.SaveRoster(ctx, roster, generic.AnyVersion); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	if _, err := repo.SaveCycles(ctx, cycles, generic.AnyVersion); err != nil {
		return fmt.Errorf("write cycles: %w", err)
	}
	if _, err := repo.SaveLedger(ctx, ledger, generic.AnyVersion); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// replay runs fn on an engine whose clock reads 09:00 on day, after
// normalizing the store for that day.
func (h *Handler) replay(ctx context.Context, day generic.Date, fn func(context.Context, *payroll.Engine) error) error {
	loc := h.Engine.Location()
	at := time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, loc)
	past := payroll.NewEngine(h.Engine.Repository(),
		payroll.WithClock(func() time.Time { return at }),
		payroll.WithLocation(loc),
		payroll.WithLogger(h.Logger.Named("scenario")),
	)
	if _, err := past.Snapshot(ctx); err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	return fn(ctx, past)
}
