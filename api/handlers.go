/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to payroll.Engine.

ENDPOINTS:
  Roster:
    GET    /api/employees                         List roster
    POST   /api/employees                         Add or replace an employee

  Cycles:
    GET    /api/payroll/cycles                    All cycle views
    GET    /api/payroll/cycles/{id}               One employee's cycles
    PUT    /api/payroll/cycles/{id}/adjustments   Set bonuses/deductions
    GET    /api/payroll/cycles/{id}/accrued       Earned so far (?as_of=)
    POST   /api/payroll/cycles/{id}/pay           Pay in full
    POST   /api/payroll/cycles/{id}/pay-to-date   Pay prorated and close
    POST   /api/payroll/cycles/{id}/undo          Reverse latest closure

  Bulk:
    POST   /api/payroll/pay-all                   Pay one cadence
    POST   /api/payroll/undo-all                  Reverse every latest closure

  Reporting:
    GET    /api/payroll/stats                     Dashboard figures
    GET    /api/payroll/ledger                    Recent payments (?limit=)
    GET    /api/payroll/ledger/export             XLSX download
    GET    /api/payroll/payslips/{payslipID}      Payslip PDF
    GET    /api/payroll/events                    Server-sent change events
    POST   /api/payroll/refresh                   Run a refresh pass now
    GET    /api/payroll/refresh/runs              Recorded refresh passes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Employee or payslip not found
  - 409: Already paid, closed cycle, lost write race
  - 500: Internal errors
  Undo with nothing to reverse is not an error: 200 with undone=false.

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - events.go: Event stream
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dagm95/CXinas-bakery-system/generic"
	"github.com/dagm95/CXinas-bakery-system/payroll"
	"github.com/dagm95/CXinas-bakery-system/payslip"
	"github.com/dagm95/CXinas-bakery-system/report"
)

const (
	defaultLedgerLimit = 50
	maxLedgerLimit     = 1000
	maxBodyBytes       = 1 << 20
	rosterMaxAttempts  = 5
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *payroll.Engine
	// Notifier announces roster changes made through the API. Optional.
	Notifier generic.Notifier
	// Events feeds the event stream. Optional.
	Events    generic.Subscriber
	Scheduler *RefreshScheduler
	Runs      RunStore
	Logger    *zap.Logger
	Business  string

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler for engine.
func NewHandler(engine *payroll.Engine) *Handler {
	return &Handler{
		Engine:   engine,
		Logger:   zap.NewNop(),
		Business: "Bakery",
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// ROSTER HANDLERS
// =============================================================================

// ListEmployees returns the roster.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	roster, _, err := h.Engine.Repository().Roster(r.Context())
	if err != nil {
		h.fail(w, "Failed to list employees", err)
		return
	}
	if roster == nil {
		roster = []payroll.Employee{}
	}
	writeJSON(w, http.StatusOK, roster)
}

// UpsertEmployee adds an employee or replaces the row with the same id.
// The engine seeds a cycle for new employees on its next read.
func (h *Handler) UpsertEmployee(w http.ResponseWriter, r *http.Request) {
	var req UpsertEmployeeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	emp := payroll.Employee{
		ID:             req.ID,
		Name:           req.Name,
		Salary:         req.Salary.Round(2),
		PaymentCadence: req.PaymentCadence,
	}
	repo := h.Engine.Repository()
	if err := repo.ValidateEmployee(emp); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid employee", err)
		return
	}

	ctx := r.Context()
	created := false
	for attempt := 1; ; attempt++ {
		roster, version, err := repo.Roster(ctx)
		if err != nil {
			h.fail(w, "Failed to load roster", err)
			return
		}
		created = true
		for i := range roster {
			if roster[i].ID == emp.ID {
				roster[i] = emp
				created = false
				break
			}
		}
		if created {
			roster = append(roster, emp)
		}
		_, err = repo.SaveRoster(ctx, roster, version)
		if err == nil {
			break
		}
		if errors.Is(err, payroll.ErrInvalidRecord) {
			// Another row was left invalid by a different client.
			writeError(w, http.StatusConflict, "Roster holds invalid rows", err)
			return
		}
		if !generic.IsRetryable(err) || attempt >= rosterMaxAttempts {
			h.fail(w, "Failed to save employee", err)
			return
		}
	}

	h.announce(r.Context(), generic.TopicRosterChanged, []string{emp.ID})
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, emp)
}

// =============================================================================
// CYCLE HANDLERS
// =============================================================================

// ListCycles returns every employee's normalized cycles.
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	views, err := h.Engine.Cycles(r.Context())
	if err != nil {
		h.fail(w, "Failed to load cycles", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// GetCycle returns one employee's cycles.
func (h *Handler) GetCycle(w http.ResponseWriter, r *http.Request) {
	view, err := h.Engine.Cycle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to load cycle", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SetAdjustments updates bonuses/deductions on the open cycle.
func (h *Handler) SetAdjustments(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Bonuses == nil && req.Deductions == nil {
		writeError(w, http.StatusBadRequest, "Nothing to update", errors.New("bonuses or deductions is required"))
		return
	}
	cycle, err := h.Engine.SetAdjustments(r.Context(), chi.URLParam(r, "id"), req.Bonuses, req.Deductions)
	if err != nil {
		h.fail(w, "Failed to update adjustments", err)
		return
	}
	writeJSON(w, http.StatusOK, cycle)
}

// GetAccrued returns what the employee has earned in the open cycle.
func (h *Handler) GetAccrued(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var asOf generic.Date
	if s := r.URL.Query().Get("as_of"); s != "" {
		d, err := generic.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
			return
		}
		asOf = d
	}

	ctx := r.Context()
	accrued, err := h.Engine.Accrued(ctx, id, asOf)
	if err != nil {
		h.fail(w, "Failed to compute accrual", err)
		return
	}
	view, err := h.Engine.Cycle(ctx, id)
	if err != nil {
		h.fail(w, "Failed to load cycle", err)
		return
	}
	if asOf.IsZero() {
		asOf = h.Engine.Today()
	}
	writeJSON(w, http.StatusOK, AccruedDTO{
		EmployeeID: id,
		AsOf:       asOf,
		Accrued:    accrued,
		FullNet:    view.FullNet,
	})
}

// PayInFull closes the open cycle at its full net amount.
func (h *Handler) PayInFull(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.PayInFull(r.Context(), chi.URLParam(r, "id"))
	h.writePayment(w, res, err)
}

// PayToDate closes the open cycle at its prorated amount.
func (h *Handler) PayToDate(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.PayToDate(r.Context(), chi.URLParam(r, "id"))
	h.writePayment(w, res, err)
}

func (h *Handler) writePayment(w http.ResponseWriter, res *payroll.PaymentResult, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case res != nil && errors.Is(err, payroll.ErrLedgerInconsistency):
		// The cycle is closed; only the ledger row is missing.
		h.Logger.Error("payment recorded without ledger entry", zap.String("payslip_id", res.PayslipID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Payment recorded without ledger entry", err)
	default:
		h.fail(w, "Payment failed", err)
	}
}

// Undo reverses the employee's latest closure.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.Undo(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, payroll.ErrNoHistoryToUndo) {
		writeJSON(w, http.StatusOK, UndoResponse{Undone: false, Reason: err.Error(), LedgerConsistent: true})
		return
	}
	if err != nil && (res == nil || !errors.Is(err, payroll.ErrLedgerInconsistency)) {
		h.fail(w, "Undo failed", err)
		return
	}
	// The cycle is reopened even when its ledger row is missing.
	resp := UndoResponse{Undone: true, Result: res, LedgerConsistent: res.LedgerConsistent()}
	switch {
	case err != nil:
		resp.Warning = err.Error()
	case !resp.LedgerConsistent:
		resp.Warning = res.LedgerInconsistency.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// BULK HANDLERS
// =============================================================================

// PayAll pays every open cycle of one cadence.
func (h *Handler) PayAll(w http.ResponseWriter, r *http.Request) {
	var req PayAllRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	res, err := h.Engine.PayAllForCadence(r.Context(), payroll.Cadence(req.Cadence))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, BulkPaymentResponse{BulkPaymentResult: res})
	case res != nil && errors.Is(err, payroll.ErrLedgerInconsistency):
		writeJSON(w, http.StatusOK, BulkPaymentResponse{BulkPaymentResult: res, LedgerError: err.Error()})
	default:
		h.fail(w, "Bulk payment failed", err)
	}
}

// UndoAll reverses the latest closure of every employee that has one.
func (h *Handler) UndoAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.UndoAll(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, BulkUndoResponse{BulkUndoResult: res})
	case res != nil:
		writeJSON(w, http.StatusOK, BulkUndoResponse{BulkUndoResult: res, LedgerError: err.Error()})
	default:
		h.fail(w, "Bulk undo failed", err)
	}
}

// =============================================================================
// REPORTING HANDLERS
// =============================================================================

// GetStats returns the dashboard aggregates.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Engine.Stats(r.Context())
	if err != nil {
		h.fail(w, "Failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListLedger returns recent payments, newest first.
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultLedgerLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	entries, err := h.Engine.Ledger(r.Context(), limit)
	if err != nil {
		h.fail(w, "Failed to load ledger", err)
		return
	}
	if entries == nil {
		entries = []payroll.PaymentLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ExportLedger downloads the full ledger as XLSX.
func (h *Handler) ExportLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine.Ledger(r.Context(), 0)
	if err != nil {
		h.fail(w, "Failed to load ledger", err)
		return
	}
	filename := fmt.Sprintf("payroll-ledger-%s.xlsx", h.Engine.Today())
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := report.WriteLedger(w, entries, h.Engine.Location()); err != nil {
		h.Logger.Error("ledger export failed", zap.Error(err))
	}
}

// GetPayslip renders the payslip of one ledger entry as PDF.
func (h *Handler) GetPayslip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry, err := h.Engine.Payslip(ctx, chi.URLParam(r, "payslipID"))
	if err != nil {
		h.fail(w, "Failed to load payslip", err)
		return
	}

	var history []payroll.Cycle
	if view, err := h.Engine.Cycle(ctx, entry.EmployeeID); err == nil {
		history = view.History
	}
	slip := payslip.FromHistory(h.Business, entry, history, h.Engine.Location())

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", entry.PayslipID+".pdf"))
	if err := payslip.Render(w, slip); err != nil {
		h.Logger.Error("payslip render failed", zap.String("payslip_id", entry.PayslipID), zap.Error(err))
	}
}

// TriggerRefresh runs a refresh pass immediately.
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	var (
		rep payroll.NormalizeReport
		err error
	)
	if h.Scheduler != nil {
		rep, err = h.Scheduler.RunNow(r.Context())
	} else {
		rep, err = h.Engine.Refresh(r.Context())
	}
	if err != nil {
		h.fail(w, "Refresh failed", err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshDTO{
		Seeded:    nonNil(rep.Seeded),
		Archived:  nonNil(rep.Archived),
		Relabeled: nonNil(rep.Relabeled),
		Invalid:   rep.InvalidIDs(),
	})
}

// ListRefreshRuns returns recorded scheduler passes, newest first.
func (h *Handler) ListRefreshRuns(w http.ResponseWriter, r *http.Request) {
	dtos := []RefreshRunDTO{}
	if h.Runs == nil {
		writeJSON(w, http.StatusOK, dtos)
		return
	}
	limit, err := queryLimit(r, 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	runs, err := h.Runs.RecentRefreshRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, "Failed to list refresh runs", err)
		return
	}
	for _, run := range runs {
		dtos = append(dtos, RefreshRunDTO{
			ID:          run.ID,
			StartedAt:   run.StartedAt.Format(time.RFC3339),
			CompletedAt: run.CompletedAt.Format(time.RFC3339),
			Status:      run.Status,
			Seeded:      run.Seeded,
			Archived:    run.Archived,
			Relabeled:   run.Relabeled,
			Invalid:     run.Invalid,
			Error:       run.Error,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps a domain error to its HTTP status and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case payroll.IsNotFound(err):
		return http.StatusNotFound
	case payroll.IsClientError(err):
		return http.StatusBadRequest
	case payroll.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads and validates a request body. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func (h *Handler) announce(ctx context.Context, topic generic.Topic, ids []string) {
	if h.Notifier == nil {
		return
	}
	ev := generic.Event{Topic: topic, EmployeeIDs: ids, At: time.Now().UTC()}
	if err := h.Notifier.Publish(ctx, ev); err != nil {
		h.Logger.Warn("publish failed", zap.String("topic", string(topic)), zap.Error(err))
	}
}

func queryLimit(r *http.Request, fallback int) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", s)
	}
	if n > maxLedgerLimit {
		n = maxLedgerLimit
	}
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
