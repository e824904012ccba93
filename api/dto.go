/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP surface. Domain types (payroll.CycleView,
  payroll.PaymentResult, payroll.Stats, ...) already carry snake_case tags
  and are returned as-is; this file only holds request bodies and the
  wrappers that add HTTP-specific fields.

NAMING CONVENTION:
  - *Request:  Request body types from clients
  - *Response: Response wrappers
  - *DTO:      Flattened views built for the API

VALIDATION:
  Request bodies carry go-playground/validator tags, checked in decodeJSON.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/dagm95/CXinas-bakery-system/generic"
	"github.com/dagm95/CXinas-bakery-system/payroll"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// UpsertEmployeeRequest adds or replaces a roster row.
type UpsertEmployeeRequest struct {
	ID             string          `json:"id" validate:"required,max=64"`
	Name           string          `json:"name" validate:"required,max=200"`
	Salary         decimal.Decimal `json:"salary"`
	PaymentCadence string          `json:"payment_cadence" validate:"omitempty,oneof=weekly monthly"`
}

// AdjustmentsRequest sets bonuses and/or deductions. Omitted fields keep
// their current value.
type AdjustmentsRequest struct {
	Bonuses    *decimal.Decimal `json:"bonuses"`
	Deductions *decimal.Decimal `json:"deductions"`
}

// PayAllRequest selects the cadence of a bulk run.
type PayAllRequest struct {
	Cadence string `json:"cadence" validate:"required"`
}

// LoadScenarioRequest names a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// AccruedDTO is the earned-so-far amount of a current cycle.
type AccruedDTO struct {
	EmployeeID string          `json:"employee_id"`
	AsOf       generic.Date    `json:"as_of"`
	Accrued    decimal.Decimal `json:"accrued"`
	FullNet    decimal.Decimal `json:"full_net"`
}

// UndoResponse reports a single undo. Undone is false when there was
// nothing to reverse, which is not an error.
type UndoResponse struct {
	Undone           bool                `json:"undone"`
	Reason           string              `json:"reason,omitempty"`
	Result           *payroll.UndoResult `json:"result,omitempty"`
	LedgerConsistent bool                `json:"ledger_consistent"`
	Warning          string              `json:"warning,omitempty"`
}

// BulkPaymentResponse wraps a pay-all run. LedgerError is set when the
// cycles were closed but the ledger append failed.
type BulkPaymentResponse struct {
	*payroll.BulkPaymentResult
	LedgerError string `json:"ledger_error,omitempty"`
}

// BulkUndoResponse wraps an undo-all run.
type BulkUndoResponse struct {
	*payroll.BulkUndoResult
	LedgerError string `json:"ledger_error,omitempty"`
}

// RefreshDTO reports what a refresh pass changed.
type RefreshDTO struct {
	Seeded    []string `json:"seeded"`
	Archived  []string `json:"archived"`
	Relabeled []string `json:"relabeled"`
	Invalid   []string `json:"invalid"`
}

// RefreshRunDTO is one recorded scheduler pass.
type RefreshRunDTO struct {
	ID          int64  `json:"id"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
	Status      string `json:"status"`
	Seeded      int    `json:"seeded"`
	Archived    int    `json:"archived"`
	Relabeled   int    `json:"relabeled"`
	Invalid     int    `json:"invalid"`
	Error       string `json:"error,omitempty"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
