/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, logged with every line
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Logger:     zap request logging (logger.Middleware)
  4. Metrics:    Prometheus request counters (optional)
  5. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/employees/*      Roster
  /api/payroll/*        Cycles, payments, reporting, events
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus scrape endpoint
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/dagm95/CXinas-bakery-system/logger"
)

// RouterConfig carries the cross-cutting pieces of the router.
type RouterConfig struct {
	CORSOrigins []string
	Logger      *zap.Logger
	Metrics     *Metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.Middleware(log))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Roster routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.UpsertEmployee)
		})

		// Payroll routes
		r.Route("/payroll", func(r chi.Router) {
			r.Route("/cycles", func(r chi.Router) {
				r.Get("/", h.ListCycles)
				r.Get("/{id}", h.GetCycle)
				r.Put("/{id}/adjustments", h.SetAdjustments)
				r.Get("/{id}/accrued", h.GetAccrued)
				r.Post("/{id}/pay", h.PayInFull)
				r.Post("/{id}/pay-to-date", h.PayToDate)
				r.Post("/{id}/undo", h.Undo)
			})

			r.Post("/pay-all", h.PayAll)
			r.Post("/undo-all", h.UndoAll)

			r.Get("/stats", h.GetStats)
			r.Get("/ledger", h.ListLedger)
			r.Get("/ledger/export", h.ExportLedger)
			r.Get("/payslips/{payslipID}", h.GetPayslip)
			r.Get("/events", h.StreamEvents)

			r.Post("/refresh", h.TriggerRefresh)
			r.Get("/refresh/runs", h.ListRefreshRuns)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
