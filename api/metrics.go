package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/dagm95/CXinas-bakery-system/payroll"
)

const metricsNamespace = "bakery_payroll"

// Metrics holds the service's Prometheus collectors on a private registry.
// It also implements payroll.Observer.
type Metrics struct {
	registry *prometheus.Registry

	payments              *prometheus.CounterVec
	paidAmount            *prometheus.CounterVec
	reversals             *prometheus.CounterVec
	ledgerInconsistencies prometheus.Counter
	writeConflicts        *prometheus.CounterVec
	refreshRuns           *prometheus.CounterVec
	httpRequests          *prometheus.CounterVec
	httpDuration          *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.payments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "payments_total",
		Help:      "Cycles closed by a payout.",
	}, []string{"cadence", "prorated"})
	m.paidAmount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "paid_amount_total",
		Help:      "Sum of net amounts paid.",
	}, []string{"cadence"})
	m.reversals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "reversals_total",
		Help:      "Closures undone.",
	}, []string{"cadence"})
	m.ledgerInconsistencies = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "ledger_inconsistencies_total",
		Help:      "Cycle changes whose ledger row could not be written or found.",
	})
	m.writeConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "write_conflicts_total",
		Help:      "Optimistic writes that lost a race and were retried.",
	}, []string{"document"})
	m.refreshRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "refresh_runs_total",
		Help:      "Scheduler refresh passes.",
	}, []string{"status"})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served.",
	}, []string{"method", "route", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.registry.MustRegister(
		m.payments,
		m.paidAmount,
		m.reversals,
		m.ledgerInconsistencies,
		m.writeConflicts,
		m.refreshRuns,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// =============================================================================
// payroll.Observer
// =============================================================================

func (m *Metrics) PaymentRecorded(cadence payroll.Cadence, amount decimal.Decimal, prorated bool) {
	m.payments.WithLabelValues(string(cadence), strconv.FormatBool(prorated)).Inc()
	m.paidAmount.WithLabelValues(string(cadence)).Add(amount.InexactFloat64())
}

func (m *Metrics) PaymentReversed(cadence payroll.Cadence) {
	m.reversals.WithLabelValues(string(cadence)).Inc()
}

func (m *Metrics) LedgerInconsistency() { m.ledgerInconsistencies.Inc() }

func (m *Metrics) WriteConflict(document string) {
	m.writeConflicts.WithLabelValues(document).Inc()
}

// RefreshRun counts one scheduler pass.
func (m *Metrics) RefreshRun(status string) {
	m.refreshRuns.WithLabelValues(status).Inc()
}

// Middleware records request counts and latency by chi route pattern, so
// /cycles/E1 and /cycles/E2 share a series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

var _ payroll.Observer = (*Metrics)(nil)
