package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/congo-pay/bankee/internal/apperr"
)

const namespace = "bankee"

// Metrics owns the Prometheus collectors of one process. All methods are
// safe on a nil receiver so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight    prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	ledgerOps       *prometheus.CounterVec
	auditGaps       prometheus.Counter
	settlements     *prometheus.CounterVec
	reconcileRuns   prometheus.Counter
	reconcileLength prometheus.Histogram
}

// New builds and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by outcome.",
		}, []string{"operation", "outcome"}),
		auditGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_gaps_total",
			Help:      "Committed ledger mutations whose transaction record could not be appended.",
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "records_total",
			Help:      "Funding records handled by the reconciler, by outcome.",
		}, []string{"outcome"}),
		reconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "passes_total",
			Help:      "Completed reconciliation passes.",
		}),
		reconcileLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.ledgerOps,
		m.auditGaps,
		m.settlements,
		m.reconcileRuns,
		m.reconcileLength,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil || c.Path() == "/metrics" {
			return c.Next()
		}
		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = apperr.Status(err)
		}
		route := c.Route().Path
		method := strings.ToUpper(c.Method())
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		return err
	}
}

// ObserveOperation counts a ledger operation under an outcome derived from err.
func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(operation, Outcome(err)).Inc()
}

// AuditGap counts a transaction record that failed to append after commit.
func (m *Metrics) AuditGap() {
	if m == nil {
		return
	}
	m.auditGaps.Inc()
}

// Settlement counts a reconciler outcome such as completed, failed or skipped.
func (m *Metrics) Settlement(outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

// ObservePass records the duration of one reconciliation pass.
func (m *Metrics) ObservePass(d time.Duration) {
	if m == nil {
		return
	}
	m.reconcileRuns.Inc()
	m.reconcileLength.Observe(d.Seconds())
}

// Outcome collapses an error into a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	case errors.Is(err, apperr.ErrTimeout):
		return "timeout"
	case errors.Is(err, apperr.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
