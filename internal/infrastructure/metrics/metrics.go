// Package metrics exposes Prometheus counters for journal generation,
// payment reconciliation, the invoice lifecycle and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradeledger"

// Metrics owns a private registry. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	batches        *prometheus.CounterVec
	entries        *prometheus.CounterVec
	unbalanced     prometheus.Gauge
	payments       *prometheus.CounterVec
	violations     *prometheus.CounterVec
	outbox         *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	settleDays     *prometheus.HistogramVec
	requests       *prometheus.CounterVec
	requestSeconds *prometheus.HistogramVec
}

// New creates the registry with process and Go collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_batches_total",
			Help:      "Journal batches written, by kind.",
		}, []string{"kind"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_entries_total",
			Help:      "Journal entries written, by batch kind.",
		}, []string{"kind"}),
		unbalanced: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unbalanced_batches",
			Help:      "Unbalanced batches found by the last verification run.",
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_recorded_total",
			Help:      "Payments recorded, by mode.",
		}, []string{"mode"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_violations_total",
			Help:      "Broken ledger invariants detected at runtime.",
		}, []string{"kind"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_messages_total",
			Help:      "Outbox deliveries, by event type and result.",
		}, []string{"event", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_transitions_total",
			Help:      "Committed invoice lifecycle transitions, by event and direction.",
		}, []string{"event", "direction"}),
		settleDays: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoice_days_to_settle",
			Help:      "Days between invoice date and settlement.",
			Buckets:   []float64{0, 7, 15, 30, 45, 60, 90, 120},
		}, []string{"direction"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "code"}),
		requestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.batches, m.entries, m.unbalanced, m.payments, m.violations,
		m.outbox, m.transitions, m.settleDays, m.requests, m.requestSeconds,
	)
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	return m
}

// BatchWritten implements ledger.Metrics.
func (m *Metrics) BatchWritten(kind string, lines int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(kind).Inc()
	m.entries.WithLabelValues(kind).Add(float64(lines))
}

// UnbalancedBatches implements ledger.Metrics.
func (m *Metrics) UnbalancedBatches(count int) {
	if m == nil {
		return
	}
	m.unbalanced.Set(float64(count))
}

// PaymentRecorded implements payment.Metrics.
func (m *Metrics) PaymentRecorded(mode string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(mode).Inc()
}

// ConsistencyViolation implements payment.Metrics.
func (m *Metrics) ConsistencyViolation(kind string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(kind).Inc()
}

// OutboxDelivered counts one relay attempt.
func (m *Metrics) OutboxDelivered(eventType string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.outbox.WithLabelValues(eventType, result).Inc()
}

// InvoiceTransition implements app.LifecycleMetrics.
func (m *Metrics) InvoiceTransition(event, direction string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, direction).Inc()
}

// InvoiceSettled implements app.LifecycleMetrics.
func (m *Metrics) InvoiceSettled(direction string, days float64) {
	if m == nil {
		return
	}
	m.settleDays.WithLabelValues(direction).Observe(days)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registerer exposes the registry for extra collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
