package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/app"
)

var _ app.Metrics = (*Metrics)(nil)

func TestLedgerCounters(t *testing.T) {
	m := New()

	m.BatchWritten("invoice", 3)
	m.BatchWritten("invoice", 4)
	m.BatchWritten("settlement", 2)
	m.UnbalancedBatches(2)
	m.UnbalancedBatches(0)
	m.PaymentRecorded("cash")
	m.ConsistencyViolation("negative_balance")
	m.OutboxDelivered("invoice.validated", false)
	m.InvoiceTransition("after_settle", "sales")
	m.InvoiceSettled("sales", 12)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.batches.WithLabelValues("invoice")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.entries.WithLabelValues("invoice")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.unbalanced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payments.WithLabelValues("cash")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.violations.WithLabelValues("negative_balance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outbox.WithLabelValues("invoice.validated", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("after_settle", "sales")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.settleDays))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BatchWritten("invoice", 1)
		m.UnbalancedBatches(1)
		m.PaymentRecorded("cash")
		m.ConsistencyViolation("x")
		m.InvoiceTransition("after_validate", "sales")
		m.InvoiceSettled("sales", 3)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/invoices/:number", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/FAC-2024-00001", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/invoices/:number", "GET", "204")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tradeledger_http_requests_total"))
}
