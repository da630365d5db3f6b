package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveBillingRun(t *testing.T) {
	before := testutil.ToFloat64(billingRunsTotal.WithLabelValues(RunCompleted))
	ObserveBillingRun(RunCompleted, 250*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(billingRunsTotal.WithLabelValues(RunCompleted)))
}

func TestIncContractOutcome(t *testing.T) {
	before := testutil.ToFloat64(contractOutcomesTotal.WithLabelValues(OutcomeReplaced))
	IncContractOutcome(OutcomeReplaced)
	IncContractOutcome(OutcomeReplaced)
	assert.Equal(t, before+2, testutil.ToFloat64(contractOutcomesTotal.WithLabelValues(OutcomeReplaced)))
}

func TestIncStoreBreakerTrips(t *testing.T) {
	before := testutil.ToFloat64(storeBreakerTrips)
	IncStoreBreakerTrips()
	assert.Equal(t, before+1, testutil.ToFloat64(storeBreakerTrips))
}

func TestGinMiddleware_AndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/invoices/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", Handler())

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/invoices/:id", http.MethodGet, "200"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/invoices/abc", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/invoices/:id", http.MethodGet, "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "energy_billing_http_requests_total"))
}
