package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "energy_billing"

// Billing run results
const (
	RunCompleted = "completed"
	RunAborted   = "aborted"
	RunRejected  = "rejected"
)

// Per-contract outcomes
const (
	OutcomeGenerated     = "generated"
	OutcomeReplaced      = "replaced"
	OutcomeKept          = "kept"
	OutcomeNotBillable   = "not_billable"
	OutcomeConfiguration = "configuration_error"
	OutcomePersistence   = "persistence_error"
	OutcomeCanceled      = "canceled"
)

var (
	billingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total billing runs by result.",
		},
		[]string{"result"},
	)
	billingRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Billing run latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"result"},
	)
	contractOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_outcomes_total",
			Help:      "Contracts processed by billing runs, by outcome.",
		},
		[]string{"outcome"},
	)
	storeBreakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_breaker_trips_total",
			Help:      "Billing runs aborted because the invoice store breaker opened.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served.",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

func ObserveBillingRun(result string, dur time.Duration) {
	billingRunsTotal.WithLabelValues(result).Inc()
	billingRunDuration.WithLabelValues(result).Observe(dur.Seconds())
}

func IncContractOutcome(outcome string) {
	contractOutcomesTotal.WithLabelValues(outcome).Inc()
}

func IncStoreBreakerTrips() {
	storeBreakerTrips.Inc()
}

// GinMiddleware records request counts and latency by matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
