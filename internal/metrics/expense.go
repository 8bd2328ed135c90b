package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Expense pipeline Prometheus metrics.
var (
	RateLimitWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "expensify",
			Name:      "ratelimit_wait_seconds",
			Help:      "Time spent waiting for backend admission",
			Buckets:   []float64{0, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expensify",
			Name:      "backend_requests_total",
			Help:      "Total number of expense backend requests",
		},
		[]string{"type", "status"}, // status: ok / app_error / http_error / transport_error
	)

	CostReportFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expensify",
			Name:      "costreport_fetches_total",
			Help:      "Completed cost report aggregations",
		},
		[]string{"vendor", "status"},
	)

	CostReportAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expensify",
			Name:      "costreport_attempts_total",
			Help:      "Cost report fetch attempts including retries",
		},
		[]string{"vendor"},
	)

	PluginResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expensify",
			Name:      "plugin_results_total",
			Help:      "Per-plugin run outcomes",
		},
		[]string{"plugin", "status"},
	)

	SubmittedMinorUnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expensify",
			Name:      "submitted_minor_units_total",
			Help:      "Submitted expense amounts in minor currency units",
		},
		[]string{"plugin", "currency"},
	)
)

var registerOnce sync.Once

// Register registers the expense metrics with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RateLimitWaitSeconds)
		prometheus.MustRegister(BackendRequestsTotal)
		prometheus.MustRegister(CostReportFetchesTotal)
		prometheus.MustRegister(CostReportAttemptsTotal)
		prometheus.MustRegister(PluginResultsTotal)
		prometheus.MustRegister(SubmittedMinorUnitsTotal)
	})
}
