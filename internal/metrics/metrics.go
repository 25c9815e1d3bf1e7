// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ContactSubmissions counts pipeline outcomes.
	ContactSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contact_submissions_total",
			Help: "Contact form submissions by pipeline outcome",
		},
		[]string{"outcome"},
	)

	QuotaStoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "contact_quota_store_errors_total",
			Help: "Quota counter store failures (requests were allowed)",
		},
	)

	NotifyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contact_notify_failures_total",
			Help: "Notification dispatch failures by notifier",
		},
		[]string{"notifier"},
	)

	NotifyBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contact_notify_breaker_state",
			Help: "Notifier circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"notifier"},
	)

	PageViewsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "page_views_recorded_total",
			Help: "Page views stored from analytics beacons",
		},
	)

	PageViewErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "page_view_errors_total",
			Help: "Page views that could not be stored",
		},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)
)

// RecordAPIRequest records one finished HTTP request. Paths are not used as a
// label to keep cardinality bounded.
func RecordAPIRequest(method string, status int, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}
