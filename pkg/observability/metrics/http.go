package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Labels: method, route, status
	managementRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dynalock_management_request_duration_seconds",
			Help:    "Management endpoint request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	managementRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dynalock_management_requests_total",
			Help: "Total number of management endpoint requests",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordRequest records one served management request.
func RecordRequest(method, route string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	managementRequestDuration.WithLabelValues(method, route, statusStr).Observe(duration.Seconds())
	managementRequestsTotal.WithLabelValues(method, route, statusStr).Inc()
}
