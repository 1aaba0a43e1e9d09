// Package metrics exposes prometheus instrumentation for the scrape and
// query paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PortalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lancer_portal_requests_total",
			Help: "Total number of portal requests by shape and outcome",
		},
		[]string{"shape", "outcome"},
	)

	PortalRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lancer_portal_request_duration_seconds",
			Help:    "Duration of portal requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"shape"},
	)

	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lancer_index_builds_total",
			Help: "Total number of index builds by outcome",
		},
		[]string{"outcome"},
	)

	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lancer_index_build_duration_seconds",
			Help:    "Duration of full corpus scrape and index builds in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1800},
		},
	)

	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lancer_queries_total",
			Help: "Total number of index queries by outcome",
		},
		[]string{"outcome"},
	)

	IndexedCourses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lancer_indexed_courses",
			Help: "Number of course summaries in the active index snapshot",
		},
	)
)

// RecordPortalRequest updates the portal request metrics for one call.
func RecordPortalRequest(shape string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	PortalRequestsTotal.WithLabelValues(shape, outcome).Inc()
	PortalRequestDuration.WithLabelValues(shape).Observe(duration.Seconds())
}

// RecordBuild updates the build metrics for one completed build attempt.
func RecordBuild(err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	BuildsTotal.WithLabelValues(outcome).Inc()
	BuildDuration.Observe(duration.Seconds())
}

// RecordQuery counts one query by outcome: ok, invalid (bad user input),
// unavailable (no active index) or error.
func RecordQuery(outcome string) {
	QueriesTotal.WithLabelValues(outcome).Inc()
}
