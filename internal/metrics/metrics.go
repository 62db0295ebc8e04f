// Package metrics exposes Prometheus collectors for the catalog crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTotal                    *prometheus.CounterVec
	runRejectionsTotal           prometheus.Counter
	originRequestsTotal          *prometheus.CounterVec
	originRequestDurationSeconds *prometheus.HistogramVec
	originBytesTotal             *prometheus.CounterVec
	coursesFetchedTotal          prometheus.Counter
	recordsIngestedTotal         *prometheus.CounterVec
	activeWorkers                prometheus.Gauge
	pacingDelaySeconds           prometheus.Histogram
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_runs_total",
				Help: "Total number of full runs finished, labeled by mode and status.",
			},
			[]string{"mode", "status"},
		)

		runRejectionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_run_rejections_total",
				Help: "Full run requests rejected because another run was in flight.",
			},
		)

		originRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_origin_requests_total",
				Help: "Requests sent to the origin, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		originRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_origin_request_duration_seconds",
				Help:    "Histogram of origin request latencies, labeled by endpoint.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"endpoint"},
		)

		originBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_origin_bytes_total",
				Help: "Total response bytes received from the origin, labeled by endpoint.",
			},
			[]string{"endpoint"},
		)

		coursesFetchedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_courses_fetched_total",
				Help: "Course rows parsed from origin listings.",
			},
		)

		recordsIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_records_ingested_total",
				Help: "Course records handled by the ingest engine, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		pacingDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_pacing_delay_seconds",
				Help:    "Histogram of waits between consecutive listing pages.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun counts a finished full run.
func ObserveRun(mode, status string) {
	Init()
	runsTotal.WithLabelValues(mode, status).Inc()
}

// ObserveRunRejected counts an admission-control rejection.
func ObserveRunRejected() {
	Init()
	runRejectionsTotal.Inc()
}

// ObserveOriginRequest records one request to the origin.
func ObserveOriginRequest(endpoint, outcome string, bytesFetched int, duration time.Duration) {
	Init()
	originRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	originRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
	if bytesFetched > 0 {
		originBytesTotal.WithLabelValues(endpoint).Add(float64(bytesFetched))
	}
}

// ObserveCoursesFetched adds parsed course rows.
func ObserveCoursesFetched(n int) {
	Init()
	if n > 0 {
		coursesFetchedTotal.Add(float64(n))
	}
}

// ObserveRecords adds ingested records under the given outcome (persisted, failed).
func ObserveRecords(outcome string, n int) {
	Init()
	if n > 0 {
		recordsIngestedTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObservePacingDelay records the duration of a pacing wait.
func ObservePacingDelay(duration time.Duration) {
	Init()
	pacingDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
