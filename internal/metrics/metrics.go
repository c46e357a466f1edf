// Package metrics exposes process-level Prometheus collectors for cardshot
// and an optional HTTP endpoint that serves them during a run.
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
	activeWorkers              prometheus.Gauge
	rendererLaunchesTotal      *prometheus.CounterVec
	itemsPending               prometheus.Gauge
	navigationDelaySeconds     prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cardshot_active_workers",
				Help: "Number of capture workers currently running.",
			},
		)

		rendererLaunchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardshot_renderer_launches_total",
				Help: "Browser instances launched, labeled by outcome.",
			},
			[]string{"result"},
		)

		itemsPending = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cardshot_items_pending",
				Help: "Items still waiting in the work queue.",
			},
		)

		navigationDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cardshot_navigation_delay_seconds",
				Help:    "Time navigations spent waiting on the rate limiter.",
				Buckets: prometheus.DefBuckets,
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cardshot_http_requests_total",
				Help: "Requests served by the metrics endpoint, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cardshot_http_request_duration_seconds",
				Help:    "Latency of the metrics endpoint, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
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

// ObserveRendererLaunch counts a browser launch attempt.
func ObserveRendererLaunch(err error) {
	Init()
	result := "success"
	if err != nil {
		result = "error"
	}
	rendererLaunchesTotal.WithLabelValues(result).Inc()
}

// SetItemsPending reports the remaining queue length.
func SetItemsPending(n int) {
	Init()
	itemsPending.Set(float64(n))
}

// ObserveNavigationDelay records time spent waiting for a navigation slot.
func ObserveNavigationDelay(d time.Duration) {
	Init()
	navigationDelaySeconds.Observe(d.Seconds())
}

// ObserveHTTPRequest records one request served by the metrics endpoint.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
