// Package metrics exposes Prometheus collectors for the rescue-radar service.
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
	providerRequestsTotal          *prometheus.CounterVec
	providerRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds         *prometheus.HistogramVec
	rateLimitRejectionsTotal       *prometheus.CounterVec
	searchesTotal                  *prometheus.CounterVec
	searchSourcesTotal             *prometheus.CounterVec
	syncRecordsTotal               *prometheus.CounterVec
	syncRunsTotal                  *prometheus.CounterVec
	syncInProgress                 prometheus.Gauge
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		providerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_provider_requests_total",
				Help: "Total number of provider API requests, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		providerRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "radar_provider_request_duration_seconds",
				Help:    "Histogram of provider API latencies, labeled by provider.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"provider"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "radar_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		)

		rateLimitRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_rate_limit_rejections_total",
				Help: "Requests refused because the wait would exceed the caller's budget.",
			},
			[]string{"provider"},
		)

		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_searches_total",
				Help: "Total number of searches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		searchSourcesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_search_sources_total",
				Help: "Sources consulted by searches, labeled by source.",
			},
			[]string{"source"},
		)

		syncRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_sync_records_total",
				Help: "Records written by sync runs, labeled by provider and result.",
			},
			[]string{"provider", "result"},
		)

		syncRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_sync_runs_total",
				Help: "Total number of sync runs, labeled by provider and status.",
			},
			[]string{"provider", "status"},
		)

		syncInProgress = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "radar_sync_in_progress",
				Help: "1 while a sync is running.",
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

// ObserveProviderRequest records one provider API call.
func ObserveProviderRequest(provider, outcome string, duration time.Duration) {
	Init()
	providerRequestsTotal.WithLabelValues(provider, outcome).Inc()
	providerRequestDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(provider string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveRateLimitRejection counts a request refused by the limiter.
func ObserveRateLimitRejection(provider string) {
	Init()
	rateLimitRejectionsTotal.WithLabelValues(provider).Inc()
}

// ObserveSearch records a search outcome and the sources it consulted.
func ObserveSearch(outcome string, sources []string) {
	Init()
	searchesTotal.WithLabelValues(outcome).Inc()
	for _, s := range sources {
		searchSourcesTotal.WithLabelValues(s).Inc()
	}
}

// ObserveSyncRecords adds n to the records counter for provider and result.
func ObserveSyncRecords(provider, result string, n int) {
	if n <= 0 {
		return
	}
	Init()
	syncRecordsTotal.WithLabelValues(provider, result).Add(float64(n))
}

// ObserveSyncRun increments the sync run counter for the given status.
func ObserveSyncRun(provider, status string) {
	Init()
	syncRunsTotal.WithLabelValues(provider, status).Inc()
}

// SetSyncInProgress flips the in-progress gauge.
func SetSyncInProgress(running bool) {
	Init()
	if running {
		syncInProgress.Set(1)
		return
	}
	syncInProgress.Set(0)
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
