// Package metrics exposes Prometheus collectors for the channel pull service.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	remoteCallsTotal           *prometheus.CounterVec
	remoteCallDurationSeconds  *prometheus.HistogramVec
	rateLimitWaitSeconds       *prometheus.HistogramVec
	retriesTotal               *prometheus.CounterVec
	publishFailuresTotal       prometheus.Counter
	archiveFailuresTotal       prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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

		remoteCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pull_remote_calls_total",
				Help: "Total calls to the remote platform API, labeled by method and outcome.",
			},
			[]string{"method", "outcome"},
		)

		remoteCallDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pull_remote_call_duration_seconds",
				Help:    "Histogram of remote platform call latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method"},
		)

		rateLimitWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pull_rate_limit_wait_seconds",
				Help:    "Histogram of rate limiter wait durations, labeled by channel.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"channel"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pull_retries_total",
				Help: "Total page/thread retries, labeled by failure kind.",
			},
			[]string{"kind"},
		)

		publishFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pull_completion_publish_failures_total",
				Help: "Total failed completion event publishes.",
			},
		)

		archiveFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pull_archive_failures_total",
				Help: "Total failed transcript archive writes.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRemoteCall records one remote platform API call.
func ObserveRemoteCall(method, outcome string, duration time.Duration) {
	remoteCallsTotal.WithLabelValues(method, outcome).Inc()
	remoteCallDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveRateLimitWait records the duration of a rate limiter wait.
func ObserveRateLimitWait(channel string, duration time.Duration) {
	rateLimitWaitSeconds.WithLabelValues(channel).Observe(duration.Seconds())
}

// ObserveRetry increments the retry counter for the given failure kind.
func ObserveRetry(kind string) {
	retriesTotal.WithLabelValues(kind).Inc()
}

// IncPublishFailure increments the completion publish failure counter.
func IncPublishFailure() {
	publishFailuresTotal.Inc()
}

// IncArchiveFailure increments the transcript archive failure counter.
func IncArchiveFailure() {
	archiveFailuresTotal.Inc()
}
