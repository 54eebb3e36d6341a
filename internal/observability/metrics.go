package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	transferCounter       *prometheus.CounterVec
	transferDuration      *prometheus.HistogramVec
	transferRetryCounter  *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
	notificationCounter   *prometheus.CounterVec
	rateLimitedCounter    *prometheus.CounterVec
	panicCounter          prometheus.Counter
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Transfer attempts by strategy and outcome",
		}, []string{"strategy", "result"})

		transferDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transfer_duration_seconds",
			Help:    "End-to-end transfer latency including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"})

		transferRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_retries_total",
			Help: "Transfers restarted after losing an optimistic race",
		}, []string{"strategy"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		notificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Transfer notifications handled by the notification worker",
		}, []string{"result"})

		rateLimitedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		}, []string{"scope"})

		panicCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panics_recovered_total",
			Help: "Handler panics converted into 500 responses",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			transferCounter,
			transferDuration,
			transferRetryCounter,
			idempotencyCounter,
			workerRunCounter,
			notificationCounter,
			rateLimitedCounter,
			panicCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

// ObserveTransfer records one finished transfer call. result is a domain
// error kind, "success", or "replayed" for an id already in the ledger.
func ObserveTransfer(strategy, result string, duration time.Duration) {
	if transferCounter == nil {
		return
	}
	transferCounter.WithLabelValues(strategy, result).Inc()
	transferDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

func IncrementTransferRetry(strategy string) {
	if transferRetryCounter == nil {
		return
	}
	transferRetryCounter.WithLabelValues(strategy).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func IncrementNotification(result string) {
	if notificationCounter == nil {
		return
	}
	notificationCounter.WithLabelValues(result).Inc()
}

// IncrementRateLimited counts a rejected request. scope is "ip" or "user".
func IncrementRateLimited(scope string) {
	if rateLimitedCounter == nil {
		return
	}
	rateLimitedCounter.WithLabelValues(scope).Inc()
}

func IncrementPanic() {
	if panicCounter == nil {
		return
	}
	panicCounter.Inc()
}
