package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "atrocitee"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Requests issued to the fulfillment provider by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	providerRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Backoff retries performed against the fulfillment provider.",
		},
		[]string{"endpoint"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Latency of single provider HTTP attempts.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	mockupTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mockup_task_transitions_total",
			Help:      "Mockup task state transitions by target status.",
		},
		[]string{"status"},
	)

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Catalog synchronization runs by type, scope and status.",
		},
		[]string{"type", "scope", "status"},
	)

	stagedChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "product_changes_staged_total",
			Help:      "Product changes staged for review by change type.",
		},
		[]string{"change_type"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Provider webhook deliveries by event type and outcome.",
		},
		[]string{"event_type", "outcome"},
	)

	reportedErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reported_errors_total",
			Help:      "Errors reported to the observability collaborator by operation.",
		},
		[]string{"operation"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			providerRequests,
			providerRetries,
			providerLatency,
			mockupTransitions,
			syncRuns,
			stagedChanges,
			webhookEvents,
			reportedErrors,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func ObserveProviderRequest(endpoint, outcome string, seconds float64) {
	providerRequests.WithLabelValues(endpoint, outcome).Inc()
	providerLatency.WithLabelValues(endpoint).Observe(seconds)
}

func IncProviderRetry(endpoint string) {
	providerRetries.WithLabelValues(endpoint).Inc()
}

func IncMockupTransition(status string) {
	mockupTransitions.WithLabelValues(status).Inc()
}

func IncSyncRun(syncType, scope, status string) {
	syncRuns.WithLabelValues(syncType, scope, status).Inc()
}

func IncStagedChange(changeType string) {
	stagedChanges.WithLabelValues(changeType).Inc()
}

func IncWebhook(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func IncReportedError(operation string) {
	reportedErrors.WithLabelValues(operation).Inc()
}
