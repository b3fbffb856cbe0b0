// Package observability exposes Prometheus metrics and health checks.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeSuccess   = "success"
	OutcomeNoSession = "no_session"
	OutcomeFailed    = "failed"
	OutcomeInvalid   = "invalid"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fincontext_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fincontext_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Conversation metrics
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fincontext_turns_total",
			Help: "Total number of conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	ingestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fincontext_ingests_total",
			Help: "Total number of dataset ingestions by outcome",
		},
		[]string{"outcome"},
	)

	datasetRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fincontext_dataset_rows",
			Help:    "Number of rows in ingested datasets",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	liveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fincontext_live_sessions",
			Help: "Number of identities with a conversation",
		},
	)

	// Completion metrics
	completionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fincontext_completions_total",
			Help: "Total number of completion requests",
		},
		[]string{"provider", "outcome"},
	)

	completionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fincontext_completion_duration_seconds",
			Help:    "Completion request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	completionTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fincontext_completion_tokens_total",
			Help: "Tokens reported by the completion service",
		},
		[]string{"provider", "type"},
	)

	initOnce sync.Once
)

// InitMetrics registers the collectors with the default registry.
// Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			turnsTotal,
			ingestsTotal,
			datasetRows,
			liveSessions,
			completionsTotal,
			completionDuration,
			completionTokens,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTurn counts a conversation turn
func RecordTurn(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}

// RecordIngest counts an ingestion and, on success, its size
func RecordIngest(outcome string, rows int) {
	ingestsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess {
		datasetRows.Observe(float64(rows))
	}
}

// RecordCompletion records completion latency and token usage
func RecordCompletion(provider, outcome string, duration time.Duration, promptTokens, replyTokens int) {
	completionsTotal.WithLabelValues(provider, outcome).Inc()
	completionDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if promptTokens > 0 {
		completionTokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if replyTokens > 0 {
		completionTokens.WithLabelValues(provider, "completion").Add(float64(replyTokens))
	}
}

// SetLiveSessions sets the live-session gauge
func SetLiveSessions(count int) {
	liveSessions.Set(float64(count))
}
