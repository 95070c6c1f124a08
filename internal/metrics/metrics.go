// Package metrics exposes Prometheus instrumentation for the alerting
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransactionsProcessed counts batch items that completed the
	// decision path, alerted or not.
	TransactionsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kite",
		Subsystem: "alerting",
		Name:      "transactions_processed_total",
		Help:      "Transactions that completed the alert decision path.",
	})

	// AlertsCreated counts persisted alert rows.
	AlertsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kite",
		Subsystem: "alerting",
		Name:      "alerts_created_total",
		Help:      "Alert records persisted.",
	})

	// ItemsRejected counts batch items rejected by validation.
	ItemsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kite",
		Subsystem: "alerting",
		Name:      "items_rejected_total",
		Help:      "Batch items rejected before scoring.",
	})

	// ScorerFallbacks counts provider results substituted with the
	// neutral fallback score, by provider.
	ScorerFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kite",
		Subsystem: "scoring",
		Name:      "fallbacks_total",
		Help:      "Provider results replaced by the neutral fallback score.",
	}, []string{"provider"})

	// BackendRetries counts narrative backend attempts beyond the first.
	BackendRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kite",
		Subsystem: "scoring",
		Name:      "backend_retries_total",
		Help:      "Narrative backend attempts beyond the first.",
	})

	// BackendDuration tracks narrative backend round-trip latency.
	BackendDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kite",
		Subsystem: "scoring",
		Name:      "backend_duration_seconds",
		Help:      "Narrative backend round-trip latency.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(
		TransactionsProcessed,
		AlertsCreated,
		ItemsRejected,
		ScorerFallbacks,
		BackendRetries,
		BackendDuration,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
