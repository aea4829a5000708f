package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	askRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_ask_requests_total",
			Help: "Total number of ask pipeline invocations by outcome.",
		},
		[]string{"outcome"},
	)
	askDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_ask_duration_seconds",
			Help:    "End-to-end ask pipeline latency in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	modelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_model_calls_total",
			Help: "Total number of language model calls by pipeline stage.",
		},
		[]string{"stage"},
	)
	modelCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_model_call_duration_seconds",
			Help:    "Language model call latency by pipeline stage.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"stage"},
	)
	unsafeQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_unsafe_queries_total",
			Help: "Total number of generated queries rejected by the safety validator.",
		},
	)
	schemaListingsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_schema_listings_total",
			Help: "Total number of underlying schema table listings.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		askRequestsTotal,
		askDurationSeconds,
		modelCallsTotal,
		modelCallDurationSeconds,
		unsafeQueriesTotal,
		schemaListingsTotal,
	)
}

func ObserveAsk(outcome string, elapsed time.Duration) {
	askRequestsTotal.WithLabelValues(outcome).Inc()
	askDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveModelCall(stage string, elapsed time.Duration) {
	modelCallsTotal.WithLabelValues(stage).Inc()
	modelCallDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementUnsafeQuery() {
	unsafeQueriesTotal.Inc()
}

func IncrementSchemaListing() {
	schemaListingsTotal.Inc()
}
