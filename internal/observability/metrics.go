package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_diary"

// Metrics holds the Prometheus collectors for ingestion.
type Metrics struct {
	// Fetch engine.
	PagesFetched      *prometheus.CounterVec // labels: class={2xx,3xx,4xx}
	FetchRetries      prometheus.Counter
	FetchAbandoned    prometheus.Counter
	FetchPassDuration prometheus.Histogram

	// Archive builder.
	PagesFailed     *prometheus.CounterVec // labels: reason={parse,structure,record,store}
	RecordsInserted prometheus.Counter
	DailyRuns       *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PagesFetched,
		m.FetchRetries,
		m.FetchAbandoned,
		m.FetchPassDuration,
		m.PagesFailed,
		m.RecordsInserted,
		m.DailyRuns,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Pages retrieved with a non-5xx status, by status class.",
		}, []string{"class"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Requests re-issued by a retry pass.",
		}),
		FetchAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_abandoned_total",
			Help:      "URLs still failing after the last retry pass.",
		}),
		FetchPassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_pass_duration_seconds",
			Help:      "Duration of one fetch pass over its URL set.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		PagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_failed_total",
			Help:      "Fetched pages that produced no stored records, by reason.",
		}, []string{"reason"}),
		RecordsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_inserted_total",
			Help:      "Weather records persisted.",
		}),
		DailyRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daily_update_runs_total",
			Help:      "Daily update attempts by outcome.",
		}, []string{"outcome"}),
	}
}
