package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "balloon_reliability"

// Metrics holds the Prometheus counters, histograms, and gauges for scoring and enrichment.
type Metrics struct {
	PipelineRunning       prometheus.Gauge
	RunProcessingDuration prometheus.Histogram
	RunFailures           prometheus.Counter

	// Scoring metrics.
	RunsScored    prometheus.Counter
	ObjectsScored prometheus.Counter
	Scores        prometheus.Histogram
	Anomalies     *prometheus.CounterVec // labels: kind={teleport,gap_start,gap_end}

	// Enrichment metrics.
	EnrichCells      *prometheus.CounterVec // labels: result={hit,miss}
	ProviderRequests *prometheus.CounterVec // labels: outcome={success,rate_limited,error}
	ProviderDuration prometheus.Histogram
	RowsEnriched     prometheus.Counter
	EnrichIncomplete prometheus.Counter
	PublishErrors    prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.RunProcessingDuration,
		m.RunFailures,
		m.RunsScored,
		m.ObjectsScored,
		m.Scores,
		m.Anomalies,
		m.EnrichCells,
		m.ProviderRequests,
		m.ProviderDuration,
		m.RowsEnriched,
		m.EnrichIncomplete,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the processor loop is active, 0 when shut down.",
		}),
		RunProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_processing_duration_seconds",
			Help:      "Duration of scoring plus enrichment for one run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		RunFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Runs whose processing failed during a polling cycle.",
		}),
		RunsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_scored_total",
			Help:      "Total runs whose reliability records were replaced.",
		}),
		ObjectsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_scored_total",
			Help:      "Total tracked objects scored.",
		}),
		Scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reliability_score",
			Help:      "Distribution of reliability scores.",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Anomaly evidence emitted by the scorer, by kind.",
		}, []string{"kind"}),
		EnrichCells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrich_cells_total",
			Help:      "Candidate weather cells by cache result.",
		}, []string{"result"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Weather provider requests by outcome.",
		}, []string{"outcome"}),
		ProviderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Weather provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RowsEnriched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_enriched_total",
			Help:      "Weather cache rows written.",
		}),
		EnrichIncomplete: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrich_incomplete_total",
			Help:      "Enrichment invocations that stopped at the request budget.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed attempts to publish records or outcomes.",
		}),
	}
}
