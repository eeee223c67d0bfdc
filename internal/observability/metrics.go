package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "field_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RowsIngested    *prometheus.CounterVec   // labels: source={field,mapping,weather}
	MessagesParsed  *prometheus.CounterVec   // labels: outcome={matched,unmatched}
	UnmappedFields  prometheus.Counter
	StageDuration   *prometheus.HistogramVec // labels: stage
	Runs            *prometheus.CounterVec   // labels: outcome={success,failure}
	LastSuccess     prometheus.Gauge
	PipelineRunning prometheus.Gauge

	// Sink metrics.
	RecordsPublished *prometheus.CounterVec // labels: table={fields,summary}
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_ingested_total",
			Help:      "Rows acquired from each source.",
		}, []string{"source"}),
		MessagesParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_parsed_total",
			Help:      "Weather station messages by parse outcome.",
		}, []string{"outcome"}),
		UnmappedFields: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmapped_fields_total",
			Help:      "Field records with no weather station in the mapping.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		RecordsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Records written to the sink by table.",
		}, []string{"table"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RowsIngested,
		m.MessagesParsed,
		m.UnmappedFields,
		m.StageDuration,
		m.Runs,
		m.LastSuccess,
		m.PipelineRunning,
		m.RecordsPublished,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
