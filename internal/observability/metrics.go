package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the API.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec   // labels: route, status
	RequestDuration *prometheus.HistogramVec // labels: route
	RequestErrors   *prometheus.CounterVec   // labels: kind

	QueryDuration *prometheus.HistogramVec // labels: operation={events,summary,health}
	RowsReturned  prometheus.Histogram
	CacheLookups  *prometheus.CounterVec // labels: result={hit,miss}
	DatasetFiles  prometheus.Gauge
}

// NewMetrics creates and registers all API metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestErrors,
		m.QueryDuration,
		m.RowsReturned,
		m.CacheLookups,
		m.DatasetFiles,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storm_api",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storm_api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storm_api",
			Name:      "request_errors_total",
			Help:      "Failed requests by error kind.",
		}, []string{"kind"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storm_api",
			Name:      "query_duration_seconds",
			Help:      "Engine query duration by operation.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		RowsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_api",
			Name:      "rows_returned",
			Help:      "Rows returned per query.",
			Buckets:   []float64{0, 1, 10, 100, 1000, 5000, 10000},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storm_api",
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		DatasetFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storm_api",
			Name:      "dataset_files",
			Help:      "Parquet files visible in the dataset at last health check.",
		}),
	}
}
