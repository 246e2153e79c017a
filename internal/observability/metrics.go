package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "traffic_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the sync
// and merge job.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	RunsTotal       *prometheus.CounterVec // labels: status={success,partial,failure}
	RunDuration     prometheus.Histogram
	LastSuccess     prometheus.Gauge

	// Traffic sync metrics.
	TrafficRequests    *prometheus.CounterVec // labels: outcome={success,empty,rate_limited,error}
	RateLimitRetries   prometheus.Counter
	TrafficAPIDuration prometheus.Histogram
	RowsFetched        *prometheus.CounterVec   // labels: segment
	RowsAdded          *prometheus.CounterVec   // labels: segment
	SyncDuration       *prometheus.HistogramVec // labels: segment

	// Weather metrics.
	WeatherRequests    *prometheus.CounterVec // labels: outcome={success,transient,error,breaker_open}
	WeatherAPIDuration prometheus.Histogram

	// Merge metrics.
	MergedRecords      prometheus.Gauge
	ValidationWarnings prometheus.Counter
	RecordsPublished   prometheus.Counter
}

// NewMetrics creates and registers all job metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.RunsTotal,
		m.RunDuration,
		m.LastSuccess,
		m.TrafficRequests,
		m.RateLimitRetries,
		m.TrafficAPIDuration,
		m.RowsFetched,
		m.RowsAdded,
		m.SyncDuration,
		m.WeatherRequests,
		m.WeatherAPIDuration,
		m.MergedRecords,
		m.ValidationWarnings,
		m.RecordsPublished,
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
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a sync and merge run is in progress.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed pipeline runs by status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete sync, combine and merge run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		TrafficRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traffic_requests_total",
			Help:      "Telraam report requests by outcome.",
		}, []string{"outcome"}),
		RateLimitRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traffic_rate_limit_retries_total",
			Help:      "Telraam requests retried after HTTP 429.",
		}),
		TrafficAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "traffic_api_duration_seconds",
			Help:      "Telraam API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RowsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_fetched_total",
			Help:      "Hourly rows returned by the sensor API.",
		}, []string{"segment"}),
		RowsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_added_total",
			Help:      "New hourly rows persisted per segment.",
		}, []string{"segment"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of one segment's incremental sync.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"segment"}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_requests_total",
			Help:      "Open-Meteo archive requests by outcome.",
		}, []string{"outcome"}),
		WeatherAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      "Open-Meteo API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		MergedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "merged_records",
			Help:      "Rows in the last integrated dataset.",
		}),
		ValidationWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_warnings_total",
			Help:      "Data quality warnings raised by validation.",
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Merged records written to the sink topic.",
		}),
	}
}
