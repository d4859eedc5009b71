package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// snapshot cache and its consumers.
type Metrics struct {
	Reloads        *prometheus.CounterVec // labels: outcome={success,error}
	ReloadDuration prometheus.Histogram
	LastReload     prometheus.Gauge // unix seconds of the last successful load
	Records        prometheus.Gauge
	ActiveRecords  prometheus.Gauge

	// Filtered stats memoization.
	StatsCache *prometheus.CounterVec // labels: result={hit,miss}

	// Reload notifications.
	Notifications *prometheus.CounterVec // labels: sink={kafka,nats}, outcome={success,error}
	SinkConnected *prometheus.GaugeVec   // labels: sink; 1 while connected
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Reloads,
		m.ReloadDuration,
		m.LastReload,
		m.Records,
		m.ActiveRecords,
		m.StatsCache,
		m.Notifications,
		m.SinkConnected,
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
		Reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ltv",
			Name:      "snapshot_loads_total",
			Help:      "Snapshot loads and reloads by outcome.",
		}, []string{"outcome"}),
		ReloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ltv",
			Name:      "snapshot_load_duration_seconds",
			Help:      "Duration of a read-flatten-aggregate cycle.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		LastReload: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ltv",
			Name:      "snapshot_last_success_timestamp_seconds",
			Help:      "Unix time of the last successfully published snapshot.",
		}),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ltv",
			Name:      "snapshot_records",
			Help:      "Records in the current snapshot.",
		}),
		ActiveRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ltv",
			Name:      "snapshot_active_records",
			Help:      "Active records in the current snapshot.",
		}),
		StatsCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ltv",
			Name:      "filtered_stats_cache_total",
			Help:      "Filtered stats cache lookups by result.",
		}, []string{"result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ltv",
			Name:      "notifications_total",
			Help:      "Snapshot change notifications by sink and outcome.",
		}, []string{"sink", "outcome"}),
		SinkConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ltv",
			Name:      "notification_sink_connected",
			Help:      "Whether a notification sink holds a live connection.",
		}, []string{"sink"}),
	}
}
