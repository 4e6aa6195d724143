package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for LiqWatch.
type Metrics struct {
	// --- Refresh cycle ---
	CyclesTotal       *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	CycleFailures     *prometheus.CounterVec
	PositionsTracked  prometheus.Gauge
	PositionsAtRisk   prometheus.Gauge
	PositionsPriced   prometheus.Gauge
	TotalCollateral   prometheus.Gauge
	TotalDebt         prometheus.Gauge
	ReferencePrice    prometheus.Gauge
	CurvePoints       prometheus.Gauge
	LowestHealth      prometheus.Gauge
	LastCycleUnixTime prometheus.Gauge

	// --- Upstream fetches ---
	FetchDuration *prometheus.HistogramVec
	RPCErrors     *prometheus.CounterVec

	// --- Fan-out ---
	PublishTotal   *prometheus.CounterVec
	PublishDrops   prometheus.Counter
	AlertsRaised   *prometheus.CounterVec
	AlertDedupHits prometheus.Counter

	// --- Persistence ---
	SnapshotsWritten prometheus.Counter
	PersistBatchDur  prometheus.Histogram
	PersistErrors    *prometheus.CounterVec
	PersistRetry     prometheus.Counter
	ChannelSize      *prometheus.GaugeVec
	ChannelCapacity  *prometheus.GaugeVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	fetchBuckets := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

	return &Metrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "liqwatch_cycles_total",
			Help: "Refresh cycles by outcome",
		}, []string{"outcome"}),

		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "liqwatch_cycle_duration_seconds",
			Help:    "Wall time of one refresh cycle",
			Buckets: fetchBuckets,
		}),

		CycleFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "liqwatch_cycle_failures_total",
			Help: "Discarded cycles by failing stage",
		}, []string{"stage"}),

		PositionsTracked: f.NewGauge(prometheus.GaugeOpts{
			Name: "liqwatch_positions_tracked",
			Help: "Positions in the current snapshot",
		}),

		PositionsAtRisk: f.NewGauge(prometheus.GaugeOpts{
			Name: "liqwatch_positions_at_risk",
			Help: "Positions with 0 < HF < 1.5",
		}),

		PositionsPriced: f.NewGauge(prometheus.GaugeOpts{
			Name: "liqwatch_positions_with_liquidation_price",
			Help: "Positions with an estimated liquidation price",
		}),

		TotalCollateral: f.NewGauge(prometheus.GaugeOpts{
			Name: "liqwatch_total_collateral_usd",
			Help: "Sum of collateral across tracked positions",
		}),

		TotalDebt: f.NewGauge(prometheus.GaugeOpts{
			Name: "liqwatch_total_debt_usd",
			Help: "Sum of debt across tracked positions",
		}),

		ReferencePrice: f.NewGauge(prometheus.GaugeOpts{
			Name: "liqwatch_reference_price_usd",
			Help: "Reference asset price used by the current snapshot",
		}),

		CurvePoints: f.NewGauge(prometheus.GaugeOpts{
			Name: "liqwatch_curve_points",
			Help: "Samples in the current risk curve",
		}),

		LowestHealth: f.NewGauge(prometheus.GaugeOpts{
			Name: "liqwatch_lowest_health_factor",
			Help: "Lowest finite health factor in the current snapshot",
		}),

		LastCycleUnixTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "liqwatch_last_cycle_timestamp_seconds",
			Help: "Unix time of the last successful cycle",
		}),

		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "liqwatch_fetch_duration_seconds",
			Help:    "Upstream fetch latency",
			Buckets: fetchBuckets,
		}, []string{"source"}),

		RPCErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "liqwatch_rpc_errors_total",
			Help: "Failed upstream calls",
		}, []string{"source"}),

		PublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "liqwatch_publish_total",
			Help: "Messages published by subject kind and outcome",
		}, []string{"kind", "outcome"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "liqwatch_publish_drops_total",
			Help: "Snapshots dropped due to a full publish channel",
		}),

		AlertsRaised: f.NewCounterVec(prometheus.CounterOpts{
			Name: "liqwatch_alerts_raised_total",
			Help: "Health band alerts by new band",
		}, []string{"band"}),

		AlertDedupHits: f.NewCounter(prometheus.CounterOpts{
			Name: "liqwatch_alert_dedup_hits_total",
			Help: "Alerts suppressed as duplicates",
		}),

		SnapshotsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "liqwatch_snapshots_written_total",
			Help: "Snapshots written to Postgres",
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "liqwatch_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "liqwatch_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "liqwatch_persist_retry_total",
			Help: "Persistence retries",
		}),

		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "liqwatch_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "liqwatch_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "liqwatch_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "liqwatch_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "liqwatch_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel occupancy metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
}
