// Package observability provides structured logging, trace-context
// propagation, and Prometheus metrics shared by every engine component.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the pre-wired set of counters, gauges, and histograms for the
// paper-trading engine. Construct one with NewMetrics and pass it to
// components that need to record activity; it registers itself with a
// supplied prometheus.Registerer so callers control exposition (e.g. a
// dedicated registry for /metrics rather than the global default).
type Metrics struct {
	CyclesTotal       *prometheus.CounterVec
	CycleLatency      *prometheus.HistogramVec
	OrdersPlaced      *prometheus.CounterVec
	OrdersRejected    *prometheus.CounterVec
	FillsTotal        *prometheus.CounterVec
	SlippageBps       prometheus.Histogram
	Equity            prometheus.Gauge
	OpenPositions     prometheus.Gauge
	RiskViolations    *prometheus.CounterVec
	IngestGaps        *prometheus.CounterVec
	RetentionRows     *prometheus.CounterVec
	SchedulerState    *prometheus.GaugeVec
}

// NewMetrics builds the metric set and registers every collector with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_cycles_total",
			Help: "Orchestrator cycles run, labeled by symbol, timeframe, and status.",
		}, []string{"symbol", "timeframe", "status"}),

		CycleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "papertrader_cycle_latency_seconds",
			Help:    "Wall-clock latency of one orchestrator cycle.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"symbol", "timeframe"}),

		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_orders_placed_total",
			Help: "Orders accepted by the order management service, by side.",
		}, []string{"symbol", "side"}),

		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_orders_rejected_total",
			Help: "Orders rejected by the risk engine, by violation code.",
		}, []string{"symbol", "violation_code"}),

		FillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_fills_total",
			Help: "Fills executed by the execution engine, by side.",
		}, []string{"symbol", "side"}),

		SlippageBps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_slippage_bps",
			Help:    "Realised slippage in basis-points per fill.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 200},
		}),

		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_account_equity",
			Help: "Current mark-to-market account equity.",
		}),

		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_open_positions",
			Help: "Number of symbols currently holding a non-flat netting position.",
		}),

		RiskViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_risk_violations_total",
			Help: "Risk policy violations observed, by violation code.",
		}, []string{"violation_code"}),

		IngestGaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_ingest_gaps_total",
			Help: "Candle sequence gaps detected during ingestion, by symbol and timeframe.",
		}, []string{"symbol", "timeframe"}),

		RetentionRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_retention_rows_deleted_total",
			Help: "Rows deleted by the retention pruning pass, by table.",
		}, []string{"table"}),

		SchedulerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "papertrader_scheduler_state",
			Help: "Scheduler loop state (1 if currently in that state, 0 otherwise), by symbol, timeframe, and state.",
		}, []string{"symbol", "timeframe", "state"}),
	}

	reg.MustRegister(
		m.CyclesTotal, m.CycleLatency, m.OrdersPlaced, m.OrdersRejected,
		m.FillsTotal, m.SlippageBps, m.Equity, m.OpenPositions,
		m.RiskViolations, m.IngestGaps, m.RetentionRows, m.SchedulerState,
	)
	return m
}
