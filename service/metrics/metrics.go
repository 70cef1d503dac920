package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec
	solanaRPCRetries       *prometheus.CounterVec

	// Block analysis metrics
	blocksAnalyzedTotal   *prometheus.CounterVec
	blockAnalysisDuration *prometheus.HistogramVec
	transactionsTotal     *prometheus.CounterVec
	transactionsExcluded  *prometheus.CounterVec
	graphEdgesTotal       *prometheus.CounterVec
	scheduleWaves         prometheus.Histogram
	scheduleWaveWidth     prometheus.Histogram
	lastAnalyzedSlot      prometheus.Gauge

	// Temporal Metrics
	activityDuration *prometheus.HistogramVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),

		// Block analysis metrics
		blocksAnalyzedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocks_analyzed_total",
				Help: "Total number of blocks run through the conflict-graph scheduler",
			},
			[]string{"status"},
		),
		blockAnalysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "block_analysis_duration_seconds",
				Help:    "Duration of a block analysis stage in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"stage"},
		),
		transactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "block_transactions_total",
				Help: "Total number of block transactions seen, by whether they entered the graph",
			},
			[]string{"outcome"},
		),
		transactionsExcluded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "block_transactions_excluded_total",
				Help: "Total number of block transactions excluded from the graph, by reason",
			},
			[]string{"reason"},
		),
		graphEdgesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graph_edges_total",
				Help: "Total number of blocking edges observed while draining, by kind",
			},
			[]string{"kind"},
		),
		scheduleWaves: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "schedule_waves",
				Help:    "Number of waves (maximum depth) per analyzed block",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
		scheduleWaveWidth: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "schedule_wave_width",
				Help:    "Number of transactions per wave",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
			},
		),
		lastAnalyzedSlot: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "last_analyzed_slot",
				Help: "Slot of the most recently analyzed block",
			},
		),

		// Temporal Metrics
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analysis_activity_duration_seconds",
				Help:    "Duration of block analysis workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// Block analysis metric helpers

// RecordBlockAnalyzed records the outcome of one block analysis.
func (m *Metrics) RecordBlockAnalyzed(slot uint64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	} else {
		m.lastAnalyzedSlot.Set(float64(slot))
	}
	m.blocksAnalyzedTotal.WithLabelValues(status).Inc()
}

// RecordStageDuration records how long an analysis stage ("fetch", "build",
// "drain", "export") took.
func (m *Metrics) RecordStageDuration(stage string, duration float64) {
	m.blockAnalysisDuration.WithLabelValues(stage).Observe(duration)
}

// RecordTransactions records how many transactions entered the graph.
func (m *Metrics) RecordTransactions(included, excluded int) {
	m.transactionsTotal.WithLabelValues("included").Add(float64(included))
	m.transactionsTotal.WithLabelValues("excluded").Add(float64(excluded))
}

// RecordTransactionExcluded records one excluded transaction.
func (m *Metrics) RecordTransactionExcluded(reason string) {
	m.transactionsExcluded.WithLabelValues(reason).Inc()
}

// RecordGraphEdges records drained edges split into resolving and blocked.
func (m *Metrics) RecordGraphEdges(resolving, blocked int) {
	m.graphEdgesTotal.WithLabelValues("resolving").Add(float64(resolving))
	m.graphEdgesTotal.WithLabelValues("blocked").Add(float64(blocked))
}

// RecordSchedule records the wave count and every wave's width.
func (m *Metrics) RecordSchedule(waveWidths []int) {
	m.scheduleWaves.Observe(float64(len(waveWidths)))
	for _, width := range waveWidths {
		m.scheduleWaveWidth.Observe(float64(width))
	}
}

// Temporal metric helpers

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, err error, duration float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.activityDuration.WithLabelValues(activity, status).Observe(duration)
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Timer is a helper for timing operations.
// Usage:
//
//	defer metrics.Timer(time.Now(), func(duration float64) {
//	    m.RecordStageDuration("build", duration)
//	})()
func Timer(start time.Time, recordFunc func(float64)) func() {
	return func() {
		recordFunc(time.Since(start).Seconds())
	}
}
