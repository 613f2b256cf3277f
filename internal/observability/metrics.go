// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Transaction metrics
	TransactionsTotal   *prometheus.CounterVec
	RevertsTotal        *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	EventsEmitted       *prometheus.CounterVec
	FeesCollected       *prometheus.CounterVec

	// Pool metrics
	PoolsDeployed prometheus.Counter
	PoolsActive   prometheus.Gauge

	// Persistence metrics
	PersistQueueDepth prometheus.Gauge
	PersistErrors     *prometheus.CounterVec
	PersistLatency    prometheus.Histogram

	// Feed metrics
	FeedClients      prometheus.Gauge
	FeedMessagesSent prometheus.Counter
	FeedDropped      prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastCommittedSeq  prometheus.Gauge
	LastPersistedSeq  prometheus.Gauge
	LastCommitUnixSec prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg uses the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "fsp_staking"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Transaction metrics
		TransactionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "transactions_total",
			Help:      "Total number of executed transactions by operation and status",
		}, []string{"operation", "status"}),
		RevertsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "reverts_total",
			Help:      "Total number of reverted transactions by revert code",
		}, []string{"operation", "code"}),
		TransactionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "transaction_duration_seconds",
			Help:      "Transaction execution duration in seconds, lock wait included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "events_emitted_total",
			Help:      "Total number of committed events by kind",
		}, []string{"kind"}),
		FeesCollected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "fees_collected_native_total",
			Help:      "Native currency collected as fees, in whole units",
		}, []string{"operation"}),

		// Pool metrics
		PoolsDeployed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "factory",
			Name:      "pools_deployed_total",
			Help:      "Total number of pools deployed",
		}),
		PoolsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "factory",
			Name:      "pools_active",
			Help:      "Number of pools that have not closed",
		}),

		// Persistence metrics
		PersistQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "queue_depth",
			Help:      "Committed transactions waiting to be persisted",
		}),
		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "errors_total",
			Help:      "Total number of persistence failures by store",
		}, []string{"store"}),
		PersistLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "latency_seconds",
			Help:      "Time from commit to persisted state in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Feed metrics
		FeedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Connected WebSocket feed clients",
		}),
		FeedMessagesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_sent_total",
			Help:      "Total number of events written to feed clients",
		}),
		FeedDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_dropped_total",
			Help:      "Events dropped because a client could not keep up",
		}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastCommittedSeq: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_committed_seq",
			Help:      "Sequence number of the last committed transaction",
		}),
		LastPersistedSeq: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_persisted_seq",
			Help:      "Sequence number of the last persisted transaction",
		}),
		LastCommitUnixSec: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_commit_timestamp",
			Help:      "Chain timestamp of the last committed transaction",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordTransaction records an executed transaction. code is empty on success.
func (m *Metrics) RecordTransaction(operation, code string, seconds float64) {
	status := "committed"
	if code != "" {
		status = "reverted"
		m.RevertsTotal.WithLabelValues(operation, code).Inc()
	}
	m.TransactionsTotal.WithLabelValues(operation, status).Inc()
	m.TransactionDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordCommit updates health gauges and event counters for a committed transaction.
func (m *Metrics) RecordCommit(seq uint64, timestamp int64, kinds []string) {
	m.LastCommittedSeq.Set(float64(seq))
	m.LastCommitUnixSec.Set(float64(timestamp))
	for _, k := range kinds {
		m.EventsEmitted.WithLabelValues(k).Inc()
	}
}

// RecordFee adds a collected fee, already converted to whole native units.
func (m *Metrics) RecordFee(operation string, amount float64) {
	if amount > 0 {
		m.FeesCollected.WithLabelValues(operation).Add(amount)
	}
}

// RecordPersist records the outcome of persisting one transaction.
func (m *Metrics) RecordPersist(seq uint64, seconds float64, failedStore string) {
	m.PersistLatency.Observe(seconds)
	if failedStore != "" {
		m.PersistErrors.WithLabelValues(failedStore).Inc()
		return
	}
	m.LastPersistedSeq.Set(float64(seq))
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordDBQuery records database query metrics on DefaultMetrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.RecordDBQuery(database, operation, seconds, err)
}
