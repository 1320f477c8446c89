// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	EventsCommitted   *prometheus.CounterVec
	LastEventSeq      prometheus.Gauge

	// Flow metrics, in token base units
	Deposited        *prometheus.CounterVec
	PenaltyCollected *prometheus.CounterVec
	FeesCollected    *prometheus.CounterVec
	BonusPaid        *prometheus.CounterVec
	RewardMinted     *prometheus.CounterVec

	// Pool gauges
	PoolTotalLockUp     *prometheus.GaugeVec
	PoolEffectiveLockUp *prometheus.GaugeVec
	PoolActivePositions *prometheus.GaugeVec
	EmergencyMode       prometheus.Gauge

	// Checkpoint metrics
	CheckpointsTotal         *prometheus.CounterVec
	CheckpointDuration       prometheus.Histogram
	LastSuccessfulCheckpoint prometheus.Gauge

	// Feed metrics
	FeedClients         prometheus.Gauge
	FeedMessagesDropped prometheus.Counter

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a Metrics instance registered with reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "lockup_ledger"
	}
	f := promauto.With(reg)

	return &Metrics{
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by name and outcome",
		}, []string{"operation", "status"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, []string{"operation"}),
		EventsCommitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_committed_total",
			Help:      "Committed ledger events by kind",
		}, []string{"kind"}),
		LastEventSeq: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "last_event_seq",
			Help:      "Sequence number of the last committed event",
		}),

		Deposited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "deposited_total",
			Help:      "Principal deposited by token",
		}, []string{"token"}),
		PenaltyCollected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "penalty_collected_total",
			Help:      "Early-exit penalties by token",
		}, []string{"token"}),
		FeesCollected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "fees_collected_total",
			Help:      "Platform fees sent to the fund by token",
		}, []string{"token"}),
		BonusPaid: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "bonus_paid_total",
			Help:      "Penalty bonus paid out by token",
		}, []string{"token"}),
		RewardMinted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "reward_minted_total",
			Help:      "Reward minted to holders by pool token",
		}, []string{"token"}),

		PoolTotalLockUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "total_lockup",
			Help:      "Principal of active positions",
		}, []string{"token"}),
		PoolEffectiveLockUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "effective_total_lockup",
			Help:      "Boosted principal of active positions",
		}, []string{"token"}),
		PoolActivePositions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "active_positions",
			Help:      "Positions not yet exited",
		}, []string{"token"}),
		EmergencyMode: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "emergency_mode",
			Help:      "1 while emergency mode is on",
		}),

		CheckpointsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "runs_total",
			Help:      "Checkpoint runs by status",
		}, []string{"status"}),
		CheckpointDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "duration_seconds",
			Help:      "Checkpoint duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		LastSuccessfulCheckpoint: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_checkpoint_timestamp",
			Help:      "Unix timestamp of last successful checkpoint",
		}),

		FeedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Connected websocket clients",
		}),
		FeedMessagesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped for slow clients",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

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
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// Sink returns an event sink that counts committed events and flows.
func (m *Metrics) Sink() lockup.EventSink {
	return lockup.SinkFunc(func(_ context.Context, events []domain.Event) error {
		for _, ev := range events {
			m.observeEvent(ev)
		}
		return nil
	})
}

func (m *Metrics) observeEvent(ev domain.Event) {
	m.EventsCommitted.WithLabelValues(ev.Kind.String()).Inc()
	m.LastEventSeq.Set(float64(ev.Seq))

	tok := ev.Token.String()
	switch ev.Kind {
	case domain.EventDeposited:
		m.Deposited.WithLabelValues(tok).Add(Float(ev.Amount))
	case domain.EventExited:
		m.PenaltyCollected.WithLabelValues(tok).Add(Float(ev.Penalty))
		m.FeesCollected.WithLabelValues(tok).Add(Float(ev.Fee))
	case domain.EventEmergencyMode:
		m.EmergencyMode.Set(Float(ev.Amount))
	}
	if !ev.Bonus.IsNil() && ev.Bonus.IsPositive() {
		m.BonusPaid.WithLabelValues(tok).Add(Float(ev.Bonus))
	}
	if !ev.Reward.IsNil() && ev.Reward.IsPositive() {
		m.RewardMinted.WithLabelValues(tok).Add(Float(ev.Reward))
	}
}

// ObservePools sets the per-pool gauges.
func (m *Metrics) ObservePools(pools []domain.TokenPool) {
	for _, p := range pools {
		tok := p.Token.String()
		m.PoolTotalLockUp.WithLabelValues(tok).Set(Float(p.TotalLockUp))
		m.PoolEffectiveLockUp.WithLabelValues(tok).Set(Float(p.EffectiveTotalLockUp))
		m.PoolActivePositions.WithLabelValues(tok).Set(float64(p.ActiveLockUpCount))
	}
}

// Float converts an amount for a metric value; precision beyond float64 is lost.
func Float(v sdkmath.Int) float64 {
	if v.IsNil() {
		return 0
	}
	return decimal.NewFromBigInt(v.BigInt(), 0).InexactFloat64()
}

// RecordOperation records a ledger operation outcome and latency.
func RecordOperation(operation string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.OperationsTotal.WithLabelValues(operation, status).Inc()
	DefaultMetrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// RecordCheckpoint records a checkpoint run.
func RecordCheckpoint(durationSeconds float64, err error) {
	if err != nil {
		DefaultMetrics.CheckpointsTotal.WithLabelValues("error").Inc()
		return
	}
	DefaultMetrics.CheckpointsTotal.WithLabelValues("ok").Inc()
	DefaultMetrics.CheckpointDuration.Observe(durationSeconds)
	DefaultMetrics.LastSuccessfulCheckpoint.SetToCurrentTime()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route string, code int, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// UpdateFeedClients sets the connected client gauge.
func UpdateFeedClients(n int) {
	DefaultMetrics.FeedClients.Set(float64(n))
}

// RecordFeedDrop counts a message dropped for a slow client.
func RecordFeedDrop() {
	DefaultMetrics.FeedMessagesDropped.Inc()
}
