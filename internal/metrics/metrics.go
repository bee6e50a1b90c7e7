package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatcher and liquidation counters, partitioned by event or loan labels.

var (
	// Dispatcher
	DispatcherEventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "dispatcher",
		Name:      "events_applied_total",
		Help:      "Total chain events applied to derived state",
	}, []string{"event"})

	DispatcherEventsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "dispatcher",
		Name:      "events_skipped_total",
		Help:      "Total events skipped as replay duplicates",
	}, []string{"event"})

	DispatcherErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "dispatcher",
		Name:      "errors_total",
		Help:      "Total event application errors (after retry exhaustion)",
	}, []string{"event"})

	DispatcherUnknownEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "dispatcher",
		Name:      "unknown_events_total",
		Help:      "Total raw logs with no registered decoder",
	})

	DispatcherApplyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "domalend",
		Subsystem: "dispatcher",
		Name:      "apply_duration_seconds",
		Help:      "Event apply duration (DB transaction)",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"event"})

	DispatcherBlockNumber = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "domalend",
		Subsystem: "dispatcher",
		Name:      "block_number",
		Help:      "Block number of the last applied event",
	})

	InvariantViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "dispatcher",
		Name:      "invariant_violations_total",
		Help:      "Total invariant violations detected during event application",
	}, []string{"kind"})

	// Liquidation monitor
	LiquidationSweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "liquidation",
		Name:      "sweeps_total",
		Help:      "Total liquidation sweeps executed",
	})

	LiquidationSweepLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "domalend",
		Subsystem: "liquidation",
		Name:      "sweep_duration_seconds",
		Help:      "Liquidation sweep duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	LiquidationsTriggeredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "liquidation",
		Name:      "triggered_total",
		Help:      "Total liquidations triggered via the executor",
	})

	LiquidationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "liquidation",
		Name:      "failures_total",
		Help:      "Total executor failures with latch reverted",
	})

	LiquidationEligibleLoans = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "domalend",
		Subsystem: "liquidation",
		Name:      "eligible_loans",
		Help:      "Loans past threshold observed in the last sweep",
	})

	// Scoring bridge
	ScoringRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "scoring",
		Name:      "requests_total",
		Help:      "Total scoring backend requests",
	}, []string{"outcome"})

	ScoringRequestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "domalend",
		Subsystem: "scoring",
		Name:      "request_duration_seconds",
		Help:      "Scoring backend request duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	ScoringFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "scoring",
		Name:      "fallbacks_total",
		Help:      "Total conservative fallback scores served",
	})

	// Domain resolver
	ResolverLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "resolver",
		Name:      "lookups_total",
		Help:      "Total domain name lookups",
	}, []string{"outcome"})

	ResolverCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "resolver",
		Name:      "cache_hits_total",
		Help:      "Total resolver cache hits",
	})

	// Contract client
	ContractSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "contracts",
		Name:      "submissions_total",
		Help:      "Total contract submission requests",
	}, []string{"method", "outcome"})

	// Database pool
	DBPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "domalend",
		Subsystem: "postgres",
		Name:      "db_pool_open",
		Help:      "Current number of open PostgreSQL connections in the pool",
	})

	DBPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "domalend",
		Subsystem: "postgres",
		Name:      "db_pool_in_use",
		Help:      "Current number of in-use PostgreSQL connections in the pool",
	})

	DBPoolIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "domalend",
		Subsystem: "postgres",
		Name:      "db_pool_idle",
		Help:      "Current number of idle PostgreSQL connections in the pool",
	})

	// Ingest boundary
	IngestBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "ingest",
		Name:      "batches_total",
		Help:      "Total raw log batches received from the gateway",
	})

	IngestEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Total raw logs received, by decode outcome",
	}, []string{"outcome"})

	// Analytics / consistency
	ConsistencyChecksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "analytics",
		Name:      "consistency_checks_total",
		Help:      "Total pool ledger consistency runs",
	})

	ConsistencyMismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "analytics",
		Name:      "consistency_mismatches_total",
		Help:      "Total pools whose aggregate balance diverged from the ledger",
	})

	AnalyticsRebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "analytics",
		Name:      "rebuilds_total",
		Help:      "Total full analytics rebuilds",
	})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent",
	}, []string{"channel", "alert_type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "domalend",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts skipped due to cooldown",
	}, []string{"channel", "alert_type"})
)
