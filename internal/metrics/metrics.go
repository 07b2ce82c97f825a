package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconciliation pipeline counters and histograms, partitioned by chain where
// a chain dimension exists.

var (
	// Scheduler
	CyclesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "scheduler",
		Name:      "cycles_started_total",
		Help:      "Total reconciliation cycles started",
	}, []string{"trigger"})

	CyclesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "scheduler",
		Name:      "cycles_skipped_total",
		Help:      "Timer cycles dropped because a cycle was still scanning",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reconciler",
		Subsystem: "scheduler",
		Name:      "cycle_duration_seconds",
		Help:      "Full reconciliation cycle duration",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	// Explorer fetch
	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "explorer",
		Name:      "fetches_total",
		Help:      "Total explorer fetches by outcome",
	}, []string{"chain", "outcome"})

	FetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reconciler",
		Subsystem: "explorer",
		Name:      "fetch_duration_seconds",
		Help:      "Explorer fetch duration per address",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"chain"})

	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "explorer",
		Name:      "fetch_errors_total",
		Help:      "Total explorer fetch errors by retry class",
	}, []string{"chain", "class"})

	ExplorerRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "explorer",
		Name:      "rate_limit_waits_total",
		Help:      "Explorer calls delayed by the local rate limiter",
	}, []string{"chain"})

	// Classification and crediting
	DepositsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "pipeline",
		Name:      "deposits_classified_total",
		Help:      "Transactions classified as deposits",
	}, []string{"chain", "kind"}) // kind: native|token

	DepositsCredited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "pipeline",
		Name:      "deposits_credited_total",
		Help:      "Deposits credited to user balances",
	}, []string{"chain", "token"})

	DepositsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "pipeline",
		Name:      "deposits_skipped_total",
		Help:      "Deposits skipped as already processed",
	}, []string{"chain"})

	CreditInconsistencies = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "pipeline",
		Name:      "credit_inconsistencies_total",
		Help:      "Credits that left an audit record without a ledger mark, or failed verification",
	})

	// Commissions
	CommissionsPaid = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "commission",
		Name:      "paid_total",
		Help:      "Referral commissions paid",
	}, []string{"token"})

	CommissionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "commission",
		Name:      "failed_total",
		Help:      "Referral commissions that failed after the deposit was credited",
	})

	// Ledger
	LedgerMarks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "ledger",
		Name:      "marks_total",
		Help:      "Ledger mark attempts by outcome (inserted|duplicate)",
	}, []string{"outcome"})

	LedgerCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "ledger",
		Name:      "cache_hits_total",
		Help:      "Processed-key lookups served without a store read",
	}, []string{"layer"}) // layer: lru|redis

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts sent by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reconciler",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Alerts suppressed by cooldown",
	}, []string{"channel", "type"})
)
