package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TradesProtected counts protected trades by execution path (public/private/timelock)
var TradesProtected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mevshield_trades_protected_total",
		Help: "Total number of trades routed through the protection protocol",
	},
	[]string{"path"},
)

// RiskScores records the distribution of risk scores seen by the router
var RiskScores = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "mevshield_risk_score",
		Help:    "Distribution of risk scores supplied to protected trades",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	},
)

// Vault flow metrics
var (
	Deposits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mevshield_vault_deposits_total",
			Help: "Total number of vault deposits",
		},
	)

	Withdrawals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mevshield_vault_withdrawals_total",
			Help: "Total number of vault withdrawals by kind (user/router/emergency)",
		},
		[]string{"kind"},
	)

	FeesCollected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mevshield_vault_fees_collected_total",
			Help: "Total number of fee-bearing deposits",
		},
	)
)

// Delayed order lifecycle metrics
var (
	OrdersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mevshield_orders_created_total",
			Help: "Total number of delayed orders created",
		},
	)

	OrdersExecuted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mevshield_orders_executed_total",
			Help: "Total number of delayed orders executed",
		},
	)

	OrdersCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mevshield_orders_cancelled_total",
			Help: "Total number of delayed orders cancelled",
		},
	)
)

// Bundle tracking metrics
var (
	BundlesSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mevshield_bundles_submitted_total",
			Help: "Total number of private bundles submitted",
		},
	)

	BundlesIncluded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mevshield_bundles_included_total",
			Help: "Total number of private bundles reported included",
		},
	)

	BundlesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mevshield_bundles_failed_total",
			Help: "Total number of private bundle failure reports",
		},
	)
)

// FundsStranded counts output-transfer failures that left funds in router custody
var FundsStranded = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "mevshield_funds_stranded_total",
		Help: "Total number of trades whose output push failed after the input pull",
	},
)

// ScoringLatency records latency of calls to the external risk scoring API
var ScoringLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "mevshield_scoring_latency_seconds",
		Help:    "Latency in seconds of risk score lookups against the ML API",
		Buckets: prometheus.DefBuckets,
	},
)

func init() {
	prometheus.MustRegister(TradesProtected, RiskScores)
	prometheus.MustRegister(Deposits, Withdrawals, FeesCollected)
	prometheus.MustRegister(OrdersCreated, OrdersExecuted, OrdersCancelled)
	prometheus.MustRegister(BundlesSubmitted, BundlesIncluded, BundlesFailed)
	prometheus.MustRegister(FundsStranded, ScoringLatency)
}
