package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MintsTotal tracks successful mints per pricing model
	MintsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "path402_mints_total",
			Help: "Total number of content tokens minted",
		},
		[]string{"model"},
	)

	// MintErrorsTotal tracks rejected mints by reason
	MintErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "path402_mint_errors_total",
			Help: "Total number of rejected mints",
		},
		[]string{"reason"},
	)

	// MintRetries tracks mints retried after a serialization failure
	MintRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "path402_mint_retries_total",
			Help: "Total number of mint retries after serialization failures",
		},
	)

	// CapabilityIssued tracks capability tokens issued
	CapabilityIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "path402_capability_issued_total",
			Help: "Total number of capability tokens issued",
		},
	)

	// CapabilityVerifications tracks capability checks by result
	CapabilityVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "path402_capability_verifications_total",
			Help: "Total number of capability token verifications",
		},
		[]string{"result"},
	)

	// ProofFetchLatency tracks raw transaction lookup latency
	ProofFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "path402_proof_fetch_latency_seconds",
			Help:    "Raw transaction lookup latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// ProofChecks tracks on-chain proof outcomes
	ProofChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "path402_proof_checks_total",
			Help: "Total number of on-chain proof checks",
		},
		[]string{"outcome"},
	)

	// DomainVerifications tracks domain ownership decisions per channel
	DomainVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "path402_domain_verifications_total",
			Help: "Total number of domain ownership channel checks",
		},
		[]string{"channel", "result"},
	)

	// PaywallReceipts tracks verified payments per method
	PaywallReceipts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "path402_paywall_receipts_total",
			Help: "Total number of paywall receipts issued",
		},
		[]string{"method"},
	)

	// PaywallValidations tracks access token validations by result
	PaywallValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "path402_paywall_validations_total",
			Help: "Total number of access token validations",
		},
		[]string{"result"},
	)

	// PaywallSwept tracks entries removed by the cleanup sweep
	PaywallSwept = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "path402_paywall_swept_total",
			Help: "Total number of expired paywall entries removed",
		},
		[]string{"kind"},
	)

	// DBConnectionPoolUsage tracks database connection pool usage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "path402_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)

	// APIRequestDuration tracks HTTP API latency by route and status
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "path402_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
