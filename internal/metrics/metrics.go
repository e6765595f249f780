package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook intake metrics
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payproof_webhooks_total",
			Help: "Total number of webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	// Dispatch from the gateway to the proof generator
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payproof_dispatch_duration_seconds",
			Help:    "Duration of gateway to generator dispatch in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	// Proof generation metrics
	ProofsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payproof_proofs_total",
			Help: "Total number of proof generation attempts by result",
		},
		[]string{"result"},
	)

	AttestationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payproof_attestation_duration_seconds",
			Help:    "Duration of attestation engine calls in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)

	AttestationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payproof_attestation_errors_total",
			Help: "Total number of failed attestation engine calls",
		},
		[]string{"reason"},
	)

	// Storage metrics
	StorageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payproof_storage_duration_seconds",
			Help:    "Duration of proof record writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorageErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payproof_storage_errors_total",
			Help: "Total number of proof record write failures",
		},
	)

	// Dedup claim metrics
	ClaimsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payproof_claims_rejected_total",
			Help: "Total number of deliveries refused because an earlier delivery holds the claim",
		},
	)
)
