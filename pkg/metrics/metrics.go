package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FieldsSigned counts field sign/unsign mutations by result (signed|unsigned).
	FieldsSigned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signer_fields_signed_total",
			Help: "Total number of field signing mutations",
		},
		[]string{"action", "field_type"},
	)

	// RecipientsCompleted counts recipient-level completions by role.
	RecipientsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signer_recipients_completed_total",
			Help: "Total number of recipients that finished signing",
		},
		[]string{"role"},
	)

	// EnvelopesSealed counts completed sealing pipeline runs by outcome (sealed|reseal|error).
	EnvelopesSealed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signer_envelopes_sealed_total",
			Help: "Total number of sealing pipeline executions",
		},
		[]string{"outcome"},
	)

	// DirectTemplateDocuments counts documents materialized from direct links.
	DirectTemplateDocuments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signer_direct_template_documents_total",
			Help: "Total number of documents created from direct template links",
		},
	)

	// PendingEnvelopes tracks envelopes currently awaiting signatures.
	PendingEnvelopes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signer_pending_envelopes",
			Help: "Number of envelopes in PENDING state",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signer_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
