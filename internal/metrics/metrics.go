// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VerificationDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_verification_decisions_total",
			Help: "Verification outcomes by outcome and reason.",
		},
		[]string{"outcome", "reason"},
	)

	FirstActivationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "license_first_activations_total",
			Help: "Licenses activated and bound to a device.",
		},
	)

	CASConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "license_store_cas_conflicts_total",
			Help: "Compare-and-swap conflicts seen while applying license transitions.",
		},
	)

	AccessRecordFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_access_record_failures_total",
			Help: "Access log entries that could not be recorded.",
		},
		[]string{"cause"},
	)

	SignatureBypassTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "license_signature_bypass_total",
			Help: "Requests accepted through the signature test bypass.",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

const (
	CauseBufferFull  = "buffer_full"
	CauseWriteFailed = "write_failed"
	CauseClosed      = "closed"
)
