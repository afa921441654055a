// Package metrics provides Prometheus metrics for the resolution and merge engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchClassificationsTotal tracks matcher outcomes by tier
	MatchClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fictotum",
			Subsystem: "matching",
			Name:      "classifications_total",
			Help:      "Total number of incoming records classified, by kind and tier",
		},
		[]string{"kind", "tier"},
	)

	// ResolutionDecisionsTotal tracks where resolution decisions came from
	ResolutionDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fictotum",
			Subsystem: "resolution",
			Name:      "decisions_total",
			Help:      "Total number of resolution decisions by action and source",
		},
		[]string{"action", "source"},
	)

	// ImportRecordsTotal tracks per-record import outcomes
	ImportRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fictotum",
			Subsystem: "import",
			Name:      "records_total",
			Help:      "Total number of imported records by kind and action",
		},
		[]string{"kind", "action", "dry_run"},
	)

	// ImportSubBatchFailuresTotal tracks rolled back write sub-batches
	ImportSubBatchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fictotum",
			Subsystem: "import",
			Name:      "sub_batch_failures_total",
			Help:      "Total number of import sub-batches rolled back",
		},
		[]string{"stage"},
	)

	// ImportRunDuration tracks batch run duration in seconds
	ImportRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fictotum",
			Subsystem: "import",
			Name:      "run_duration_seconds",
			Help:      "Duration of batch import runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	// MergeOperationsTotal tracks duplicate consolidations by status
	MergeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fictotum",
			Subsystem: "merge",
			Name:      "operations_total",
			Help:      "Total number of duplicate consolidations by kind and status",
		},
		[]string{"kind", "status"},
	)

	// MergeRelationshipsRedirectedTotal tracks redirected edges by type
	MergeRelationshipsRedirectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fictotum",
			Subsystem: "merge",
			Name:      "relationships_redirected_total",
			Help:      "Total number of relationships redirected to a primary, by type",
		},
		[]string{"rel_type"},
	)

	// MergeManualReviewTotal tracks groups routed to manual review
	MergeManualReviewTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fictotum",
			Subsystem: "merge",
			Name:      "manual_review_total",
			Help:      "Total number of duplicate groups routed to manual review",
		},
		[]string{"kind"},
	)

	// IdentityRequestsTotal tracks outbound identity lookups
	IdentityRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fictotum",
			Subsystem: "identity",
			Name:      "requests_total",
			Help:      "Total number of identity service requests",
		},
		[]string{"operation", "status_code"},
	)

	// IdentityRequestDuration tracks identity lookup latency
	IdentityRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fictotum",
			Subsystem: "identity",
			Name:      "request_duration_seconds",
			Help:      "Duration of identity service requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)
)
