// Package metrics provides Prometheus metrics for the import pipeline.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tinusleroux/crowdbiz-graph/pkg/merging"
)

var (
	// ImportsTotal tracks import runs by entity type and final batch status
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crowdbiz",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Total number of import runs by entity type and status",
		},
		[]string{"entity_type", "status"},
	)

	// StageDuration tracks how long each pipeline stage takes
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crowdbiz",
			Subsystem: "import",
			Name:      "stage_duration_seconds",
			Help:      "Duration of import pipeline stages in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"entity_type", "stage"},
	)

	// RecordsTotal tracks staged records by outcome
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crowdbiz",
			Subsystem: "import",
			Name:      "records_total",
			Help:      "Total number of staged records by outcome",
		},
		[]string{"entity_type", "outcome"},
	)

	// CommittedTotal tracks production writes by decision
	CommittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crowdbiz",
			Subsystem: "merge",
			Name:      "committed_total",
			Help:      "Total number of records written to production by decision",
		},
		[]string{"entity_type", "decision"},
	)

	// RolesClosedTotal tracks current roles closed by a newer current role
	RolesClosedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crowdbiz",
			Subsystem: "merge",
			Name:      "roles_closed_total",
			Help:      "Total number of current roles closed by a newer current role",
		},
	)

	// RecoveredBatchesTotal tracks batches failed by recovery
	RecoveredBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crowdbiz",
			Subsystem: "import",
			Name:      "recovered_batches_total",
			Help:      "Total number of abandoned batches marked failed by recovery",
		},
	)

	// HTTPRequestsTotal tracks inbound API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crowdbiz",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)
)

// RecordImport records the end of an import or commit run
func RecordImport(entityType, status string) {
	ImportsTotal.WithLabelValues(entityType, status).Inc()
}

// RecordStage records the duration of one pipeline stage
func RecordStage(entityType, stage string, durationSeconds float64) {
	StageDuration.WithLabelValues(entityType, stage).Observe(durationSeconds)
}

// RecordRecords adds n records with the given outcome
func RecordRecords(entityType, outcome string, n int) {
	if n <= 0 {
		return
	}
	RecordsTotal.WithLabelValues(entityType, outcome).Add(float64(n))
}

// RecordHTTPRequest records one API request
func RecordHTTPRequest(method, route, statusCode string) {
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
}

// CommitRecorder counts production writes as they are committed.
type CommitRecorder struct{}

var _ merging.CommitHook = CommitRecorder{}

func (CommitRecorder) AfterCommit(_ context.Context, c merging.Committed) error {
	CommittedTotal.WithLabelValues(string(c.EntityType), string(c.Decision)).Inc()
	if n := len(c.ClosedRoles); n > 0 {
		RolesClosedTotal.Add(float64(n))
	}
	return nil
}
