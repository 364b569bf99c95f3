package models

import (
	"time"

	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
)

// BatchStatus is the lifecycle state of an import batch
type BatchStatus string

const (
	BatchStatusProcessing   BatchStatus = "processing"
	BatchStatusReadyToMerge BatchStatus = "ready_to_merge"
	BatchStatusCompleted    BatchStatus = "completed"
	BatchStatusFailed       BatchStatus = "failed"
)

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusProcessing:   {BatchStatusReadyToMerge, BatchStatusCompleted, BatchStatusFailed},
	BatchStatusReadyToMerge: {BatchStatusCompleted, BatchStatusFailed},
}

// IsTerminal reports whether no further transition is allowed.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// CanTransitionTo reports whether s -> next is a legal move. Staying in
// ready_to_merge is allowed so partial commits can run more than once.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	if s == next {
		return s == BatchStatusReadyToMerge || s == BatchStatusProcessing
	}
	for _, allowed := range batchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

var batchStatuses = []BatchStatus{
	BatchStatusProcessing, BatchStatusReadyToMerge, BatchStatusCompleted, BatchStatusFailed,
}

// Predecessors lists the statuses a batch may be in when it moves to s.
func (s BatchStatus) Predecessors() []BatchStatus {
	var out []BatchStatus
	for _, from := range batchStatuses {
		if from.CanTransitionTo(s) {
			out = append(out, from)
		}
	}
	return out
}

// ImportBatch is one run of an uploaded file through the pipeline
type ImportBatch struct {
	ID               string                        `db:"id" json:"id"`
	SourceName       string                        `db:"source_name" json:"source_name"`
	SourceType       string                        `db:"source_type" json:"source_type"`
	EntityType       EntityType                    `db:"entity_type" json:"entity_type"`
	FileName         string                        `db:"file_name" json:"file_name"`
	TotalRecords     int                           `db:"total_records" json:"total_records"`
	ProcessedRecords int                           `db:"processed_records" json:"processed_records"`
	ValidRecords     int                           `db:"valid_records" json:"valid_records"`
	InvalidRecords   int                           `db:"invalid_records" json:"invalid_records"`
	MergedRecords    int                           `db:"merged_records" json:"merged_records"`
	Status           BatchStatus                   `db:"status" json:"status"`
	ErrorMessage     *string                       `db:"error_message" json:"error_message,omitempty"`
	Metadata         database.JSONB[BatchMetadata] `db:"metadata" json:"metadata"`
	CreatedAt        time.Time                     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time                     `db:"updated_at" json:"updated_at"`
	CompletedAt      *time.Time                    `db:"completed_at" json:"completed_at,omitempty"`
}

// BatchMetadata is the free-form part of a batch, stored as jsonb
type BatchMetadata struct {
	RemovedColumns   []string          `json:"removed_columns,omitempty"`
	SanitizedColumns []string          `json:"sanitized_columns,omitempty"`
	IgnoredColumns   []string          `json:"ignored_columns,omitempty"`
	ColumnMapping    map[string]string `json:"column_mapping,omitempty"`
	UpdateThreshold  float64           `json:"update_threshold,omitempty"`
	ReviewThreshold  float64           `json:"review_threshold,omitempty"`
	RecoveredBy      string            `json:"recovered_by,omitempty"`
}

// BatchFilter narrows batch listings
type BatchFilter struct {
	Status        BatchStatus
	UpdatedBefore *time.Time
	Limit         int
	Offset        int
}
