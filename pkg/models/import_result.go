package models

// RecordError is one row-level problem reported back to the caller
type RecordError struct {
	RowNumber int      `json:"row_number"`
	StagingID string   `json:"staging_id,omitempty"`
	Kind      string   `json:"kind"`
	Messages  []string `json:"messages"`
}

// ImportResult summarizes an import or commit run. It is returned even when the
// batch failed, populated as far as the run got.
type ImportResult struct {
	BatchID        string        `json:"batch_id,omitempty"`
	EntityType     EntityType    `json:"entity_type"`
	Status         BatchStatus   `json:"status,omitempty"`
	Total          int           `json:"total"`
	Valid          int           `json:"valid"`
	Invalid        int           `json:"invalid"`
	Merged         int           `json:"merged"`
	Skipped        int           `json:"skipped"`
	ManualReview   int           `json:"manual_review"`
	Failed         int           `json:"failed"`
	Errors         []RecordError `json:"errors"`
	RemovedColumns []string      `json:"removed_columns,omitempty"`
	IgnoredColumns []string      `json:"ignored_columns,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
}

func (r *ImportResult) AddError(rowNumber int, stagingID string, kind string, messages ...string) {
	r.Errors = append(r.Errors, RecordError{
		RowNumber: rowNumber,
		StagingID: stagingID,
		Kind:      kind,
		Messages:  messages,
	})
}

// Tally recounts decision buckets from the staged records of the batch.
func (r *ImportResult) Tally(records []*StagingRecord) {
	r.Valid, r.Invalid, r.Merged, r.Skipped, r.ManualReview = 0, 0, 0, 0, 0
	for _, rec := range records {
		switch rec.ValidationStatus {
		case ValidationStatusInvalid:
			r.Invalid++
			continue
		case ValidationStatusMerged:
			r.Valid++
			r.Merged++
			continue
		case ValidationStatusValid:
			r.Valid++
		}
		switch rec.Decision() {
		case MergeDecisionSkip:
			r.Skipped++
		case MergeDecisionManualReview:
			r.ManualReview++
		}
	}
}
