package importer

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

// ReviewDecision is an operator's call on one staged record.
type ReviewDecision struct {
	BatchID  string               `json:"-"`
	RecordID string               `json:"-"`
	Decision models.MergeDecision `json:"decision" validate:"required,oneof=update new skip"`
	// MergeCandidateID picks the production row to update. Defaults to the
	// suggested candidate.
	MergeCandidateID *string `json:"merge_candidate_id,omitempty"`
	Operator         string  `json:"operator"`
}

// ResolveReview records an operator decision on a valid, unmerged record of a
// batch waiting on review. The record is written on the next commit run.
func (s *Service) ResolveReview(ctx context.Context, d ReviewDecision) (*models.StagingRecord, error) {
	ctx, span := tracing.StartBatchSpan(ctx, "importer.Service.ResolveReview", d.BatchID, "")
	defer span.End()

	batch, err := s.batches.GetBatch(ctx, d.BatchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != models.BatchStatusReadyToMerge {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict,
			"batch %s is %s, only ready_to_merge batches accept review decisions", batch.ID, batch.Status)
	}

	rec, err := s.records.GetRecord(ctx, batch.EntityType, d.RecordID)
	if err != nil {
		return nil, err
	}
	if rec.BatchID != batch.ID {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "staging record %s not found in batch %s", d.RecordID, batch.ID)
	}
	if rec.ValidationStatus != models.ValidationStatusValid {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "record %s is %s and cannot be reviewed", rec.ID, rec.ValidationStatus)
	}

	switch d.Decision {
	case models.MergeDecisionUpdate:
		candidate := d.MergeCandidateID
		if candidate != nil && strings.TrimSpace(*candidate) == "" {
			candidate = nil
		}
		if candidate != nil {
			rec.MergeCandidateID = candidate
			rec.DuplicateOfID = nil
		} else if rec.MergeCandidateID == nil && rec.DuplicateOfID == nil {
			return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "record %s has no merge candidate, pass merge_candidate_id", rec.ID)
		}
	case models.MergeDecisionNew:
		rec.MergeCandidateID = nil
		rec.DuplicateOfID = nil
	case models.MergeDecisionSkip:
	default:
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "decision must be one of update, new or skip, got %q", d.Decision)
	}

	decision := d.Decision
	rec.MergeDecision = &decision
	rec.CommitError = nil
	if op := strings.TrimSpace(d.Operator); op != "" {
		rec.ReviewedBy = &op
	}
	if err := s.records.SaveResolution(ctx, rec); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":   batch.ID,
		"staging_id": rec.ID,
		"decision":   decision,
		"operator":   d.Operator,
	}).Info("Recorded review decision")
	return rec, nil
}
