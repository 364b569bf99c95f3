package importer

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/tinusleroux/crowdbiz-graph/pkg/metrics"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

const RecoveredMessage = "recovered: batch abandoned while processing"

type RecoverRequest struct {
	// BatchID recovers one batch. When empty every stale processing batch is recovered.
	BatchID string
	// OlderThan overrides how long a batch must have gone without progress.
	OlderThan time.Duration
	Operator  string
}

// Recover marks processing batches that stopped making progress as failed,
// so a crashed run does not hold a batch in processing forever.
func (s *Service) Recover(ctx context.Context, req RecoverRequest) ([]*models.ImportBatch, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.Recover")
	defer span.End()

	olderThan := req.OlderThan
	if olderThan <= 0 {
		olderThan = s.opts.StaleAfter
	}
	cutoff := s.now().Add(-olderThan)

	var stale []*models.ImportBatch
	if req.BatchID != "" {
		batch, err := s.batches.GetBatch(ctx, req.BatchID)
		if err != nil {
			return nil, err
		}
		if batch.Status != models.BatchStatusProcessing {
			return nil, httperror.NewHTTPErrorf(http.StatusConflict,
				"batch %s is %s, only processing batches can be recovered", batch.ID, batch.Status)
		}
		if !batch.UpdatedAt.Before(cutoff) {
			return nil, httperror.NewHTTPErrorf(http.StatusConflict,
				"batch %s made progress less than %s ago", batch.ID, olderThan)
		}
		stale = append(stale, batch)
	} else {
		batches, err := s.batches.ListBatches(ctx, models.BatchFilter{
			Status:        models.BatchStatusProcessing,
			UpdatedBefore: &cutoff,
		})
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		stale = batches
	}

	recovered := make([]*models.ImportBatch, 0, len(stale))
	for _, batch := range stale {
		message := RecoveredMessage
		now := s.now().UTC()
		batch.Status = models.BatchStatusFailed
		batch.ErrorMessage = &message
		batch.CompletedAt = &now
		batch.Metadata.Data.RecoveredBy = req.Operator
		if err := s.batches.UpdateProgress(ctx, batch); err != nil {
			tracing.RecordError(span, err)
			return recovered, err
		}
		metrics.RecoveredBatchesTotal.Inc()
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"batch_id":   batch.ID,
			"updated_at": batch.UpdatedAt,
			"operator":   req.Operator,
		}).Warn("Recovered abandoned import batch")
		recovered = append(recovered, batch)
	}
	return recovered, nil
}
