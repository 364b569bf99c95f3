package importer

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/tinusleroux/crowdbiz-graph/pkg/metrics"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/redis"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

func commitLockKey(batchID string) string {
	return "commit:" + batchID
}

// Commit runs the merge executor again over a batch waiting on review,
// picking up the records operators have decided since the last run.
func (s *Service) Commit(ctx context.Context, batchID string) (*models.ImportResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.Commit")
	defer span.End()

	var result *models.ImportResult
	err := s.locker.WithLock(ctx, commitLockKey(batchID), s.opts.LockTTL, func(ctx context.Context) error {
		batch, err := s.batches.GetBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != models.BatchStatusReadyToMerge {
			return httperror.NewHTTPErrorf(http.StatusConflict,
				"batch %s is %s, only ready_to_merge batches can be committed", batch.ID, batch.Status)
		}

		result = &models.ImportResult{
			BatchID:    batch.ID,
			EntityType: batch.EntityType,
			Total:      batch.TotalRecords,
			Errors:     []models.RecordError{},
		}
		summary, cerr := s.executor.Commit(ctx, batch)
		applySummary(result, summary)
		result.Status = batch.Status
		metrics.RecordRecords(string(batch.EntityType), "failed", summary.Failed)
		metrics.RecordImport(string(batch.EntityType), string(batch.Status))

		records, err := s.records.ListRecords(ctx, batch.ID, batch.EntityType, models.StagingFilter{})
		if err == nil {
			merged := result.Merged
			result.Tally(records)
			metrics.RecordRecords(string(batch.EntityType), "merged", merged)
		}
		if cerr != nil {
			result.ErrorMessage = cerr.Error()
			return cerr
		}
		return nil
	})
	if errors.Is(err, redis.ErrLockNotAcquired) || errors.Is(err, ErrBatchLocked) {
		err = httperror.NewHTTPErrorf(http.StatusConflict, "batch %s is already being committed", batchID)
	}
	if errors.Is(err, redis.ErrLockLost) {
		err = httperror.NewHTTPErrorf(http.StatusConflict, "commit of batch %s lost its lock, retry the commit", batchID)
	}
	if err != nil {
		tracing.RecordError(span, err)
	}
	return result, err
}
