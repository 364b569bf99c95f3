// Package importer runs uploads through the pipeline: load, validate, resolve
// and commit, and exposes the operator actions on staged batches.
package importer

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/matching"
	"github.com/tinusleroux/crowdbiz-graph/pkg/merging"
	"github.com/tinusleroux/crowdbiz-graph/pkg/metrics"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/staging"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
	"github.com/tinusleroux/crowdbiz-graph/pkg/validation"
)

type BatchStore interface {
	staging.BatchCreator
	UpdateProgress(ctx context.Context, batch *models.ImportBatch) error
	GetBatch(ctx context.Context, id string) (*models.ImportBatch, error)
	ListBatches(ctx context.Context, filter models.BatchFilter) ([]*models.ImportBatch, error)
	DeleteBatch(ctx context.Context, id string) error
}

type RecordStore interface {
	InsertRecords(ctx context.Context, records []*models.StagingRecord) error
	SaveResolution(ctx context.Context, rec *models.StagingRecord) error
	GetRecord(ctx context.Context, entityType models.EntityType, id string) (*models.StagingRecord, error)
	ListRecords(ctx context.Context, batchID string, entityType models.EntityType, filter models.StagingFilter) ([]*models.StagingRecord, error)
}

type Options struct {
	// LockTTL is the lease on the batch lock. Lockers that expire keys renew it
	// while the run is alive.
	LockTTL time.Duration
	// StaleAfter is how long a processing batch may go without progress
	// before recovery treats it as abandoned.
	StaleAfter time.Duration
}

func DefaultOptions() Options {
	return Options{LockTTL: 10 * time.Minute, StaleAfter: 30 * time.Minute}
}

type Service struct {
	logger    ectologger.Logger
	loader    *staging.Loader
	validator *validation.Validator
	resolver  *matching.Resolver
	executor  *merging.Executor
	batches   BatchStore
	records   RecordStore
	locker    Locker
	opts      Options
	now       func() time.Time
}

func NewService(
	logger ectologger.Logger,
	loader *staging.Loader,
	validator *validation.Validator,
	resolver *matching.Resolver,
	executor *merging.Executor,
	batches BatchStore,
	records RecordStore,
	locker Locker,
	opts Options,
) *Service {
	if locker == nil {
		locker = NewLocalLocker()
	}
	defaults := DefaultOptions()
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaults.LockTTL
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaults.StaleAfter
	}
	return &Service{
		logger:    logger,
		loader:    loader,
		validator: validator,
		resolver:  resolver,
		executor:  executor,
		batches:   batches,
		records:   records,
		locker:    locker,
		opts:      opts,
		now:       time.Now,
	}
}

type ImportRequest struct {
	EntityType models.EntityType
	SourceName string
	FileName   string
	Body       io.Reader
	// Mapping overrides the detected column mapping, header -> field.
	Mapping map[string]string
}

// Import stages the upload in a new batch, validates and resolves every
// record and commits what can be committed without review. The result is
// returned even when the run fails; a malformed upload yields a result with
// no batch.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*models.ImportResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.Import")
	defer span.End()

	result := &models.ImportResult{EntityType: req.EntityType, Errors: []models.RecordError{}}
	entity := string(req.EntityType)

	started := time.Now()
	loaded, err := s.loader.Load(ctx, staging.LoadRequest{
		SourceName: req.SourceName,
		FileName:   req.FileName,
		EntityType: req.EntityType,
		Body:       req.Body,
		Mapping:    req.Mapping,
	})
	if err != nil {
		tracing.RecordError(span, err)
		result.ErrorMessage = err.Error()
		metrics.RecordImport(entity, "rejected")
		return result, err
	}
	metrics.RecordStage(entity, "load", time.Since(started).Seconds())

	batch := loaded.Batch
	records := loaded.Records
	result.BatchID = batch.ID
	result.Total = len(records)
	result.RemovedColumns = loaded.Report.RemovedColumns
	result.IgnoredColumns = loaded.Report.IgnoredColumns

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":    batch.ID,
		"entity_type": batch.EntityType,
	})

	started = time.Now()
	valid, invalid := s.validator.ValidateBatch(records)
	batch.ProcessedRecords = len(records)
	batch.ValidRecords = valid
	batch.InvalidRecords = invalid
	cfg := s.resolver.Config()
	batch.Metadata.Data.UpdateThreshold = cfg.UpdateThreshold
	batch.Metadata.Data.ReviewThreshold = cfg.ReviewThreshold
	for _, rec := range records {
		if rec.ValidationStatus == models.ValidationStatusInvalid {
			result.AddError(rec.RowNumber, rec.ID, string(importerror.KindValidation), rec.ValidationErrors...)
		}
	}
	metrics.RecordStage(entity, "validate", time.Since(started).Seconds())
	metrics.RecordRecords(entity, "invalid", invalid)

	if err := s.records.InsertRecords(ctx, records); err != nil {
		log.WithError(err).Error("Failed to stage records")
		return s.fail(ctx, batch, result, err)
	}
	if err := s.batches.UpdateProgress(ctx, batch); err != nil {
		log.WithError(err).Error("Failed to update batch progress")
		return s.fail(ctx, batch, result, err)
	}

	started = time.Now()
	if _, err := s.resolver.Resolve(ctx, batch, records); err != nil {
		log.WithError(err).Error("Failed to resolve merge candidates")
		return s.fail(ctx, batch, result, err)
	}
	metrics.RecordStage(entity, "resolve", time.Since(started).Seconds())
	result.Tally(records)

	started = time.Now()
	summary, err := s.executor.Commit(ctx, batch)
	metrics.RecordStage(entity, "commit", time.Since(started).Seconds())
	applySummary(result, summary)
	result.Status = batch.Status
	metrics.RecordRecords(entity, "merged", summary.Merged)
	metrics.RecordRecords(entity, "failed", summary.Failed)
	metrics.RecordImport(entity, string(batch.Status))
	if err != nil {
		tracing.RecordError(span, err)
		result.ErrorMessage = err.Error()
		return result, err
	}

	log.WithFields(map[string]any{
		"status":        batch.Status,
		"valid":         result.Valid,
		"invalid":       result.Invalid,
		"merged":        result.Merged,
		"manual_review": result.ManualReview,
		"failed":        result.Failed,
	}).Info("Import finished")
	return result, nil
}

func (s *Service) Preview(ctx context.Context, entityType models.EntityType, fileName string, body io.Reader) (*staging.PreviewResult, error) {
	return s.loader.Preview(ctx, entityType, fileName, body)
}

// fail marks the batch failed after a fatal error. The batch update is best
// effort since the store is usually what failed.
func (s *Service) fail(ctx context.Context, batch *models.ImportBatch, result *models.ImportResult, cause error) (*models.ImportResult, error) {
	message := cause.Error()
	if batch.Status.CanTransitionTo(models.BatchStatusFailed) {
		batch.Status = models.BatchStatusFailed
		now := s.now().UTC()
		batch.CompletedAt = &now
	}
	batch.ErrorMessage = &message
	if err := s.batches.UpdateProgress(context.WithoutCancel(ctx), batch); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("batch_id", batch.ID).Warn("Failed to mark batch failed")
	}

	result.Status = batch.Status
	result.ErrorMessage = message
	metrics.RecordImport(string(batch.EntityType), string(batch.Status))
	return result, cause
}

func applySummary(result *models.ImportResult, summary *merging.CommitSummary) {
	if summary == nil {
		return
	}
	result.Merged = summary.Merged
	result.Failed = summary.Failed
	result.Errors = append(result.Errors, summary.Errors...)
}

func (s *Service) GetBatch(ctx context.Context, id string) (*models.ImportBatch, error) {
	return s.batches.GetBatch(ctx, id)
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func page(limit, offset int) (int, int, error) {
	if limit < 0 || offset < 0 {
		return 0, 0, httperror.NewHTTPError(http.StatusBadRequest, "limit and offset must not be negative")
	}
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return limit, offset, nil
}

func (s *Service) ListBatches(ctx context.Context, filter models.BatchFilter) ([]*models.ImportBatch, error) {
	limit, offset, err := page(filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	filter.Limit, filter.Offset = limit, offset
	batches, err := s.batches.ListBatches(ctx, filter)
	if err != nil {
		return nil, err
	}
	if batches == nil {
		batches = []*models.ImportBatch{}
	}
	return batches, nil
}

// ListRecords pages through the staged records of a batch.
func (s *Service) ListRecords(ctx context.Context, batchID string, filter models.StagingFilter) ([]*models.StagingRecord, error) {
	batch, err := s.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	limit, offset, err := page(filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	filter.Limit, filter.Offset = limit, offset
	records, err := s.records.ListRecords(ctx, batch.ID, batch.EntityType, filter)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*models.StagingRecord{}
	}
	return records, nil
}

// DeleteBatch removes a batch and its staged records. Production rows written
// by the batch stay.
func (s *Service) DeleteBatch(ctx context.Context, id string) error {
	batch, err := s.batches.GetBatch(ctx, id)
	if err != nil {
		return err
	}
	if batch.Status == models.BatchStatusProcessing {
		return httperror.NewHTTPErrorf(http.StatusConflict, "batch %s is still processing", id)
	}
	if err := s.batches.DeleteBatch(ctx, id); err != nil {
		return err
	}
	s.logger.WithContext(ctx).WithField("batch_id", id).Info("Deleted import batch")
	return nil
}
