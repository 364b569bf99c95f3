package importbatch

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

const table = "import_batch"

var columns = []string{
	"id", "source_name", "source_type", "entity_type", "file_name",
	"total_records", "processed_records", "valid_records", "invalid_records", "merged_records",
	"status", "error_message", "metadata", "created_at", "updated_at", "completed_at",
}

// Repository handles import batch persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new import batch repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new batch and fills in its timestamps.
func (r *Repository) Create(ctx context.Context, batch *models.ImportBatch) error {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.Create")
	defer span.End()

	cols := &database.Columns{}
	cols.Add("id", batch.ID).
		Add("source_name", batch.SourceName).
		Add("source_type", batch.SourceType).
		Add("entity_type", batch.EntityType).
		Add("file_name", batch.FileName).
		Add("total_records", batch.TotalRecords).
		Add("processed_records", batch.ProcessedRecords).
		Add("valid_records", batch.ValidRecords).
		Add("invalid_records", batch.InvalidRecords).
		Add("merged_records", batch.MergedRecords).
		Add("status", batch.Status).
		Add("error_message", batch.ErrorMessage).
		Add("metadata", batch.Metadata)
	ib := cols.Insert(table)
	ib.SQL("RETURNING created_at, updated_at")

	query, args := ib.Build()
	if err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&batch.CreatedAt, &batch.UpdatedAt); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batch.ID).Error("Failed to create import batch")
		return importerror.FromDB("create import batch", err)
	}
	return nil
}

// UpdateProgress writes the counters, status and metadata of batch. The write
// only happens while the stored status may move to batch.Status; otherwise it
// fails with a 409 TransitionError.
func (r *Repository) UpdateProgress(ctx context.Context, batch *models.ImportBatch) error {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.UpdateProgress")
	defer span.End()

	cols := &database.Columns{}
	cols.Add("processed_records", batch.ProcessedRecords).
		Add("valid_records", batch.ValidRecords).
		Add("invalid_records", batch.InvalidRecords).
		Add("merged_records", batch.MergedRecords).
		Add("status", batch.Status).
		Add("error_message", batch.ErrorMessage).
		Add("metadata", batch.Metadata).
		Add("completed_at", batch.CompletedAt).
		Add("updated_at", sqlbuilder.Raw("NOW()"))
	predecessors := batch.Status.Predecessors()
	allowed := make([]any, len(predecessors))
	for i, s := range predecessors {
		allowed[i] = s
	}
	ub := cols.Update(table)
	ub.Where(ub.Equal("id", batch.ID), ub.In("status", allowed...))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&batch.UpdatedAt)
	if database.IsNotFound(err) {
		return r.refuseTransition(ctx, batch)
	}
	if err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_id": batch.ID,
			"status":   batch.Status,
		}).Error("Failed to update import batch progress")
		return importerror.FromDB("update import batch "+batch.ID, err)
	}
	return nil
}

// refuseTransition tells a missing batch (404) from one whose stored status
// does not allow the update (409).
func (r *Repository) refuseTransition(ctx context.Context, batch *models.ImportBatch) error {
	stored, err := r.GetBatch(ctx, batch.ID)
	if err != nil {
		return err
	}
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": batch.ID,
		"from":     stored.Status,
		"to":       batch.Status,
	}).Warn("Refused import batch transition")
	return &importerror.TransitionError{BatchID: batch.ID, From: string(stored.Status), To: string(batch.Status)}
}

func (r *Repository) GetBatch(ctx context.Context, id string) (*models.ImportBatch, error) {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.GetBatch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var batch models.ImportBatch
	if err := database.Conn(ctx, r.db).GetContext(ctx, &batch, query, args...); err != nil {
		if !database.IsNotFound(err) {
			tracing.RecordError(span, err)
			r.logger.WithContext(ctx).WithError(err).WithField("batch_id", id).Error("Failed to get import batch")
		}
		return nil, importerror.FromDB("import batch "+id, err)
	}
	return &batch, nil
}

// ListBatches returns the newest batches first.
func (r *Repository) ListBatches(ctx context.Context, filter models.BatchFilter) ([]*models.ImportBatch, error) {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.ListBatches")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	var where []string
	if filter.Status != "" {
		where = append(where, sb.Equal("status", filter.Status))
	}
	if filter.UpdatedBefore != nil {
		where = append(where, sb.LessThan("updated_at", *filter.UpdatedBefore))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("created_at DESC", "id")
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		sb.Offset(filter.Offset)
	}

	query, args := sb.Build()
	var batches []*models.ImportBatch
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &batches, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("status", filter.Status).Error("Failed to list import batches")
		return nil, importerror.FromDB("list import batches", err)
	}
	return batches, nil
}

// DeleteBatch removes the batch. Its staging rows go with it (ON DELETE CASCADE).
func (r *Repository) DeleteBatch(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "importbatch.Repository.DeleteBatch")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom(table)
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", id).Error("Failed to delete import batch")
		return importerror.FromDB("delete import batch "+id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return importerror.FromDB("import batch "+id, sql.ErrNoRows)
	}
	return nil
}
