// Package staging persists staged import records. Each entity type has its own
// staging table sharing the bookkeeping columns of models.StagingMeta.
package staging

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

// insertChunk bounds the rows per INSERT so the bind parameters stay under
// the postgres limit of 65535.
const insertChunk = 500

var metaColumns = []string{
	"id", "batch_id", "row_number", "validation_status", "validation_errors",
	"merge_candidate_id", "duplicate_of_id", "confidence_score", "merge_decision",
	"review_note", "reviewed_by", "production_id", "commit_error", "created_at", "updated_at",
}

var payloadColumns = map[models.EntityType][]string{
	models.EntityTypePerson: {
		"first_name", "last_name", "full_name", "linkedin_url", "twitter_url", "company_domain", "tags",
	},
	models.EntityTypeOrganization: {
		"name", "org_type", "sport", "league", "parent_name", "website", "company_email_domain", "linkedin_url",
	},
	models.EntityTypeRole: {
		"person_full_name", "person_linkedin_url", "organization_name", "job_title", "start_date", "end_date",
		"is_executive", "source_name", "person_id", "organization_id",
	},
	models.EntityTypeNews: {
		"title", "url", "published_at", "summary", "publisher", "organization_name",
	},
}

func selectColumns(entityType models.EntityType) []string {
	return append(append([]string{}, metaColumns...), payloadColumns[entityType]...)
}

func payloadValues(rec *models.StagingRecord) []any {
	switch rec.EntityType {
	case models.EntityTypePerson:
		f := rec.Person
		if f == nil {
			f = &models.PersonFields{}
		}
		return []any{f.FirstName, f.LastName, f.FullName, f.LinkedInURL, f.TwitterURL, f.CompanyDomain, f.Tags}
	case models.EntityTypeOrganization:
		f := rec.Organization
		if f == nil {
			f = &models.OrganizationFields{}
		}
		return []any{f.Name, f.OrgType, f.Sport, f.League, f.ParentName, f.Website, f.CompanyEmailDomain, f.LinkedInURL}
	case models.EntityTypeRole:
		f := rec.Role
		if f == nil {
			f = &models.RoleFields{}
		}
		return []any{f.PersonFullName, f.PersonLinkedInURL, f.OrganizationName, f.JobTitle, f.StartDate, f.EndDate,
			f.IsExecutive, f.SourceName, f.PersonID, f.OrganizationID}
	case models.EntityTypeNews:
		f := rec.News
		if f == nil {
			f = &models.NewsFields{}
		}
		return []any{f.Title, f.URL, f.PublishedAt, f.Summary, f.Publisher, f.OrganizationName}
	}
	return nil
}

type personRow struct {
	models.StagingMeta
	models.PersonFields
}

type organizationRow struct {
	models.StagingMeta
	models.OrganizationFields
}

type roleRow struct {
	models.StagingMeta
	models.RoleFields
}

type newsRow struct {
	models.StagingMeta
	models.NewsFields
}

// Repository handles staging record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new staging repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func stagingTable(entityType models.EntityType) (string, error) {
	table := entityType.StagingTable()
	if table == "" {
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown entity type %q", entityType)
	}
	return table, nil
}

// InsertRecords stages records of one batch, all of the same entity type.
func (r *Repository) InsertRecords(ctx context.Context, records []*models.StagingRecord) error {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.InsertRecords")
	defer span.End()

	if len(records) == 0 {
		return nil
	}
	entityType := records[0].EntityType
	table, err := stagingTable(entityType)
	if err != nil {
		return err
	}
	cols := append(append([]string{}, metaColumns[:len(metaColumns)-2]...), payloadColumns[entityType]...)

	for start := 0; start < len(records); start += insertChunk {
		end := min(start+insertChunk, len(records))
		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto(table)
		ib.Cols(cols...)
		for _, rec := range records[start:end] {
			if rec.ValidationErrors == nil {
				rec.ValidationErrors = []string{}
			}
			values := []any{
				rec.ID, rec.BatchID, rec.RowNumber, rec.ValidationStatus, rec.ValidationErrors,
				rec.MergeCandidateID, rec.DuplicateOfID, rec.ConfidenceScore, rec.MergeDecision,
				rec.ReviewNote, rec.ReviewedBy, rec.ProductionID, rec.CommitError,
			}
			ib.Values(append(values, payloadValues(rec)...)...)
		}

		query, args := ib.Build()
		if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
			tracing.RecordError(span, err)
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"batch_id":    records[0].BatchID,
				"entity_type": entityType,
				"rows":        end - start,
			}).Error("Failed to insert staging records")
			return importerror.FromDB("stage records", err)
		}
	}
	return nil
}

func (r *Repository) update(ctx context.Context, op string, rec *models.StagingRecord, cols *database.Columns) error {
	table, err := stagingTable(rec.EntityType)
	if err != nil {
		return err
	}
	cols.Add("updated_at", sqlbuilder.Raw("NOW()"))
	ub := cols.Update(table)
	ub.Where(ub.Equal("id", rec.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	if err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&rec.UpdatedAt); err != nil {
		if !database.IsNotFound(err) {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"staging_id":  rec.ID,
				"entity_type": rec.EntityType,
			}).Errorf("Failed to %s", op)
		}
		return importerror.FromDB(op+" "+rec.ID, err)
	}
	return nil
}

func roleRefs(rec *models.StagingRecord, cols *database.Columns) {
	if rec.EntityType == models.EntityTypeRole && rec.Role != nil {
		cols.Add("person_id", rec.Role.PersonID).Add("organization_id", rec.Role.OrganizationID)
	}
}

// SaveResolution stores the merge decision fields of rec.
func (r *Repository) SaveResolution(ctx context.Context, rec *models.StagingRecord) error {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.SaveResolution")
	defer span.End()

	cols := &database.Columns{}
	cols.Add("merge_candidate_id", rec.MergeCandidateID).
		Add("duplicate_of_id", rec.DuplicateOfID).
		Add("confidence_score", rec.ConfidenceScore).
		Add("merge_decision", rec.MergeDecision).
		Add("review_note", rec.ReviewNote).
		Add("reviewed_by", rec.ReviewedBy).
		Add("commit_error", rec.CommitError)
	roleRefs(rec, cols)
	return r.update(ctx, "save resolution", rec, cols)
}

func (r *Repository) MarkMerged(ctx context.Context, rec *models.StagingRecord, productionID string) error {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.MarkMerged")
	defer span.End()

	cols := &database.Columns{}
	cols.Add("validation_status", models.ValidationStatusMerged).
		Add("production_id", productionID).
		Add("commit_error", nil)
	roleRefs(rec, cols)
	return r.update(ctx, "mark record merged", rec, cols)
}

func (r *Repository) SetCommitError(ctx context.Context, rec *models.StagingRecord, message string) error {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.SetCommitError")
	defer span.End()

	cols := &database.Columns{}
	cols.Add("commit_error", message)
	if err := r.update(ctx, "record commit error", rec, cols); err != nil {
		return err
	}
	rec.CommitError = &message
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, entityType models.EntityType, id string) (*models.StagingRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.GetRecord")
	defer span.End()

	table, err := stagingTable(entityType)
	if err != nil {
		return nil, err
	}
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns(entityType)...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	records, err := r.query(ctx, entityType, sb)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "staging record %s not found", id)
	}
	return records[0], nil
}

// ListRecords returns the staged records of a batch in file order.
func (r *Repository) ListRecords(ctx context.Context, batchID string, entityType models.EntityType, filter models.StagingFilter) ([]*models.StagingRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.ListRecords")
	defer span.End()

	table, err := stagingTable(entityType)
	if err != nil {
		return nil, err
	}
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(selectColumns(entityType)...)
	sb.From(table)
	where := []string{sb.Equal("batch_id", batchID)}
	if filter.ValidationStatus != "" {
		where = append(where, sb.Equal("validation_status", filter.ValidationStatus))
	}
	if filter.MergeDecision != "" {
		where = append(where, sb.Equal("merge_decision", filter.MergeDecision))
	}
	if filter.Committable {
		where = append(where,
			sb.Equal("validation_status", models.ValidationStatusValid),
			sb.In("merge_decision", models.MergeDecisionNew, models.MergeDecisionUpdate),
		)
	}
	sb.Where(where...)
	sb.OrderBy("row_number")
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		sb.Offset(filter.Offset)
	}
	return r.query(ctx, entityType, sb)
}

func (r *Repository) ListCommittable(ctx context.Context, batchID string, entityType models.EntityType) ([]*models.StagingRecord, error) {
	return r.ListRecords(ctx, batchID, entityType, models.StagingFilter{Committable: true})
}

// CountAwaitingReview counts valid records that are undecided or flagged for review.
func (r *Repository) CountAwaitingReview(ctx context.Context, batchID string, entityType models.EntityType) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Repository.CountAwaitingReview")
	defer span.End()

	table, err := stagingTable(entityType)
	if err != nil {
		return 0, err
	}
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(table)
	sb.Where(
		sb.Equal("batch_id", batchID),
		sb.Equal("validation_status", models.ValidationStatusValid),
		sb.Or(sb.IsNull("merge_decision"), sb.Equal("merge_decision", models.MergeDecisionManualReview)),
	)

	query, args := sb.Build()
	var count int
	if err := database.Conn(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("batch_id", batchID).Error("Failed to count records awaiting review")
		return 0, importerror.FromDB("count records awaiting review", err)
	}
	return count, nil
}

func (r *Repository) query(ctx context.Context, entityType models.EntityType, sb *sqlbuilder.SelectBuilder) ([]*models.StagingRecord, error) {
	query, args := sb.Build()
	q := database.Conn(ctx, r.db)

	var (
		out []*models.StagingRecord
		err error
	)
	switch entityType {
	case models.EntityTypePerson:
		var rows []personRow
		if err = q.SelectContext(ctx, &rows, query, args...); err == nil {
			for i := range rows {
				out = append(out, &models.StagingRecord{StagingMeta: rows[i].StagingMeta, EntityType: entityType, Person: &rows[i].PersonFields})
			}
		}
	case models.EntityTypeOrganization:
		var rows []organizationRow
		if err = q.SelectContext(ctx, &rows, query, args...); err == nil {
			for i := range rows {
				out = append(out, &models.StagingRecord{StagingMeta: rows[i].StagingMeta, EntityType: entityType, Organization: &rows[i].OrganizationFields})
			}
		}
	case models.EntityTypeRole:
		var rows []roleRow
		if err = q.SelectContext(ctx, &rows, query, args...); err == nil {
			for i := range rows {
				out = append(out, &models.StagingRecord{StagingMeta: rows[i].StagingMeta, EntityType: entityType, Role: &rows[i].RoleFields})
			}
		}
	case models.EntityTypeNews:
		var rows []newsRow
		if err = q.SelectContext(ctx, &rows, query, args...); err == nil {
			for i := range rows {
				out = append(out, &models.StagingRecord{StagingMeta: rows[i].StagingMeta, EntityType: entityType, News: &rows[i].NewsFields})
			}
		}
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("entity_type", entityType).Error("Failed to query staging records")
		return nil, importerror.FromDB("query staging records", err)
	}
	return out, nil
}
