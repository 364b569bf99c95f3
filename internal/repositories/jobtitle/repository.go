package jobtitle

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

const table = "job_title_department"

// Repository handles the job title to department mapping
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new job title repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindDepartment returns the mapping for jobTitle, or nil.
func (r *Repository) FindDepartment(ctx context.Context, jobTitle string) (*models.JobTitleDepartment, error) {
	ctx, span := tracing.StartSpan(ctx, "jobtitle.Repository.FindDepartment")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("job_title", "standardized_department", "created_at")
	sb.From(table)
	sb.Where(sb.Equal("job_title", jobTitle))

	query, args := sb.Build()
	var d models.JobTitleDepartment
	if err := database.Conn(ctx, r.db).GetContext(ctx, &d, query, args...); err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("job_title", jobTitle).Error("Failed to find department")
		return nil, importerror.FromDB("find department", err)
	}
	return &d, nil
}

// InsertDepartment records the mapping unless the job title already has one.
func (r *Repository) InsertDepartment(ctx context.Context, d *models.JobTitleDepartment) error {
	ctx, span := tracing.StartSpan(ctx, "jobtitle.Repository.InsertDepartment")
	defer span.End()

	ib := database.NewInsertBuilder(table)
	ib.Cols("job_title", "standardized_department")
	ib.Values(d.JobTitle, d.StandardizedDepartment)
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("job_title", d.JobTitle).Error("Failed to insert department")
		return importerror.FromDB("insert department", err)
	}
	return nil
}
