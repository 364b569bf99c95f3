package source

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

const table = "source"

// Repository handles source persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new source repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// EnsureSource returns the source with name, creating it when missing. Names
// are unique case-insensitively.
func (r *Repository) EnsureSource(ctx context.Context, name string, sourceType string) (*models.Source, error) {
	ctx, span := tracing.StartSpan(ctx, "source.Repository.EnsureSource")
	defer span.End()

	name = strings.TrimSpace(name)
	q := database.Conn(ctx, r.db)

	ib := database.NewInsertBuilder(table)
	ib.Cols("id", "name", "source_type")
	ib.Values(uuid.NewString(), name, sourceType)
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("source_name", name).Error("Failed to insert source")
		return nil, importerror.FromDB("ensure source", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "name", "source_type", "created_at")
	sb.From(table)
	sb.Where(sb.Equal("LOWER(name)", strings.ToLower(name)))

	query, args = sb.Build()
	var src models.Source
	if err := q.GetContext(ctx, &src, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("source_name", name).Error("Failed to load source")
		return nil, importerror.FromDB("ensure source", err)
	}
	return &src, nil
}
