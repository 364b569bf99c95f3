package role

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

const table = "role"

var columns = []string{
	"id", "person_id", "organization_id", "job_title", "start_date", "end_date",
	"is_current", "is_executive", "source_id", "created_at", "updated_at",
}

// Repository handles role persistence. At most one current role exists per
// (person, organization), enforced by the role_one_current_key index.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new role repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) list(ctx context.Context, op string, sb *sqlbuilder.SelectBuilder) ([]*models.Role, error) {
	query, args := sb.Build()
	var roles []*models.Role
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &roles, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s", op)
		return nil, importerror.FromDB(op, err)
	}
	return roles, nil
}

// FindRole returns the role of the person at the organization starting on
// startDate, or nil.
func (r *Repository) FindRole(ctx context.Context, personID string, organizationID string, startDate time.Time) (*models.Role, error) {
	ctx, span := tracing.StartSpan(ctx, "role.Repository.FindRole")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("person_id", personID),
		sb.Equal("organization_id", organizationID),
		sb.Equal("start_date", startDate.UTC().Format(time.DateOnly)),
	)
	sb.Limit(1)
	roles, err := r.list(ctx, "find role", sb)
	if err != nil || len(roles) == 0 {
		return nil, err
	}
	return roles[0], nil
}

func (r *Repository) FindCurrentRoles(ctx context.Context, personID string, organizationID string) ([]*models.Role, error) {
	ctx, span := tracing.StartSpan(ctx, "role.Repository.FindCurrentRoles")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("person_id", personID),
		sb.Equal("organization_id", organizationID),
		sb.Equal("is_current", true),
	)
	sb.OrderBy("start_date NULLS FIRST", "id")
	sb.SQL("FOR UPDATE")
	return r.list(ctx, "find current roles", sb)
}

func (r *Repository) GetRole(ctx context.Context, id string) (*models.Role, error) {
	ctx, span := tracing.StartSpan(ctx, "role.Repository.GetRole")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))
	roles, err := r.list(ctx, "get role", sb)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, importerror.NotFound("role", id)
	}
	return roles[0], nil
}

func values(role *models.Role) *database.Columns {
	cols := &database.Columns{}
	cols.Add("person_id", role.PersonID).
		Add("organization_id", role.OrganizationID).
		Add("job_title", role.JobTitle).
		Add("start_date", role.StartDate).
		Add("end_date", role.EndDate).
		Add("is_current", role.IsCurrent).
		Add("is_executive", role.IsExecutive).
		Add("source_id", role.SourceID)
	return cols
}

func (r *Repository) CreateRole(ctx context.Context, role *models.Role) error {
	ctx, span := tracing.StartSpan(ctx, "role.Repository.CreateRole")
	defer span.End()

	cols := values(role)
	cols.Add("id", role.ID)
	ib := cols.Insert(table)
	ib.SQL("RETURNING created_at, updated_at")

	query, args := ib.Build()
	if err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"person_id":       role.PersonID,
			"organization_id": role.OrganizationID,
		}).Error("Failed to create role")
		return importerror.FromDB("create role", err)
	}
	return nil
}

func (r *Repository) UpdateRole(ctx context.Context, role *models.Role) error {
	ctx, span := tracing.StartSpan(ctx, "role.Repository.UpdateRole")
	defer span.End()

	cols := values(role)
	cols.Add("updated_at", sqlbuilder.Raw("NOW()"))
	ub := cols.Update(table)
	ub.Where(ub.Equal("id", role.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	if err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&role.UpdatedAt); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("role_id", role.ID).Error("Failed to update role")
		return importerror.FromDB("update role "+role.ID, err)
	}
	return nil
}
