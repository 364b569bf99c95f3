package organization

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importerror"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/normalizers"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

const table = "organization"

var columns = []string{
	"id", "name", "org_type", "sport", "league", "parent_id", "website",
	"company_email_domain", "linkedin_url", "created_at", "updated_at",
}

// Repository handles organization persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new organization repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) one(ctx context.Context, op string, sb *sqlbuilder.SelectBuilder) (*models.Organization, error) {
	query, args := sb.Build()
	var o models.Organization
	if err := database.Conn(ctx, r.db).GetContext(ctx, &o, query, args...); err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s", op)
		return nil, importerror.FromDB(op, err)
	}
	return &o, nil
}

// FindOrganizationByName matches names case-insensitively, the same way the
// unique index does.
func (r *Repository) FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.FindOrganizationByName")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("LOWER(name)", strings.ToLower(name)))
	sb.Limit(1)
	return r.one(ctx, "find organization by name", sb)
}

func (r *Repository) FindOrganizationCandidates(ctx context.Context, name string, floor float64, limit int) ([]*models.Organization, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.FindOrganizationCandidates")
	defer span.End()

	normalized := normalizers.NormalizeOrganizationName(name)
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(fmt.Sprintf("similarity(LOWER(name), %s) >= %s", sb.Var(normalized), sb.Var(floor)))
	sb.OrderBy(fmt.Sprintf("similarity(LOWER(name), %s) DESC", sb.Var(normalized)), "id")
	sb.Limit(limit)

	query, args := sb.Build()
	var orgs []*models.Organization
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &orgs, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("name", name).Error("Failed to find organization candidates")
		return nil, importerror.FromDB("find organization candidates", err)
	}
	return orgs, nil
}

func (r *Repository) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.GetOrganization")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))
	o, err := r.one(ctx, "get organization", sb)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, importerror.NotFound("organization", id)
	}
	return o, nil
}

func values(o *models.Organization) *database.Columns {
	cols := &database.Columns{}
	cols.Add("name", o.Name).
		Add("org_type", o.OrgType).
		Add("sport", o.Sport).
		Add("league", o.League).
		Add("parent_id", o.ParentID).
		Add("website", o.Website).
		Add("company_email_domain", o.CompanyEmailDomain).
		Add("linkedin_url", o.LinkedInURL)
	return cols
}

func (r *Repository) CreateOrganization(ctx context.Context, o *models.Organization) error {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.CreateOrganization")
	defer span.End()

	cols := values(o)
	cols.Add("id", o.ID)
	ib := cols.Insert(table)
	ib.SQL("RETURNING created_at, updated_at")

	query, args := ib.Build()
	if err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("name", o.Name).Error("Failed to create organization")
		return importerror.FromDB("create organization", err)
	}
	return nil
}

func (r *Repository) UpdateOrganization(ctx context.Context, o *models.Organization) error {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.UpdateOrganization")
	defer span.End()

	cols := values(o)
	cols.Add("updated_at", sqlbuilder.Raw("NOW()"))
	ub := cols.Update(table)
	ub.Where(ub.Equal("id", o.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	if err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&o.UpdatedAt); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("organization_id", o.ID).Error("Failed to update organization")
		return importerror.FromDB("update organization "+o.ID, err)
	}
	return nil
}
