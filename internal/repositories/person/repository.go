package person

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

const table = "person"

var columns = []string{
	"id", "first_name", "last_name", "full_name", "linkedin_url", "twitter_url",
	"company_domain", "tags", "created_at", "updated_at",
}

// Repository handles person persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new person repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) one(ctx context.Context, op string, sb *sqlbuilder.SelectBuilder) (*models.Person, error) {
	query, args := sb.Build()
	var p models.Person
	if err := database.Conn(ctx, r.db).GetContext(ctx, &p, query, args...); err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s", op)
		return nil, importerror.FromDB(op, err)
	}
	return &p, nil
}

// FindPersonByLinkedIn returns the person with the profile URL, or nil.
func (r *Repository) FindPersonByLinkedIn(ctx context.Context, linkedInURL string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindPersonByLinkedIn")
	defer span.End()

	if strings.TrimSpace(linkedInURL) == "" {
		return nil, nil
	}
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("LOWER(linkedin_url)", strings.ToLower(linkedInURL)))
	sb.Limit(1)
	return r.one(ctx, "find person by linkedin url", sb)
}

// FindPersonCandidates returns people whose full name is trigram-similar to
// fullName, plus people sharing the last name, best match first.
func (r *Repository) FindPersonCandidates(ctx context.Context, fullName string, lastName string, floor float64, limit int) ([]*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindPersonCandidates")
	defer span.End()

	name := normalizers.NormalizeName(fullName)
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	similar := fmt.Sprintf("similarity(LOWER(full_name), %s) >= %s", sb.Var(name), sb.Var(floor))
	if last := strings.ToLower(strings.TrimSpace(lastName)); last != "" {
		sb.Where(sb.Or(similar, sb.Equal("LOWER(last_name)", last)))
	} else {
		sb.Where(similar)
	}
	sb.OrderBy(fmt.Sprintf("similarity(LOWER(full_name), %s) DESC", sb.Var(name)), "id")
	sb.Limit(limit)

	query, args := sb.Build()
	var people []*models.Person
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &people, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("full_name", fullName).Error("Failed to find person candidates")
		return nil, importerror.FromDB("find person candidates", err)
	}
	return people, nil
}

func (r *Repository) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.GetPerson")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))
	p, err := r.one(ctx, "get person", sb)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, importerror.NotFound("person", id)
	}
	return p, nil
}

func values(p *models.Person) *database.Columns {
	cols := &database.Columns{}
	cols.Add("first_name", p.FirstName).
		Add("last_name", p.LastName).
		Add("full_name", p.FullName).
		Add("linkedin_url", p.LinkedInURL).
		Add("twitter_url", p.TwitterURL).
		Add("company_domain", p.CompanyDomain).
		Add("tags", p.Tags)
	return cols
}

func (r *Repository) CreatePerson(ctx context.Context, p *models.Person) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.CreatePerson")
	defer span.End()

	if p.Tags == nil {
		p.Tags = []string{}
	}
	cols := values(p)
	cols.Add("id", p.ID)
	ib := cols.Insert(table)
	ib.SQL("RETURNING created_at, updated_at")

	query, args := ib.Build()
	if err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("full_name", p.FullName).Error("Failed to create person")
		return importerror.FromDB("create person", err)
	}
	return nil
}

func (r *Repository) UpdatePerson(ctx context.Context, p *models.Person) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.UpdatePerson")
	defer span.End()

	if p.Tags == nil {
		p.Tags = []string{}
	}
	cols := values(p)
	cols.Add("updated_at", sqlbuilder.Raw("NOW()"))
	ub := cols.Update(table)
	ub.Where(ub.Equal("id", p.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	if err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&p.UpdatedAt); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("person_id", p.ID).Error("Failed to update person")
		return importerror.FromDB("update person "+p.ID, err)
	}
	return nil
}
