package newsitem

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

const table = "news_item"

var columns = []string{
	"id", "title", "url", "published_at", "summary", "publisher", "organization_id", "created_at", "updated_at",
}

// Repository handles news item persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new news item repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) FindNewsByURL(ctx context.Context, url string) (*models.NewsItem, error) {
	ctx, span := tracing.StartSpan(ctx, "newsitem.Repository.FindNewsByURL")
	defer span.End()

	if strings.TrimSpace(url) == "" {
		return nil, nil
	}
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("LOWER(url)", strings.ToLower(url)))
	sb.Limit(1)

	query, args := sb.Build()
	var n models.NewsItem
	if err := database.Conn(ctx, r.db).GetContext(ctx, &n, query, args...); err != nil {
		if database.IsNotFound(err) {
			return nil, nil
		}
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("url", url).Error("Failed to find news item by url")
		return nil, importerror.FromDB("find news item by url", err)
	}
	return &n, nil
}

func (r *Repository) FindNewsCandidates(ctx context.Context, title string, floor float64, limit int) ([]*models.NewsItem, error) {
	ctx, span := tracing.StartSpan(ctx, "newsitem.Repository.FindNewsCandidates")
	defer span.End()

	normalized := normalizers.NormalizeJobTitle(title)
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(fmt.Sprintf("similarity(LOWER(title), %s) >= %s", sb.Var(normalized), sb.Var(floor)))
	sb.OrderBy(fmt.Sprintf("similarity(LOWER(title), %s) DESC", sb.Var(normalized)), "id")
	sb.Limit(limit)

	query, args := sb.Build()
	var items []*models.NewsItem
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &items, query, args...); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("title", title).Error("Failed to find news candidates")
		return nil, importerror.FromDB("find news candidates", err)
	}
	return items, nil
}

func (r *Repository) GetNews(ctx context.Context, id string) (*models.NewsItem, error) {
	ctx, span := tracing.StartSpan(ctx, "newsitem.Repository.GetNews")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var n models.NewsItem
	if err := database.Conn(ctx, r.db).GetContext(ctx, &n, query, args...); err != nil {
		if database.IsNotFound(err) {
			return nil, importerror.NotFound("news item", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("news_id", id).Error("Failed to get news item")
		return nil, importerror.FromDB("get news item", err)
	}
	return &n, nil
}

func values(n *models.NewsItem) *database.Columns {
	cols := &database.Columns{}
	cols.Add("title", n.Title).
		Add("url", n.URL).
		Add("published_at", n.PublishedAt).
		Add("summary", n.Summary).
		Add("publisher", n.Publisher).
		Add("organization_id", n.OrganizationID)
	return cols
}

func (r *Repository) CreateNews(ctx context.Context, n *models.NewsItem) error {
	ctx, span := tracing.StartSpan(ctx, "newsitem.Repository.CreateNews")
	defer span.End()

	cols := values(n)
	cols.Add("id", n.ID)
	ib := cols.Insert(table)
	ib.SQL("RETURNING created_at, updated_at")

	query, args := ib.Build()
	if err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&n.CreatedAt, &n.UpdatedAt); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("url", n.URL).Error("Failed to create news item")
		return importerror.FromDB("create news item", err)
	}
	return nil
}

func (r *Repository) UpdateNews(ctx context.Context, n *models.NewsItem) error {
	ctx, span := tracing.StartSpan(ctx, "newsitem.Repository.UpdateNews")
	defer span.End()

	cols := values(n)
	cols.Add("updated_at", sqlbuilder.Raw("NOW()"))
	ub := cols.Update(table)
	ub.Where(ub.Equal("id", n.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	if err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&n.UpdatedAt); err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("news_id", n.ID).Error("Failed to update news item")
		return importerror.FromDB("update news item "+n.ID, err)
	}
	return nil
}
