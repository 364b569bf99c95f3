package departments

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

const cacheKeyPrefix = "crowdbiz:department:"

// Repository stores the job title -> department lookup. FindDepartment
// returns (nil, nil) for an unknown title; InsertDepartment ignores a row
// that already exists.
type Repository interface {
	FindDepartment(ctx context.Context, jobTitle string) (*models.JobTitleDepartment, error)
	InsertDepartment(ctx context.Context, d *models.JobTitleDepartment) error
}

// Cache is an optional read-through cache in front of the repository
type Cache interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

type Service struct {
	logger ectologger.Logger
	repo   Repository
	cache  Cache
	ttl    time.Duration
}

// NewService creates the department service. cache may be nil.
func NewService(logger ectologger.Logger, repo Repository, cache Cache, ttl time.Duration) *Service {
	return &Service{
		logger: logger,
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
	}
}

// NormalizeTitle is the form a job title is cached and stored under:
// lower case with runs of whitespace collapsed.
func NormalizeTitle(jobTitle string) string {
	return strings.ToLower(strings.Join(strings.Fields(jobTitle), " "))
}

// Ensure returns the standardized department of jobTitle, classifying and
// storing it the first time the title is seen.
func (s *Service) Ensure(ctx context.Context, jobTitle string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "departments.Service.Ensure")
	defer span.End()

	title := NormalizeTitle(jobTitle)
	if title == "" {
		return Other, nil
	}
	log := s.logger.WithContext(ctx).WithField("job_title", title)

	key := cacheKeyPrefix + title
	if s.cache != nil {
		dept, ok, err := s.cache.Lookup(ctx, key)
		if err != nil {
			log.WithError(err).Warn("Department cache lookup failed")
		} else if ok {
			return dept, nil
		}
	}

	existing, err := s.repo.FindDepartment(ctx, title)
	if err != nil {
		tracing.RecordError(span, err)
		return "", err
	}
	if existing == nil {
		dept := Classify(title)
		if err := s.repo.InsertDepartment(ctx, &models.JobTitleDepartment{
			JobTitle:               title,
			StandardizedDepartment: dept,
		}); err != nil {
			tracing.RecordError(span, err)
			return "", err
		}
		log.WithField("department", dept).Debug("Classified new job title")
		// Cached on the next lookup, once the row is known to be committed.
		return dept, nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, existing.StandardizedDepartment, s.ttl); err != nil {
			log.WithError(err).Warn("Failed to cache department")
		}
	}
	return existing.StandardizedDepartment, nil
}
