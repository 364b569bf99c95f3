package departments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"Vice President of Sales", SalesPartnerships},
		{"Director, Corporate Partnerships", SalesPartnerships},
		{"Sponsorship Coordinator", SalesPartnerships},
		{"Chief Marketing Officer", MarketingCommunications},
		{"PR Manager", MarketingCommunications},
		{"Chief Financial Officer", FinanceAdministration},
		{"HR Business Partner", FinanceAdministration},
		{"Head Groundskeeper", StadiumOperations},
		{"Director of Stadium Operations", StadiumOperations},
		{"IT Director", TechnologyAnalytics},
		{"Senior Data Analyst", TechnologyAnalytics},
		{"Guest Services Supervisor", FanExperienceEvents},
		{"Youth Programs Coordinator", FanExperienceEvents},
		{"Box Office Supervisor", TicketingOperations},
		{"Director of Ticketing", TicketingOperations},
		{"Television Producer", BroadcastingMedia},
		{"Play-by-Play Announcer", BroadcastingMedia},
		{"President", ExecutiveLeadership},
		{"CEO", ExecutiveLeadership},
		{"Chairman & Owner", ExecutiveLeadership},
		{"Head Coach", Other},
		{"", Other},
		{"   ", Other},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.title))
		})
	}

	t.Run("keywords match whole words only", func(t *testing.T) {
		// "pr" is inside "president" and "it" inside "kit"
		assert.Equal(t, ExecutiveLeadership, Classify("Vice President"))
		assert.Equal(t, Other, Classify("Kit Manager"))
	})
}

func TestDepartments(t *testing.T) {
	all := Departments()
	require.Len(t, all, 10)
	assert.Equal(t, SalesPartnerships, all[0])
	assert.Equal(t, ExecutiveLeadership, all[8])
	assert.Equal(t, Other, all[9])
}

type fakeRepo struct {
	rows      map[string]string
	inserts   int
	findErr   error
	insertErr error
}

func (f *fakeRepo) FindDepartment(_ context.Context, jobTitle string) (*models.JobTitleDepartment, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	dept, ok := f.rows[jobTitle]
	if !ok {
		return nil, nil
	}
	return &models.JobTitleDepartment{JobTitle: jobTitle, StandardizedDepartment: dept}, nil
}

func (f *fakeRepo) InsertDepartment(_ context.Context, d *models.JobTitleDepartment) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserts++
	f.rows[d.JobTitle] = d.StandardizedDepartment
	return nil
}

type fakeCache struct {
	values map[string]string
	err    error
}

func (f *fakeCache) Lookup(_ context.Context, key string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.values[key] = value.(string)
	return nil
}

func newTestService(repo Repository, cache Cache) *Service {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewService(logger, repo, cache, time.Hour)
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Finance", "finance"},
		{"  Head   Coach ", "head coach"},
		{"VP\tSales", "vp sales"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTitle(tt.in))
		})
	}
}

func TestService_Ensure(t *testing.T) {
	ctx := context.Background()

	t.Run("classifies and stores a new title", func(t *testing.T) {
		repo := &fakeRepo{rows: map[string]string{}}
		svc := newTestService(repo, nil)

		dept, err := svc.Ensure(ctx, "  Chief Executive Officer ")
		require.NoError(t, err)
		assert.Equal(t, ExecutiveLeadership, dept)
		assert.Equal(t, ExecutiveLeadership, repo.rows["chief executive officer"])
		assert.Equal(t, 1, repo.inserts)
	})

	t.Run("keeps a stored department over the classifier", func(t *testing.T) {
		repo := &fakeRepo{rows: map[string]string{"head coach": "Coaching"}}
		svc := newTestService(repo, nil)

		dept, err := svc.Ensure(ctx, "Head Coach")
		require.NoError(t, err)
		assert.Equal(t, "Coaching", dept)
		assert.Zero(t, repo.inserts)
	})

	t.Run("reads through the cache", func(t *testing.T) {
		repo := &fakeRepo{rows: map[string]string{"box office manager": TicketingOperations}}
		cache := &fakeCache{values: map[string]string{}}
		svc := newTestService(repo, cache)

		_, err := svc.Ensure(ctx, "Box Office Manager")
		require.NoError(t, err)
		assert.Equal(t, TicketingOperations, cache.values["crowdbiz:department:box office manager"])

		repo.findErr = errors.New("must not be called")
		dept, err := svc.Ensure(ctx, "Box Office Manager")
		require.NoError(t, err)
		assert.Equal(t, TicketingOperations, dept)
	})

	t.Run("falls back to the repository when the cache fails", func(t *testing.T) {
		repo := &fakeRepo{rows: map[string]string{"radio host": BroadcastingMedia}}
		svc := newTestService(repo, &fakeCache{err: errors.New("redis down")})

		dept, err := svc.Ensure(ctx, "Radio Host")
		require.NoError(t, err)
		assert.Equal(t, BroadcastingMedia, dept)
	})

	t.Run("blank title is Other", func(t *testing.T) {
		svc := newTestService(&fakeRepo{rows: map[string]string{}}, nil)
		dept, err := svc.Ensure(ctx, " ")
		require.NoError(t, err)
		assert.Equal(t, Other, dept)
	})

	t.Run("case and spacing variants share one row", func(t *testing.T) {
		repo := &fakeRepo{rows: map[string]string{}}
		cache := &fakeCache{values: map[string]string{}}
		svc := newTestService(repo, cache)

		first, err := svc.Ensure(ctx, "Finance")
		require.NoError(t, err)
		second, err := svc.Ensure(ctx, "finance")
		require.NoError(t, err)
		third, err := svc.Ensure(ctx, " FINANCE ")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, first, third)
		assert.Equal(t, 1, repo.inserts)
		assert.Equal(t, map[string]string{"finance": first}, repo.rows)
		assert.Equal(t, first, cache.values["crowdbiz:department:finance"])
	})

	t.Run("returns repository errors", func(t *testing.T) {
		repo := &fakeRepo{rows: map[string]string{}, insertErr: errors.New("insert failed")}
		svc := newTestService(repo, nil)
		_, err := svc.Ensure(ctx, "Sales Director")
		assert.EqualError(t, err, "insert failed")
	})
}
