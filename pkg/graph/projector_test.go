package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinusleroux/crowdbiz-graph/pkg/merging"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

type fakeWriter struct {
	statements []Statement
	err        error
}

func (w *fakeWriter) Write(_ context.Context, statements ...Statement) error {
	if w.err != nil {
		return w.err
	}
	w.statements = append(w.statements, statements...)
	return nil
}

func strPtr(s string) *string { return &s }

func TestStatements(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	t.Run("organization with parent", func(t *testing.T) {
		got := Statements(merging.Committed{
			EntityType:   models.EntityTypeOrganization,
			Organization: &models.Organization{ID: "o-2", Name: "Cowboys Stadium LLC", ParentID: strPtr("o-1")},
		})
		require.Len(t, got, 2)
		assert.Equal(t, upsertOrganization, got[0].Cypher)
		assert.Equal(t, "Cowboys Stadium LLC", got[0].Params["props"].(map[string]any)["name"])
		assert.Nil(t, got[0].Params["props"].(map[string]any)["sport"])
		assert.Equal(t, linkParent, got[1].Cypher)
		assert.Equal(t, "o-1", got[1].Params["parent_id"])
	})

	t.Run("role and the roles it closed", func(t *testing.T) {
		got := Statements(merging.Committed{
			EntityType: models.EntityTypeRole,
			Role:       &models.Role{ID: "r-2", PersonID: "p-1", OrganizationID: "o-1", StartDate: &start, IsCurrent: true},
			ClosedRoles: []*models.Role{
				{ID: "r-1", PersonID: "p-1", OrganizationID: "o-1", EndDate: &end},
			},
		})
		require.Len(t, got, 2)
		assert.Equal(t, "r-2", got[0].Params["id"])
		assert.Equal(t, "2024-01-01", got[0].Params["props"].(map[string]any)["start_date"])
		assert.Equal(t, true, got[0].Params["props"].(map[string]any)["is_current"])
		assert.Equal(t, "2023-12-31", got[1].Params["props"].(map[string]any)["end_date"])
		assert.Equal(t, false, got[1].Params["props"].(map[string]any)["is_current"])
	})

	t.Run("news without organization", func(t *testing.T) {
		got := Statements(merging.Committed{
			EntityType: models.EntityTypeNews,
			News:       &models.NewsItem{ID: "n-1", Title: "Draft recap", URL: "https://example.com/draft"},
		})
		require.Len(t, got, 1)
		assert.Equal(t, upsertArticle, got[0].Cypher)
	})

	t.Run("nothing to write", func(t *testing.T) {
		assert.Empty(t, Statements(merging.Committed{EntityType: models.EntityTypePerson}))
	})
}

func TestProjector_AfterCommit(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	c := merging.Committed{
		EntityType: models.EntityTypePerson,
		Person:     &models.Person{ID: "p-1", FullName: "Jerry Jones"},
	}

	w := &fakeWriter{}
	require.NoError(t, NewProjector(w, logger).AfterCommit(context.Background(), c))
	require.Len(t, w.statements, 1)
	assert.Equal(t, "p-1", w.statements[0].Params["id"])

	failing := &fakeWriter{err: errors.New("bolt: connection refused")}
	assert.Error(t, NewProjector(failing, logger).AfterCommit(context.Background(), c))
}

func TestConfig_URI(t *testing.T) {
	assert.Equal(t, "bolt://memgraph:7687", Config{Host: "memgraph", Port: 7687}.uri())
	assert.Equal(t, "bolt://[::1]:7687", Config{Host: "::1", Port: 7687}.uri())
}

func TestClient_WriteNothing(t *testing.T) {
	// no statements never opens a session
	c := &Client{}
	assert.NoError(t, c.Write(context.Background()))
}
