package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinusleroux/crowdbiz-graph/pkg/kafka"
	"github.com/tinusleroux/crowdbiz-graph/pkg/merging"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

type fakeWriter struct {
	events []*kafka.EntityEvent
}

func (w *fakeWriter) PublishEntityEvents(_ context.Context, events []*kafka.EntityEvent) error {
	w.events = append(w.events, events...)
	return nil
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name     string
		in       merging.Committed
		expected []string
	}{
		{
			name: "new organization",
			in: merging.Committed{
				EntityType:   models.EntityTypeOrganization,
				Decision:     models.MergeDecisionNew,
				ProductionID: "o-1",
				Organization: &models.Organization{ID: "o-1", Name: "Dallas Cowboys"},
			},
			expected: []string{"organization.created"},
		},
		{
			name: "updated person",
			in: merging.Committed{
				EntityType:   models.EntityTypePerson,
				Decision:     models.MergeDecisionUpdate,
				ProductionID: "p-1",
				Changed:      []string{"first_name"},
				Person:       &models.Person{ID: "p-1", FullName: "Jon Smith"},
			},
			expected: []string{"person.updated"},
		},
		{
			name: "new role closing a previous one",
			in: merging.Committed{
				EntityType:   models.EntityTypeRole,
				Decision:     models.MergeDecisionNew,
				ProductionID: "r-2",
				Role:         &models.Role{ID: "r-2", IsCurrent: true},
				ClosedRoles:  []*models.Role{{ID: "r-1"}},
			},
			expected: []string{"role.created", "role.closed"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := Build(tt.in)
			require.NoError(t, err)
			var types []string
			for _, e := range events {
				types = append(types, e.EventType)
			}
			assert.Equal(t, tt.expected, types)
			assert.Equal(t, tt.in.ProductionID, events[0].EntityID)
		})
	}
}

func TestPublisher_AfterCommit(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w)

	err := p.AfterCommit(context.Background(), merging.Committed{
		BatchID:      "b-1",
		StagingID:    "s-1",
		EntityType:   models.EntityTypeNews,
		Decision:     models.MergeDecisionNew,
		ProductionID: "n-1",
		News:         &models.NewsItem{ID: "n-1", Title: "Cowboys hire new CMO", URL: "https://example.com/a"},
	})
	require.NoError(t, err)
	require.Len(t, w.events, 1)

	e := w.events[0]
	assert.Equal(t, "news.created", e.EventType)
	assert.Equal(t, "b-1", e.BatchID)
	assert.Equal(t, "s-1", e.StagingID)

	var news models.NewsItem
	require.NoError(t, json.Unmarshal(e.Data, &news))
	assert.Equal(t, "Cowboys hire new CMO", news.Title)
}
