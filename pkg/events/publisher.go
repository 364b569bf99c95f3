// Package events turns committed import records into entity events.
package events

import (
	"context"
	"encoding/json"

	"github.com/tinusleroux/crowdbiz-graph/pkg/kafka"
	"github.com/tinusleroux/crowdbiz-graph/pkg/merging"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

type EventWriter interface {
	PublishEntityEvents(ctx context.Context, events []*kafka.EntityEvent) error
}

// Publisher emits one event per committed record, plus one per role the
// commit closed.
type Publisher struct {
	writer EventWriter
}

var _ merging.CommitHook = (*Publisher)(nil)

func NewPublisher(writer EventWriter) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) AfterCommit(ctx context.Context, c merging.Committed) error {
	events, err := Build(c)
	if err != nil {
		return err
	}
	return p.writer.PublishEntityEvents(ctx, events)
}

// Build returns the events describing c.
func Build(c merging.Committed) ([]*kafka.EntityEvent, error) {
	verb := "updated"
	if c.Decision == models.MergeDecisionNew {
		verb = "created"
	}

	var payload any
	switch c.EntityType {
	case models.EntityTypePerson:
		payload = c.Person
	case models.EntityTypeOrganization:
		payload = c.Organization
	case models.EntityTypeRole:
		payload = c.Role
	case models.EntityTypeNews:
		payload = c.News
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	events := []*kafka.EntityEvent{{
		EventType:     string(c.EntityType) + "." + verb,
		EntityID:      c.ProductionID,
		EntityType:    string(c.EntityType),
		BatchID:       c.BatchID,
		StagingID:     c.StagingID,
		ChangedFields: c.Changed,
		Data:          data,
	}}
	for _, closed := range c.ClosedRoles {
		data, err := json.Marshal(closed)
		if err != nil {
			return nil, err
		}
		events = append(events, &kafka.EntityEvent{
			EventType:     "role.closed",
			EntityID:      closed.ID,
			EntityType:    string(models.EntityTypeRole),
			BatchID:       c.BatchID,
			StagingID:     c.StagingID,
			ChangedFields: []string{"end_date", "is_current"},
			Data:          data,
		})
	}
	return events, nil
}
