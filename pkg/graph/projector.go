package graph

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/tinusleroux/crowdbiz-graph/pkg/merging"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/tracing"
)

// Statement is one parameterized cypher query
type Statement struct {
	Cypher string
	Params map[string]any
}

type Writer interface {
	Write(ctx context.Context, statements ...Statement) error
}

// Projector mirrors committed rows into the graph: people and organizations
// as nodes, roles as WORKS_AT relationships, news as Article nodes that
// MENTION their organization.
type Projector struct {
	writer Writer
	logger ectologger.Logger
}

var _ merging.CommitHook = (*Projector)(nil)

func NewProjector(writer Writer, logger ectologger.Logger) *Projector {
	return &Projector{writer: writer, logger: logger}
}

func (p *Projector) AfterCommit(ctx context.Context, c merging.Committed) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.AfterCommit")
	defer span.End()

	statements := Statements(c)
	if len(statements) == 0 {
		return nil
	}
	if err := p.writer.Write(ctx, statements...); err != nil {
		tracing.RecordError(span, err)
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type":   c.EntityType,
			"production_id": c.ProductionID,
		}).Error("Failed to project record into graph")
		return err
	}
	return nil
}

const (
	upsertPerson = `
		MERGE (p:Person {id: $id})
		SET p += $props`

	upsertOrganization = `
		MERGE (o:Organization {id: $id})
		SET o += $props`

	linkParent = `
		MATCH (child:Organization {id: $id})
		MERGE (parent:Organization {id: $parent_id})
		MERGE (child)-[:PART_OF]->(parent)`

	upsertRole = `
		MERGE (p:Person {id: $person_id})
		MERGE (o:Organization {id: $organization_id})
		MERGE (p)-[r:WORKS_AT {id: $id}]->(o)
		SET r += $props`

	upsertArticle = `
		MERGE (a:Article {id: $id})
		SET a += $props`

	linkArticle = `
		MATCH (a:Article {id: $id})
		MERGE (o:Organization {id: $organization_id})
		MERGE (a)-[:MENTIONS]->(o)`
)

// Statements returns the graph writes for c.
func Statements(c merging.Committed) []Statement {
	var out []Statement
	switch c.EntityType {
	case models.EntityTypePerson:
		if p := c.Person; p != nil {
			out = append(out, Statement{Cypher: upsertPerson, Params: map[string]any{
				"id": p.ID,
				"props": map[string]any{
					"full_name":      p.FullName,
					"first_name":     str(p.FirstName),
					"last_name":      str(p.LastName),
					"linkedin_url":   str(p.LinkedInURL),
					"company_domain": str(p.CompanyDomain),
					"tags":           []string(p.Tags),
				},
			}})
		}
	case models.EntityTypeOrganization:
		if o := c.Organization; o != nil {
			out = append(out, Statement{Cypher: upsertOrganization, Params: map[string]any{
				"id": o.ID,
				"props": map[string]any{
					"name":     o.Name,
					"org_type": str(o.OrgType),
					"sport":    str(o.Sport),
					"league":   str(o.League),
					"website":  str(o.Website),
				},
			}})
			if o.ParentID != nil {
				out = append(out, Statement{Cypher: linkParent, Params: map[string]any{
					"id":        o.ID,
					"parent_id": *o.ParentID,
				}})
			}
		}
	case models.EntityTypeRole:
		if c.Role != nil {
			out = append(out, roleStatement(c.Role))
		}
		for _, closed := range c.ClosedRoles {
			out = append(out, roleStatement(closed))
		}
	case models.EntityTypeNews:
		if n := c.News; n != nil {
			out = append(out, Statement{Cypher: upsertArticle, Params: map[string]any{
				"id": n.ID,
				"props": map[string]any{
					"title":        n.Title,
					"url":          n.URL,
					"publisher":    str(n.Publisher),
					"published_at": day(n.PublishedAt),
				},
			}})
			if n.OrganizationID != nil {
				out = append(out, Statement{Cypher: linkArticle, Params: map[string]any{
					"id":              n.ID,
					"organization_id": *n.OrganizationID,
				}})
			}
		}
	}
	return out
}

func roleStatement(r *models.Role) Statement {
	return Statement{Cypher: upsertRole, Params: map[string]any{
		"id":              r.ID,
		"person_id":       r.PersonID,
		"organization_id": r.OrganizationID,
		"props": map[string]any{
			"job_title":    r.JobTitle,
			"start_date":   day(r.StartDate),
			"end_date":     day(r.EndDate),
			"is_current":   r.IsCurrent,
			"is_executive": r.IsExecutive,
		},
	}}
}

// str maps nil to a null property, which removes it from the node.
func str(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func day(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}
