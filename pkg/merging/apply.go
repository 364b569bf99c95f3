package merging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinusleroux/crowdbiz-graph/pkg/departments"
	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

// apply writes one record and returns what was written. It runs inside the
// record's transaction.
func (e *Executor) apply(ctx context.Context, batch *models.ImportBatch, rec *models.StagingRecord, written map[string]string) (Committed, error) {
	c := Committed{
		BatchID:    batch.ID,
		StagingID:  rec.ID,
		EntityType: rec.EntityType,
		Decision:   rec.Decision(),
	}

	targetID := ""
	switch rec.Decision() {
	case models.MergeDecisionNew:
	case models.MergeDecisionUpdate:
		id, err := e.target(ctx, rec, written)
		if err != nil {
			return c, err
		}
		targetID = id
	default:
		return c, fmt.Errorf("record with decision %q cannot be committed", rec.Decision())
	}

	var err error
	switch rec.EntityType {
	case models.EntityTypePerson:
		err = e.applyPerson(ctx, rec, targetID, &c)
	case models.EntityTypeOrganization:
		err = e.applyOrganization(ctx, rec, targetID, &c)
	case models.EntityTypeRole:
		err = e.applyRole(ctx, batch, rec, targetID, &c)
	case models.EntityTypeNews:
		err = e.applyNews(ctx, rec, targetID, &c)
	default:
		err = fmt.Errorf("unknown entity type %q", rec.EntityType)
	}
	return c, err
}

// target finds the production row an update writes to. A duplicate follows
// the earlier record of the batch to the row it produced.
func (e *Executor) target(ctx context.Context, rec *models.StagingRecord, written map[string]string) (string, error) {
	if rec.DuplicateOfID != nil {
		if id, ok := written[*rec.DuplicateOfID]; ok {
			return id, nil
		}
		prev, err := e.stores.Staging.GetRecord(ctx, rec.EntityType, *rec.DuplicateOfID)
		if err != nil {
			return "", err
		}
		if prev.ProductionID == nil {
			return "", fmt.Errorf("record duplicates row %d, which has not been committed", prev.RowNumber)
		}
		return *prev.ProductionID, nil
	}
	if rec.MergeCandidateID == nil {
		return "", fmt.Errorf("update of row %d has no merge candidate", rec.RowNumber)
	}
	return *rec.MergeCandidateID, nil
}

func (e *Executor) applyPerson(ctx context.Context, rec *models.StagingRecord, targetID string, c *Committed) error {
	f := rec.Person
	if f == nil {
		return fmt.Errorf("row %d has no person fields", rec.RowNumber)
	}

	p := &models.Person{}
	if targetID != "" {
		existing, err := e.stores.Persons.GetPerson(ctx, targetID)
		if err != nil {
			return err
		}
		p = existing
	} else {
		p.ID = uuid.NewString()
	}

	var m FieldMerger
	m.MergePerson(p, f)
	if p.FullName == "" {
		p.FullName = strings.TrimSpace(deref(p.FirstName) + " " + deref(p.LastName))
	}

	if targetID == "" {
		if err := e.stores.Persons.CreatePerson(ctx, p); err != nil {
			return err
		}
	} else if len(m.Changed()) > 0 {
		if err := e.stores.Persons.UpdatePerson(ctx, p); err != nil {
			return err
		}
	}

	c.ProductionID = p.ID
	c.Person = p
	c.Changed = m.Changed()
	return nil
}

func (e *Executor) applyOrganization(ctx context.Context, rec *models.StagingRecord, targetID string, c *Committed) error {
	f := rec.Organization
	if f == nil {
		return fmt.Errorf("row %d has no organization fields", rec.RowNumber)
	}

	o := &models.Organization{}
	if targetID != "" {
		existing, err := e.stores.Organizations.GetOrganization(ctx, targetID)
		if err != nil {
			return err
		}
		o = existing
	} else {
		o.ID = uuid.NewString()
	}

	var m FieldMerger
	m.MergeOrganization(o, f)

	if parent := strings.TrimSpace(deref(f.ParentName)); parent != "" {
		p, err := e.stores.Organizations.FindOrganizationByName(ctx, parent)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("parent organization %q not found", parent)
		}
		if p.ID == o.ID {
			return fmt.Errorf("organization %q cannot be its own parent", o.Name)
		}
		m.optStr("parent_id", &o.ParentID, &p.ID)
	}

	if targetID == "" {
		if err := e.stores.Organizations.CreateOrganization(ctx, o); err != nil {
			return err
		}
	} else if len(m.Changed()) > 0 {
		if err := e.stores.Organizations.UpdateOrganization(ctx, o); err != nil {
			return err
		}
	}

	c.ProductionID = o.ID
	c.Organization = o
	c.Changed = m.Changed()
	return nil
}

func (e *Executor) applyRole(ctx context.Context, batch *models.ImportBatch, rec *models.StagingRecord, targetID string, c *Committed) error {
	f := rec.Role
	if f == nil {
		return fmt.Errorf("row %d has no role fields", rec.RowNumber)
	}

	var m FieldMerger
	var r *models.Role
	if targetID != "" {
		existing, err := e.stores.Roles.GetRole(ctx, targetID)
		if err != nil {
			return err
		}
		r = existing
		m.MergeRole(r, f)
	} else {
		personID, orgID, err := e.roleRefs(ctx, f)
		if err != nil {
			return err
		}
		r = &models.Role{
			ID:             uuid.NewString(),
			PersonID:       personID,
			OrganizationID: orgID,
		}
		m.MergeRole(r, f)
	}

	department := ""
	if e.departments != nil && r.JobTitle != "" {
		d, err := e.departments.Ensure(ctx, r.JobTitle)
		if err != nil {
			return err
		}
		department = d
	}
	if f.IsExecutive == nil && targetID == "" {
		r.IsExecutive = department == departments.ExecutiveLeadership
	}

	if e.stores.Sources != nil {
		name := strings.TrimSpace(deref(f.SourceName))
		if name == "" {
			name = batch.SourceName
		}
		if name != "" {
			src, err := e.stores.Sources.EnsureSource(ctx, name, batch.SourceType)
			if err != nil {
				return err
			}
			m.optStr("source_id", &r.SourceID, &src.ID)
		}
	}

	if targetID == "" {
		if r.IsCurrent {
			closed, err := e.closeCurrentRoles(ctx, r)
			if err != nil {
				return err
			}
			c.ClosedRoles = closed
		}
		if err := e.stores.Roles.CreateRole(ctx, r); err != nil {
			return err
		}
	} else if len(m.Changed()) > 0 {
		if err := e.stores.Roles.UpdateRole(ctx, r); err != nil {
			return err
		}
	}

	c.ProductionID = r.ID
	c.Role = r
	c.Changed = m.Changed()
	return nil
}

// roleRefs uses the references stored during matching, resolving them again
// when the record was decided by an operator without them.
func (e *Executor) roleRefs(ctx context.Context, f *models.RoleFields) (string, string, error) {
	if f.PersonID != nil && f.OrganizationID != nil {
		return *f.PersonID, *f.OrganizationID, nil
	}
	if e.refs == nil {
		return "", "", fmt.Errorf("role references are unresolved")
	}
	refs, problems, err := e.refs.ResolveRoleRefs(ctx, f)
	if err != nil {
		return "", "", err
	}
	if len(problems) > 0 {
		return "", "", fmt.Errorf("role references are unresolved: %s", strings.Join(problems, "; "))
	}
	f.PersonID = &refs.PersonID
	f.OrganizationID = &refs.OrganizationID
	return refs.PersonID, refs.OrganizationID, nil
}

// closeCurrentRoles ends the open roles of the same person at the same
// organization so at most one stays current. Each closes on the new start
// date when that is later than its own start, otherwise today, and never
// before its own start.
func (e *Executor) closeCurrentRoles(ctx context.Context, next *models.Role) ([]*models.Role, error) {
	current, err := e.stores.Roles.FindCurrentRoles(ctx, next.PersonID, next.OrganizationID)
	if err != nil {
		return nil, err
	}

	today := truncateDay(e.now())
	closed := make([]*models.Role, 0, len(current))
	for _, old := range current {
		end := today
		if next.StartDate != nil && (old.StartDate == nil || next.StartDate.After(*old.StartDate)) {
			end = truncateDay(*next.StartDate)
		}
		if old.StartDate != nil && end.Before(*old.StartDate) {
			end = truncateDay(*old.StartDate)
		}
		old.EndDate = &end
		old.IsCurrent = false
		if err := e.stores.Roles.UpdateRole(ctx, old); err != nil {
			return nil, err
		}
		closed = append(closed, old)
	}
	return closed, nil
}

func (e *Executor) applyNews(ctx context.Context, rec *models.StagingRecord, targetID string, c *Committed) error {
	f := rec.News
	if f == nil {
		return fmt.Errorf("row %d has no news fields", rec.RowNumber)
	}

	n := &models.NewsItem{}
	if targetID != "" {
		existing, err := e.stores.News.GetNews(ctx, targetID)
		if err != nil {
			return err
		}
		n = existing
	} else {
		n.ID = uuid.NewString()
	}

	var m FieldMerger
	m.MergeNews(n, f)

	// An unknown organization only drops the link, the article is still kept.
	if name := strings.TrimSpace(deref(f.OrganizationName)); name != "" {
		org, err := e.stores.Organizations.FindOrganizationByName(ctx, name)
		if err != nil {
			return err
		}
		if org != nil {
			m.optStr("organization_id", &n.OrganizationID, &org.ID)
		}
	}

	if targetID == "" {
		if err := e.stores.News.CreateNews(ctx, n); err != nil {
			return err
		}
	} else if len(m.Changed()) > 0 {
		if err := e.stores.News.UpdateNews(ctx, n); err != nil {
			return err
		}
	}

	c.ProductionID = n.ID
	c.News = n
	c.Changed = m.Changed()
	return nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
