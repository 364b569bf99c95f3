package matching

import (
	"strings"
	"time"

	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/normalizers"
)

// batchIndex remembers the records of the running batch that resolved to
// new, so later rows can match them before they reach production.
type batchIndex struct {
	keys    map[string]*models.StagingRecord
	ordered map[models.EntityType][]*models.StagingRecord
}

func newBatchIndex() *batchIndex {
	return &batchIndex{
		keys:    make(map[string]*models.StagingRecord),
		ordered: make(map[models.EntityType][]*models.StagingRecord),
	}
}

func (idx *batchIndex) add(rec *models.StagingRecord) {
	idx.ordered[rec.EntityType] = append(idx.ordered[rec.EntityType], rec)
	key := uniqueKey(rec)
	if key == "" {
		return
	}
	if _, ok := idx.keys[key]; !ok {
		idx.keys[key] = rec
	}
}

func (idx *batchIndex) get(key string) *models.StagingRecord {
	if key == "" {
		return nil
	}
	return idx.keys[key]
}

func (idx *batchIndex) pending(entityType models.EntityType) []*models.StagingRecord {
	return idx.ordered[entityType]
}

// uniqueKey is the in-batch form of the production unique constraint of the record.
func uniqueKey(rec *models.StagingRecord) string {
	switch rec.EntityType {
	case models.EntityTypePerson:
		if rec.Person != nil {
			return personKey(strings.ToLower(deref(rec.Person.LinkedInURL)))
		}
	case models.EntityTypeOrganization:
		if rec.Organization != nil {
			return organizationKey(deref(rec.Organization.Name))
		}
	case models.EntityTypeRole:
		if r := rec.Role; r != nil && r.PersonID != nil && r.OrganizationID != nil && r.StartDate != nil {
			return roleKey(RoleRefs{PersonID: *r.PersonID, OrganizationID: *r.OrganizationID}, *r.StartDate)
		}
	case models.EntityTypeNews:
		if rec.News != nil {
			return newsKey(deref(rec.News.URL))
		}
	}
	return ""
}

func personKey(linkedIn string) string {
	if linkedIn == "" {
		return ""
	}
	return "person:" + linkedIn
}

func organizationKey(name string) string {
	n := normalizers.NormalizeOrganizationName(name)
	if n == "" {
		return ""
	}
	return "organization:" + n
}

func roleKey(refs RoleRefs, start time.Time) string {
	return "role:" + refs.PersonID + ":" + refs.OrganizationID + ":" + start.Format("2006-01-02")
}

func newsKey(url string) string {
	if url == "" {
		return ""
	}
	return "news:" + strings.ToLower(strings.TrimSpace(url))
}
