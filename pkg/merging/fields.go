package merging

import (
	"time"

	"github.com/lib/pq"

	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

// FieldMerger copies staged values onto production rows. The staged value
// wins whenever it is set (last writer wins); unset staged fields leave the
// production value alone.
type FieldMerger struct {
	changed []string
}

// Changed lists the fields whose production value was replaced, in merge order.
func (m *FieldMerger) Changed() []string {
	return m.changed
}

func (m *FieldMerger) str(field string, dst *string, src *string) {
	if src == nil || *src == *dst {
		return
	}
	*dst = *src
	m.changed = append(m.changed, field)
}

func (m *FieldMerger) optStr(field string, dst **string, src *string) {
	if src == nil {
		return
	}
	if *dst != nil && **dst == *src {
		return
	}
	v := *src
	*dst = &v
	m.changed = append(m.changed, field)
}

func (m *FieldMerger) optTime(field string, dst **time.Time, src *time.Time) {
	if src == nil {
		return
	}
	if *dst != nil && (*dst).Equal(*src) {
		return
	}
	v := *src
	*dst = &v
	m.changed = append(m.changed, field)
}

func (m *FieldMerger) boolean(field string, dst *bool, src *bool) {
	if src == nil || *dst == *src {
		return
	}
	*dst = *src
	m.changed = append(m.changed, field)
}

func (m *FieldMerger) list(field string, dst *pq.StringArray, src pq.StringArray) {
	if len(src) == 0 || equalLists(*dst, src) {
		return
	}
	*dst = append(pq.StringArray{}, src...)
	m.changed = append(m.changed, field)
}

func equalLists(a, b pq.StringArray) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MergePerson applies staged person fields onto p.
func (m *FieldMerger) MergePerson(p *models.Person, f *models.PersonFields) {
	m.optStr("first_name", &p.FirstName, f.FirstName)
	m.optStr("last_name", &p.LastName, f.LastName)
	m.str("full_name", &p.FullName, f.FullName)
	m.optStr("linkedin_url", &p.LinkedInURL, f.LinkedInURL)
	m.optStr("twitter_url", &p.TwitterURL, f.TwitterURL)
	m.optStr("company_domain", &p.CompanyDomain, f.CompanyDomain)
	m.list("tags", &p.Tags, f.Tags)
}

// MergeOrganization applies staged organization fields onto o. The parent is
// resolved by the caller.
func (m *FieldMerger) MergeOrganization(o *models.Organization, f *models.OrganizationFields) {
	m.str("name", &o.Name, f.Name)
	m.optStr("org_type", &o.OrgType, f.OrgType)
	m.optStr("sport", &o.Sport, f.Sport)
	m.optStr("league", &o.League, f.League)
	m.optStr("website", &o.Website, f.Website)
	m.optStr("company_email_domain", &o.CompanyEmailDomain, f.CompanyEmailDomain)
	m.optStr("linkedin_url", &o.LinkedInURL, f.LinkedInURL)
}

// MergeRole applies staged role fields onto r. A role with an end date is no
// longer current.
func (m *FieldMerger) MergeRole(r *models.Role, f *models.RoleFields) {
	m.str("job_title", &r.JobTitle, f.JobTitle)
	m.optTime("start_date", &r.StartDate, f.StartDate)
	m.optTime("end_date", &r.EndDate, f.EndDate)
	m.boolean("is_executive", &r.IsExecutive, f.IsExecutive)
	current := r.EndDate == nil
	m.boolean("is_current", &r.IsCurrent, &current)
}

// MergeNews applies staged news fields onto n.
func (m *FieldMerger) MergeNews(n *models.NewsItem, f *models.NewsFields) {
	m.str("title", &n.Title, f.Title)
	m.str("url", &n.URL, f.URL)
	m.optTime("published_at", &n.PublishedAt, f.PublishedAt)
	m.optStr("summary", &n.Summary, f.Summary)
	m.optStr("publisher", &n.Publisher, f.Publisher)
}
