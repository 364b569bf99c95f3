package staging

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/normalizers"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1/2/06",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"2006-01",
	"2006",
}

// ParseDate accepts the date layouts commonly exported by spreadsheets and CRMs.
// The result is truncated to a UTC calendar date.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", value)
}

// ParseBool accepts the usual spreadsheet spellings of yes and no.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "t", "yes", "y", "1", "x":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	}
	return false, fmt.Errorf("cannot parse %q as yes/no", value)
}

func parseList(value string) pq.StringArray {
	var out pq.StringArray
	for _, part := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' || r == '|' }) {
		if p := normalizers.CollapseWhitespace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// fieldValues collects the normalized text of every mapped, non-empty column
// keyed by field name.
type fieldValues map[string]string

func (v fieldValues) str(name string) *string {
	s, ok := v[name]
	if !ok {
		return nil
	}
	return &s
}

// Decode turns one filtered row into a typed staging record draft.
// Values that cannot be parsed are left unset and reported in ParseErrors in
// field order.
func Decode(entityType models.EntityType, rowNumber int, row map[string]string, mapping map[string]string) *models.StagingRecord {
	rec := &models.StagingRecord{
		StagingMeta: models.StagingMeta{
			RowNumber:        rowNumber,
			ValidationStatus: models.ValidationStatusPending,
		},
		EntityType: entityType,
	}

	byField := make(map[string]string, len(mapping))
	for header, field := range mapping {
		if raw, ok := row[header]; ok {
			byField[field] = raw
		}
	}

	values := fieldValues{}
	dates := map[string]*time.Time{}
	bools := map[string]*bool{}
	var tags pq.StringArray
	for _, f := range entityFields[entityType] {
		raw, ok := byField[f.Name]
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		switch f.kind {
		case kindDate:
			t, err := ParseDate(raw)
			if err != nil {
				rec.ParseErrors = append(rec.ParseErrors, fmt.Sprintf("%s: %s", f.Name, err))
				continue
			}
			dates[f.Name] = &t
		case kindBool:
			b, err := ParseBool(raw)
			if err != nil {
				rec.ParseErrors = append(rec.ParseErrors, fmt.Sprintf("%s: %s", f.Name, err))
				continue
			}
			bools[f.Name] = &b
		case kindList:
			tags = parseList(raw)
		default:
			if f.Normalizer != "" {
				raw = normalizers.Apply(raw, f.Normalizer)
			}
			if raw != "" {
				values[f.Name] = raw
			}
		}
	}

	switch entityType {
	case models.EntityTypePerson:
		rec.Person = decodePerson(values, tags)
	case models.EntityTypeOrganization:
		rec.Organization = decodeOrganization(values)
	case models.EntityTypeRole:
		rec.Role = &models.RoleFields{
			PersonFullName:    values.str("person_full_name"),
			PersonLinkedInURL: values.str("person_linkedin_url"),
			OrganizationName:  values.str("organization_name"),
			JobTitle:          values.str("job_title"),
			StartDate:         dates["start_date"],
			EndDate:           dates["end_date"],
			IsExecutive:       bools["is_executive"],
			SourceName:        values.str("source_name"),
		}
	case models.EntityTypeNews:
		rec.News = &models.NewsFields{
			Title:            values.str("title"),
			URL:              values.str("url"),
			PublishedAt:      dates["published_at"],
			Summary:          values.str("summary"),
			Publisher:        values.str("publisher"),
			OrganizationName: values.str("organization_name"),
		}
	}
	return rec
}

// decodePerson completes the name parts: full_name from first and last, or
// first and last split out of full_name.
func decodePerson(values fieldValues, tags pq.StringArray) *models.PersonFields {
	p := &models.PersonFields{
		FirstName:     values.str("first_name"),
		LastName:      values.str("last_name"),
		FullName:      values.str("full_name"),
		LinkedInURL:   values.str("linkedin_url"),
		TwitterURL:    values.str("twitter_url"),
		CompanyDomain: values.str("company_domain"),
		Tags:          tags,
	}

	if p.FullName == nil && (p.FirstName != nil || p.LastName != nil) {
		full := normalizers.JoinName(deref(p.FirstName), deref(p.LastName))
		p.FullName = &full
	}
	if p.FullName != nil && (p.FirstName == nil || p.LastName == nil) {
		first, last := normalizers.SplitFullName(*p.FullName)
		if p.FirstName == nil && first != "" {
			p.FirstName = &first
		}
		if p.LastName == nil && last != "" {
			p.LastName = &last
		}
	}
	return p
}

func decodeOrganization(values fieldValues) *models.OrganizationFields {
	o := &models.OrganizationFields{
		Name:               values.str("name"),
		OrgType:            values.str("org_type"),
		Sport:              values.str("sport"),
		League:             values.str("league"),
		ParentName:         values.str("parent_name"),
		Website:            values.str("website"),
		CompanyEmailDomain: values.str("company_email_domain"),
		LinkedInURL:        values.str("linkedin_url"),
	}
	if o.OrgType != nil {
		if t, ok := models.CanonicalOrganizationType(*o.OrgType); ok {
			canonical := string(t)
			o.OrgType = &canonical
		}
	}
	return o
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
