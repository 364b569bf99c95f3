package staging

import (
	"strings"

	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/normalizers"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindURL
	kindDate
	kindBool
	kindList
)

// Field describes one staged column of an entity type
type Field struct {
	Name       string
	Aliases    []string
	Normalizer string
	kind       fieldKind
}

// verbatim fields hold values the privacy sanitizer must not rewrite.
func (f Field) verbatim() bool {
	return f.kind == kindURL || f.kind == kindDate || f.kind == kindBool
}

var entityFields = map[models.EntityType][]Field{
	models.EntityTypePerson: {
		{Name: "first_name", Aliases: []string{"first_name", "firstname", "first", "fname", "given_name"}, Normalizer: "collapse"},
		{Name: "last_name", Aliases: []string{"last_name", "lastname", "last", "lname", "surname", "family_name"}, Normalizer: "collapse"},
		{Name: "full_name", Aliases: []string{"full_name", "fullname", "name", "contact_name", "person_name"}, Normalizer: "collapse"},
		{Name: "linkedin_url", Aliases: []string{"linkedin_url", "linkedin", "linkedin_profile", "profile_url"}, Normalizer: "nlinkedin", kind: kindURL},
		{Name: "twitter_url", Aliases: []string{"twitter_url", "twitter", "x_url", "twitter_profile"}, Normalizer: "nurl", kind: kindURL},
		{Name: "company_domain", Aliases: []string{"company_domain", "domain", "email_domain", "company_email_domain", "website_domain"}, Normalizer: "ndomain"},
		{Name: "tags", Aliases: []string{"tags", "tag", "labels", "keywords"}, kind: kindList},
	},
	models.EntityTypeOrganization: {
		{Name: "name", Aliases: []string{"name", "organization", "organization_name", "org_name", "company", "company_name", "team", "team_name"}, Normalizer: "collapse"},
		{Name: "org_type", Aliases: []string{"org_type", "organization_type", "type", "category"}, Normalizer: "collapse"},
		{Name: "sport", Aliases: []string{"sport"}, Normalizer: "collapse"},
		{Name: "league", Aliases: []string{"league", "league_name", "conference"}, Normalizer: "collapse"},
		{Name: "parent_name", Aliases: []string{"parent_name", "parent", "parent_organization", "parent_org", "parent_company"}, Normalizer: "collapse"},
		{Name: "website", Aliases: []string{"website", "website_url", "url", "homepage", "site"}, Normalizer: "nurl", kind: kindURL},
		{Name: "company_email_domain", Aliases: []string{"company_email_domain", "email_domain", "domain"}, Normalizer: "ndomain"},
		{Name: "linkedin_url", Aliases: []string{"linkedin_url", "linkedin", "linkedin_page", "linkedin_company"}, Normalizer: "nlinkedin", kind: kindURL},
	},
	models.EntityTypeRole: {
		{Name: "person_full_name", Aliases: []string{"person_full_name", "full_name", "person_name", "name", "contact_name", "person"}, Normalizer: "collapse"},
		{Name: "person_linkedin_url", Aliases: []string{"person_linkedin_url", "linkedin_url", "linkedin", "linkedin_profile", "profile_url"}, Normalizer: "nlinkedin", kind: kindURL},
		{Name: "organization_name", Aliases: []string{"organization_name", "organization", "company", "company_name", "employer", "org", "team", "team_name"}, Normalizer: "collapse"},
		{Name: "job_title", Aliases: []string{"job_title", "title", "position", "role", "job", "job_position"}, Normalizer: "collapse"},
		{Name: "start_date", Aliases: []string{"start_date", "start", "started", "from", "date_started", "hire_date"}, kind: kindDate},
		{Name: "end_date", Aliases: []string{"end_date", "end", "ended", "to", "date_ended", "until"}, kind: kindDate},
		{Name: "is_executive", Aliases: []string{"is_executive", "executive", "exec"}, kind: kindBool},
		{Name: "source_name", Aliases: []string{"source_name", "source", "data_source"}, Normalizer: "collapse"},
	},
	models.EntityTypeNews: {
		{Name: "title", Aliases: []string{"title", "headline", "article_title"}, Normalizer: "collapse"},
		{Name: "url", Aliases: []string{"url", "link", "article_url", "source_url"}, Normalizer: "nurl", kind: kindURL},
		{Name: "published_at", Aliases: []string{"published_at", "published", "publish_date", "date", "published_date"}, kind: kindDate},
		{Name: "summary", Aliases: []string{"summary", "description", "excerpt", "abstract"}, Normalizer: "trim"},
		{Name: "publisher", Aliases: []string{"publisher", "outlet", "publication", "source"}, Normalizer: "collapse"},
		{Name: "organization_name", Aliases: []string{"organization_name", "organization", "company", "team", "team_name"}, Normalizer: "collapse"},
	},
}

// Fields returns the staged fields of an entity type in declaration order.
func Fields(entityType models.EntityType) []Field {
	return entityFields[entityType]
}

// FieldNames returns the staged field names of an entity type.
func FieldNames(entityType models.EntityType) []string {
	fields := entityFields[entityType]
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func lookupField(entityType models.EntityType, name string) (Field, bool) {
	for _, f := range entityFields[entityType] {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// SuggestColumns maps raw headers to entity fields. A header matching a field
// alias exactly wins; headers left over are matched when their words contain
// every word of a multi-word alias. Each field is used at most once.
func SuggestColumns(entityType models.EntityType, headers []string) map[string]string {
	fields := entityFields[entityType]
	mapping := make(map[string]string)
	used := make(map[string]bool)

	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizers.NormalizeHeader(h)
	}

	for _, f := range fields {
		for _, alias := range f.Aliases {
			if used[f.Name] {
				break
			}
			for i, h := range headers {
				if _, taken := mapping[h]; taken {
					continue
				}
				if normalized[i] == alias {
					mapping[h] = f.Name
					used[f.Name] = true
					break
				}
			}
		}
	}

	for i, h := range headers {
		if _, taken := mapping[h]; taken {
			continue
		}
		words := strings.Split(normalized[i], "_")
	fieldLoop:
		for _, f := range fields {
			if used[f.Name] {
				continue
			}
			for _, alias := range f.Aliases {
				aliasWords := strings.Split(alias, "_")
				if len(aliasWords) < 2 || !containsAll(words, aliasWords) {
					continue
				}
				mapping[h] = f.Name
				used[f.Name] = true
				break fieldLoop
			}
		}
	}
	return mapping
}

func containsAll(words, want []string) bool {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
