package models

import (
	"fmt"
	"strings"
)

// EntityType identifies which staging/production tables a batch targets.
type EntityType string

const (
	EntityTypePerson       EntityType = "person"
	EntityTypeOrganization EntityType = "organization"
	EntityTypeRole         EntityType = "role"
	EntityTypeNews         EntityType = "news"
)

var EntityTypes = []EntityType{EntityTypePerson, EntityTypeOrganization, EntityTypeRole, EntityTypeNews}

func ParseEntityType(value string) (EntityType, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "people", "persons", "contact", "contacts":
		v = string(EntityTypePerson)
	case "organisation", "organizations", "org", "orgs", "team", "teams":
		v = string(EntityTypeOrganization)
	case "roles":
		v = string(EntityTypeRole)
	case "article", "articles", "news_item", "news_items":
		v = string(EntityTypeNews)
	}
	for _, t := range EntityTypes {
		if string(t) == v {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", value)
}

// StagingTable is the staging table holding records of this type.
func (t EntityType) StagingTable() string {
	switch t {
	case EntityTypePerson:
		return "person_staging"
	case EntityTypeOrganization:
		return "organization_staging"
	case EntityTypeRole:
		return "role_staging"
	case EntityTypeNews:
		return "news_item_staging"
	}
	return ""
}

// OrganizationType is the closed set of organization kinds.
type OrganizationType string

const (
	OrganizationTypeTeam   OrganizationType = "Team"
	OrganizationTypeLeague OrganizationType = "League"
	OrganizationTypeBrand  OrganizationType = "Brand"
	OrganizationTypeAgency OrganizationType = "Agency"
	OrganizationTypeVendor OrganizationType = "Vendor"
)

var OrganizationTypes = []OrganizationType{
	OrganizationTypeTeam,
	OrganizationTypeLeague,
	OrganizationTypeBrand,
	OrganizationTypeAgency,
	OrganizationTypeVendor,
}

// CanonicalOrganizationType matches value case-insensitively against the known types.
func CanonicalOrganizationType(value string) (OrganizationType, bool) {
	for _, t := range OrganizationTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(value)) {
			return t, true
		}
	}
	return "", false
}
