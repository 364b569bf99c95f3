package models

import (
	"time"

	"github.com/lib/pq"
)

// Person is a production person record
type Person struct {
	ID            string         `db:"id" json:"id"`
	FirstName     *string        `db:"first_name" json:"first_name,omitempty"`
	LastName      *string        `db:"last_name" json:"last_name,omitempty"`
	FullName      string         `db:"full_name" json:"full_name"`
	LinkedInURL   *string        `db:"linkedin_url" json:"linkedin_url,omitempty"`
	TwitterURL    *string        `db:"twitter_url" json:"twitter_url,omitempty"`
	CompanyDomain *string        `db:"company_domain" json:"company_domain,omitempty"`
	Tags          pq.StringArray `db:"tags" json:"tags,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Organization is a production organization record. Name is unique case-insensitively.
type Organization struct {
	ID                 string    `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	OrgType            *string   `db:"org_type" json:"org_type,omitempty"`
	Sport              *string   `db:"sport" json:"sport,omitempty"`
	League             *string   `db:"league" json:"league,omitempty"`
	ParentID           *string   `db:"parent_id" json:"parent_id,omitempty"`
	Website            *string   `db:"website" json:"website,omitempty"`
	CompanyEmailDomain *string   `db:"company_email_domain" json:"company_email_domain,omitempty"`
	LinkedInURL        *string   `db:"linkedin_url" json:"linkedin_url,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Role links a person to an organization over a period. Roles are closed, never deleted.
type Role struct {
	ID             string     `db:"id" json:"id"`
	PersonID       string     `db:"person_id" json:"person_id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	JobTitle       string     `db:"job_title" json:"job_title"`
	StartDate      *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate        *time.Time `db:"end_date" json:"end_date,omitempty"`
	IsCurrent      bool       `db:"is_current" json:"is_current"`
	IsExecutive    bool       `db:"is_executive" json:"is_executive"`
	SourceID       *string    `db:"source_id" json:"source_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// NewsItem is a production news article
type NewsItem struct {
	ID             string     `db:"id" json:"id"`
	Title          string     `db:"title" json:"title"`
	URL            string     `db:"url" json:"url"`
	PublishedAt    *time.Time `db:"published_at" json:"published_at,omitempty"`
	Summary        *string    `db:"summary" json:"summary,omitempty"`
	Publisher      *string    `db:"publisher" json:"publisher,omitempty"`
	OrganizationID *string    `db:"organization_id" json:"organization_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Source names where imported roles came from
type Source struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	SourceType string    `db:"source_type" json:"source_type"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// JobTitleDepartment maps a job title to its standardized department
type JobTitleDepartment struct {
	JobTitle               string    `db:"job_title" json:"job_title"`
	StandardizedDepartment string    `db:"standardized_department" json:"standardized_department"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
}
