package models

import (
	"time"

	"github.com/lib/pq"
)

// ValidationStatus tracks a staging record through the pipeline
type ValidationStatus string

const (
	ValidationStatusPending ValidationStatus = "pending"
	ValidationStatusValid   ValidationStatus = "valid"
	ValidationStatusInvalid ValidationStatus = "invalid"
	ValidationStatusMerged  ValidationStatus = "merged"
)

// MergeDecision is what the commit step will do with a staged record
type MergeDecision string

const (
	MergeDecisionNew          MergeDecision = "new"
	MergeDecisionUpdate       MergeDecision = "update"
	MergeDecisionSkip         MergeDecision = "skip"
	MergeDecisionManualReview MergeDecision = "manual_review"
)

func (d MergeDecision) IsCommittable() bool {
	return d == MergeDecisionNew || d == MergeDecisionUpdate
}

func ParseMergeDecision(value string) (MergeDecision, bool) {
	switch MergeDecision(value) {
	case MergeDecisionNew, MergeDecisionUpdate, MergeDecisionSkip, MergeDecisionManualReview:
		return MergeDecision(value), true
	}
	return "", false
}

// StagingMeta is the bookkeeping shared by every staging table
type StagingMeta struct {
	ID               string           `db:"id" json:"id"`
	BatchID          string           `db:"batch_id" json:"batch_id"`
	RowNumber        int              `db:"row_number" json:"row_number"`
	ValidationStatus ValidationStatus `db:"validation_status" json:"validation_status"`
	ValidationErrors pq.StringArray   `db:"validation_errors" json:"validation_errors"`
	MergeCandidateID *string          `db:"merge_candidate_id" json:"merge_candidate_id,omitempty"`
	DuplicateOfID    *string          `db:"duplicate_of_id" json:"duplicate_of_id,omitempty"`
	ConfidenceScore  *float64         `db:"confidence_score" json:"confidence_score,omitempty"`
	MergeDecision    *MergeDecision   `db:"merge_decision" json:"merge_decision,omitempty"`
	ReviewNote       *string          `db:"review_note" json:"review_note,omitempty"`
	ReviewedBy       *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ProductionID     *string          `db:"production_id" json:"production_id,omitempty"`
	CommitError      *string          `db:"commit_error" json:"commit_error,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// StagingRecord is a tagged variant: exactly one payload is set, matching EntityType.
type StagingRecord struct {
	StagingMeta
	EntityType   EntityType          `db:"-" json:"entity_type"`
	Person       *PersonFields       `db:"-" json:"person,omitempty"`
	Organization *OrganizationFields `db:"-" json:"organization,omitempty"`
	Role         *RoleFields         `db:"-" json:"role,omitempty"`
	News         *NewsFields         `db:"-" json:"news,omitempty"`

	// ParseErrors are field-level decode failures found by the loader.
	ParseErrors []string `db:"-" json:"-"`
}

func (r *StagingRecord) Decision() MergeDecision {
	if r.MergeDecision == nil {
		return ""
	}
	return *r.MergeDecision
}

func (r *StagingRecord) SetResolution(decision MergeDecision, score float64, candidateID *string, duplicateOf *string, note string) {
	r.MergeDecision = &decision
	r.ConfidenceScore = &score
	r.MergeCandidateID = candidateID
	r.DuplicateOfID = duplicateOf
	r.ReviewNote = nil
	if note != "" {
		r.ReviewNote = &note
	}
}

// PersonFields are the staged columns of a person row
type PersonFields struct {
	FirstName     *string        `db:"first_name" json:"first_name,omitempty" validate:"required,notblank"`
	LastName      *string        `db:"last_name" json:"last_name,omitempty" validate:"required,notblank"`
	FullName      *string        `db:"full_name" json:"full_name,omitempty" validate:"required,notblank,min=2"`
	LinkedInURL   *string        `db:"linkedin_url" json:"linkedin_url,omitempty" validate:"omitempty,linkedin_url"`
	TwitterURL    *string        `db:"twitter_url" json:"twitter_url,omitempty" validate:"omitempty,twitter_url"`
	CompanyDomain *string        `db:"company_domain" json:"company_domain,omitempty" validate:"omitempty,fqdn"`
	Tags          pq.StringArray `db:"tags" json:"tags,omitempty"`
}

// OrganizationFields are the staged columns of an organization row
type OrganizationFields struct {
	Name               *string `db:"name" json:"name,omitempty" validate:"required,notblank,min=2"`
	OrgType            *string `db:"org_type" json:"org_type,omitempty" validate:"omitempty,oneof=Team League Brand Agency Vendor"`
	Sport              *string `db:"sport" json:"sport,omitempty"`
	League             *string `db:"league" json:"league,omitempty"`
	ParentName         *string `db:"parent_name" json:"parent_name,omitempty"`
	Website            *string `db:"website" json:"website,omitempty" validate:"omitempty,http_url"`
	CompanyEmailDomain *string `db:"company_email_domain" json:"company_email_domain,omitempty" validate:"omitempty,fqdn"`
	LinkedInURL        *string `db:"linkedin_url" json:"linkedin_url,omitempty" validate:"omitempty,linkedin_url"`
}

// RoleFields are the staged columns of a role row
type RoleFields struct {
	PersonFullName    *string    `db:"person_full_name" json:"person_full_name,omitempty" validate:"omitempty,notblank"`
	PersonLinkedInURL *string    `db:"person_linkedin_url" json:"person_linkedin_url,omitempty" validate:"omitempty,linkedin_url"`
	OrganizationName  *string    `db:"organization_name" json:"organization_name,omitempty" validate:"required,notblank"`
	JobTitle          *string    `db:"job_title" json:"job_title,omitempty" validate:"required,notblank"`
	StartDate         *time.Time `db:"start_date" json:"start_date,omitempty" validate:"required"`
	EndDate           *time.Time `db:"end_date" json:"end_date,omitempty"`
	IsExecutive       *bool      `db:"is_executive" json:"is_executive,omitempty"`
	SourceName        *string    `db:"source_name" json:"source_name,omitempty"`

	// PersonID and OrganizationID are the production rows the references
	// resolved to during matching.
	PersonID       *string `db:"person_id" json:"person_id,omitempty"`
	OrganizationID *string `db:"organization_id" json:"organization_id,omitempty"`
}

// NewsFields are the staged columns of a news row
type NewsFields struct {
	Title            *string    `db:"title" json:"title,omitempty" validate:"required,notblank"`
	URL              *string    `db:"url" json:"url,omitempty" validate:"required,http_url"`
	PublishedAt      *time.Time `db:"published_at" json:"published_at,omitempty"`
	Summary          *string    `db:"summary" json:"summary,omitempty"`
	Publisher        *string    `db:"publisher" json:"publisher,omitempty"`
	OrganizationName *string    `db:"organization_name" json:"organization_name,omitempty"`
}

// StagingFilter narrows staging record listings
type StagingFilter struct {
	ValidationStatus ValidationStatus
	MergeDecision    MergeDecision
	Committable      bool
	Limit            int
	Offset           int
}
