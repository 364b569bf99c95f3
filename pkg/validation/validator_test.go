package validation

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestValidator_Person(t *testing.T) {
	v := New()

	t.Run("valid person", func(t *testing.T) {
		rec := &models.StagingRecord{EntityType: models.EntityTypePerson, Person: &models.PersonFields{
			FirstName:   ptr("Jane"),
			LastName:    ptr("Doe"),
			FullName:    ptr("Jane Doe"),
			LinkedInURL: ptr("https://www.linkedin.com/in/janedoe"),
			TwitterURL:  ptr("https://x.com/janedoe"),
		}}

		ok, messages := v.Validate(rec)
		assert.True(t, ok)
		assert.Empty(t, messages)
		assert.Equal(t, models.ValidationStatusValid, rec.ValidationStatus)
	})

	t.Run("missing names and bad urls in field order", func(t *testing.T) {
		rec := &models.StagingRecord{EntityType: models.EntityTypePerson, Person: &models.PersonFields{
			FirstName:     ptr("  "),
			FullName:      ptr("J"),
			LinkedInURL:   ptr("https://example.com/in/jane"),
			CompanyDomain: ptr("not a domain"),
		}}

		ok, messages := v.Validate(rec)
		assert.False(t, ok)
		assert.Equal(t, []string{
			"first_name must not be blank",
			"last_name is required",
			"full_name must be at least 2 characters",
			"linkedin_url must be a LinkedIn profile or company URL",
			"company_domain must be a domain name",
		}, messages)
		assert.Equal(t, models.ValidationStatusInvalid, rec.ValidationStatus)
		assert.Equal(t, messages, []string(rec.ValidationErrors))
	})

	t.Run("parse errors come first", func(t *testing.T) {
		rec := &models.StagingRecord{
			EntityType:  models.EntityTypePerson,
			Person:      &models.PersonFields{FirstName: ptr("A"), LastName: ptr("B"), FullName: ptr("A B")},
			ParseErrors: []string{"tags: broken"},
		}
		ok, messages := v.Validate(rec)
		assert.False(t, ok)
		assert.Equal(t, []string{"tags: broken"}, messages)
	})
}

func TestValidator_Organization(t *testing.T) {
	v := New()

	ok, _ := v.Validate(&models.StagingRecord{EntityType: models.EntityTypeOrganization, Organization: &models.OrganizationFields{
		Name:               ptr("Dallas Cowboys"),
		OrgType:            ptr("Team"),
		Website:            ptr("https://www.dallascowboys.com"),
		CompanyEmailDomain: ptr("dallascowboys.com"),
		LinkedInURL:        ptr("https://www.linkedin.com/company/dallas-cowboys"),
	}})
	assert.True(t, ok)

	ok, messages := v.Validate(&models.StagingRecord{EntityType: models.EntityTypeOrganization, Organization: &models.OrganizationFields{
		Name:    ptr("X"),
		OrgType: ptr("Club"),
		Website: ptr("www.example.com"),
	}})
	assert.False(t, ok)
	assert.Equal(t, []string{
		"name must be at least 2 characters",
		"org_type must be one of: Team, League, Brand, Agency, Vendor",
		"website must be an absolute http(s) URL",
	}, messages)
}

func TestValidator_Role(t *testing.T) {
	v := New()

	t.Run("end date before start date is rejected", func(t *testing.T) {
		rec := &models.StagingRecord{EntityType: models.EntityTypeRole, Role: &models.RoleFields{
			PersonFullName:   ptr("Jane Doe"),
			OrganizationName: ptr("Dallas Cowboys"),
			JobTitle:         ptr("CMO"),
			StartDate:        date("2024-01-01"),
			EndDate:          date("2023-12-31"),
		}}

		ok, messages := v.Validate(rec)
		assert.False(t, ok)
		require.Len(t, messages, 1)
		assert.Contains(t, messages[0], "date order")
		assert.Contains(t, messages[0], "2023-12-31")
		assert.Equal(t, models.ValidationStatusInvalid, rec.ValidationStatus)
	})

	t.Run("same start and end date is fine", func(t *testing.T) {
		ok, _ := v.Validate(&models.StagingRecord{EntityType: models.EntityTypeRole, Role: &models.RoleFields{
			PersonLinkedInURL: ptr("https://www.linkedin.com/in/janedoe"),
			OrganizationName:  ptr("Dallas Cowboys"),
			JobTitle:          ptr("CMO"),
			StartDate:         date("2024-01-01"),
			EndDate:           date("2024-01-01"),
		}})
		assert.True(t, ok)
	})

	t.Run("needs a person reference, title and start date", func(t *testing.T) {
		ok, messages := v.Validate(&models.StagingRecord{EntityType: models.EntityTypeRole, Role: &models.RoleFields{
			OrganizationName: ptr("Dallas Cowboys"),
		}})
		assert.False(t, ok)
		assert.Equal(t, []string{
			"job_title is required",
			"start_date is required",
			"person_linkedin_url or person_full_name is required",
		}, messages)
	})
}

func TestValidator_News(t *testing.T) {
	v := New()

	ok, messages := v.Validate(&models.StagingRecord{EntityType: models.EntityTypeNews, News: &models.NewsFields{
		Title: ptr("Cowboys hire CMO"),
		URL:   ptr("ftp://example.com/a"),
	}})
	assert.False(t, ok)
	assert.Equal(t, []string{"url must be an absolute http(s) URL"}, messages)

	ok, messages = v.Validate(&models.StagingRecord{EntityType: models.EntityTypeNews})
	assert.False(t, ok)
	assert.Equal(t, []string{"record has no news fields"}, messages)
}

func TestValidateBatch(t *testing.T) {
	v := New()
	records := []*models.StagingRecord{
		{EntityType: models.EntityTypeOrganization, Organization: &models.OrganizationFields{Name: ptr("Dallas Cowboys")}},
		{EntityType: models.EntityTypeOrganization, Organization: &models.OrganizationFields{}},
		{EntityType: models.EntityTypeOrganization, Organization: &models.OrganizationFields{Name: ptr("Texas Rangers")}},
	}

	valid, invalid := v.ValidateBatch(records)
	assert.Equal(t, 2, valid)
	assert.Equal(t, 1, invalid)
}

func TestURLPatterns(t *testing.T) {
	assert.True(t, IsLinkedInURL("https://www.linkedin.com/in/jane-doe-123/"))
	assert.True(t, IsLinkedInURL("https://uk.linkedin.com/company/dallas-cowboys"))
	assert.False(t, IsLinkedInURL("https://www.linkedin.com/feed/"))
	assert.False(t, IsLinkedInURL("linkedin.com/in/jane"))
	assert.True(t, IsTwitterURL("https://twitter.com/dallascowboys"))
	assert.True(t, IsTwitterURL("https://x.com/@jane_doe"))
	assert.False(t, IsTwitterURL("https://x.com/jane/status/123"))
}

func TestMustRegister(t *testing.T) {
	assert.NotPanics(t, func() { New() })

	v := validator.New()
	assert.Panics(t, func() {
		mustRegister(v, "", func(validator.FieldLevel) bool { return true })
	})
}
