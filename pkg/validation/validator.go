// Package validation checks staged records before they can be matched or committed.
package validation

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
)

var (
	linkedInPath = regexp.MustCompile(`^/(in|pub|company|school|showcase)/[^/\s]+/?$`)
	twitterPath  = regexp.MustCompile(`^/@?[A-Za-z0-9_]{1,15}/?$`)
)

// Validator applies the field rules of each entity type plus the cross-field
// rules struct tags cannot express.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report fields by their column name
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("db"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	mustRegister(v, "notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "linkedin_url", func(fl validator.FieldLevel) bool {
		return IsLinkedInURL(fl.Field().String())
	})
	mustRegister(v, "twitter_url", func(fl validator.FieldLevel) bool {
		return IsTwitterURL(fl.Field().String())
	})

	return &Validator{validate: v}
}

// mustRegister panics when a custom tag cannot be registered, since every
// struct using the tag would fail validation.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

// IsLinkedInURL accepts absolute LinkedIn profile, company and school URLs.
func IsLinkedInURL(value string) bool {
	u, ok := absoluteURL(value)
	if !ok {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
		return false
	}
	return linkedInPath.MatchString(u.Path)
}

// IsTwitterURL accepts absolute twitter.com or x.com profile URLs.
func IsTwitterURL(value string) bool {
	u, ok := absoluteURL(value)
	if !ok {
		return false
	}
	switch strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.") {
	case "twitter.com", "x.com", "mobile.twitter.com":
	default:
		return false
	}
	return twitterPath.MatchString(u.Path)
}

func absoluteURL(value string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, true
}

// Validate checks one record and writes the outcome onto it. Messages come
// back in a stable order: parse errors, then field rules in declaration
// order, then cross-field rules.
func (v *Validator) Validate(rec *models.StagingRecord) (bool, []string) {
	messages := append([]string{}, rec.ParseErrors...)

	var payload any
	switch rec.EntityType {
	case models.EntityTypePerson:
		if rec.Person != nil {
			payload = rec.Person
		}
	case models.EntityTypeOrganization:
		if rec.Organization != nil {
			payload = rec.Organization
		}
	case models.EntityTypeRole:
		if rec.Role != nil {
			payload = rec.Role
		}
	case models.EntityTypeNews:
		if rec.News != nil {
			payload = rec.News
		}
	}
	if payload == nil {
		messages = append(messages, fmt.Sprintf("record has no %s fields", rec.EntityType))
	} else {
		messages = append(messages, v.fieldMessages(payload)...)
	}

	if rec.Role != nil {
		messages = append(messages, roleMessages(rec.Role)...)
	}

	rec.ValidationErrors = messages
	if len(messages) > 0 {
		rec.ValidationStatus = models.ValidationStatusInvalid
		return false, messages
	}
	rec.ValidationStatus = models.ValidationStatusValid
	return true, nil
}

// ValidateBatch validates every record and returns the valid and invalid counts.
func (v *Validator) ValidateBatch(records []*models.StagingRecord) (valid int, invalid int) {
	for _, rec := range records {
		if ok, _ := v.Validate(rec); ok {
			valid++
		} else {
			invalid++
		}
	}
	return valid, invalid
}

func (v *Validator) fieldMessages(payload any) []string {
	err := v.validate.Struct(payload)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fe.Field()+" "+message(fe))
	}
	return messages
}

func roleMessages(role *models.RoleFields) []string {
	var messages []string
	if role.PersonFullName == nil && role.PersonLinkedInURL == nil {
		messages = append(messages, "person_linkedin_url or person_full_name is required")
	}
	if role.StartDate != nil && role.EndDate != nil && role.EndDate.Before(*role.StartDate) {
		messages = append(messages, fmt.Sprintf("invalid date order: end_date %s is before start_date %s",
			role.EndDate.Format("2006-01-02"), role.StartDate.Format("2006-01-02")))
	}
	return messages
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.Join(strings.Fields(fe.Param()), ", "))
	case "linkedin_url":
		return "must be a LinkedIn profile or company URL"
	case "twitter_url":
		return "must be an X/Twitter profile URL"
	case "http_url":
		return "must be an absolute http(s) URL"
	case "fqdn":
		return "must be a domain name"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
