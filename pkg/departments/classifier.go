// Package departments classifies job titles into standardized departments.
package departments

import (
	"strings"
	"unicode"
)

const (
	SalesPartnerships       = "Sales & Partnerships"
	MarketingCommunications = "Marketing & Communications"
	FinanceAdministration   = "Finance & Administration"
	StadiumOperations       = "Stadium Operations & Facilities"
	TechnologyAnalytics     = "Technology & Analytics"
	FanExperienceEvents     = "Fan Experience & Events"
	TicketingOperations     = "Ticketing & Operations"
	BroadcastingMedia       = "Broadcasting & Media"
	ExecutiveLeadership     = "Executive Leadership"
	Other                   = "Other"
)

type department struct {
	name     string
	keywords []string
}

// Checked in order; the first department with a matching keyword wins.
var catalog = []department{
	{SalesPartnerships, []string{
		"sales", "partnership", "corporate partnership", "sponsor", "sponsorship", "business development",
		"account", "client", "revenue", "commercial", "corporate sales", "premium sales",
		"season ticket", "membership", "corporate services", "vip", "suite", "hospitality",
	}},
	{MarketingCommunications, []string{
		"marketing", "communications", "content", "social media", "brand", "creative",
		"graphic design", "public relations", "pr", "media relations", "digital",
		"advertising", "promotion", "community relations", "fan engagement", "publicity",
	}},
	{FinanceAdministration, []string{
		"finance", "accounting", "controller", "cfo", "treasurer", "budget", "financial",
		"hr", "human resources", "legal", "compliance", "administration", "admin",
		"operations manager", "business operations", "executive assistant", "office manager",
	}},
	{StadiumOperations, []string{
		"stadium", "facilities", "maintenance", "security", "grounds", "field",
		"building", "operations", "event operations", "game day", "facility",
		"groundskeeper", "custodial", "engineering",
	}},
	{TechnologyAnalytics, []string{
		"technology", "it", "data", "analytics", "software", "systems",
		"database", "tech", "information", "analyst", "developer", "programmer",
	}},
	{FanExperienceEvents, []string{
		"fan experience", "events", "entertainment", "guest services", "customer service",
		"fan services", "game presentation", "promotions", "activation", "experience",
		"community", "youth", "education", "outreach",
	}},
	{TicketingOperations, []string{
		"ticketing", "box office", "ticket", "seating", "concessions", "merchandise",
		"retail", "food service", "vendor", "procurement", "purchasing",
	}},
	{BroadcastingMedia, []string{
		"broadcasting", "media", "production", "video", "audio", "broadcast",
		"television", "radio", "streaming", "content production", "journalism",
		"reporter", "announcer", "producer",
	}},
	{ExecutiveLeadership, []string{"ceo", "president", "owner", "chairman", "chief"}},
}

// Departments lists every department Classify can return, Other last.
func Departments() []string {
	out := make([]string, 0, len(catalog)+1)
	for _, d := range catalog {
		out = append(out, d.name)
	}
	return append(out, Other)
}

// Classify returns the department of a job title. Keywords match whole words
// (a trailing plural s is allowed), so "pr" does not match "president".
func Classify(jobTitle string) string {
	words := tokenize(jobTitle)
	if len(words) == 0 {
		return Other
	}
	for _, d := range catalog {
		for _, kw := range d.keywords {
			if containsPhrase(words, strings.Fields(kw)) {
				return d.name
			}
		}
	}
	return Other
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(words) {
		return false
	}
	for i := 0; i+len(phrase) <= len(words); i++ {
		matched := true
		for j, p := range phrase {
			if !wordMatches(words[i+j], p) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func wordMatches(word, keyword string) bool {
	return word == keyword || word == keyword+"s" || word == keyword+"es"
}
