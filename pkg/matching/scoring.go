package matching

import (
	"fmt"
	"math"

	"github.com/tinusleroux/crowdbiz-graph/pkg/models"
	"github.com/tinusleroux/crowdbiz-graph/pkg/normalizers"
)

// Config contains configuration for the resolver.
type Config struct {
	UpdateThreshold float64 // Score at or above which a record updates its candidate (default: 0.90)
	ReviewThreshold float64 // Score at or above which a record waits for an operator (default: 0.60)
	CandidateFloor  float64 // Minimum trigram similarity for SQL candidate preselection (default: 0.30)
	CandidateLimit  int     // Maximum candidates fetched per record (default: 10)
}

// DefaultConfig returns the observed production defaults.
func DefaultConfig() Config {
	return Config{
		UpdateThreshold: 0.90,
		ReviewThreshold: 0.60,
		CandidateFloor:  0.30,
		CandidateLimit:  10,
	}
}

func (c Config) Validate() error {
	if c.UpdateThreshold < 0 || c.UpdateThreshold > 1 || c.ReviewThreshold < 0 || c.ReviewThreshold > 1 {
		return fmt.Errorf("match thresholds must be within [0,1], got update=%v review=%v", c.UpdateThreshold, c.ReviewThreshold)
	}
	if c.ReviewThreshold > c.UpdateThreshold {
		return fmt.Errorf("review threshold %v is above update threshold %v", c.ReviewThreshold, c.UpdateThreshold)
	}
	if c.CandidateLimit <= 0 {
		return fmt.Errorf("candidate limit must be positive, got %d", c.CandidateLimit)
	}
	return nil
}

// Decide maps a similarity score onto a merge decision. skip is never returned.
func (c Config) Decide(score float64) models.MergeDecision {
	switch {
	case score >= c.UpdateThreshold:
		return models.MergeDecisionUpdate
	case score >= c.ReviewThreshold:
		return models.MergeDecisionManualReview
	default:
		return models.MergeDecisionNew
	}
}

// NameParts are the normalized name components of a person
type NameParts struct {
	First string
	Last  string
	Full  string
}

// PersonNameParts normalizes name fields. Full falls back to first + last.
func PersonNameParts(first, last, full *string) NameParts {
	p := NameParts{
		First: normalizers.NormalizeName(deref(first)),
		Last:  normalizers.NormalizeName(deref(last)),
		Full:  normalizers.NormalizeName(deref(full)),
	}
	if p.Full == "" {
		p.Full = normalizers.JoinName(p.First, p.Last)
	}
	return p
}

// PersonScore is the greatest of first-name, last-name and full-name
// similarity. A first- or last-name component only counts when the other part
// reaches gate, so a shared surname alone cannot outrank the full name. When
// either side lacks the other part the present part counts on its own.
func PersonScore(a, b NameParts, gate float64) float64 {
	full := Similarity(a.Full, b.Full)
	first := Similarity(a.First, b.First)
	last := Similarity(a.Last, b.Last)

	score := full
	hasFirst := a.First != "" && b.First != ""
	hasLast := a.Last != "" && b.Last != ""
	if hasFirst && (!hasLast || last >= gate) {
		score = math.Max(score, first)
	}
	if hasLast && (!hasFirst || first >= gate) {
		score = math.Max(score, last)
	}
	return round(score)
}

// OrganizationScore compares organization names
func OrganizationScore(a, b string) float64 {
	return round(Similarity(normalizers.NormalizeOrganizationName(a), normalizers.NormalizeOrganizationName(b)))
}

// TitleScore compares job titles or headlines
func TitleScore(a, b string) float64 {
	return round(Similarity(normalizers.NormalizeJobTitle(a), normalizers.NormalizeJobTitle(b)))
}

// round keeps scores stable at four decimals so equal inputs compare equal
// across runs and storage round trips.
func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
