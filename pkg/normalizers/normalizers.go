// Package normalizers provides field normalization functions for staging and matching
package normalizers

import (
	"net/url"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("collapse", CollapseWhitespace)
	Register("nname", NormalizeName)
	Register("norg", NormalizeOrganizationName)
	Register("ntitle", NormalizeJobTitle)
	Register("nlinkedin", NormalizeLinkedInURL)
	Register("nurl", NormalizeURL)
	Register("ndomain", NormalizeDomain)
	Register("nheader", NormalizeHeader)
	Register("alphanumeric", Alphanumeric)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CollapseWhitespace trims and folds every whitespace run into one space
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeName normalizes a person's name for matching
// - Lowercase
// - Remove common suffixes (Jr., Sr., III, etc.)
// - Remove punctuation
// - Collapse whitespace
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	suffixes := []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv", " phd", " md", " dds"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	}
	s = strings.TrimSuffix(s, ",")

	return wordsOnly(s)
}

// NormalizeOrganizationName is the case-insensitive unique key of an organization.
// Only case and spacing are folded; punctuation is significant.
func NormalizeOrganizationName(s string) string {
	return strings.ToLower(CollapseWhitespace(s))
}

// NormalizeJobTitle lowercases a title and strips punctuation
func NormalizeJobTitle(s string) string {
	s = strings.ReplaceAll(s, "&", " and ")
	return wordsOnly(strings.ToLower(s))
}

// SplitFullName splits "First Middle Last" into first and last name.
// "Last, First" is also understood. A single word yields only a first name.
func SplitFullName(full string) (first, last string) {
	full = CollapseWhitespace(full)
	if full == "" {
		return "", ""
	}
	if before, after, ok := strings.Cut(full, ","); ok {
		before, after = strings.TrimSpace(before), strings.TrimSpace(after)
		if before != "" && after != "" && !isNameSuffix(after) {
			return after, before
		}
		full = before
	}
	parts := strings.Fields(full)
	for len(parts) > 2 && isNameSuffix(parts[len(parts)-1]) {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[len(parts)-1]
}

// JoinName builds a display full name from its parts
func JoinName(first, last string) string {
	return CollapseWhitespace(first + " " + last)
}

func isNameSuffix(s string) bool {
	switch strings.Trim(strings.ToLower(s), ".") {
	case "jr", "sr", "ii", "iii", "iv", "phd", "md", "dds":
		return true
	}
	return false
}

// NormalizeURL trims a URL and adds an https scheme when none was given.
func NormalizeURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + s
	}
	return s
}

// NormalizeLinkedInURL returns the canonical form https://www.linkedin.com/<path>
// with the path lowercased and query, fragment and trailing slash dropped.
// Values that are not LinkedIn URLs are only passed through NormalizeURL.
func NormalizeLinkedInURL(s string) string {
	s = NormalizeURL(s)
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	host := strings.ToLower(u.Hostname())
	if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
		return s
	}
	path := strings.TrimRight(strings.ToLower(u.EscapedPath()), "/")
	return "https://www.linkedin.com" + path
}

// NormalizeDomain strips scheme, www. and any path from a domain-like value.
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if at := strings.LastIndex(s, "@"); at >= 0 {
		s = s[at+1:]
	}
	return strings.TrimSuffix(s, ".")
}

// NormalizeHeader lowercases a column header and folds spaces, hyphens and
// dots into single underscores: "Company Email-Domain" -> "company_email_domain".
func NormalizeHeader(s string) string {
	var result strings.Builder
	prevSep := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSep = false
			continue
		}
		if !prevSep {
			result.WriteRune('_')
			prevSep = true
		}
	}
	return strings.TrimSuffix(result.String(), "_")
}

// Alphanumeric keeps only letters and digits
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// wordsOnly keeps letters and digits, drops apostrophes and dots, and folds
// everything else into single spaces.
func wordsOnly(s string) string {
	var result strings.Builder
	prevSpace := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
			prevSpace = false
		case r == '\'' || r == '\u2019' || r == '.':
		case !prevSpace:
			result.WriteRune(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(result.String())
}
