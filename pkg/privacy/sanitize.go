package privacy

import "regexp"

const (
	EmailPlaceholder = "[EMAIL_REMOVED]"
	PhonePlaceholder = "[PHONE_REMOVED]"
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:\+?1[-.\s]?)?\(\d{3}\)\s*\d{3}[-.\s]?\d{4}\b`),
		regexp.MustCompile(`(?:\+?1[-.\s]?)?\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	}
)

// ContainsEmail reports whether text holds an email address
func ContainsEmail(text string) bool {
	return emailPattern.MatchString(text)
}

// ContainsPhone reports whether text holds a phone number
func ContainsPhone(text string) bool {
	for _, p := range phonePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Sanitize replaces email addresses and phone numbers embedded in free text.
func Sanitize(text string) string {
	if text == "" {
		return text
	}
	out := emailPattern.ReplaceAllString(text, EmailPlaceholder)
	for _, p := range phonePatterns {
		out = p.ReplaceAllString(out, PhonePlaceholder)
	}
	return out
}
