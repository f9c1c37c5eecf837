package models

import "regexp"

// Patterns for the pre-encryption PII scrub. Deliberately conservative:
// false negatives are acceptable, mangling ordinary prose is not.
var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\-\s().]{7,}\d`)
)

// RedactPII replaces email addresses and phone numbers in s with fixed
// placeholders. Applied to descriptor-declared redacted fields before
// encryption when the tenant enables it.
func RedactPII(s string) string {
	if s == "" {
		return s
	}
	s = emailPattern.ReplaceAllString(s, "[email redacted]")
	s = phonePattern.ReplaceAllString(s, "[phone redacted]")
	return s
}
