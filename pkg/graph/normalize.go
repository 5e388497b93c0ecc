package graph

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// caseFolder performs Unicode-aware case folding (e.g. German "Straße" vs
// "STRASSE", Turkish dotless-i) rather than the simpler, locale-blind
// unicode.ToLower — two Party names differing only in such casing should
// still dedup to the same normalized_name.
var caseFolder = cases.Fold()

// NormalizeKey produces a Party's normalized_name: case-folded,
// punctuation-stripped, whitespace-collapsed. Adapted from the teacher's
// NormalizeDisplayName title-casing pass, but folded down to a dedup key
// instead of a display form.
func NormalizeKey(name string) string {
	if name == "" {
		return ""
	}

	folded := caseFolder.String(name)

	var b strings.Builder
	b.Grow(len(folded))
	lastWasSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastWasSpace = false
		case unicode.IsSpace(r):
			if !lastWasSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastWasSpace = true
			}
		default:
			// Punctuation is dropped, not replaced with a space, so
			// "Acme, Inc." and "Acme Inc" normalize to the same key.
		}
	}

	return strings.TrimSpace(b.String())
}

// DomainOf extracts the lowercase domain from an email address, used to
// key the template cache by sender_domain (C8).
func DomainOf(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return strings.ToLower(parts[1])
}
