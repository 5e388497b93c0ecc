package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// contentHash is the dedup key of spec.md §4.6 step 1: identical attachment
// bytes always produce identical Documents for a user, regardless of which
// Message or provider surfaced them.
func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var layoutShapeDigits = regexp.MustCompile(`[0-9]`)
var layoutShapeLetters = regexp.MustCompile(`[\p{L}]+`)

// layoutFingerprint approximates spec.md §4.8's "stable hash of token
// positions on the first page". The extracted text carries no glyph
// coordinates (pkg/extraction/router's PDF reader yields plain text, not a
// positioned token stream — see DESIGN.md), so the fingerprint is instead
// computed over the first page's line-length/word-count shape: each line
// collapsed to its word count and digit-run count. Two invoices from the
// same sender template reliably produce the same shape even though their
// amounts/dates differ, which is the property the Template Cache actually
// needs (same key -> same field layout).
func layoutFingerprint(firstPageText string) string {
	lines := strings.Split(firstPageText, "\n")
	if len(lines) > 40 {
		lines = lines[:40]
	}

	var shape strings.Builder
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		words := layoutShapeLetters.FindAllString(trimmed, -1)
		digitGroups := layoutShapeDigits.FindAllString(trimmed, -1)
		shape.WriteString(strings.Repeat("w", len(words)))
		shape.WriteString(strings.Repeat("d", len(digitGroups)))
		shape.WriteString("|")
	}

	sum := sha256.Sum256([]byte(shape.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// firstPage returns the leading slice of text corresponding to a
// document's first page, bounded to a reasonable size when no explicit
// page break is known.
func firstPage(text string) string {
	const maxFirstPageBytes = 3000
	if len(text) <= maxFirstPageBytes {
		return text
	}
	return text[:maxFirstPageBytes]
}
