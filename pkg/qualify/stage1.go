package qualify

import (
	"regexp"
	"strings"
	"sync"
)

// bodyWindowBytes bounds how much of the body Stage 1 scans, per spec.md
// §4.4 ("subject ∥ body-first-2KB").
const bodyWindowBytes = 2048

var wordBoundaryCache sync.Map // token -> *regexp.Regexp

func wordBoundaryRegexp(token string) *regexp.Regexp {
	if v, ok := wordBoundaryCache.Load(token); ok {
		return v.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(token) + `\b`)
	wordBoundaryCache.Store(token, re)
	return re
}

// findToken returns the first token from tokens present in text, or "" if
// none matched. Alphabetic single-word tokens are matched whole-word
// (case-insensitive); glyphs and multi-word phrases are matched as plain
// case-insensitive substrings.
func findToken(text string, tokens []string) string {
	lower := strings.ToLower(text)
	for _, token := range tokens {
		if glyphTokens[token] {
			if strings.Contains(text, token) {
				return token
			}
			continue
		}
		if strings.Contains(token, " ") {
			if strings.Contains(lower, token) {
				return token
			}
			continue
		}
		if wordBoundaryRegexp(token).MatchString(text) {
			return token
		}
	}
	return ""
}

// Stage1Outcome is the result of the deterministic keyword gate.
type Stage1Outcome struct {
	Conclusive bool
	Qualified  bool
	Stage      string // "subject" or "body"
	Confidence float64
	Reason     string
}

// RunStage1 implements spec.md §4.4 Stage 1's decision tree over a
// Message's subject and the first bodyWindowBytes of its body.
func RunStage1(subject, body string) Stage1Outcome {
	if len(body) > bodyWindowBytes {
		body = body[:bodyWindowBytes]
	}

	posSubject := findToken(subject, positiveTokens)
	negSubject := findToken(subject, negativeTokens)
	posBody := findToken(body, positiveTokens)
	negBody := findToken(body, negativeTokens)

	hasPositive := posSubject != "" || posBody != ""
	hasNegative := negSubject != "" || negBody != ""

	switch {
	case hasPositive && !hasNegative:
		stage, token := "body", posBody
		if posSubject != "" {
			stage, token = "subject", posSubject
		}
		return Stage1Outcome{Conclusive: true, Qualified: true, Stage: stage, Confidence: 0.9, Reason: "keyword:" + token}
	case hasNegative && !hasPositive:
		stage, token := "body", negBody
		if negSubject != "" {
			stage, token = "subject", negSubject
		}
		return Stage1Outcome{Conclusive: true, Qualified: false, Stage: stage, Confidence: 0.9, Reason: "spam:" + token}
	default:
		// Neither matched, or both matched (ambiguous): never silently
		// drop a message — fall through to Stage 2.
		return Stage1Outcome{Conclusive: false}
	}
}
