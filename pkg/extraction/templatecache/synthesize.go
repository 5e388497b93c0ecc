package templatecache

import (
	"regexp"
	"strings"
)

var (
	decimalPattern = regexp.MustCompile(`^-?[\d,]+\.\d{2}$`)
	datePattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// anchorWindow is how many characters of text immediately preceding a
// value are kept as the regex's literal anchor.
const anchorWindow = 24

// Synthesize implements C8's Synthesize(fields_from_llm, tokens) ->
// template: for each LLM-extracted field, it locates the value's first
// occurrence in the source text and builds a regex anchored on the literal
// text immediately preceding it, capturing a value shaped like the one
// observed (decimal, date, or a generic run of non-whitespace). A field
// whose value cannot be located verbatim in the source text contributes no
// rule. If fewer than half the fields yield a stable rule, synthesis is
// not attempted at all (ok=false, the "none" case in spec.md §4.8) since a
// template built from a minority of its fields is unlikely to generalize
// to the sender's next email.
func Synthesize(fieldsFromLLM map[string]string, sourceText string) (fieldMap map[string]FieldRule, ok bool) {
	if len(fieldsFromLLM) == 0 {
		return nil, false
	}

	fieldMap = make(map[string]FieldRule, len(fieldsFromLLM))
	for name, value := range fieldsFromLLM {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		idx := strings.Index(sourceText, value)
		if idx <= 0 {
			continue
		}

		start := idx - anchorWindow
		if start < 0 {
			start = 0
		}
		anchor := strings.TrimLeft(sourceText[start:idx], "\n\r\t ")
		if anchor == "" {
			continue
		}

		fieldMap[name] = FieldRule{Regex: regexp.QuoteMeta(anchor) + valuePattern(value)}
	}

	if len(fieldMap) == 0 || len(fieldMap) < (len(fieldsFromLLM)+1)/2 {
		return nil, false
	}
	return fieldMap, true
}

// valuePattern infers a capture group shaped like value: a two-decimal
// amount, an ISO date, or a generic run of non-whitespace as a fallback.
func valuePattern(value string) string {
	switch {
	case decimalPattern.MatchString(value):
		return `([\d,]+\.\d{2})`
	case datePattern.MatchString(value):
		return `(\d{4}-\d{2}-\d{2})`
	default:
		return `(\S+)`
	}
}
