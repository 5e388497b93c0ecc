package templatecache

import "regexp"

// Apply implements C8's Apply(template, extracted_text) -> (fields,
// confidence): runs each field's regex against extracted_text and reports
// an overall confidence proportional to how many fields matched. Spatial
// (Region-only) rules are not evaluated here — those apply to page images,
// which is the vision OCR extractor's job, not the text-based cache hit
// path.
func Apply(t *Template, extractedText string) (fields map[string]string, confidence float64) {
	fields = make(map[string]string, len(t.FieldMap))
	if len(t.FieldMap) == 0 {
		return fields, 0
	}

	matched := 0
	for name, rule := range t.FieldMap {
		if rule.Regex == "" {
			continue
		}
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			continue
		}
		if m := re.FindStringSubmatch(extractedText); len(m) > 0 {
			value := m[0]
			if len(m) > 1 {
				value = m[1]
			}
			fields[name] = value
			matched++
		}
	}

	confidence = float64(matched) / float64(len(t.FieldMap))
	return fields, confidence
}
