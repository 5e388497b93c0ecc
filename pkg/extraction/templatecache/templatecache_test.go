package templatecache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTemplate_Expired(t *testing.T) {
	now := time.Now()
	fresh := &Template{LastUsedAt: now.Add(-1 * time.Hour)}
	stale := &Template{LastUsedAt: now.Add(-91 * 24 * time.Hour)}

	assert.False(t, fresh.Expired(now))
	assert.True(t, stale.Expired(now))
}

func TestApply_MatchesRegexFields(t *testing.T) {
	tmpl := &Template{
		FieldMap: map[string]FieldRule{
			"total_amount":   {Regex: `Total Due: \$([\d,]+\.\d{2})`},
			"invoice_number": {Regex: `Invoice #(\d+)`},
		},
	}

	fields, confidence := Apply(tmpl, "Invoice #4821\nTotal Due: $1,204.50\n")

	assert.Equal(t, "4821", fields["invoice_number"])
	assert.Equal(t, "1,204.50", fields["total_amount"])
	assert.Equal(t, 1.0, confidence)
}

func TestApply_PartialMatchLowersConfidence(t *testing.T) {
	tmpl := &Template{
		FieldMap: map[string]FieldRule{
			"total_amount":   {Regex: `Total Due: \$([\d,]+\.\d{2})`},
			"invoice_number": {Regex: `Invoice #(\d+)`},
		},
	}

	fields, confidence := Apply(tmpl, "Total Due: $99.00\n")

	assert.Equal(t, "99.00", fields["total_amount"])
	assert.NotContains(t, fields, "invoice_number")
	assert.Equal(t, 0.5, confidence)
}

func TestApply_EmptyTemplateYieldsZeroConfidence(t *testing.T) {
	tmpl := &Template{FieldMap: map[string]FieldRule{}}
	fields, confidence := Apply(tmpl, "anything")
	assert.Empty(t, fields)
	assert.Equal(t, 0.0, confidence)
}

func TestSynthesize_BuildsAnchoredRegexes(t *testing.T) {
	text := "Invoice #4821\nIssue Date: 2024-03-01\nTotal Due: $1,204.50\n"
	fields := map[string]string{
		"invoice_number": "4821",
		"issue_date":     "2024-03-01",
		"total_amount":   "1,204.50",
	}

	fieldMap, ok := Synthesize(fields, text)
	assert.True(t, ok)
	assert.Len(t, fieldMap, 3)

	applied, confidence := Apply(&Template{FieldMap: fieldMap}, text)
	assert.Equal(t, 1.0, confidence)
	assert.Equal(t, "4821", applied["invoice_number"])
	assert.Equal(t, "2024-03-01", applied["issue_date"])
	assert.Equal(t, "1,204.50", applied["total_amount"])
}

func TestSynthesize_NoneWhenValuesNotFound(t *testing.T) {
	fields := map[string]string{
		"invoice_number": "9999",
		"total_amount":   "5.00",
	}
	fieldMap, ok := Synthesize(fields, "this text contains neither value")
	assert.False(t, ok)
	assert.Nil(t, fieldMap)
}

func TestSynthesize_EmptyInput(t *testing.T) {
	fieldMap, ok := Synthesize(map[string]string{}, "some text")
	assert.False(t, ok)
	assert.Nil(t, fieldMap)
}
