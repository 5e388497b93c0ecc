package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"Acme, Inc.":        "acme inc",
		"  ACME   Corp  ":   "acme corp",
		"O'Reilly & Sons":   "oreilly sons",
		"":                  "",
		"Já Café":           "já café",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeKey(input), "input %q", input)
	}
}

func TestNormalizeKey_SamePartyDifferentPunctuation(t *testing.T) {
	assert.Equal(t, NormalizeKey("Acme, Inc."), NormalizeKey("Acme Inc"))
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", DomainOf("Sender@Example.COM"))
	assert.Equal(t, "", DomainOf("not-an-email"))
	assert.Equal(t, "", DomainOf("@example.com"))
	assert.Equal(t, "", DomainOf("user@"))
}
