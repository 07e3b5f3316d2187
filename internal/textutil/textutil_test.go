package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripAccents(t *testing.T) {
	assert.Equal(t, "Quebecois", StripAccents("Québécois"))
	assert.Equal(t, "Francois Allard", StripAccents("François Allard"))
	assert.Equal(t, "plain ascii", StripAccents("plain ascii"))
}

func TestNormalizePlaceIsIdempotent(t *testing.T) {
	inputs := []string{
		"  Cornouaille,  Visseiche, Ille-et-Vilaine,\tBrittany, France ",
		"Brittany, France",
		"",
	}
	for _, in := range inputs {
		once := NormalizePlace(in)
		assert.Equal(t, once, NormalizePlace(once), "normalization must be idempotent for %q", in)
	}
	assert.Equal(t,
		"cornouaille, visseiche, ille-et-vilaine, brittany, france",
		NormalizePlace("  Cornouaille,  Visseiche, Ille-et-Vilaine,\tBrittany, France "))
}

func TestNamesMatch(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"François Allard", "Francois Allard", true},
		{"Francois Allard", "Allard", true},             // containment
		{"Jean Allard", "Francois Allard", true},        // last-name equality
		{"Jean Du", "Pierre Du", false}, // last name too short
		{"", "Allard", false},
		{"Marie Gagnon", "Marie Tremblay", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NamesMatch(tt.a, tt.b), "NamesMatch(%q, %q)", tt.a, tt.b)
	}
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, Levenshtein("allard", "allard"))
	assert.Equal(t, 1, Levenshtein("allard", "alard"))
	assert.Equal(t, 6, Levenshtein("", "allard"))
	assert.Equal(t, 3, Levenshtein("kitten", "sitting"))
}
