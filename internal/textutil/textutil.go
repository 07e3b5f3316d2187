// Package textutil holds the string normalization and matching helpers
// shared by the geocoder and the discovery matcher.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// accentStripper decomposes characters and drops the combining marks, so
// "Québécois" becomes "Quebecois".
var accentStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// StripAccents removes diacritical marks. Input that fails to transform
// (invalid UTF-8) comes back unchanged.
func StripAccents(s string) string {
	out, _, err := transform.String(accentStripper, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizePlace canonicalizes a place string for use as a geocode cache
// key: lowercase, trimmed, internal whitespace collapsed to single
// spaces. Idempotent.
func NormalizePlace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizeName prepares a person name for fuzzy comparison: lowercase,
// accents stripped, whitespace collapsed.
func NormalizeName(s string) string {
	return NormalizePlace(StripAccents(s))
}

// LastName returns the final whitespace-separated token of a name, or ""
// for an empty name.
func LastName(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// NamesMatch reports whether two person names plausibly refer to the
// same person: after normalization, one contains the other, or their
// last names are equal and longer than two characters (guarding against
// matches on particles like "de" or initials).
func NamesMatch(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	la, lb := LastName(na), LastName(nb)
	return la == lb && len(la) > 2
}

// Levenshtein returns the edit distance between two strings, rune-wise.
// Used for ranking near-miss name candidates in discovery output.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
