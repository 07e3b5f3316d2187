// Package idgen generates canonical identifiers.
//
// Canonical person IDs (and job, media, and database IDs) are ULIDs:
// 26-character Crockford base32, lexicographically sortable by creation
// time. We store them lowercase so they are visually distinct from
// provider IDs, which are typically uppercase (FamilySearch "KWZQ-P8D")
// or numeric.
package idgen

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// canonicalAlphabet is Crockford base32, lowercased (no i, l, o, u).
const canonicalAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh lowercase ULID. IDs generated within the same
// millisecond remain strictly increasing (monotonic entropy).
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return strings.ToLower(id.String())
}

// NewAt returns a lowercase ULID for a fixed timestamp. Used by tests that
// need deterministic ordering across generated IDs.
func NewAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return strings.ToLower(id.String())
}

// IsCanonical reports whether s looks like a canonical ID: exactly 26
// characters, all from the lowercase Crockford base32 alphabet. Provider
// IDs never match (wrong length, uppercase, or punctuation).
func IsCanonical(s string) bool {
	if len(s) != ulid.EncodedSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(canonicalAlphabet, rune(s[i])) {
			return false
		}
	}
	// First character of a ULID is constrained to 0-7 (48-bit timestamp).
	return s[0] <= '7'
}
