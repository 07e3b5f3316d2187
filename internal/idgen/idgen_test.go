package idgen

import (
	"sort"
	"strings"
	"testing"
	"time"
)

func TestNewProducesCanonicalIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		if len(id) != 26 {
			t.Fatalf("id %q has length %d, want 26", id, len(id))
		}
		if id != strings.ToLower(id) {
			t.Fatalf("id %q is not lowercase", id)
		}
		if !IsCanonical(id) {
			t.Fatalf("id %q does not pass IsCanonical", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewIsSortableByCreation(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	ids := []string{
		NewAt(base),
		NewAt(base.Add(time.Millisecond)),
		NewAt(base.Add(time.Second)),
		NewAt(base.Add(time.Minute)),
	}
	if !sort.StringsAreSorted(ids) {
		t.Errorf("ids not sorted by creation time: %v", ids)
	}
}

func TestNewAtSameMillisecondIsMonotonic(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	prev := NewAt(at)
	for i := 0; i < 100; i++ {
		next := NewAt(at)
		if next <= prev {
			t.Fatalf("monotonicity violated: %q then %q", prev, next)
		}
		prev = next
	}
}

func TestIsCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"01arz3ndektsv4rrffq69g5fav", true},
		{"01ARZ3NDEKTSV4RRFFQ69G5FAV", false}, // uppercase is a provider-style ID
		{"KWZQ-P8D", false},                   // FamilySearch style
		{"I123456789", false},                 // Ancestry style
		{"", false},
		{"01arz3ndektsv4rrffq69g5fa", false},   // 25 chars
		{"01arz3ndektsv4rrffq69g5favx", false}, // 27 chars
		{"01arz3ndektsv4rrffq69g5fal", false},  // 'l' not in alphabet
		{"91arz3ndektsv4rrffq69g5fav", false},  // leading char out of timestamp range
	}
	for _, tt := range tests {
		if got := IsCanonical(tt.in); got != tt.want {
			t.Errorf("IsCanonical(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
