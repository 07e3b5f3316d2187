// Package codec converts raw provider person records into canonical
// form.
//
// Provider JSON is schema-loose, so decoding is a set of pure field
// extractors over a generic map[string]any tree with explicit defaults
// for every absent field. No reflection, no provider-specific structs:
// the same extractors serve every provider because the scrape driver
// normalizes records into a GedcomX-flavored shape before they reach us.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// ErrPlaceholder marks a record that is a provider-side placeholder
// ("unknown father" nodes with no parents). Callers drop these so they
// never enter the graph.
var ErrPlaceholder = errors.New("placeholder person")

// DefaultPlaceholderNames are primary names that, combined with two
// empty parent slots, mark a termination placeholder. Matched
// case-insensitively after whitespace normalization.
var DefaultPlaceholderNames = []string{
	"unknown",
	"unknown father",
	"unknown mother",
	"unknown parent",
	"living",
	"private",
}

// NameCategory buckets a person's names.
type NameCategory string

// Name categories.
const (
	NameBirth   NameCategory = "birth"
	NameMarried NameCategory = "married"
	NameAKA     NameCategory = "aka"
	NameOther   NameCategory = "other"
)

// DecodedPerson is the canonical form of one provider record, ready for
// the crawler to write through the identity map and store.
type DecodedPerson struct {
	ExternalID   string
	DisplayName  string
	BirthName    string
	Names        map[NameCategory][]string
	Gender       types.Gender
	Living       bool
	Bio          string
	Events       []types.VitalEvent // person ID left blank, filled at write time
	Occupations  []string
	SpouseIDs    []string
	FatherID     string
	MotherID     string
	Lifespan     string
	LastModified time.Time
}

// Decoder converts raw records for one source. The zero value uses the
// default placeholder set.
type Decoder struct {
	Source           types.Source
	PlaceholderNames []string
}

// NewDecoder returns a decoder for the given source with the default
// placeholder filter.
func NewDecoder(source types.Source) *Decoder {
	return &Decoder{Source: source, PlaceholderNames: DefaultPlaceholderNames}
}

// Decode parses a raw provider record. Returns ErrPlaceholder for
// termination placeholders (both parent slots empty and a placeholder
// primary name); these carry no genealogical information.
func (d *Decoder) Decode(raw []byte) (*DecodedPerson, error) {
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("malformed provider record: %w", err)
	}
	return d.DecodeTree(tree)
}

// DecodeTree decodes an already-parsed record tree.
func (d *Decoder) DecodeTree(tree map[string]any) (*DecodedPerson, error) {
	p := &DecodedPerson{
		ExternalID: getString(tree, "id"),
		Names:      extractNames(tree),
		Gender:     extractGender(tree),
		Living:     getBool(tree, "living"),
		FatherID:   parentSlotID(tree, "father"),
		MotherID:   parentSlotID(tree, "mother"),
	}
	if p.ExternalID == "" {
		return nil, fmt.Errorf("provider record has no id")
	}

	p.DisplayName = primaryName(tree, p.Names)

	if p.FatherID == "" && p.MotherID == "" && d.isPlaceholderName(p.DisplayName) {
		return nil, fmt.Errorf("record %s (%q): %w", p.ExternalID, p.DisplayName, ErrPlaceholder)
	}

	if birthNames := p.Names[NameBirth]; len(birthNames) > 0 {
		p.BirthName = birthNames[0]
	}

	facts := getSlice(tree, "facts")
	p.Events = extractVitalEvents(facts, d.Source)
	p.Occupations = extractOccupations(facts)
	p.Bio = extractLifeSketch(facts)
	p.SpouseIDs = extractSpouseIDs(tree, p.ExternalID)
	p.Lifespan = extractLifespan(tree, p.Events)
	p.LastModified = extractLastModified(tree)
	return p, nil
}

func (d *Decoder) isPlaceholderName(name string) bool {
	normalized := strings.Join(strings.Fields(strings.ToLower(name)), " ")
	placeholders := d.PlaceholderNames
	if placeholders == nil {
		placeholders = DefaultPlaceholderNames
	}
	for _, ph := range placeholders {
		if normalized == ph {
			return true
		}
	}
	return false
}

// --- generic tree accessors -------------------------------------------------

func getString(tree map[string]any, keys ...string) string {
	v := dig(tree, keys...)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func getBool(tree map[string]any, keys ...string) bool {
	v := dig(tree, keys...)
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

func getSlice(tree map[string]any, keys ...string) []any {
	v := dig(tree, keys...)
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}

func getMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

// dig walks nested maps. Any missing or mistyped level yields nil.
func dig(tree map[string]any, keys ...string) any {
	var current any = tree
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

// --- field extractors -------------------------------------------------------

// nameCategoryByType maps GedcomX name-type URIs to our buckets. Unknown
// or absent types land in "other".
var nameCategoryByType = map[string]NameCategory{
	"http://gedcomx.org/BirthName":     NameBirth,
	"http://gedcomx.org/MarriedName":   NameMarried,
	"http://gedcomx.org/AlsoKnownAs":   NameAKA,
	"http://gedcomx.org/FormalName":    NameOther,
	"http://gedcomx.org/ReligiousName": NameOther,
	"http://gedcomx.org/Nickname":      NameAKA,
}

// extractNames categorizes and dedupes all name forms in the record.
func extractNames(tree map[string]any) map[NameCategory][]string {
	names := make(map[NameCategory][]string)
	seen := make(map[string]bool)
	for _, v := range getSlice(tree, "names") {
		nameObj := getMap(v)
		if nameObj == nil {
			continue
		}
		category, ok := nameCategoryByType[getString(nameObj, "type")]
		if !ok {
			category = NameOther
		}
		for _, form := range getSlice(nameObj, "nameForms") {
			full := strings.TrimSpace(getString(getMap(form), "fullText"))
			if full == "" || seen[strings.ToLower(full)] {
				continue
			}
			seen[strings.ToLower(full)] = true
			names[category] = append(names[category], full)
		}
	}
	return names
}

// primaryName picks the display name: the record's display block first,
// then the first birth name, then "unknown".
func primaryName(tree map[string]any, names map[NameCategory][]string) string {
	if display := strings.TrimSpace(getString(tree, "display", "name")); display != "" {
		return display
	}
	if birth := names[NameBirth]; len(birth) > 0 {
		return birth[0]
	}
	return "unknown"
}

// genderByType maps GedcomX gender URIs to the enum.
var genderByType = map[string]types.Gender{
	"http://gedcomx.org/Male":   types.GenderMale,
	"http://gedcomx.org/Female": types.GenderFemale,
}

func extractGender(tree map[string]any) types.Gender {
	if g, ok := genderByType[getString(tree, "gender", "type")]; ok {
		return g
	}
	return types.GenderUnknown
}

// vitalFactTypes maps fact-type URIs to event types.
var vitalFactTypes = map[string]types.EventType{
	"http://gedcomx.org/Birth":       types.EventBirth,
	"http://gedcomx.org/Death":       types.EventDeath,
	"http://gedcomx.org/Burial":      types.EventBurial,
	"http://gedcomx.org/Christening": types.EventChristening,
}

// extractVitalEvents pulls birth/death/burial facts. Dates prefer the
// original text, falling back to the first normalized value; the formal
// ISO-ish string rides along when present. Place IDs come from "#NNNNN"
// description references.
func extractVitalEvents(facts []any, source types.Source) []types.VitalEvent {
	var events []types.VitalEvent
	seen := make(map[types.EventType]bool)
	for _, v := range facts {
		fact := getMap(v)
		if fact == nil {
			continue
		}
		eventType, ok := vitalFactTypes[getString(fact, "type")]
		if !ok || seen[eventType] {
			continue
		}
		seen[eventType] = true

		ev := types.VitalEvent{Type: eventType, Source: source}
		ev.DateOriginal = getString(fact, "date", "original")
		if ev.DateOriginal == "" {
			if normalized := getSlice(fact, "date", "normalized"); len(normalized) > 0 {
				ev.DateOriginal = getString(getMap(normalized[0]), "value")
			}
		}
		ev.DateFormal = getString(fact, "date", "formal")
		ev.DateYear = ParseYear(ev.DateOriginal)
		if ev.DateYear == nil && ev.DateFormal != "" {
			ev.DateYear = ParseYear(ev.DateFormal)
		}
		ev.Place = getString(fact, "place", "original")
		if ref := getString(fact, "place", "description"); strings.HasPrefix(ref, "#") {
			ev.PlaceID = ref[1:]
		}
		events = append(events, ev)
	}
	return events
}

// occupationFactTypes are the fact types gathered into the occupation
// list; nobility titles count.
var occupationFactTypes = map[string]bool{
	"http://gedcomx.org/Occupation":      true,
	"http://gedcomx.org/TitleOfNobility": true,
}

func extractOccupations(facts []any) []string {
	var occupations []string
	seen := make(map[string]bool)
	for _, v := range facts {
		fact := getMap(v)
		if fact == nil || !occupationFactTypes[getString(fact, "type")] {
			continue
		}
		value := strings.TrimSpace(getString(fact, "value"))
		if value == "" || seen[strings.ToLower(value)] {
			continue
		}
		seen[strings.ToLower(value)] = true
		occupations = append(occupations, value)
	}
	return occupations
}

func extractLifeSketch(facts []any) string {
	for _, v := range facts {
		fact := getMap(v)
		if fact != nil && getString(fact, "type") == "http://gedcomx.org/LifeSketch" {
			return strings.TrimSpace(getString(fact, "value"))
		}
	}
	return ""
}

// extractSpouseIDs collects the other parent from every family grouping
// where this person is a parent. Deduped, record order kept.
func extractSpouseIDs(tree map[string]any, selfID string) []string {
	var spouses []string
	seen := make(map[string]bool)
	for _, v := range getSlice(tree, "familiesAsParent") {
		family := getMap(v)
		if family == nil {
			continue
		}
		for _, slot := range []string{"parent1", "parent2"} {
			id := getString(family, slot, "resourceId")
			if id == "" || id == selfID || seen[id] {
				continue
			}
			seen[id] = true
			spouses = append(spouses, id)
		}
	}
	return spouses
}

// parentSlotID reads a parent slot ("father" / "mother"), which carries
// either a bare string ID or an object with a resourceId.
func parentSlotID(tree map[string]any, slot string) string {
	switch v := tree[slot].(type) {
	case string:
		return v
	case map[string]any:
		return getString(v, "resourceId")
	}
	return ""
}

// extractLifespan prefers the provider's display lifespan, else builds
// "<birth>-<death>" from the decoded events; either side may be empty.
func extractLifespan(tree map[string]any, events []types.VitalEvent) string {
	if ls := getString(tree, "display", "lifespan"); ls != "" {
		return ls
	}
	var birth, death string
	for _, ev := range events {
		switch {
		case ev.Type == types.EventBirth && ev.DateYear != nil:
			birth = fmt.Sprintf("%d", *ev.DateYear)
		case ev.Type == types.EventDeath && ev.DateYear != nil:
			death = fmt.Sprintf("%d", *ev.DateYear)
		}
	}
	if birth == "" && death == "" {
		return ""
	}
	return birth + "-" + death
}

// extractLastModified takes the max over every per-name and per-fact
// attribution stamp (epoch milliseconds).
func extractLastModified(tree map[string]any) time.Time {
	var maxMillis float64
	scan := func(items []any) {
		for _, v := range items {
			obj := getMap(v)
			if obj == nil {
				continue
			}
			if millis, ok := dig(obj, "attribution", "modified").(float64); ok && millis > maxMillis {
				maxMillis = millis
			}
		}
	}
	scan(getSlice(tree, "names"))
	scan(getSlice(tree, "facts"))
	if maxMillis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(maxMillis)).UTC()
}

// SortedNameCategories returns the categories of a decoded name map in
// stable order, for deterministic claim writes.
func SortedNameCategories(names map[NameCategory][]string) []NameCategory {
	categories := make([]NameCategory, 0, len(names))
	for c := range names {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	return categories
}
