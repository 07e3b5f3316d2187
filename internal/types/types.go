// Package types defines the core domain types for the genealogical
// knowledge graph: persons, external identities, edges, vital events,
// claims, databases, favorites, blobs, and geocode cache rows.
//
// Types here are shared by the storage layer, the crawler, the graph
// algorithms, and the CLI. Keep this package free of I/O.
package types

import (
	"fmt"
	"time"
)

// CanonicalIDLength is the length of internal person IDs (ULID).
const CanonicalIDLength = 26

// MaxNameLength bounds display and birth names at write time.
const MaxNameLength = 500

// Gender is the normalized gender of a person.
type Gender string

// Gender constants.
const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// IsValid checks if the gender value is valid.
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderUnknown:
		return true
	}
	return false
}

// Source identifies where a record, edge, event, or claim came from.
// The four provider sources are crawlable; gedcom and user are local-only.
type Source string

// Source constants.
const (
	SourceFamilySearch Source = "familysearch"
	SourceAncestry     Source = "ancestry"
	SourceWikiTree     Source = "wikitree"
	Source23AndMe      Source = "23andme"
	SourceGEDCOM       Source = "gedcom"
	SourceUser         Source = "user"
)

// IsValid checks if the source value is valid.
func (s Source) IsValid() bool {
	switch s {
	case SourceFamilySearch, SourceAncestry, SourceWikiTree, Source23AndMe, SourceGEDCOM, SourceUser:
		return true
	}
	return false
}

// IsProvider reports whether the source is a remote provider that can be
// crawled (as opposed to a local origin like gedcom or user).
func (s Source) IsProvider() bool {
	switch s {
	case SourceFamilySearch, SourceAncestry, SourceWikiTree, Source23AndMe:
		return true
	}
	return false
}

// ParentRole is the role of a parent in a parent edge.
type ParentRole string

// Parent role constants. RoleParent is used when the provider does not
// distinguish father from mother.
const (
	RoleFather ParentRole = "father"
	RoleMother ParentRole = "mother"
	RoleParent ParentRole = "parent"
)

// IsValid checks if the parent role value is valid.
func (r ParentRole) IsValid() bool {
	switch r {
	case RoleFather, RoleMother, RoleParent:
		return true
	}
	return false
}

// EventType is the kind of a vital event. The vocabulary is open: the
// constants below are the well-known types, but any non-empty string is
// accepted so providers can contribute types we have not seen.
type EventType string

// Well-known event types.
const (
	EventBirth       EventType = "birth"
	EventDeath       EventType = "death"
	EventBurial      EventType = "burial"
	EventChristening EventType = "christening"
	EventMarriage    EventType = "marriage"
)

// IsValid checks if the event type is usable (non-empty).
func (e EventType) IsValid() bool {
	return e != ""
}

// GeocodeStatus is the state of a place geocode cache row.
type GeocodeStatus string

// Geocode status constants.
const (
	GeocodePending  GeocodeStatus = "pending"
	GeocodeResolved GeocodeStatus = "resolved"
	GeocodeNotFound GeocodeStatus = "not_found"
	GeocodeError    GeocodeStatus = "error"
)

// IsValid checks if the geocode status value is valid.
func (s GeocodeStatus) IsValid() bool {
	switch s {
	case GeocodePending, GeocodeResolved, GeocodeNotFound, GeocodeError:
		return true
	}
	return false
}

// CacheMode controls how the crawler uses the on-disk provider cache.
type CacheMode string

// Cache mode constants.
const (
	// CacheAll reads the cache when present, otherwise fetches and persists.
	CacheAll CacheMode = "all"
	// CacheNone always fetches and overwrites the cache.
	CacheNone CacheMode = "none"
	// CacheComplete reads the cache but re-fetches records with fewer than
	// two parents, on the theory that the cached copy was incomplete.
	CacheComplete CacheMode = "complete"
)

// IsValid checks if the cache mode value is valid.
func (m CacheMode) IsValid() bool {
	switch m {
	case CacheAll, CacheNone, CacheComplete:
		return true
	}
	return false
}

// PathPolicy selects which common ancestor a path search prefers.
type PathPolicy string

// Path policy constants.
const (
	PathShortest PathPolicy = "shortest"
	PathLongest  PathPolicy = "longest"
	PathRandom   PathPolicy = "random"
)

// IsValid checks if the path policy value is valid.
func (p PathPolicy) IsValid() bool {
	switch p {
	case PathShortest, PathLongest, PathRandom:
		return true
	}
	return false
}

// Person is a canonical person row. External identifiers live in
// ExternalIdentity rows; a person created by the crawler always has at
// least one.
type Person struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	BirthName   string    `json:"birth_name,omitempty"`
	Gender      Gender    `json:"gender"`
	Living      bool      `json:"living"`
	Bio         string    `json:"bio,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks that the person is well-formed before a write.
// An empty gender is normalized to unknown.
func (p *Person) Validate() error {
	if p.DisplayName == "" {
		return fmt.Errorf("display name is required")
	}
	if len(p.DisplayName) > MaxNameLength {
		return fmt.Errorf("display name exceeds %d characters", MaxNameLength)
	}
	if len(p.BirthName) > MaxNameLength {
		return fmt.Errorf("birth name exceeds %d characters", MaxNameLength)
	}
	if p.Gender == "" {
		p.Gender = GenderUnknown
	}
	if !p.Gender.IsValid() {
		return fmt.Errorf("invalid gender: %s", p.Gender)
	}
	return nil
}

// ExternalIdentity maps a canonical person to a provider-specific ID.
// (source, external_id) is unique across the store. A person may hold
// several identities under one source after provider-side merges; the
// highest-confidence, most recently registered row is the current one.
type ExternalIdentity struct {
	PersonID     string    `json:"person_id"`
	Source       Source    `json:"source"`
	ExternalID   string    `json:"external_id"`
	URL          string    `json:"url,omitempty"`
	Confidence   float64   `json:"confidence"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Validate checks that the identity is well-formed.
func (e *ExternalIdentity) Validate() error {
	if e.PersonID == "" {
		return fmt.Errorf("person ID is required")
	}
	if !e.Source.IsValid() {
		return fmt.Errorf("invalid source: %s", e.Source)
	}
	if e.ExternalID == "" {
		return fmt.Errorf("external ID is required")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", e.Confidence)
	}
	return nil
}

// ParentEdge links a child to a parent. Unique on (child, parent, source);
// deliberately not unique on role, so a child may accumulate more than two
// parents across providers. Cycles occur in real provider data and every
// traversal must tolerate them.
type ParentEdge struct {
	ChildID  string     `json:"child_id"`
	ParentID string     `json:"parent_id"`
	Role     ParentRole `json:"parent_role"`
	Source   Source     `json:"source"`
}

// Validate checks that the edge is well-formed.
func (e *ParentEdge) Validate() error {
	if e.ChildID == "" || e.ParentID == "" {
		return fmt.Errorf("child and parent IDs are required")
	}
	if e.ChildID == e.ParentID {
		return fmt.Errorf("person %s cannot be its own parent", e.ChildID)
	}
	if !e.Role.IsValid() {
		return fmt.Errorf("invalid parent role: %s", e.Role)
	}
	if !e.Source.IsValid() {
		return fmt.Errorf("invalid source: %s", e.Source)
	}
	return nil
}

// SpouseEdge links two spouses. The pair is unordered and stored
// canonically with Person1ID < Person2ID.
type SpouseEdge struct {
	Person1ID string `json:"person1_id"`
	Person2ID string `json:"person2_id"`
	Source    Source `json:"source"`
}

// Canonicalize orders the pair so Person1ID < Person2ID.
func (e *SpouseEdge) Canonicalize() {
	if e.Person2ID < e.Person1ID {
		e.Person1ID, e.Person2ID = e.Person2ID, e.Person1ID
	}
}

// Validate checks that the edge is well-formed.
func (e *SpouseEdge) Validate() error {
	if e.Person1ID == "" || e.Person2ID == "" {
		return fmt.Errorf("both spouse IDs are required")
	}
	if e.Person1ID == e.Person2ID {
		return fmt.Errorf("person %s cannot be its own spouse", e.Person1ID)
	}
	if !e.Source.IsValid() {
		return fmt.Errorf("invalid source: %s", e.Source)
	}
	return nil
}

// VitalEvent is a dated, placed life event (birth, death, burial, ...).
// DateYear is signed: BC years are negative. Multiple events of the same
// type may exist for one person, at most one per source.
type VitalEvent struct {
	ID           int64     `json:"id,omitempty"`
	PersonID     string    `json:"person_id"`
	Type         EventType `json:"event_type"`
	DateOriginal string    `json:"date_original,omitempty"`
	DateFormal   string    `json:"date_formal,omitempty"`
	DateYear     *int      `json:"date_year,omitempty"`
	Place        string    `json:"place,omitempty"`
	PlaceID      string    `json:"place_id,omitempty"`
	Source       Source    `json:"source"`
}

// Validate checks that the event is well-formed.
func (v *VitalEvent) Validate() error {
	if v.PersonID == "" {
		return fmt.Errorf("person ID is required")
	}
	if !v.Type.IsValid() {
		return fmt.Errorf("event type is required")
	}
	if !v.Source.IsValid() {
		return fmt.Errorf("invalid source: %s", v.Source)
	}
	return nil
}

// Claim is an open-vocabulary per-person assertion such as an occupation,
// alias, religion, or title. Unique on (person, predicate, value, source).
type Claim struct {
	ID        int64  `json:"id,omitempty"`
	PersonID  string `json:"person_id"`
	Predicate string `json:"predicate"`
	ValueText string `json:"value_text"`
	Source    Source `json:"source"`
}

// Well-known claim predicates.
const (
	PredicateOccupation = "occupation"
	PredicateAlias      = "alias"
	PredicateReligion   = "religion"
	PredicateTitle      = "title"
)

// Validate checks that the claim is well-formed.
func (c *Claim) Validate() error {
	if c.PersonID == "" {
		return fmt.Errorf("person ID is required")
	}
	if c.Predicate == "" || c.ValueText == "" {
		return fmt.Errorf("predicate and value are required")
	}
	if !c.Source.IsValid() {
		return fmt.Errorf("invalid source: %s", c.Source)
	}
	return nil
}

// DatabaseInfo names a rooted subgraph: a root person plus every member
// reached during a crawl, with per-member generations.
type DatabaseInfo struct {
	ID             string    `json:"db_id"`
	Name           string    `json:"name"`
	RootID         string    `json:"root_id"`
	MaxGenerations int       `json:"max_generations"` // 0 = unbounded
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DatabaseMember records one person's membership in a database.
// Generation is the BFS distance from the root through parent edges,
// restricted to members; the root is generation 0.
type DatabaseMember struct {
	DBID       string `json:"db_id"`
	PersonID   string `json:"person_id"`
	IsRoot     bool   `json:"is_root"`
	Generation int    `json:"generation"`
}

// Favorite marks a person as interesting within a database. Tags keep
// insertion order.
type Favorite struct {
	DBID           string    `json:"db_id"`
	PersonID       string    `json:"person_id"`
	WhyInteresting string    `json:"why_interesting,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	AddedAt        time.Time `json:"added_at"`
}

// Blob is the metadata row for a content-addressed file. Hash is the
// SHA-256 of the bytes (lowercase hex) and doubles as the primary key;
// Path is relative to the blob root.
type Blob struct {
	Hash      string `json:"blob_hash"`
	Path      string `json:"path"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Width     *int   `json:"width,omitempty"`
	Height    *int   `json:"height,omitempty"`
}

// Media attaches a blob to a person. Deleting a blob is refused while any
// media row references it.
type Media struct {
	ID        string `json:"media_id"`
	PersonID  string `json:"person_id"`
	BlobHash  string `json:"blob_hash"`
	Source    Source `json:"source"`
	IsPrimary bool   `json:"is_primary"`
	Caption   string `json:"caption,omitempty"`
}

// PlaceGeocode is a geocode cache row keyed by normalized place text.
type PlaceGeocode struct {
	PlaceText   string        `json:"place_text"`
	Lat         *float64      `json:"lat,omitempty"`
	Lng         *float64      `json:"lng,omitempty"`
	DisplayName string        `json:"display_name,omitempty"`
	Status      GeocodeStatus `json:"geocode_status"`
	GeocodedAt  *time.Time    `json:"geocoded_at,omitempty"`
}

// PersonFilter narrows ListPersons. Nil pointer fields are not applied.
type PersonFilter struct {
	Gender       *Gender `json:"gender,omitempty"`
	Living       *bool   `json:"living,omitempty"`
	Source       *Source `json:"source,omitempty"`
	NameContains string  `json:"name_contains,omitempty"`
	DBID         string  `json:"db_id,omitempty"`
	Limit        int     `json:"limit,omitempty"`
}

// LinkageGap is a person with no identity under a target source whose
// child carries one: a candidate for cross-provider linkage discovery.
// The child's record on the target provider names its parents, so
// fetching it can reveal the missing identity.
type LinkageGap struct {
	ParentID        string     `json:"parent_id"`
	ParentName      string     `json:"parent_name"`
	Role            ParentRole `json:"parent_role"`
	ChildID         string     `json:"child_id"`
	ChildExternalID string     `json:"child_external_id"`
}

// SearchResult is one full-text search hit. Rank is the bm25 score, lower
// is better.
type SearchResult struct {
	PersonID    string  `json:"person_id"`
	DisplayName string  `json:"display_name"`
	Snippet     string  `json:"snippet,omitempty"`
	Rank        float64 `json:"rank"`
}

// Statistics summarizes store contents for reporting.
type Statistics struct {
	Persons     int `json:"persons"`
	Identities  int `json:"identities"`
	ParentEdges int `json:"parent_edges"`
	SpouseEdges int `json:"spouse_edges"`
	Events      int `json:"events"`
	Claims      int `json:"claims"`
	Databases   int `json:"databases"`
	Favorites   int `json:"favorites"`
	Blobs       int `json:"blobs"`
	Media       int `json:"media"`
	Places      int `json:"places"`
}
