// Package storage defines the interface to the embedded graph store.
//
// The concrete implementation lives in the sqlite sub-package. Consumers
// (crawler, identity map, graph algorithms, CLI) depend on this interface
// rather than the concrete type so tests can substitute fakes.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned on unique-constraint violations; the message
// names the offending key.
var ErrConflict = errors.New("conflict")

// ErrInvalidID is returned for malformed identifiers.
var ErrInvalidID = errors.New("invalid ID")

// ErrBlobInUse is returned when deleting a blob that media rows still
// reference.
var ErrBlobInUse = errors.New("blob in use")

// ErrCorrupted is returned when the database fails its integrity probe.
// It is fatal: callers should close cleanly and exit.
var ErrCorrupted = errors.New("store corrupted")

// ErrStoreFull is returned when the underlying filesystem is out of
// space. Fatal, same handling as ErrCorrupted.
var ErrStoreFull = errors.New("store full")

// Store is the interface satisfied by *sqlite.Store.
type Store interface {
	// Persons
	CreatePerson(ctx context.Context, person *types.Person) error
	GetPerson(ctx context.Context, id string) (*types.Person, error)
	UpdatePerson(ctx context.Context, id string, updates map[string]interface{}) error
	ListPersons(ctx context.Context, filter types.PersonFilter) ([]*types.Person, error)
	SearchPersons(ctx context.Context, query string, limit int) ([]*types.SearchResult, error)

	// External identities
	AddIdentity(ctx context.Context, identity *types.ExternalIdentity) error
	ListIdentities(ctx context.Context, personID string) ([]*types.ExternalIdentity, error)
	GetCurrentIdentity(ctx context.Context, personID string, source types.Source) (*types.ExternalIdentity, error)
	FindPersonByExternalID(ctx context.Context, source types.Source, externalID string) (string, error)
	FindPersonByExternalIDAnySource(ctx context.Context, externalID string) (string, error)
	FindParentLinkageGaps(ctx context.Context, dbID string, source types.Source) ([]*types.LinkageGap, error)

	// Edges
	AddParentEdge(ctx context.Context, edge *types.ParentEdge) error
	GetParents(ctx context.Context, personID string) ([]*types.ParentEdge, error)
	GetChildren(ctx context.Context, personID string) ([]*types.ParentEdge, error)
	AddSpouseEdge(ctx context.Context, edge *types.SpouseEdge) error
	GetSpouses(ctx context.Context, personID string) ([]*types.SpouseEdge, error)

	// Vital events and claims
	AddEvent(ctx context.Context, event *types.VitalEvent) error
	GetEvents(ctx context.Context, personID string) ([]*types.VitalEvent, error)
	AddClaim(ctx context.Context, claim *types.Claim) error
	GetClaims(ctx context.Context, personID string) ([]*types.Claim, error)

	// Databases, membership, favorites
	CreateDatabase(ctx context.Context, db *types.DatabaseInfo) error
	GetDatabase(ctx context.Context, name string) (*types.DatabaseInfo, error)
	ListDatabases(ctx context.Context) ([]*types.DatabaseInfo, error)
	DeleteDatabase(ctx context.Context, name string) error
	GetMembers(ctx context.Context, dbID string) ([]*types.DatabaseMember, error)
	AddFavorite(ctx context.Context, fav *types.Favorite) error
	RemoveFavorite(ctx context.Context, dbID, personID string) error
	ListFavorites(ctx context.Context, dbID string) ([]*types.Favorite, error)

	// Geocode cache
	GetPlaceGeocode(ctx context.Context, placeText string) (*types.PlaceGeocode, error)
	UpsertPlaceGeocode(ctx context.Context, row *types.PlaceGeocode) error
	ListPlacesByStatus(ctx context.Context, status types.GeocodeStatus, limit int) ([]*types.PlaceGeocode, error)
	ListUngeocodedPlaces(ctx context.Context, limit int) ([]string, error)
	ResetNotFoundPlaces(ctx context.Context) (int64, error)

	// Blob CAS and media
	StoreBlob(ctx context.Context, data []byte, mimeType string) (hash string, isNew bool, err error)
	OpenBlob(ctx context.Context, hash string) (io.ReadCloser, *types.Blob, error)
	DeleteBlob(ctx context.Context, hash string) error
	GCBlobs(ctx context.Context) (int, error)
	AddMedia(ctx context.Context, media *types.Media) error
	ListMedia(ctx context.Context, personID string) ([]*types.Media, error)

	// Maintenance
	GetStatistics(ctx context.Context) (*types.Statistics, error)
	CheckIntegrity(ctx context.Context) ([]string, error)
	Backup(ctx context.Context, destPath string) error

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Lifecycle
	Path() string
	Close() error
}

// Tx is the slice of Store available inside RunInTransaction. All writes
// performed through it commit or roll back together.
type Tx interface {
	CreatePerson(ctx context.Context, person *types.Person) error
	UpdatePerson(ctx context.Context, id string, updates map[string]interface{}) error
	GetPerson(ctx context.Context, id string) (*types.Person, error)
	AddIdentity(ctx context.Context, identity *types.ExternalIdentity) error
	FindPersonByExternalID(ctx context.Context, source types.Source, externalID string) (string, error)
	AddParentEdge(ctx context.Context, edge *types.ParentEdge) error
	AddParentEdges(ctx context.Context, edges []*types.ParentEdge) error
	AddSpouseEdge(ctx context.Context, edge *types.SpouseEdge) error
	AddEvent(ctx context.Context, event *types.VitalEvent) error
	AddClaim(ctx context.Context, claim *types.Claim) error
	EnsureDatabase(ctx context.Context, db *types.DatabaseInfo) error
	ReplaceMembers(ctx context.Context, dbID string, members []*types.DatabaseMember) error
}
