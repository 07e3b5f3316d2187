package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomantic/SparseTree-sub004/internal/idgen"
	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreatePerson(t *testing.T, s *Store, name string) *types.Person {
	t.Helper()
	p := &types.Person{
		ID:          idgen.New(),
		DisplayName: name,
		Gender:      types.GenderUnknown,
	}
	require.NoError(t, s.CreatePerson(context.Background(), p))
	return p
}

func TestPersonRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &types.Person{
		ID:          idgen.New(),
		DisplayName: "Marie-Louise Tremblay",
		BirthName:   "Marie-Louise Gagnon",
		Gender:      types.GenderFemale,
		Bio:         "Settled in Charlesbourg around 1680.",
	}
	require.NoError(t, s.CreatePerson(ctx, p))

	got, err := s.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.DisplayName, got.DisplayName)
	assert.Equal(t, p.BirthName, got.BirthName)
	assert.Equal(t, types.GenderFemale, got.Gender)
	assert.False(t, got.Living)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetPerson(ctx, "01arz3ndektsv4rrffq69g5fav")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdatePerson(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustCreatePerson(t, s, "Jean Tremblay")

	err := s.UpdatePerson(ctx, p.ID, map[string]interface{}{
		"display_name": "Jean-Baptiste Tremblay",
		"living":       true,
	})
	require.NoError(t, err)

	got, err := s.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jean-Baptiste Tremblay", got.DisplayName)
	assert.True(t, got.Living)

	err = s.UpdatePerson(ctx, p.ID, map[string]interface{}{"person_id": "nope"})
	assert.Error(t, err, "renaming the primary key must be refused")
}

func TestFTSHasExactlyOneRowPerPerson(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := mustCreatePerson(t, s, "Genevieve Archambault")
	// Updates must replace, not duplicate, the FTS row.
	require.NoError(t, s.UpdatePerson(ctx, p.ID, map[string]interface{}{"bio": "midwife in Montreal"}))
	require.NoError(t, s.UpdatePerson(ctx, p.ID, map[string]interface{}{"birth_name": "Genevieve Petit"}))

	var ftsRows int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM person_fts`).Scan(&ftsRows))
	assert.Equal(t, 1, ftsRows)

	results, err := s.SearchPersons(ctx, `"Genevieve Archambault"`, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, p.ID, results[0].PersonID)

	// The bio lands in the index too, in the same transaction.
	results, err = s.SearchPersons(ctx, "midwife", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, p.ID, results[0].PersonID)
}

func TestSearchFindsAliasesAndOccupations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustCreatePerson(t, s, "Pierre Boucher")

	require.NoError(t, s.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.AddClaim(ctx, &types.Claim{
			PersonID: p.ID, Predicate: types.PredicateOccupation,
			ValueText: "seigneur", Source: types.SourceFamilySearch,
		}); err != nil {
			return err
		}
		// Claims land in FTS when the person row is refreshed.
		return tx.UpdatePerson(ctx, p.ID, map[string]interface{}{"display_name": p.DisplayName})
	}))

	results, err := s.SearchPersons(ctx, "seigneur", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, p.ID, results[0].PersonID)
}

func TestIdentityRegistrationAndMergeDemotion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustCreatePerson(t, s, "Louis Hebert")

	first := &types.ExternalIdentity{
		PersonID: p.ID, Source: types.SourceFamilySearch, ExternalID: "KWZQ-P8D", Confidence: 1.0,
	}
	require.NoError(t, s.AddIdentity(ctx, first))

	// Provider merged the record into a new ID; register the successor.
	second := &types.ExternalIdentity{
		PersonID: p.ID, Source: types.SourceFamilySearch, ExternalID: "LH7T-2QX", Confidence: 1.0,
	}
	require.NoError(t, s.AddIdentity(ctx, second))

	current, err := s.GetCurrentIdentity(ctx, p.ID, types.SourceFamilySearch)
	require.NoError(t, err)
	assert.Equal(t, "LH7T-2QX", current.ExternalID)

	all, err := s.ListIdentities(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, all, 2, "the demoted identity stays for historical lookup")
	assert.Less(t, all[1].Confidence, all[0].Confidence)

	// The old ID still resolves.
	gotID, err := s.FindPersonByExternalID(ctx, types.SourceFamilySearch, "KWZQ-P8D")
	require.NoError(t, err)
	assert.Equal(t, p.ID, gotID)
}

func TestIdentityConflictAcrossPersons(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustCreatePerson(t, s, "Person A")
	b := mustCreatePerson(t, s, "Person B")

	require.NoError(t, s.AddIdentity(ctx, &types.ExternalIdentity{
		PersonID: a.ID, Source: types.SourceWikiTree, ExternalID: "Tremblay-1",
	}))
	err := s.AddIdentity(ctx, &types.ExternalIdentity{
		PersonID: b.ID, Source: types.SourceWikiTree, ExternalID: "Tremblay-1",
	})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestParentEdgesAndReferentialIntegrity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	child := mustCreatePerson(t, s, "Child")
	father := mustCreatePerson(t, s, "Father")

	edge := &types.ParentEdge{
		ChildID: child.ID, ParentID: father.ID,
		Role: types.RoleFather, Source: types.SourceFamilySearch,
	}
	require.NoError(t, s.AddParentEdge(ctx, edge))
	// Idempotent re-add.
	require.NoError(t, s.AddParentEdge(ctx, edge))

	parents, err := s.GetParents(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, father.ID, parents[0].ParentID)

	children, err := s.GetChildren(ctx, father.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)

	// Edges to absent persons are rejected by the foreign key.
	err = s.AddParentEdge(ctx, &types.ParentEdge{
		ChildID: child.ID, ParentID: idgen.New(),
		Role: types.RoleMother, Source: types.SourceFamilySearch,
	})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestSpouseEdgeCanonicalOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustCreatePerson(t, s, "Spouse A")
	b := mustCreatePerson(t, s, "Spouse B")

	// Insert in both orders; only one row should exist.
	require.NoError(t, s.AddSpouseEdge(ctx, &types.SpouseEdge{
		Person1ID: b.ID, Person2ID: a.ID, Source: types.SourceAncestry,
	}))
	require.NoError(t, s.AddSpouseEdge(ctx, &types.SpouseEdge{
		Person1ID: a.ID, Person2ID: b.ID, Source: types.SourceAncestry,
	}))

	spouses, err := s.GetSpouses(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, spouses, 1)
	assert.Less(t, spouses[0].Person1ID, spouses[0].Person2ID)
}

func TestEventsAndClaims(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustCreatePerson(t, s, "Francois Allard")

	year := 1637
	require.NoError(t, s.AddEvent(ctx, &types.VitalEvent{
		PersonID: p.ID, Type: types.EventBirth,
		DateOriginal: "about 1637", DateYear: &year,
		Place:  "Blacqueville, Normandie, France",
		Source: types.SourceFamilySearch,
	}))
	// Same type from a second source is allowed.
	require.NoError(t, s.AddEvent(ctx, &types.VitalEvent{
		PersonID: p.ID, Type: types.EventBirth,
		DateOriginal: "1637", DateYear: &year,
		Source: types.SourceWikiTree,
	}))

	events, err := s.GetEvents(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	require.NoError(t, s.AddClaim(ctx, &types.Claim{
		PersonID: p.ID, Predicate: types.PredicateOccupation,
		ValueText: "farmer", Source: types.SourceFamilySearch,
	}))
	claims, err := s.GetClaims(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, claims, 1)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := idgen.New()
	err := s.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.CreatePerson(ctx, &types.Person{ID: id, DisplayName: "Ghost"}); err != nil {
			return err
		}
		return fmt.Errorf("synthetic failure")
	})
	require.Error(t, err)

	_, err = s.GetPerson(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound, "rolled-back person must not exist")

	var ftsRows int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM person_fts`).Scan(&ftsRows))
	assert.Zero(t, ftsRows, "FTS row must roll back with the person row")
}

func TestDatabaseMembershipAndCascadingDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := mustCreatePerson(t, s, "Root Person")
	parent := mustCreatePerson(t, s, "Root Parent")
	shared := mustCreatePerson(t, s, "Shared Person")

	db := &types.DatabaseInfo{Name: "lineage", RootID: root.ID, MaxGenerations: 5}
	require.NoError(t, s.CreateDatabase(ctx, db))

	other := &types.DatabaseInfo{Name: "other", RootID: shared.ID}
	require.NoError(t, s.CreateDatabase(ctx, other))

	require.NoError(t, s.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.ReplaceMembers(ctx, db.ID, []*types.DatabaseMember{
			{DBID: db.ID, PersonID: root.ID, IsRoot: true, Generation: 0},
			{DBID: db.ID, PersonID: parent.ID, Generation: 1},
			{DBID: db.ID, PersonID: shared.ID, Generation: 1},
		})
	}))
	require.NoError(t, s.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.ReplaceMembers(ctx, other.ID, []*types.DatabaseMember{
			{DBID: other.ID, PersonID: shared.ID, IsRoot: true, Generation: 0},
		})
	}))

	members, err := s.GetMembers(ctx, db.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.True(t, members[0].IsRoot)
	assert.Equal(t, 0, members[0].Generation)

	require.NoError(t, s.DeleteDatabase(ctx, "lineage"))

	// Sole members are gone; the shared person survives.
	_, err = s.GetPerson(ctx, root.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetPerson(ctx, parent.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetPerson(ctx, shared.ID)
	assert.NoError(t, err)

	problems, err := s.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestFavorites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	root := mustCreatePerson(t, s, "Root")
	fav := mustCreatePerson(t, s, "Interesting Ancestor")

	db := &types.DatabaseInfo{Name: "d", RootID: root.ID}
	require.NoError(t, s.CreateDatabase(ctx, db))
	require.NoError(t, s.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.ReplaceMembers(ctx, db.ID, []*types.DatabaseMember{
			{DBID: db.ID, PersonID: root.ID, IsRoot: true},
			{DBID: db.ID, PersonID: fav.ID, Generation: 3},
		})
	}))

	require.NoError(t, s.AddFavorite(ctx, &types.Favorite{
		DBID: db.ID, PersonID: fav.ID,
		WhyInteresting: "fought at Carillon",
		Tags:           []string{"military", "1758"},
	}))

	favs, err := s.ListFavorites(ctx, db.ID)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, []string{"military", "1758"}, favs[0].Tags)

	// Favoriting a non-member is refused.
	outsider := mustCreatePerson(t, s, "Outsider")
	err = s.AddFavorite(ctx, &types.Favorite{DBID: db.ID, PersonID: outsider.ID})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.RemoveFavorite(ctx, db.ID, fav.ID))
	favs, err = s.ListFavorites(ctx, db.ID)
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func TestBlobStoreIdempotence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	data := []byte("portrait bytes")

	hash1, isNew, err := s.StoreBlob(ctx, data, "image/jpeg")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Len(t, hash1, 64)

	hash2, isNew, err := s.StoreBlob(ctx, data, "image/jpeg")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, hash1, hash2)

	// Exactly one file on disk under the fan-out directory.
	entries, err := os.ReadDir(filepath.Join(s.BlobRoot(), hash1[:2]))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	rc, blob, err := s.OpenBlob(ctx, hash1)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	assert.Equal(t, int64(len(data)), blob.SizeBytes)
	assert.Equal(t, "image/jpeg", blob.MimeType)
}

func TestBlobDeleteRefusedWhileReferenced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustCreatePerson(t, s, "Pictured Person")

	hash, _, err := s.StoreBlob(ctx, []byte("photo"), "image/png")
	require.NoError(t, err)
	require.NoError(t, s.AddMedia(ctx, &types.Media{
		PersonID: p.ID, BlobHash: hash, Source: types.SourceAncestry, IsPrimary: true,
	}))

	err = s.DeleteBlob(ctx, hash)
	assert.ErrorIs(t, err, storage.ErrBlobInUse)

	// GC skips referenced blobs, collects orphans.
	orphan, _, err := s.StoreBlob(ctx, []byte("orphan"), "text/plain")
	require.NoError(t, err)
	removed, err := s.GCBlobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, _, err = s.OpenBlob(ctx, orphan)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, _, err = s.OpenBlob(ctx, hash)
	assert.NoError(t, err)
}

func TestGeocodeCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lat, lng := 48.2020471, -2.9326435
	require.NoError(t, s.UpsertPlaceGeocode(ctx, &types.PlaceGeocode{
		PlaceText: "brittany, france", Lat: &lat, Lng: &lng,
		DisplayName: "Brittany, France", Status: types.GeocodeResolved,
	}))
	require.NoError(t, s.UpsertPlaceGeocode(ctx, &types.PlaceGeocode{
		PlaceText: "atlantis", Status: types.GeocodeNotFound,
	}))

	got, err := s.GetPlaceGeocode(ctx, "brittany, france")
	require.NoError(t, err)
	assert.Equal(t, types.GeocodeResolved, got.Status)
	require.NotNil(t, got.Lat)
	assert.InDelta(t, lat, *got.Lat, 1e-9)

	n, err := s.ResetNotFoundPlaces(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	got, err = s.GetPlaceGeocode(ctx, "atlantis")
	require.NoError(t, err)
	assert.Equal(t, types.GeocodePending, got.Status)
}

func TestListUngeocodedPlaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustCreatePerson(t, s, "Traveler")

	require.NoError(t, s.AddEvent(ctx, &types.VitalEvent{
		PersonID: p.ID, Type: types.EventBirth,
		Place: "Quebec, Canada", Source: types.SourceFamilySearch,
	}))
	require.NoError(t, s.AddEvent(ctx, &types.VitalEvent{
		PersonID: p.ID, Type: types.EventDeath,
		Place: "Brittany, France", Source: types.SourceFamilySearch,
	}))
	require.NoError(t, s.UpsertPlaceGeocode(ctx, &types.PlaceGeocode{
		PlaceText: "brittany, france", Status: types.GeocodeResolved,
	}))

	places, err := s.ListUngeocodedPlaces(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Quebec, Canada"}, places)
}

func TestBackup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := mustCreatePerson(t, s, "Backed Up")

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, s.CheckpointWAL(ctx))
	require.NoError(t, s.Backup(ctx, dest))

	restored, err := New(ctx, dest)
	require.NoError(t, err)
	defer func() { _ = restored.Close() }()

	got, err := restored.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Backed Up", got.DisplayName)

	// Second backup to the same path is refused.
	assert.Error(t, s.Backup(ctx, dest))
}

func TestGetStatistics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreatePerson(t, s, "One")
	mustCreatePerson(t, s, "Two")

	stats, err := s.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Persons)
	assert.Zero(t, stats.ParentEdges)
}

func TestCloseIdempotent(t *testing.T) {
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "close.db"))
	require.NoError(t, err)

	assert.False(t, s.IsClosed())
	require.NoError(t, s.Close())
	assert.True(t, s.IsClosed())
	require.NoError(t, s.Close())
}

func TestInMemoryStore(t *testing.T) {
	s, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	p := mustCreatePerson(t, s, "Ephemeral")
	got, err := s.GetPerson(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ephemeral", got.DisplayName)
}
