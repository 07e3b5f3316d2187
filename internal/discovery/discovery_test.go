package discovery

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomantic/SparseTree-sub004/internal/identity"
	"github.com/atomantic/SparseTree-sub004/internal/idgen"
	"github.com/atomantic/SparseTree-sub004/internal/provider"
	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/storage/sqlite"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(ctx context.Context, source types.Source, externalID string) ([]byte, error) {
	raw, ok := m[externalID]
	if !ok {
		return nil, &provider.Error{Kind: provider.KindPermanent, Code: 404, Message: "no such person"}
	}
	return raw, nil
}

func (m mapFetcher) add(t *testing.T, id, name, father, mother string) {
	t.Helper()
	tree := map[string]any{
		"id":      id,
		"display": map[string]any{"name": name},
	}
	if father != "" {
		tree["father"] = map[string]any{"resourceId": father}
	}
	if mother != "" {
		tree["mother"] = map[string]any{"resourceId": mother}
	}
	raw, err := json.Marshal(tree)
	require.NoError(t, err)
	m[id] = raw
}

// fixture builds the canonical gap scenario: a child linked to the
// target provider whose parents are local-only.
type fixture struct {
	store    *sqlite.Store
	finder   *Finder
	fetcher  mapFetcher
	dbID     string
	childID  string
	fatherID string
	motherID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fx := &fixture{store: st, fetcher: make(mapFetcher)}
	fx.childID = fx.createPerson(t, "Louis Hébert")
	fx.fatherID = fx.createPerson(t, "Nicolas Hébert")
	fx.motherID = fx.createPerson(t, "Jacqueline Pajot")

	require.NoError(t, st.AddIdentity(ctx, &types.ExternalIdentity{
		PersonID: fx.childID, Source: types.SourceFamilySearch, ExternalID: "C-1", Confidence: 1,
	}))
	require.NoError(t, st.AddParentEdge(ctx, &types.ParentEdge{
		ChildID: fx.childID, ParentID: fx.fatherID, Role: types.RoleFather, Source: types.SourceUser,
	}))
	require.NoError(t, st.AddParentEdge(ctx, &types.ParentEdge{
		ChildID: fx.childID, ParentID: fx.motherID, Role: types.RoleMother, Source: types.SourceUser,
	}))

	db := &types.DatabaseInfo{Name: "heberts", RootID: fx.childID}
	require.NoError(t, st.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.EnsureDatabase(ctx, db); err != nil {
			return err
		}
		return tx.ReplaceMembers(ctx, db.ID, []*types.DatabaseMember{
			{PersonID: fx.childID, IsRoot: true, Generation: 0},
			{PersonID: fx.fatherID, Generation: 1},
			{PersonID: fx.motherID, Generation: 1},
		})
	}))
	fx.dbID = db.ID

	fx.finder = NewFinder(st, identity.NewMap(st), fx.fetcher, nil)
	fx.finder.Delays = &provider.Delays{}
	return fx
}

func (fx *fixture) createPerson(t *testing.T, name string) string {
	t.Helper()
	p := &types.Person{ID: idgen.New(), DisplayName: name}
	require.NoError(t, fx.store.CreatePerson(context.Background(), p))
	return p.ID
}

func TestFindParentLinkageGaps(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	gaps, err := fx.store.FindParentLinkageGaps(ctx, fx.dbID, types.SourceFamilySearch)
	require.NoError(t, err)
	require.Len(t, gaps, 2)

	byParent := make(map[string]*types.LinkageGap)
	for _, g := range gaps {
		byParent[g.ParentID] = g
		assert.Equal(t, fx.childID, g.ChildID)
		assert.Equal(t, "C-1", g.ChildExternalID)
	}
	assert.Equal(t, types.RoleFather, byParent[fx.fatherID].Role)
	assert.Equal(t, types.RoleMother, byParent[fx.motherID].Role)

	// Linking the father settles his gap.
	require.NoError(t, fx.store.AddIdentity(ctx, &types.ExternalIdentity{
		PersonID: fx.fatherID, Source: types.SourceFamilySearch, ExternalID: "F-1", Confidence: 1,
	}))
	gaps, err = fx.store.FindParentLinkageGaps(ctx, fx.dbID, types.SourceFamilySearch)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, fx.motherID, gaps[0].ParentID)

	// Persons outside the database never surface.
	gaps, err = fx.store.FindParentLinkageGaps(ctx, "no-such-db", types.SourceFamilySearch)
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestDiscoverGapNameMatch(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	// Accents and case differ; the fuzzy match still holds.
	fx.fetcher.add(t, "C-1", "Louis Hébert", "F-1", "M-1")
	fx.fetcher.add(t, "F-1", "nicolas hebert", "", "")

	gaps, err := fx.store.FindParentLinkageGaps(ctx, fx.dbID, types.SourceFamilySearch)
	require.NoError(t, err)
	var fatherGap *types.LinkageGap
	for _, g := range gaps {
		if g.ParentID == fx.fatherID {
			fatherGap = g
		}
	}
	require.NotNil(t, fatherGap)

	match, err := fx.finder.DiscoverGap(ctx, types.SourceFamilySearch, fatherGap)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "F-1", match.ExternalID)
	assert.Equal(t, ConfidenceNameMatch, match.Confidence)

	id, err := fx.store.GetCurrentIdentity(ctx, fx.fatherID, types.SourceFamilySearch)
	require.NoError(t, err)
	assert.Equal(t, "F-1", id.ExternalID)
	assert.Equal(t, 1.0, id.Confidence)
}

func TestDiscoverGapRoleOnlyMatch(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.fetcher.add(t, "C-1", "Louis Hébert", "F-1", "M-1")
	fx.fetcher.add(t, "M-1", "Someone Unrecognizable", "", "")

	gaps, err := fx.store.FindParentLinkageGaps(ctx, fx.dbID, types.SourceFamilySearch)
	require.NoError(t, err)
	var motherGap *types.LinkageGap
	for _, g := range gaps {
		if g.ParentID == fx.motherID {
			motherGap = g
		}
	}
	require.NotNil(t, motherGap)

	match, err := fx.finder.DiscoverGap(ctx, types.SourceFamilySearch, motherGap)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "M-1", match.ExternalID)
	assert.Equal(t, ConfidenceRoleOnly, match.Confidence)

	id, err := fx.store.GetCurrentIdentity(ctx, fx.motherID, types.SourceFamilySearch)
	require.NoError(t, err)
	assert.Equal(t, 0.7, id.Confidence)
}

func TestDiscoverGapNeverStealsIdentities(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.fetcher.add(t, "C-1", "Louis Hébert", "F-1", "")
	fx.fetcher.add(t, "F-1", "Nicolas Hébert", "", "")

	// F-1 already belongs to an unrelated person.
	other := fx.createPerson(t, "Unrelated Nicolas")
	require.NoError(t, fx.store.AddIdentity(ctx, &types.ExternalIdentity{
		PersonID: other, Source: types.SourceFamilySearch, ExternalID: "F-1", Confidence: 1,
	}))

	gaps, err := fx.store.FindParentLinkageGaps(ctx, fx.dbID, types.SourceFamilySearch)
	require.NoError(t, err)
	var fatherGap *types.LinkageGap
	for _, g := range gaps {
		if g.ParentID == fx.fatherID {
			fatherGap = g
		}
	}
	require.NotNil(t, fatherGap)

	match, err := fx.finder.DiscoverGap(ctx, types.SourceFamilySearch, fatherGap)
	require.NoError(t, err)
	assert.Nil(t, match)
	_, err = fx.store.GetCurrentIdentity(ctx, fx.fatherID, types.SourceFamilySearch)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBulkDiscoverRunner(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.fetcher.add(t, "C-1", "Louis Hébert", "F-1", "M-1")
	fx.fetcher.add(t, "F-1", "Nicolas Hébert", "", "")
	fx.fetcher.add(t, "M-1", "Jacqueline Pajot", "", "")

	var events []types.Progress
	run := fx.finder.Runner(fx.dbID, types.SourceFamilySearch)
	require.NoError(t, run(ctx, func(p types.Progress) { events = append(events, p) }))

	require.Len(t, events, 2)
	last := events[len(events)-1]
	require.NotNil(t, last.Counters)
	assert.Equal(t, 2, last.Counters.Discovered)
	assert.Equal(t, 0, last.Counters.Errors)

	for _, personID := range []string{fx.fatherID, fx.motherID} {
		id, err := fx.store.GetCurrentIdentity(ctx, personID, types.SourceFamilySearch)
		require.NoError(t, err)
		assert.Equal(t, 1.0, id.Confidence)
	}

	// Everything linked: a second run finds no gaps and emits nothing.
	events = nil
	require.NoError(t, run(ctx, func(p types.Progress) { events = append(events, p) }))
	assert.Empty(t, events)
}
