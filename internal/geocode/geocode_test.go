package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomantic/SparseTree-sub004/internal/idgen"
	"github.com/atomantic/SparseTree-sub004/internal/storage/sqlite"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// geoServer is a Nominatim stand-in: canned results per query string,
// request log, optional leading 429s.
type geoServer struct {
	mu        sync.Mutex
	results   map[string][]map[string]string
	queries   []string
	times     []time.Time
	rateLimit int // remaining 429 responses before serving
	status    int // non-zero forces this status for every request
}

func (g *geoServer) handler(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	q := r.URL.Query().Get("q")
	g.queries = append(g.queries, q)
	g.times = append(g.times, time.Now())
	status := g.status
	if g.rateLimit > 0 {
		g.rateLimit--
		status = http.StatusTooManyRequests
	}
	results := g.results[q]
	g.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if results == nil {
		results = []map[string]string{}
	}
	_ = json.NewEncoder(w).Encode(results)
}

func (g *geoServer) queryLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.queries...)
}

func newTestClient(t *testing.T) (*Client, *geoServer, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	g := &geoServer{results: make(map[string][]map[string]string)}
	server := httptest.NewServer(http.HandlerFunc(g.handler))
	t.Cleanup(server.Close)

	c := New(st, server.URL, "sparsetree-test", nil)
	c.Interval = 0
	c.RetryWait = time.Millisecond
	return c, g, st
}

func TestLookupResolvesAndCaches(t *testing.T) {
	c, g, st := newTestClient(t)
	g.results["paris, france"] = []map[string]string{
		{"lat": "48.8566", "lon": "2.3522", "display_name": "Paris, Île-de-France, France"},
	}

	row, err := c.Lookup(context.Background(), "  Paris,   France ")
	require.NoError(t, err)
	assert.Equal(t, types.GeocodeResolved, row.Status)
	require.NotNil(t, row.Lat)
	assert.InDelta(t, 48.8566, *row.Lat, 1e-6)
	assert.InDelta(t, 2.3522, *row.Lng, 1e-6)
	assert.Equal(t, "Paris, Île-de-France, France", row.DisplayName)

	// Cached: no second request, same normalized key.
	again, err := c.Lookup(context.Background(), "PARIS, FRANCE")
	require.NoError(t, err)
	assert.Equal(t, types.GeocodeResolved, again.Status)
	assert.Len(t, g.queryLog(), 1)

	cached, err := st.GetPlaceGeocode(context.Background(), "paris, france")
	require.NoError(t, err)
	assert.Equal(t, types.GeocodeResolved, cached.Status)
}

func TestLookupBroadensProgressively(t *testing.T) {
	c, g, _ := newTestClient(t)
	g.results["brittany, france"] = []map[string]string{
		{"lat": "48.2020", "lon": "-2.9326", "display_name": "Brittany, France"},
	}

	row, err := c.Lookup(context.Background(), "Saint-Malo, Brittany, France")
	require.NoError(t, err)
	assert.Equal(t, types.GeocodeResolved, row.Status)
	assert.Equal(t, "Brittany, France", row.DisplayName)
	assert.Equal(t, []string{"saint-malo, brittany, france", "brittany, france"}, g.queryLog())
}

func TestLookupStopsBroadeningAtTwoSegments(t *testing.T) {
	c, g, _ := newTestClient(t)

	row, err := c.Lookup(context.Background(), "no, such, place, anywhere")
	require.NoError(t, err)
	assert.Equal(t, types.GeocodeNotFound, row.Status)
	// Four segments tried down to two, never one.
	assert.Equal(t, []string{
		"no, such, place, anywhere",
		"such, place, anywhere",
		"place, anywhere",
	}, g.queryLog())

	// not_found is settled: no further requests.
	_, err = c.Lookup(context.Background(), "no, such, place, anywhere")
	require.NoError(t, err)
	assert.Len(t, g.queryLog(), 3)
}

func TestLookupRetriesOnceAfter429(t *testing.T) {
	c, g, _ := newTestClient(t)
	g.rateLimit = 1
	g.results["reykjavik, iceland"] = []map[string]string{
		{"lat": "64.1466", "lon": "-21.9426", "display_name": "Reykjavík, Iceland"},
	}

	row, err := c.Lookup(context.Background(), "Reykjavik, Iceland")
	require.NoError(t, err)
	assert.Equal(t, types.GeocodeResolved, row.Status)
	assert.Len(t, g.queryLog(), 2)
}

func TestLookupGivesUpAfterSecond429(t *testing.T) {
	c, g, st := newTestClient(t)
	g.rateLimit = 2

	_, err := c.Lookup(context.Background(), "Somewhere, Someland")
	require.Error(t, err)

	// The failure is recorded as an error row, retried next run.
	row, getErr := st.GetPlaceGeocode(context.Background(), "somewhere, someland")
	require.NoError(t, getErr)
	assert.Equal(t, types.GeocodeError, row.Status)

	g.results["somewhere, someland"] = []map[string]string{
		{"lat": "1", "lon": "2", "display_name": "Somewhere"},
	}
	recovered, err := c.Lookup(context.Background(), "Somewhere, Someland")
	require.NoError(t, err)
	assert.Equal(t, types.GeocodeResolved, recovered.Status)
}

func TestResetNotFound(t *testing.T) {
	c, g, st := newTestClient(t)

	_, err := c.Lookup(context.Background(), "Atlantis, Ocean")
	require.NoError(t, err)

	n, err := c.ResetNotFound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	row, err := st.GetPlaceGeocode(context.Background(), "atlantis, ocean")
	require.NoError(t, err)
	assert.Equal(t, types.GeocodePending, row.Status)

	// Pending is not settled, so the next lookup queries again.
	g.results["atlantis, ocean"] = []map[string]string{
		{"lat": "0", "lon": "0", "display_name": "Atlantis"},
	}
	recovered, err := c.Lookup(context.Background(), "Atlantis, Ocean")
	require.NoError(t, err)
	assert.Equal(t, types.GeocodeResolved, recovered.Status)
}

func TestSerialRateLimitMinimumGap(t *testing.T) {
	c, g, _ := newTestClient(t)
	c.Interval = 15 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Lookup(context.Background(), fmt.Sprintf("place %d, country", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	g.mu.Lock()
	times := append([]time.Time(nil), g.times...)
	g.mu.Unlock()
	require.Len(t, times, 10)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), c.Interval,
			"requests %d and %d too close", i-1, i)
	}
}

func TestBatchRunner(t *testing.T) {
	c, g, st := newTestClient(t)
	ctx := context.Background()

	person := &types.Person{ID: idgen.New(), DisplayName: "Event Haver"}
	require.NoError(t, st.CreatePerson(ctx, person))
	places := map[types.EventType]string{
		types.EventBirth: "Lyon, France",
		types.EventDeath: "Nowhere, Void",
	}
	for eventType, place := range places {
		require.NoError(t, st.AddEvent(ctx, &types.VitalEvent{
			PersonID: person.ID,
			Type:     eventType,
			Place:    place,
			Source:   types.SourceFamilySearch,
		}))
	}
	g.results["lyon, france"] = []map[string]string{
		{"lat": "45.76", "lon": "4.84", "display_name": "Lyon, France"},
	}

	var events []types.Progress
	require.NoError(t, c.Runner()(ctx, func(p types.Progress) { events = append(events, p) }))

	require.Len(t, events, 2)
	last := events[len(events)-1]
	assert.Equal(t, 2, last.Total)
	require.NotNil(t, last.Counters)
	assert.Equal(t, 1, last.Counters.Discovered)
	assert.Equal(t, 1, last.Counters.Skipped)

	lyon, err := st.GetPlaceGeocode(ctx, "lyon, france")
	require.NoError(t, err)
	assert.Equal(t, types.GeocodeResolved, lyon.Status)
	nowhere, err := st.GetPlaceGeocode(ctx, "nowhere, void")
	require.NoError(t, err)
	assert.Equal(t, types.GeocodeNotFound, nowhere.Status)
}

func TestBatchRunnerCancellation(t *testing.T) {
	c, _, st := newTestClient(t)
	ctx := context.Background()

	person := &types.Person{ID: idgen.New(), DisplayName: "Event Haver"}
	require.NoError(t, st.CreatePerson(ctx, person))
	for i := 0; i < 5; i++ {
		require.NoError(t, st.AddEvent(ctx, &types.VitalEvent{
			PersonID: person.ID,
			Type:     types.EventType(fmt.Sprintf("event-%d", i)),
			Place:    fmt.Sprintf("town %d, country", i),
			Source:   types.SourceFamilySearch,
		}))
	}

	runCtx, cancel := context.WithCancel(ctx)
	var seen int
	err := c.Runner()(runCtx, func(p types.Progress) {
		seen++
		if seen == 2 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, seen, 3)
}
