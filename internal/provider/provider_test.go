package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

func TestIsDeletedMessage(t *testing.T) {
	assert.True(t, IsDeletedMessage("Unable to read Person KWZQ-P8D"))
	assert.True(t, IsDeletedMessage("error: unable to read person"))
	assert.False(t, IsDeletedMessage("person not modified"))
}

func TestIsKind(t *testing.T) {
	err := &Error{Kind: KindTransient, Code: 503, Message: "Service Unavailable"}
	assert.True(t, IsKind(err, KindTransient))
	assert.False(t, IsKind(err, KindAuth))
	assert.False(t, IsKind(context.Canceled, KindTransient))
}

func TestDefaultDelays(t *testing.T) {
	d := DefaultDelays(types.SourceFamilySearch)
	assert.Equal(t, 500*time.Millisecond, d.Min)
	assert.Equal(t, 1500*time.Millisecond, d.Max)

	d = DefaultDelays(types.SourceAncestry)
	assert.Equal(t, 1000*time.Millisecond, d.Min)
	assert.Equal(t, 3000*time.Millisecond, d.Max)

	// Unknown sources get the conservative window.
	d = DefaultDelays(types.Source("somewhere-new"))
	assert.Equal(t, 3000*time.Millisecond, d.Max)
}

func testEndpoint(server *httptest.Server) Endpoint {
	return func(source types.Source, externalID string) string {
		return server.URL + "/" + string(source) + "/" + externalID
	}
}

func TestHTTPFetcherClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind ErrorKind
	}{
		{"server error is transient", 503, "oops", KindTransient},
		{"rate limit is transient", 429, "slow down", KindTransient},
		{"unauthorized is auth", 401, "login required", KindAuth},
		{"not found is permanent", 404, "no such record", KindPermanent},
		{"deleted signal wins over status", 400, "Unable to read Person X", KindDeleted},
		{"invalid JSON body is permanent", 200, "<html>login</html>", KindPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			f := NewHTTPFetcher(testEndpoint(server), "sparsetree-test")
			_, err := f.Fetch(context.Background(), types.SourceFamilySearch, "X-1")
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.wantKind), "got %v", err)
		})
	}
}

func TestHTTPFetcherSuccess(t *testing.T) {
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"id": "X-1"}`))
	}))
	defer server.Close()

	f := NewHTTPFetcher(testEndpoint(server), "sparsetree-test/1.0")
	raw, err := f.Fetch(context.Background(), types.SourceFamilySearch, "X-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": "X-1"}`, string(raw))
	assert.Equal(t, "sparsetree-test/1.0", gotAgent)
}

func TestHTTPFetcherCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	f := NewHTTPFetcher(testEndpoint(server), "sparsetree-test")
	_, err := f.Fetch(ctx, types.SourceFamilySearch, "X-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCacheRoundTrip(t *testing.T) {
	c := NewCache(t.TempDir())

	_, ok, err := c.Get("familysearch", "X-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put("familysearch", "X-1", []byte(`{"id":"X-1"}`)))
	data, ok, err := c.Get("familysearch", "X-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"X-1"}`, string(data))

	require.NoError(t, c.Purge("familysearch", "X-1"))
	_, ok, err = c.Get("familysearch", "X-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Purging twice is fine.
	require.NoError(t, c.Purge("familysearch", "X-1"))
}

func TestCacheSanitizesIDs(t *testing.T) {
	root := t.TempDir()
	c := NewCache(root)
	require.NoError(t, c.Put("wikitree", "../escape", []byte("{}")))

	// The file must land inside the provider directory.
	entries, err := os.ReadDir(filepath.Join(root, "wikitree"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
