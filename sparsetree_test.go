package sparsetree

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomantic/SparseTree-sub004/internal/config"
	"github.com/atomantic/SparseTree-sub004/internal/idgen"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("SPARSETREE_DATA_DIR", t.TempDir())
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	return cfg
}

func TestOpenAndClose(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	app, err := Open(ctx, cfg, "", nil)
	require.NoError(t, err)

	// The data directory tree exists and the store is usable.
	assert.Equal(t, cfg.DatabasePath(""), app.Store.Path())
	p := &Person{ID: idgen.New(), DisplayName: "Louis Hébert"}
	require.NoError(t, app.Store.CreatePerson(ctx, p))
	got, err := app.Store.GetPerson(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Louis Hébert", got.DisplayName)

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, app.Close(closeCtx))
}

func TestOpenNamedDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	app, err := Open(ctx, cfg, "heberts", nil)
	require.NoError(t, err)
	defer func() { _ = app.Close(ctx) }()

	assert.Equal(t, filepath.Join(cfg.DataDir, "heberts.db"), app.Store.Path())
}

func TestOpenStoreDirect(t *testing.T) {
	ctx := context.Background()
	st, err := OpenStore(ctx, filepath.Join(t.TempDir(), "direct.db"))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	p := &Person{ID: idgen.New(), DisplayName: "Direct"}
	require.NoError(t, st.CreatePerson(ctx, p))
}

func TestAppServices(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	app, err := Open(ctx, cfg, "", nil)
	require.NoError(t, err)
	defer func() { _ = app.Close(ctx) }()

	assert.NotNil(t, app.Crawler())
	assert.NotNil(t, app.Finder())
	assert.NotNil(t, app.Geocoder)
	assert.NotNil(t, app.Jobs)
	assert.NotNil(t, app.IDs)
}
