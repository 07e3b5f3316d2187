package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SPARSETREE_DATA_DIR", dir)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, types.SourceFamilySearch, cfg.DefaultProvider)
	assert.Equal(t, "sparsetree/1.0", cfg.UserAgent)
	assert.Equal(t, 1100*time.Millisecond, cfg.GeocodeInterval)
	assert.Empty(t, cfg.PlaceholderNames)

	assert.Equal(t, filepath.Join(dir, "sparsetree.db"), cfg.DatabasePath(""))
	assert.Equal(t, filepath.Join(dir, "heberts.db"), cfg.DatabasePath("heberts"))
	assert.Equal(t, filepath.Join(dir, "provider-cache"), cfg.ProviderCacheDir())
	assert.Equal(t, filepath.Join(dir, "logs"), cfg.LogDir())
	assert.Equal(t, filepath.Join(dir, "sparsetree.lock"), cfg.LockPath())
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SPARSETREE_DATA_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
default-db: heberts
default-provider: wikitree
user-agent: research-bot/2.0
geocode-interval-ms: 500
placeholder-names:
  - Unknown Father
  - Private
`), 0o600))

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "heberts", cfg.DefaultDB)
	assert.Equal(t, types.SourceWikiTree, cfg.DefaultProvider)
	assert.Equal(t, "research-bot/2.0", cfg.UserAgent)
	assert.Equal(t, 500*time.Millisecond, cfg.GeocodeInterval)
	assert.Equal(t, []string{"Unknown Father", "Private"}, cfg.PlaceholderNames)

	// Empty name now falls through to the configured default database.
	assert.Equal(t, filepath.Join(dir, "heberts.db"), cfg.DatabasePath(""))
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SPARSETREE_DATA_DIR", dir)
	t.Setenv("SPARSETREE_DEFAULT_PROVIDER", "ancestry")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("default-provider: wikitree\n"), 0o600))

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, types.SourceAncestry, cfg.DefaultProvider)
}

func TestFlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SPARSETREE_DATA_DIR", dir)
	t.Setenv("SPARSETREE_DEFAULT_PROVIDER", "ancestry")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("default-provider", "", "")
	flags.Bool("verbose", false, "")
	require.NoError(t, flags.Set("default-provider", "wikitree"))
	require.NoError(t, flags.Set("verbose", "true"))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, types.SourceWikiTree, cfg.DefaultProvider)
	assert.True(t, cfg.Verbose)
}

func TestInvalidDefaultProvider(t *testing.T) {
	t.Setenv("SPARSETREE_DATA_DIR", t.TempDir())
	t.Setenv("SPARSETREE_DEFAULT_PROVIDER", "user")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a crawlable provider")
}

func TestProviderTuning(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SPARSETREE_DATA_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "providers.toml"), []byte(`
[familysearch]
min-delay-ms = 2000
max-delay-ms = 4000

[wikitree]
min-delay-ms = 250
`), 0o600))

	cfg, err := Load(nil)
	require.NoError(t, err)

	fs := cfg.Delays(types.SourceFamilySearch)
	assert.Equal(t, 2*time.Second, fs.Min)
	assert.Equal(t, 4*time.Second, fs.Max)

	// Partial override keeps the built-in max.
	wt := cfg.Delays(types.SourceWikiTree)
	assert.Equal(t, 250*time.Millisecond, wt.Min)
	assert.Equal(t, 1500*time.Millisecond, wt.Max)

	// Untouched providers keep their defaults.
	anc := cfg.Delays(types.SourceAncestry)
	assert.Equal(t, time.Second, anc.Min)
}

func TestProviderTuningRejectsUnknownSection(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SPARSETREE_DATA_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "providers.toml"),
		[]byte("[myspace]\nmin-delay-ms = 100\n"), 0o600))

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestProviderTuningRejectsInvertedWindow(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SPARSETREE_DATA_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "providers.toml"),
		[]byte("[familysearch]\nmin-delay-ms = 5000\nmax-delay-ms = 1000\n"), 0o600))

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max delay below min")
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	t.Setenv("SPARSETREE_DATA_DIR", dir)

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.NoError(t, cfg.EnsureDataDir())

	for _, sub := range []string{dir, cfg.ProviderCacheDir(), cfg.LogDir()} {
		info, err := os.Stat(sub)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
