// Package config resolves runtime settings from three layers: command
// flags, SPARSETREE_* environment variables, and optional files in the
// data directory (config.yaml for general settings, providers.toml for
// per-provider crawl tuning). Flags win over environment, environment
// over files, files over defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/atomantic/SparseTree-sub004/internal/provider"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// EnvPrefix is the environment namespace: SPARSETREE_DATA_DIR,
// SPARSETREE_DEFAULT_PROVIDER, and so on.
const EnvPrefix = "SPARSETREE"

// Defaults.
const (
	DefaultProvider        = types.SourceFamilySearch
	DefaultGeocodeInterval = 1100 * time.Millisecond
	defaultUserAgent       = "sparsetree/1.0"
)

// Config is the resolved runtime configuration.
type Config struct {
	DataDir         string
	DefaultDB       string
	DefaultProvider types.Source
	UserAgent       string
	GeocodeURL      string
	GeocodeInterval time.Duration
	Verbose         bool
	Quiet           bool
	JSON            bool

	// PlaceholderNames overrides the codec's termination-placeholder
	// set when non-empty.
	PlaceholderNames []string

	// ProviderDelays carries per-provider rate-limit overrides from
	// providers.toml.
	ProviderDelays map[types.Source]provider.Delays
}

// fileConfig is the shape of <data_dir>/config.yaml.
type fileConfig struct {
	DefaultDB        string   `yaml:"default-db"`
	DefaultProvider  string   `yaml:"default-provider"`
	UserAgent        string   `yaml:"user-agent"`
	GeocodeURL       string   `yaml:"geocode-url"`
	GeocodeIntervalMS int     `yaml:"geocode-interval-ms"`
	PlaceholderNames []string `yaml:"placeholder-names"`
}

// providerTuning is one [section] of providers.toml.
type providerTuning struct {
	MinDelayMS int `toml:"min-delay-ms"`
	MaxDelayMS int `toml:"max-delay-ms"`
}

// DefaultDataDir is ~/.sparsetree, or ./sparsetree-data when no home
// directory can be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sparsetree-data"
	}
	return filepath.Join(home, ".sparsetree")
}

// Load resolves configuration. flags may be nil (env + files only).
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetDefault("data-dir", DefaultDataDir())
	v.SetDefault("default-provider", string(DefaultProvider))
	v.SetDefault("user-agent", defaultUserAgent)
	v.SetDefault("geocode-interval-ms", int(DefaultGeocodeInterval/time.Millisecond))

	cfg := &Config{
		DataDir:        v.GetString("data-dir"),
		ProviderDelays: make(map[types.Source]provider.Delays),
	}

	// File layers live under the data dir, so the dir must resolve
	// before they load; their values fill only what flags and env left
	// unset.
	file, err := loadFileConfig(filepath.Join(cfg.DataDir, "config.yaml"))
	if err != nil {
		return nil, err
	}
	for key, val := range map[string]any{
		"default-db":          file.DefaultDB,
		"default-provider":    file.DefaultProvider,
		"user-agent":          file.UserAgent,
		"geocode-url":         file.GeocodeURL,
		"geocode-interval-ms": file.GeocodeIntervalMS,
	} {
		if !v.IsSet(key) && !isZero(val) {
			v.Set(key, val)
		}
	}

	cfg.DefaultDB = v.GetString("default-db")
	cfg.DefaultProvider = types.Source(v.GetString("default-provider"))
	cfg.UserAgent = v.GetString("user-agent")
	cfg.GeocodeURL = v.GetString("geocode-url")
	cfg.GeocodeInterval = time.Duration(v.GetInt("geocode-interval-ms")) * time.Millisecond
	cfg.Verbose = v.GetBool("verbose")
	cfg.Quiet = v.GetBool("quiet")
	cfg.JSON = v.GetBool("json")
	cfg.PlaceholderNames = file.PlaceholderNames

	if !cfg.DefaultProvider.IsProvider() {
		return nil, fmt.Errorf("default provider %q is not a crawlable provider", cfg.DefaultProvider)
	}

	if err := loadProviderTuning(filepath.Join(cfg.DataDir, "providers.toml"), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isZero(v any) bool {
	switch x := v.(type) {
	case string:
		return x == ""
	case int:
		return x == 0
	}
	return v == nil
}

// loadFileConfig reads config.yaml; an absent file is not an error.
func loadFileConfig(path string) (*fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path) // #nosec G304 -- path derived from data dir
	if os.IsNotExist(err) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// loadProviderTuning reads providers.toml; an absent file is not an
// error. Sections are provider names, values override the built-in
// rate-limit windows.
func loadProviderTuning(path string, cfg *Config) error {
	var sections map[string]providerTuning
	data, err := os.ReadFile(path) // #nosec G304 -- path derived from data dir
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &sections); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for name, tuning := range sections {
		source := types.Source(name)
		if !source.IsProvider() {
			return fmt.Errorf("%s: unknown provider %q", path, name)
		}
		delays := provider.DefaultDelays(source)
		if tuning.MinDelayMS > 0 {
			delays.Min = time.Duration(tuning.MinDelayMS) * time.Millisecond
		}
		if tuning.MaxDelayMS > 0 {
			delays.Max = time.Duration(tuning.MaxDelayMS) * time.Millisecond
		}
		if delays.Max < delays.Min {
			return fmt.Errorf("%s: %s max delay below min", path, name)
		}
		cfg.ProviderDelays[source] = delays
	}
	return nil
}

// Delays returns the rate-limit window for a source, honoring any
// providers.toml override.
func (c *Config) Delays(source types.Source) provider.Delays {
	if d, ok := c.ProviderDelays[source]; ok {
		return d
	}
	return provider.DefaultDelays(source)
}

// DatabasePath returns the SQLite file for a named database, or the
// default database when name is empty.
func (c *Config) DatabasePath(name string) string {
	if name == "" {
		name = c.DefaultDB
	}
	if name == "" {
		name = "sparsetree"
	}
	return filepath.Join(c.DataDir, name+".db")
}

// ProviderCacheDir returns the raw-record cache root.
func (c *Config) ProviderCacheDir() string {
	return filepath.Join(c.DataDir, "provider-cache")
}

// LogDir returns the job log directory.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// LockPath returns the data-dir lock file guarding concurrent indexers.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "sparsetree.lock")
}

// EnsureDataDir creates the data directory tree.
func (c *Config) EnsureDataDir() error {
	for _, dir := range []string{c.DataDir, c.ProviderCacheDir(), c.LogDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
