// Package sparsetree provides the public API for embedding the
// genealogical graph store in other Go programs.
//
// Most callers want an App: one value owning the store, the identity
// map, the job manager, and the geocoder, opened from a Config and
// closed once. The re-exported types below cover the data model an
// embedding program touches; everything else stays internal.
package sparsetree

import (
	"context"
	"io"
	"log/slog"

	"github.com/atomantic/SparseTree-sub004/internal/config"
	"github.com/atomantic/SparseTree-sub004/internal/crawler"
	"github.com/atomantic/SparseTree-sub004/internal/discovery"
	"github.com/atomantic/SparseTree-sub004/internal/geocode"
	"github.com/atomantic/SparseTree-sub004/internal/identity"
	"github.com/atomantic/SparseTree-sub004/internal/jobs"
	"github.com/atomantic/SparseTree-sub004/internal/provider"
	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/storage/sqlite"
	"github.com/atomantic/SparseTree-sub004/internal/telemetry"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// Core data-model types.
type (
	Person           = types.Person
	ExternalIdentity = types.ExternalIdentity
	ParentEdge       = types.ParentEdge
	SpouseEdge       = types.SpouseEdge
	VitalEvent       = types.VitalEvent
	Claim            = types.Claim
	DatabaseInfo     = types.DatabaseInfo
	DatabaseMember   = types.DatabaseMember
	Favorite         = types.Favorite
	PlaceGeocode     = types.PlaceGeocode
	Source           = types.Source
	Progress         = types.Progress
	JobKind          = types.JobKind
)

// Provider sources.
const (
	SourceFamilySearch = types.SourceFamilySearch
	SourceAncestry     = types.SourceAncestry
	SourceWikiTree     = types.SourceWikiTree
	Source23AndMe      = types.Source23AndMe
	SourceGEDCOM       = types.SourceGEDCOM
	SourceUser         = types.SourceUser
)

// Job kinds.
const (
	JobIndex    = types.JobIndex
	JobDiscover = types.JobDiscover
	JobGeocode  = types.JobGeocode
)

// Store is the graph-store interface satisfied by the embedded SQLite
// implementation.
type Store = storage.Store

// Config is the resolved runtime configuration.
type Config = config.Config

// OpenStore opens the embedded database at path for programmatic
// access without the rest of the App.
func OpenStore(ctx context.Context, path string) (Store, error) {
	return sqlite.New(ctx, path)
}

// App owns one open database and the services built on it. No global
// state: construct with Open, pass by pointer, Close when done.
type App struct {
	Config   *config.Config
	Store    *sqlite.Store
	IDs      *identity.Map
	Jobs     *jobs.Manager
	Geocoder *geocode.Client
	Fetcher  provider.Fetcher
	Cache    *provider.Cache
	Log      *slog.Logger
}

// Open builds an App over the named database (empty = the configured
// default). The data directory tree is created if missing. A nil
// logger discards.
func Open(ctx context.Context, cfg *config.Config, dbName string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	store, err := sqlite.New(ctx, cfg.DatabasePath(dbName))
	if err != nil {
		return nil, err
	}

	fetcher := telemetry.WrapFetcher(
		provider.NewHTTPFetcher(provider.DefaultEndpoint, cfg.UserAgent))

	geocoder := geocode.New(store, cfg.GeocodeURL, cfg.UserAgent, logger)
	geocoder.Interval = cfg.GeocodeInterval

	return &App{
		Config:   cfg,
		Store:    store,
		IDs:      identity.NewMap(store),
		Jobs:     jobs.NewManager(),
		Geocoder: geocoder,
		Fetcher:  fetcher,
		Cache:    provider.NewCache(cfg.ProviderCacheDir()),
		Log:      logger,
	}, nil
}

// Crawler returns an indexer bound to the App's store and fetcher.
func (a *App) Crawler() *crawler.Crawler {
	return crawler.New(a.Store, a.IDs, a.Fetcher, a.Cache, a.Log)
}

// Finder returns a discovery finder bound to the App's store and
// fetcher.
func (a *App) Finder() *discovery.Finder {
	return discovery.NewFinder(a.Store, a.IDs, a.Fetcher, a.Log)
}

// Close shuts down running jobs (bounded by ctx) and closes the store.
func (a *App) Close(ctx context.Context) error {
	jobErr := a.Jobs.Shutdown(ctx)
	if err := a.Store.Close(); err != nil {
		return err
	}
	return jobErr
}
