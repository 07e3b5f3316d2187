// Package crawler walks a provider's ancestor graph breadth-first from a
// root person and writes the result through to the store.
//
// The crawl is resumable and polite: records come from the on-disk cache
// when the cache mode allows, every network fetch is followed by a random
// rate-limit sleep, transient failures retry with exponential backoff,
// and cancellation checkpoints whatever was collected before exiting.
// Persons are written one transaction each as they are parsed; parent and
// spouse edges, database membership, and generations commit together in a
// finalize phase at the end, so edges never reference a person that does
// not exist yet.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/atomantic/SparseTree-sub004/internal/codec"
	"github.com/atomantic/SparseTree-sub004/internal/identity"
	"github.com/atomantic/SparseTree-sub004/internal/jobs"
	"github.com/atomantic/SparseTree-sub004/internal/provider"
	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// defaultRetryInterval is the base transient-retry delay; attempt n waits
// defaultRetryInterval·2^n.
const defaultRetryInterval = 5 * time.Second

// maxFetchRetries bounds transient retries per record.
const maxFetchRetries = 3

// Options configures one crawl.
type Options struct {
	// RootID is the provider external ID of the root person.
	RootID string
	// Source is the provider to crawl.
	Source types.Source
	// Database names the rooted subgraph; defaults to RootID.
	Database string
	// MaxGenerations bounds the walk; 0 = unbounded.
	MaxGenerations int
	// Ignore lists external IDs to skip entirely (and not expand).
	Ignore []string
	// CacheMode controls on-disk cache use; defaults to CacheAll.
	CacheMode types.CacheMode
	// OldestYear prunes lineages: a person born strictly before this
	// year is skipped and not expanded. Nil = no floor.
	OldestYear *int
	// Delays overrides the provider's rate-limit window. Nil uses the
	// per-provider defaults.
	Delays *provider.Delays
}

func (o *Options) normalize() error {
	if o.RootID == "" {
		return fmt.Errorf("root ID is required")
	}
	if !o.Source.IsProvider() {
		return fmt.Errorf("source %q is not a crawlable provider", o.Source)
	}
	if o.Database == "" {
		o.Database = o.RootID
	}
	if o.CacheMode == "" {
		o.CacheMode = types.CacheAll
	}
	if !o.CacheMode.IsValid() {
		return fmt.Errorf("invalid cache mode %q", o.CacheMode)
	}
	return nil
}

// Result summarizes a finished (or checkpointed) crawl.
type Result struct {
	DatabaseID  string
	RootID      string // canonical ID of the root person
	Stored      int
	Skipped     int
	Errors      int
	Interrupted bool
}

// Crawler holds the collaborators a crawl needs. Safe for sequential
// reuse; one crawl runs at a time (the job manager enforces this for the
// index kind).
type Crawler struct {
	store   storage.Store
	ids     *identity.Map
	fetcher provider.Fetcher
	cache   *provider.Cache
	log     *slog.Logger
	rng     *rand.Rand

	// RetryInterval is the base transient-retry delay. Overridable so
	// operators can slow a flaky link down further; defaults to 5s.
	RetryInterval time.Duration
}

// New returns a crawler. A nil logger discards.
func New(store storage.Store, ids *identity.Map, fetcher provider.Fetcher, cache *provider.Cache, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Crawler{
		store:         store,
		ids:           ids,
		fetcher:       fetcher,
		cache:         cache,
		log:           logger,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		RetryInterval: defaultRetryInterval,
	}
}

// record is one person collected during the walk. Parent and spouse
// external IDs stay on the decoded form until finalize resolves them.
type record struct {
	externalID string
	personID   string
	decoded    *codec.DecodedPerson
	generation int
}

// crawlState is the working set of one Run.
type crawlState struct {
	queue   []queueItem
	visited map[string]bool
	ignored map[string]bool
	records map[string]*record
	order   []string // insertion order of records, for deterministic finalize
	result  Result
}

type queueItem struct {
	externalID string
	generation int
}

func (st *crawlState) enqueue(externalID string, generation int) {
	if externalID == "" || st.visited[externalID] {
		return
	}
	st.visited[externalID] = true
	st.queue = append(st.queue, queueItem{externalID: externalID, generation: generation})
}

// Runner adapts a crawl to the job orchestrator.
func (c *Crawler) Runner(opts Options) jobs.Runner {
	return func(ctx context.Context, emit func(types.Progress)) error {
		_, err := c.Run(ctx, opts, emit)
		return err
	}
}

// Run executes one crawl. emit may be nil. On cancellation the collected
// persons are still finalized (edges, membership, generations) before the
// context error is returned, so an interrupted crawl leaves a consistent
// checkpoint behind.
func (c *Crawler) Run(ctx context.Context, opts Options, emit func(types.Progress)) (*Result, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if emit == nil {
		emit = func(types.Progress) {}
	}
	delays := provider.DefaultDelays(opts.Source)
	if opts.Delays != nil {
		delays = *opts.Delays
	}
	decoder := codec.NewDecoder(opts.Source)

	st := &crawlState{
		visited: make(map[string]bool),
		ignored: make(map[string]bool),
		records: make(map[string]*record),
	}
	for _, id := range opts.Ignore {
		st.ignored[id] = true
	}
	st.enqueue(opts.RootID, 0)

	for len(st.queue) > 0 {
		if ctx.Err() != nil {
			st.result.Interrupted = true
			break
		}
		item := st.queue[0]
		st.queue = st.queue[1:]

		if st.ignored[item.externalID] {
			st.result.Skipped++
			continue
		}

		raw, fromNetwork, err := c.load(ctx, opts, item.externalID)
		if err != nil {
			if stop := c.handleFetchError(ctx, opts, st, item, err); stop != nil {
				if errors.Is(stop, context.Canceled) || errors.Is(stop, context.DeadlineExceeded) {
					st.result.Interrupted = true
					break
				}
				return &st.result, stop
			}
			continue
		}

		decoded, err := decoder.Decode(raw)
		if err != nil {
			if errors.Is(err, codec.ErrPlaceholder) {
				st.result.Skipped++
				continue
			}
			c.log.Warn("undecodable record skipped", "person", item.externalID, "error", err)
			st.result.Errors++
			continue
		}

		if tooOld(decoded, opts.OldestYear) {
			st.result.Skipped++
			continue
		}

		personID, err := c.writePerson(ctx, opts.Source, decoded)
		if err != nil {
			return &st.result, fmt.Errorf("store person %s: %w", item.externalID, err)
		}
		rec := &record{
			externalID: item.externalID,
			personID:   personID,
			decoded:    decoded,
			generation: item.generation,
		}
		st.records[item.externalID] = rec
		st.order = append(st.order, item.externalID)
		st.result.Stored++

		emit(types.Progress{
			Current:     st.result.Stored,
			Message:     decoded.DisplayName,
			CurrentItem: item.externalID,
			Counters: &types.Counters{
				Discovered: st.result.Stored,
				Skipped:    st.result.Skipped,
				Errors:     st.result.Errors,
			},
		})

		if opts.MaxGenerations == 0 || item.generation < opts.MaxGenerations {
			// Fathers before mothers, matching provider pedigree order.
			st.enqueue(decoded.FatherID, item.generation+1)
			st.enqueue(decoded.MotherID, item.generation+1)
		}

		if fromNetwork {
			if err := c.politeSleep(ctx, delays); err != nil {
				st.result.Interrupted = true
				break
			}
		}
	}

	if err := c.finalize(ctx, opts, st); err != nil {
		return &st.result, err
	}
	if st.result.Interrupted {
		return &st.result, ctx.Err()
	}
	return &st.result, nil
}

// handleFetchError decides what a failed load means for the crawl. A nil
// return means the record was dealt with (skipped or recovered) and the
// walk continues; non-nil aborts the crawl.
func (c *Crawler) handleFetchError(ctx context.Context, opts Options, st *crawlState, item queueItem, err error) error {
	switch {
	case provider.IsKind(err, provider.KindDeleted):
		c.log.Info("record deleted on provider", "person", item.externalID)
		if rErr := c.refreshChildren(ctx, opts, st, item); rErr != nil {
			return rErr
		}
		st.result.Skipped++
		return nil
	case provider.IsKind(err, provider.KindAuth):
		return fmt.Errorf("authentication failed at %s: %w", item.externalID, err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		// Permanent, or transient after exhausted retries.
		c.log.Warn("fetch failed, skipping", "person", item.externalID, "error", err)
		st.result.Errors++
		return nil
	}
}

// writePerson upserts the person, its identity, events, and claims as one
// transaction per record (the FTS row rides along with each write).
func (c *Crawler) writePerson(ctx context.Context, source types.Source, d *codec.DecodedPerson) (string, error) {
	personID, _, err := c.ids.GetOrCreate(ctx, source, d.ExternalID, d.DisplayName, identity.CreateOptions{
		Gender: d.Gender,
		Living: d.Living,
	})
	if err != nil {
		return "", err
	}

	err = c.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		updates := map[string]interface{}{
			"display_name": d.DisplayName,
			"gender":       string(d.Gender),
			"living":       d.Living,
		}
		if d.BirthName != "" {
			updates["birth_name"] = d.BirthName
		}
		if d.Bio != "" {
			updates["bio"] = d.Bio
		}
		if err := tx.UpdatePerson(ctx, personID, updates); err != nil {
			return err
		}
		for i := range d.Events {
			ev := d.Events[i]
			ev.PersonID = personID
			if err := tx.AddEvent(ctx, &ev); err != nil {
				return err
			}
		}
		for _, occupation := range d.Occupations {
			claim := types.Claim{PersonID: personID, Predicate: types.PredicateOccupation, ValueText: occupation, Source: source}
			if err := tx.AddClaim(ctx, &claim); err != nil {
				return err
			}
		}
		// Birth names live on the person row; every other name form
		// becomes an alias claim, in stable category order.
		for _, category := range codec.SortedNameCategories(d.Names) {
			if category == codec.NameBirth {
				continue
			}
			for _, name := range d.Names[category] {
				if name == d.DisplayName || name == d.BirthName {
					continue
				}
				claim := types.Claim{PersonID: personID, Predicate: types.PredicateAlias, ValueText: name, Source: source}
				if err := tx.AddClaim(ctx, &claim); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return personID, nil
}

// tooOld reports whether the person's birth year falls strictly before
// the floor. Unknown birth years are never pruned.
func tooOld(d *codec.DecodedPerson, floor *int) bool {
	if floor == nil {
		return false
	}
	for _, ev := range d.Events {
		if ev.Type == types.EventBirth && ev.DateYear != nil {
			return *ev.DateYear < *floor
		}
	}
	return false
}

// politeSleep waits a uniform random duration inside the provider's
// rate-limit window.
func (c *Crawler) politeSleep(ctx context.Context, delays provider.Delays) error {
	d := delays.Min
	if span := delays.Max - delays.Min; span > 0 {
		d += time.Duration(c.rng.Int63n(int64(span)))
	}
	return jobs.Sleep(ctx, d)
}
