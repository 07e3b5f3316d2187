package crawler

import (
	"context"
	"encoding/json"

	"github.com/cenkalti/backoff/v4"

	"github.com/atomantic/SparseTree-sub004/internal/codec"
	"github.com/atomantic/SparseTree-sub004/internal/provider"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// load returns one raw record, consulting the cache per the cache mode.
// fromNetwork tells the caller whether a rate-limit sleep is owed.
func (c *Crawler) load(ctx context.Context, opts Options, externalID string) (raw []byte, fromNetwork bool, err error) {
	if opts.CacheMode != types.CacheNone {
		data, ok, err := c.cache.Get(string(opts.Source), externalID)
		if err != nil {
			return nil, false, err
		}
		if ok && !(opts.CacheMode == types.CacheComplete && parentSlotCount(data) < 2) {
			return data, false, nil
		}
	}

	raw, err = c.fetchWithRetry(ctx, opts.Source, externalID)
	if err != nil {
		return nil, true, err
	}
	if err := c.cache.Put(string(opts.Source), externalID, raw); err != nil {
		return nil, true, err
	}
	return raw, true, nil
}

// fetchWithRetry retries transient failures with exponential backoff
// (RetryInterval·2^attempt, up to maxFetchRetries). Anything else fails
// immediately.
func (c *Crawler) fetchWithRetry(ctx context.Context, source types.Source, externalID string) ([]byte, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(c.retryBackOff(), maxFetchRetries), ctx)

	var raw []byte
	attempt := 0
	err := backoff.Retry(func() error {
		data, err := c.fetcher.Fetch(ctx, source, externalID)
		if err != nil {
			if provider.IsKind(err, provider.KindTransient) {
				attempt++
				c.log.Warn("transient fetch failure, will retry",
					"person", externalID, "attempt", attempt, "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		raw = data
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Crawler) retryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.RetryInterval * 8
	b.MaxElapsedTime = 0
	return b
}

// parentSlotCount counts the filled parent slots of a cached record
// without fully decoding it. Drives the "complete" cache mode: fewer
// than two means the cached copy may predate the provider filling in a
// parent, so it gets re-fetched.
func parentSlotCount(raw []byte) int {
	var slots struct {
		Father any `json:"father"`
		Mother any `json:"mother"`
	}
	if err := json.Unmarshal(raw, &slots); err != nil {
		return 0
	}
	count := 0
	if slots.Father != nil {
		count++
	}
	if slots.Mother != nil {
		count++
	}
	return count
}

// refreshChildren recovers from a provider-side deletion, which usually
// means the record was merged into another. The stale cache file is
// purged, then every already-collected child that listed the deleted ID
// as a parent is re-fetched from the network: the fresh copy carries the
// surviving record's ID in its parent slot, which gets enqueued so the
// walk continues up the merged lineage.
func (c *Crawler) refreshChildren(ctx context.Context, opts Options, st *crawlState, item queueItem) error {
	if err := c.cache.Purge(string(opts.Source), item.externalID); err != nil {
		return err
	}
	delays := provider.DefaultDelays(opts.Source)
	if opts.Delays != nil {
		delays = *opts.Delays
	}
	decoder := codec.NewDecoder(opts.Source)

	for _, childID := range st.order {
		child := st.records[childID]
		if child.decoded.FatherID != item.externalID && child.decoded.MotherID != item.externalID {
			continue
		}
		if err := c.cache.Purge(string(opts.Source), childID); err != nil {
			return err
		}
		raw, err := c.fetchWithRetry(ctx, opts.Source, childID)
		if err != nil {
			c.log.Warn("child refresh failed", "person", childID, "error", err)
			st.result.Errors++
			continue
		}
		if err := c.cache.Put(string(opts.Source), childID, raw); err != nil {
			return err
		}
		decoded, err := decoder.Decode(raw)
		if err != nil {
			c.log.Warn("refreshed child undecodable", "person", childID, "error", err)
			st.result.Errors++
			continue
		}

		if _, err := c.writePerson(ctx, opts.Source, decoded); err != nil {
			return err
		}
		child.decoded = decoded

		if opts.MaxGenerations == 0 || child.generation < opts.MaxGenerations {
			st.enqueue(decoded.FatherID, child.generation+1)
			st.enqueue(decoded.MotherID, child.generation+1)
		}
		if err := c.politeSleep(ctx, delays); err != nil {
			return err
		}
	}
	return nil
}
