// Package discovery finds provider identities for persons that lack
// them by exploiting the graph's structure: when a child carries a link
// to a provider, the child's record there names its parents, and a
// local parent without a link can be matched against those names.
//
// Matching is deliberately conservative. A candidate from the right
// parent slot whose name fuzzily matches the local person registers at
// full confidence; a slot-only match with no name agreement registers
// at reduced confidence so later evidence can displace it.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/atomantic/SparseTree-sub004/internal/codec"
	"github.com/atomantic/SparseTree-sub004/internal/identity"
	"github.com/atomantic/SparseTree-sub004/internal/jobs"
	"github.com/atomantic/SparseTree-sub004/internal/provider"
	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/textutil"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// Confidence levels for registered matches.
const (
	// ConfidenceNameMatch: the provider record's name agrees with the
	// local person's.
	ConfidenceNameMatch = 1.0
	// ConfidenceRoleOnly: the right parent slot, but no name agreement.
	ConfidenceRoleOnly = 0.7
)

// Match is one discovered identity.
type Match struct {
	PersonID    string
	DisplayName string
	Source      types.Source
	ExternalID  string
	Confidence  float64
}

// Finder runs linkage discovery against one store.
type Finder struct {
	store   storage.Store
	ids     *identity.Map
	fetcher provider.Fetcher
	log     *slog.Logger

	// Delays overrides the provider rate-limit window. Nil uses the
	// per-provider defaults.
	Delays *provider.Delays
}

// NewFinder returns a discovery finder. A nil logger discards.
func NewFinder(store storage.Store, ids *identity.Map, fetcher provider.Fetcher, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Finder{store: store, ids: ids, fetcher: fetcher, log: logger}
}

// DiscoverGap resolves one linkage gap: fetch the child's record on the
// target provider, read the parent slot matching the local edge role,
// and compare names. Returns nil when no candidate could be confirmed.
// The match, when found, is registered immediately.
func (f *Finder) DiscoverGap(ctx context.Context, source types.Source, gap *types.LinkageGap) (*Match, error) {
	raw, err := f.fetcher.Fetch(ctx, source, gap.ChildExternalID)
	if err != nil {
		return nil, fmt.Errorf("fetch child %s: %w", gap.ChildExternalID, err)
	}
	child, err := codec.NewDecoder(source).Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode child %s: %w", gap.ChildExternalID, err)
	}

	var candidates []string
	switch gap.Role {
	case types.RoleFather:
		candidates = []string{child.FatherID}
	case types.RoleMother:
		candidates = []string{child.MotherID}
	default:
		candidates = []string{child.FatherID, child.MotherID}
	}

	var roleOnly string
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		// The candidate may already be someone else locally; never
		// steal an identity.
		if owner, err := f.store.FindPersonByExternalID(ctx, source, candidate); err == nil {
			if owner != gap.ParentID {
				continue
			}
			return nil, nil // already linked
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}

		name, err := f.candidateName(ctx, source, candidate)
		if err != nil {
			f.log.Warn("candidate record unreadable", "person", candidate, "error", err)
			continue
		}
		if textutil.NamesMatch(name, gap.ParentName) {
			return f.register(ctx, source, gap, candidate, ConfidenceNameMatch)
		}
		if roleOnly == "" && gap.Role != types.RoleParent {
			roleOnly = candidate
		}
	}

	// No name agreed; fall back to the slot the edge role points at.
	// Role-less edges get no such benefit of the doubt.
	if roleOnly != "" {
		return f.register(ctx, source, gap, roleOnly, ConfidenceRoleOnly)
	}
	return nil, nil
}

func (f *Finder) candidateName(ctx context.Context, source types.Source, externalID string) (string, error) {
	raw, err := f.fetcher.Fetch(ctx, source, externalID)
	if err != nil {
		return "", err
	}
	decoded, err := codec.NewDecoder(source).Decode(raw)
	if err != nil {
		return "", err
	}
	return decoded.DisplayName, nil
}

func (f *Finder) register(ctx context.Context, source types.Source, gap *types.LinkageGap, externalID string, confidence float64) (*Match, error) {
	err := f.ids.Register(ctx, gap.ParentID, source, externalID, identity.RegisterOptions{
		Confidence: confidence,
	})
	if err != nil {
		return nil, fmt.Errorf("register %s -> (%s, %s): %w", gap.ParentID, source, externalID, err)
	}
	f.log.Info("identity discovered",
		"person", gap.ParentID, "name", gap.ParentName,
		"source", source, "external_id", externalID, "confidence", confidence)
	return &Match{
		PersonID:    gap.ParentID,
		DisplayName: gap.ParentName,
		Source:      source,
		ExternalID:  externalID,
		Confidence:  confidence,
	}, nil
}

// Runner returns the bulk-discovery job body: every linkage gap in the
// database processed in order, rate-limited like a crawl, cancellable
// between gaps.
func (f *Finder) Runner(dbID string, source types.Source) jobs.Runner {
	return func(ctx context.Context, emit func(types.Progress)) error {
		if !source.IsProvider() {
			return fmt.Errorf("source %q is not a crawlable provider", source)
		}
		gaps, err := f.store.FindParentLinkageGaps(ctx, dbID, source)
		if err != nil {
			return err
		}
		delays := provider.DefaultDelays(source)
		if f.Delays != nil {
			delays = *f.Delays
		}

		counters := types.Counters{}
		seen := make(map[string]bool) // a person may gap through several children
		for i, gap := range gaps {
			if err := ctx.Err(); err != nil {
				return err
			}
			if seen[gap.ParentID] {
				counters.Skipped++
				continue
			}
			seen[gap.ParentID] = true

			match, err := f.DiscoverGap(ctx, source, gap)
			switch {
			case err != nil && ctx.Err() != nil:
				return ctx.Err()
			case provider.IsKind(err, provider.KindAuth):
				return err
			case err != nil:
				f.log.Warn("discovery failed", "person", gap.ParentID, "error", err)
				counters.Errors++
			case match != nil:
				counters.Discovered++
			default:
				counters.Skipped++
			}
			emit(types.Progress{
				Current:     i + 1,
				Total:       len(gaps),
				Message:     gap.ParentName,
				CurrentItem: gap.ParentID,
				Counters:    &counters,
			})
			if err := jobs.Sleep(ctx, delays.Min); err != nil {
				return err
			}
		}
		return nil
	}
}
