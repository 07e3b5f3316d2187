package crawler

import (
	"context"
	"fmt"

	"github.com/atomantic/SparseTree-sub004/internal/graph"
	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// finalize commits everything the walk only collected: parent edges,
// spouse edges, the database row, and membership with BFS-computed
// generations, all in one transaction. Runs on clean completion and on
// interrupt alike, so a cancelled crawl still leaves a queryable
// checkpoint.
func (c *Crawler) finalize(ctx context.Context, opts Options, st *crawlState) error {
	root, ok := st.records[opts.RootID]
	if !ok {
		if len(st.records) == 0 {
			return nil // nothing collected, nothing to commit
		}
		return fmt.Errorf("root %s was never stored", opts.RootID)
	}
	st.result.RootID = root.personID

	parentEdges := c.collectParentEdges(opts.Source, st)
	spouseEdges := c.collectSpouseEdges(opts.Source, st)
	generations := graph.AssignGenerations(root.personID, parentEdges)

	members := make([]*types.DatabaseMember, 0, len(st.order))
	for _, externalID := range st.order {
		rec := st.records[externalID]
		gen, ok := generations[rec.personID]
		if !ok {
			// Disconnected from the root (a broken lineage after a
			// provider merge): fall back to the crawl depth.
			gen = rec.generation
		}
		members = append(members, &types.DatabaseMember{
			PersonID:   rec.personID,
			IsRoot:     rec.personID == root.personID,
			Generation: gen,
		})
	}

	dbInfo := &types.DatabaseInfo{
		Name:           opts.Database,
		RootID:         root.personID,
		MaxGenerations: opts.MaxGenerations,
	}
	// Finalize ignores cancellation on purpose: the checkpoint write is
	// the whole point of a clean interrupt.
	fctx := context.WithoutCancel(ctx)
	err := c.store.RunInTransaction(fctx, func(tx storage.Tx) error {
		if err := tx.EnsureDatabase(fctx, dbInfo); err != nil {
			return err
		}
		if err := tx.AddParentEdges(fctx, parentEdges); err != nil {
			return err
		}
		for _, edge := range spouseEdges {
			if err := tx.AddSpouseEdge(fctx, edge); err != nil {
				return err
			}
		}
		return tx.ReplaceMembers(fctx, dbInfo.ID, members)
	})
	if err != nil {
		return fmt.Errorf("finalize crawl of %s: %w", opts.Database, err)
	}
	st.result.DatabaseID = dbInfo.ID
	c.log.Info("crawl finalized",
		"database", opts.Database,
		"persons", st.result.Stored,
		"parent_edges", len(parentEdges),
		"spouse_edges", len(spouseEdges),
		"interrupted", st.result.Interrupted)
	return nil
}

// collectParentEdges resolves the decoded parent slots against the
// collected records. Parents outside the working set (beyond the
// generation bound, ignored, or failed) contribute no edge.
func (c *Crawler) collectParentEdges(source types.Source, st *crawlState) []*types.ParentEdge {
	var edges []*types.ParentEdge
	for _, externalID := range st.order {
		rec := st.records[externalID]
		slots := []struct {
			parentExt string
			role      types.ParentRole
		}{
			{rec.decoded.FatherID, types.RoleFather},
			{rec.decoded.MotherID, types.RoleMother},
		}
		for _, slot := range slots {
			parent, ok := st.records[slot.parentExt]
			if !ok || parent.personID == rec.personID {
				continue
			}
			edges = append(edges, &types.ParentEdge{
				ChildID:  rec.personID,
				ParentID: parent.personID,
				Role:     slot.role,
				Source:   source,
			})
		}
	}
	return edges
}

// collectSpouseEdges resolves decoded spouse IDs against the collected
// records, deduping the unordered pairs.
func (c *Crawler) collectSpouseEdges(source types.Source, st *crawlState) []*types.SpouseEdge {
	var edges []*types.SpouseEdge
	seen := make(map[string]bool)
	for _, externalID := range st.order {
		rec := st.records[externalID]
		for _, spouseExt := range rec.decoded.SpouseIDs {
			spouse, ok := st.records[spouseExt]
			if !ok || spouse.personID == rec.personID {
				continue
			}
			edge := &types.SpouseEdge{Person1ID: rec.personID, Person2ID: spouse.personID, Source: source}
			edge.Canonicalize()
			key := edge.Person1ID + "|" + edge.Person2ID
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, edge)
		}
	}
	return edges
}
