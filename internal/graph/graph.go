// Package graph implements traversals over the parent-edge graph:
// ancestor and descendant enumeration, ancestry maps, common-ancestor
// path finding, generation assignment, and sparse trees over favorites.
//
// Provider data contains cycles (mis-linked records), so every
// traversal here is iterative with an explicit queue and visited set.
// Recursion is forbidden: pedigrees can be arbitrarily deep.
package graph

import (
	"context"
	"fmt"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// EdgeSource is the slice of the store the traversals need.
type EdgeSource interface {
	GetParents(ctx context.Context, personID string) ([]*types.ParentEdge, error)
	GetChildren(ctx context.Context, personID string) ([]*types.ParentEdge, error)
}

// Visit is one node reached by an enumeration, with its BFS depth from
// the start.
type Visit struct {
	ID    string `json:"id"`
	Depth int    `json:"depth"`
}

// maxPathSteps caps path reconstruction so a malformed ancestry map can
// never loop forever.
const maxPathSteps = 10000

// Ancestors enumerates every ancestor of start reachable through parent
// edges, breadth-first, up to maxDepth (0 = unbounded). The start node
// itself is the first visit at depth 0. Cycles terminate through the
// visited set.
func Ancestors(ctx context.Context, src EdgeSource, start string, maxDepth int) ([]Visit, error) {
	return enumerate(ctx, start, maxDepth, func(id string) ([]string, error) {
		edges, err := src.GetParents(ctx, id)
		if err != nil {
			return nil, err
		}
		return edgeIDs(edges, func(e *types.ParentEdge) string { return e.ParentID }), nil
	})
}

// Descendants mirrors Ancestors through child edges.
func Descendants(ctx context.Context, src EdgeSource, start string, maxDepth int) ([]Visit, error) {
	return enumerate(ctx, start, maxDepth, func(id string) ([]string, error) {
		edges, err := src.GetChildren(ctx, id)
		if err != nil {
			return nil, err
		}
		return edgeIDs(edges, func(e *types.ParentEdge) string { return e.ChildID }), nil
	})
}

func edgeIDs(edges []*types.ParentEdge, pick func(*types.ParentEdge) string) []string {
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, pick(e))
	}
	return ids
}

// enumerate is the shared iterative BFS. next returns the neighbor IDs
// of a node in traversal direction.
func enumerate(ctx context.Context, start string, maxDepth int, next func(string) ([]string, error)) ([]Visit, error) {
	visited := map[string]bool{start: true}
	queue := []Visit{{ID: start, Depth: 0}}
	var out []Visit

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := queue[0]
		queue = queue[1:]
		out = append(out, current)

		if maxDepth > 0 && current.Depth >= maxDepth {
			continue
		}
		neighbors, err := next(current.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range neighbors {
			if visited[id] {
				continue
			}
			visited[id] = true
			queue = append(queue, Visit{ID: id, Depth: current.Depth + 1})
		}
	}
	return out, nil
}

// Entry is one node in an ancestry map: the node through which it was
// first reached and its BFS depth from the start.
type Entry struct {
	ParentInPath string
	Depth        int
}

// BuildAncestryMap BFS-walks every ancestor reachable from start and
// records, per ancestor, the node it was first reached through and its
// depth. The start node maps to an empty ParentInPath at depth 0.
// First-reach order makes every recorded path a shortest path.
func BuildAncestryMap(ctx context.Context, src EdgeSource, start string) (map[string]Entry, error) {
	ancestry := map[string]Entry{start: {Depth: 0}}
	queue := []string{start}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := queue[0]
		queue = queue[1:]

		edges, err := src.GetParents(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if _, ok := ancestry[e.ParentID]; ok {
				continue
			}
			ancestry[e.ParentID] = Entry{
				ParentInPath: current,
				Depth:        ancestry[current].Depth + 1,
			}
			queue = append(queue, e.ParentID)
		}
	}
	return ancestry, nil
}

// AssignGenerations computes per-person generations from the root over
// an in-memory edge set: generation = minimum parent-edge distance from
// the root. Used by the crawler's finalize phase, where edges are held
// in memory until all persons exist. Cycle-tolerant.
func AssignGenerations(rootID string, edges []*types.ParentEdge) map[string]int {
	parentsOf := make(map[string][]string)
	for _, e := range edges {
		parentsOf[e.ChildID] = append(parentsOf[e.ChildID], e.ParentID)
	}

	generations := map[string]int{rootID: 0}
	queue := []string{rootID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, parent := range parentsOf[current] {
			if _, ok := generations[parent]; ok {
				continue
			}
			generations[parent] = generations[current] + 1
			queue = append(queue, parent)
		}
	}
	return generations
}

// walkToStart reconstructs the node sequence from node back to the
// ancestry map's start by following ParentInPath. The returned slice
// begins at node and ends at the start. Iterations are capped and
// repeat visits break the walk, guarding against malformed maps.
func walkToStart(ancestry map[string]Entry, node string) ([]string, error) {
	path := []string{node}
	seen := map[string]bool{node: true}
	current := node
	for steps := 0; steps < maxPathSteps; steps++ {
		entry, ok := ancestry[current]
		if !ok {
			return nil, fmt.Errorf("ancestry map has no entry for %s", current)
		}
		if entry.ParentInPath == "" {
			return path, nil // reached the start
		}
		if seen[entry.ParentInPath] {
			return nil, fmt.Errorf("ancestry map cycles at %s", entry.ParentInPath)
		}
		seen[entry.ParentInPath] = true
		path = append(path, entry.ParentInPath)
		current = entry.ParentInPath
	}
	return nil, fmt.Errorf("path from %s exceeds %d steps", node, maxPathSteps)
}

func reverse(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
