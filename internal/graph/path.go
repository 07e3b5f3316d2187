package graph

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// PathResult is a path between two persons through one common ancestor.
// Nodes runs from the first endpoint up to the common ancestor and back
// down to the second; the common ancestor appears exactly once. Length
// is the edge count, DepthA/DepthB the distances from each endpoint to
// the common ancestor.
type PathResult struct {
	Nodes          []string `json:"nodes"`
	CommonAncestor string   `json:"common_ancestor"`
	DepthA         int      `json:"depth_a"`
	DepthB         int      `json:"depth_b"`
	Length         int      `json:"length"`
}

// ErrNoCommonAncestor is returned when the two persons share no
// reachable ancestor.
var ErrNoCommonAncestor = fmt.Errorf("no common ancestor")

// Path finds a path between a and b through a common ancestor. The
// policy picks which common ancestor when several exist: the one
// minimizing total depth, maximizing it, or one chosen uniformly at
// random. rng may be nil unless the policy is random.
func Path(ctx context.Context, src EdgeSource, a, b string, policy types.PathPolicy, rng *rand.Rand) (*PathResult, error) {
	if !policy.IsValid() {
		return nil, fmt.Errorf("invalid path policy: %s", policy)
	}
	ancestryA, err := BuildAncestryMap(ctx, src, a)
	if err != nil {
		return nil, err
	}
	ancestryB, err := BuildAncestryMap(ctx, src, b)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		id    string
		total int
	}
	var candidates []candidate
	for id, entryA := range ancestryA {
		if entryB, ok := ancestryB[id]; ok {
			candidates = append(candidates, candidate{id: id, total: entryA.Depth + entryB.Depth})
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("between %s and %s: %w", a, b, ErrNoCommonAncestor)
	}

	chosen := candidates[0]
	switch policy {
	case types.PathShortest:
		for _, c := range candidates[1:] {
			if c.total < chosen.total {
				chosen = c
			}
		}
	case types.PathLongest:
		for _, c := range candidates[1:] {
			if c.total > chosen.total {
				chosen = c
			}
		}
	case types.PathRandom:
		if rng == nil {
			return nil, fmt.Errorf("random policy requires a rand source")
		}
		chosen = candidates[rng.Intn(len(candidates))]
	}

	upFromA, err := walkToStart(ancestryA, chosen.id) // ancestor .. a
	if err != nil {
		return nil, err
	}
	downToB, err := walkToStart(ancestryB, chosen.id) // ancestor .. b
	if err != nil {
		return nil, err
	}

	// a .. ancestor, then ancestor's descendants down to b; the common
	// ancestor contributes once.
	nodes := reverse(upFromA)
	nodes = append(nodes, downToB[1:]...)

	return &PathResult{
		Nodes:          nodes,
		CommonAncestor: chosen.id,
		DepthA:         ancestryA[chosen.id].Depth,
		DepthB:         ancestryB[chosen.id].Depth,
		Length:         len(nodes) - 1,
	}, nil
}
