package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// Lineage says through which parental line a sparse-tree node hangs off
// its tree parent. The root is "self".
type Lineage string

// Lineage constants.
const (
	LineagePaternal Lineage = "paternal"
	LineageMaternal Lineage = "maternal"
	LineageSelf     Lineage = "self"
)

// SparseNode is one node of a sparse tree. GenerationsSkipped counts
// the intermediate ancestors elided along the edge from the tree parent
// (zero when the two are adjacent in the parent graph).
type SparseNode struct {
	PersonID           string        `json:"person_id"`
	GenerationFromRoot int           `json:"generation_from_root"`
	LineageFromParent  Lineage       `json:"lineage_from_parent"`
	GenerationsSkipped int           `json:"generations_skipped"`
	Children           []*SparseNode `json:"children,omitempty"`
}

// SparseTree builds a tree rooted at root containing the favorites, the
// root, and the ancestors connecting them, with all other nodes
// collapsed. Members restricts which intermediate ancestors may appear:
// a path node outside the member set is elided and counted in the next
// emitted node's GenerationsSkipped. Favorites and the root are always
// emitted. Multiple paths from root to a favorite collapse to the
// shortest (BFS first-reach). Zero favorites yields just the root.
func SparseTree(ctx context.Context, src EdgeSource, root string, favorites []string, members map[string]bool) (*SparseNode, error) {
	rootNode := &SparseNode{PersonID: root, LineageFromParent: LineageSelf}
	if len(favorites) == 0 {
		return rootNode, nil
	}

	ancestry, err := BuildAncestryMap(ctx, src, root)
	if err != nil {
		return nil, err
	}
	// Edge roles feed the lineage annotation.
	roleOf := func(child, parent string) (types.ParentRole, error) {
		edges, err := src.GetParents(ctx, child)
		if err != nil {
			return "", err
		}
		for _, e := range edges {
			if e.ParentID == parent {
				return e.Role, nil
			}
		}
		return types.RoleParent, nil
	}

	favoriteSet := make(map[string]bool, len(favorites))
	for _, f := range favorites {
		favoriteSet[f] = true
	}
	emit := func(id string) bool {
		return id == root || favoriteSet[id] || members[id]
	}

	nodes := map[string]*SparseNode{root: rootNode}
	attached := map[string]bool{root: true}

	// Deterministic construction order: nearer favorites first, ties by
	// ID, so shared prefixes are laid down once.
	ordered := append([]string(nil), favorites...)
	sort.Slice(ordered, func(i, j int) bool {
		di, dj := ancestry[ordered[i]].Depth, ancestry[ordered[j]].Depth
		if di != dj {
			return di < dj
		}
		return ordered[i] < ordered[j]
	})

	for _, fav := range ordered {
		if _, reachable := ancestry[fav]; !reachable {
			return nil, fmt.Errorf("favorite %s is not an ancestor of root %s", fav, root)
		}
		// Shortest path root..fav, via first-reach parents.
		segment, err := walkToStart(ancestry, fav)
		if err != nil {
			return nil, err
		}
		path := reverse(segment) // root .. fav

		// Walk the path, attaching each emitted node to the previous
		// emitted one and counting elided intermediates between them.
		prevIdx := 0 // path[0] == root, always emitted
		for i := 1; i < len(path); i++ {
			id := path[i]
			if !emit(id) {
				continue
			}
			if !attached[id] {
				// Lineage comes from the first graph link out of the
				// emitted tree parent toward this ancestor.
				role, err := roleOf(path[prevIdx], path[prevIdx+1])
				if err != nil {
					return nil, err
				}
				node := &SparseNode{
					PersonID:           id,
					GenerationFromRoot: ancestry[id].Depth,
					LineageFromParent:  lineageFromRole(role),
					GenerationsSkipped: i - prevIdx - 1,
				}
				nodes[path[prevIdx]].Children = append(nodes[path[prevIdx]].Children, node)
				nodes[id] = node
				attached[id] = true
			}
			prevIdx = i
		}
	}
	return rootNode, nil
}

func lineageFromRole(role types.ParentRole) Lineage {
	switch role {
	case types.RoleFather:
		return LineagePaternal
	case types.RoleMother:
		return LineageMaternal
	}
	return LineageSelf
}
