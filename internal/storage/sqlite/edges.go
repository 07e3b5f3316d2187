package sqlite

import (
	"context"
	"fmt"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// insertParentEdge writes one child->parent edge. Duplicate
// (child, parent, source) rows are tolerated: crawls legitimately
// re-discover edges on re-runs.
func insertParentEdge(ctx context.Context, q dbExecer, edge *types.ParentEdge) error {
	if err := edge.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO parent_edge (child_id, parent_id, parent_role, source)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (child_id, parent_id, source) DO UPDATE SET parent_role = excluded.parent_role`,
		edge.ChildID, edge.ParentID, string(edge.Role), string(edge.Source))
	return wrapDBErrorf(err, "insert parent edge %s->%s", edge.ChildID, edge.ParentID)
}

// insertParentEdges batch-inserts edges through one prepared statement.
// Used by the crawler's finalize phase, which may carry thousands.
func insertParentEdges(ctx context.Context, q dbPreparer, edges []*types.ParentEdge) error {
	if len(edges) == 0 {
		return nil
	}
	stmt, err := q.PrepareContext(ctx, `
		INSERT INTO parent_edge (child_id, parent_id, parent_role, source)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (child_id, parent_id, source) DO UPDATE SET parent_role = excluded.parent_role`)
	if err != nil {
		return wrapDBError("prepare parent edge insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, edge := range edges {
		if err := edge.Validate(); err != nil {
			return fmt.Errorf("validation failed for edge %s->%s: %w", edge.ChildID, edge.ParentID, err)
		}
		if _, err := stmt.ExecContext(ctx, edge.ChildID, edge.ParentID, string(edge.Role), string(edge.Source)); err != nil {
			return wrapDBErrorf(err, "insert parent edge %s->%s", edge.ChildID, edge.ParentID)
		}
	}
	return nil
}

// AddParentEdge writes one parent edge in its own implicit transaction.
func (s *Store) AddParentEdge(ctx context.Context, edge *types.ParentEdge) error {
	return insertParentEdge(ctx, s.db, edge)
}

func queryParentEdges(ctx context.Context, q dbExecer, query string, arg string) ([]*types.ParentEdge, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, wrapDBError("query parent edges", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []*types.ParentEdge
	for rows.Next() {
		var e types.ParentEdge
		var role, source string
		if err := rows.Scan(&e.ChildID, &e.ParentID, &role, &source); err != nil {
			return nil, wrapDBError("scan parent edge", err)
		}
		e.Role = types.ParentRole(role)
		e.Source = types.Source(source)
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// GetParents returns the person's parent edges, father-role rows first so
// BFS enqueues fathers before mothers the way the crawl does.
func (s *Store) GetParents(ctx context.Context, personID string) ([]*types.ParentEdge, error) {
	return queryParentEdges(ctx, s.db, `
		SELECT child_id, parent_id, parent_role, source FROM parent_edge
		WHERE child_id = ?
		ORDER BY CASE parent_role WHEN 'father' THEN 0 WHEN 'mother' THEN 1 ELSE 2 END, parent_id`,
		personID)
}

// GetChildren returns edges where the person is the parent.
func (s *Store) GetChildren(ctx context.Context, personID string) ([]*types.ParentEdge, error) {
	return queryParentEdges(ctx, s.db, `
		SELECT child_id, parent_id, parent_role, source FROM parent_edge
		WHERE parent_id = ?
		ORDER BY child_id`,
		personID)
}

// insertSpouseEdge writes one spouse pair, canonicalized. Duplicates are
// tolerated.
func insertSpouseEdge(ctx context.Context, q dbExecer, edge *types.SpouseEdge) error {
	edge.Canonicalize()
	if err := edge.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO spouse_edge (person1_id, person2_id, source)
		VALUES (?, ?, ?)
		ON CONFLICT (person1_id, person2_id, source) DO NOTHING`,
		edge.Person1ID, edge.Person2ID, string(edge.Source))
	return wrapDBErrorf(err, "insert spouse edge %s-%s", edge.Person1ID, edge.Person2ID)
}

// AddSpouseEdge writes one spouse edge.
func (s *Store) AddSpouseEdge(ctx context.Context, edge *types.SpouseEdge) error {
	return insertSpouseEdge(ctx, s.db, edge)
}

// GetSpouses returns spouse edges touching the person from either side.
func (s *Store) GetSpouses(ctx context.Context, personID string) ([]*types.SpouseEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person1_id, person2_id, source FROM spouse_edge
		WHERE person1_id = ? OR person2_id = ?
		ORDER BY person1_id, person2_id`, personID, personID)
	if err != nil {
		return nil, wrapDBErrorf(err, "get spouses of %s", personID)
	}
	defer func() { _ = rows.Close() }()

	var edges []*types.SpouseEdge
	for rows.Next() {
		var e types.SpouseEdge
		var source string
		if err := rows.Scan(&e.Person1ID, &e.Person2ID, &source); err != nil {
			return nil, wrapDBError("scan spouse edge", err)
		}
		e.Source = types.Source(source)
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}
