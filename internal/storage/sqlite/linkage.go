package sqlite

import (
	"context"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// FindParentLinkageGaps returns, for one database, every parent edge
// whose child holds an identity under the target source while the parent
// holds none. Each gap carries the child's current external ID so the
// discovery matcher can fetch the child's record and read its parent
// slots. One row per (parent, child) pair, highest-confidence child
// identity only.
func (s *Store) FindParentLinkageGaps(ctx context.Context, dbID string, source types.Source) ([]*types.LinkageGap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pe.parent_id, p.display_name, pe.parent_role, pe.child_id, ci.external_id
		FROM parent_edge pe
		JOIN database_person dp ON dp.person_id = pe.parent_id AND dp.db_id = ?
		JOIN person p ON p.person_id = pe.parent_id
		JOIN external_identity ci ON ci.person_id = pe.child_id AND ci.source = ?
		WHERE NOT EXISTS (
			SELECT 1 FROM external_identity pi
			WHERE pi.person_id = pe.parent_id AND pi.source = ?
		)
		AND ci.rowid = (
			SELECT rowid FROM external_identity
			WHERE person_id = pe.child_id AND source = ?
			ORDER BY confidence DESC, registered_at DESC
			LIMIT 1
		)
		ORDER BY p.display_name, pe.parent_id, pe.child_id`,
		dbID, string(source), string(source), string(source))
	if err != nil {
		return nil, wrapDBErrorf(err, "find linkage gaps in %s", dbID)
	}
	defer func() { _ = rows.Close() }()

	var gaps []*types.LinkageGap
	for rows.Next() {
		var g types.LinkageGap
		var role string
		if err := rows.Scan(&g.ParentID, &g.ParentName, &role, &g.ChildID, &g.ChildExternalID); err != nil {
			return nil, wrapDBError("scan linkage gap", err)
		}
		g.Role = types.ParentRole(role)
		gaps = append(gaps, &g)
	}
	return gaps, rows.Err()
}
