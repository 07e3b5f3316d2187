package sqlite

import (
	"context"
	"fmt"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// GetStatistics counts every entity class for reporting.
func (s *Store) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	var stats types.Statistics
	counts := map[string]*int{
		"person":            &stats.Persons,
		"external_identity": &stats.Identities,
		"parent_edge":       &stats.ParentEdges,
		"spouse_edge":       &stats.SpouseEdges,
		"vital_event":       &stats.Events,
		"claim":             &stats.Claims,
		"database_info":     &stats.Databases,
		"favorite":          &stats.Favorites,
		"blob":              &stats.Blobs,
		"media":             &stats.Media,
		"place_geocode":     &stats.Places,
	}
	for table, dest := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(dest); err != nil {
			return nil, wrapDBErrorf(err, "count %s", table)
		}
	}
	return &stats, nil
}

// integrityProbes are the invariant checks run by CheckIntegrity. Each
// query returns rows describing violations; a healthy store returns none.
var integrityProbes = []struct {
	name  string
	query string
}{
	{
		"parent edge references missing child",
		`SELECT child_id FROM parent_edge
		 WHERE child_id NOT IN (SELECT person_id FROM person)`,
	},
	{
		"parent edge references missing parent",
		`SELECT parent_id FROM parent_edge
		 WHERE parent_id NOT IN (SELECT person_id FROM person)`,
	},
	{
		"media references missing blob",
		`SELECT media_id FROM media
		 WHERE blob_hash NOT IN (SELECT blob_hash FROM blob)`,
	},
	{
		"person missing FTS row",
		`SELECT person_id FROM person
		 WHERE rowid NOT IN (SELECT rowid FROM person_fts)`,
	},
	{
		"duplicate FTS rows",
		`SELECT person_id FROM person_fts
		 GROUP BY rowid HAVING COUNT(*) > 1`,
	},
	{
		"database root not at generation 0",
		`SELECT dp.db_id FROM database_person dp
		 JOIN database_info di ON di.db_id = dp.db_id AND di.root_id = dp.person_id
		 WHERE dp.generation != 0 OR dp.is_root = 0`,
	},
	{
		"identity row references missing person",
		`SELECT external_id FROM external_identity
		 WHERE person_id NOT IN (SELECT person_id FROM person)`,
	},
}

// CheckIntegrity runs PRAGMA integrity_check plus the structural probes
// and returns a human-readable line per violation. An empty slice means
// the store is healthy.
func (s *Store) CheckIntegrity(ctx context.Context) ([]string, error) {
	var problems []string

	var pragmaResult string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&pragmaResult); err != nil {
		return nil, wrapDBError("integrity check", err)
	}
	if pragmaResult != "ok" {
		problems = append(problems, fmt.Sprintf("sqlite integrity_check: %s", pragmaResult))
	}

	for _, probe := range integrityProbes {
		rows, err := s.db.QueryContext(ctx, probe.query)
		if err != nil {
			return nil, wrapDBErrorf(err, "probe %q", probe.name)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, wrapDBError("scan probe result", err)
			}
			problems = append(problems, fmt.Sprintf("%s: %s", probe.name, id))
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, wrapDBErrorf(err, "iterate probe %q", probe.name)
		}
		_ = rows.Close()
	}
	return problems, nil
}
