package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atomantic/SparseTree-sub004/internal/idgen"
	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// ensureDatabase upserts a database row by name. Re-crawling an existing
// database updates its root, generation bound, and timestamp in place.
func ensureDatabase(ctx context.Context, q dbExecer, db *types.DatabaseInfo) error {
	if db.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if db.RootID == "" {
		return fmt.Errorf("database root is required")
	}

	var existingID string
	err := q.QueryRowContext(ctx, `SELECT db_id FROM database_info WHERE name = ?`, db.Name).Scan(&existingID)
	now := time.Now()
	switch {
	case err == sql.ErrNoRows:
		if db.ID == "" {
			db.ID = idgen.New()
		}
		db.CreatedAt = now
		db.UpdatedAt = now
		_, err = q.ExecContext(ctx, `
			INSERT INTO database_info (db_id, name, root_id, max_generations, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			db.ID, db.Name, db.RootID, db.MaxGenerations, db.CreatedAt, db.UpdatedAt)
		return wrapDBErrorf(err, "create database %s", db.Name)
	case err != nil:
		return wrapDBErrorf(err, "look up database %s", db.Name)
	}

	db.ID = existingID
	db.UpdatedAt = now
	_, err = q.ExecContext(ctx, `
		UPDATE database_info SET root_id = ?, max_generations = ?, updated_at = ?
		WHERE db_id = ?`,
		db.RootID, db.MaxGenerations, db.UpdatedAt, db.ID)
	return wrapDBErrorf(err, "update database %s", db.Name)
}

// CreateDatabase upserts a database row by name.
func (s *Store) CreateDatabase(ctx context.Context, db *types.DatabaseInfo) error {
	return ensureDatabase(ctx, s.db, db)
}

func scanDatabase(row *sql.Row) (*types.DatabaseInfo, error) {
	var db types.DatabaseInfo
	err := row.Scan(&db.ID, &db.Name, &db.RootID, &db.MaxGenerations, &db.CreatedAt, &db.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &db, nil
}

// GetDatabase looks a database up by name.
func (s *Store) GetDatabase(ctx context.Context, name string) (*types.DatabaseInfo, error) {
	db, err := scanDatabase(s.db.QueryRowContext(ctx, `
		SELECT db_id, name, root_id, max_generations, created_at, updated_at
		FROM database_info WHERE name = ?`, name))
	if err != nil {
		return nil, wrapDBErrorf(err, "get database %s", name)
	}
	return db, nil
}

// ListDatabases returns all databases, oldest first.
func (s *Store) ListDatabases(ctx context.Context) ([]*types.DatabaseInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT db_id, name, root_id, max_generations, created_at, updated_at
		FROM database_info ORDER BY created_at, name`)
	if err != nil {
		return nil, wrapDBError("list databases", err)
	}
	defer func() { _ = rows.Close() }()

	var dbs []*types.DatabaseInfo
	for rows.Next() {
		var db types.DatabaseInfo
		if err := rows.Scan(&db.ID, &db.Name, &db.RootID, &db.MaxGenerations, &db.CreatedAt, &db.UpdatedAt); err != nil {
			return nil, wrapDBError("scan database", err)
		}
		dbs = append(dbs, &db)
	}
	return dbs, rows.Err()
}

// DeleteDatabase removes a database and every person that belonged to no
// other database. Edges, events, claims, identities, media, membership,
// and favorites cascade; full-text rows are cleared here because FK
// cascades do not reach virtual tables.
func (s *Store) DeleteDatabase(ctx context.Context, name string) error {
	db, err := s.GetDatabase(ctx, name)
	if err != nil {
		return err
	}
	return s.RunInTransaction(ctx, func(tx storage.Tx) error {
		conn := tx.(*txStore).conn

		rows, err := conn.QueryContext(ctx, `
			SELECT person_id FROM database_person
			WHERE db_id = ?
			  AND person_id NOT IN (SELECT person_id FROM database_person WHERE db_id != ?)`,
			db.ID, db.ID)
		if err != nil {
			return wrapDBErrorf(err, "find sole members of %s", name)
		}
		var soleMembers []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return wrapDBError("scan sole member", err)
			}
			soleMembers = append(soleMembers, id)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return wrapDBError("iterate sole members", err)
		}
		_ = rows.Close()

		for _, personID := range soleMembers {
			if _, err := conn.ExecContext(ctx,
				`DELETE FROM person_fts WHERE rowid = (SELECT rowid FROM person WHERE person_id = ?)`,
				personID); err != nil {
				return wrapDBErrorf(err, "clear FTS row for %s", personID)
			}
			if _, err := conn.ExecContext(ctx, `DELETE FROM person WHERE person_id = ?`, personID); err != nil {
				return wrapDBErrorf(err, "delete person %s", personID)
			}
		}

		if _, err := conn.ExecContext(ctx, `DELETE FROM database_info WHERE db_id = ?`, db.ID); err != nil {
			return wrapDBErrorf(err, "delete database %s", name)
		}
		return nil
	})
}

// replaceMembers swaps a database's membership set wholesale, batched
// through one prepared statement. The crawler's finalize phase calls this
// with freshly computed generations.
func replaceMembers(ctx context.Context, q dbPreparer, dbID string, members []*types.DatabaseMember) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM database_person WHERE db_id = ?`, dbID); err != nil {
		return wrapDBErrorf(err, "clear members of %s", dbID)
	}
	if len(members) == 0 {
		return nil
	}
	stmt, err := q.PrepareContext(ctx, `
		INSERT INTO database_person (db_id, person_id, is_root, generation)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return wrapDBError("prepare member insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range members {
		if _, err := stmt.ExecContext(ctx, dbID, m.PersonID, boolToInt(m.IsRoot), m.Generation); err != nil {
			return wrapDBErrorf(err, "insert member %s", m.PersonID)
		}
	}
	return nil
}

// GetMembers returns a database's membership ordered by generation.
func (s *Store) GetMembers(ctx context.Context, dbID string) ([]*types.DatabaseMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT db_id, person_id, is_root, generation
		FROM database_person
		WHERE db_id = ?
		ORDER BY generation, person_id`, dbID)
	if err != nil {
		return nil, wrapDBErrorf(err, "get members of %s", dbID)
	}
	defer func() { _ = rows.Close() }()

	var members []*types.DatabaseMember
	for rows.Next() {
		var m types.DatabaseMember
		var isRoot int
		if err := rows.Scan(&m.DBID, &m.PersonID, &isRoot, &m.Generation); err != nil {
			return nil, wrapDBError("scan member", err)
		}
		m.IsRoot = isRoot != 0
		members = append(members, &m)
	}
	return members, rows.Err()
}

// AddFavorite marks a member of a database as interesting. The person
// must already belong to the database.
func (s *Store) AddFavorite(ctx context.Context, fav *types.Favorite) error {
	if fav.DBID == "" || fav.PersonID == "" {
		return fmt.Errorf("database and person IDs are required")
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM database_person WHERE db_id = ? AND person_id = ?`,
		fav.DBID, fav.PersonID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("person %s is not a member of database %s: %w", fav.PersonID, fav.DBID, storage.ErrNotFound)
	}
	if err != nil {
		return wrapDBError("check membership", err)
	}

	tags := fav.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	if fav.AddedAt.IsZero() {
		fav.AddedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO favorite (db_id, person_id, why_interesting, tags, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (db_id, person_id) DO UPDATE SET
			why_interesting = excluded.why_interesting,
			tags = excluded.tags`,
		fav.DBID, fav.PersonID, fav.WhyInteresting, string(tagsJSON), fav.AddedAt)
	return wrapDBErrorf(err, "add favorite %s", fav.PersonID)
}

// RemoveFavorite unmarks a favorite.
func (s *Store) RemoveFavorite(ctx context.Context, dbID, personID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM favorite WHERE db_id = ? AND person_id = ?`, dbID, personID)
	if err != nil {
		return wrapDBErrorf(err, "remove favorite %s", personID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("remove favorite", err)
	}
	if n == 0 {
		return fmt.Errorf("favorite %s in %s: %w", personID, dbID, storage.ErrNotFound)
	}
	return nil
}

// ListFavorites returns a database's favorites in the order they were
// added.
func (s *Store) ListFavorites(ctx context.Context, dbID string) ([]*types.Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT db_id, person_id, why_interesting, tags, added_at
		FROM favorite
		WHERE db_id = ?
		ORDER BY added_at, person_id`, dbID)
	if err != nil {
		return nil, wrapDBErrorf(err, "list favorites of %s", dbID)
	}
	defer func() { _ = rows.Close() }()

	var favs []*types.Favorite
	for rows.Next() {
		var f types.Favorite
		var tagsJSON string
		if err := rows.Scan(&f.DBID, &f.PersonID, &f.WhyInteresting, &tagsJSON, &f.AddedAt); err != nil {
			return nil, wrapDBError("scan favorite", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &f.Tags); err != nil {
			return nil, fmt.Errorf("corrupt tags for favorite %s: %w", f.PersonID, err)
		}
		favs = append(favs, &f)
	}
	return favs, rows.Err()
}
