package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// dbExecer is the slice of *sql.DB / *sql.Conn / *sql.Tx the row helpers
// need, so the same code serves both pooled and transactional paths.
type dbExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// dbPreparer adds statement preparation for batch inserts.
type dbPreparer interface {
	dbExecer
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// CreatePerson inserts a person and its full-text row in one transaction.
func (s *Store) CreatePerson(ctx context.Context, person *types.Person) error {
	return s.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.CreatePerson(ctx, person)
	})
}

// insertPerson writes the person row and its FTS row. Caller provides the
// transaction boundary.
func insertPerson(ctx context.Context, q dbExecer, person *types.Person) error {
	if err := person.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	now := time.Now()
	if person.CreatedAt.IsZero() {
		person.CreatedAt = now
	}
	person.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO person (person_id, display_name, birth_name, gender, living, bio, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		person.ID, person.DisplayName, person.BirthName, string(person.Gender),
		boolToInt(person.Living), person.Bio, person.CreatedAt, person.UpdatedAt,
	)
	if err != nil {
		return wrapDBErrorf(err, "insert person %s", person.ID)
	}
	return refreshPersonFTS(ctx, q, person.ID)
}

// updatePerson applies a partial update. Allowed keys: display_name,
// birth_name, gender, living, bio. updated_at is always bumped.
func updatePerson(ctx context.Context, q dbExecer, id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	allowed := map[string]bool{
		"display_name": true,
		"birth_name":   true,
		"gender":       true,
		"living":       true,
		"bio":          true,
	}
	// Deterministic clause order keeps statements stable across calls.
	keys := make([]string, 0, len(updates))
	for k := range updates {
		if !allowed[k] {
			return fmt.Errorf("update of column %q not permitted", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	setClauses := make([]string, 0, len(keys)+1)
	args := make([]interface{}, 0, len(keys)+2)
	for _, k := range keys {
		v := updates[k]
		if k == "living" {
			if b, ok := v.(bool); ok {
				v = boolToInt(b)
			}
		}
		setClauses = append(setClauses, k+" = ?")
		args = append(args, v)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now())
	args = append(args, id)

	res, err := q.ExecContext(ctx,
		"UPDATE person SET "+strings.Join(setClauses, ", ")+" WHERE person_id = ?", args...)
	if err != nil {
		return wrapDBErrorf(err, "update person %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("update person", err)
	}
	if n == 0 {
		return fmt.Errorf("update person %s: %w", id, storage.ErrNotFound)
	}
	return refreshPersonFTS(ctx, q, id)
}

// UpdatePerson applies a partial update and refreshes the FTS row in one
// transaction.
func (s *Store) UpdatePerson(ctx context.Context, id string, updates map[string]interface{}) error {
	return s.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.UpdatePerson(ctx, id, updates)
	})
}

func scanPerson(row *sql.Row) (*types.Person, error) {
	var p types.Person
	var gender string
	var living int
	err := row.Scan(&p.ID, &p.DisplayName, &p.BirthName, &gender, &living, &p.Bio, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Gender = types.Gender(gender)
	p.Living = living != 0
	return &p, nil
}

const personColumns = "person_id, display_name, birth_name, gender, living, bio, created_at, updated_at"

func getPerson(ctx context.Context, q dbExecer, id string) (*types.Person, error) {
	p, err := scanPerson(q.QueryRowContext(ctx,
		"SELECT "+personColumns+" FROM person WHERE person_id = ?", id))
	if err != nil {
		return nil, wrapDBErrorf(err, "get person %s", id)
	}
	return p, nil
}

// GetPerson fetches one person by canonical ID.
func (s *Store) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	return getPerson(ctx, s.db, id)
}

// ListPersons returns persons matching the filter, newest first.
func (s *Store) ListPersons(ctx context.Context, filter types.PersonFilter) ([]*types.Person, error) {
	query := "SELECT " + personColumns + " FROM person"
	var whereClauses []string
	var args []interface{}

	if filter.Gender != nil {
		whereClauses = append(whereClauses, "gender = ?")
		args = append(args, string(*filter.Gender))
	}
	if filter.Living != nil {
		whereClauses = append(whereClauses, "living = ?")
		args = append(args, boolToInt(*filter.Living))
	}
	if filter.Source != nil {
		whereClauses = append(whereClauses, "person_id IN (SELECT person_id FROM external_identity WHERE source = ?)")
		args = append(args, string(*filter.Source))
	}
	if filter.NameContains != "" {
		whereClauses = append(whereClauses, "(display_name LIKE ? COLLATE NOCASE OR birth_name LIKE ? COLLATE NOCASE)")
		pattern := "%" + filter.NameContains + "%"
		args = append(args, pattern, pattern)
	}
	if filter.DBID != "" {
		whereClauses = append(whereClauses, "person_id IN (SELECT person_id FROM database_person WHERE db_id = ?)")
		args = append(args, filter.DBID)
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY created_at DESC, person_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list persons", err)
	}
	defer func() { _ = rows.Close() }()

	var persons []*types.Person
	for rows.Next() {
		var p types.Person
		var gender string
		var living int
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.BirthName, &gender, &living, &p.Bio, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, wrapDBError("scan person", err)
		}
		p.Gender = types.Gender(gender)
		p.Living = living != 0
		persons = append(persons, &p)
	}
	return persons, rows.Err()
}

// SearchPersons runs a full-text query over names, aliases, bios, and
// occupations. Simple single-word queries get a trailing * for prefix
// matching; anything containing FTS syntax passes through untouched.
func (s *Store) SearchPersons(ctx context.Context, query string, limit int) ([]*types.SearchResult, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	matchQuery := query
	if !strings.ContainsAny(matchQuery, " \"*:()") {
		matchQuery += "*"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.person_id, p.display_name,
		       snippet(person_fts, 1, '[', ']', '…', 16),
		       bm25(person_fts)
		FROM person_fts
		JOIN person p ON person_fts.rowid = p.rowid
		WHERE person_fts MATCH ?
		ORDER BY bm25(person_fts)
		LIMIT ?`, matchQuery, limit)
	if err != nil {
		return nil, wrapDBErrorf(err, "search %q", query)
	}
	defer func() { _ = rows.Close() }()

	var results []*types.SearchResult
	for rows.Next() {
		var r types.SearchResult
		if err := rows.Scan(&r.PersonID, &r.DisplayName, &r.Snippet, &r.Rank); err != nil {
			return nil, wrapDBError("scan search result", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// refreshPersonFTS recomputes the person's full-text row from the person
// row plus alias/occupation/title claims. Runs inside whatever statement
// scope the caller holds, so the index can never disagree with the base
// row within a transaction.
func refreshPersonFTS(ctx context.Context, q dbExecer, personID string) error {
	var rowid int64
	var displayName, birthName, bio string
	err := q.QueryRowContext(ctx,
		`SELECT rowid, display_name, birth_name, bio FROM person WHERE person_id = ?`,
		personID).Scan(&rowid, &displayName, &birthName, &bio)
	if err != nil {
		return wrapDBErrorf(err, "load person %s for FTS", personID)
	}

	aliases, err := claimValues(ctx, q, personID, types.PredicateAlias)
	if err != nil {
		return err
	}
	occupations, err := claimValues(ctx, q, personID, types.PredicateOccupation, types.PredicateTitle)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM person_fts WHERE rowid = ?`, rowid); err != nil {
		return wrapDBErrorf(err, "clear FTS row for %s", personID)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO person_fts (rowid, person_id, display_name, birth_name, aliases, bio, occupations)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rowid, personID, displayName, birthName,
		strings.Join(aliases, " "), bio, strings.Join(occupations, " "),
	)
	if err != nil {
		return wrapDBErrorf(err, "write FTS row for %s", personID)
	}
	return nil
}

func claimValues(ctx context.Context, q dbExecer, personID string, predicates ...string) ([]string, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(predicates)), ",")
	args := make([]interface{}, 0, len(predicates)+1)
	args = append(args, personID)
	for _, p := range predicates {
		args = append(args, p)
	}
	rows, err := q.QueryContext(ctx,
		`SELECT value_text FROM claim WHERE person_id = ? AND predicate IN (`+placeholders+`) ORDER BY claim_id`,
		args...)
	if err != nil {
		return nil, wrapDBErrorf(err, "load claims for %s", personID)
	}
	defer func() { _ = rows.Close() }()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, wrapDBError("scan claim value", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
