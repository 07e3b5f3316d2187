package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// AddIdentity registers an external identity in its own transaction.
func (s *Store) AddIdentity(ctx context.Context, identity *types.ExternalIdentity) error {
	return s.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.AddIdentity(ctx, identity)
	})
}

// insertIdentity upserts an identity row. Re-registering the same
// (source, external_id) for the same person refreshes url, confidence,
// and timestamp. Pointing the pair at a different person is a conflict.
//
// Provider merges leave a person with several identities under one
// source; prior rows that would tie or beat the incoming confidence are
// demoted just below it so the current mapping always wins lookups while
// the history stays queryable.
func insertIdentity(ctx context.Context, q dbExecer, identity *types.ExternalIdentity) error {
	if identity.Confidence == 0 {
		identity.Confidence = 1.0
	}
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if identity.RegisteredAt.IsZero() {
		identity.RegisteredAt = time.Now()
	}

	var existingPerson string
	err := q.QueryRowContext(ctx,
		`SELECT person_id FROM external_identity WHERE source = ? AND external_id = ?`,
		string(identity.Source), identity.ExternalID).Scan(&existingPerson)
	switch {
	case err == nil && existingPerson != identity.PersonID:
		return fmt.Errorf("identity (%s, %s) already maps to person %s: %w",
			identity.Source, identity.ExternalID, existingPerson, storage.ErrConflict)
	case err == nil:
		_, err = q.ExecContext(ctx, `
			UPDATE external_identity SET url = ?, confidence = ?, registered_at = ?
			WHERE source = ? AND external_id = ?`,
			identity.URL, identity.Confidence, identity.RegisteredAt,
			string(identity.Source), identity.ExternalID)
		return wrapDBErrorf(err, "refresh identity (%s, %s)", identity.Source, identity.ExternalID)
	case !errors.Is(err, sql.ErrNoRows):
		return wrapDBErrorf(err, "look up identity (%s, %s)", identity.Source, identity.ExternalID)
	}

	// Demote prior identities of this (person, source) pair that would
	// shadow the new registration.
	_, err = q.ExecContext(ctx, `
		UPDATE external_identity SET confidence = MAX(0.0, ? - 0.1)
		WHERE person_id = ? AND source = ? AND external_id != ? AND confidence >= ?`,
		identity.Confidence, identity.PersonID, string(identity.Source),
		identity.ExternalID, identity.Confidence)
	if err != nil {
		return wrapDBErrorf(err, "demote prior identities for %s", identity.PersonID)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO external_identity (person_id, source, external_id, url, confidence, registered_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		identity.PersonID, string(identity.Source), identity.ExternalID,
		identity.URL, identity.Confidence, identity.RegisteredAt)
	return wrapDBErrorf(err, "insert identity (%s, %s)", identity.Source, identity.ExternalID)
}

// ListIdentities returns every identity row for a person, current first.
func (s *Store) ListIdentities(ctx context.Context, personID string) ([]*types.ExternalIdentity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person_id, source, external_id, url, confidence, registered_at
		FROM external_identity
		WHERE person_id = ?
		ORDER BY source, confidence DESC, registered_at DESC`, personID)
	if err != nil {
		return nil, wrapDBErrorf(err, "list identities for %s", personID)
	}
	defer func() { _ = rows.Close() }()

	var identities []*types.ExternalIdentity
	for rows.Next() {
		var id types.ExternalIdentity
		var source string
		if err := rows.Scan(&id.PersonID, &source, &id.ExternalID, &id.URL, &id.Confidence, &id.RegisteredAt); err != nil {
			return nil, wrapDBError("scan identity", err)
		}
		id.Source = types.Source(source)
		identities = append(identities, &id)
	}
	return identities, rows.Err()
}

// GetCurrentIdentity returns the highest-confidence, most recently
// registered identity for (person, source).
func (s *Store) GetCurrentIdentity(ctx context.Context, personID string, source types.Source) (*types.ExternalIdentity, error) {
	var id types.ExternalIdentity
	var src string
	err := s.db.QueryRowContext(ctx, `
		SELECT person_id, source, external_id, url, confidence, registered_at
		FROM external_identity
		WHERE person_id = ? AND source = ?
		ORDER BY confidence DESC, registered_at DESC
		LIMIT 1`, personID, string(source)).
		Scan(&id.PersonID, &src, &id.ExternalID, &id.URL, &id.Confidence, &id.RegisteredAt)
	if err != nil {
		return nil, wrapDBErrorf(err, "current identity of %s on %s", personID, source)
	}
	id.Source = types.Source(src)
	return &id, nil
}

func findPersonByExternalID(ctx context.Context, q dbExecer, source types.Source, externalID string) (string, error) {
	var personID string
	err := q.QueryRowContext(ctx,
		`SELECT person_id FROM external_identity WHERE source = ? AND external_id = ?`,
		string(source), externalID).Scan(&personID)
	if err != nil {
		return "", wrapDBErrorf(err, "find person by (%s, %s)", source, externalID)
	}
	return personID, nil
}

// FindPersonByExternalID resolves (source, external_id) to a canonical ID.
func (s *Store) FindPersonByExternalID(ctx context.Context, source types.Source, externalID string) (string, error) {
	return findPersonByExternalID(ctx, s.db, source, externalID)
}

// FindPersonByExternalIDAnySource resolves an external ID regardless of
// source, preferring the highest-confidence mapping.
func (s *Store) FindPersonByExternalIDAnySource(ctx context.Context, externalID string) (string, error) {
	var personID string
	err := s.db.QueryRowContext(ctx, `
		SELECT person_id FROM external_identity
		WHERE external_id = ?
		ORDER BY confidence DESC, registered_at DESC
		LIMIT 1`, externalID).Scan(&personID)
	if err != nil {
		return "", wrapDBErrorf(err, "find person by external ID %s", externalID)
	}
	return personID, nil
}
