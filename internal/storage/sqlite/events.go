package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// insertEvent writes one vital event. A second event of the same type
// from the same source replaces the first: providers revise dates and the
// newest fetch wins.
func insertEvent(ctx context.Context, q dbExecer, event *types.VitalEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	var year interface{}
	if event.DateYear != nil {
		year = *event.DateYear
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO vital_event (person_id, event_type, date_original, date_formal, date_year, place, place_id, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (person_id, event_type, source) DO UPDATE SET
			date_original = excluded.date_original,
			date_formal = excluded.date_formal,
			date_year = excluded.date_year,
			place = excluded.place,
			place_id = excluded.place_id`,
		event.PersonID, string(event.Type), event.DateOriginal, event.DateFormal,
		year, event.Place, event.PlaceID, string(event.Source))
	if err != nil {
		return wrapDBErrorf(err, "insert %s event for %s", event.Type, event.PersonID)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// AddEvent writes one vital event.
func (s *Store) AddEvent(ctx context.Context, event *types.VitalEvent) error {
	return insertEvent(ctx, s.db, event)
}

// GetEvents returns a person's vital events, birth first.
func (s *Store) GetEvents(ctx context.Context, personID string) ([]*types.VitalEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, person_id, event_type, date_original, date_formal, date_year, place, place_id, source
		FROM vital_event
		WHERE person_id = ?
		ORDER BY CASE event_type WHEN 'birth' THEN 0 WHEN 'christening' THEN 1 WHEN 'death' THEN 2 WHEN 'burial' THEN 3 ELSE 4 END, event_id`,
		personID)
	if err != nil {
		return nil, wrapDBErrorf(err, "get events for %s", personID)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.VitalEvent
	for rows.Next() {
		var e types.VitalEvent
		var eventType, source string
		var year sql.NullInt64
		if err := rows.Scan(&e.ID, &e.PersonID, &eventType, &e.DateOriginal, &e.DateFormal, &year, &e.Place, &e.PlaceID, &source); err != nil {
			return nil, wrapDBError("scan event", err)
		}
		e.Type = types.EventType(eventType)
		e.Source = types.Source(source)
		if year.Valid {
			y := int(year.Int64)
			e.DateYear = &y
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// insertClaim writes one claim and refreshes the person's FTS row when
// the predicate feeds the index (alias, occupation, title). Duplicate
// claims are ignored.
func insertClaim(ctx context.Context, q dbExecer, claim *types.Claim) error {
	if err := claim.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO claim (person_id, predicate, value_text, source)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (person_id, predicate, value_text, source) DO NOTHING`,
		claim.PersonID, claim.Predicate, claim.ValueText, string(claim.Source))
	if err != nil {
		return wrapDBErrorf(err, "insert %s claim for %s", claim.Predicate, claim.PersonID)
	}
	if id, err := res.LastInsertId(); err == nil {
		claim.ID = id
	}
	switch claim.Predicate {
	case types.PredicateAlias, types.PredicateOccupation, types.PredicateTitle:
		return refreshPersonFTS(ctx, q, claim.PersonID)
	}
	return nil
}

// AddClaim writes one claim and keeps the FTS row current, atomically.
func (s *Store) AddClaim(ctx context.Context, claim *types.Claim) error {
	return s.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.AddClaim(ctx, claim)
	})
}

// GetClaims returns a person's claims grouped by predicate.
func (s *Store) GetClaims(ctx context.Context, personID string) ([]*types.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT claim_id, person_id, predicate, value_text, source
		FROM claim
		WHERE person_id = ?
		ORDER BY predicate, claim_id`, personID)
	if err != nil {
		return nil, wrapDBErrorf(err, "get claims for %s", personID)
	}
	defer func() { _ = rows.Close() }()

	var claims []*types.Claim
	for rows.Next() {
		var c types.Claim
		var source string
		if err := rows.Scan(&c.ID, &c.PersonID, &c.Predicate, &c.ValueText, &source); err != nil {
			return nil, wrapDBError("scan claim", err)
		}
		c.Source = types.Source(source)
		claims = append(claims, &c)
	}
	return claims, rows.Err()
}
