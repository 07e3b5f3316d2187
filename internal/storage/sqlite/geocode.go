package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// GetPlaceGeocode looks up a geocode cache row by normalized place text.
func (s *Store) GetPlaceGeocode(ctx context.Context, placeText string) (*types.PlaceGeocode, error) {
	var g types.PlaceGeocode
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT place_text, lat, lng, display_name, geocode_status, geocoded_at
		FROM place_geocode WHERE place_text = ?`, placeText).
		Scan(&g.PlaceText, &g.Lat, &g.Lng, &g.DisplayName, &status, &g.GeocodedAt)
	if err != nil {
		return nil, wrapDBErrorf(err, "get geocode for %q", placeText)
	}
	g.Status = types.GeocodeStatus(status)
	return &g, nil
}

// UpsertPlaceGeocode writes a geocode cache row, replacing any prior
// state for the same place text.
func (s *Store) UpsertPlaceGeocode(ctx context.Context, row *types.PlaceGeocode) error {
	if row.PlaceText == "" {
		return fmt.Errorf("place text is required")
	}
	if !row.Status.IsValid() {
		return fmt.Errorf("invalid geocode status: %s", row.Status)
	}
	if row.GeocodedAt == nil {
		now := time.Now()
		row.GeocodedAt = &now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO place_geocode (place_text, lat, lng, display_name, geocode_status, geocoded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (place_text) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			display_name = excluded.display_name,
			geocode_status = excluded.geocode_status,
			geocoded_at = excluded.geocoded_at`,
		row.PlaceText, row.Lat, row.Lng, row.DisplayName, string(row.Status), row.GeocodedAt)
	return wrapDBErrorf(err, "upsert geocode for %q", row.PlaceText)
}

// ListPlacesByStatus returns cache rows in one status, oldest first.
func (s *Store) ListPlacesByStatus(ctx context.Context, status types.GeocodeStatus, limit int) ([]*types.PlaceGeocode, error) {
	query := `
		SELECT place_text, lat, lng, display_name, geocode_status, geocoded_at
		FROM place_geocode
		WHERE geocode_status = ?
		ORDER BY geocoded_at, place_text`
	args := []interface{}{string(status)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBErrorf(err, "list %s places", status)
	}
	defer func() { _ = rows.Close() }()

	var places []*types.PlaceGeocode
	for rows.Next() {
		var g types.PlaceGeocode
		var st string
		if err := rows.Scan(&g.PlaceText, &g.Lat, &g.Lng, &g.DisplayName, &st, &g.GeocodedAt); err != nil {
			return nil, wrapDBError("scan geocode row", err)
		}
		g.Status = types.GeocodeStatus(st)
		places = append(places, &g)
	}
	return places, rows.Err()
}

// ListUngeocodedPlaces returns distinct event place texts that have no
// resolved or not_found cache row yet: the batch geocode work list.
// Place texts come back raw; the geocoder normalizes them.
func (s *Store) ListUngeocodedPlaces(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT DISTINCT place FROM vital_event
		WHERE place != ''
		  AND lower(trim(place)) NOT IN (
			SELECT place_text FROM place_geocode
			WHERE geocode_status IN ('resolved', 'not_found')
		  )
		ORDER BY place`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list ungeocoded places", err)
	}
	defer func() { _ = rows.Close() }()

	var places []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, wrapDBError("scan place", err)
		}
		places = append(places, p)
	}
	return places, rows.Err()
}

// ResetNotFoundPlaces flips every not_found row back to pending so an
// improved broadening strategy can retry them. Returns the row count.
func (s *Store) ResetNotFoundPlaces(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE place_geocode SET geocode_status = 'pending'
		WHERE geocode_status = 'not_found'`)
	if err != nil {
		return 0, wrapDBError("reset not_found places", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapDBError("reset not_found places", err)
	}
	return n, nil
}
