// Package geocode resolves event place strings to coordinates through a
// Nominatim-compatible endpoint, with a persistent per-place cache and a
// global serial rate limit.
//
// Public geocoding services require one request at a time with a minimum
// gap, so the client serializes all requests behind one gate regardless
// of how many goroutines call in. Unresolvable places broaden
// progressively: the left-most comma segment is dropped until a result
// appears or only a region and country remain.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/atomantic/SparseTree-sub004/internal/jobs"
	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/textutil"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// DefaultBaseURL is the public Nominatim endpoint.
const DefaultBaseURL = "https://nominatim.openstreetmap.org/search"

// defaultInterval is the minimum gap between requests. Nominatim's usage
// policy asks for at most one request per second; 1.1s keeps a margin.
const defaultInterval = 1100 * time.Millisecond

// defaultRetryWait is the pause after an HTTP 429 before the single
// retry.
const defaultRetryWait = 60 * time.Second

// minSegments is where broadening stops: a region and a country.
const minSegments = 2

// Client is a rate-limited geocoder over the store's place cache.
type Client struct {
	store     storage.Store
	http      *http.Client
	baseURL   string
	userAgent string
	log       *slog.Logger

	// Interval is the minimum gap between requests; RetryWait the pause
	// before the single 429 retry. Both overridable before first use.
	Interval  time.Duration
	RetryWait time.Duration

	mu   sync.Mutex // serializes requests; held across the HTTP call
	last time.Time
}

// New returns a geocoding client. baseURL "" uses the public Nominatim
// endpoint; a nil logger discards.
func New(store storage.Store, baseURL, userAgent string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		store:     store,
		http:      &http.Client{Timeout: 30 * time.Second},
		baseURL:   baseURL,
		userAgent: userAgent,
		log:       logger,
		Interval:  defaultInterval,
		RetryWait: defaultRetryWait,
	}
}

// Lookup geocodes one place string through the cache. Resolved and
// not_found cache rows return immediately without a network call; misses
// write a pending row, query with progressive broadening, and record the
// outcome. An error outcome leaves an error row behind so the next batch
// run retries it.
func (c *Client) Lookup(ctx context.Context, placeText string) (*types.PlaceGeocode, error) {
	norm := textutil.NormalizePlace(placeText)
	if norm == "" {
		return nil, fmt.Errorf("empty place text")
	}

	row, err := c.store.GetPlaceGeocode(ctx, norm)
	if err == nil && (row.Status == types.GeocodeResolved || row.Status == types.GeocodeNotFound) {
		return row, nil
	}
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	if err := c.store.UpsertPlaceGeocode(ctx, &types.PlaceGeocode{
		PlaceText: norm, Status: types.GeocodePending,
	}); err != nil {
		return nil, err
	}

	hit, err := c.search(ctx, norm)
	now := time.Now()
	switch {
	case err != nil:
		// Keep the failure in the cache so the next run retries it, but
		// surface the error to the caller.
		_ = c.store.UpsertPlaceGeocode(ctx, &types.PlaceGeocode{
			PlaceText: norm, Status: types.GeocodeError, GeocodedAt: &now,
		})
		return nil, fmt.Errorf("geocode %q: %w", norm, err)
	case hit == nil:
		row = &types.PlaceGeocode{PlaceText: norm, Status: types.GeocodeNotFound, GeocodedAt: &now}
	default:
		row = &types.PlaceGeocode{
			PlaceText:   norm,
			Lat:         &hit.lat,
			Lng:         &hit.lng,
			DisplayName: hit.displayName,
			Status:      types.GeocodeResolved,
			GeocodedAt:  &now,
		}
	}
	if err := c.store.UpsertPlaceGeocode(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// ResetNotFound flips every not_found cache row back to pending.
func (c *Client) ResetNotFound(ctx context.Context) (int64, error) {
	return c.store.ResetNotFoundPlaces(ctx)
}

// Runner returns the batch-geocode job body: every event place without a
// settled cache row, geocoded in order, cancellable between places.
func (c *Client) Runner() jobs.Runner {
	return func(ctx context.Context, emit func(types.Progress)) error {
		places, err := c.store.ListUngeocodedPlaces(ctx, 0)
		if err != nil {
			return err
		}
		counters := types.Counters{}
		for i, place := range places {
			if err := ctx.Err(); err != nil {
				return err
			}
			row, err := c.Lookup(ctx, place)
			switch {
			case err != nil && ctx.Err() != nil:
				return ctx.Err()
			case err != nil:
				c.log.Warn("geocode failed", "place", place, "error", err)
				counters.Errors++
			case row.Status == types.GeocodeResolved:
				counters.Discovered++
			default:
				counters.Skipped++
			}
			emit(types.Progress{
				Current:     i + 1,
				Total:       len(places),
				CurrentItem: place,
				Counters:    &counters,
			})
		}
		return nil
	}
}

type searchHit struct {
	lat, lng    float64
	displayName string
}

// search queries with progressive broadening: the full string first,
// then with the left-most comma segment dropped, stopping once only
// minSegments remain.
func (c *Client) search(ctx context.Context, place string) (*searchHit, error) {
	segments := splitSegments(place)
	for {
		hit, err := c.query(ctx, strings.Join(segments, ", "))
		if err != nil {
			return nil, err
		}
		if hit != nil {
			return hit, nil
		}
		if len(segments) <= minSegments {
			return nil, nil
		}
		c.log.Debug("broadening place query", "dropped", segments[0])
		segments = segments[1:]
	}
}

func splitSegments(place string) []string {
	var segments []string
	for _, seg := range strings.Split(place, ",") {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		segments = []string{place}
	}
	return segments
}

// errRateLimited marks an HTTP 429; the only retryable query failure.
type errRateLimited struct{}

func (errRateLimited) Error() string { return "rate limited (429)" }

// query performs one rate-gated request. A 429 sleeps RetryWait and
// retries exactly once.
func (c *Client) query(ctx context.Context, q string) (*searchHit, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.RetryWait), 1), ctx)

	var hit *searchHit
	err := backoff.Retry(func() error {
		h, err := c.queryOnce(ctx, q)
		if err != nil {
			if _, ok := err.(errRateLimited); ok {
				c.log.Warn("geocode rate limited, backing off", "query", q, "wait", c.RetryWait)
				return err
			}
			return backoff.Permanent(err)
		}
		hit = h
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return hit, nil
}

// queryOnce holds the serial gate across the request, so no two requests
// are ever in flight and consecutive request starts sit at least
// Interval apart.
func (c *Client) queryOnce(ctx context.Context, q string) (*searchHit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gap := c.Interval - time.Since(c.last); gap > 0 {
		if err := jobs.Sleep(ctx, gap); err != nil {
			return nil, err
		}
	}
	defer func() { c.last = time.Now() }()

	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")
	params.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errRateLimited{}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode endpoint returned %d", resp.StatusCode)
	}

	var results []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&results); err != nil {
		return nil, fmt.Errorf("malformed geocode response: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed latitude %q: %w", results[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed longitude %q: %w", results[0].Lon, err)
	}
	return &searchHit{lat: lat, lng: lng, displayName: results[0].DisplayName}, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
