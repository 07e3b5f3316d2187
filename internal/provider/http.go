package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// requestTimeout bounds each provider request end to end. Retries get a
// fresh request but never extend an attempt past this.
const requestTimeout = 30 * time.Second

// Endpoint builds the record URL for one provider. Injected so tests
// can point the fetcher at a local server.
type Endpoint func(source types.Source, externalID string) string

// HTTPFetcher fetches person records over HTTP. Classification of
// failures into the error taxonomy happens here so the crawler sees
// only *Error values.
type HTTPFetcher struct {
	client   *http.Client
	endpoint Endpoint
	agent    string
}

// NewHTTPFetcher returns a fetcher with the default request timeout.
func NewHTTPFetcher(endpoint Endpoint, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{Timeout: requestTimeout},
		endpoint: endpoint,
		agent:    userAgent,
	}
}

// Fetch retrieves one raw record. Network failures and 5xx/429 map to
// transient, 401/403 to auth, other 4xx to permanent; a body carrying
// the deleted signal maps to deleted regardless of status.
func (f *HTTPFetcher) Fetch(ctx context.Context, source types.Source, externalID string) ([]byte, error) {
	url := f.endpoint(source, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: KindPermanent, Message: fmt.Sprintf("build request for %s: %v", externalID, err)}
	}
	req.Header.Set("User-Agent", f.agent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// DNS failures, resets, timeouts: all worth a retry.
		return nil, &Error{Kind: KindTransient, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: fmt.Sprintf("read body for %s: %v", externalID, err)}
	}

	if IsDeletedMessage(string(body)) {
		return nil, &Error{Kind: KindDeleted, Code: resp.StatusCode, Message: fmt.Sprintf("record %s deleted on provider", externalID)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &Error{Kind: KindTransient, Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: KindAuth, Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	default:
		return nil, &Error{Kind: KindPermanent, Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if !json.Valid(body) {
		return nil, &Error{Kind: KindPermanent, Message: fmt.Sprintf("record %s is not valid JSON", externalID)}
	}
	return body, nil
}
