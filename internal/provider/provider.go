// Package provider defines the fetcher port the crawler depends on,
// the provider error taxonomy, per-provider rate-limit defaults, and
// the on-disk raw-record cache.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// ErrorKind classifies a fetch failure. The crawler's handling differs
// per kind: transient retries, deleted purges and refreshes children,
// auth aborts the job, permanent logs and skips.
type ErrorKind string

// Error kinds.
const (
	KindTransient ErrorKind = "transient"
	KindDeleted   ErrorKind = "deleted"
	KindAuth      ErrorKind = "auth"
	KindPermanent ErrorKind = "permanent"
)

// Error is a classified provider failure.
type Error struct {
	Kind    ErrorKind
	Code    int // HTTP status when applicable, else 0
	Message string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider error (%s, %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
}

// IsKind reports whether err is a provider error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

// deletedSignal is the provider message marking a record that no longer
// exists, typically after a merge. Matched by substring because no
// machine-readable code exists; isolated here so a stricter protocol
// can replace it without touching the crawler.
const deletedSignal = "unable to read person"

// IsDeletedMessage reports whether a provider message carries the
// deleted-record signal.
func IsDeletedMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), deletedSignal)
}

// Fetcher retrieves one raw person record. Implementations return the
// verbatim provider JSON or a *Error; the crawler depends only on this
// port, so tests substitute fakes and production may route through an
// HTTP client or a browser driver.
type Fetcher interface {
	Fetch(ctx context.Context, source types.Source, externalID string) ([]byte, error)
}

// Delays is a provider's polite-crawling window: after each successful
// fetch the crawler sleeps a uniform random duration inside it.
type Delays struct {
	Min time.Duration
	Max time.Duration
}

// defaultDelays per provider. Unknown sources fall back to the widest
// window.
var defaultDelays = map[types.Source]Delays{
	types.SourceFamilySearch: {Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond},
	types.SourceAncestry:     {Min: 1000 * time.Millisecond, Max: 3000 * time.Millisecond},
	types.SourceWikiTree:     {Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond},
	types.Source23AndMe:      {Min: 1000 * time.Millisecond, Max: 3000 * time.Millisecond},
}

// DefaultDelays returns the rate-limit window for a source.
func DefaultDelays(source types.Source) Delays {
	if d, ok := defaultDelays[source]; ok {
		return d
	}
	return Delays{Min: 1000 * time.Millisecond, Max: 3000 * time.Millisecond}
}
