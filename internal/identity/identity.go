// Package identity maps between canonical person IDs and provider
// external IDs.
//
// The map is a thin stateless wrapper over the store: every lookup and
// registration is one store call or one transaction, so concurrent
// crawlers share it safely.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/atomantic/SparseTree-sub004/internal/idgen"
	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// ErrUnresolved is returned by Resolve when the input matched nothing.
// The input ID is still returned so callers can decide whether to treat
// it as a not-found or pass it through.
var ErrUnresolved = errors.New("identity not resolved")

// Map resolves and registers external identities.
type Map struct {
	store storage.Store
}

// NewMap returns an identity map over the given store.
func NewMap(store storage.Store) *Map {
	return &Map{store: store}
}

// Resolve turns an ID of unknown provenance into a canonical person ID.
// Resolution order: an ID in the canonical alphabet wins as-is; then an
// external identity under hintSource; then an identity under any source.
// When nothing matches, the input comes back unchanged wrapped in
// ErrUnresolved.
func (m *Map) Resolve(ctx context.Context, id string, hintSource types.Source) (string, error) {
	if idgen.IsCanonical(id) {
		return id, nil
	}
	if hintSource != "" {
		personID, err := m.store.FindPersonByExternalID(ctx, hintSource, id)
		if err == nil {
			return personID, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return "", err
		}
	}
	personID, err := m.store.FindPersonByExternalIDAnySource(ctx, id)
	if err == nil {
		return personID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	return id, fmt.Errorf("resolve %q: %w", id, ErrUnresolved)
}

// GetExternal returns the current (highest-confidence, most recent)
// external ID of a person under one source.
func (m *Map) GetExternal(ctx context.Context, internalID string, source types.Source) (string, error) {
	identity, err := m.store.GetCurrentIdentity(ctx, internalID, source)
	if err != nil {
		return "", err
	}
	return identity.ExternalID, nil
}

// CreateOptions carries optional fields for GetOrCreate.
type CreateOptions struct {
	Gender types.Gender
	Living bool
	URL    string
}

// GetOrCreate resolves (source, externalID) to a canonical ID, creating
// the person and its identity row atomically when absent. Idempotent:
// repeat calls return the same ID with no duplicate identity rows.
func (m *Map) GetOrCreate(ctx context.Context, source types.Source, externalID, displayName string, opts CreateOptions) (string, bool, error) {
	personID, err := m.store.FindPersonByExternalID(ctx, source, externalID)
	if err == nil {
		return personID, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", false, err
	}

	newID := idgen.New()
	if displayName == "" {
		displayName = "unknown"
	}
	err = m.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		// Re-check inside the transaction: a concurrent caller may have
		// created the person between the lookup and the write lock.
		existing, err := tx.FindPersonByExternalID(ctx, source, externalID)
		if err == nil {
			newID = existing
			return errAlreadyExists
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err := tx.CreatePerson(ctx, &types.Person{
			ID:          newID,
			DisplayName: displayName,
			Gender:      opts.Gender,
			Living:      opts.Living,
		}); err != nil {
			return err
		}
		return tx.AddIdentity(ctx, &types.ExternalIdentity{
			PersonID:   newID,
			Source:     source,
			ExternalID: externalID,
			URL:        opts.URL,
			Confidence: 1.0,
		})
	})
	if errors.Is(err, errAlreadyExists) {
		return newID, false, nil
	}
	if err != nil {
		return "", false, err
	}
	return newID, true, nil
}

// errAlreadyExists aborts the creation transaction when the race
// re-check finds the person; rollback then discards nothing.
var errAlreadyExists = errors.New("already exists")

// RegisterOptions carries optional fields for Register.
type RegisterOptions struct {
	URL        string
	Confidence float64 // 0 means 1.0
}

// Register upserts an external identity for an existing person. Prior
// identities of the same (person, source) pair are demoted below the new
// confidence rather than removed, preserving merge history.
func (m *Map) Register(ctx context.Context, internalID string, source types.Source, externalID string, opts RegisterOptions) error {
	confidence := opts.Confidence
	if confidence == 0 {
		confidence = 1.0
	}
	return m.store.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.AddIdentity(ctx, &types.ExternalIdentity{
			PersonID:   internalID,
			Source:     source,
			ExternalID: externalID,
			URL:        opts.URL,
			Confidence: confidence,
		})
	})
}
