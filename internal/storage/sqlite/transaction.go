package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// Verify txStore implements storage.Tx at compile time.
var _ storage.Tx = (*txStore)(nil)

// txStore implements storage.Tx over a dedicated connection holding an
// open transaction. Every method runs on that connection so all writes
// commit or roll back together.
type txStore struct {
	conn   *sql.Conn
	parent *Store
}

// beginImmediateWithRetry starts an IMMEDIATE transaction, retrying on
// SQLITE_BUSY with exponential backoff. IMMEDIATE acquires the write
// lock up front so two writers cannot deadlock mid-transaction.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn, attempts int, baseDelay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if !isBusyError(err) {
			return err
		}
		delay := baseDelay << uint(i)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("database busy after %d attempts: %w", attempts, err)
}

// RunInTransaction executes fn inside one transaction. On error or panic
// the transaction rolls back; panics are re-raised after rollback.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5, 10*time.Millisecond); err != nil {
		return wrapDBError("begin transaction", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback still runs when ctx is
			// already cancelled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&txStore{conn: conn, parent: s}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return wrapDBError("commit transaction", err)
	}
	committed = true
	return nil
}

func (t *txStore) CreatePerson(ctx context.Context, person *types.Person) error {
	return insertPerson(ctx, t.conn, person)
}

func (t *txStore) UpdatePerson(ctx context.Context, id string, updates map[string]interface{}) error {
	return updatePerson(ctx, t.conn, id, updates)
}

func (t *txStore) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	return getPerson(ctx, t.conn, id)
}

func (t *txStore) AddIdentity(ctx context.Context, identity *types.ExternalIdentity) error {
	return insertIdentity(ctx, t.conn, identity)
}

func (t *txStore) FindPersonByExternalID(ctx context.Context, source types.Source, externalID string) (string, error) {
	return findPersonByExternalID(ctx, t.conn, source, externalID)
}

func (t *txStore) AddParentEdge(ctx context.Context, edge *types.ParentEdge) error {
	return insertParentEdge(ctx, t.conn, edge)
}

func (t *txStore) AddParentEdges(ctx context.Context, edges []*types.ParentEdge) error {
	return insertParentEdges(ctx, t.conn, edges)
}

func (t *txStore) AddSpouseEdge(ctx context.Context, edge *types.SpouseEdge) error {
	return insertSpouseEdge(ctx, t.conn, edge)
}

func (t *txStore) AddEvent(ctx context.Context, event *types.VitalEvent) error {
	return insertEvent(ctx, t.conn, event)
}

func (t *txStore) AddClaim(ctx context.Context, claim *types.Claim) error {
	return insertClaim(ctx, t.conn, claim)
}

func (t *txStore) EnsureDatabase(ctx context.Context, db *types.DatabaseInfo) error {
	return ensureDatabase(ctx, t.conn, db)
}

func (t *txStore) ReplaceMembers(ctx context.Context, dbID string, members []*types.DatabaseMember) error {
	return replaceMembers(ctx, t.conn, dbID, members)
}
