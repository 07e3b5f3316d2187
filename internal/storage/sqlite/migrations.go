package sqlite

import (
	"database/sql"
	"fmt"
)

// Migration is a single idempotent schema change.
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of migrations applied at open.
// Each must be safe to run against both old files and files created
// fresh from the current schema constant.
var migrationsList = []Migration{
	{"event_date_formal_column", migrateEventDateFormalColumn},
	{"favorite_tags_column", migrateFavoriteTagsColumn},
	{"identity_lookup_index", migrateIdentityLookupIndex},
}

// RunMigrations executes all registered migrations in order under an
// EXCLUSIVE transaction so concurrent openers cannot race check-then-add
// column logic. Foreign keys are disabled for the duration because some
// migrations rebuild tables.
func RunMigrations(db *sql.DB) error {
	// PRAGMA foreign_keys is a no-op inside a transaction, so toggle it
	// before BEGIN.
	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("failed to disable foreign keys for migrations: %w", err)
	}
	defer func() { _, _ = db.Exec("PRAGMA foreign_keys = ON") }()

	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, m := range migrationsList {
		applied, err := migrationApplied(db, m.Name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := m.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (name) VALUES (?)`, m.Name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.Name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true
	return nil
}

func migrationApplied(db *sql.DB, name string) (bool, error) {
	var got string
	err := db.QueryRow(`SELECT name FROM schema_migrations WHERE name = ?`, name).Scan(&got)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check migration %s: %w", name, err)
	}
	return true, nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	var name string
	err := db.QueryRow(`SELECT name FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s.%s: %w", table, column, err)
	}
	return true, nil
}

// Early files recorded only the original date text; the formal ISO-ish
// string was added once the codec started carrying it.
func migrateEventDateFormalColumn(db *sql.DB) error {
	exists, err := columnExists(db, "vital_event", "date_formal")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE vital_event ADD COLUMN date_formal TEXT NOT NULL DEFAULT ''`)
	if err != nil {
		return fmt.Errorf("failed to add date_formal column: %w", err)
	}
	return nil
}

// Favorites originally had no tags.
func migrateFavoriteTagsColumn(db *sql.DB) error {
	exists, err := columnExists(db, "favorite", "tags")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE favorite ADD COLUMN tags TEXT NOT NULL DEFAULT '[]'`)
	if err != nil {
		return fmt.Errorf("failed to add tags column: %w", err)
	}
	return nil
}

// Composite index for the hot current-identity lookup.
func migrateIdentityLookupIndex(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_identity_lookup
		ON external_identity(person_id, source, confidence DESC, registered_at DESC)`)
	if err != nil {
		return fmt.Errorf("failed to create identity lookup index: %w", err)
	}
	return nil
}
