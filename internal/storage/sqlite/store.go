// Package sqlite implements the storage interface on an embedded SQLite
// database (ncruces/go-sqlite3, WASM build), one file per data directory
// with WAL sidecars.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/atomantic/SparseTree-sub004/internal/storage"
)

// Verify Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// Store implements storage.Store on a single SQLite file.
type Store struct {
	db       *sql.DB
	dbPath   string
	blobRoot string      // directory for content-addressed blob files
	tempBlob bool        // blobRoot is a temp dir owned by this store (in-memory DBs)
	closed   atomic.Bool // tracks whether Close() has been called
}

// connPragmas are appended to every file connection string. The pragmas
// the store requires on open: foreign keys enforced, normal synchronous
// (durable enough under WAL), 64 MiB page cache, temp tables in memory,
// and a generous busy timeout for concurrent writers.
const connPragmas = "_pragma=foreign_keys(ON)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=cache_size(-65536)" +
	"&_pragma=temp_store(MEMORY)" +
	"&_pragma=busy_timeout(30000)" +
	"&_time_format=sqlite"

// setupWASMCache configures WASM compilation caching so the SQLite module
// is JIT-compiled once per toolchain version instead of on every process
// start. Falls back to an in-memory cache when the cache dir cannot be
// created.
func setupWASMCache() string {
	cacheDir := ""
	if userCache, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(userCache, "sparsetree", "wasm")
	}

	var cache wazero.CompilationCache
	if cacheDir != "" {
		if c, err := wazero.NewCompilationCacheWithDir(cacheDir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
		cacheDir = ""
	}

	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
	return cacheDir
}

func init() {
	_ = setupWASMCache()
}

// New opens (creating if needed) the database at path and brings its
// schema current. Pass ":memory:" for an ephemeral store.
func New(ctx context.Context, path string) (*Store, error) {
	var connStr string
	isInMemory := path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))

	switch {
	case path == ":memory:":
		// Shared cache so every pool connection sees the same data. WAL
		// does not apply to in-memory databases.
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&" + connPragmas
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&" + connPragmas
		}
	default:
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		connStr = "file:" + path + "?" + connPragmas
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isInMemory {
		// In-memory databases are per-connection by default; a single
		// connection keeps every reader on the same data.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports one writer plus unlimited readers; cap the pool to
		// keep write-lock contention from piling up goroutines.
		maxConns := runtime.NumCPU() + 1
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
	}

	if !isInMemory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, wrapDBError("initialize schema", err)
	}

	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := verifySchemaCompatibility(db); err != nil {
		// One retry: a concurrent opener may have been mid-migration.
		if retryErr := RunMigrations(db); retryErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migration retry failed after schema probe failure: %w (original: %w)", retryErr, err)
		}
		if err := verifySchemaCompatibility(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("schema probe failed after migration retry: %w: run 'st check' to diagnose", storage.ErrCorrupted)
		}
	}

	absPath := path
	if !isInMemory {
		absPath, err = filepath.Abs(path)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
	}

	s := &Store{db: db, dbPath: absPath}
	if isInMemory {
		blobRoot, err := os.MkdirTemp("", "sparsetree-blobs-")
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create blob temp dir: %w", err)
		}
		s.blobRoot = blobRoot
		s.tempBlob = true
	} else {
		s.blobRoot = filepath.Join(filepath.Dir(absPath), "blobs")
	}

	return s, nil
}

// verifySchemaCompatibility probes the tables every query path depends
// on. A failure here means the file is from an incompatible version or
// damaged.
func verifySchemaCompatibility(db *sql.DB) error {
	probes := []string{
		"SELECT person_id, display_name, birth_name, gender, living FROM person LIMIT 1",
		"SELECT person_id, source, external_id, confidence FROM external_identity LIMIT 1",
		"SELECT child_id, parent_id, parent_role, source FROM parent_edge LIMIT 1",
		"SELECT person_id, event_type, date_year, place_id FROM vital_event LIMIT 1",
		"SELECT db_id, person_id, is_root, generation FROM database_person LIMIT 1",
		"SELECT place_text, geocode_status FROM place_geocode LIMIT 1",
	}
	for _, probe := range probes {
		if _, err := db.Exec(probe); err != nil {
			return fmt.Errorf("schema probe failed: %w", err)
		}
	}
	return nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	// Without the checkpoint, writes may be stranded in the -wal sidecar
	// between process invocations.
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	if s.tempBlob {
		_ = os.RemoveAll(s.blobRoot)
	}
	return err
}

// IsClosed reports whether Close has been called.
func (s *Store) IsClosed() bool {
	return s.closed.Load()
}

// Path returns the absolute path of the database file.
func (s *Store) Path() string {
	return s.dbPath
}

// BlobRoot returns the directory holding content-addressed blob files.
func (s *Store) BlobRoot() string {
	return s.blobRoot
}

// UnderlyingDB exposes the pooled *sql.DB for maintenance commands.
// Callers must not close it or change pool settings or pragmas.
func (s *Store) UnderlyingDB() *sql.DB {
	return s.db
}

// CheckpointWAL flushes the WAL into the main database file, making the
// file safe to copy.
func (s *Store) CheckpointWAL(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)")
	return wrapDBError("checkpoint WAL", err)
}

// Backup writes a compacted snapshot of the database to destPath using
// VACUUM INTO. The destination must not already exist.
func (s *Store) Backup(ctx context.Context, destPath string) error {
	if destPath == "" {
		return fmt.Errorf("backup destination is required")
	}
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("backup destination %s already exists", destPath)
	}
	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create backup directory: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return wrapDBError("backup database", err)
	}
	return nil
}
