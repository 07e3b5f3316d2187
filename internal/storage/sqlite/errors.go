package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/atomantic/SparseTree-sub004/internal/storage"
)

// wrapDBError wraps a database error with operation context and converts
// driver-level conditions to the package sentinels: sql.ErrNoRows becomes
// storage.ErrNotFound, constraint violations become storage.ErrConflict,
// corruption and disk-full become their fatal sentinels.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	case isConstraintError(err):
		return fmt.Errorf("%s: %w: %v", op, storage.ErrConflict, err)
	case isCorruptionError(err):
		return fmt.Errorf("%s: %w: %v", op, storage.ErrCorrupted, err)
	case isFullError(err):
		return fmt.Errorf("%s: %w: %v", op, storage.ErrStoreFull, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// wrapDBErrorf is wrapDBError with a formatted operation description.
func wrapDBErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return wrapDBError(fmt.Sprintf(format, args...), err)
}

// isConstraintError checks whether the error is a SQLite constraint
// violation. The ncruces driver surfaces these as text containing the
// SQLITE_CONSTRAINT message.
func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "CONSTRAINT")
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "corrupt") || strings.Contains(msg, "not a database")
}

func isFullError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database or disk is full") || strings.Contains(msg, "no space left")
}

// isBusyError checks for SQLITE_BUSY / locked conditions that warrant a
// begin retry.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
