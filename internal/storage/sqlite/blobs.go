package sqlite

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/atomantic/SparseTree-sub004/internal/idgen"
	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

// blobExtensions maps the mime types we expect from providers to file
// extensions. Anything else is stored bare; the mime type in the row is
// authoritative, the extension is a convenience for humans poking at the
// blob directory.
var blobExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
}

// blobRelPath returns the path of a blob relative to the blob root:
// a two-character fan-out directory keyed by the leading hash bytes.
func blobRelPath(hash, mimeType string) string {
	return filepath.Join(hash[:2], hash+blobExtensions[mimeType])
}

// StoreBlob writes data into the content-addressed store. The hash is
// the lowercase hex SHA-256 of the bytes; storing the same bytes twice
// returns isNew=false and leaves the single on-disk file untouched.
// Images get width/height probed for the metadata row.
func (s *Store) StoreBlob(ctx context.Context, data []byte, mimeType string) (string, bool, error) {
	if len(data) == 0 {
		return "", false, fmt.Errorf("blob data is empty")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT blob_hash FROM blob WHERE blob_hash = ?`, hash).Scan(&existing)
	if err == nil {
		return hash, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, wrapDBErrorf(err, "look up blob %s", hash)
	}

	relPath := blobRelPath(hash, mimeType)
	absPath := filepath.Join(s.blobRoot, relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o750); err != nil {
		return "", false, fmt.Errorf("failed to create blob directory: %w", err)
	}
	// Write-then-rename so a crash never leaves a partial file under the
	// content address.
	tmp, err := os.CreateTemp(filepath.Dir(absPath), ".blob-*")
	if err != nil {
		return "", false, fmt.Errorf("failed to create blob temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", false, fmt.Errorf("failed to write blob %s: %w", hash, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", false, fmt.Errorf("failed to close blob %s: %w", hash, err)
	}
	if err := os.Rename(tmp.Name(), absPath); err != nil {
		_ = os.Remove(tmp.Name())
		return "", false, fmt.Errorf("failed to place blob %s: %w", hash, err)
	}

	var width, height *int
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		width, height = &cfg.Width, &cfg.Height
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blob (blob_hash, path, mime_type, size_bytes, width, height)
		VALUES (?, ?, ?, ?, ?, ?)`,
		hash, relPath, mimeType, int64(len(data)), width, height)
	if err != nil {
		_ = os.Remove(absPath)
		return "", false, wrapDBErrorf(err, "insert blob %s", hash)
	}
	return hash, true, nil
}

// OpenBlob returns a reader over the blob's bytes plus its metadata row.
func (s *Store) OpenBlob(ctx context.Context, hash string) (io.ReadCloser, *types.Blob, error) {
	blob, err := s.getBlob(ctx, hash)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.blobRoot, blob.Path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("blob %s file missing from disk: %w", hash, storage.ErrCorrupted)
		}
		return nil, nil, fmt.Errorf("failed to open blob %s: %w", hash, err)
	}
	return f, blob, nil
}

func (s *Store) getBlob(ctx context.Context, hash string) (*types.Blob, error) {
	var b types.Blob
	err := s.db.QueryRowContext(ctx, `
		SELECT blob_hash, path, mime_type, size_bytes, width, height
		FROM blob WHERE blob_hash = ?`, hash).
		Scan(&b.Hash, &b.Path, &b.MimeType, &b.SizeBytes, &b.Width, &b.Height)
	if err != nil {
		return nil, wrapDBErrorf(err, "get blob %s", hash)
	}
	return &b, nil
}

// DeleteBlob removes a blob row and its file. Refused with ErrBlobInUse
// while any media row references the hash.
func (s *Store) DeleteBlob(ctx context.Context, hash string) error {
	blob, err := s.getBlob(ctx, hash)
	if err != nil {
		return err
	}
	var refs int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media WHERE blob_hash = ?`, hash).Scan(&refs); err != nil {
		return wrapDBErrorf(err, "count references of blob %s", hash)
	}
	if refs > 0 {
		return fmt.Errorf("blob %s has %d media references: %w", hash, refs, storage.ErrBlobInUse)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blob WHERE blob_hash = ?`, hash); err != nil {
		return wrapDBErrorf(err, "delete blob %s", hash)
	}
	// Row first, file second: an orphan file is recoverable garbage, an
	// orphan row is a dangling reference.
	if err := os.Remove(filepath.Join(s.blobRoot, blob.Path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove blob file %s: %w", blob.Path, err)
	}
	return nil
}

// GCBlobs deletes every blob with zero media references and returns the
// count removed. Only runs on explicit request.
func (s *Store) GCBlobs(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT blob_hash FROM blob
		WHERE blob_hash NOT IN (SELECT blob_hash FROM media)`)
	if err != nil {
		return 0, wrapDBError("find unreferenced blobs", err)
	}
	var orphans []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			_ = rows.Close()
			return 0, wrapDBError("scan orphan blob", err)
		}
		orphans = append(orphans, hash)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, wrapDBError("iterate orphan blobs", err)
	}
	_ = rows.Close()

	removed := 0
	for _, hash := range orphans {
		if err := s.DeleteBlob(ctx, hash); err != nil {
			// A reference added between the scan and the delete is fine;
			// skip and keep collecting.
			if errors.Is(err, storage.ErrBlobInUse) {
				continue
			}
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// AddMedia attaches a blob to a person. The blob must already be stored.
func (s *Store) AddMedia(ctx context.Context, media *types.Media) error {
	if media.PersonID == "" || media.BlobHash == "" {
		return fmt.Errorf("person ID and blob hash are required")
	}
	if !media.Source.IsValid() {
		return fmt.Errorf("invalid source: %s", media.Source)
	}
	if media.ID == "" {
		media.ID = idgen.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO media (media_id, person_id, blob_hash, source, is_primary, caption)
		VALUES (?, ?, ?, ?, ?, ?)`,
		media.ID, media.PersonID, media.BlobHash, string(media.Source),
		boolToInt(media.IsPrimary), media.Caption)
	return wrapDBErrorf(err, "add media for %s", media.PersonID)
}

// ListMedia returns a person's media rows, primary first.
func (s *Store) ListMedia(ctx context.Context, personID string) ([]*types.Media, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT media_id, person_id, blob_hash, source, is_primary, caption
		FROM media
		WHERE person_id = ?
		ORDER BY is_primary DESC, media_id`, personID)
	if err != nil {
		return nil, wrapDBErrorf(err, "list media for %s", personID)
	}
	defer func() { _ = rows.Close() }()

	var media []*types.Media
	for rows.Next() {
		var m types.Media
		var source string
		var isPrimary int
		if err := rows.Scan(&m.ID, &m.PersonID, &m.BlobHash, &source, &isPrimary, &m.Caption); err != nil {
			return nil, wrapDBError("scan media", err)
		}
		m.Source = types.Source(source)
		m.IsPrimary = isPrimary != 0
		media = append(media, &m)
	}
	return media, rows.Err()
}
