package provider

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Cache stores raw provider records on disk, one file per record at
// <root>/<provider>/<external_id>.json, verbatim as fetched.
type Cache struct {
	root string
}

// NewCache returns a cache rooted at dir (the data directory's
// provider-cache subtree).
func NewCache(dir string) *Cache {
	return &Cache{root: dir}
}

// path sanitizes the external ID into a file name. Provider IDs are
// alphanumeric with dashes and dots, but a hostile record could carry
// separators.
func (c *Cache) path(source, externalID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(externalID)
	return filepath.Join(c.root, source, safe+".json")
}

// Get returns the cached raw record, or ok=false when absent.
func (c *Cache) Get(source, externalID string) ([]byte, bool, error) {
	data, err := os.ReadFile(c.path(source, externalID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache for %s: %w", externalID, err)
	}
	return data, true, nil
}

// Put persists a raw record, overwriting any prior copy.
func (c *Cache) Put(source, externalID string, raw []byte) error {
	p := c.path(source, externalID)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(p, raw, 0o640); err != nil {
		return fmt.Errorf("write cache for %s: %w", externalID, err)
	}
	return nil
}

// Purge removes a cached record. Removing an absent record is not an
// error: the deleted-person path purges unconditionally.
func (c *Cache) Purge(source, externalID string) error {
	err := os.Remove(c.path(source, externalID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("purge cache for %s: %w", externalID, err)
	}
	return nil
}
