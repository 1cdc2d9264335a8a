package testutil

import (
	"path/filepath"
	"testing"

	"github.com/HerbHall/storefront/internal/store"
)

// NewStore opens a private in-memory store closed at test cleanup.
func NewStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	return openStore(t, store.MemoryPath)
}

// NewFileStore opens a store backed by a file in a temp directory, for tests
// that need the database on disk (backups, reopening).
func NewFileStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	return openStore(t, filepath.Join(t.TempDir(), "storefront.db"))
}

func openStore(t *testing.T, path string) *store.SQLiteStore {
	t.Helper()
	db, err := store.New(path)
	if err != nil {
		t.Fatalf("testutil: open store %q: %v", path, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
