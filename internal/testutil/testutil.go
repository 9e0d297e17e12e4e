// Package testutil provides shared test helpers for setting up catalogs and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/memewatch/internal/catalog"
	"github.com/starford/memewatch/internal/store"
)

// TestDB creates a temporary SQLite stats store that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "memewatch-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCatalog creates a temporary catalog directory holding files (name to
// content) and a catalog.Dir over it.
func TestCatalog(t *testing.T, files map[string]string) (string, *catalog.Dir) {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	dir, err := catalog.NewDir(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	return root, dir
}
