// Package testutil provides shared test helpers for databases, search
// indexes and tag file directories.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/logtags/internal/search"
	"github.com/starford/logtags/internal/storage"
	"github.com/starford/logtags/internal/store"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
// A file is used rather than :memory: so pooled connections share one database.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "logtags-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestEngine creates a search engine over db backed by an in-memory index.
func TestEngine(t *testing.T, db *store.DB) *search.Engine {
	t.Helper()
	ix, err := search.Open(search.Options{Logger: Logger()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ix.Close() })
	return search.NewEngine(db, ix, Logger())
}

// TestTagDir creates a temporary tag file directory with a storage.Provider.
func TestTagDir(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}
