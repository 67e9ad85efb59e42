package storetest

import (
	"path/filepath"
	"testing"

	"github.com/headline-goat/funnel-goat/internal/store"
)

// Open creates a migrated SQLite store in t.TempDir() and closes it when the test ends.
func Open(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.Open(Path(t))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// Path returns a fresh database path inside t.TempDir().
func Path(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}
