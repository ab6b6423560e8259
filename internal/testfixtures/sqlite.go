package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/conference-scheduler/internal/persistence"
	"github.com/example/conference-scheduler/internal/persistence/sqlite"
)

// SQLiteHarness provides a migrated snapshot store backed by a temporary
// database file for integration-style persistence tests.
type SQLiteHarness struct {
	Snapshots persistence.SnapshotRepository
	Store     *sqlite.Store
	Path      string

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens a store in a temporary directory. Callers may invoke
// Close, but the helper also registers a cleanup callback with tb.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "conference.db")
	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}

	harness := &SQLiteHarness{
		Snapshots: store,
		Store:     store,
		Path:      path,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
