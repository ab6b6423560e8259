package migration

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type stubSource struct {
	migrations []Migration
	err        error
}

func (s stubSource) Scan() ([]Migration, error) {
	return s.migrations, s.err
}

type stubExecutor struct {
	applied  []AppliedMigration
	failOn   string
	executed []string
}

func (e *stubExecutor) InitializeVersionTable(context.Context) error { return nil }

func (e *stubExecutor) Apply(_ context.Context, m Migration) (time.Duration, error) {
	if m.Version == e.failOn {
		return 0, errors.New("boom")
	}
	e.executed = append(e.executed, m.Version)
	e.applied = append(e.applied, AppliedMigration{Version: m.Version, Checksum: m.Checksum})
	return time.Millisecond, nil
}

func (e *stubExecutor) Applied(context.Context) ([]AppliedMigration, error) {
	return e.applied, nil
}

func migrations(versions ...string) []Migration {
	out := make([]Migration, 0, len(versions))
	for _, v := range versions {
		out = append(out, Migration{Version: v, FilePath: v + "_x.sql", Checksum: "sum-" + v, SQL: "SELECT 1;"})
	}
	return out
}

func TestManagerRunAppliesPendingInOrder(t *testing.T) {
	exec := &stubExecutor{applied: []AppliedMigration{{Version: "001", Checksum: "sum-001"}}}
	manager := NewManager(stubSource{migrations: migrations("001", "002", "003")}, exec, nil)

	n, err := manager.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 applied, got %d", n)
	}
	if len(exec.executed) != 2 || exec.executed[0] != "002" || exec.executed[1] != "003" {
		t.Fatalf("unexpected execution order %v", exec.executed)
	}
}

func TestManagerRunStopsOnFailure(t *testing.T) {
	exec := &stubExecutor{failOn: "002"}
	manager := NewManager(stubSource{migrations: migrations("001", "002", "003")}, exec, nil)

	n, err := manager.Run(context.Background())
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 applied before failure, got %d", n)
	}
}

func TestManagerStatusRejectsInconsistentHistory(t *testing.T) {
	tests := []struct {
		name      string
		available []Migration
		applied   []AppliedMigration
	}{
		{name: "gap", available: migrations("001", "003")},
		{name: "vanished file", available: migrations("001"), applied: []AppliedMigration{{Version: "002"}}},
		{name: "changed file", available: migrations("001"), applied: []AppliedMigration{{Version: "001", Checksum: "other"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager(stubSource{migrations: tt.available}, &stubExecutor{applied: tt.applied}, nil)
			if _, err := manager.Status(context.Background()); !errors.Is(err, ErrVersionConflict) {
				t.Fatalf("expected ErrVersionConflict, got %v", err)
			}
		})
	}
}

func TestManagerAgainstSQLite(t *testing.T) {
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	files := fstest.MapFS{
		"sql/001_things.sql": {Data: []byte("CREATE TABLE things (id TEXT PRIMARY KEY);")},
		"sql/002_index.sql":  {Data: []byte("-- Description: index things\nCREATE INDEX idx_things ON things(id);")},
	}
	manager := NewManager(NewScanner(files, "sql"), NewSQLiteExecutor(db), nil)
	ctx := context.Background()

	n, err := manager.Run(ctx)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 migrations applied, got %d", n)
	}

	n, err = manager.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no migrations on second run, got %d", n)
	}

	status, err := manager.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.CurrentVersion != "002" || len(status.Applied) != 2 {
		t.Fatalf("unexpected status %+v", status)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO things (id) VALUES ('a')"); err != nil {
		t.Fatalf("expected migrated table to exist: %v", err)
	}
}
