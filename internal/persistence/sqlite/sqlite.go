package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io"
	"log/slog"

	"github.com/example/conference-scheduler/internal/persistence"
	"github.com/example/conference-scheduler/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store is the SQLite-backed snapshot store.
type Store struct {
	*SnapshotRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

var _ persistence.SnapshotRepository = (*Store)(nil)

// Open connects to the database described by cfg and brings its schema up to date.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "sqlite")

	pool, err := NewConnectionPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := &Store{
		SnapshotRepository: NewSnapshotRepository(pool),
		pool:               pool,
		logger:             logger,
	}
	if err := store.Migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return store, nil
}

// Migrate applies the embedded migrations that have not run yet.
func (s *Store) Migrate(ctx context.Context) error {
	manager := s.migrationManager()
	applied, err := manager.Run(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	if applied > 0 {
		s.logger.InfoContext(ctx, "database schema migrated", "applied", applied)
	}
	return nil
}

// MigrationStatus reports applied and pending migrations.
func (s *Store) MigrationStatus(ctx context.Context) (migration.Status, error) {
	return s.migrationManager().Status(ctx)
}

func (s *Store) migrationManager() *migration.Manager {
	return migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewSQLiteExecutor(s.pool.DB()),
		s.logger,
	)
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.pool.Close()
}
