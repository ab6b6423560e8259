package migration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const versionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	execution_time_ms INTEGER NOT NULL DEFAULT 0
)`

// SQLiteExecutor runs migrations and tracks them in schema_migrations.
type SQLiteExecutor struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteExecutor returns an executor over db.
func NewSQLiteExecutor(db *sqlx.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// InitializeVersionTable creates schema_migrations when missing.
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, versionTableSQL); err != nil {
		return NewDatabaseError("", versionTableSQL, "create schema_migrations table", err)
	}
	return nil
}

// Apply runs every statement of m and records it, all in one transaction.
func (e *SQLiteExecutor) Apply(ctx context.Context, m Migration) (elapsed time.Duration, err error) {
	statements := splitStatements(m.SQL)
	if len(statements) == 0 {
		return 0, NewMigrationError(m.Version, m.FilePath, "parse SQL", fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile))
	}

	started := e.now()
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, NewDatabaseError(m.Version, "", "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return 0, NewDatabaseError(m.Version, stmt, fmt.Sprintf("execute statement %d", i+1), err)
		}
	}

	elapsed = e.now().Sub(started)
	const record = `INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`
	if _, err = tx.ExecContext(ctx, record, m.Version, e.now().UTC().Format(time.RFC3339), m.Checksum, elapsed.Milliseconds()); err != nil {
		return 0, NewDatabaseError(m.Version, record, "record migration", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, NewDatabaseError(m.Version, "", "commit transaction", err)
	}
	return elapsed, nil
}

type appliedRow struct {
	Version         string `db:"version"`
	AppliedAt       string `db:"applied_at"`
	Checksum        string `db:"checksum"`
	ExecutionTimeMS int64  `db:"execution_time_ms"`
}

// Applied lists the rows of schema_migrations ordered by version.
func (e *SQLiteExecutor) Applied(ctx context.Context) ([]AppliedMigration, error) {
	const query = `SELECT version, applied_at, checksum, execution_time_ms FROM schema_migrations`
	var rows []appliedRow
	if err := e.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, NewDatabaseError("", query, "list applied migrations", err)
	}

	out := make([]AppliedMigration, 0, len(rows))
	for _, row := range rows {
		appliedAt, err := time.Parse(time.RFC3339, row.AppliedAt)
		if err != nil {
			return nil, NewDatabaseError(row.Version, query, "parse applied_at", err)
		}
		out = append(out, AppliedMigration{
			Version:       row.Version,
			AppliedAt:     appliedAt,
			Checksum:      row.Checksum,
			ExecutionTime: time.Duration(row.ExecutionTimeMS) * time.Millisecond,
		})
	}
	sortApplied(out)
	return out, nil
}

// splitStatements drops comment lines and splits on semicolons.
func splitStatements(sql string) []string {
	var out []string
	for _, stmt := range strings.Split(stripComments(sql), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
