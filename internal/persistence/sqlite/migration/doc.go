// Package migration applies versioned SQL files to a SQLite database.
//
// Files are named {version}_{description}.sql (for example
// "001_create_snapshots.sql") and are read from an fs.FS, usually an embedded
// directory. Applied versions are tracked in the schema_migrations table
// together with the checksum of the file that was run; a file whose contents
// change after being applied is reported as a version conflict.
//
//	manager := migration.NewManager(migration.NewScanner(files, "migrations"), migration.NewSQLiteExecutor(db), logger)
//	if _, err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
