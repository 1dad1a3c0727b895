// Package migration applies versioned SQL schema migrations to SQLite databases.
//
// Migration files are read from an fs.FS, usually an embedded directory, and
// follow the naming convention {version}_{description}.sql, for example
// "001_initial_schema.sql". Applied versions are tracked in the
// schema_migrations table together with the checksum of the file that was
// applied, so edits to an already applied migration are detected.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewFileScanner(), migration.NewSQLiteExecutor(db), migrationsFS, "migrations", logger)
//	if _, err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
