package migration

import (
	"context"
	"io/fs"
	"time"
)

// Migration represents a database migration with its metadata and SQL content
type Migration struct {
	Version     int
	Description string
	SQL         string
	FilePath    string
	Checksum    string
}

// AppliedMigration represents a migration that has been successfully applied
type AppliedMigration struct {
	Version       int
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status provides information about the current migration state
type Status struct {
	CurrentVersion int
	Applied        []AppliedMigration
	Pending        []Migration
}

// FileScanner reads migration files from a filesystem
type FileScanner interface {
	// ScanMigrations returns the migrations in dir ordered by version
	ScanMigrations(fsys fs.FS, dir string) ([]Migration, error)
}

// Executor applies migrations and tracks applied versions
type Executor interface {
	// InitializeVersionTable creates the schema_migrations table if it doesn't exist
	InitializeVersionTable(ctx context.Context) error

	// ExecuteMigration runs a migration and records it in one transaction
	ExecuteMigration(ctx context.Context, migration Migration) error

	// GetAppliedVersions returns all applied migrations ordered by version
	GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error)
}
