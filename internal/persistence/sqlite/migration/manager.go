package migration

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

// Manager orchestrates scanning, validation and execution of migrations
type Manager struct {
	scanner        FileScanner
	executor       Executor
	fsys           fs.FS
	dir            string
	verifyChecksum bool
	logger         *slog.Logger
}

// NewManager creates a Manager reading migrations from dir within fsys
func NewManager(scanner FileScanner, executor Executor, fsys fs.FS, dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		scanner:        scanner,
		executor:       executor,
		fsys:           fsys,
		dir:            dir,
		verifyChecksum: true,
		logger:         logger.With("component", "migration"),
	}
}

// SkipChecksumVerification disables the check that applied files are unchanged
func (m *Manager) SkipChecksumVerification() *Manager {
	m.verifyChecksum = false
	return m
}

// Run applies all pending migrations in version order and returns how many were applied
func (m *Manager) Run(ctx context.Context) (applied int, err error) {
	started := time.Now()

	status, err := m.Status(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to determine migration status", "error", err)
		return 0, err
	}

	if len(status.Pending) == 0 {
		m.logger.InfoContext(ctx, "database schema is up to date", "version", status.CurrentVersion)
		return 0, nil
	}

	m.logger.InfoContext(ctx, "applying database migrations",
		"current_version", status.CurrentVersion,
		"pending", len(status.Pending),
	)

	for _, migration := range status.Pending {
		migrationStarted := time.Now()
		if err := m.executor.ExecuteMigration(ctx, migration); err != nil {
			m.logger.ErrorContext(ctx, "migration failed",
				"version", migration.Version,
				"file", migration.FilePath,
				"error", err,
			)
			return applied, err
		}
		applied++
		m.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
			"duration", time.Since(migrationStarted),
		)
	}

	m.logger.InfoContext(ctx, "database migrations completed",
		"applied", applied,
		"duration", time.Since(started),
	)
	return applied, nil
}

// Status reports applied and pending migrations after validating the sequence
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return nil, err
	}

	available, err := m.scanner.ScanMigrations(m.fsys, m.dir)
	if err != nil {
		return nil, err
	}

	applied, err := m.executor.GetAppliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.validate(available, applied); err != nil {
		return nil, err
	}

	appliedSet := make(map[int]struct{}, len(applied))
	status := &Status{Applied: applied}
	for _, a := range applied {
		appliedSet[a.Version] = struct{}{}
		if a.Version > status.CurrentVersion {
			status.CurrentVersion = a.Version
		}
	}
	for _, migration := range available {
		if _, ok := appliedSet[migration.Version]; !ok {
			status.Pending = append(status.Pending, migration)
		}
	}
	return status, nil
}

// validate ensures available versions are contiguous and every applied
// version still has an unchanged file
func (m *Manager) validate(available []Migration, applied []AppliedMigration) error {
	byVersion := make(map[int]Migration, len(available))
	for i, migration := range available {
		if i > 0 && migration.Version != available[i-1].Version+1 {
			return fmt.Errorf("%w: missing migration version %03d", ErrVersionConflict, available[i-1].Version+1)
		}
		byVersion[migration.Version] = migration
	}

	for _, a := range applied {
		migration, ok := byVersion[a.Version]
		if !ok {
			return fmt.Errorf("%w: applied migration %03d has no migration file", ErrVersionConflict, a.Version)
		}
		if m.verifyChecksum && a.Checksum != "" && a.Checksum != migration.Checksum {
			return NewMigrationError(a.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}
	return nil
}
