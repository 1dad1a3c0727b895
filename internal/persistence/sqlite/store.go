// Package sqlite implements persistence.Store on an embedded SQLite
// database. Timestamps are stored as UTC unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/team-hours/internal/persistence"
	"github.com/example/team-hours/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store is the SQLite backed persistence.Store.
type Store struct {
	*TeamRepository
	*MemberRepository
	*SessionRepository

	pool   *ConnectionPool
	retry  *RetryHelper
	mapper *ErrorMapper
	logger *slog.Logger
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database described by config. Call Migrate before
// using a fresh database.
func Open(config migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}

	mapper := NewErrorMapper()
	repos := newRepositories(pool.DB(), mapper)
	return &Store{
		TeamRepository:    repos.TeamRepository,
		MemberRepository:  repos.MemberRepository,
		SessionRepository: repos.SessionRepository,
		pool:              pool,
		retry:             NewRetryHelper(DefaultRetryConfig()),
		mapper:            mapper,
		logger:            logger.With("component", "sqlite"),
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	manager := migration.NewManager(
		migration.NewFileScanner(),
		migration.NewSQLiteExecutor(s.pool.DB()),
		migrationFiles,
		"migrations",
		s.logger,
	)
	return manager.Run(ctx)
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// WithinTx runs fn in a transaction. The whole transaction is retried when
// SQLite reports the database as busy.
func (s *Store) WithinTx(ctx context.Context, fn persistence.TxFunc) error {
	attempt := 0
	return s.retry.WithRetry(ctx, func() error {
		attempt++
		if attempt > 1 {
			s.logger.DebugContext(ctx, "retrying busy transaction", "attempt", attempt)
		}
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			return fn(ctx, newRepositories(tx, s.mapper))
		})
	})
}

// WithinReadTx runs fn in a read-only transaction over the latest committed
// snapshot. It does not take the write lock.
func (s *Store) WithinReadTx(ctx context.Context, fn persistence.TxFunc) error {
	return s.retry.WithRetry(ctx, func() error {
		return s.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
			return fn(ctx, newRepositories(tx, s.mapper))
		})
	})
}

// repositories binds every repository to one queryer.
type repositories struct {
	*TeamRepository
	*MemberRepository
	*SessionRepository
}

func newRepositories(q queryer, mapper *ErrorMapper) repositories {
	return repositories{
		TeamRepository:    &TeamRepository{q: q, mapper: mapper},
		MemberRepository:  &MemberRepository{q: q, mapper: mapper},
		SessionRepository: &SessionRepository{q: q, mapper: mapper},
	}
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
