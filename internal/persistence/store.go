// Package persistence implements the SQLite-class database of spec.md §6:
// a session table and an append-only event log, opened with the same
// pure-Go driver and PRAGMA tuning sacenox-symb's internal/store/store.go
// uses for its cache, schema-migrated with golang-migrate/migrate/v4
// instead of a single embedded CREATE TABLE string, since this schema has
// a foreign key and is expected to evolve across releases.
package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
	"github.com/usamanadeem786/iiagentd/internal/observability"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store owns the single *sql.DB every session's EventStore and session
// repository share. One per process, per spec.md §5's "serialized through
// a connection pool" shared resource.
type Store struct {
	db *sql.DB
}

// Open connects to the SQLite database at path, tunes it the way
// sacenox-symb's Open() does (WAL journal, NORMAL sync, a busy timeout so
// concurrent sessions don't surface SQLITE_BUSY as a user-facing error),
// additionally turning on foreign key enforcement so the event table's
// ON DELETE CASCADE actually fires, and migrates the schema to the latest
// version.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", agenterrors.ErrPersistence, path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %s: %v", agenterrors.ErrPersistence, pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("%w: load embedded migrations: %v", agenterrors.ErrPersistence, err)
	}
	target, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("%w: migration driver: %v", agenterrors.ErrPersistence, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", target)
	if err != nil {
		return fmt.Errorf("%w: build migrator: %v", agenterrors.ErrPersistence, err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("%w: apply migrations: %v", agenterrors.ErrPersistence, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) logPersistenceError(ctx context.Context, op string, err error) {
	observability.LoggerWithTrace(ctx).Error().Err(err).Str("op", op).Msg("persistence_error")
}
