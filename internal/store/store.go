// Package store provides the SQLite persistence layer shared by storefront
// repositories.
package store

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Migration is a single schema change owned by one component. Versions are
// tracked per owner in the schema_migrations table.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Store is the persistence surface repositories depend on.
type Store interface {
	DB() *sql.DB
	Tx(ctx context.Context, fn func(tx *sql.Tx) error) error
	Migrate(ctx context.Context, owner string, migrations []Migration) error
	Close() error
}

// Compile-time interface guard.
var _ Store = (*SQLiteStore)(nil)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// connection pragmas; modernc.org/sqlite takes them as statements.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// SQLiteStore implements Store on a single-writer SQLite connection.
type SQLiteStore struct {
	db   *sql.DB
	path string

	migrateMu sync.Mutex
	tableOnce sync.Once
	tableErr  error
}

// New opens or creates the database at path, creating its parent directory
// when needed. The probe cache is small and written from one process, so the
// pool is capped at one connection.
func New(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if !isMemory(path) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir %q: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s on %q: %w", p, path, err)
		}
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func isMemory(path string) bool {
	return path == MemoryPath || strings.Contains(path, "mode=memory")
}

// Path returns the path the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.path
}

// DB returns the underlying *sql.DB for direct queries.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Tx runs fn in a transaction, committing when it returns nil.
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

// Migrate applies the owner's pending migrations in Version order, each in
// its own transaction together with its bookkeeping row.
func (s *SQLiteStore) Migrate(ctx context.Context, owner string, migrations []Migration) error {
	if err := s.ensureTable(ctx); err != nil {
		return err
	}

	s.migrateMu.Lock()
	defer s.migrateMu.Unlock()

	applied, err := s.Applied(ctx, owner)
	if err != nil {
		return err
	}
	pending := slices.Clone(migrations)
	slices.SortFunc(pending, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })

	for _, m := range pending {
		if slices.Contains(applied, m.Version) {
			continue
		}
		err := s.Tx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (owner, version, description) VALUES (?, ?, ?)`,
				owner, m.Version, m.Description,
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s/%d (%s): %w", owner, m.Version, m.Description, err)
		}
	}
	return nil
}

// Applied lists the migration versions recorded for owner in ascending
// order.
func (s *SQLiteStore) Applied(ctx context.Context, owner string) ([]int, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT version FROM schema_migrations WHERE owner = ? ORDER BY version`, owner)
	if err != nil {
		return nil, fmt.Errorf("list migrations for %s: %w", owner, err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureTable(ctx context.Context) error {
	s.tableOnce.Do(func() {
		_, s.tableErr = s.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				owner       TEXT     NOT NULL,
				version     INTEGER  NOT NULL,
				description TEXT     NOT NULL,
				applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (owner, version)
			)`)
		if s.tableErr != nil {
			s.tableErr = fmt.Errorf("create schema_migrations: %w", s.tableErr)
		}
	})
	return s.tableErr
}
