package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Partial index over undelivered outbox rows
const currentSchemaVersion = 1

// Store provides durable storage for one tenant.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	// Open database (creates file if doesn't exist)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool for SQLite
	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1) // Single writer to avoid SQLITE_BUSY errors
	db.SetMaxIdleConns(1) // Keep one connection ready

	// Apply required pragmas
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	// Apply schema migrations
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// SetClock replaces the timestamp source. Used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

type txKey struct{}

// withTx runs fn in a transaction. Inside fn only tx may be used: the pool
// holds a single connection.
//
// A ctx returned by joinTx makes fn run in that transaction instead, and
// commit and rollback are left to its owner.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// joinTx binds tx to ctx so that store writes made with the result join it.
func joinTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the partial index the outbox relay scans.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_outbox_pending
		ON event_outbox(seq) WHERE sent_at IS NULL
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
