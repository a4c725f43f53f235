// ABOUTME: SQLite database connection, transactions and lifecycle management
// ABOUTME: Uses modernc.org/sqlite with WAL, a 30s busy timeout and enforced foreign keys
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const (
	fileDSNParams   = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)&_pragma=foreign_keys(ON)&_txlock=immediate"
	memoryDSNParams = "?_pragma=foreign_keys(ON)&_txlock=immediate"
)

// Querier is satisfied by *sql.DB, *sql.Tx and *DB
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a SQLite database connection
type DB struct {
	conn   *sql.DB
	path   string
	lock   *FileLock
	mu     sync.Mutex
	retry  RetryPolicy
	logger *slog.Logger
}

// Open opens or creates a SQLite database at the given path and applies migrations
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path+fileDSNParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	lock, err := NewFileLock(path + ".lock")
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{
		conn:   conn,
		path:   path,
		lock:   lock,
		retry:  DefaultRetryPolicy(),
		logger: slog.Default().With("component", "store"),
	}

	if err := db.migrateOnce(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// OpenInMemory creates an in-memory SQLite database (for testing).
// A single connection is kept so every query sees the same database.
func OpenInMemory() (*DB, error) {
	conn, err := sql.Open("sqlite", ":memory:"+memoryDSNParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{
		conn:   conn,
		path:   ":memory:",
		retry:  DefaultRetryPolicy(),
		logger: slog.Default().With("component", "store"),
	}

	if err := db.migrate(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection and the lock file
func (db *DB) Close() error {
	var errs []error
	if db.conn != nil {
		errs = append(errs, db.conn.Close())
	}
	if db.lock != nil {
		errs = append(errs, db.lock.Close())
	}
	return errors.Join(errs...)
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// SetRetryPolicy overrides the busy/locked retry policy
func (db *DB) SetRetryPolicy(p RetryPolicy) {
	db.retry = p
}

// Ping checks that the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Conn acquires a dedicated connection. The caller must Close it.
func (db *DB) Conn(ctx context.Context) (*sql.Conn, error) {
	return db.conn.Conn(ctx)
}

// Repos returns entity stores bound to the connection pool. Every statement
// is retried on busy/locked. Use Transaction for multi-row writes.
func (db *DB) Repos() *Repos {
	return newRepos(retryQuerier{q: db.conn, policy: db.retry})
}

// Transaction runs fn inside BEGIN/COMMIT while holding the in-process mutex
// and the cross-process file lock. Any error from fn rolls back everything.
// Busy/locked failures are retried with backoff; fn must only touch the store.
func (db *DB) Transaction(ctx context.Context, fn func(r *Repos) error) error {
	return WithRetry(ctx, db.retry, func(ctx context.Context) error {
		return db.transactionOnce(ctx, fn)
	})
}

func (db *DB) transactionOnce(ctx context.Context, fn func(r *Repos) error) (err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.lock != nil {
		if err := db.lock.Lock(); err != nil {
			return err
		}
		defer func() {
			if unlockErr := db.lock.Unlock(); unlockErr != nil {
				db.logger.Warn("failed to release file lock", "error", unlockErr)
			}
		}()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newRepos(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Checkpoint truncates the WAL file
func (db *DB) Checkpoint(ctx context.Context) error {
	if db.path == ":memory:" {
		return nil
	}
	_, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// ExecContext executes a query without returning rows
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}
