// ABOUTME: Retry wrapper for transient SQLite contention errors
// ABOUTME: SQLITE_BUSY and SQLITE_LOCKED are retried with capped exponential backoff
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/harper/interview-assistant/internal/metrics"
	"github.com/harper/interview-assistant/internal/util"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// RetryPolicy bounds retries of store operations
type RetryPolicy struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy is 5 attempts from 100ms up to 2s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialWait: 100 * time.Millisecond, MaxWait: 2 * time.Second}
}

// IsTransient reports whether err is a busy/locked condition worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") || strings.Contains(msg, "sqlite_busy")
}

// WithRetry runs op, retrying transient store errors per p
func WithRetry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	policy := util.Policy{
		MaxAttempts: p.MaxAttempts,
		InitialWait: p.InitialWait,
		MaxWait:     p.MaxWait,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			metrics.RetriesTotal.WithLabelValues("store").Inc()
			slog.Default().Warn("store busy, retrying", "component", "store", "attempt", attempt, "wait", wait, "error", err)
		},
	}
	return util.RetryErr(ctx, policy, IsTransient, op)
}

// WithRetryValue is WithRetry for operations returning a value
func WithRetryValue[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := WithRetry(ctx, p, func(ctx context.Context) error {
		var err error
		result, err = op(ctx)
		return err
	})
	return result, err
}

// retryQuerier applies WithRetry to each statement. Repos() uses it so reads
// outside Transaction still ride out SQLITE_BUSY during checkpoints.
type retryQuerier struct {
	q      Querier
	policy RetryPolicy
}

func (r retryQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return WithRetryValue(ctx, r.policy, func(ctx context.Context) (sql.Result, error) {
		return r.q.ExecContext(ctx, query, args...)
	})
}

func (r retryQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return WithRetryValue(ctx, r.policy, func(ctx context.Context) (*sql.Rows, error) {
		return r.q.QueryContext(ctx, query, args...)
	})
}

// QueryRowContext retries on the row's deferred error; the last row is
// returned so Scan reports whatever the final attempt saw.
func (r retryQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	var row *sql.Row
	_ = WithRetry(ctx, r.policy, func(ctx context.Context) error {
		row = r.q.QueryRowContext(ctx, query, args...)
		return row.Err()
	})
	return row
}
