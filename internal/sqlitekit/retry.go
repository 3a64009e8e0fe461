package sqlitekit

import (
	"context"
	"database/sql"
	"log"
	"math/rand"
	"strings"
	"time"
)

// Retry/backoff constants for transient SQLITE_BUSY/locked conditions.
// The ceiling is low enough that a persistently locked database degrades
// into a recorded transient error (the caller sees a miss) instead of an
// unbounded stall.
const (
	maxRetries = 200
	baseDelay  = 5 * time.Millisecond
	maxDelay   = 50 * time.Millisecond
)

// IsRetryableError reports whether err looks like a transient SQLite
// busy/locked condition.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "database table is locked") ||
		strings.Contains(s, "busy") ||
		strings.Contains(s, "locked")
}

func backoff(attempt int) time.Duration {
	delay := time.Duration(attempt+1) * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}

// RetryableExec runs db.ExecContext with retry-on-busy.
func RetryableExec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err = db.ExecContext(ctx, query, args...)
		if !IsRetryableError(err) {
			return result, err
		}
		if attempt < maxRetries-1 {
			time.Sleep(backoff(attempt))
			log.Printf("[KVLITE] sqlite retry %d/%d for exec: %v", attempt+1, maxRetries, err)
		}
	}
	return result, err
}

// RetryableQueryRowScan runs db.QueryRowContext+Scan with retry-on-busy.
func RetryableQueryRowScan(ctx context.Context, db *sql.DB, query string, args []any, dest ...any) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		row := db.QueryRowContext(ctx, query, args...)
		err = row.Scan(dest...)
		if !IsRetryableError(err) {
			return err
		}
		if attempt < maxRetries-1 {
			time.Sleep(backoff(attempt))
			log.Printf("[KVLITE] sqlite retry %d/%d for query row: %v", attempt+1, maxRetries, err)
		}
	}
	return err
}

// RetryableQuery runs db.QueryContext with retry-on-busy.
func RetryableQuery(ctx context.Context, db *sql.DB, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		rows, err = db.QueryContext(ctx, query, args...)
		if !IsRetryableError(err) {
			return rows, err
		}
		if attempt < maxRetries-1 {
			time.Sleep(backoff(attempt))
			log.Printf("[KVLITE] sqlite retry %d/%d for query: %v", attempt+1, maxRetries, err)
		}
	}
	return rows, err
}

// RetryableTx runs fn inside a transaction with retry-on-busy around
// Begin/Commit. RetryableTx rolls back automatically before deciding
// whether to retry.
func RetryableTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		var tx *sql.Tx
		tx, err = db.BeginTx(ctx, nil)
		if err != nil {
			if !IsRetryableError(err) {
				return err
			}
			if attempt < maxRetries-1 {
				time.Sleep(backoff(attempt))
				continue
			}
			return err
		}

		err = fn(tx)
		if err != nil {
			_ = tx.Rollback()
			if !IsRetryableError(err) {
				return err
			}
			if attempt < maxRetries-1 {
				time.Sleep(backoff(attempt))
				log.Printf("[KVLITE] sqlite retry %d/%d for transaction: %v", attempt+1, maxRetries, err)
				continue
			}
			return err
		}

		err = tx.Commit()
		if !IsRetryableError(err) {
			return err
		}
		if attempt < maxRetries-1 {
			time.Sleep(backoff(attempt))
			log.Printf("[KVLITE] sqlite retry %d/%d for commit: %v", attempt+1, maxRetries, err)
		}
	}
	return err
}

// ShouldAutoCleanup flips the auto-cleanup coin: a successful write
// triggers an expired-row sweep with the given probability.
func ShouldAutoCleanup(probability float64) bool {
	if probability <= 0 {
		return false
	}
	if probability >= 1 {
		return true
	}
	return rand.Float64() < probability
}
