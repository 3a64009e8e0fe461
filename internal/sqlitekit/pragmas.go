package sqlitekit

import (
	"context"
	"database/sql"
	"fmt"
)

// applyPragmas runs a fixed pragma set against conn. journalMode selects
// between WAL (persistent driver) and MEMORY (volatile driver) journaling.
func applyPragmas(ctx context.Context, conn *sql.DB, journalMode string, synchronous string, cacheSizeKB int) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 30000",
		fmt.Sprintf("PRAGMA journal_mode = %s", journalMode),
		fmt.Sprintf("PRAGMA synchronous = %s", synchronous),
	}
	if cacheSizeKB != 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = %d", cacheSizeKB))
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("sqlitekit: exec %q: %w", p, err)
		}
	}
	return nil
}

// applyMaxPageCount maps Options.MaxCacheSizeMB onto SQLite's
// max_page_count advisory limit.
func applyMaxPageCount(ctx context.Context, conn *sql.DB, maxSizeMB int) error {
	if maxSizeMB <= 0 {
		return nil
	}
	var pageSize int
	if err := conn.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return fmt.Errorf("sqlitekit: read page_size: %w", err)
	}
	if pageSize <= 0 {
		pageSize = 4096
	}
	maxPages := (maxSizeMB * 1024 * 1024) / pageSize
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA max_page_count = %d", maxPages)); err != nil {
		return fmt.Errorf("sqlitekit: set max_page_count: %w", err)
	}
	return nil
}
