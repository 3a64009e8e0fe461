// Package sqlitekit is the connection-factory layer: it opens and
// configures SQLite connections, ensures the schema, and exposes
// per-driver SQL templates over the single shared *sql.DB a cache
// instance needs.
package sqlitekit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Driver is the minimal connection abstraction the storage engine
// consumes. Both bundled implementations (SQLite3Driver, ModerncDriver)
// satisfy it.
type Driver interface {
	// DB returns the pooled *sql.DB for this driver.
	DB() *sql.DB
	// ConnectionString returns the computed, read-only DSN.
	ConnectionString() string
	// EnsureSchema idempotently creates the cache-entries table and its
	// indexes if they don't already exist, and verifies the existing
	// schema's columns otherwise.
	EnsureSchema(ctx context.Context) error
	// Vacuum runs a VACUUM, or returns ErrNotSupported if the driver
	// doesn't support reclaiming space (the volatile driver).
	Vacuum(ctx context.Context) error
	// CanPeek reports whether this driver supports Peek without touching
	// expiry. The volatile driver advertises false.
	CanPeek() bool
	// MaxParentKeys reports how many parent-key columns this driver's
	// schema provides.
	MaxParentKeys() int
	// Templates returns the cached SQL template set for the configured
	// table/schema names.
	Templates() *Templates
	// SetTableConfig retargets the driver at a different table/schema name
	// at runtime: the schema for the new name is ensured and every cached
	// SQL template is regenerated. Rows in the old table are left behind.
	SetTableConfig(ctx context.Context, cfg TableConfig) error
	// Close releases the driver's resources. For the volatile driver this
	// destroys the in-memory database.
	Close() error
}

// TableConfig names the table and (optional) schema the templates target.
// Changing either regenerates every cached template.
type TableConfig struct {
	TableName  string
	SchemaName string
}

// tableState bundles a TableConfig with its generated templates so both
// drivers can swap them atomically when SetTableConfig retargets the
// table at runtime.
type tableState struct {
	cfg       TableConfig
	templates *Templates
}

// qualifiedTable returns "schema"."table" or just "table" if no schema is
// configured (SQLite generally has no separate schema namespace beyond
// ATTACHed databases, so this is usually just the bare table name).
func (t TableConfig) qualifiedTable() string {
	if t.SchemaName == "" {
		return quoteIdent(t.TableName)
	}
	return quoteIdent(t.SchemaName) + "." + quoteIdent(t.TableName)
}

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// ensureDir creates dir (and parents) if it doesn't already exist.
func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("sqlitekit: stat %s: %w", dir, err)
	}
	return os.MkdirAll(dir, 0o755)
}

func dataFilePath(dataDir, cacheName string) string {
	return filepath.Join(dataDir, cacheName+".db")
}
