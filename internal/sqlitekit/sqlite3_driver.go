package sqlitekit

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite3Driver is the persistent, file-backed driver, opened through
// mattn/go-sqlite3 with WAL journaling.
type SQLite3Driver struct {
	db    *sql.DB
	dsn   string
	state atomic.Pointer[tableState]
}

// OpenSQLite3Driver opens (creating if necessary) a persistent database
// file at filepath.Join(dataDir, cacheName+".db"), applies the WAL pragma
// set, and sizes the connection pool from maxOpen/maxIdle.
func OpenSQLite3Driver(ctx context.Context, dataDir, cacheName string, cfg TableConfig, maxOpen, maxIdle, maxCacheSizeMB int) (*SQLite3Driver, error) {
	if err := ensureDir(dataDir); err != nil {
		return nil, err
	}
	path := dataFilePath(dataDir, cacheName)
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=OFF&_foreign_keys=on&_busy_timeout=30000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitekit: open sqlite3 %s: %w", path, err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}

	if err := applyPragmas(ctx, db, "WAL", "OFF", 0); err != nil {
		db.Close()
		return nil, err
	}
	if err := applyMaxPageCount(ctx, db, maxCacheSizeMB); err != nil {
		db.Close()
		return nil, err
	}

	d := &SQLite3Driver{db: db, dsn: dsn}
	d.state.Store(&tableState{cfg: cfg, templates: BuildTemplates(cfg)})
	return d, nil
}

func (d *SQLite3Driver) DB() *sql.DB              { return d.db }
func (d *SQLite3Driver) ConnectionString() string { return d.dsn }
func (d *SQLite3Driver) CanPeek() bool            { return true }
func (d *SQLite3Driver) MaxParentKeys() int       { return parentCols }
func (d *SQLite3Driver) Templates() *Templates    { return d.state.Load().templates }

func (d *SQLite3Driver) EnsureSchema(ctx context.Context) error {
	cfg := d.state.Load().cfg
	if err := EnsureSchema(ctx, d.db, cfg); err != nil {
		return err
	}
	return VerifySchema(ctx, d.db, cfg)
}

// SetTableConfig retargets the driver at cfg: the new table's schema is
// ensured first, then the cached templates are swapped. Rows in the old
// table are left behind.
func (d *SQLite3Driver) SetTableConfig(ctx context.Context, cfg TableConfig) error {
	if err := EnsureSchema(ctx, d.db, cfg); err != nil {
		return err
	}
	if err := VerifySchema(ctx, d.db, cfg); err != nil {
		return err
	}
	d.state.Store(&tableState{cfg: cfg, templates: BuildTemplates(cfg)})
	return nil
}

// Vacuum runs a blocking VACUUM, reclaiming space left by deleted/expired
// rows.
func (d *SQLite3Driver) Vacuum(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, "VACUUM")
	return err
}

func (d *SQLite3Driver) Close() error {
	return d.db.Close()
}
