package sqlitekit

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/kvlite-go/kvlite/internal/kverrors"
	_ "modernc.org/sqlite"
)

// ModerncDriver is the volatile, in-process driver: a shared-cache
// in-memory SQLite database opened through modernc.org/sqlite, so the
// volatile variant carries no cgo requirement. Everything stored through
// it disappears once keepAlive is closed.
type ModerncDriver struct {
	db        *sql.DB
	keepAlive *sql.Conn
	dsn       string
	state     atomic.Pointer[tableState]
}

// OpenModerncDriver opens a shared, named in-memory database scoped to
// cacheName so that multiple *sql.DB handles against the same DSN (e.g.
// during tests) see the same data, and holds one connection open for the
// driver's lifetime so SQLite doesn't tear the database down the moment
// the pool goes idle.
func OpenModerncDriver(ctx context.Context, cacheName string, cfg TableConfig) (*ModerncDriver, error) {
	// _pragma params apply per connection, so every conn database/sql hands
	// out has foreign keys enforced, not just the one applyPragmas touched.
	dsn := fmt.Sprintf("file:kvlite_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(MEMORY)&_pragma=synchronous(OFF)&_pragma=busy_timeout(30000)", cacheName)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitekit: open modernc sqlite %s: %w", dsn, err)
	}

	keepAlive, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitekit: keep-alive conn: %w", err)
	}

	if err := applyPragmas(ctx, db, "MEMORY", "OFF", 0); err != nil {
		keepAlive.Close()
		db.Close()
		return nil, err
	}

	d := &ModerncDriver{db: db, keepAlive: keepAlive, dsn: dsn}
	d.state.Store(&tableState{cfg: cfg, templates: BuildTemplates(cfg)})
	return d, nil
}

func (d *ModerncDriver) DB() *sql.DB              { return d.db }
func (d *ModerncDriver) ConnectionString() string { return d.dsn }

// CanPeek reports false: on the volatile driver Peek and PeekItems fail
// with NotSupported.
func (d *ModerncDriver) CanPeek() bool         { return false }
func (d *ModerncDriver) MaxParentKeys() int    { return parentCols }
func (d *ModerncDriver) Templates() *Templates { return d.state.Load().templates }

func (d *ModerncDriver) EnsureSchema(ctx context.Context) error {
	cfg := d.state.Load().cfg
	if err := EnsureSchema(ctx, d.db, cfg); err != nil {
		return err
	}
	return VerifySchema(ctx, d.db, cfg)
}

// SetTableConfig retargets the driver at cfg: the new table's schema is
// ensured first, then the cached templates are swapped. Rows in the old
// table are left behind.
func (d *ModerncDriver) SetTableConfig(ctx context.Context, cfg TableConfig) error {
	if err := EnsureSchema(ctx, d.db, cfg); err != nil {
		return err
	}
	if err := VerifySchema(ctx, d.db, cfg); err != nil {
		return err
	}
	d.state.Store(&tableState{cfg: cfg, templates: BuildTemplates(cfg)})
	return nil
}

// Vacuum is not supported on the volatile driver; there is no file to
// reclaim space in.
func (d *ModerncDriver) Vacuum(ctx context.Context) error {
	return kverrors.New("Vacuum", kverrors.NotSupported, nil)
}

func (d *ModerncDriver) Close() error {
	err := d.keepAlive.Close()
	if cerr := d.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
