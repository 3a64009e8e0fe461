package sqlitekit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/kvlite-go/kvlite/internal/kverrors"
)

// migrationsFS embeds the versioned schema migrations. Bodies use
// {{TABLE}}/{{SUFFIX}} placeholders so one migration set serves any
// configured table name, including the DDL that creates it.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

type migrationFile struct {
	name    string
	version int
	body    string
}

func loadMigrations() ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sqlitekit: read embedded migrations: %w", err)
	}
	var out []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(strings.TrimSuffix(e.Name(), ".sql"), "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		content, err := fs.ReadFile(migrationsFS, "migrations/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("sqlitekit: read migration %s: %w", e.Name(), err)
		}
		out = append(out, migrationFile{name: e.Name(), version: version, body: string(content)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func render(body string, cfg TableConfig) string {
	suffix := strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(cfg.TableName)
	r := strings.NewReplacer("{{TABLE}}", cfg.qualifiedTable(), "{{SUFFIX}}", suffix)
	return r.Replace(body)
}

// EnsureSchema applies every embedded migration against db, rendered for
// cfg's table/schema names, and records which ones have already run in a
// bookkeeping table. It is idempotent: calling it again after the table
// already exists is a no-op.
func EnsureSchema(ctx context.Context, db *sql.DB, cfg TableConfig) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kvl_schema_migrations (
		filename TEXT NOT NULL,
		table_name TEXT NOT NULL,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
		PRIMARY KEY (filename, table_name)
	)`); err != nil {
		return kverrors.New("EnsureSchema", kverrors.SchemaError, err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return kverrors.New("EnsureSchema", kverrors.SchemaError, err)
	}

	applied := map[string]bool{}
	rows, err := db.QueryContext(ctx, `SELECT filename FROM kvl_schema_migrations WHERE table_name = ?`, cfg.TableName)
	if err != nil {
		return kverrors.New("EnsureSchema", kverrors.SchemaError, err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return kverrors.New("EnsureSchema", kverrors.SchemaError, err)
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return kverrors.New("EnsureSchema", kverrors.SchemaError, err)
	}

	for _, m := range migrations {
		if applied[m.name] {
			continue
		}
		stmt := render(m.body, cfg)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return kverrors.New("EnsureSchema", kverrors.SchemaError, fmt.Errorf("migration %s: %w", m.name, err))
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO kvl_schema_migrations (filename, table_name) VALUES (?, ?)`, m.name, cfg.TableName); err != nil {
			return kverrors.New("EnsureSchema", kverrors.SchemaError, err)
		}
	}
	return nil
}

// requiredColumns are the columns VerifySchema checks for.
var requiredColumns = []string{
	"hash", "partition_hash", "partition", "key", "utc_expiry", "interval",
	"value", "compressed", "utc_creation",
	"parent_key_0", "parent_hash_0", "parent_key_1", "parent_hash_1",
	"parent_key_2", "parent_hash_2", "parent_key_3", "parent_hash_3",
	"parent_key_4", "parent_hash_4",
}

// VerifySchema checks that the configured table exists and has every
// column the engine requires, before any entry operation touches it.
func VerifySchema(ctx context.Context, db *sql.DB, cfg TableConfig) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(cfg.TableName)))
	if err != nil {
		return kverrors.New("VerifySchema", kverrors.SchemaError, err)
	}
	defer rows.Close()

	present := map[string]bool{}
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return kverrors.New("VerifySchema", kverrors.SchemaError, err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return kverrors.New("VerifySchema", kverrors.SchemaError, err)
	}
	if len(present) == 0 {
		return kverrors.New("VerifySchema", kverrors.SchemaError, fmt.Errorf("table %q does not exist", cfg.TableName))
	}
	for _, col := range requiredColumns {
		if !present[col] {
			return kverrors.New("VerifySchema", kverrors.SchemaError, fmt.Errorf("table %q missing column %q", cfg.TableName, col))
		}
	}
	return nil
}
