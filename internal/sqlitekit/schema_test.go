package sqlitekit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := TableConfig{TableName: "kvl_cache_entries"}
	drv, err := OpenSQLite3Driver(ctx, filepath.Join(t.TempDir(), "data"), "schema-test", cfg, 2, 1, 0)
	require.NoError(t, err)
	defer drv.Close()

	require.NoError(t, drv.EnsureSchema(ctx))
	require.NoError(t, drv.EnsureSchema(ctx))
}

func TestVerifySchemaFailsOnMissingTable(t *testing.T) {
	ctx := context.Background()
	cfg := TableConfig{TableName: "kvl_does_not_exist"}
	drv, err := OpenSQLite3Driver(ctx, filepath.Join(t.TempDir(), "data"), "schema-missing", cfg, 2, 1, 0)
	require.NoError(t, err)
	defer drv.Close()

	err = VerifySchema(ctx, drv.DB(), cfg)
	assert.Error(t, err)
}

func TestRenderSubstitutesTableAndSuffix(t *testing.T) {
	cfg := TableConfig{TableName: "my.cache-table"}
	out := render("CREATE INDEX idx_{{SUFFIX}} ON {{TABLE}} (x)", cfg)
	assert.Contains(t, out, `"my.cache-table"`)
	assert.Contains(t, out, "idx_my_cache_table")
}
