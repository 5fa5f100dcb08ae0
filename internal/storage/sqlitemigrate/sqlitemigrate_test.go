package sqlitemigrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyRunsOnceInOrder(t *testing.T) {
	db := openDB(t)
	fsys := fstest.MapFS{
		"002_seed.sql": {Data: []byte("-- +migrate Up\nINSERT INTO things (name) VALUES ('a');\n-- +migrate Down\nDELETE FROM things;\n")},
		"001_init.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE things (name TEXT);\n-- +migrate Down\nDROP TABLE things;\n")},
		"README.md":    {Data: []byte("ignored")},
	}

	applied, err := Apply(context.Background(), db, fsys, ".")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_seed.sql"}, applied)

	applied, err = Apply(context.Background(), db, fsys, ".")
	require.NoError(t, err)
	assert.Empty(t, applied)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM things").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestApplyRollsBackFailedMigration(t *testing.T) {
	db := openDB(t)
	fsys := fstest.MapFS{
		"001_bad.sql": {Data: []byte("CREATE TABLE ok (id INTEGER); INSERT INTO missing VALUES (1);")},
	}

	_, err := Apply(context.Background(), db, fsys, ".")
	require.Error(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+migrationTable).Scan(&n))
	assert.Zero(t, n)
}

func TestApplyRequiresDB(t *testing.T) {
	_, err := Apply(context.Background(), nil, fstest.MapFS{}, ".")
	require.Error(t, err)
}

func TestExtractUp(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE x (id INTEGER);\n-- +migrate Down\nDROP TABLE x;\n"
	assert.Equal(t, "\nCREATE TABLE x (id INTEGER);\n", ExtractUp(content))
	assert.Equal(t, "SELECT 1;", ExtractUp("SELECT 1;"))
}
