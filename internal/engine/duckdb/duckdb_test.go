package duckdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitStatements(t *testing.T) {
	d := NewDriver(Config{
		Threads:     4,
		MemoryLimit: "2GB",
		Extensions:  []string{"httpfs"},
		Settings: map[string]string{
			"s3_region":            "us-east-1",
			"s3_access_key_id":     "AKIA",
			"s3_secret_access_key": "it's",
		},
	})

	assert.Equal(t, []string{
		"INSTALL httpfs",
		"LOAD httpfs",
		"SET threads = 4",
		"SET memory_limit = '2GB'",
		"SET s3_access_key_id = 'AKIA'",
		"SET s3_region = 'us-east-1'",
		"SET s3_secret_access_key = 'it''s'",
	}, d.initStatements())

	assert.Empty(t, NewDriver(Config{}).initStatements())
}

func TestEscapeLiteral(t *testing.T) {
	assert.Equal(t, "plain", escapeLiteral("plain"))
	assert.Equal(t, "O''Brien", escapeLiteral("O'Brien"))
	assert.Equal(t, "''''", escapeLiteral("''"))
}

func TestNamedArgs(t *testing.T) {
	assert.Nil(t, namedArgs(nil))

	args := namedArgs(map[string]any{"id": 7})
	require.Len(t, args, 1)
	assert.Equal(t, sql.Named("id", 7), args[0])
}

func TestDuckDB_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "staging"+Extension)

	db, err := NewDriver(Config{Threads: 1}).OpenDatabase(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	h, err := db.Connect(ctx)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Ping(ctx))
	require.NoError(t, h.Exec(ctx, "CREATE TABLE entity (id VARCHAR, revenue BIGINT)", nil))
	require.NoError(t, h.Exec(ctx, "INSERT INTO entity VALUES ($id, $revenue)", map[string]any{"id": "acme", "revenue": int64(10)}))
	require.NoError(t, h.Checkpoint(ctx))

	res, err := h.Query(ctx, "SELECT id, revenue FROM entity", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "revenue"}, res.Columns)
	require.Equal(t, 1, res.Len())
	assert.Equal(t, "acme", res.Rows[0]["id"])
	assert.EqualValues(t, 10, res.Rows[0]["revenue"])
}

func TestDuckDB_HandlesShareOneInstance(t *testing.T) {
	ctx := context.Background()
	db, err := NewDriver(Config{}).OpenDatabase(ctx, filepath.Join(t.TempDir(), "shared"+Extension))
	require.NoError(t, err)
	defer db.Close()

	h1, err := db.Connect(ctx)
	require.NoError(t, err)
	defer h1.Close()
	h2, err := db.Connect(ctx)
	require.NoError(t, err)
	defer h2.Close()

	require.NoError(t, h1.Exec(ctx, "CREATE TABLE t (v INTEGER)", nil))
	require.NoError(t, h1.Exec(ctx, "INSERT INTO t VALUES (1), (2)", nil))

	res, err := h2.Query(ctx, "SELECT count(*) AS n FROM t", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Rows[0]["n"])
}
