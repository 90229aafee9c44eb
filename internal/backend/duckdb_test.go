package backend

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoboFinSystems/robosystems-sub012/internal/engine"
	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

func TestDuckDBIngestStatement(t *testing.T) {
	tests := []struct {
		name string
		src  IngestSource
		want string
	}{
		{
			name: "parquet",
			src:  IngestSource{Table: "facts", URIs: []string{"s3://b/f1.parquet", "s3://b/f2.parquet"}, Format: FormatParquet},
			want: `CREATE OR REPLACE TABLE "facts" AS SELECT * FROM read_parquet(['s3://b/f1.parquet', 's3://b/f2.parquet'], union_by_name = true)`,
		},
		{
			name: "csv ignoring errors",
			src:  IngestSource{Table: "entities", URIs: []string{"/tmp/e.csv"}, Format: FormatCSV, IgnoreErrors: true},
			want: `CREATE OR REPLACE TABLE "entities" AS SELECT * FROM read_csv_auto(['/tmp/e.csv'], header = true, ignore_errors = true)`,
		},
		{
			name: "json",
			src:  IngestSource{Table: "events", URIs: []string{"/tmp/e.json"}, Format: FormatJSON},
			want: `CREATE OR REPLACE TABLE "events" AS SELECT * FROM read_json_auto(['/tmp/e.json'])`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, duckdbIngestStatement(tt.src))
		})
	}
}

func TestDuckDBBackend_IngestFromSource(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewDuckDBBackend(p)
	driver.SetQueryHook(func(stmt string) (*engine.Result, error) {
		if strings.HasPrefix(stmt, "SELECT count(*)") {
			return &engine.Result{Columns: []string{"n"}, Rows: []map[string]any{{"n": int64(42)}}}, nil
		}
		return nil, nil
	})
	ctx := context.Background()
	src := IngestSource{Table: "facts", URIs: []string{"/tmp/f.parquet"}, Format: FormatParquet}

	res, err := b.IngestFromSource(ctx, "stage1", src)
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.RowsIngested)
	assert.True(t, res.Checkpointed)

	// Re-running replaces the table rather than failing.
	_, err = b.IngestFromSource(ctx, "stage1", src)
	require.NoError(t, err)

	stmts := driver.Handles()[0].Statements()
	require.Len(t, stmts, 4)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE OR REPLACE TABLE"))
	assert.Equal(t, stmts[0], stmts[2])
	assert.Equal(t, 2, driver.Handles()[0].CheckpointCount())
}

func TestDuckDBBackend_CreateDatabaseIsIdempotent(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewDuckDBBackend(p)
	ctx := context.Background()

	schema := []string{"CREATE TABLE IF NOT EXISTS facts(id VARCHAR, value DOUBLE)"}
	require.NoError(t, b.CreateDatabase(ctx, "stage1", schema))
	require.NoError(t, b.CreateDatabase(ctx, "stage1", schema))

	path, _ := p.DatabasePath("stage1")
	assert.FileExists(t, path)
	assert.Len(t, driver.Databases(), 1)
}

func TestDuckDBBackend_ListTablesAndInfo(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewDuckDBBackend(p)
	driver.SetQueryHook(func(stmt string) (*engine.Result, error) {
		if strings.Contains(stmt, "information_schema.tables") {
			return &engine.Result{
				Columns: []string{"table_name"},
				Rows:    []map[string]any{{"table_name": "entities"}, {"table_name": "facts"}},
			}, nil
		}
		return nil, nil
	})
	ctx := context.Background()

	require.NoError(t, b.CreateDatabase(ctx, "stage1", nil))

	tables, err := b.ListTables(ctx, "stage1")
	require.NoError(t, err)
	assert.Equal(t, []string{"entities", "facts"}, tables)

	info, err := b.GetDatabaseInfo(ctx, "stage1")
	require.NoError(t, err)
	assert.Equal(t, TypeDuckDB, info.Backend)
	assert.Equal(t, tables, info.Tables)

	_, err = b.ListTables(ctx, "bad id")
	assert.Equal(t, types.INVALID_IDENTIFIER, types.CodeOf(err))
}

func TestDuckDBBackend_DeleteRemovesWAL(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewDuckDBBackend(p)
	ctx := context.Background()

	require.NoError(t, b.CreateDatabase(ctx, "stage1", nil))
	path, _ := p.DatabasePath("stage1")
	touch(t, path+".wal")

	require.NoError(t, b.DeleteDatabase(ctx, "stage1"))
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+".wal")
	assert.Equal(t, 0, driver.OpenHandles())
}
