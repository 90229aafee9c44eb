package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoboFinSystems/robosystems-sub012/internal/admission"
	"github.com/RoboFinSystems/robosystems-sub012/internal/engine"
	"github.com/RoboFinSystems/robosystems-sub012/internal/engine/enginetest"
	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

func TestKuzuBackend_ExecuteQuery(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewKuzuBackend(p)
	driver.SetQueryHook(func(stmt string) (*engine.Result, error) {
		return &engine.Result{
			Columns: []string{"name"},
			Rows:    []map[string]any{{"name": "Acme"}, {"name": "Globex"}},
		}, nil
	})

	res, err := b.ExecuteQuery(context.Background(), "g1", "MATCH (c:Company) RETURN c.name AS name", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, res.Columns)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, "Acme", res.Records[0]["name"])

	stats := p.GetStats()
	assert.Equal(t, 0, stats.Databases["g1"].Borrowed, "handle must be released")
}

func TestKuzuBackend_RejectsInvalidGraphID(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewKuzuBackend(p)
	ctx := context.Background()

	_, err := b.ExecuteQuery(ctx, "../../etc/passwd", "RETURN 1", nil)
	assert.Equal(t, types.INVALID_IDENTIFIER, types.CodeOf(err))
	_, err = b.ExecuteWrite(ctx, "a b", "RETURN 1", nil)
	assert.Equal(t, types.INVALID_IDENTIFIER, types.CodeOf(err))
	err = b.CreateDatabase(ctx, "a/b", nil)
	assert.Equal(t, types.INVALID_IDENTIFIER, types.CodeOf(err))
	err = b.DeleteDatabase(ctx, "")
	assert.Equal(t, types.INVALID_IDENTIFIER, types.CodeOf(err))
	_, err = b.IngestFromSource(ctx, "..", IngestSource{Table: "T", URIs: []string{"a"}, Format: FormatCSV})
	assert.Equal(t, types.INVALID_IDENTIFIER, types.CodeOf(err))

	assert.Empty(t, driver.Events())
}

func TestKuzuBackend_FailedQueryProbesAndReleasesHandle(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewKuzuBackend(p)
	ctx := context.Background()

	_, err := b.ExecuteQuery(ctx, "g1", "RETURN 1", nil)
	require.NoError(t, err)
	first := driver.Handles()[0]

	first.FailPing(true)
	driver.SetQueryError(errors.New("Runtime exception: buffer manager out of memory"))

	_, err = b.ExecuteQuery(ctx, "g1", "MATCH (n) RETURN n", nil)
	require.Error(t, err)
	assert.Equal(t, types.ENGINE_OPERATION_FAILED, types.CodeOf(err))
	assert.Contains(t, err.Error(), "buffer manager")

	stats := p.GetStats()
	assert.Equal(t, int64(1), stats.HealthChecks)
	assert.Equal(t, int64(1), stats.HealthFailures)
	assert.Equal(t, 0, stats.Databases["g1"].Borrowed)
	assert.Equal(t, 0, stats.Databases["g1"].Healthy)

	driver.SetQueryError(nil)
	_, err = b.ExecuteQuery(ctx, "g1", "RETURN 1", nil)
	require.NoError(t, err)
	require.Len(t, driver.Handles(), 2, "unhealthy handle is skipped")
	assert.Equal(t, []string{"RETURN 1"}, driver.Handles()[1].Statements())
}

func TestKuzuBackend_QueryErrorUnwrapsToNative(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewKuzuBackend(p)
	driver.SetQueryError(enginetest.ErrInjected)

	_, err := b.ExecuteWrite(context.Background(), "g1", "CREATE (n:X)", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, enginetest.ErrInjected)
}

func TestKuzuBackend_CreateDatabase(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewKuzuBackend(p)
	ctx := context.Background()

	schema := []string{
		"CREATE NODE TABLE Entity(identifier STRING, name STRING, PRIMARY KEY(identifier))",
		"",
		"CREATE REL TABLE HAS_FACT(FROM Entity TO Entity)",
	}
	require.NoError(t, b.CreateDatabase(ctx, "kg1", schema))

	path, _ := p.DatabasePath("kg1")
	assert.FileExists(t, path)
	h := driver.Handles()[0]
	assert.Equal(t, []string{schema[0], schema[2]}, h.Statements())
	assert.Equal(t, 1, h.CheckpointCount())

	err := b.CreateDatabase(ctx, "kg1", schema)
	require.Error(t, err)
	assert.Equal(t, types.DATABASE_EXISTS, types.CodeOf(err))
}

func TestKuzuBackend_ConcurrentCreateOnlyOneWins(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewKuzuBackend(p)
	driver.SetConnectDelay(20 * time.Millisecond)

	const callers = 4
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.CreateDatabase(context.Background(), "kg1", []string{"CREATE NODE TABLE Entity(id STRING, PRIMARY KEY(id))"})
		}()
	}
	wg.Wait()
	close(errs)

	created, exists := 0, 0
	for err := range errs {
		switch types.CodeOf(err) {
		case "":
			require.NoError(t, err)
			created++
		case types.DATABASE_EXISTS:
			exists++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, callers-1, exists)

	path, _ := p.DatabasePath("kg1")
	assert.FileExists(t, path, "losing creators must not remove the winner's database")
	require.Len(t, driver.Handles(), 1)
	assert.Equal(t, 1, driver.Handles()[0].CheckpointCount())
}

func TestKuzuBackend_CreateDatabaseFailureRemovesFile(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewKuzuBackend(p)
	driver.SetQueryHook(func(stmt string) (*engine.Result, error) {
		if strings.Contains(stmt, "BROKEN") {
			return nil, errors.New("Parser exception")
		}
		return nil, nil
	})

	err := b.CreateDatabase(context.Background(), "kg1", []string{"CREATE NODE TABLE BROKEN"})
	require.Error(t, err)
	assert.Equal(t, types.ENGINE_OPERATION_FAILED, types.CodeOf(err))

	path, _ := p.DatabasePath("kg1")
	assert.NoFileExists(t, path)
}

func TestKuzuBackend_DeleteDatabase(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewKuzuBackend(p)
	ctx := context.Background()

	require.NoError(t, b.CreateDatabase(ctx, "kg1", nil))
	path, _ := p.DatabasePath("kg1")
	touch(t, path+".wal")
	touch(t, path+".lock")

	require.NoError(t, b.DeleteDatabase(ctx, "kg1"))

	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+".wal")
	assert.NoFileExists(t, path+".lock")
	assert.Equal(t, 0, driver.OpenHandlesFor(path))
	assert.Equal(t, []string{path}, driver.ReleasedLocks())

	events := driver.Events()
	closeHandle := indexOf(events, "close:h1")
	closeDB := indexOf(events, "close-db:"+path)
	release := indexOf(events, "release-locks:"+path)
	require.NotEqual(t, -1, closeHandle)
	assert.Less(t, closeHandle, closeDB, "handles close before the database object")
	assert.Less(t, closeDB, release, "locks are released after the database closes")

	err := b.DeleteDatabase(ctx, "kg1")
	assert.Equal(t, types.DATABASE_NOT_FOUND, types.CodeOf(err))
}

func TestKuzuBackend_ListDatabases(t *testing.T) {
	p, _ := newTestPool(t)
	b := NewKuzuBackend(p)
	base := p.Config().BasePath

	touch(t, filepath.Join(base, "beta.fake"))
	touch(t, filepath.Join(base, "alpha.fake"))
	touch(t, filepath.Join(base, "alpha.fake.wal"))
	touch(t, filepath.Join(base, "bad name.fake"))
	touch(t, filepath.Join(base, "notes.txt"))

	ids, err := b.ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ids)
}

func TestKuzuBackend_ListDatabasesMissingDirectory(t *testing.T) {
	p, _ := newTestPool(t)
	require.NoError(t, os.RemoveAll(p.Config().BasePath))

	ids, err := NewKuzuBackend(p).ListDatabases(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestKuzuBackend_GetDatabaseInfo(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewKuzuBackend(p)
	ctx := context.Background()

	driver.SetQueryHook(func(stmt string) (*engine.Result, error) {
		if strings.HasPrefix(stmt, "CALL show_tables()") {
			return &engine.Result{
				Columns: []string{"name", "type"},
				Rows: []map[string]any{
					{"name": "Entity", "type": "NODE"},
					{"name": "Fact", "type": "NODE"},
					{"name": "HAS_FACT", "type": "REL"},
				},
			}, nil
		}
		return nil, nil
	})

	_, err := b.GetDatabaseInfo(ctx, "missing")
	assert.Equal(t, types.DATABASE_NOT_FOUND, types.CodeOf(err))

	require.NoError(t, b.CreateDatabase(ctx, "kg1", nil))
	info, err := b.GetDatabaseInfo(ctx, "kg1")
	require.NoError(t, err)

	assert.Equal(t, "kg1", info.GraphID)
	assert.Equal(t, TypeKuzu, info.Backend)
	assert.Equal(t, []string{"Entity", "Fact"}, info.NodeTables)
	assert.Equal(t, []string{"HAS_FACT"}, info.RelTables)
	assert.Equal(t, int64(0), info.SizeBytes)
	assert.Equal(t, 1, info.Connections)
}

func TestKuzuBackend_IngestCheckpointsBeforeRelease(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewKuzuBackend(p)
	driver.SetQueryHook(func(stmt string) (*engine.Result, error) {
		if strings.HasPrefix(stmt, "COPY") {
			return &engine.Result{
				Columns: []string{"result"},
				Rows:    []map[string]any{{"result": "1200 tuples have been copied to the Fact table."}},
			}, nil
		}
		return nil, nil
	})

	res, err := b.IngestFromSource(context.Background(), "kg1", IngestSource{
		Table:        "Fact",
		URIs:         []string{"s3://bucket/facts-1.parquet", "s3://bucket/facts-2.parquet"},
		Format:       FormatParquet,
		IgnoreErrors: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1200), res.RowsIngested)
	assert.True(t, res.Checkpointed)
	assert.Equal(t, 2, res.Files)

	h := driver.Handles()[0]
	assert.Equal(t,
		[]string{"COPY Fact FROM ['s3://bucket/facts-1.parquet', 's3://bucket/facts-2.parquet'] (IGNORE_ERRORS=true)"},
		h.Statements())

	events := driver.Events()
	assert.Less(t, indexOf(events, "exec:h1:COPY"), indexOf(events, "checkpoint:h1"))
	assert.Equal(t, 0, p.GetStats().Databases["kg1"].Borrowed)
}

func TestKuzuCopyStatement(t *testing.T) {
	tests := []struct {
		name string
		src  IngestSource
		want string
	}{
		{
			name: "single parquet",
			src:  IngestSource{Table: "Entity", URIs: []string{"/data/e.parquet"}, Format: FormatParquet},
			want: "COPY Entity FROM '/data/e.parquet'",
		},
		{
			name: "csv with header",
			src:  IngestSource{Table: "Entity", URIs: []string{"/data/e.csv"}, Format: FormatCSV},
			want: "COPY Entity FROM '/data/e.csv' (HEADER=true)",
		},
		{
			name: "quote escaping",
			src:  IngestSource{Table: "Entity", URIs: []string{"/data/o'brien.csv"}, Format: FormatCSV, IgnoreErrors: true},
			want: "COPY Entity FROM '/data/o''brien.csv' (HEADER=true, IGNORE_ERRORS=true)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, kuzuCopyStatement(tt.src))
		})
	}
}

func TestIngestSource_Validate(t *testing.T) {
	tests := []struct {
		name     string
		src      IngestSource
		wantCode types.ErrorCode
	}{
		{name: "valid", src: IngestSource{Table: "Fact", URIs: []string{"a"}, Format: FormatParquet}},
		{name: "injection in table", src: IngestSource{Table: "Fact; DROP", URIs: []string{"a"}, Format: FormatCSV}, wantCode: types.INVALID_IDENTIFIER},
		{name: "empty table", src: IngestSource{URIs: []string{"a"}, Format: FormatCSV}, wantCode: types.INVALID_IDENTIFIER},
		{name: "no uris", src: IngestSource{Table: "Fact", Format: FormatCSV}, wantCode: types.INVALID_IDENTIFIER},
		{name: "unknown format", src: IngestSource{Table: "Fact", URIs: []string{"a"}, Format: "xlsx"}, wantCode: types.UNSUPPORTED_OPERATION},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.src.Validate()
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.wantCode, types.CodeOf(err))
		})
	}
}

func TestKuzuBackend_AdmissionRejectsBeforeEngineWork(t *testing.T) {
	p, driver := newTestPool(t)
	b := NewKuzuBackend(p, WithAdmission(admission.New(admission.Config{
		MaxPayloadBytes: 1 << 20,
		MaxQueryBytes:   64,
	})))
	ctx := context.Background()

	_, err := b.IngestFromSource(ctx, "kg1", IngestSource{
		Table: "Fact", URIs: []string{"a.parquet"}, Format: FormatParquet, SizeBytes: 1 << 30,
	})
	assert.Equal(t, types.PAYLOAD_TOO_LARGE, types.CodeOf(err))

	_, err = b.ExecuteQuery(ctx, "kg1", strings.Repeat("RETURN 1 ", 20), nil)
	assert.Equal(t, types.PAYLOAD_TOO_LARGE, types.CodeOf(err))

	assert.Empty(t, driver.Events())
}

func TestKuzuBackend_HealthAndTopology(t *testing.T) {
	p, _ := newTestPool(t)
	b := NewKuzuBackend(p)
	ctx := context.Background()

	status := b.HealthCheck(ctx)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, p.Config().BasePath, status.Details["base_path"])

	topo, err := b.GetClusterTopology(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeEmbedded, topo.Mode)
	require.Len(t, topo.Members, 1)

	require.NoError(t, p.Close(ctx))
	assert.True(t, b.HealthCheck(ctx).IsUnhealthy())
}
