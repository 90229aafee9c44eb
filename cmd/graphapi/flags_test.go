package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoboFinSystems/robosystems-sub012/cmd/graphapi/internal"
	"github.com/RoboFinSystems/robosystems-sub012/internal/backend"
)

func TestParseGlobalFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   GlobalFlags
		wantErr bool
	}{
		{"defaults", GlobalFlags{OutputFormat: "text"}, false},
		{"json output", GlobalFlags{OutputFormat: "json"}, false},
		{"bad output", GlobalFlags{OutputFormat: "yaml"}, true},
		{"verbose and quiet", GlobalFlags{OutputFormat: "text", Verbose: true, Quiet: true}, true},
		{"valid backend", GlobalFlags{OutputFormat: "text", Backend: "duckdb"}, false},
		{"unknown backend", GlobalFlags{OutputFormat: "text", Backend: "sqlite"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*globalFlags = tt.flags
			defer resetFlags()

			_, err := ParseGlobalFlags(&cobra.Command{})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cliErr *internal.CLIError
			require.ErrorAs(t, err, &cliErr)
			assert.Equal(t, internal.ExitUsageError, cliErr.Code)
		})
	}
}

func TestGlobalFlags_LogLevel(t *testing.T) {
	assert.Equal(t, "debug", (&GlobalFlags{Verbose: true}).LogLevel("info"))
	assert.Equal(t, "error", (&GlobalFlags{Quiet: true}).LogLevel("info"))
	assert.Equal(t, "warn", (&GlobalFlags{}).LogLevel("warn"))
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"id=acme", "limit=10", "ratio=0.5", "active=true", "expr=a=b"}, `{"id":"ignored","tags":["x"]}`)
	require.NoError(t, err)

	assert.Equal(t, "acme", params["id"])
	assert.Equal(t, int64(10), params["limit"])
	assert.Equal(t, 0.5, params["ratio"])
	assert.Equal(t, true, params["active"])
	assert.Equal(t, "a=b", params["expr"])
	assert.Equal(t, []any{"x"}, params["tags"])

	params, err = parseParams(nil, "")
	require.NoError(t, err)
	assert.Nil(t, params)

	_, err = parseParams([]string{"novalue"}, "")
	assert.Error(t, err)

	_, err = parseParams(nil, `[1,2]`)
	assert.Error(t, err)
}

func TestResolveStatement(t *testing.T) {
	file := filepath.Join(t.TempDir(), "q.cypher")
	require.NoError(t, os.WriteFile(file, []byte("  MATCH (n) RETURN n\n"), 0o644))

	stmt, err := resolveStatement([]string{"kg1", "RETURN 1"}, "")
	require.NoError(t, err)
	assert.Equal(t, "RETURN 1", stmt)

	stmt, err = resolveStatement([]string{"kg1"}, file)
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n) RETURN n", stmt)

	_, err = resolveStatement([]string{"kg1", "RETURN 1"}, file)
	assert.Error(t, err)

	_, err = resolveStatement([]string{"kg1"}, "")
	assert.Error(t, err)
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements(`
-- comment; with a semicolon
CREATE NODE TABLE A(id INT64, PRIMARY KEY(id));

CREATE NODE TABLE B(id INT64, PRIMARY KEY(id));
;`)
	assert.Equal(t, []string{
		"CREATE NODE TABLE A(id INT64, PRIMARY KEY(id))",
		"CREATE NODE TABLE B(id INT64, PRIMARY KEY(id))",
	}, got)
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]backend.Format{
		"s3://bucket/entities.parquet": backend.FormatParquet,
		"/data/ENTITIES.CSV":           backend.FormatCSV,
		"events.ndjson":                backend.FormatJSON,
		"sheet.xlsx":                   backend.Format("xlsx"),
	}
	for path, want := range tests {
		assert.Equal(t, want, formatFromPath(path), path)
	}
}

func TestLocalSize(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(a, make([]byte, 100), 0o644))

	assert.Equal(t, int64(100), localSize([]string{a, "s3://bucket/b.csv", filepath.Join(dir, "missing.csv")}))
}
