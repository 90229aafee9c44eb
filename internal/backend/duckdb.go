package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RoboFinSystems/robosystems-sub012/internal/engine"
	"github.com/RoboFinSystems/robosystems-sub012/internal/pool"
	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

var duckdbSidecars = []string{".wal"}

// DuckDBBackend stages tenant data in per-tenant DuckDB files before it is
// loaded into a graph. It uses the same pooling discipline as KuzuBackend.
type DuckDBBackend struct {
	embedded
}

// NewDuckDBBackend creates a staging backend over p.
func NewDuckDBBackend(p *pool.Pool, opts ...Option) *DuckDBBackend {
	return &DuckDBBackend{embedded: newEmbedded(TypeDuckDB, p, duckdbSidecars, opts)}
}

func (b *DuckDBBackend) sealed() {}

// Type returns TypeDuckDB.
func (b *DuckDBBackend) Type() Type { return TypeDuckDB }

// ExecuteQuery runs a SQL query.
func (b *DuckDBBackend) ExecuteQuery(ctx context.Context, graphID, query string, params map[string]any) (*QueryResult, error) {
	return b.query(ctx, graphID, "execute_query", query, params)
}

// ExecuteWrite runs a SQL statement.
func (b *DuckDBBackend) ExecuteWrite(ctx context.Context, graphID, query string, params map[string]any) (*QueryResult, error) {
	return b.query(ctx, graphID, "execute_write", query, params)
}

// CreateDatabase opens (creating if needed) the staging file and applies the
// schema. Unlike Kuzu it is idempotent; schema statements should use
// CREATE ... IF NOT EXISTS or CREATE OR REPLACE.
func (b *DuckDBBackend) CreateDatabase(ctx context.Context, graphID string, schema []string) error {
	if err := types.ValidateGraphID(graphID); err != nil {
		return err
	}
	return b.withHandle(ctx, graphID, "create_database", func(h engine.Handle) error {
		for _, stmt := range schema {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if err := h.Exec(ctx, stmt, nil); err != nil {
				return fmt.Errorf("schema statement %q: %w", stmt, err)
			}
		}
		return nil
	})
}

// DeleteDatabase removes the staging file after closing its handles.
func (b *DuckDBBackend) DeleteDatabase(ctx context.Context, graphID string) error {
	return b.deleteDatabase(ctx, graphID)
}

// ListDatabases lists the staging files under the base path.
func (b *DuckDBBackend) ListDatabases(ctx context.Context) ([]string, error) {
	return b.listDatabases()
}

// ListTables returns the staged tables of a tenant, sorted.
func (b *DuckDBBackend) ListTables(ctx context.Context, graphID string) ([]string, error) {
	if err := types.ValidateGraphID(graphID); err != nil {
		return nil, err
	}

	tables := []string{}
	err := b.withHandle(ctx, graphID, "list_tables", func(h engine.Handle) error {
		res, err := h.Query(ctx,
			"SELECT table_name FROM information_schema.tables WHERE table_schema = 'main' ORDER BY table_name", nil)
		if err != nil {
			return err
		}
		for _, row := range res.Rows {
			if name, ok := row["table_name"].(string); ok {
				tables = append(tables, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// GetDatabaseInfo reports size on disk and staged tables.
func (b *DuckDBBackend) GetDatabaseInfo(ctx context.Context, graphID string) (*DatabaseInfo, error) {
	info, err := b.baseInfo(graphID)
	if err != nil {
		return nil, err
	}
	tables, err := b.ListTables(ctx, graphID)
	if err != nil {
		return nil, err
	}
	info.Tables = tables
	info.Connections = b.pool.GetStats().Databases[graphID].Connections
	return info, nil
}

// GetClusterTopology reports the local process as the only member.
func (b *DuckDBBackend) GetClusterTopology(ctx context.Context) (*ClusterTopology, error) {
	return b.topology(), nil
}

// HealthCheck reports whether the staging directory is reachable.
func (b *DuckDBBackend) HealthCheck(ctx context.Context) types.HealthStatus {
	return b.healthCheck()
}

// IngestFromSource replaces the staging table with the contents of the
// source files. Re-running an ingestion for the same table overwrites it.
func (b *DuckDBBackend) IngestFromSource(ctx context.Context, graphID string, src IngestSource) (*IngestResult, error) {
	release, err := b.admitIngestion(ctx, graphID, src)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	result := &IngestResult{GraphID: graphID, Table: src.Table, Files: len(src.URIs)}
	err = b.withHandle(ctx, graphID, "ingest_from_source", func(h engine.Handle) error {
		if err := h.Exec(ctx, duckdbIngestStatement(src), nil); err != nil {
			return err
		}

		res, err := h.Query(ctx, fmt.Sprintf(`SELECT count(*) AS n FROM "%s"`, src.Table), nil)
		if err != nil {
			return err
		}
		if res.Len() > 0 {
			result.RowsIngested = toInt64(res.Rows[0]["n"])
		}

		if err := h.Checkpoint(ctx); err != nil {
			return fmt.Errorf("checkpoint after ingest: %w", err)
		}
		result.Checkpointed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	b.opts.logger.Info("staging table loaded",
		slog.String("graph_id", graphID),
		slog.String("table", src.Table),
		slog.Int64("rows", result.RowsIngested))
	return result, nil
}

// Close is a no-op: the pool is shared process-wide.
func (b *DuckDBBackend) Close(ctx context.Context) error { return nil }

func duckdbIngestStatement(src IngestSource) string {
	files := quoteList(src.URIs)

	var reader string
	switch src.Format {
	case FormatCSV:
		reader = "read_csv_auto(" + files + ", header = true"
		if src.IgnoreErrors {
			reader += ", ignore_errors = true"
		}
		reader += ")"
	case FormatJSON:
		reader = "read_json_auto(" + files
		if src.IgnoreErrors {
			reader += ", ignore_errors = true"
		}
		reader += ")"
	default:
		reader = "read_parquet(" + files + ", union_by_name = true)"
	}
	return fmt.Sprintf(`CREATE OR REPLACE TABLE "%s" AS SELECT * FROM %s`, src.Table, reader)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
