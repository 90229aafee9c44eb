package backend

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/RoboFinSystems/robosystems-sub012/internal/engine"
	"github.com/RoboFinSystems/robosystems-sub012/internal/pool"
	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

// Kuzu keeps a write-ahead log and a lock file next to each database.
var kuzuSidecars = []string{".wal", ".lock"}

// copiedTuples matches Kuzu's COPY summary, "N tuples have been copied to
// the T table."
var copiedTuples = regexp.MustCompile(`(\d+) tuples? ha(?:ve|s) been copied`)

// KuzuBackend serves tenant graphs from embedded Kuzu databases, one file per
// tenant, through a connection pool.
type KuzuBackend struct {
	embedded
}

// NewKuzuBackend creates a backend over p, whose driver must be Kuzu's (or a
// test double).
func NewKuzuBackend(p *pool.Pool, opts ...Option) *KuzuBackend {
	return &KuzuBackend{embedded: newEmbedded(TypeKuzu, p, kuzuSidecars, opts)}
}

func (b *KuzuBackend) sealed() {}

// Type returns TypeKuzu.
func (b *KuzuBackend) Type() Type { return TypeKuzu }

// ExecuteQuery runs a Cypher read query.
func (b *KuzuBackend) ExecuteQuery(ctx context.Context, graphID, query string, params map[string]any) (*QueryResult, error) {
	return b.query(ctx, graphID, "execute_query", query, params)
}

// ExecuteWrite runs a Cypher write statement.
func (b *KuzuBackend) ExecuteWrite(ctx context.Context, graphID, query string, params map[string]any) (*QueryResult, error) {
	return b.query(ctx, graphID, "execute_write", query, params)
}

// CreateDatabase creates the tenant's database file and applies the schema
// DDL. It fails with DATABASE_EXISTS if the file is already there.
func (b *KuzuBackend) CreateDatabase(ctx context.Context, graphID string, schema []string) error {
	path, err := b.databasePath(graphID)
	if err != nil {
		return err
	}

	err = b.withNewHandle(ctx, graphID, "create_database", func(h engine.Handle) error {
		for _, stmt := range schema {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if err := h.Exec(ctx, stmt, nil); err != nil {
				return fmt.Errorf("schema statement %q: %w", stmt, err)
			}
		}
		return h.Checkpoint(ctx)
	})
	if types.CodeOf(err) == types.DATABASE_EXISTS {
		return err
	}
	if err != nil {
		if cleanupErr := b.deleteDatabase(ctx, graphID); cleanupErr != nil {
			b.opts.logger.Warn("failed to remove partially created database",
				slog.String("graph_id", graphID),
				slog.String("error", cleanupErr.Error()))
		}
		return err
	}

	b.opts.logger.Info("database created",
		slog.String("graph_id", graphID),
		slog.String("path", path),
		slog.Int("schema_statements", len(schema)))
	return nil
}

// DeleteDatabase force-closes every pooled handle, releases Kuzu's lock file
// and removes the database with its write-ahead log.
func (b *KuzuBackend) DeleteDatabase(ctx context.Context, graphID string) error {
	return b.deleteDatabase(ctx, graphID)
}

// ListDatabases lists the tenant databases found under the base path.
func (b *KuzuBackend) ListDatabases(ctx context.Context) ([]string, error) {
	return b.listDatabases()
}

// GetDatabaseInfo reports size on disk and the node and rel tables of a
// tenant database.
func (b *KuzuBackend) GetDatabaseInfo(ctx context.Context, graphID string) (*DatabaseInfo, error) {
	info, err := b.baseInfo(graphID)
	if err != nil {
		return nil, err
	}

	err = b.withHandle(ctx, graphID, "get_database_info", func(h engine.Handle) error {
		res, err := h.Query(ctx, "CALL show_tables() RETURN *", nil)
		if err != nil {
			return err
		}
		for _, row := range res.Rows {
			name, _ := row["name"].(string)
			kind, _ := row["type"].(string)
			switch strings.ToUpper(kind) {
			case "NODE":
				info.NodeTables = append(info.NodeTables, name)
			case "REL":
				info.RelTables = append(info.RelTables, name)
			default:
				info.Tables = append(info.Tables, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	info.Connections = b.pool.GetStats().Databases[graphID].Connections
	return info, nil
}

// GetClusterTopology reports the local process as the only member.
func (b *KuzuBackend) GetClusterTopology(ctx context.Context) (*ClusterTopology, error) {
	return b.topology(), nil
}

// HealthCheck reports whether the database directory is reachable and how
// the pool's health probes are faring.
func (b *KuzuBackend) HealthCheck(ctx context.Context) types.HealthStatus {
	return b.healthCheck()
}

// IngestFromSource runs COPY FROM for the source files and checkpoints
// before the handle goes back to the pool, so the data is in the main
// database file when the call returns.
func (b *KuzuBackend) IngestFromSource(ctx context.Context, graphID string, src IngestSource) (*IngestResult, error) {
	release, err := b.admitIngestion(ctx, graphID, src)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	result := &IngestResult{GraphID: graphID, Table: src.Table, Files: len(src.URIs)}
	err = b.withHandle(ctx, graphID, "ingest_from_source", func(h engine.Handle) error {
		res, err := h.Query(ctx, kuzuCopyStatement(src), nil)
		if err != nil {
			return err
		}
		result.RowsIngested = copiedRows(res)

		if err := h.Checkpoint(ctx); err != nil {
			return fmt.Errorf("checkpoint after copy: %w", err)
		}
		result.Checkpointed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	b.opts.logger.Info("ingestion complete",
		slog.String("graph_id", graphID),
		slog.String("table", src.Table),
		slog.Int("files", result.Files),
		slog.Int64("rows", result.RowsIngested),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// Close is a no-op: the pool is shared process-wide and closed by
// pool.Shutdown.
func (b *KuzuBackend) Close(ctx context.Context) error { return nil }

func kuzuCopyStatement(src IngestSource) string {
	from := quoteString(src.URIs[0])
	if len(src.URIs) > 1 {
		from = quoteList(src.URIs)
	}

	var opts []string
	if src.Format == FormatCSV {
		opts = append(opts, "HEADER=true")
	}
	if src.IgnoreErrors {
		opts = append(opts, "IGNORE_ERRORS=true")
	}

	stmt := fmt.Sprintf("COPY %s FROM %s", src.Table, from)
	if len(opts) > 0 {
		stmt += " (" + strings.Join(opts, ", ") + ")"
	}
	return stmt
}

// copiedRows extracts the row count from COPY's single-row summary.
func copiedRows(res *engine.Result) int64 {
	if res == nil {
		return 0
	}
	for _, row := range res.Rows {
		for _, v := range row {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if m := copiedTuples.FindStringSubmatch(s); m != nil {
				n, _ := strconv.ParseInt(m[1], 10, 64)
				return n
			}
		}
	}
	return 0
}
