// Package backend routes graph operations to one of three engines behind a
// single interface: embedded Kuzu (pool-backed, one database per tenant),
// an external Neo4j cluster, and DuckDB used as a staging area for bulk
// ingestion.
package backend

import (
	"context"
	"time"

	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

// Type identifies a backend engine.
type Type string

const (
	TypeKuzu   Type = "kuzu"
	TypeNeo4j  Type = "neo4j"
	TypeDuckDB Type = "duckdb"
)

// String returns the string representation of the type.
func (t Type) String() string { return string(t) }

// IsValid checks if the type is one of the supported engines.
func (t Type) IsValid() bool {
	switch t {
	case TypeKuzu, TypeNeo4j, TypeDuckDB:
		return true
	default:
		return false
	}
}

// Backend is the uniform surface over every graph engine. The set of
// implementations is closed: KuzuBackend, Neo4jBackend, DuckDBBackend and
// the TracedBackend decorator.
//
// Every method that takes a graphID validates it first and returns
// INVALID_IDENTIFIER before touching the engine. Engine failures are
// returned as ENGINE_OPERATION_FAILED wrapping the native error.
type Backend interface {
	// Type reports which engine serves this backend.
	Type() Type

	// ExecuteQuery runs a read query against a tenant graph.
	ExecuteQuery(ctx context.Context, graphID, query string, params map[string]any) (*QueryResult, error)

	// ExecuteWrite runs a mutating statement against a tenant graph.
	ExecuteWrite(ctx context.Context, graphID, query string, params map[string]any) (*QueryResult, error)

	// CreateDatabase creates a tenant graph and applies the schema DDL.
	CreateDatabase(ctx context.Context, graphID string, schema []string) error

	// DeleteDatabase drops a tenant graph and everything stored for it.
	DeleteDatabase(ctx context.Context, graphID string) error

	// ListDatabases returns the tenant graphs known to the engine, sorted.
	ListDatabases(ctx context.Context) ([]string, error)

	// GetDatabaseInfo describes a single tenant graph.
	GetDatabaseInfo(ctx context.Context, graphID string) (*DatabaseInfo, error)

	// GetClusterTopology describes the serving nodes.
	GetClusterTopology(ctx context.Context) (*ClusterTopology, error)

	// HealthCheck reports engine reachability. It never returns an error.
	HealthCheck(ctx context.Context) types.HealthStatus

	// IngestFromSource bulk loads external files into a table of a tenant graph.
	IngestFromSource(ctx context.Context, graphID string, src IngestSource) (*IngestResult, error)

	// Close releases resources owned by the backend.
	Close(ctx context.Context) error

	sealed()
}

// QueryResult is a fully materialized query result.
type QueryResult struct {
	// Columns contains the result column names in order.
	Columns []string `json:"columns"`

	// Records contains the rows as maps of column name to value.
	Records []map[string]any `json:"records"`

	// Summary contains execution metadata.
	Summary QuerySummary `json:"summary"`
}

// QuerySummary provides metadata about query execution. Counters are only
// reported by engines that track them.
type QuerySummary struct {
	ExecutionTime        time.Duration `json:"execution_time"`
	NodesCreated         int           `json:"nodes_created,omitempty"`
	NodesDeleted         int           `json:"nodes_deleted,omitempty"`
	RelationshipsCreated int           `json:"relationships_created,omitempty"`
	RelationshipsDeleted int           `json:"relationships_deleted,omitempty"`
	PropertiesSet        int           `json:"properties_set,omitempty"`
}

// DatabaseInfo describes one tenant graph.
type DatabaseInfo struct {
	GraphID   string `json:"graph_id"`
	Backend   Type   `json:"backend"`
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	SizeBytes int64  `json:"size_bytes"`
	Status    string `json:"status"`

	NodeTables []string `json:"node_tables,omitempty"`
	RelTables  []string `json:"rel_tables,omitempty"`
	Tables     []string `json:"tables,omitempty"`

	Connections int `json:"connections"`
}

// ClusterTopology describes the nodes serving a backend.
type ClusterTopology struct {
	Backend Type            `json:"backend"`
	Mode    string          `json:"mode"`
	Members []ClusterMember `json:"members"`
}

// Topology modes.
const (
	ModeEmbedded   = "embedded"
	ModeSingleNode = "single"
	ModeCluster    = "cluster"
)

// ClusterMember is one serving node.
type ClusterMember struct {
	ID        string            `json:"id"`
	Addresses []string          `json:"addresses"`
	Role      string            `json:"role"`
	Databases map[string]string `json:"databases,omitempty"`
}

// Format is the file format of an ingestion source.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
)

// IngestSource names external files to bulk load into one table.
type IngestSource struct {
	// Table is the destination table (node or rel table for Kuzu, label for
	// Neo4j).
	Table string `json:"table"`

	// URIs are local paths or object-store URLs readable by the engine.
	URIs []string `json:"uris"`

	Format Format `json:"format"`

	// SizeBytes is the declared total payload size, used for admission.
	SizeBytes int64 `json:"size_bytes"`

	// IgnoreErrors skips malformed rows instead of failing the load.
	IgnoreErrors bool `json:"ignore_errors"`
}

// Validate checks the source before any engine work is done.
func (s IngestSource) Validate() error {
	if err := validateTableName(s.Table); err != nil {
		return err
	}
	if len(s.URIs) == 0 {
		return types.NewError(types.INVALID_IDENTIFIER, "ingestion source has no URIs")
	}
	switch s.Format {
	case FormatParquet, FormatCSV, FormatJSON:
		return nil
	default:
		return types.NewError(types.UNSUPPORTED_OPERATION,
			"unsupported ingestion format "+string(s.Format))
	}
}

// IngestResult reports a completed bulk load.
type IngestResult struct {
	GraphID      string        `json:"graph_id"`
	Table        string        `json:"table"`
	Files        int           `json:"files"`
	RowsIngested int64         `json:"rows_ingested"`
	Checkpointed bool          `json:"checkpointed"`
	Duration     time.Duration `json:"duration"`
}
