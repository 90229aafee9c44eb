package backend

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

// Span attribute keys.
const (
	AttrBackend    = attribute.Key("graphapi.backend")
	AttrGraphID    = attribute.Key("graphapi.graph_id")
	AttrQueryBytes = attribute.Key("graphapi.query_bytes")
	AttrRows       = attribute.Key("graphapi.rows")
	AttrTable      = attribute.Key("graphapi.ingest.table")
	AttrFiles      = attribute.Key("graphapi.ingest.files")
	AttrDurationMS = attribute.Key("graphapi.duration_ms")
	AttrErrorCode  = attribute.Key("graphapi.error_code")
)

// TracedBackend wraps a Backend and records one span per call, named
// "graphapi.backend.<operation>".
type TracedBackend struct {
	inner  Backend
	tracer trace.Tracer
}

// NewTracedBackend wraps inner with tracing through tracer.
func NewTracedBackend(inner Backend, tracer trace.Tracer) *TracedBackend {
	return &TracedBackend{inner: inner, tracer: tracer}
}

func (t *TracedBackend) sealed() {}

// Unwrap returns the decorated backend.
func (t *TracedBackend) Unwrap() Backend { return t.inner }

func (t *TracedBackend) start(ctx context.Context, op, graphID string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	ctx, span := t.tracer.Start(ctx, "graphapi.backend."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(AttrBackend.String(string(t.inner.Type())))
	if graphID != "" {
		span.SetAttributes(AttrGraphID.String(graphID))
	}
	span.SetAttributes(attrs...)
	return ctx, span, time.Now()
}

func finish(span trace.Span, start time.Time, err error) {
	span.SetAttributes(AttrDurationMS.Float64(float64(time.Since(start).Microseconds()) / 1000))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if code := types.CodeOf(err); code != "" {
			span.SetAttributes(AttrErrorCode.String(string(code)))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Type returns the inner backend's type.
func (t *TracedBackend) Type() Type { return t.inner.Type() }

// ExecuteQuery traces the inner ExecuteQuery.
func (t *TracedBackend) ExecuteQuery(ctx context.Context, graphID, query string, params map[string]any) (*QueryResult, error) {
	ctx, span, start := t.start(ctx, "execute_query", graphID, AttrQueryBytes.Int(len(query)))
	res, err := t.inner.ExecuteQuery(ctx, graphID, query, params)
	if res != nil {
		span.SetAttributes(AttrRows.Int(len(res.Records)))
	}
	finish(span, start, err)
	return res, err
}

// ExecuteWrite traces the inner ExecuteWrite.
func (t *TracedBackend) ExecuteWrite(ctx context.Context, graphID, query string, params map[string]any) (*QueryResult, error) {
	ctx, span, start := t.start(ctx, "execute_write", graphID, AttrQueryBytes.Int(len(query)))
	res, err := t.inner.ExecuteWrite(ctx, graphID, query, params)
	if res != nil {
		span.SetAttributes(AttrRows.Int(len(res.Records)))
	}
	finish(span, start, err)
	return res, err
}

// CreateDatabase traces the inner CreateDatabase.
func (t *TracedBackend) CreateDatabase(ctx context.Context, graphID string, schema []string) error {
	ctx, span, start := t.start(ctx, "create_database", graphID)
	err := t.inner.CreateDatabase(ctx, graphID, schema)
	finish(span, start, err)
	return err
}

// DeleteDatabase traces the inner DeleteDatabase.
func (t *TracedBackend) DeleteDatabase(ctx context.Context, graphID string) error {
	ctx, span, start := t.start(ctx, "delete_database", graphID)
	err := t.inner.DeleteDatabase(ctx, graphID)
	finish(span, start, err)
	return err
}

// ListDatabases traces the inner ListDatabases.
func (t *TracedBackend) ListDatabases(ctx context.Context) ([]string, error) {
	ctx, span, start := t.start(ctx, "list_databases", "")
	ids, err := t.inner.ListDatabases(ctx)
	span.SetAttributes(AttrRows.Int(len(ids)))
	finish(span, start, err)
	return ids, err
}

// GetDatabaseInfo traces the inner GetDatabaseInfo.
func (t *TracedBackend) GetDatabaseInfo(ctx context.Context, graphID string) (*DatabaseInfo, error) {
	ctx, span, start := t.start(ctx, "get_database_info", graphID)
	info, err := t.inner.GetDatabaseInfo(ctx, graphID)
	finish(span, start, err)
	return info, err
}

// GetClusterTopology traces the inner GetClusterTopology.
func (t *TracedBackend) GetClusterTopology(ctx context.Context) (*ClusterTopology, error) {
	ctx, span, start := t.start(ctx, "get_cluster_topology", "")
	topo, err := t.inner.GetClusterTopology(ctx)
	finish(span, start, err)
	return topo, err
}

// HealthCheck traces the inner HealthCheck. An unhealthy result marks the
// span as an error.
func (t *TracedBackend) HealthCheck(ctx context.Context) types.HealthStatus {
	ctx, span, start := t.start(ctx, "health_check", "")
	status := t.inner.HealthCheck(ctx)
	span.SetAttributes(attribute.String("graphapi.health.state", string(status.State)))
	if status.IsUnhealthy() {
		span.SetStatus(codes.Error, status.Message)
	}
	span.SetAttributes(AttrDurationMS.Float64(float64(time.Since(start).Microseconds()) / 1000))
	span.End()
	return status
}

// IngestFromSource traces the inner IngestFromSource.
func (t *TracedBackend) IngestFromSource(ctx context.Context, graphID string, src IngestSource) (*IngestResult, error) {
	ctx, span, start := t.start(ctx, "ingest_from_source", graphID,
		AttrTable.String(src.Table),
		AttrFiles.Int(len(src.URIs)),
		attribute.String("graphapi.ingest.format", string(src.Format)))
	res, err := t.inner.IngestFromSource(ctx, graphID, src)
	if res != nil {
		span.SetAttributes(AttrRows.Int64(res.RowsIngested))
	}
	finish(span, start, err)
	return res, err
}

// Close closes the inner backend.
func (t *TracedBackend) Close(ctx context.Context) error {
	return t.inner.Close(ctx)
}
