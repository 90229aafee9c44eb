package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/RoboFinSystems/robosystems-sub012/internal/engine"
	"github.com/RoboFinSystems/robosystems-sub012/internal/pool"
	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

// embedded holds what the pool-backed engines share. Handles are always
// borrowed through the pool and released before a method returns.
type embedded struct {
	typ  Type
	pool *pool.Pool
	opts options

	// sidecars are suffixes of files the engine keeps next to a database.
	sidecars []string
}

func newEmbedded(typ Type, p *pool.Pool, sidecars []string, opts []Option) embedded {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With(slog.String("backend", string(typ)))
	return embedded{typ: typ, pool: p, opts: o, sidecars: sidecars}
}

// Pool returns the connection pool serving the backend.
func (e *embedded) Pool() *pool.Pool { return e.pool }

// withHandle runs fn on a pooled handle. An engine failure triggers a health
// probe of that handle; the handle is returned to the pool either way and an
// unhealthy one is skipped on the next acquisition.
func (e *embedded) withHandle(ctx context.Context, graphID, op string, fn func(engine.Handle) error) error {
	return e.pool.WithConnection(ctx, graphID, func(lease *pool.Lease) error {
		return e.run(ctx, lease, op, fn)
	})
}

// withNewHandle is withHandle for a database that must not exist yet.
func (e *embedded) withNewHandle(ctx context.Context, graphID, op string, fn func(engine.Handle) error) error {
	lease, err := e.pool.AcquireNew(ctx, graphID)
	if err != nil {
		return err
	}
	defer lease.Release()
	return e.run(ctx, lease, op, fn)
}

func (e *embedded) run(ctx context.Context, lease *pool.Lease, op string, fn func(engine.Handle) error) error {
	err := fn(lease.Handle())
	if err == nil {
		return nil
	}
	var graphErr *types.GraphError
	if errors.As(err, &graphErr) {
		return err
	}

	healthy := lease.CheckHealth(ctx)
	e.opts.logger.Error("engine operation failed",
		slog.String("graph_id", lease.GraphID()),
		slog.String("operation", op),
		slog.Bool("connection_healthy", healthy),
		slog.String("error", err.Error()))
	return types.WrapError(types.ENGINE_OPERATION_FAILED,
		fmt.Sprintf("%s failed for %s", op, lease.GraphID()), err)
}

func (e *embedded) query(ctx context.Context, graphID, op, query string, params map[string]any) (*QueryResult, error) {
	if err := types.ValidateGraphID(graphID); err != nil {
		return nil, err
	}
	if err := e.opts.admission.CheckQuery(graphID, query); err != nil {
		return nil, err
	}

	start := time.Now()
	var res *engine.Result
	err := e.withHandle(ctx, graphID, op, func(h engine.Handle) error {
		var err error
		res, err = h.Query(ctx, query, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toQueryResult(res, time.Since(start)), nil
}

func toQueryResult(res *engine.Result, elapsed time.Duration) *QueryResult {
	out := &QueryResult{
		Columns: []string{},
		Records: []map[string]any{},
		Summary: QuerySummary{ExecutionTime: elapsed},
	}
	if res == nil {
		return out
	}
	if res.Columns != nil {
		out.Columns = res.Columns
	}
	if res.Rows != nil {
		out.Records = res.Rows
	}
	return out
}

func (e *embedded) databasePath(graphID string) (string, error) {
	return e.pool.DatabasePath(graphID)
}

func (e *embedded) exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, types.WrapError(types.ENGINE_OPERATION_FAILED, "failed to stat "+path, err)
}

// deleteDatabase closes every pooled handle for the tenant, releases engine
// locks and then removes the database and its sidecar files.
func (e *embedded) deleteDatabase(ctx context.Context, graphID string) error {
	path, err := e.databasePath(graphID)
	if err != nil {
		return err
	}
	ok, err := e.exists(path)
	if err != nil {
		return err
	}
	if !ok {
		return types.NewError(types.DATABASE_NOT_FOUND, fmt.Sprintf("database %s does not exist", graphID))
	}

	if err := e.pool.ForceDatabaseCleanup(ctx, graphID, true); err != nil {
		e.opts.logger.Warn("cleanup before delete incomplete",
			slog.String("graph_id", graphID),
			slog.String("error", err.Error()))
	}

	var errs []error
	for _, p := range append([]string{path}, e.sidecarPaths(path)...) {
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return types.WrapError(types.ENGINE_OPERATION_FAILED,
			fmt.Sprintf("failed to remove files for %s", graphID), errors.Join(errs...))
	}

	e.opts.logger.Info("database deleted",
		slog.String("graph_id", graphID),
		slog.String("path", path))
	return nil
}

func (e *embedded) sidecarPaths(path string) []string {
	paths := make([]string, len(e.sidecars))
	for i, s := range e.sidecars {
		paths[i] = path + s
	}
	return paths
}

// listDatabases scans the base directory for files with the driver's
// extension.
func (e *embedded) listDatabases() ([]string, error) {
	cfg := e.pool.Config()
	entries, err := os.ReadDir(cfg.BasePath)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, types.WrapError(types.ENGINE_OPERATION_FAILED, "failed to list "+cfg.BasePath, err)
	}

	ext := e.pool.Extension()
	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ext) {
			continue
		}
		id := strings.TrimSuffix(name, ext)
		if types.ValidateGraphID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// sizeOnDisk sums the database and its sidecars. Kuzu may store a database
// as a directory, so directories are walked.
func (e *embedded) sizeOnDisk(path string) int64 {
	var total int64
	for _, p := range append([]string{path}, e.sidecarPaths(path)...) {
		_ = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() {
				if info, err := d.Info(); err == nil {
					total += info.Size()
				}
			}
			return nil
		})
	}
	return total
}

func (e *embedded) baseInfo(graphID string) (*DatabaseInfo, error) {
	path, err := e.databasePath(graphID)
	if err != nil {
		return nil, err
	}
	ok, err := e.exists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.NewError(types.DATABASE_NOT_FOUND, fmt.Sprintf("database %s does not exist", graphID))
	}

	return &DatabaseInfo{
		GraphID:     graphID,
		Backend:     e.typ,
		Name:        graphID,
		Path:        path,
		SizeBytes:   e.sizeOnDisk(path),
		Status:      "online",
		Connections: e.pool.GetStats().Databases[graphID].Connections,
	}, nil
}

func (e *embedded) topology() *ClusterTopology {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return &ClusterTopology{
		Backend: e.typ,
		Mode:    ModeEmbedded,
		Members: []ClusterMember{{
			ID:        host,
			Addresses: []string{e.pool.Config().BasePath},
			Role:      "primary",
		}},
	}
}

func (e *embedded) healthCheck() types.HealthStatus {
	if e.pool.IsClosed() {
		return types.Unhealthy("connection pool is closed")
	}
	cfg := e.pool.Config()
	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		return types.Unhealthy(fmt.Sprintf("database directory unavailable: %v", err))
	}
	if !info.IsDir() {
		return types.Unhealthy(cfg.BasePath + " is not a directory")
	}

	stats := e.pool.GetStats()
	status := types.Healthy(fmt.Sprintf("%s pool serving %d databases", e.typ, len(stats.Databases)))
	if stats.HealthChecks > 0 && stats.HealthFailures*2 > stats.HealthChecks {
		status = types.Degraded(fmt.Sprintf("%d of %d health probes failed", stats.HealthFailures, stats.HealthChecks))
	}
	return status.
		WithDetail("base_path", cfg.BasePath).
		WithDetail("total_connections", stats.TotalConnections).
		WithDetail("databases", len(stats.Databases))
}

// admitIngestion validates the tenant and source and takes an admission slot.
func (e *embedded) admitIngestion(ctx context.Context, graphID string, src IngestSource) (func(), error) {
	if err := types.ValidateGraphID(graphID); err != nil {
		return nil, err
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	return e.opts.admission.AdmitIngestion(ctx, graphID, src.SizeBytes)
}
