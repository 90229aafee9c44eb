// Package pool manages a bounded set of live embedded-database handles per
// tenant graph.
//
// Handle lookup, creation and eviction for one tenant are serialized by that
// tenant's lock from a LockRegistry; unrelated tenants never contend. Callers
// borrow a handle through a Lease and give it back with Release; they never
// close it. Maintenance (TTL expiry, health probing) runs cooperatively from
// Acquire at most once per CleanupInterval, or on a ticker when
// BackgroundMaintenance is set.
package pool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RoboFinSystems/robosystems-sub012/internal/engine"
	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

// Pool hands out healthy handles to one engine's tenant databases.
type Pool struct {
	config Config
	driver engine.Driver
	logger *slog.Logger
	now    func() time.Time

	locks *LockRegistry

	mu      sync.RWMutex
	tenants map[string]*tenantPool

	counters counters

	lastMaintenance atomic.Int64
	closed          atomic.Bool

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// tenantPool is one tenant's records plus its shared native database object.
// conns, evicted and db are guarded by the tenant's lock; snapshot is
// republished after every change so GetStats can read without that lock.
type tenantPool struct {
	graphID string
	path    string
	db      engine.Database
	conns   []*ConnectionInfo
	// evicted holds borrowed records detached at capacity. Their handles
	// stay open on db until Release, so db must outlive them.
	evicted  []*ConnectionInfo
	snapshot atomic.Pointer[[]*ConnectionInfo]
}

func (t *tenantPool) publish() {
	snap := append([]*ConnectionInfo(nil), t.conns...)
	t.snapshot.Store(&snap)
}

func (t *tenantPool) remove(info *ConnectionInfo) {
	t.conns = without(t.conns, info)
}

func without(list []*ConnectionInfo, info *ConnectionInfo) []*ConnectionInfo {
	for i, c := range list {
		if c == info {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// idle reports whether no handle, pooled or evicted, is open on db.
func (t *tenantPool) idle() bool {
	return len(t.conns) == 0 && len(t.evicted) == 0
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithClock replaces time.Now, for tests that need to move time.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// New creates a pool for driver. It does not register the pool; see Initialize.
func New(config Config, driver engine.Driver, opts ...Option) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if driver == nil {
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED, "pool requires an engine driver")
	}

	p := &Pool{
		config:  config,
		driver:  driver,
		logger:  slog.Default(),
		now:     time.Now,
		locks:   NewLockRegistry(),
		tenants: make(map[string]*tenantPool),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("engine", driver.Name()))
	p.lastMaintenance.Store(p.now().UnixNano())

	return p, nil
}

// Name returns the engine name of the pool's driver.
func (p *Pool) Name() string { return p.driver.Name() }

// Extension returns the file suffix of the pool's databases.
func (p *Pool) Extension() string { return p.driver.Extension() }

// IsClosed reports whether Close has been called.
func (p *Pool) IsClosed() bool { return p.closed.Load() }

// Config returns the pool configuration.
func (p *Pool) Config() Config { return p.config }

// DatabasePath returns the on-disk location of a tenant's database:
// BasePath/<graphID><extension>.
func (p *Pool) DatabasePath(graphID string) (string, error) {
	if err := types.ValidateGraphID(graphID); err != nil {
		return "", err
	}
	return p.databasePath(graphID), nil
}

func (p *Pool) databasePath(graphID string) string {
	return filepath.Join(p.config.BasePath, graphID+p.driver.Extension())
}

// tenant returns the tenant's entry, creating it if absent.
func (p *Pool) tenant(graphID string) *tenantPool {
	p.mu.RLock()
	tp, ok := p.tenants[graphID]
	p.mu.RUnlock()
	if ok {
		return tp
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tp, ok = p.tenants[graphID]; ok {
		return tp
	}
	tp = &tenantPool{graphID: graphID, path: p.databasePath(graphID)}
	tp.publish()
	p.tenants[graphID] = tp
	return tp
}

// lookup returns the tenant's entry without creating one.
func (p *Pool) lookup(graphID string) (*tenantPool, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tp, ok := p.tenants[graphID]
	return tp, ok
}

func (p *Pool) tenantIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.tenants))
	for id := range p.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Acquire borrows a handle for graphID. It reuses the most recently used
// idle valid handle, or creates one, evicting the least recently used
// handle first when the tenant is at capacity. The lease must be released.
func (p *Pool) Acquire(ctx context.Context, graphID string) (*Lease, error) {
	return p.acquire(ctx, graphID, false)
}

// AcquireNew borrows the first handle of a database that does not exist
// yet. It fails with DATABASE_EXISTS when the tenant's file is on disk or
// its database is open; the check and the open happen under the tenant
// lock, so of two concurrent callers only one succeeds.
func (p *Pool) AcquireNew(ctx context.Context, graphID string) (*Lease, error) {
	return p.acquire(ctx, graphID, true)
}

func (p *Pool) acquire(ctx context.Context, graphID string, fresh bool) (*Lease, error) {
	if err := types.ValidateGraphID(graphID); err != nil {
		return nil, err
	}
	if p.closed.Load() {
		return nil, types.NewError(types.POOL_CLOSED, "connection pool is closed")
	}

	p.maybeRunMaintenance(ctx)

	lock := p.locks.Get(graphID)
	lock.Lock()
	defer lock.Unlock()

	// Registered before the re-check so a concurrent Close cleans it.
	tp := p.tenant(graphID)
	if p.closed.Load() {
		return nil, types.NewError(types.POOL_CLOSED, "connection pool is closed")
	}
	if fresh {
		if err := p.checkAbsent(tp); err != nil {
			return nil, err
		}
	}
	now := p.now()

	if info := p.findReusable(tp, now); info != nil {
		info.borrowed.Store(true)
		info.LastUsed = now
		info.UseCount++
		p.counters.reused.Add(1)
		tp.publish()
		return &Lease{pool: p, graphID: graphID, info: info}, nil
	}

	info, err := p.create(ctx, tp, now)
	if err != nil {
		return nil, err
	}
	return &Lease{pool: p, graphID: graphID, info: info}, nil
}

// WithConnection runs fn with a borrowed handle and releases it afterwards,
// including when fn panics.
func (p *Pool) WithConnection(ctx context.Context, graphID string, fn func(*Lease) error) error {
	lease, err := p.Acquire(ctx, graphID)
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(lease)
}

// checkAbsent fails when the tenant's database is open or on disk. Caller
// holds the tenant lock.
func (p *Pool) checkAbsent(tp *tenantPool) error {
	exists := tp.db != nil
	if !exists {
		_, err := os.Stat(tp.path)
		switch {
		case err == nil:
			exists = true
		case !errors.Is(err, fs.ErrNotExist):
			return types.WrapError(types.ENGINE_OPERATION_FAILED, "failed to stat "+tp.path, err)
		}
	}
	if exists {
		return types.NewError(types.DATABASE_EXISTS, fmt.Sprintf("database %s already exists", tp.graphID))
	}
	return nil
}

// findReusable picks the idle valid handle with the latest LastUsed.
func (p *Pool) findReusable(tp *tenantPool, now time.Time) *ConnectionInfo {
	var best *ConnectionInfo
	for _, info := range tp.conns {
		if info.IsBorrowed() || !info.valid(now, p.config.ConnectionTTL) {
			continue
		}
		if best == nil || info.LastUsed.After(best.LastUsed) {
			best = info
		}
	}
	return best
}

// create opens a new handle for the tenant. Caller holds the tenant lock.
func (p *Pool) create(ctx context.Context, tp *tenantPool, now time.Time) (*ConnectionInfo, error) {
	if tp.db == nil {
		db, err := p.driver.OpenDatabase(ctx, tp.path)
		if err != nil {
			p.logger.Error("failed to open database",
				slog.String("graph_id", tp.graphID),
				slog.String("path", tp.path),
				slog.String("error", err.Error()))
			return nil, types.WrapRetryableError(types.CONNECTION_FAILED,
				fmt.Sprintf("failed to open database for %s", tp.graphID), err)
		}
		tp.db = db
	}

	for len(tp.conns) >= p.config.MaxConnectionsPerDB {
		p.evictOne(tp, now)
	}

	handle, err := tp.db.Connect(ctx)
	if err != nil {
		p.logger.Error("failed to connect",
			slog.String("graph_id", tp.graphID),
			slog.String("error", err.Error()))
		tp.publish()
		return nil, types.WrapRetryableError(types.CONNECTION_FAILED,
			fmt.Sprintf("failed to connect to database for %s", tp.graphID), err)
	}

	info := newConnectionInfo(handle, tp.path, now)
	info.borrowed.Store(true)
	info.UseCount = 1
	tp.conns = append(tp.conns, info)
	tp.publish()
	p.counters.created.Add(1)

	p.logger.Debug("created connection",
		slog.String("graph_id", tp.graphID),
		slog.String("connection_id", info.ID),
		slog.Int("tenant_connections", len(tp.conns)))
	return info, nil
}

// evictOne removes one record to make room. Preference order: an idle
// invalid record, the idle least recently used, then the borrowed least
// recently used, whose close is deferred until its lease is released.
// Caller holds the tenant lock.
func (p *Pool) evictOne(tp *tenantPool, now time.Time) {
	var idleInvalid, idle, borrowed *ConnectionInfo
	for _, info := range tp.conns {
		switch {
		case info.IsBorrowed():
			if borrowed == nil || info.LastUsed.Before(borrowed.LastUsed) {
				borrowed = info
			}
		case !info.valid(now, p.config.ConnectionTTL):
			if idleInvalid == nil || info.LastUsed.Before(idleInvalid.LastUsed) {
				idleInvalid = info
			}
		default:
			if idle == nil || info.LastUsed.Before(idle.LastUsed) {
				idle = info
			}
		}
	}

	victim := idleInvalid
	if victim == nil {
		victim = idle
	}
	if victim == nil {
		victim = borrowed
	}
	if victim == nil {
		return
	}

	p.counters.evictions.Add(1)
	p.logger.Info("evicting connection at capacity",
		slog.String("graph_id", tp.graphID),
		slog.String("connection_id", victim.ID),
		slog.Bool("borrowed", victim.IsBorrowed()),
		slog.Int("max_connections_per_db", p.config.MaxConnectionsPerDB))

	if victim.IsBorrowed() {
		victim.evicted.Store(true)
		tp.evicted = append(tp.evicted, victim)
	} else {
		p.closeInfo(victim)
	}
	tp.remove(victim)
}

// closeInfo closes a record's native handle exactly once.
func (p *Pool) closeInfo(info *ConnectionInfo) {
	if !info.closed.CompareAndSwap(false, true) {
		return
	}
	info.healthy.Store(false)
	if err := info.Handle.Close(); err != nil {
		p.logger.Warn("error closing connection",
			slog.String("connection_id", info.ID),
			slog.String("path", info.DatabasePath),
			slog.String("error", err.Error()))
	}
	p.counters.closed.Add(1)
}

// release returns a lease's handle to the pool.
func (p *Pool) release(graphID string, info *ConnectionInfo) {
	lock := p.locks.Get(graphID)
	lock.Lock()
	defer lock.Unlock()

	tp := p.tenant(graphID)
	info.borrowed.Store(false)
	if info.evicted.Load() {
		p.closeInfo(info)
		tp.evicted = without(tp.evicted, info)
		if p.closeIdleDatabase(tp) {
			p.logger.Debug("closed database after last evicted lease",
				slog.String("graph_id", graphID))
		}
	}
	tp.publish()
}

// closeIdleDatabase closes the tenant's database object once no handle is
// open on it. Caller holds the tenant lock.
func (p *Pool) closeIdleDatabase(tp *tenantPool) bool {
	if tp.db == nil || !tp.idle() {
		return false
	}
	if err := tp.db.Close(); err != nil {
		p.logger.Warn("error closing idle database",
			slog.String("graph_id", tp.graphID),
			slog.String("error", err.Error()))
	}
	tp.db = nil
	return true
}

// TestHealth issues a trivial round-trip query on the record's handle. A
// failure marks the record unhealthy and is counted; it is never returned as
// an error. The record stays in the pool and is skipped on the next Acquire.
func (p *Pool) TestHealth(ctx context.Context, info *ConnectionInfo) bool {
	p.counters.healthChecks.Add(1)
	if info.IsClosed() {
		p.counters.healthFailures.Add(1)
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.config.HealthCheckTimeout)
	defer cancel()

	if err := info.Handle.Ping(probeCtx); err != nil {
		info.healthy.Store(false)
		p.counters.healthFailures.Add(1)
		p.logger.Warn("connection health check failed",
			slog.String("connection_id", info.ID),
			slog.String("path", info.DatabasePath),
			slog.String("error", err.Error()))
		return false
	}

	info.healthy.Store(true)
	return true
}

// ForceDatabaseCleanup closes every handle of a tenant, whatever its TTL,
// health or lease state, and closes the tenant's database object. It is used
// before a tenant's files are removed. With aggressive set the driver is also
// asked to release engine lock files.
func (p *Pool) ForceDatabaseCleanup(ctx context.Context, graphID string, aggressive bool) error {
	if err := types.ValidateGraphID(graphID); err != nil {
		return err
	}

	lock := p.locks.Get(graphID)
	lock.Lock()
	defer lock.Unlock()

	tp, ok := p.lookup(graphID)
	if !ok {
		// Nothing open here; a stale lock file may still be left by
		// another process.
		if aggressive {
			if err := p.driver.ReleaseLocks(p.databasePath(graphID)); err != nil {
				return types.WrapError(types.ENGINE_OPERATION_FAILED,
					fmt.Sprintf("cleanup of %s incomplete", graphID), fmt.Errorf("release locks: %w", err))
			}
		}
		return nil
	}
	return p.cleanupLocked(tp, aggressive)
}

// cleanupLocked implements ForceDatabaseCleanup. Caller holds the tenant lock.
func (p *Pool) cleanupLocked(tp *tenantPool, aggressive bool) error {
	closedHandles := 0
	all := append(append([]*ConnectionInfo(nil), tp.conns...), tp.evicted...)
	for _, info := range all {
		if info.IsBorrowed() {
			p.logger.Warn("force-closing borrowed connection",
				slog.String("graph_id", tp.graphID),
				slog.String("connection_id", info.ID))
		}
		if !info.IsClosed() {
			closedHandles++
		}
		p.closeInfo(info)
	}
	tp.conns = nil
	tp.evicted = nil
	tp.publish()

	opened := closedHandles > 0 || tp.db != nil
	var errs []error
	if tp.db != nil {
		if err := tp.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		tp.db = nil
	}

	if aggressive {
		if err := p.driver.ReleaseLocks(tp.path); err != nil {
			errs = append(errs, fmt.Errorf("release locks: %w", err))
		}
	}

	if opened {
		p.counters.databasesCleaned.Add(1)
	}
	p.logger.Info("database cleanup complete",
		slog.String("graph_id", tp.graphID),
		slog.Int("closed_connections", closedHandles),
		slog.Bool("aggressive", aggressive))

	if len(errs) > 0 {
		return types.WrapError(types.ENGINE_OPERATION_FAILED,
			fmt.Sprintf("cleanup of %s incomplete", tp.graphID), errors.Join(errs...))
	}
	return nil
}

// Close force-cleans every tenant and rejects further acquisitions.
func (p *Pool) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range p.tenantIDs() {
		id := id
		g.Go(func() error {
			lock := p.locks.Get(id)
			lock.Lock()
			defer lock.Unlock()
			return p.cleanupLocked(p.tenant(id), false)
		})
	}
	err := g.Wait()

	p.logger.Info("connection pool closed",
		slog.Int64("connections_closed", p.counters.closed.Load()))
	return err
}

// Lease is a scoped borrow of one handle. It is not safe for concurrent use
// and must not be retained after Release.
type Lease struct {
	pool     *Pool
	graphID  string
	info     *ConnectionInfo
	released atomic.Bool
}

// Handle returns the borrowed native handle.
func (l *Lease) Handle() engine.Handle { return l.info.Handle }

// Info returns the pool record behind the lease.
func (l *Lease) Info() *ConnectionInfo { return l.info }

// GraphID returns the tenant the lease belongs to.
func (l *Lease) GraphID() string { return l.graphID }

// CheckHealth probes the borrowed handle; see Pool.TestHealth.
func (l *Lease) CheckHealth(ctx context.Context) bool {
	return l.pool.TestHealth(ctx, l.info)
}

// Release returns the handle to the pool. Extra calls are no-ops.
func (l *Lease) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	l.pool.release(l.graphID, l.info)
}
