// Package enginetest provides an in-memory engine.Driver for tests. It keeps
// an ordered event log and counts every native open and close so tests can
// assert that no handle leaks and none is closed twice.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoboFinSystems/robosystems-sub012/internal/engine"
)

// ErrInjected is returned by operations configured to fail.
var ErrInjected = errors.New("enginetest: injected failure")

// Driver is a fake engine.Driver.
type Driver struct {
	mu sync.Mutex

	name      string
	extension string

	databases []*Database
	handles   []*Handle
	events    []string
	nextID    int

	// Configurable behaviour
	connectDelay  time.Duration
	connectErr    error
	openErr       error
	queryErr      error
	queryHook     func(statement string) (*engine.Result, error)
	releaseLocks  []string
	createOnOpen  bool
	connectsTotal atomic.Int64
}

// NewDriver creates a fake driver named "fake" with extension ".fake".
// Opening a database creates an empty file at its path, mirroring how
// embedded engines materialize their storage.
func NewDriver() *Driver {
	return &Driver{
		name:         "fake",
		extension:    ".fake",
		createOnOpen: true,
	}
}

// WithName overrides the driver name and extension.
func (d *Driver) WithName(name, extension string) *Driver {
	d.name = name
	d.extension = extension
	return d
}

// SetConnectDelay makes every Connect sleep before returning.
func (d *Driver) SetConnectDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectDelay = delay
}

// SetConnectError makes Connect fail with err (nil to clear).
func (d *Driver) SetConnectError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
}

// SetOpenError makes OpenDatabase fail with err (nil to clear).
func (d *Driver) SetOpenError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// SetQueryError makes every Query and Exec fail with err (nil to clear).
func (d *Driver) SetQueryError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queryErr = err
}

// SetQueryHook lets a test answer Query calls. Returning (nil, nil) falls
// back to an empty result.
func (d *Driver) SetQueryHook(hook func(statement string) (*engine.Result, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queryHook = hook
}

// Name returns the configured driver name.
func (d *Driver) Name() string { return d.name }

// Extension returns the configured file suffix.
func (d *Driver) Extension() string { return d.extension }

// OpenDatabase records the open and creates the backing file.
func (d *Driver) OpenDatabase(ctx context.Context, path string) (engine.Database, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.createOnOpen {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, err
		}
		f.Close()
	}

	db := &Database{driver: d, Path: path}
	d.databases = append(d.databases, db)
	d.events = append(d.events, "open-db:"+path)
	return db, nil
}

// ReleaseLocks records the call.
func (d *Driver) ReleaseLocks(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocks = append(d.releaseLocks, path)
	d.events = append(d.events, "release-locks:"+path)
	return nil
}

// ReleasedLocks returns every path passed to ReleaseLocks.
func (d *Driver) ReleasedLocks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.releaseLocks...)
}

// Handles returns every handle ever created, in creation order.
func (d *Driver) Handles() []*Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Handle(nil), d.handles...)
}

// Databases returns every database ever opened, in open order.
func (d *Driver) Databases() []*Database {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Database(nil), d.databases...)
}

// OpenHandles counts handles that have not been closed.
func (d *Driver) OpenHandles() int {
	n := 0
	for _, h := range d.Handles() {
		if h.CloseCount() == 0 {
			n++
		}
	}
	return n
}

// OpenHandlesFor counts unclosed handles whose database lives at path.
func (d *Driver) OpenHandlesFor(path string) int {
	n := 0
	for _, h := range d.Handles() {
		if h.db.Path == path && h.CloseCount() == 0 {
			n++
		}
	}
	return n
}

// Connects returns the total number of successful Connect calls.
func (d *Driver) Connects() int64 {
	return d.connectsTotal.Load()
}

// Events returns the ordered event log.
func (d *Driver) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

func (d *Driver) record(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

// Database is a fake engine.Database.
type Database struct {
	driver     *Driver
	Path       string
	closeCount atomic.Int32
}

// CloseCount reports how many times Close was called.
func (db *Database) CloseCount() int {
	return int(db.closeCount.Load())
}

// Connect creates a new fake handle.
func (db *Database) Connect(ctx context.Context) (engine.Handle, error) {
	db.driver.mu.Lock()
	delay := db.driver.connectDelay
	connectErr := db.driver.connectErr
	db.driver.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if connectErr != nil {
		return nil, connectErr
	}
	if db.CloseCount() > 0 {
		return nil, fmt.Errorf("enginetest: connect on closed database %s", db.Path)
	}

	db.driver.mu.Lock()
	db.driver.nextID++
	h := &Handle{ID: fmt.Sprintf("h%d", db.driver.nextID), db: db}
	db.driver.handles = append(db.driver.handles, h)
	db.driver.events = append(db.driver.events, "connect:"+h.ID)
	db.driver.mu.Unlock()

	db.driver.connectsTotal.Add(1)
	return h, nil
}

// Close records the close. Closing with open handles is recorded as an event
// so tests can assert ordering.
func (db *Database) Close() error {
	db.closeCount.Add(1)
	for _, h := range db.driver.Handles() {
		if h.db == db && h.CloseCount() == 0 {
			db.driver.record("close-db-with-open-handle:" + db.Path)
		}
	}
	db.driver.record("close-db:" + db.Path)
	return nil
}

// Handle is a fake engine.Handle.
type Handle struct {
	ID string
	db *Database

	closeCount      atomic.Int32
	checkpointCount atomic.Int32
	pingFail        atomic.Bool

	mu         sync.Mutex
	statements []string
}

// CloseCount reports how many times Close was called.
func (h *Handle) CloseCount() int { return int(h.closeCount.Load()) }

// CheckpointCount reports how many times Checkpoint was called.
func (h *Handle) CheckpointCount() int { return int(h.checkpointCount.Load()) }

// FailPing makes subsequent Ping calls fail.
func (h *Handle) FailPing(fail bool) { h.pingFail.Store(fail) }

// Statements returns every statement run on the handle.
func (h *Handle) Statements() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.statements...)
}

func (h *Handle) run(statement string) (*engine.Result, error) {
	if h.CloseCount() > 0 {
		return nil, fmt.Errorf("enginetest: use of closed handle %s", h.ID)
	}

	h.mu.Lock()
	h.statements = append(h.statements, statement)
	h.mu.Unlock()
	h.db.driver.record("exec:" + h.ID + ":" + firstWord(statement))

	h.db.driver.mu.Lock()
	queryErr := h.db.driver.queryErr
	hook := h.db.driver.queryHook
	h.db.driver.mu.Unlock()

	if queryErr != nil {
		return nil, queryErr
	}
	if hook != nil {
		res, err := hook(statement)
		if err != nil || res != nil {
			return res, err
		}
	}
	return &engine.Result{Columns: []string{}, Rows: []map[string]any{}}, nil
}

// Query records the statement and returns the hook result or an empty result.
func (h *Handle) Query(ctx context.Context, statement string, params map[string]any) (*engine.Result, error) {
	return h.run(statement)
}

// Exec records the statement.
func (h *Handle) Exec(ctx context.Context, statement string, params map[string]any) error {
	_, err := h.run(statement)
	return err
}

// Ping fails when FailPing(true) was called or the handle is closed.
func (h *Handle) Ping(ctx context.Context) error {
	if h.CloseCount() > 0 {
		return fmt.Errorf("enginetest: ping on closed handle %s", h.ID)
	}
	if h.pingFail.Load() {
		return ErrInjected
	}
	return nil
}

// Checkpoint records the checkpoint.
func (h *Handle) Checkpoint(ctx context.Context) error {
	if h.CloseCount() > 0 {
		return fmt.Errorf("enginetest: checkpoint on closed handle %s", h.ID)
	}
	h.checkpointCount.Add(1)
	h.db.driver.record("checkpoint:" + h.ID)
	return nil
}

// Close records the close.
func (h *Handle) Close() error {
	h.closeCount.Add(1)
	h.db.driver.record("close:" + h.ID)
	return nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

var _ engine.Driver = (*Driver)(nil)
