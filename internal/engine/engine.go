// Package engine defines the native database abstraction the connection pool
// manages. A Driver opens one Database object per on-disk file; a Database
// hands out Handles, which are the pool's unit of lifecycle management.
//
// Embedded engines permit a single read-write database object per file per
// process, so every Handle for a tenant is a connection on the same Database.
package engine

import (
	"context"
)

// Driver opens native databases for one engine.
type Driver interface {
	// Name identifies the engine ("kuzu", "duckdb").
	Name() string

	// Extension is the file suffix appended to a tenant id to form its path.
	Extension() string

	// OpenDatabase opens or creates the database stored at path.
	OpenDatabase(ctx context.Context, path string) (Database, error)

	// ReleaseLocks removes engine lock artifacts left next to path.
	// Only called during aggressive cleanup, after every handle is closed.
	ReleaseLocks(path string) error
}

// Database is an open native database object shared by a tenant's handles.
type Database interface {
	// Connect opens a new handle and applies one-time configuration
	// (extensions, pragmas) before returning it.
	Connect(ctx context.Context) (Handle, error)

	// Close releases the database object. All handles must be closed first.
	Close() error
}

// Handle is a live engine connection. A Handle is never used by more than
// one goroutine at a time; the pool enforces this through leases.
type Handle interface {
	// Query runs a statement and collects its rows.
	Query(ctx context.Context, statement string, params map[string]any) (*Result, error)

	// Exec runs a statement, discarding rows.
	Exec(ctx context.Context, statement string, params map[string]any) error

	// Ping issues a trivial round-trip query.
	Ping(ctx context.Context) error

	// Checkpoint flushes the write-ahead log to the main database file.
	Checkpoint(ctx context.Context) error

	// Close releases the native connection.
	Close() error
}

// Result is a fully materialized row set.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}
