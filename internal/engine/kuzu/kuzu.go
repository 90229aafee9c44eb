// Package kuzu implements engine.Driver for the embedded Kuzu graph database.
package kuzu

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	gokuzu "github.com/kuzudb/go-kuzu"

	"github.com/RoboFinSystems/robosystems-sub012/internal/engine"
)

// Extension is the file suffix of tenant databases.
const Extension = ".kuzu"

// Config holds Kuzu engine settings applied to every database and handle.
type Config struct {
	// BufferPoolSize in bytes; zero keeps the engine default.
	BufferPoolSize uint64
	// MaxThreads per query; zero keeps the engine default.
	MaxThreads uint64
	// QueryTimeout aborts statements that run longer. Zero disables it.
	QueryTimeout time.Duration
	// Extensions are installed and loaded on every new handle.
	Extensions []string
	ReadOnly   bool
}

// Driver opens Kuzu databases.
type Driver struct {
	config Config
}

// NewDriver creates a Kuzu driver.
func NewDriver(config Config) *Driver {
	return &Driver{config: config}
}

// Name returns "kuzu".
func (d *Driver) Name() string { return "kuzu" }

// Extension returns ".kuzu".
func (d *Driver) Extension() string { return Extension }

// OpenDatabase opens or creates the Kuzu database at path.
func (d *Driver) OpenDatabase(ctx context.Context, path string) (engine.Database, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	systemConfig := gokuzu.DefaultSystemConfig()
	if d.config.BufferPoolSize > 0 {
		systemConfig.BufferPoolSize = d.config.BufferPoolSize
	}
	if d.config.MaxThreads > 0 {
		systemConfig.MaxNumThreads = d.config.MaxThreads
	}
	systemConfig.ReadOnly = d.config.ReadOnly

	db, err := gokuzu.OpenDatabase(path, systemConfig)
	if err != nil {
		return nil, fmt.Errorf("open kuzu database %s: %w", path, err)
	}
	return &database{db: db, config: d.config}, nil
}

// ReleaseLocks removes a stale lock file next to the database.
func (d *Driver) ReleaseLocks(path string) error {
	err := os.Remove(path + ".lock")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type database struct {
	db     *gokuzu.Database
	config Config
}

func (d *database) Connect(ctx context.Context) (engine.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := gokuzu.OpenConnection(d.db)
	if err != nil {
		return nil, fmt.Errorf("open kuzu connection: %w", err)
	}
	h := &handle{conn: conn}

	if err := h.configure(ctx, d.config); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

func (d *database) Close() error {
	d.db.Close()
	return nil
}

type handle struct {
	conn *gokuzu.Connection
}

// configure applies per-connection settings and loads extensions.
func (h *handle) configure(ctx context.Context, config Config) error {
	for _, stmt := range connectionStatements(config) {
		if err := h.Exec(ctx, stmt, nil); err != nil {
			return fmt.Errorf("configure kuzu connection (%s): %w", stmt, err)
		}
	}
	return nil
}

func connectionStatements(config Config) []string {
	var statements []string
	if config.QueryTimeout > 0 {
		statements = append(statements, fmt.Sprintf("CALL timeout=%d", config.QueryTimeout.Milliseconds()))
	}
	if config.MaxThreads > 0 {
		statements = append(statements, fmt.Sprintf("CALL threads=%d", config.MaxThreads))
	}
	for _, ext := range config.Extensions {
		statements = append(statements,
			fmt.Sprintf("INSTALL %s", ext),
			fmt.Sprintf("LOAD EXTENSION %s", ext),
		)
	}
	return statements
}

func (h *handle) run(ctx context.Context, statement string, params map[string]any) (*gokuzu.QueryResult, error) {
	// Kuzu calls cannot be interrupted through ctx; honour cancellation up front.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return h.conn.Query(statement)
	}

	stmt, err := h.conn.Prepare(statement)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	return h.conn.Execute(stmt, params)
}

func (h *handle) Query(ctx context.Context, statement string, params map[string]any) (*engine.Result, error) {
	res, err := h.run(ctx, statement, params)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	columns := res.GetColumnNames()
	out := &engine.Result{Columns: columns, Rows: []map[string]any{}}
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, err
		}
		values, err := tuple.GetAsSlice()
		tuple.Close()
		if err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(values) {
				row[col] = values[i]
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func (h *handle) Exec(ctx context.Context, statement string, params map[string]any) error {
	res, err := h.run(ctx, statement, params)
	if err != nil {
		return err
	}
	res.Close()
	return nil
}

func (h *handle) Ping(ctx context.Context) error {
	res, err := h.Query(ctx, "RETURN 1 AS ok", nil)
	if err != nil {
		return err
	}
	if res.Len() != 1 {
		return fmt.Errorf("unexpected ping result: %d rows", res.Len())
	}
	return nil
}

func (h *handle) Checkpoint(ctx context.Context) error {
	return h.Exec(ctx, "CHECKPOINT", nil)
}

func (h *handle) Close() error {
	h.conn.Close()
	return nil
}
