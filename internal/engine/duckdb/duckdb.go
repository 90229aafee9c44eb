// Package duckdb implements engine.Driver for DuckDB staging databases.
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"

	goduckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/RoboFinSystems/robosystems-sub012/internal/engine"
)

// Extension is the file suffix of staging databases.
const Extension = ".duckdb"

// Config holds DuckDB settings applied to every new handle.
type Config struct {
	// Threads per connection; zero keeps the engine default.
	Threads int
	// MemoryLimit such as "2GB"; empty keeps the engine default.
	MemoryLimit string
	// Extensions are installed and loaded on every new handle (e.g. "httpfs").
	Extensions []string
	// Settings are applied with SET, e.g. s3_region.
	Settings map[string]string
}

// Driver opens DuckDB databases.
type Driver struct {
	config Config
}

// NewDriver creates a DuckDB driver.
func NewDriver(config Config) *Driver {
	return &Driver{config: config}
}

// Name returns "duckdb".
func (d *Driver) Name() string { return "duckdb" }

// Extension returns ".duckdb".
func (d *Driver) Extension() string { return Extension }

// OpenDatabase opens or creates the DuckDB file at path. The returned
// database shares one native instance across all of its handles.
func (d *Driver) OpenDatabase(ctx context.Context, path string) (engine.Database, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	statements := d.initStatements()
	connector, err := goduckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		for _, stmt := range statements {
			if _, err := execer.ExecContext(context.Background(), stmt, nil); err != nil {
				return fmt.Errorf("configure duckdb connection (%s): %w", stmt, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open duckdb database %s: %w", path, err)
	}

	db := sql.OpenDB(connector)
	// Handles are pinned *sql.Conn values; with no idle slots a closed handle
	// really closes its native connection instead of returning to database/sql.
	db.SetMaxIdleConns(0)

	return &database{db: db, connector: connector}, nil
}

// ReleaseLocks is a no-op: DuckDB holds its file lock only while the
// database instance is open.
func (d *Driver) ReleaseLocks(path string) error {
	return nil
}

func (d *Driver) initStatements() []string {
	var statements []string
	for _, ext := range d.config.Extensions {
		statements = append(statements,
			fmt.Sprintf("INSTALL %s", ext),
			fmt.Sprintf("LOAD %s", ext),
		)
	}
	if d.config.Threads > 0 {
		statements = append(statements, fmt.Sprintf("SET threads = %d", d.config.Threads))
	}
	if d.config.MemoryLimit != "" {
		statements = append(statements, fmt.Sprintf("SET memory_limit = '%s'", escapeLiteral(d.config.MemoryLimit)))
	}

	keys := make([]string, 0, len(d.config.Settings))
	for k := range d.config.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		statements = append(statements, fmt.Sprintf("SET %s = '%s'", k, escapeLiteral(d.config.Settings[k])))
	}
	return statements
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

type database struct {
	db        *sql.DB
	connector *goduckdb.Connector
}

func (d *database) Connect(ctx context.Context) (engine.Handle, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("open duckdb connection: %w", err)
	}
	return &handle{conn: conn}, nil
}

func (d *database) Close() error {
	if err := d.db.Close(); err != nil {
		return err
	}
	return d.connector.Close()
}

type handle struct {
	conn *sql.Conn
}

func namedArgs(params map[string]any) []any {
	if len(params) == 0 {
		return nil
	}
	args := make([]any, 0, len(params))
	for k, v := range params {
		args = append(args, sql.Named(k, v))
	}
	return args
}

func (h *handle) Query(ctx context.Context, statement string, params map[string]any) (*engine.Result, error) {
	rows, err := h.conn.QueryContext(ctx, statement, namedArgs(params)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := &engine.Result{Columns: columns, Rows: []map[string]any{}}
	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, rows.Err()
}

func (h *handle) Exec(ctx context.Context, statement string, params map[string]any) error {
	_, err := h.conn.ExecContext(ctx, statement, namedArgs(params)...)
	return err
}

func (h *handle) Ping(ctx context.Context) error {
	var result int
	if err := h.conn.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return err
	}
	if result != 1 {
		return fmt.Errorf("unexpected ping result: %d", result)
	}
	return nil
}

func (h *handle) Checkpoint(ctx context.Context) error {
	return h.Exec(ctx, "CHECKPOINT", nil)
}

func (h *handle) Close() error {
	return h.conn.Close()
}
