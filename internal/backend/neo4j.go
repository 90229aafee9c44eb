package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

// Neo4j status codes the backend maps to its own error codes.
const (
	neo4jCodeDatabaseExists   = "Neo.ClientError.Database.ExistingDatabaseFound"
	neo4jCodeDatabaseNotFound = "Neo.ClientError.Database.DatabaseNotFound"
	neo4jCodeUnsupportedAdmin = "Neo.ClientError.Statement.UnsupportedAdministrationCommand"
)

const systemDatabase = "system"

// Neo4jConfig configures the connection to an external Neo4j deployment.
type Neo4jConfig struct {
	// URI is the bolt or neo4j URI. The scheme controls encryption
	// (bolt+s://, neo4j+s://).
	URI      string
	Username string
	Password string

	// Database is the default database used for health checks.
	Database string

	MaxConnectionPoolSize   int
	ConnectionTimeout       time.Duration
	MaxTransactionRetryTime time.Duration

	// ConnectRetries bounds connection attempts with exponential backoff.
	ConnectRetries int
}

// Credentials are the username and password used to authenticate.
type Credentials struct {
	Username string
	Password string
}

// CredentialsProvider supplies credentials when the driver is created, e.g.
// from a secrets manager.
type CredentialsProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// CredentialsFunc adapts a function to CredentialsProvider.
type CredentialsFunc func(ctx context.Context) (Credentials, error)

// Credentials calls f.
func (f CredentialsFunc) Credentials(ctx context.Context) (Credentials, error) { return f(ctx) }

// Neo4jBackend serves tenant graphs as databases of an external Neo4j
// deployment. The driver is created on first use and shared afterwards.
type Neo4jBackend struct {
	config Neo4jConfig
	opts   options

	mu     sync.Mutex
	driver neo4j.DriverWithContext
}

// NewNeo4jBackend creates a backend. No connection is made until the first
// operation.
func NewNeo4jBackend(config Neo4jConfig, opts ...Option) (*Neo4jBackend, error) {
	if config.URI == "" {
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED, "neo4j URI cannot be empty")
	}
	if config.Database == "" {
		config.Database = "neo4j"
	}
	if config.ConnectionTimeout <= 0 {
		config.ConnectionTimeout = 30 * time.Second
	}
	if config.ConnectRetries <= 0 {
		config.ConnectRetries = 5
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With(slog.String("backend", string(TypeNeo4j)))

	return &Neo4jBackend{config: config, opts: o}, nil
}

func (b *Neo4jBackend) sealed() {}

// Type returns TypeNeo4j.
func (b *Neo4jBackend) Type() Type { return TypeNeo4j }

// DatabaseName maps a tenant id to a Neo4j database name. Neo4j names are
// case-insensitive, may not contain underscores and must start with a
// letter.
func DatabaseName(graphID string) string {
	name := strings.ToLower(strings.ReplaceAll(graphID, "_", "-"))
	if name == "" || name[0] < 'a' || name[0] > 'z' {
		name = "g-" + name
	}
	return name
}

// getDriver returns the shared driver, connecting with exponential backoff
// on first use.
func (b *Neo4jBackend) getDriver(ctx context.Context) (neo4j.DriverWithContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.driver != nil {
		return b.driver, nil
	}

	creds := Credentials{Username: b.config.Username, Password: b.config.Password}
	if b.opts.creds != nil {
		var err error
		if creds, err = b.opts.creds.Credentials(ctx); err != nil {
			return nil, types.WrapError(types.CONNECTION_FAILED, "failed to obtain neo4j credentials", err)
		}
	}
	auth := neo4j.BasicAuth(creds.Username, creds.Password, "")

	driverConfig := func(config *neo4j.Config) {
		if b.config.MaxConnectionPoolSize > 0 {
			config.MaxConnectionPoolSize = b.config.MaxConnectionPoolSize
		}
		config.ConnectionAcquisitionTimeout = b.config.ConnectionTimeout
		if b.config.MaxTransactionRetryTime > 0 {
			config.MaxTransactionRetryTime = b.config.MaxTransactionRetryTime
		}
	}

	var lastErr error
	baseDelay := 100 * time.Millisecond
	for attempt := 0; attempt < b.config.ConnectRetries; attempt++ {
		driver, err := neo4j.NewDriverWithContext(b.config.URI, auth, driverConfig)
		if err == nil {
			if err = driver.VerifyConnectivity(ctx); err == nil {
				b.driver = driver
				b.opts.logger.Info("connected to neo4j",
					slog.String("uri", b.config.URI),
					slog.Int("attempts", attempt+1))
				return driver, nil
			}
			_ = driver.Close(ctx)
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, types.WrapRetryableError(types.CONNECTION_FAILED,
				"neo4j connection attempt cancelled", ctx.Err())
		}

		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > b.config.ConnectionTimeout {
			delay = b.config.ConnectionTimeout
		}
		b.opts.logger.Warn("neo4j connection attempt failed",
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, types.WrapRetryableError(types.CONNECTION_FAILED,
				"neo4j connection attempt cancelled", ctx.Err())
		}
	}

	return nil, types.WrapRetryableError(types.CONNECTION_FAILED,
		fmt.Sprintf("failed to connect to neo4j after %d attempts", b.config.ConnectRetries), lastErr)
}

// ExecuteQuery runs a read query in a managed read transaction.
func (b *Neo4jBackend) ExecuteQuery(ctx context.Context, graphID, query string, params map[string]any) (*QueryResult, error) {
	return b.run(ctx, graphID, "execute_query", query, params, neo4j.AccessModeRead)
}

// ExecuteWrite runs a statement in a managed write transaction.
func (b *Neo4jBackend) ExecuteWrite(ctx context.Context, graphID, query string, params map[string]any) (*QueryResult, error) {
	return b.run(ctx, graphID, "execute_write", query, params, neo4j.AccessModeWrite)
}

func (b *Neo4jBackend) run(ctx context.Context, graphID, op, query string, params map[string]any, mode neo4j.AccessMode) (*QueryResult, error) {
	if err := types.ValidateGraphID(graphID); err != nil {
		return nil, err
	}
	if err := b.opts.admission.CheckQuery(graphID, query); err != nil {
		return nil, err
	}
	driver, err := b.getDriver(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	session := driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: DatabaseName(graphID),
		AccessMode:   mode,
	})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return convertNeo4jResult(records, summary), nil
	}

	var out any
	if mode == neo4j.AccessModeWrite {
		out, err = session.ExecuteWrite(ctx, work)
	} else {
		out, err = session.ExecuteRead(ctx, work)
	}
	if err != nil {
		return nil, b.mapError(graphID, op, err)
	}

	result := out.(*QueryResult)
	result.Summary.ExecutionTime = time.Since(start)
	return result, nil
}

// admin runs an administration command on the system database in an
// auto-commit transaction.
func (b *Neo4jBackend) admin(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	driver, err := b.getDriver(ctx)
	if err != nil {
		return nil, err
	}
	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: systemDatabase})
	defer session.Close(ctx)

	res, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return res.Collect(ctx)
}

// CreateDatabase creates a database with CREATE DATABASE and applies the
// schema statements to it. Community edition cannot create databases and
// yields UNSUPPORTED_OPERATION.
func (b *Neo4jBackend) CreateDatabase(ctx context.Context, graphID string, schema []string) error {
	if err := types.ValidateGraphID(graphID); err != nil {
		return err
	}
	name := DatabaseName(graphID)

	if _, err := b.admin(ctx, "CREATE DATABASE $name WAIT", map[string]any{"name": name}); err != nil {
		return b.mapError(graphID, "create_database", err)
	}

	for _, stmt := range schema {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := b.ExecuteWrite(ctx, graphID, stmt, nil); err != nil {
			return err
		}
	}

	b.opts.logger.Info("database created",
		slog.String("graph_id", graphID),
		slog.String("database", name))
	return nil
}

// DeleteDatabase drops the tenant's database.
func (b *Neo4jBackend) DeleteDatabase(ctx context.Context, graphID string) error {
	if err := types.ValidateGraphID(graphID); err != nil {
		return err
	}
	name := DatabaseName(graphID)

	if _, err := b.admin(ctx, "DROP DATABASE $name WAIT", map[string]any{"name": name}); err != nil {
		return b.mapError(graphID, "delete_database", err)
	}
	b.opts.logger.Info("database deleted",
		slog.String("graph_id", graphID),
		slog.String("database", name))
	return nil
}

// ListDatabases returns every user database, excluding system.
func (b *Neo4jBackend) ListDatabases(ctx context.Context) ([]string, error) {
	records, err := b.admin(ctx, "SHOW DATABASES YIELD name RETURN DISTINCT name", nil)
	if err != nil {
		return nil, b.mapError("", "list_databases", err)
	}

	names := []string{}
	for _, r := range records {
		name, _ := r.Get("name")
		if s, ok := name.(string); ok && s != systemDatabase {
			names = append(names, s)
		}
	}
	sort.Strings(names)
	return names, nil
}

// GetDatabaseInfo reports the database status plus its labels and
// relationship types.
func (b *Neo4jBackend) GetDatabaseInfo(ctx context.Context, graphID string) (*DatabaseInfo, error) {
	if err := types.ValidateGraphID(graphID); err != nil {
		return nil, err
	}
	name := DatabaseName(graphID)

	records, err := b.admin(ctx, "SHOW DATABASE $name YIELD name, currentStatus", map[string]any{"name": name})
	if err != nil {
		return nil, b.mapError(graphID, "get_database_info", err)
	}
	if len(records) == 0 {
		return nil, types.NewError(types.DATABASE_NOT_FOUND, fmt.Sprintf("database %s does not exist", graphID))
	}
	status, _ := records[0].Get("currentStatus")

	info := &DatabaseInfo{GraphID: graphID, Backend: TypeNeo4j, Name: name}
	info.Status, _ = status.(string)

	labels, err := b.ExecuteQuery(ctx, graphID, "CALL db.labels() YIELD label RETURN label ORDER BY label", nil)
	if err != nil {
		return nil, err
	}
	for _, r := range labels.Records {
		if s, ok := r["label"].(string); ok {
			info.NodeTables = append(info.NodeTables, s)
		}
	}

	rels, err := b.ExecuteQuery(ctx, graphID,
		"CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType ORDER BY relationshipType", nil)
	if err != nil {
		return nil, err
	}
	for _, r := range rels.Records {
		if s, ok := r["relationshipType"].(string); ok {
			info.RelTables = append(info.RelTables, s)
		}
	}
	return info, nil
}

// GetClusterTopology reads dbms.cluster.overview(). Deployments without
// clustering report a single member built from the configured URI.
func (b *Neo4jBackend) GetClusterTopology(ctx context.Context) (*ClusterTopology, error) {
	driver, err := b.getDriver(ctx)
	if err != nil {
		return nil, err
	}
	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: systemDatabase})
	defer session.Close(ctx)

	records, err := func() ([]*neo4j.Record, error) {
		res, err := session.Run(ctx, "CALL dbms.cluster.overview() YIELD id, addresses, databases", nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	}()
	if err != nil || len(records) == 0 {
		if err != nil {
			b.opts.logger.Debug("cluster overview unavailable, assuming single node",
				slog.String("error", err.Error()))
		}
		return &ClusterTopology{
			Backend: TypeNeo4j,
			Mode:    ModeSingleNode,
			Members: []ClusterMember{{ID: b.config.URI, Addresses: []string{b.config.URI}, Role: "primary"}},
		}, nil
	}

	topology := &ClusterTopology{Backend: TypeNeo4j, Mode: ModeCluster}
	for _, r := range records {
		topology.Members = append(topology.Members, clusterMember(r))
	}
	return topology, nil
}

func clusterMember(r *neo4j.Record) ClusterMember {
	m := ClusterMember{Role: "member", Databases: map[string]string{}}
	if id, ok := r.Get("id"); ok {
		m.ID, _ = id.(string)
	}
	if addrs, ok := r.Get("addresses"); ok {
		if list, ok := addrs.([]any); ok {
			for _, a := range list {
				if s, ok := a.(string); ok {
					m.Addresses = append(m.Addresses, s)
				}
			}
		}
	}
	if dbs, ok := r.Get("databases"); ok {
		if roles, ok := dbs.(map[string]any); ok {
			for db, role := range roles {
				s, _ := role.(string)
				m.Databases[db] = s
				if db == systemDatabase && s != "" {
					m.Role = strings.ToLower(s)
				}
			}
		}
	}
	return m
}

// HealthCheck verifies connectivity within five seconds.
func (b *Neo4jBackend) HealthCheck(ctx context.Context) types.HealthStatus {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	driver, err := b.getDriver(healthCtx)
	if err != nil {
		return types.Unhealthy(fmt.Sprintf("driver unavailable: %v", err))
	}
	if err := driver.VerifyConnectivity(healthCtx); err != nil {
		return types.Unhealthy(fmt.Sprintf("connectivity check failed: %v", err))
	}
	return types.Healthy("connected to Neo4j").WithDetail("uri", b.config.URI)
}

// IngestFromSource loads CSV files with LOAD CSV WITH HEADERS, creating one
// node labelled src.Table per row. Other formats are not supported.
func (b *Neo4jBackend) IngestFromSource(ctx context.Context, graphID string, src IngestSource) (*IngestResult, error) {
	if err := types.ValidateGraphID(graphID); err != nil {
		return nil, err
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if src.Format != FormatCSV {
		return nil, types.NewError(types.UNSUPPORTED_OPERATION,
			fmt.Sprintf("neo4j ingestion supports csv only, got %s", src.Format))
	}
	release, err := b.opts.admission.AdmitIngestion(ctx, graphID, src.SizeBytes)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	result := &IngestResult{GraphID: graphID, Table: src.Table, Files: len(src.URIs)}
	stmt := fmt.Sprintf("LOAD CSV WITH HEADERS FROM $uri AS row CREATE (n:`%s`) SET n = row", src.Table)
	for _, uri := range src.URIs {
		res, err := b.ExecuteWrite(ctx, graphID, stmt, map[string]any{"uri": uri})
		if err != nil {
			return nil, err
		}
		result.RowsIngested += int64(res.Summary.NodesCreated)
	}
	result.Duration = time.Since(start)

	b.opts.logger.Info("ingestion complete",
		slog.String("graph_id", graphID),
		slog.String("label", src.Table),
		slog.Int64("rows", result.RowsIngested))
	return result, nil
}

// Close closes the driver if one was created.
func (b *Neo4jBackend) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.driver == nil {
		return nil
	}
	err := b.driver.Close(ctx)
	b.driver = nil
	if err != nil {
		return types.WrapError(types.ENGINE_OPERATION_FAILED, "failed to close neo4j driver", err)
	}
	return nil
}

// mapError translates Neo4j status codes and logs the failure.
func (b *Neo4jBackend) mapError(graphID, op string, err error) error {
	var graphErr *types.GraphError
	if errors.As(err, &graphErr) {
		return err
	}

	b.opts.logger.Error("engine operation failed",
		slog.String("graph_id", graphID),
		slog.String("operation", op),
		slog.String("error", err.Error()))
	return classifyNeo4jError(graphID, op, err)
}

func classifyNeo4jError(graphID, op string, err error) error {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		switch {
		case neoErr.Code == neo4jCodeDatabaseExists:
			return types.WrapError(types.DATABASE_EXISTS,
				fmt.Sprintf("database %s already exists", graphID), err)
		case neoErr.Code == neo4jCodeDatabaseNotFound:
			return types.WrapError(types.DATABASE_NOT_FOUND,
				fmt.Sprintf("database %s does not exist", graphID), err)
		case neoErr.Code == neo4jCodeUnsupportedAdmin,
			strings.Contains(strings.ToLower(neoErr.Msg), "unsupported administration command"):
			return types.WrapError(types.UNSUPPORTED_OPERATION,
				fmt.Sprintf("%s requires Neo4j Enterprise Edition", op), err)
		}
	}
	if neo4j.IsConnectivityError(err) {
		return types.WrapRetryableError(types.CONNECTION_FAILED,
			fmt.Sprintf("%s failed: neo4j unreachable", op), err)
	}
	return types.WrapError(types.ENGINE_OPERATION_FAILED, fmt.Sprintf("%s failed for %s", op, graphID), err)
}

func convertNeo4jResult(records []*neo4j.Record, summary neo4j.ResultSummary) *QueryResult {
	result := &QueryResult{
		Columns: []string{},
		Records: make([]map[string]any, 0, len(records)),
	}
	if len(records) > 0 {
		result.Columns = records[0].Keys
	}
	for _, record := range records {
		row := make(map[string]any, len(record.Keys))
		for i, key := range record.Keys {
			row[key] = record.Values[i]
		}
		result.Records = append(result.Records, row)
	}

	if summary != nil && summary.Counters() != nil {
		counters := summary.Counters()
		result.Summary = QuerySummary{
			NodesCreated:         counters.NodesCreated(),
			NodesDeleted:         counters.NodesDeleted(),
			RelationshipsCreated: counters.RelationshipsCreated(),
			RelationshipsDeleted: counters.RelationshipsDeleted(),
			PropertiesSet:        counters.PropertiesSet(),
		}
	}
	return result
}
