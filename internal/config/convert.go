package config

import (
	"time"

	"github.com/RoboFinSystems/robosystems-sub012/internal/admission"
	"github.com/RoboFinSystems/robosystems-sub012/internal/backend"
	"github.com/RoboFinSystems/robosystems-sub012/internal/engine/duckdb"
	"github.com/RoboFinSystems/robosystems-sub012/internal/engine/kuzu"
	"github.com/RoboFinSystems/robosystems-sub012/internal/pool"
)

// PoolConfig returns the pool settings for the given backend type. Kuzu
// databases live under pool.base_path, DuckDB staging files under
// duckdb.base_path; both share the remaining pool settings.
func (c *Config) PoolConfig(typ backend.Type) pool.Config {
	basePath := c.Pool.BasePath
	if typ == backend.TypeDuckDB {
		basePath = c.DuckDB.BasePath
	}
	return pool.Config{
		BasePath:              basePath,
		MaxConnectionsPerDB:   c.Pool.MaxConnectionsPerDB,
		ConnectionTTL:         time.Duration(c.Pool.ConnectionTTLMinutes) * time.Minute,
		CleanupInterval:       time.Duration(c.Pool.CleanupIntervalMinutes) * time.Minute,
		HealthCheckIdle:       time.Duration(c.Pool.HealthCheckIdleMinutes) * time.Minute,
		HealthCheckTimeout:    c.Pool.HealthCheckTimeout,
		BackgroundMaintenance: c.Pool.BackgroundMaintenance,
	}
}

// BackendConfig returns the factory settings for typ, or for backend.type
// when typ is empty.
func (c *Config) BackendConfig(typ backend.Type) backend.Config {
	if typ == "" {
		typ = backend.Type(c.Backend.Type)
	}
	return backend.Config{
		Type: typ,
		Pool: c.PoolConfig(typ),
		Kuzu: kuzu.Config{
			BufferPoolSize: c.Kuzu.BufferPoolSizeMB * 1024 * 1024,
			MaxThreads:     c.Kuzu.MaxThreads,
			QueryTimeout:   c.Kuzu.QueryTimeout,
			Extensions:     c.Kuzu.Extensions,
			ReadOnly:       c.Kuzu.ReadOnly,
		},
		DuckDB: duckdb.Config{
			Threads:     c.DuckDB.Threads,
			MemoryLimit: c.DuckDB.MemoryLimit,
			Extensions:  c.DuckDB.Extensions,
			Settings:    c.DuckDB.Settings,
		},
		Neo4j: backend.Neo4jConfig{
			URI:                     c.Neo4j.URI,
			Username:                c.Neo4j.Username,
			Password:                c.Neo4j.Password,
			Database:                c.Neo4j.Database,
			MaxConnectionPoolSize:   c.Neo4j.MaxConnections,
			ConnectionTimeout:       c.Neo4j.ConnectionTimeout,
			MaxTransactionRetryTime: c.Neo4j.MaxTransactionRetryTime,
			ConnectRetries:          c.Neo4j.ConnectRetries,
		},
	}
}

// AdmissionConfig returns the admission controller settings.
func (c *Config) AdmissionConfig() admission.Config {
	return admission.Config{
		MaxConcurrentIngestions: c.Admission.MaxConcurrentIngestions,
		QueueTimeout:            c.Admission.QueueTimeout,
		RequestsPerWindow:       c.Admission.RequestsPerMinute,
		Window:                  time.Minute,
		Burst:                   c.Admission.Burst,
		MaxPayloadBytes:         c.Admission.MaxPayloadBytes,
		MaxQueryBytes:           c.Admission.MaxQueryBytes,
	}
}
