package config

import (
	"time"
)

// Config is the root configuration for the graph API core.
type Config struct {
	Backend   BackendConfig   `mapstructure:"backend" yaml:"backend"`
	Pool      PoolConfig      `mapstructure:"pool" yaml:"pool"`
	Kuzu      KuzuConfig      `mapstructure:"kuzu" yaml:"kuzu"`
	DuckDB    DuckDBConfig    `mapstructure:"duckdb" yaml:"duckdb"`
	Neo4j     Neo4jConfig     `mapstructure:"neo4j" yaml:"neo4j"`
	Admission AdmissionConfig `mapstructure:"admission" yaml:"admission"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// BackendConfig selects the engine serving tenant graphs.
type BackendConfig struct {
	Type string `mapstructure:"type" yaml:"type" validate:"oneof=kuzu neo4j duckdb"`
}

// PoolConfig contains connection pool settings for the embedded engines.
type PoolConfig struct {
	// BasePath is the directory holding one Kuzu database per tenant.
	BasePath               string        `mapstructure:"base_path" yaml:"base_path" validate:"required"`
	MaxConnectionsPerDB    int           `mapstructure:"max_connections_per_db" yaml:"max_connections_per_db" validate:"min=1,max=100"`
	ConnectionTTLMinutes   int           `mapstructure:"connection_ttl_minutes" yaml:"connection_ttl_minutes" validate:"min=1"`
	CleanupIntervalMinutes int           `mapstructure:"cleanup_interval_minutes" yaml:"cleanup_interval_minutes" validate:"min=1"`
	HealthCheckIdleMinutes int           `mapstructure:"health_check_idle_minutes" yaml:"health_check_idle_minutes" validate:"min=1"`
	HealthCheckTimeout     time.Duration `mapstructure:"health_check_timeout" yaml:"health_check_timeout" validate:"min=100ms"`
	BackgroundMaintenance  bool          `mapstructure:"background_maintenance" yaml:"background_maintenance"`
}

// KuzuConfig contains per-database settings for embedded Kuzu.
type KuzuConfig struct {
	BufferPoolSizeMB uint64        `mapstructure:"buffer_pool_size_mb" yaml:"buffer_pool_size_mb"`
	MaxThreads       uint64        `mapstructure:"max_threads" yaml:"max_threads" validate:"max=256"`
	QueryTimeout     time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	Extensions       []string      `mapstructure:"extensions" yaml:"extensions"`
	ReadOnly         bool          `mapstructure:"read_only" yaml:"read_only"`
}

// DuckDBConfig contains settings for the DuckDB staging engine.
type DuckDBConfig struct {
	// BasePath is the directory holding one staging file per tenant.
	BasePath    string            `mapstructure:"base_path" yaml:"base_path" validate:"required"`
	Threads     int               `mapstructure:"threads" yaml:"threads" validate:"min=0,max=256"`
	MemoryLimit string            `mapstructure:"memory_limit" yaml:"memory_limit"`
	Extensions  []string          `mapstructure:"extensions" yaml:"extensions"`
	Settings    map[string]string `mapstructure:"settings" yaml:"settings"`
}

// Neo4jConfig contains Neo4j connection settings.
type Neo4jConfig struct {
	URI                     string        `mapstructure:"uri" yaml:"uri"`
	Username                string        `mapstructure:"username" yaml:"username"`
	Password                string        `mapstructure:"password" yaml:"password"`
	Database                string        `mapstructure:"database" yaml:"database"`
	MaxConnections          int           `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1,max=1000"`
	ConnectionTimeout       time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout" validate:"min=1s"`
	MaxTransactionRetryTime time.Duration `mapstructure:"max_transaction_retry_time" yaml:"max_transaction_retry_time"`
	ConnectRetries          int           `mapstructure:"connect_retries" yaml:"connect_retries" validate:"min=1,max=20"`
}

// AdmissionConfig bounds load on the backends. Zero disables a limit.
type AdmissionConfig struct {
	MaxConcurrentIngestions int64         `mapstructure:"max_concurrent_ingestions" yaml:"max_concurrent_ingestions" validate:"min=0"`
	QueueTimeout            time.Duration `mapstructure:"queue_timeout" yaml:"queue_timeout"`
	RequestsPerMinute       int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute" validate:"min=0"`
	Burst                   int           `mapstructure:"burst" yaml:"burst" validate:"min=0"`
	MaxPayloadBytes         int64         `mapstructure:"max_payload_bytes" yaml:"max_payload_bytes" validate:"min=0"`
	MaxQueryBytes           int           `mapstructure:"max_query_bytes" yaml:"max_query_bytes" validate:"min=0"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json text"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"min=0,max=1"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
}

// MetricsConfig contains metrics export configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}
