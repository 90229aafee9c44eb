package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()

	return &Config{
		Backend: BackendConfig{
			Type: "kuzu",
		},
		Pool: PoolConfig{
			BasePath:               filepath.Join(dataDir, "kuzu-dbs"),
			MaxConnectionsPerDB:    3,
			ConnectionTTLMinutes:   30,
			CleanupIntervalMinutes: 5,
			HealthCheckIdleMinutes: 5,
			HealthCheckTimeout:     5 * time.Second,
			BackgroundMaintenance:  false,
		},
		Kuzu: KuzuConfig{
			BufferPoolSizeMB: 0,
			MaxThreads:       0,
			QueryTimeout:     5 * time.Minute,
		},
		DuckDB: DuckDBConfig{
			BasePath: filepath.Join(dataDir, "staging"),
			Threads:  0,
		},
		Neo4j: Neo4jConfig{
			URI:                     "bolt://localhost:7687",
			Username:                "neo4j",
			Database:                "neo4j",
			MaxConnections:          50,
			ConnectionTimeout:       30 * time.Second,
			MaxTransactionRetryTime: 30 * time.Second,
			ConnectRetries:          5,
		},
		Admission: AdmissionConfig{
			MaxConcurrentIngestions: 4,
			QueueTimeout:            30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "graph-api",
			SampleRate:  1.0,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
	}
}

// DefaultDataDir returns the default data directory, ~/.graph-api, or a
// directory under the system temp dir when the home directory is unknown.
func DefaultDataDir() string {
	userHome, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".graph-api")
	}
	return filepath.Join(userHome, ".graph-api")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}
