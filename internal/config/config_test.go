package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoboFinSystems/robosystems-sub012/internal/backend"
	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "kuzu", cfg.Backend.Type)
	assert.Equal(t, 3, cfg.Pool.MaxConnectionsPerDB)
	assert.Equal(t, 30, cfg.Pool.ConnectionTTLMinutes)
	assert.Equal(t, 5, cfg.Pool.CleanupIntervalMinutes)
	assert.Equal(t, 5*time.Second, cfg.Pool.HealthCheckTimeout)
	assert.Contains(t, cfg.Pool.BasePath, ".graph-api")
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Tracing.Enabled)
	assert.False(t, cfg.Metrics.Enabled)

	require.NoError(t, NewValidator().Validate(cfg))
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
backend:
  type: duckdb
pool:
  base_path: /var/lib/graphs
  max_connections_per_db: 5
  connection_ttl_minutes: 10
  health_check_timeout: 2s
duckdb:
  base_path: /var/lib/staging
  memory_limit: 2GB
  settings:
    preserve_insertion_order: "false"
logging:
  level: debug
  format: text
`)

	cfg, err := NewConfigLoader(NewValidator()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, "duckdb", cfg.Backend.Type)
	assert.Equal(t, "/var/lib/graphs", cfg.Pool.BasePath)
	assert.Equal(t, 5, cfg.Pool.MaxConnectionsPerDB)
	assert.Equal(t, 10, cfg.Pool.ConnectionTTLMinutes)
	assert.Equal(t, 2*time.Second, cfg.Pool.HealthCheckTimeout)
	assert.Equal(t, 5, cfg.Pool.CleanupIntervalMinutes, "unset keys keep defaults")
	assert.Equal(t, "2GB", cfg.DuckDB.MemoryLimit)
	assert.Equal(t, "false", cfg.DuckDB.Settings["preserve_insertion_order"])
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadInterpolatesEnvVars(t *testing.T) {
	t.Setenv("TEST_GRAPH_DATA", "/mnt/data")
	t.Setenv("TEST_NEO4J_PASSWORD", "s3cret")

	path := writeConfig(t, `
pool:
  base_path: ${TEST_GRAPH_DATA}/kuzu
neo4j:
  password: ${TEST_NEO4J_PASSWORD}
  username: ${TEST_UNSET_VARIABLE}
`)

	cfg, err := NewConfigLoader(NewValidator()).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/data/kuzu", cfg.Pool.BasePath)
	assert.Equal(t, "s3cret", cfg.Neo4j.Password)
	assert.Equal(t, "${TEST_UNSET_VARIABLE}", cfg.Neo4j.Username)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GRAPH_API_POOL_MAX_CONNECTIONS_PER_DB", "7")
	t.Setenv("GRAPH_API_BACKEND_TYPE", "neo4j")

	path := writeConfig(t, `
pool:
  max_connections_per_db: 2
`)

	cfg, err := NewConfigLoader(NewValidator()).Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pool.MaxConnectionsPerDB)
	assert.Equal(t, "neo4j", cfg.Backend.Type)
}

func TestLoadWithDefaultsMissingFile(t *testing.T) {
	t.Setenv("GRAPH_API_POOL_CONNECTION_TTL_MINUTES", "45")

	cfg, err := NewConfigLoader(NewValidator()).LoadWithDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.Pool.ConnectionTTLMinutes)
	assert.Equal(t, "kuzu", cfg.Backend.Type)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode types.ErrorCode
		wantMsg  string
	}{
		{
			name:     "malformed yaml",
			content:  "pool: [unterminated",
			wantCode: types.CONFIG_LOAD_FAILED,
		},
		{
			name:     "unknown backend",
			content:  "backend:\n  type: sqlite\n",
			wantCode: types.CONFIG_VALIDATION_FAILED,
			wantMsg:  "backend.type must be one of",
		},
		{
			name:     "zero pool size",
			content:  "pool:\n  max_connections_per_db: 0\n",
			wantCode: types.CONFIG_VALIDATION_FAILED,
			wantMsg:  "pool.max_connections_per_db must be at least 1",
		},
		{
			name:     "bad log level",
			content:  "logging:\n  level: verbose\n",
			wantCode: types.CONFIG_VALIDATION_FAILED,
			wantMsg:  "logging.level",
		},
		{
			name:     "burst without rate",
			content:  "admission:\n  burst: 5\n",
			wantCode: types.CONFIG_VALIDATION_FAILED,
			wantMsg:  "admission.burst",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfigLoader(NewValidator()).Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.CodeOf(err))
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	err := NewValidator().Validate(nil)
	assert.Equal(t, types.CONFIG_VALIDATION_FAILED, types.CodeOf(err))
}

func TestCamelToSnake(t *testing.T) {
	tests := map[string]string{
		"MaxConnectionsPerDB": "max_connections_per_db",
		"BufferPoolSizeMB":    "buffer_pool_size_mb",
		"Level":               "level",
		"HealthCheckTimeout":  "health_check_timeout",
	}
	for in, want := range tests {
		assert.Equal(t, want, camelToSnake(in), in)
	}
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pool.BasePath = "/graphs"
	cfg.DuckDB.BasePath = "/staging"
	cfg.Kuzu.BufferPoolSizeMB = 512
	cfg.Admission.RequestsPerMinute = 600

	kuzuPool := cfg.PoolConfig(backend.TypeKuzu)
	assert.Equal(t, "/graphs", kuzuPool.BasePath)
	assert.Equal(t, 30*time.Minute, kuzuPool.ConnectionTTL)
	assert.Equal(t, 5*time.Minute, kuzuPool.CleanupInterval)
	require.NoError(t, kuzuPool.Validate())

	assert.Equal(t, "/staging", cfg.PoolConfig(backend.TypeDuckDB).BasePath)

	bc := cfg.BackendConfig("")
	assert.Equal(t, backend.TypeKuzu, bc.Type)
	assert.Equal(t, uint64(512*1024*1024), bc.Kuzu.BufferPoolSize)
	assert.Equal(t, "bolt://localhost:7687", bc.Neo4j.URI)

	ac := cfg.AdmissionConfig()
	assert.Equal(t, 600, ac.RequestsPerWindow)
	assert.Equal(t, time.Minute, ac.Window)
}
