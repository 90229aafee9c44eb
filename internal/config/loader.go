package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

// EnvPrefix prefixes environment overrides: pool.max_connections_per_db is
// read from GRAPH_API_POOL_MAX_CONNECTIONS_PER_DB.
const EnvPrefix = "GRAPH_API"

// ConfigLoader handles loading configuration from files.
type ConfigLoader interface {
	Load(path string) (*Config, error)
	LoadWithDefaults(path string) (*Config, error)
}

// viperConfigLoader implements ConfigLoader using Viper.
type viperConfigLoader struct {
	validator ConfigValidator
}

// NewConfigLoader creates a new ConfigLoader instance.
func NewConfigLoader(validator ConfigValidator) ConfigLoader {
	return &viperConfigLoader{
		validator: validator,
	}
}

// Load reads the YAML file at path over the defaults, applies ${VAR}
// interpolation and GRAPH_API_* overrides, then validates the result.
func (l *viperConfigLoader) Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to read config file", err)
	}
	return l.finish(v)
}

// LoadWithDefaults is like Load but falls back to the defaults, still
// subject to environment overrides, when no file exists at path.
func (l *viperConfigLoader) LoadWithDefaults(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return l.Load(path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to stat config file", err)
		}
	}
	return l.finish(newViper())
}

func (l *viperConfigLoader) finish(v *viper.Viper) (*Config, error) {
	for _, key := range v.AllKeys() {
		if s, ok := v.Get(key).(string); ok && strings.Contains(s, "${") {
			v.Set(key, interpolateString(s))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to unmarshal config", err)
	}

	if err := l.validator.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newViper returns a viper instance seeded with every default, so that
// environment overrides apply to keys absent from the file.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	defaults := map[string]any{
		"backend.type": d.Backend.Type,

		"pool.base_path":                 d.Pool.BasePath,
		"pool.max_connections_per_db":    d.Pool.MaxConnectionsPerDB,
		"pool.connection_ttl_minutes":    d.Pool.ConnectionTTLMinutes,
		"pool.cleanup_interval_minutes":  d.Pool.CleanupIntervalMinutes,
		"pool.health_check_idle_minutes": d.Pool.HealthCheckIdleMinutes,
		"pool.health_check_timeout":      d.Pool.HealthCheckTimeout,
		"pool.background_maintenance":    d.Pool.BackgroundMaintenance,

		"kuzu.buffer_pool_size_mb": d.Kuzu.BufferPoolSizeMB,
		"kuzu.max_threads":         d.Kuzu.MaxThreads,
		"kuzu.query_timeout":       d.Kuzu.QueryTimeout,
		"kuzu.extensions":          d.Kuzu.Extensions,
		"kuzu.read_only":           d.Kuzu.ReadOnly,

		"duckdb.base_path":    d.DuckDB.BasePath,
		"duckdb.threads":      d.DuckDB.Threads,
		"duckdb.memory_limit": d.DuckDB.MemoryLimit,
		"duckdb.extensions":   d.DuckDB.Extensions,

		"neo4j.uri":                        d.Neo4j.URI,
		"neo4j.username":                   d.Neo4j.Username,
		"neo4j.password":                   d.Neo4j.Password,
		"neo4j.database":                   d.Neo4j.Database,
		"neo4j.max_connections":            d.Neo4j.MaxConnections,
		"neo4j.connection_timeout":         d.Neo4j.ConnectionTimeout,
		"neo4j.max_transaction_retry_time": d.Neo4j.MaxTransactionRetryTime,
		"neo4j.connect_retries":            d.Neo4j.ConnectRetries,

		"admission.max_concurrent_ingestions": d.Admission.MaxConcurrentIngestions,
		"admission.queue_timeout":             d.Admission.QueueTimeout,
		"admission.requests_per_minute":       d.Admission.RequestsPerMinute,
		"admission.burst":                     d.Admission.Burst,
		"admission.max_payload_bytes":         d.Admission.MaxPayloadBytes,
		"admission.max_query_bytes":           d.Admission.MaxQueryBytes,

		"logging.level":  d.Logging.Level,
		"logging.format": d.Logging.Format,

		"tracing.enabled":      d.Tracing.Enabled,
		"tracing.service_name": d.Tracing.ServiceName,
		"tracing.sample_rate":  d.Tracing.SampleRate,
		"tracing.endpoint":     d.Tracing.Endpoint,
		"tracing.insecure":     d.Tracing.Insecure,

		"metrics.enabled": d.Metrics.Enabled,
		"metrics.address": d.Metrics.Address,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateString replaces ${VAR_NAME} with environment variable values.
// Unset variables are left as written.
func interpolateString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if envValue := os.Getenv(varName); envValue != "" {
			return envValue
		}
		return match
	})
}

// Load is a convenience wrapper around NewConfigLoader(NewValidator()).
func Load(path string) (*Config, error) {
	cfg, err := NewConfigLoader(NewValidator()).LoadWithDefaults(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}
