package pool

import (
	"time"

	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

// Config contains the pool's sizing and lifecycle settings.
type Config struct {
	// BasePath is the directory holding one database per tenant.
	BasePath string

	// MaxConnectionsPerDB bounds live handles per tenant graph.
	MaxConnectionsPerDB int

	// ConnectionTTL is the maximum age after which a handle is no longer reused.
	ConnectionTTL time.Duration

	// CleanupInterval is the minimum spacing between maintenance passes.
	CleanupInterval time.Duration

	// HealthCheckIdle is how long a handle may sit unused before maintenance
	// probes it again.
	HealthCheckIdle time.Duration

	// HealthCheckTimeout bounds a single health probe.
	HealthCheckTimeout time.Duration

	// BackgroundMaintenance runs maintenance on a ticker in addition to the
	// access-triggered passes.
	BackgroundMaintenance bool
}

// DefaultConfig returns a Config with sensible defaults rooted at basePath.
func DefaultConfig(basePath string) Config {
	return Config{
		BasePath:            basePath,
		MaxConnectionsPerDB: 3,
		ConnectionTTL:       30 * time.Minute,
		CleanupInterval:     5 * time.Minute,
		HealthCheckIdle:     5 * time.Minute,
		HealthCheckTimeout:  5 * time.Second,
	}
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.BasePath == "" {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "pool base path cannot be empty")
	}
	if c.MaxConnectionsPerDB < 1 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "max connections per database must be at least 1")
	}
	if c.ConnectionTTL <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "connection TTL must be positive")
	}
	if c.CleanupInterval <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "cleanup interval must be positive")
	}
	if c.HealthCheckIdle <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "health check idle must be positive")
	}
	if c.HealthCheckTimeout <= 0 {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "health check timeout must be positive")
	}
	return nil
}
