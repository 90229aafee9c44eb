package backend

import (
	"context"
	"fmt"
	"os"

	"github.com/RoboFinSystems/robosystems-sub012/internal/engine"
	"github.com/RoboFinSystems/robosystems-sub012/internal/engine/duckdb"
	"github.com/RoboFinSystems/robosystems-sub012/internal/engine/kuzu"
	"github.com/RoboFinSystems/robosystems-sub012/internal/pool"
	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

// Config selects and configures a backend.
type Config struct {
	Type Type

	// Pool configures the connection pool of embedded engines.
	Pool pool.Config

	Kuzu   kuzu.Config
	DuckDB duckdb.Config
	Neo4j  Neo4jConfig
}

// New builds the backend selected by cfg.Type. Embedded engines share the
// process-wide pool for their engine: it is created and registered on first
// use and reused afterwards. A tracer set with WithTracer wraps the result in
// a TracedBackend.
func New(ctx context.Context, cfg Config, opts ...Option) (Backend, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var b Backend
	switch cfg.Type {
	case TypeKuzu:
		p, err := sharedPool(cfg.Pool, kuzu.NewDriver(cfg.Kuzu), o)
		if err != nil {
			return nil, err
		}
		b = NewKuzuBackend(p, opts...)
	case TypeDuckDB:
		p, err := sharedPool(cfg.Pool, duckdb.NewDriver(cfg.DuckDB), o)
		if err != nil {
			return nil, err
		}
		b = NewDuckDBBackend(p, opts...)
	case TypeNeo4j:
		nb, err := NewNeo4jBackend(cfg.Neo4j, opts...)
		if err != nil {
			return nil, err
		}
		b = nb
	default:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unknown backend type %q", cfg.Type))
	}

	if o.tracer != nil {
		b = NewTracedBackend(b, o.tracer)
	}
	return b, nil
}

// NewWithPool builds an embedded backend over an existing pool.
func NewWithPool(typ Type, p *pool.Pool, opts ...Option) (Backend, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var b Backend
	switch typ {
	case TypeKuzu:
		b = NewKuzuBackend(p, opts...)
	case TypeDuckDB:
		b = NewDuckDBBackend(p, opts...)
	default:
		return nil, types.NewError(types.UNSUPPORTED_OPERATION,
			fmt.Sprintf("backend %q is not pool-backed", typ))
	}
	if o.tracer != nil {
		b = NewTracedBackend(b, o.tracer)
	}
	return b, nil
}

func sharedPool(cfg pool.Config, driver engine.Driver, o options) (*pool.Pool, error) {
	if p, err := pool.Get(driver.Name()); err == nil {
		return p, nil
	}

	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, types.WrapError(types.CONFIG_VALIDATION_FAILED,
			"failed to create database directory "+cfg.BasePath, err)
	}
	p, err := pool.New(cfg, driver, pool.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	if err := pool.Initialize(p); err != nil {
		// Lost a registration race; use the winner.
		_ = p.Close(context.Background())
		return pool.Get(driver.Name())
	}
	return p, nil
}
