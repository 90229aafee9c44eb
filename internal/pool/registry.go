package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

// Process-wide pools, one per engine. Request handlers share the same
// bounded set of handles, so each pool is registered exactly once at startup
// and looked up afterwards.
var registry = struct {
	sync.Mutex
	pools map[string]*Pool
}{pools: make(map[string]*Pool)}

// Initialize registers p under its engine name. Registering a second pool for
// the same engine fails.
func Initialize(p *Pool) error {
	registry.Lock()
	defer registry.Unlock()

	if _, ok := registry.pools[p.Name()]; ok {
		return types.NewError(types.POOL_ALREADY_INITIALIZED,
			fmt.Sprintf("%s connection pool already initialized", p.Name()))
	}
	registry.pools[p.Name()] = p
	return nil
}

// Get returns the pool registered for engine. Calling Get before Initialize
// is a configuration error.
func Get(engine string) (*Pool, error) {
	registry.Lock()
	defer registry.Unlock()

	p, ok := registry.pools[engine]
	if !ok {
		return nil, types.NewError(types.POOL_NOT_INITIALIZED,
			fmt.Sprintf("%s connection pool not initialized", engine))
	}
	return p, nil
}

// MustGet is like Get but panics when the pool was never initialized.
func MustGet(engine string) *Pool {
	p, err := Get(engine)
	if err != nil {
		panic(err)
	}
	return p
}

// Shutdown closes and unregisters every pool.
func Shutdown(ctx context.Context) error {
	registry.Lock()
	pools := registry.pools
	registry.pools = make(map[string]*Pool)
	registry.Unlock()

	var errs []error
	for _, p := range pools {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
