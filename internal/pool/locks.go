package pool

import "sync"

// LockRegistry maps tenant graph ids to dedicated mutexes. Entries are created
// on first use under a single global mutex and are never removed, so two
// callers can never end up holding different locks for the same tenant.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

// Get returns the tenant's mutex, creating it if absent.
func (r *LockRegistry) Get(graphID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[graphID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[graphID] = lock
	}
	return lock
}

// Len returns the number of tenants that have a lock.
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
