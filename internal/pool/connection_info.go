package pool

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RoboFinSystems/robosystems-sub012/internal/engine"
)

// ConnectionInfo is the pool's record for one live handle.
//
// CreatedAt, LastUsed and UseCount are written only under the tenant lock.
// The healthy, borrowed and closed flags are atomic so diagnostics can read
// them without taking that lock.
type ConnectionInfo struct {
	ID           string
	Handle       engine.Handle
	DatabasePath string
	CreatedAt    time.Time
	LastUsed     time.Time
	UseCount     int64

	healthy  atomic.Bool
	borrowed atomic.Bool
	// evicted records that the entry left the pool while borrowed; its
	// handle is closed when the lease is released.
	evicted atomic.Bool
	closed  atomic.Bool
}

func newConnectionInfo(handle engine.Handle, path string, now time.Time) *ConnectionInfo {
	info := &ConnectionInfo{
		ID:           uuid.NewString(),
		Handle:       handle,
		DatabasePath: path,
		CreatedAt:    now,
		LastUsed:     now,
	}
	info.healthy.Store(true)
	return info
}

// IsHealthy reports the result of the last health probe.
func (c *ConnectionInfo) IsHealthy() bool { return c.healthy.Load() }

// IsBorrowed reports whether a lease currently holds the handle.
func (c *ConnectionInfo) IsBorrowed() bool { return c.borrowed.Load() }

// IsClosed reports whether the native handle has been closed.
func (c *ConnectionInfo) IsClosed() bool { return c.closed.Load() }

// expired reports whether the handle is older than ttl.
func (c *ConnectionInfo) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.CreatedAt) >= ttl
}

// valid is the reuse predicate: within TTL, healthy, and still open.
func (c *ConnectionInfo) valid(now time.Time, ttl time.Duration) bool {
	return !c.expired(now, ttl) && c.IsHealthy() && !c.IsClosed()
}
