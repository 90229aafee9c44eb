// Package admission guards the backends against overload: it bounds
// concurrent bulk ingestions, rate limits requests per tenant graph and caps
// payload and query sizes.
package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

// Config configures a Controller. Zero values disable the matching check.
type Config struct {
	// MaxConcurrentIngestions bounds ingestions running at once across all
	// tenants.
	MaxConcurrentIngestions int64

	// QueueTimeout bounds how long an ingestion waits for a free slot.
	QueueTimeout time.Duration

	// RequestsPerWindow and Window define each tenant's token bucket.
	RequestsPerWindow int
	Window            time.Duration
	Burst             int

	// MaxPayloadBytes caps the declared size of an ingestion source.
	MaxPayloadBytes int64

	// MaxQueryBytes caps the length of a query string.
	MaxQueryBytes int
}

// Controller applies a Config. A nil *Controller admits everything.
type Controller struct {
	config Config
	sem    *semaphore.Weighted

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// New creates a controller.
func New(config Config) *Controller {
	if config.Burst == 0 {
		config.Burst = config.RequestsPerWindow
	}
	c := &Controller{
		config:   config,
		limiters: make(map[string]*rate.Limiter),
	}
	if config.MaxConcurrentIngestions > 0 {
		c.sem = semaphore.NewWeighted(config.MaxConcurrentIngestions)
	}
	return c
}

// CheckQuery admits one query or write for graphID.
func (c *Controller) CheckQuery(graphID, query string) error {
	if c == nil {
		return nil
	}
	if c.config.MaxQueryBytes > 0 && len(query) > c.config.MaxQueryBytes {
		return types.NewError(types.PAYLOAD_TOO_LARGE,
			fmt.Sprintf("query of %d bytes exceeds limit of %d", len(query), c.config.MaxQueryBytes))
	}
	return c.allow(graphID)
}

// AdmitIngestion admits a bulk ingestion of sizeBytes into graphID, waiting
// up to QueueTimeout for a concurrency slot. The returned release func must be
// called when the ingestion finishes.
func (c *Controller) AdmitIngestion(ctx context.Context, graphID string, sizeBytes int64) (func(), error) {
	if c == nil {
		return func() {}, nil
	}
	if c.config.MaxPayloadBytes > 0 && sizeBytes > c.config.MaxPayloadBytes {
		return nil, types.NewError(types.PAYLOAD_TOO_LARGE,
			fmt.Sprintf("payload of %d bytes exceeds limit of %d", sizeBytes, c.config.MaxPayloadBytes))
	}
	if err := c.allow(graphID); err != nil {
		return nil, err
	}
	if c.sem == nil {
		return func() {}, nil
	}

	waitCtx := ctx
	if c.config.QueueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.config.QueueTimeout)
		defer cancel()
	}
	if err := c.sem.Acquire(waitCtx, 1); err != nil {
		return nil, types.WrapRetryableError(types.ADMISSION_REJECTED,
			fmt.Sprintf("no ingestion slot available (max %d concurrent)", c.config.MaxConcurrentIngestions), err)
	}

	var once sync.Once
	return func() { once.Do(func() { c.sem.Release(1) }) }, nil
}

func (c *Controller) allow(graphID string) error {
	if c.config.RequestsPerWindow <= 0 || c.config.Window <= 0 {
		return nil
	}
	limiter := c.limiter(graphID)
	if limiter.Allow() {
		return nil
	}

	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return types.NewRetryableError(types.ADMISSION_REJECTED,
		fmt.Sprintf("rate limit exceeded for %s: max %d requests per %s, retry after %s",
			graphID, c.config.RequestsPerWindow, c.config.Window, delay.Round(time.Millisecond)))
}

func (c *Controller) limiter(graphID string) *rate.Limiter {
	c.mu.RLock()
	limiter, ok := c.limiters[graphID]
	c.mu.RUnlock()
	if ok {
		return limiter
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if limiter, ok = c.limiters[graphID]; ok {
		return limiter
	}
	perSecond := float64(c.config.RequestsPerWindow) / c.config.Window.Seconds()
	limiter = rate.NewLimiter(rate.Limit(perSecond), c.config.Burst)
	c.limiters[graphID] = limiter
	return limiter
}
