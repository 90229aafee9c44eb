package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
	"golang.org/x/sync/errgroup"
)

// HealthChecker is implemented by anything that can report its health.
type HealthChecker interface {
	Health(ctx context.Context) types.HealthStatus
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) types.HealthStatus

// Health calls f.
func (f HealthCheckFunc) Health(ctx context.Context) types.HealthStatus {
	return f(ctx)
}

type componentState struct {
	checker       HealthChecker
	lastStatus    types.HealthStatus
	lastCheckedAt time.Time
}

// HealthMonitor aggregates component health and logs state transitions.
// It is safe for concurrent use.
type HealthMonitor struct {
	logger     *slog.Logger
	components map[string]*componentState
	mu         sync.RWMutex
}

// NewHealthMonitor creates an empty monitor.
func NewHealthMonitor(logger *slog.Logger) *HealthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthMonitor{
		logger:     logger,
		components: make(map[string]*componentState),
	}
}

// Register adds or replaces a component.
func (h *HealthMonitor) Register(name string, checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.components[name] = &componentState{
		checker:    checker,
		lastStatus: types.NewHealthStatus(types.HealthStateUnhealthy, "not yet checked"),
	}
}

// Unregister removes a component.
func (h *HealthMonitor) Unregister(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.components, name)
}

// Names returns the registered component names in sorted order.
func (h *HealthMonitor) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.components))
	for name := range h.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs the health check of a single component.
func (h *HealthMonitor) Check(ctx context.Context, name string) (types.HealthStatus, error) {
	h.mu.RLock()
	state, exists := h.components[name]
	h.mu.RUnlock()

	if !exists {
		return types.HealthStatus{}, fmt.Errorf("component %q is not registered", name)
	}

	status := state.checker.Health(ctx)
	h.updateComponentState(ctx, name, state, status)
	return status, nil
}

// CheckAll runs every component check concurrently.
func (h *HealthMonitor) CheckAll(ctx context.Context) map[string]types.HealthStatus {
	h.mu.RLock()
	snapshot := make(map[string]*componentState, len(h.components))
	for name, state := range h.components {
		snapshot[name] = state
	}
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]types.HealthStatus, len(snapshot))
		g       errgroup.Group
	)
	for name, state := range snapshot {
		name, state := name, state
		g.Go(func() error {
			status := state.checker.Health(ctx)
			h.updateComponentState(ctx, name, state, status)

			mu.Lock()
			results[name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Overall folds component results into a single status: the worst state
// wins.
func Overall(results map[string]types.HealthStatus) types.HealthStatus {
	if len(results) == 0 {
		return types.Unhealthy("no components registered")
	}

	worst := types.HealthStateHealthy
	details := make(map[string]any, len(results))
	for name, status := range results {
		details[name] = string(status.State)
		worst = worst.Worse(status.State)
	}

	overall := types.NewHealthStatus(worst, fmt.Sprintf("%d components checked", len(results)))
	overall.Details = details
	return overall
}

// StartPeriodicCheck checks all components every interval until ctx is done.
func (h *HealthMonitor) StartPeriodicCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}

func (h *HealthMonitor) updateComponentState(ctx context.Context, name string, state *componentState, newStatus types.HealthStatus) {
	h.mu.Lock()
	previous := state.lastStatus.State
	checkedBefore := !state.lastCheckedAt.IsZero()
	state.lastStatus = newStatus
	state.lastCheckedAt = time.Now()
	h.mu.Unlock()

	if previous == newStatus.State && checkedBefore {
		return
	}

	args := []any{
		"component", name,
		"previous_state", string(previous),
		"current_state", string(newStatus.State),
		"message", newStatus.Message,
	}

	switch {
	case previous == types.HealthStateHealthy && newStatus.State != types.HealthStateHealthy:
		h.logger.ErrorContext(ctx, "component health degraded", args...)
	case newStatus.State == types.HealthStateHealthy:
		h.logger.InfoContext(ctx, "component health recovered", args...)
	default:
		h.logger.WarnContext(ctx, "component health state changed", args...)
	}
}
