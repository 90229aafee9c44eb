package types

import "time"

// HealthState is the coarse state a backend, a pool or the whole service
// reports. Degraded means requests are still served but health probes or
// engine calls have started failing.
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateDegraded  HealthState = "degraded"
	HealthStateUnhealthy HealthState = "unhealthy"
)

// severity orders states from best to worst; unknown states rank as
// unhealthy.
func (s HealthState) severity() int {
	switch s {
	case HealthStateHealthy:
		return 0
	case HealthStateDegraded:
		return 1
	default:
		return 2
	}
}

// Worse returns whichever of s and other is less healthy. An unknown state
// comes back as HealthStateUnhealthy.
func (s HealthState) Worse(other HealthState) HealthState {
	worst := s
	if other.severity() > s.severity() {
		worst = other
	}
	if worst.severity() == 2 {
		return HealthStateUnhealthy
	}
	return worst
}

// HealthStatus is one health check result. Details carries engine facts
// such as the base path, open connections or the Neo4j URI.
type HealthStatus struct {
	State     HealthState    `json:"state"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
}

// NewHealthStatus stamps a result with the current time.
func NewHealthStatus(state HealthState, message string) HealthStatus {
	return HealthStatus{State: state, Message: message, CheckedAt: time.Now()}
}

func Healthy(message string) HealthStatus   { return NewHealthStatus(HealthStateHealthy, message) }
func Degraded(message string) HealthStatus  { return NewHealthStatus(HealthStateDegraded, message) }
func Unhealthy(message string) HealthStatus { return NewHealthStatus(HealthStateUnhealthy, message) }

// WithDetail returns a copy of h with key set; h itself is unchanged.
func (h HealthStatus) WithDetail(key string, value any) HealthStatus {
	details := make(map[string]any, len(h.Details)+1)
	for k, v := range h.Details {
		details[k] = v
	}
	details[key] = value
	h.Details = details
	return h
}

func (h HealthStatus) IsHealthy() bool   { return h.State == HealthStateHealthy }
func (h HealthStatus) IsUnhealthy() bool { return h.State == HealthStateUnhealthy }
