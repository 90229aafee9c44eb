package pool

import "time"

// DatabaseStats describes one tenant's handles.
type DatabaseStats struct {
	Connections int `json:"connections"`
	Healthy     int `json:"healthy"`
	Borrowed    int `json:"borrowed"`
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	Engine              string                   `json:"engine"`
	MaxConnectionsPerDB int                      `json:"max_connections_per_db"`
	ConnectionTTL       time.Duration            `json:"connection_ttl"`
	TotalConnections    int                      `json:"total_connections"`
	Databases           map[string]DatabaseStats `json:"databases"`

	ConnectionsCreated int64 `json:"connections_created"`
	ConnectionsReused  int64 `json:"connections_reused"`
	ConnectionsClosed  int64 `json:"connections_closed"`
	HealthChecks       int64 `json:"health_checks"`
	HealthFailures     int64 `json:"health_failures"`
	DatabasesCleaned   int64 `json:"databases_cleaned"`
	Evictions          int64 `json:"evictions"`
}

// GetStats returns a best-effort snapshot built from each tenant's last
// published record list. No tenant lock is taken, so the result can trail a
// concurrent Acquire slightly. Tenants without handles are omitted.
func (p *Pool) GetStats() Stats {
	p.mu.RLock()
	tenants := make(map[string]*tenantPool, len(p.tenants))
	for id, tp := range p.tenants {
		tenants[id] = tp
	}
	p.mu.RUnlock()

	stats := Stats{
		Engine:              p.driver.Name(),
		MaxConnectionsPerDB: p.config.MaxConnectionsPerDB,
		ConnectionTTL:       p.config.ConnectionTTL,
		Databases:           make(map[string]DatabaseStats),
		ConnectionsCreated:  p.counters.created.Load(),
		ConnectionsReused:   p.counters.reused.Load(),
		ConnectionsClosed:   p.counters.closed.Load(),
		HealthChecks:        p.counters.healthChecks.Load(),
		HealthFailures:      p.counters.healthFailures.Load(),
		DatabasesCleaned:    p.counters.databasesCleaned.Load(),
		Evictions:           p.counters.evictions.Load(),
	}

	for id, tp := range tenants {
		snap := tp.snapshot.Load()
		if snap == nil || len(*snap) == 0 {
			continue
		}
		var ds DatabaseStats
		for _, info := range *snap {
			ds.Connections++
			if info.IsHealthy() {
				ds.Healthy++
			}
			if info.IsBorrowed() {
				ds.Borrowed++
			}
		}
		stats.Databases[id] = ds
		stats.TotalConnections += ds.Connections
	}
	return stats
}
