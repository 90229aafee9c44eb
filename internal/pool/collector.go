package pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a pool's GetStats snapshot to Prometheus.
type Collector struct {
	pool *Pool

	connections      *prometheus.Desc
	healthy          *prometheus.Desc
	borrowed         *prometheus.Desc
	created          *prometheus.Desc
	reused           *prometheus.Desc
	closed           *prometheus.Desc
	healthChecks     *prometheus.Desc
	healthFailures   *prometheus.Desc
	databasesCleaned *prometheus.Desc
	evictions        *prometheus.Desc
}

// NewCollector creates a collector for p. Register it with a
// prometheus.Registerer.
func NewCollector(p *Pool) *Collector {
	constLabels := prometheus.Labels{"engine": p.Name()}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("graphapi", "pool", name), help, labels, constLabels)
	}

	return &Collector{
		pool:             p,
		connections:      desc("connections", "Live handles per graph.", "graph_id"),
		healthy:          desc("healthy_connections", "Healthy handles per graph.", "graph_id"),
		borrowed:         desc("borrowed_connections", "Handles currently leased per graph.", "graph_id"),
		created:          desc("connections_created_total", "Handles created."),
		reused:           desc("connections_reused_total", "Acquisitions served by an existing handle."),
		closed:           desc("connections_closed_total", "Handles closed."),
		healthChecks:     desc("health_checks_total", "Health probes issued."),
		healthFailures:   desc("health_failures_total", "Health probes that failed."),
		databasesCleaned: desc("databases_cleaned_total", "Forced database cleanups."),
		evictions:        desc("evictions_total", "Capacity evictions."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.connections, c.healthy, c.borrowed, c.created, c.reused, c.closed,
		c.healthChecks, c.healthFailures, c.databasesCleaned, c.evictions,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.pool.GetStats()

	for graphID, ds := range stats.Databases {
		ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(ds.Connections), graphID)
		ch <- prometheus.MustNewConstMetric(c.healthy, prometheus.GaugeValue, float64(ds.Healthy), graphID)
		ch <- prometheus.MustNewConstMetric(c.borrowed, prometheus.GaugeValue, float64(ds.Borrowed), graphID)
	}

	ch <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(stats.ConnectionsCreated))
	ch <- prometheus.MustNewConstMetric(c.reused, prometheus.CounterValue, float64(stats.ConnectionsReused))
	ch <- prometheus.MustNewConstMetric(c.closed, prometheus.CounterValue, float64(stats.ConnectionsClosed))
	ch <- prometheus.MustNewConstMetric(c.healthChecks, prometheus.CounterValue, float64(stats.HealthChecks))
	ch <- prometheus.MustNewConstMetric(c.healthFailures, prometheus.CounterValue, float64(stats.HealthFailures))
	ch <- prometheus.MustNewConstMetric(c.databasesCleaned, prometheus.CounterValue, float64(stats.DatabasesCleaned))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(stats.Evictions))
}
