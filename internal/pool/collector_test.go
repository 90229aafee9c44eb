package pool

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ExportsStats(t *testing.T) {
	p, _ := newTestPool(t, testConfig(t))
	ctx := context.Background()

	require.NoError(t, p.WithConnection(ctx, "g1", func(*Lease) error { return nil }))
	require.NoError(t, p.WithConnection(ctx, "g1", func(*Lease) error { return nil }))
	require.NoError(t, p.WithConnection(ctx, "g2", func(*Lease) error { return nil }))

	collector := NewCollector(p)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(collector))

	// 3 gauges for each of 2 graphs plus 7 counters.
	assert.Equal(t, 13, testutil.CollectAndCount(collector))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				values[mf.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), values["graphapi_pool_connections_created_total"])
	assert.Equal(t, float64(1), values["graphapi_pool_connections_reused_total"])
}
