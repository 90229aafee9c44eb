package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoboFinSystems/robosystems-sub012/internal/engine/enginetest"
	"github.com/RoboFinSystems/robosystems-sub012/internal/observability"
	"github.com/RoboFinSystems/robosystems-sub012/internal/pool"
	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

func TestServeMux_MetricsExposePoolCollector(t *testing.T) {
	p, err := pool.New(pool.DefaultConfig(t.TempDir()), enginetest.NewDriver().WithName("kuzu", ".kuzu"))
	require.NoError(t, err)
	defer p.Close(context.Background())

	lease, err := p.Acquire(context.Background(), "kg1")
	require.NoError(t, err)
	lease.Release()

	reg := prometheus.NewRegistry()
	reg.MustRegister(pool.NewCollector(p))
	srv := httptest.NewServer(newServeMux(reg, observability.NewHealthMonitor(nil)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `graphapi_pool_connections_created_total{engine="kuzu"} 1`)
	assert.Contains(t, body, `graphapi_pool_connections{engine="kuzu",graph_id="kg1"} 1`)
}

func TestServeMux_Healthz(t *testing.T) {
	monitor := observability.NewHealthMonitor(nil)
	current := types.Healthy("ok")
	monitor.Register("backend", observability.HealthCheckFunc(func(context.Context) types.HealthStatus { return current }))

	srv := httptest.NewServer(newServeMux(prometheus.NewRegistry(), monitor))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, "healthy", body["status"])

	current = types.Unhealthy("down")
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
