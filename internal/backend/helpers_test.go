package backend

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RoboFinSystems/robosystems-sub012/internal/engine/enginetest"
	"github.com/RoboFinSystems/robosystems-sub012/internal/pool"
)

func newTestPool(t *testing.T) (*pool.Pool, *enginetest.Driver) {
	t.Helper()
	cfg := pool.DefaultConfig(t.TempDir())
	cfg.CleanupInterval = time.Hour
	cfg.HealthCheckIdle = time.Hour

	driver := enginetest.NewDriver()
	p, err := pool.New(cfg, driver)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, driver
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func indexOf(events []string, event string) int {
	for i, e := range events {
		if e == event {
			return i
		}
	}
	return -1
}
