package admission

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

func TestNilControllerAdmitsEverything(t *testing.T) {
	var c *Controller

	assert.NoError(t, c.CheckQuery("g1", strings.Repeat("x", 1<<20)))
	release, err := c.AdmitIngestion(context.Background(), "g1", 1<<40)
	require.NoError(t, err)
	release()
}

func TestCheckQuery(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		query    string
		wantCode types.ErrorCode
	}{
		{
			name:   "within limit",
			config: Config{MaxQueryBytes: 32},
			query:  "MATCH (n) RETURN n",
		},
		{
			name:     "too long",
			config:   Config{MaxQueryBytes: 8},
			query:    "MATCH (n) RETURN n",
			wantCode: types.PAYLOAD_TOO_LARGE,
		},
		{
			name:   "no limit",
			config: Config{},
			query:  strings.Repeat("x", 4096),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.config).CheckQuery("g1", tt.query)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.CodeOf(err))
		})
	}
}

func TestRateLimitIsPerTenant(t *testing.T) {
	c := New(Config{RequestsPerWindow: 2, Window: time.Hour})

	require.NoError(t, c.CheckQuery("g1", "q"))
	require.NoError(t, c.CheckQuery("g1", "q"))

	err := c.CheckQuery("g1", "q")
	require.Error(t, err)
	assert.Equal(t, types.ADMISSION_REJECTED, types.CodeOf(err))
	assert.True(t, types.IsRetryable(err))

	assert.NoError(t, c.CheckQuery("g2", "q"), "other tenants have their own bucket")
}

func TestAdmitIngestion_PayloadCap(t *testing.T) {
	c := New(Config{MaxPayloadBytes: 1024})

	_, err := c.AdmitIngestion(context.Background(), "g1", 2048)
	require.Error(t, err)
	assert.Equal(t, types.PAYLOAD_TOO_LARGE, types.CodeOf(err))

	release, err := c.AdmitIngestion(context.Background(), "g1", 512)
	require.NoError(t, err)
	release()
}

func TestAdmitIngestion_BoundsConcurrency(t *testing.T) {
	c := New(Config{MaxConcurrentIngestions: 1, QueueTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	release, err := c.AdmitIngestion(ctx, "g1", 0)
	require.NoError(t, err)

	_, err = c.AdmitIngestion(ctx, "g2", 0)
	require.Error(t, err)
	assert.Equal(t, types.ADMISSION_REJECTED, types.CodeOf(err))

	release()
	release()

	again, err := c.AdmitIngestion(ctx, "g2", 0)
	require.NoError(t, err)
	again()
}

func TestAdmitIngestion_WaitsForSlot(t *testing.T) {
	c := New(Config{MaxConcurrentIngestions: 1, QueueTimeout: time.Second})
	ctx := context.Background()

	release, err := c.AdmitIngestion(ctx, "g1", 0)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	second, err := c.AdmitIngestion(ctx, "g1", 0)
	require.NoError(t, err)
	second()
}
