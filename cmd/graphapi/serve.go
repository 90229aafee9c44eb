package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/RoboFinSystems/robosystems-sub012/internal/backend"
	"github.com/RoboFinSystems/robosystems-sub012/internal/observability"
	"github.com/RoboFinSystems/robosystems-sub012/internal/pool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve metrics and health endpoints",
	Long: `Keep the backend open and serve /metrics (Prometheus) and /healthz.
Pool maintenance runs in the background when pool.background_maintenance is
set. Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr           string
	healthCheckInterval time.Duration
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: metrics.address)")
	serveCmd.Flags().DurationVar(&healthCheckInterval, "health-interval", 30*time.Second, "Interval between background health checks")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	b, err := openBackend(cmd)
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = state.cfg.Metrics.Address
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	monitor := observability.NewHealthMonitor(state.logger)
	monitor.Register("backend", observability.HealthCheckFunc(b.HealthCheck))

	if state.backendType != backend.TypeNeo4j {
		p, err := pool.Get(string(state.backendType))
		if err != nil {
			return err
		}
		reg.MustRegister(pool.NewCollector(p))
		monitor.Register("pool", observability.HealthCheckFunc(poolHealth(p)))
		p.Start(ctx)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newServeMux(reg, monitor),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		state.logger.Info("serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		monitor.StartPeriodicCheck(gctx, healthCheckInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	state.logger.Info("server stopped")
	return nil
}

func newServeMux(reg *prometheus.Registry, monitor *observability.HealthMonitor) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		results := monitor.CheckAll(r.Context())
		overall := observability.Overall(results)

		w.Header().Set("Content-Type", "application/json")
		if overall.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     overall.State,
			"components": results,
		})
	})
	return mux
}
