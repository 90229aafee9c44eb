package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/RoboFinSystems/robosystems-sub012/cmd/graphapi/internal"
	"github.com/RoboFinSystems/robosystems-sub012/internal/backend"
	"github.com/RoboFinSystems/robosystems-sub012/internal/observability"
	"github.com/RoboFinSystems/robosystems-sub012/internal/pool"
	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show connection pool statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Show the nodes serving the backend",
	Args:  cobra.NoArgs,
	RunE:  runTopology,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check backend and pool health",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run a pool maintenance pass",
	Long: `Run a pool maintenance pass: expired and unhealthy handles are closed,
long idle handles are probed and databases without handles are closed.

With --force, every handle of the named graph is closed instead, and with
--aggressive its engine file locks are released as well.`,
	Args: cobra.NoArgs,
	RunE: runMaintain,
}

var (
	forceGraphID string
	aggressive   bool
)

func init() {
	maintainCmd.Flags().StringVar(&forceGraphID, "force", "", "Force cleanup of one graph")
	maintainCmd.Flags().BoolVar(&aggressive, "aggressive", false, "Also release file locks (with --force)")
}

// currentPool returns the pool behind the configured embedded backend.
func currentPool(cmd *cobra.Command) (*pool.Pool, error) {
	if _, err := openBackend(cmd); err != nil {
		return nil, err
	}
	if state.backendType == backend.TypeNeo4j {
		return nil, types.NewError(types.UNSUPPORTED_OPERATION,
			"neo4j connections are pooled by the driver; no local pool to inspect")
	}
	return pool.Get(string(state.backendType))
}

func runStats(cmd *cobra.Command, args []string) error {
	p, err := currentPool(cmd)
	if err != nil {
		return err
	}

	stats := p.GetStats()
	return formatter(cmd).Print(stats, func() error {
		out := formatter(cmd)
		if err := out.PrintKV([][2]string{
			{"Engine", stats.Engine},
			{"Max connections per database", strconv.Itoa(stats.MaxConnectionsPerDB)},
			{"Connection TTL", stats.ConnectionTTL.String()},
			{"Total connections", strconv.Itoa(stats.TotalConnections)},
			{"Created / reused / closed", fmt.Sprintf("%d / %d / %d",
				stats.ConnectionsCreated, stats.ConnectionsReused, stats.ConnectionsClosed)},
			{"Health checks (failed)", fmt.Sprintf("%d (%d)", stats.HealthChecks, stats.HealthFailures)},
			{"Evictions", strconv.FormatInt(stats.Evictions, 10)},
			{"Forced cleanups", strconv.FormatInt(stats.DatabasesCleaned, 10)},
		}); err != nil {
			return err
		}
		if len(stats.Databases) == 0 {
			return nil
		}

		ids := make([]string, 0, len(stats.Databases))
		for id := range stats.Databases {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		rows := make([][]string, 0, len(ids))
		for _, id := range ids {
			ds := stats.Databases[id]
			rows = append(rows, []string{id,
				strconv.Itoa(ds.Connections), strconv.Itoa(ds.Healthy), strconv.Itoa(ds.Borrowed)})
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return out.PrintTable([]string{"graph_id", "connections", "healthy", "borrowed"}, rows)
	})
}

func runTopology(cmd *cobra.Command, args []string) error {
	b, err := openBackend(cmd)
	if err != nil {
		return err
	}

	topo, err := b.GetClusterTopology(cmd.Context())
	if err != nil {
		return err
	}

	return formatter(cmd).Print(topo, func() error {
		fmt.Fprintf(cmd.OutOrStdout(), "Backend: %s (%s)\n\n", topo.Backend, topo.Mode)
		rows := make([][]string, 0, len(topo.Members))
		for _, m := range topo.Members {
			rows = append(rows, []string{m.ID, m.Role, strings.Join(m.Addresses, ",")})
		}
		return formatter(cmd).PrintTable([]string{"id", "role", "addresses"}, rows)
	})
}

func runHealth(cmd *cobra.Command, args []string) error {
	b, err := openBackend(cmd)
	if err != nil {
		return err
	}

	monitor := observability.NewHealthMonitor(state.logger)
	monitor.Register("backend", observability.HealthCheckFunc(b.HealthCheck))
	if state.backendType != backend.TypeNeo4j {
		p, err := pool.Get(string(state.backendType))
		if err != nil {
			return err
		}
		monitor.Register("pool", observability.HealthCheckFunc(poolHealth(p)))
	}

	results := monitor.CheckAll(cmd.Context())
	overall := observability.Overall(results)

	if err := formatter(cmd).Print(map[string]any{"overall": overall, "components": results}, func() error {
		rows := make([][]string, 0, len(results))
		for _, name := range monitor.Names() {
			status := results[name]
			rows = append(rows, []string{name, string(status.State), status.Message})
		}
		if err := formatter(cmd).PrintTable([]string{"component", "state", "message"}, rows); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nOverall: %s\n", stateColor(overall.State).Sprint(overall.State))
		return nil
	}); err != nil {
		return err
	}

	if overall.IsUnhealthy() {
		return internal.NewCLIError(internal.ExitBackendError, "backend is unhealthy")
	}
	return nil
}

// poolHealth reports a closed pool as unhealthy and a pool whose handles are
// mostly unhealthy as degraded.
func poolHealth(p *pool.Pool) func(context.Context) types.HealthStatus {
	return func(ctx context.Context) types.HealthStatus {
		if p.IsClosed() {
			return types.Unhealthy("pool closed")
		}
		stats := p.GetStats()
		healthy := 0
		for _, ds := range stats.Databases {
			healthy += ds.Healthy
		}
		msg := fmt.Sprintf("%d of %d connections healthy", healthy, stats.TotalConnections)
		if stats.TotalConnections > 0 && healthy*2 < stats.TotalConnections {
			return types.Degraded(msg)
		}
		return types.Healthy(msg)
	}
}

func runMaintain(cmd *cobra.Command, args []string) error {
	p, err := currentPool(cmd)
	if err != nil {
		return err
	}

	if forceGraphID != "" {
		if err := p.ForceDatabaseCleanup(cmd.Context(), forceGraphID, aggressive); err != nil {
			return err
		}
		return formatter(cmd).PrintSuccess("cleaned up " + forceGraphID)
	}
	if aggressive {
		return internal.NewCLIError(internal.ExitUsageError, "--aggressive requires --force")
	}

	report := p.RunMaintenance(cmd.Context())
	return formatter(cmd).Print(report, func() error {
		return formatter(cmd).PrintKV([][2]string{
			{"Databases scanned", strconv.Itoa(report.Tenants)},
			{"Expired handles closed", strconv.Itoa(report.Expired)},
			{"Unhealthy handles closed", strconv.Itoa(report.Unhealthy)},
			{"Handles probed (failed)", fmt.Sprintf("%d (%d)", report.Probed, report.ProbeFailures)},
			{"Databases closed", strconv.Itoa(report.DatabasesClosed)},
			{"Duration", report.Duration.String()},
		})
	})
}

func stateColor(state types.HealthState) *color.Color {
	switch state {
	case types.HealthStateHealthy:
		return color.New(color.FgGreen)
	case types.HealthStateDegraded:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}
