package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/RoboFinSystems/robosystems-sub012/cmd/graphapi/internal"
	"github.com/RoboFinSystems/robosystems-sub012/internal/admission"
	"github.com/RoboFinSystems/robosystems-sub012/internal/backend"
	"github.com/RoboFinSystems/robosystems-sub012/internal/config"
	"github.com/RoboFinSystems/robosystems-sub012/internal/observability"
	"github.com/RoboFinSystems/robosystems-sub012/internal/pool"
	"github.com/RoboFinSystems/robosystems-sub012/pkg/version"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// app carries what every command needs once configuration is loaded.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	tracing     *observability.Tracing
	admission   *admission.Controller
	backendType backend.Type

	backend backend.Backend
}

var state *app

// backendFactory builds the backend for a command. Tests replace it.
var backendFactory = func(ctx context.Context, a *app) (backend.Backend, error) {
	opts := []backend.Option{
		backend.WithLogger(a.logger),
		backend.WithAdmission(a.admission),
	}
	if a.tracing.Enabled() {
		opts = append(opts, backend.WithTracer(a.tracing.Tracer()))
	}
	return backend.New(ctx, a.cfg.BackendConfig(a.backendType), opts...)
}

func setupApp(cmd *cobra.Command, args []string) error {
	if skipSetup[cmd.Name()] {
		return nil
	}

	flags, err := ParseGlobalFlags(cmd)
	if err != nil {
		return err
	}

	configFile := flags.ConfigFile
	if configFile == "" {
		configFile = config.DefaultConfigPath()
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return internal.WrapError(internal.ExitConfigError, "failed to load configuration", err)
	}
	if flags.DataDir != "" {
		cfg.Pool.BasePath = flags.DataDir
		cfg.DuckDB.BasePath = flags.DataDir
	}

	logger, err := observability.NewLogger(cmd.ErrOrStderr(), flags.LogLevel(cfg.Logging.Level), cfg.Logging.Format)
	if err != nil {
		return internal.WrapError(internal.ExitConfigError, "invalid logging configuration", err)
	}
	slog.SetDefault(logger)

	tracing, err := observability.InitTracing(cmd.Context(), observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
	}, observability.WithServiceVersion(version.Version))
	if err != nil {
		return err
	}

	typ := backend.Type(cfg.Backend.Type)
	if flags.Backend != "" {
		typ = backend.Type(flags.Backend)
	}

	state = &app{
		cfg:         cfg,
		logger:      logger,
		tracing:     tracing,
		admission:   admission.New(cfg.AdmissionConfig()),
		backendType: typ,
	}
	logger.Debug("configuration loaded",
		slog.String("config", configFile),
		slog.String("backend", string(typ)))
	return nil
}

func teardownApp(cmd *cobra.Command, args []string) error {
	if state == nil {
		return nil
	}
	a := state
	state = nil

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.backend != nil {
		if err := a.backend.Close(ctx); err != nil {
			a.logger.Warn("backend close failed", slog.String("error", err.Error()))
		}
	}
	if err := pool.Shutdown(ctx); err != nil {
		a.logger.Warn("pool shutdown failed", slog.String("error", err.Error()))
	}
	return a.tracing.Shutdown(ctx)
}

// openBackend returns the command's backend, building it on first use.
func openBackend(cmd *cobra.Command) (backend.Backend, error) {
	if state == nil {
		return nil, internal.NewCLIError(internal.ExitConfigError, "configuration not loaded")
	}
	if state.backend != nil {
		return state.backend, nil
	}
	b, err := backendFactory(cmd.Context(), state)
	if err != nil {
		return nil, err
	}
	state.backend = b
	return b, nil
}

func formatter(cmd *cobra.Command) internal.Formatter {
	return internal.NewFormatter(globalFlags.GetOutputFormat(), cmd.OutOrStdout())
}
