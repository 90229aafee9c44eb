package main

import (
	"fmt"

	"github.com/RoboFinSystems/robosystems-sub012/cmd/graphapi/internal"
	"github.com/RoboFinSystems/robosystems-sub012/internal/backend"
	"github.com/spf13/cobra"
)

// GlobalFlags holds global flags available to all commands
type GlobalFlags struct {
	Verbose      bool
	Quiet        bool
	OutputFormat string
	ConfigFile   string
	Backend      string
	DataDir      string
}

var globalFlags = &GlobalFlags{}

// RegisterGlobalFlags registers persistent flags on the root command
func RegisterGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Only log errors")
	cmd.PersistentFlags().StringVarP(&globalFlags.OutputFormat, "output", "o", "text", "Output format (text|json)")
	cmd.PersistentFlags().StringVar(&globalFlags.ConfigFile, "config", "", "Path to config file (default: ~/.graph-api/config.yaml)")
	cmd.PersistentFlags().StringVarP(&globalFlags.Backend, "backend", "b", "", "Backend to use (kuzu|neo4j|duckdb), overrides backend.type")
	cmd.PersistentFlags().StringVar(&globalFlags.DataDir, "data-dir", "", "Database directory, overrides pool.base_path")
}

// ParseGlobalFlags validates the global flags.
func ParseGlobalFlags(cmd *cobra.Command) (*GlobalFlags, error) {
	format := globalFlags.OutputFormat
	if format != string(internal.FormatText) && format != string(internal.FormatJSON) {
		return nil, internal.NewCLIError(internal.ExitUsageError,
			fmt.Sprintf("invalid output format %q (want text or json)", format))
	}

	if globalFlags.Verbose && globalFlags.Quiet {
		return nil, internal.NewCLIError(internal.ExitUsageError, "--verbose and --quiet cannot be used together")
	}

	if globalFlags.Backend != "" && !backend.Type(globalFlags.Backend).IsValid() {
		return nil, internal.NewCLIError(internal.ExitUsageError,
			fmt.Sprintf("invalid backend %q (want kuzu, neo4j or duckdb)", globalFlags.Backend))
	}

	return globalFlags, nil
}

// GetOutputFormat returns the parsed OutputFormat enum
func (f *GlobalFlags) GetOutputFormat() internal.OutputFormat {
	if f.OutputFormat == string(internal.FormatJSON) {
		return internal.FormatJSON
	}
	return internal.FormatText
}

// LogLevel returns the level implied by --verbose and --quiet, or fallback.
func (f *GlobalFlags) LogLevel(fallback string) string {
	switch {
	case f.Verbose:
		return "debug"
	case f.Quiet:
		return "error"
	default:
		return fallback
	}
}
