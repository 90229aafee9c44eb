package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/RoboFinSystems/robosystems-sub012/cmd/graphapi/internal"
	"github.com/RoboFinSystems/robosystems-sub012/internal/config"
)

const redacted = "[REDACTED]"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
	Long: `Inspect the configuration graphapi runs with after defaults, the config
file, GRAPH_API_ environment variables and command-line overrides are merged.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := redactConfig(state.cfg)
		if globalFlags.OutputFormat == "json" {
			return formatter(cmd).PrintJSON(cfg)
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return internal.WrapError(internal.ExitError, "failed to encode configuration", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and report the selected backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Loading already validated the file; overrides are checked again here.
		if err := config.NewValidator().Validate(state.cfg); err != nil {
			return internal.WrapError(internal.ExitConfigError, "configuration is invalid", err)
		}
		return formatter(cmd).Print(map[string]string{
			"status":  "valid",
			"backend": string(state.backendType),
		}, func() error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid (backend: %s)\n", state.backendType)
			return err
		})
	},
}

// redactConfig returns a copy of cfg safe to print.
func redactConfig(cfg *config.Config) config.Config {
	out := *cfg
	if out.Neo4j.Password != "" {
		out.Neo4j.Password = redacted
	}
	if len(cfg.DuckDB.Settings) > 0 {
		out.DuckDB.Settings = make(map[string]string, len(cfg.DuckDB.Settings))
		for k, v := range cfg.DuckDB.Settings {
			if isSecretSetting(k) {
				v = redacted
			}
			out.DuckDB.Settings[k] = v
		}
	}
	return out
}

func isSecretSetting(key string) bool {
	switch key {
	case "s3_secret_access_key", "s3_session_token", "azure_storage_connection_string":
		return true
	}
	return false
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}
