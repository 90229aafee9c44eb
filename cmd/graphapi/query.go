package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/RoboFinSystems/robosystems-sub012/cmd/graphapi/internal"
	"github.com/RoboFinSystems/robosystems-sub012/internal/backend"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <graph-id> [statement]",
	Short: "Run a read query against a tenant graph",
	Long: `Run a read query. The statement is taken from the second argument or
from --file. Parameters are passed with --param name=value (repeatable) or as
a JSON object with --params.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatement(cmd, args, false)
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <graph-id> [statement]",
	Short: "Run a mutating statement against a tenant graph",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatement(cmd, args, true)
	},
}

type statementFlags struct {
	file       string
	params     []string
	paramsJSON string
}

var (
	queryFlags statementFlags
	writeFlags statementFlags
)

func init() {
	for _, c := range []struct {
		cmd   *cobra.Command
		flags *statementFlags
	}{{queryCmd, &queryFlags}, {writeCmd, &writeFlags}} {
		c.cmd.Flags().StringVarP(&c.flags.file, "file", "f", "", "Read the statement from a file")
		c.cmd.Flags().StringArrayVarP(&c.flags.params, "param", "p", nil, "Query parameter name=value (repeatable)")
		c.cmd.Flags().StringVar(&c.flags.paramsJSON, "params", "", "Query parameters as a JSON object")
	}
}

func runStatement(cmd *cobra.Command, args []string, write bool) error {
	flags := &queryFlags
	if write {
		flags = &writeFlags
	}

	statement, err := resolveStatement(args, flags.file)
	if err != nil {
		return err
	}
	params, err := parseParams(flags.params, flags.paramsJSON)
	if err != nil {
		return err
	}

	b, err := openBackend(cmd)
	if err != nil {
		return err
	}

	var result *backend.QueryResult
	if write {
		result, err = b.ExecuteWrite(cmd.Context(), args[0], statement, params)
	} else {
		result, err = b.ExecuteQuery(cmd.Context(), args[0], statement, params)
	}
	if err != nil {
		return err
	}

	return formatter(cmd).Print(result, func() error {
		return printResult(cmd, result)
	})
}

func printResult(cmd *cobra.Command, result *backend.QueryResult) error {
	if len(result.Columns) > 0 {
		rows := make([][]string, 0, len(result.Records))
		for _, record := range result.Records {
			row := make([]string, len(result.Columns))
			for i, col := range result.Columns {
				row[i] = internal.FormatValue(record[col])
			}
			rows = append(rows, row)
		}
		if err := formatter(cmd).PrintTable(result.Columns, rows); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "(%d rows, %s)\n", len(result.Records), result.Summary.ExecutionTime)
	return nil
}

func resolveStatement(args []string, file string) (string, error) {
	switch {
	case len(args) == 2 && file != "":
		return "", internal.NewCLIError(internal.ExitUsageError, "give the statement as an argument or with --file, not both")
	case len(args) == 2:
		return args[1], nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", internal.WrapError(internal.ExitUsageError, "failed to read statement file", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", internal.NewCLIError(internal.ExitUsageError, "no statement given")
	}
}

// parseParams merges --params JSON with --param pairs; pairs win. Pair values
// are typed as int, float or bool when they parse as one, else string.
func parseParams(pairs []string, paramsJSON string) (map[string]any, error) {
	params := make(map[string]any)

	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
			return nil, internal.WrapError(internal.ExitUsageError, "--params must be a JSON object", err)
		}
	}

	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, internal.NewCLIError(internal.ExitUsageError,
				fmt.Sprintf("invalid parameter %q (want name=value)", pair))
		}
		params[name] = typedValue(raw)
	}

	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

func typedValue(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}
