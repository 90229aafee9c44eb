package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/RoboFinSystems/robosystems-sub012/cmd/graphapi/internal"
	"github.com/spf13/cobra"
)

var databaseCmd = &cobra.Command{
	Use:     "database",
	Aliases: []string{"db"},
	Short:   "Manage tenant graph databases",
}

var databaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenant graphs",
	Args:  cobra.NoArgs,
	RunE:  runDatabaseList,
}

var databaseCreateCmd = &cobra.Command{
	Use:   "create <graph-id>",
	Short: "Create a tenant graph and apply its schema",
	Long: `Create a tenant graph. Schema DDL may be given inline with --schema
(repeatable) or from a file with --schema-file, where statements are
separated by semicolons.`,
	Args: cobra.ExactArgs(1),
	RunE: runDatabaseCreate,
}

var databaseDeleteCmd = &cobra.Command{
	Use:   "delete <graph-id>",
	Short: "Delete a tenant graph and all of its files",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatabaseDelete,
}

var databaseInfoCmd = &cobra.Command{
	Use:   "info <graph-id>",
	Short: "Show details of a tenant graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatabaseInfo,
}

var (
	schemaStatements []string
	schemaFile       string
	confirmDelete    bool
)

func init() {
	databaseCreateCmd.Flags().StringArrayVar(&schemaStatements, "schema", nil, "Schema DDL statement (repeatable)")
	databaseCreateCmd.Flags().StringVar(&schemaFile, "schema-file", "", "File of semicolon separated DDL statements")
	databaseDeleteCmd.Flags().BoolVarP(&confirmDelete, "yes", "y", false, "Confirm deletion")

	databaseCmd.AddCommand(databaseListCmd)
	databaseCmd.AddCommand(databaseCreateCmd)
	databaseCmd.AddCommand(databaseDeleteCmd)
	databaseCmd.AddCommand(databaseInfoCmd)
}

func runDatabaseList(cmd *cobra.Command, args []string) error {
	b, err := openBackend(cmd)
	if err != nil {
		return err
	}

	names, err := b.ListDatabases(cmd.Context())
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name})
	}
	return formatter(cmd).Print(names, func() error {
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No databases found")
			return nil
		}
		return formatter(cmd).PrintTable([]string{"graph_id"}, rows)
	})
}

func runDatabaseCreate(cmd *cobra.Command, args []string) error {
	graphID := args[0]

	schema := append([]string(nil), schemaStatements...)
	if schemaFile != "" {
		data, err := os.ReadFile(schemaFile)
		if err != nil {
			return internal.WrapError(internal.ExitUsageError, "failed to read schema file", err)
		}
		schema = append(schema, splitStatements(string(data))...)
	}

	b, err := openBackend(cmd)
	if err != nil {
		return err
	}
	if err := b.CreateDatabase(cmd.Context(), graphID, schema); err != nil {
		return err
	}
	return formatter(cmd).PrintSuccess(fmt.Sprintf("created %s (%d schema statements)", graphID, len(schema)))
}

func runDatabaseDelete(cmd *cobra.Command, args []string) error {
	graphID := args[0]
	if !confirmDelete {
		return internal.NewCLIError(internal.ExitUsageError,
			fmt.Sprintf("refusing to delete %s without --yes", graphID))
	}

	b, err := openBackend(cmd)
	if err != nil {
		return err
	}
	if err := b.DeleteDatabase(cmd.Context(), graphID); err != nil {
		return err
	}
	return formatter(cmd).PrintSuccess("deleted " + graphID)
}

func runDatabaseInfo(cmd *cobra.Command, args []string) error {
	b, err := openBackend(cmd)
	if err != nil {
		return err
	}

	info, err := b.GetDatabaseInfo(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return formatter(cmd).Print(info, func() error {
		pairs := [][2]string{
			{"Graph ID", info.GraphID},
			{"Backend", string(info.Backend)},
			{"Name", info.Name},
			{"Status", info.Status},
			{"Size", strconv.FormatInt(info.SizeBytes, 10) + " bytes"},
			{"Connections", strconv.Itoa(info.Connections)},
		}
		if info.Path != "" {
			pairs = append(pairs, [2]string{"Path", info.Path})
		}
		if len(info.NodeTables) > 0 {
			pairs = append(pairs, [2]string{"Node tables", strings.Join(info.NodeTables, ", ")})
		}
		if len(info.RelTables) > 0 {
			pairs = append(pairs, [2]string{"Rel tables", strings.Join(info.RelTables, ", ")})
		}
		if len(info.Tables) > 0 {
			pairs = append(pairs, [2]string{"Tables", strings.Join(info.Tables, ", ")})
		}
		return formatter(cmd).PrintKV(pairs)
	})
}

// splitStatements splits a DDL script on semicolons, dropping blank
// statements and "--" comment lines.
func splitStatements(script string) []string {
	var lines []string
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}

	var statements []string
	for _, stmt := range strings.Split(strings.Join(lines, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
