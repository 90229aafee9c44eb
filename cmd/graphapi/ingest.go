package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RoboFinSystems/robosystems-sub012/internal/backend"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <graph-id> <source>...",
	Short: "Bulk load files into a table of a tenant graph",
	Long: `Bulk load one or more files into a table. Sources are local paths or
URLs the engine can read (for example s3:// with the httpfs extension). The
format is taken from --format or, when omitted, from the first source's
extension.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIngest,
}

var (
	ingestTable        string
	ingestFormat       string
	ingestIgnoreErrors bool
)

func init() {
	ingestCmd.Flags().StringVarP(&ingestTable, "table", "t", "", "Destination table (required)")
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "", "Source format (parquet|csv|json)")
	ingestCmd.Flags().BoolVar(&ingestIgnoreErrors, "ignore-errors", false, "Skip rows that fail to load")
	_ = ingestCmd.MarkFlagRequired("table")
}

func runIngest(cmd *cobra.Command, args []string) error {
	graphID, uris := args[0], args[1:]

	format := backend.Format(strings.ToLower(ingestFormat))
	if format == "" {
		format = formatFromPath(uris[0])
	}

	src := backend.IngestSource{
		Table:        ingestTable,
		URIs:         uris,
		Format:       format,
		SizeBytes:    localSize(uris),
		IgnoreErrors: ingestIgnoreErrors,
	}
	if err := src.Validate(); err != nil {
		return err
	}

	b, err := openBackend(cmd)
	if err != nil {
		return err
	}

	result, err := b.IngestFromSource(cmd.Context(), graphID, src)
	if err != nil {
		return err
	}

	return formatter(cmd).Print(result, func() error {
		return formatter(cmd).PrintSuccess(fmt.Sprintf("loaded %d rows from %d files into %s.%s in %s",
			result.RowsIngested, result.Files, graphID, result.Table, result.Duration))
	})
}

func formatFromPath(uri string) backend.Format {
	ext := strings.ToLower(filepath.Ext(uri))
	switch ext {
	case ".parquet", ".pq":
		return backend.FormatParquet
	case ".csv", ".tsv":
		return backend.FormatCSV
	case ".json", ".jsonl", ".ndjson":
		return backend.FormatJSON
	default:
		return backend.Format(strings.TrimPrefix(ext, "."))
	}
}

// localSize sums the sizes of sources that are local files. Remote sources
// count as zero.
func localSize(uris []string) int64 {
	var total int64
	for _, uri := range uris {
		if strings.Contains(uri, "://") {
			continue
		}
		if fi, err := os.Stat(uri); err == nil {
			total += fi.Size()
		}
	}
	return total
}
