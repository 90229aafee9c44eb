package backend

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateTableName restricts table names to plain identifiers; they are
// spliced into COPY and CREATE TABLE statements.
func validateTableName(name string) error {
	if !tableNamePattern.MatchString(name) || len(name) > 128 {
		return types.NewError(types.INVALID_IDENTIFIER, fmt.Sprintf("invalid table name %q", name))
	}
	return nil
}

// quoteString renders s as a single-quoted SQL/Cypher string literal.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = quoteString(item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
