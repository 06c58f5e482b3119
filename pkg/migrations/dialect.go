package migrations

import (
	"fmt"
	"strings"

	"github.com/getpup/pupdeploy"
)

// NullMarker is what the nullable columns of RecordsQuery render for SQL NULL.
const NullMarker = "NULL"

// FromUnixtime renders a unix timestamp as a datetime literal for the dialect.
func FromUnixtime(dialect pupdeploy.Dialect, ts int64) string {
	switch dialect {
	case pupdeploy.DialectPostgres:
		return fmt.Sprintf("to_timestamp(%d)", ts)
	case pupdeploy.DialectSQLite:
		return fmt.Sprintf("datetime(%d, 'unixepoch')", ts)
	default:
		return fmt.Sprintf("FROM_UNIXTIME(%d)", ts)
	}
}

// UnixTimestamp renders the expression that converts a datetime column back to unix seconds.
func UnixTimestamp(dialect pupdeploy.Dialect, column string) string {
	switch dialect {
	case pupdeploy.DialectPostgres:
		return fmt.Sprintf("CAST(EXTRACT(EPOCH FROM %s) AS BIGINT)", column)
	case pupdeploy.DialectSQLite:
		return fmt.Sprintf("CAST(strftime('%%s', %s) AS INTEGER)", column)
	default:
		return fmt.Sprintf("UNIX_TIMESTAMP(%s)", column)
	}
}

// nullableUnix renders a column as unix seconds in text form, or NullMarker when it is NULL.
// Command line clients print NULL differently, so the marker is produced by the query itself.
func nullableUnix(dialect pupdeploy.Dialect, column string) string {
	textType := "TEXT"
	if dialect == pupdeploy.DialectMySQL {
		textType = "CHAR"
	}
	return fmt.Sprintf("COALESCE(CAST(%s AS %s), '%s')", UnixTimestamp(dialect, column), textType, NullMarker)
}

// QuoteString renders s as a string literal for the dialect.
func QuoteString(dialect pupdeploy.Dialect, s string) string {
	if dialect == pupdeploy.DialectMySQL {
		return "'" + escapeMysqlString(s) + "'"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func escapeMysqlString(s string) string {
	dest := make([]rune, 0, 2*len(s))

	for _, character := range s {
		var escape rune

		switch character {
		case 0:
			escape = '0'
		case '\n':
			escape = 'n'
		case '\r':
			escape = 'r'
		case '\\':
			escape = '\\'
		case '\'':
			escape = '\''
		case '"':
			escape = '"'
		case '\032':
			escape = 'Z'
		}

		if escape != 0 {
			dest = append(dest, '\\', escape)
		} else {
			dest = append(dest, character)
		}
	}

	return string(dest)
}

// TableExistsQuery returns a query that yields one row if the table exists and none otherwise.
func TableExistsQuery(dialect pupdeploy.Dialect, table string) string {
	switch dialect {
	case pupdeploy.DialectPostgres:
		return fmt.Sprintf("SELECT tablename FROM pg_catalog.pg_tables WHERE tablename = %s", QuoteString(dialect, table))
	case pupdeploy.DialectSQLite:
		return fmt.Sprintf("SELECT name FROM sqlite_master WHERE type = 'table' AND name = %s", QuoteString(dialect, table))
	default:
		return fmt.Sprintf("SHOW TABLES LIKE %s", QuoteString(dialect, table))
	}
}

// RecordsQuery returns the query listing every tracking record ordered by patch timestamp.
// Columns: patch_name, patch_timestamp, applied_at and reverted_at, the last two as unix
// seconds in text form or NullMarker.
func RecordsQuery(dialect pupdeploy.Dialect, table string) string {
	return fmt.Sprintf("SELECT patch_name, patch_timestamp, %s, %s FROM %s ORDER BY patch_timestamp, patch_name",
		nullableUnix(dialect, "applied_at"),
		nullableUnix(dialect, "reverted_at"),
		table,
	)
}

// AppliedBetweenQuery returns the query listing records with after < applied_at <= until,
// in the same column layout as RecordsQuery.
func AppliedBetweenQuery(dialect pupdeploy.Dialect, table string, after, until int64) string {
	return fmt.Sprintf("SELECT patch_name, patch_timestamp, %s, %s FROM %s WHERE applied_at > %s AND applied_at <= %s ORDER BY patch_timestamp, patch_name",
		nullableUnix(dialect, "applied_at"),
		nullableUnix(dialect, "reverted_at"),
		table,
		FromUnixtime(dialect, after),
		FromUnixtime(dialect, until),
	)
}

// AccessProbeSQL returns statements that create and drop a scratch table.
// Running them checks that the credentials may change the schema.
func AccessProbeSQL(ts int64) (create, drop string) {
	name := fmt.Sprintf("temp_%d", ts)
	return fmt.Sprintf("CREATE TABLE %s (id INTEGER);", name), fmt.Sprintf("DROP TABLE %s;", name)
}
