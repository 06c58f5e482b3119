package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/getpup/pupdeploy"
)

// DefaultTable is the name of the patch tracking table.
const DefaultTable = "db_patches"

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func ValidateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// Config configures generation of the tracking table migration file.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// Table is the name of the patch tracking table
	Table string
}

// DefaultConfig returns the default configuration for the tracking table migration.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_patch_tracking.sql", timestamp),
		Table:          DefaultTable,
	}
}

// TrackingTableSQL returns the statement that creates the tracking table for a dialect.
// The statement ends with a semicolon so it can be used as the up script of a patch.
func TrackingTableSQL(dialect pupdeploy.Dialect, table string) (string, error) {
	if err := ValidateIdentifier(table, "Table"); err != nil {
		return "", err
	}

	switch dialect {
	case pupdeploy.DialectMySQL:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    patch_name VARCHAR(400) CHARACTER SET ascii COLLATE ascii_general_ci NOT NULL,
    patch_timestamp INT UNSIGNED NOT NULL,
    applied_at DATETIME NULL DEFAULT NULL,
    reverted_at DATETIME NULL DEFAULT NULL,
    PRIMARY KEY (patch_name)
) ENGINE=InnoDB;`, table), nil
	case pupdeploy.DialectPostgres:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    patch_name VARCHAR(400) PRIMARY KEY,
    patch_timestamp BIGINT NOT NULL,
    applied_at TIMESTAMPTZ NULL,
    reverted_at TIMESTAMPTZ NULL
);`, table), nil
	case pupdeploy.DialectSQLite:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    patch_name TEXT PRIMARY KEY,
    patch_timestamp INTEGER NOT NULL,
    applied_at TEXT NULL,
    reverted_at TEXT NULL
);`, table), nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// Generate writes the tracking table migration for a dialect to config.OutputFolder.
func Generate(dialect pupdeploy.Dialect, config *Config) error {
	ddl, err := TrackingTableSQL(dialect, config.Table)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := fmt.Sprintf(`-- Patch Tracking Table Migration
-- Generated: %s
-- Database: %s

-- One row per patch. applied_at stays NULL while an update is in flight,
-- reverted_at is set while a rollback is in flight.
%s
`, time.Now().Format(time.RFC3339), dialectLabel(dialect), ddl)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return Generate(pupdeploy.DialectMySQL, config)
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return Generate(pupdeploy.DialectPostgres, config)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return Generate(pupdeploy.DialectSQLite, config)
}

func dialectLabel(dialect pupdeploy.Dialect) string {
	switch dialect {
	case pupdeploy.DialectMySQL:
		return "MySQL/MariaDB"
	case pupdeploy.DialectPostgres:
		return "PostgreSQL"
	default:
		return "SQLite"
	}
}
