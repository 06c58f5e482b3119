// Command migrate-gen generates the SQL migration that creates the patch tracking table.
//
// Deploys create the table themselves through the bootstrap patch. Use this
// when the table has to be created by a database administrator up front.
//
// Usage:
//
//	go run github.com/getpup/pupdeploy/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/pupdeploy/cmd/migrate-gen -output migrations
//
// Generate migrations for different database dialects:
//
//	go run github.com/getpup/pupdeploy/cmd/migrate-gen -dialect mysql -output migrations
//	go run github.com/getpup/pupdeploy/cmd/migrate-gen -dialect postgres -output migrations
//	go run github.com/getpup/pupdeploy/cmd/migrate-gen -dialect sqlite3 -output migrations
//
// Customize the table name:
//
//	go run github.com/getpup/pupdeploy/cmd/migrate-gen -table schema_patches -output migrations
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/pkg/migrations"
)

func main() {
	var (
		dialect        = flag.String("dialect", "mysql", "Database dialect: mysql, postgres, or sqlite3")
		outputFolder   = flag.String("output", "migrations", "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		table          = flag.String("table", migrations.DefaultTable, "Name of the patch tracking table")
	)

	flag.Parse()

	config := migrations.DefaultConfig()
	config.OutputFolder = *outputFolder
	config.Table = *table

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	d := pupdeploy.Dialect(*dialect)
	if !d.Valid() {
		fmt.Fprintf(os.Stderr, "Error: unsupported dialect '%s'. Supported dialects are: mysql, postgres, sqlite3\n", *dialect)
		os.Exit(1)
	}

	if err := migrations.Generate(d, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *dialect, config.OutputFolder, config.OutputFilename)
}
