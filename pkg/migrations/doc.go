// Package migrations generates the SQL that manages the patch tracking table.
// It renders the tracking table DDL and the dialect-specific fragments used by
// the patch protocol and the tracking stores, for MySQL/MariaDB, PostgreSQL and SQLite.
package migrations
