// Package protocol emits the SQL statement stream that applies or reverts
// patches while keeping the tracking table in step.
//
// For every patch the stream brackets the patch script between two
// bookkeeping statements. If the database client stops at the script, the
// tracking row is left in a state the resolver recognises as a crash.
package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/patch"
	"github.com/getpup/pupdeploy/pkg/migrations"
)

// Emitter renders protocol statements for one dialect and tracking table.
type Emitter struct {
	Dialect pupdeploy.Dialect
	Table   string
}

// NewEmitter validates the table name and returns an Emitter.
func NewEmitter(dialect pupdeploy.Dialect, table string) (Emitter, error) {
	if !dialect.Valid() {
		return Emitter{}, fmt.Errorf("%w: unknown dialect %q", pupdeploy.ErrConfiguration, dialect)
	}
	if table == "" {
		table = migrations.DefaultTable
	}
	if err := migrations.ValidateIdentifier(table, "table"); err != nil {
		return Emitter{}, fmt.Errorf("%w: %v", pupdeploy.ErrConfiguration, err)
	}
	return Emitter{Dialect: dialect, Table: table}, nil
}

// Statements returns the ordered statements for applying action to patches at the given time.
// Patch scripts are returned as single entries even when they hold several statements.
func (e Emitter) Statements(action pupdeploy.Action, patches []patch.Patch, at time.Time) ([]string, error) {
	var out []string

	for _, p := range patches {
		switch action {
		case pupdeploy.ActionUpdate:
			out = append(out, e.update(p, at)...)
		case pupdeploy.ActionRollback:
			out = append(out, e.rollback(p, at)...)
		default:
			return nil, fmt.Errorf("%w: unknown action %q", pupdeploy.ErrConfiguration, action)
		}
	}

	return out, nil
}

// Script returns Statements joined into one text suitable for piping into a database client.
func (e Emitter) Script(action pupdeploy.Action, patches []patch.Patch, at time.Time) (string, error) {
	statements, err := e.Statements(action, patches, at)
	if err != nil {
		return "", err
	}
	if len(statements) == 0 {
		return "", nil
	}
	return strings.Join(statements, "\n") + "\n", nil
}

func (e Emitter) update(p patch.Patch, at time.Time) []string {
	name := e.quote(p.Name)
	applied := migrations.FromUnixtime(e.Dialect, at.Unix())

	if p.IsBootstrap() {
		return appendScript(nil, p.Up(),
			fmt.Sprintf("INSERT INTO %s (patch_name, patch_timestamp, applied_at) VALUES (%s, %d, %s);",
				e.Table, name, p.Timestamp.Unix(), applied),
		)
	}

	out := []string{
		fmt.Sprintf("INSERT INTO %s (patch_name, patch_timestamp) VALUES (%s, %d);", e.Table, name, p.Timestamp.Unix()),
	}
	return appendScript(out, p.Up(),
		fmt.Sprintf("UPDATE %s SET applied_at = %s WHERE patch_name = %s;", e.Table, applied, name),
	)
}

func (e Emitter) rollback(p patch.Patch, at time.Time) []string {
	name := e.quote(p.Name)

	out := []string{
		fmt.Sprintf("UPDATE %s SET reverted_at = %s WHERE patch_name = %s;",
			e.Table, migrations.FromUnixtime(e.Dialect, at.Unix()), name),
	}
	return appendScript(out, p.Down(),
		fmt.Sprintf("DELETE FROM %s WHERE patch_name = %s;", e.Table, name),
	)
}

// Register returns one INSERT recording patches as applied at their own timestamp.
// It returns an empty string for an empty slice.
func (e Emitter) Register(patches []patch.Patch) string {
	if len(patches) == 0 {
		return ""
	}

	values := make([]string, len(patches))
	for i, p := range patches {
		ts := p.Timestamp.Unix()
		values[i] = fmt.Sprintf("(%s, %d, %s)", e.quote(p.Name), ts, migrations.FromUnixtime(e.Dialect, ts))
	}

	return fmt.Sprintf("INSERT INTO %s (patch_name, patch_timestamp, applied_at) VALUES %s;",
		e.Table, strings.Join(values, ", "))
}

func (e Emitter) quote(s string) string {
	return migrations.QuoteString(e.Dialect, s)
}

func appendScript(out []string, script string, next string) []string {
	if s := strings.TrimSpace(script); s != "" {
		out = append(out, s)
	}
	return append(out, next)
}
