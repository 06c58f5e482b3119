package main

import (
	"bytes"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFS = fstest.MapFS{
	"sql_updates/sql_20240310_120000.sql": &fstest.MapFile{
		Data: []byte("-- +up\nALTER TABLE orders ADD note TEXT;\n-- +down\nALTER TABLE orders DROP note;\n"),
	},
}

func TestRun_Update(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"-tz", "UTC", "update", "shop", "1710072000", "sql_19700101_080000", "sql_updates/sql_20240310_120000.sql"},
		testFS, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	out := stdout.String()

	bootstrap := strings.Index(out, "CREATE TABLE IF NOT EXISTS db_patches")
	insert := strings.Index(out, "INSERT INTO db_patches (patch_name, patch_timestamp) VALUES ('sql_updates/sql_20240310_120000.sql', 1710072000);")
	script := strings.Index(out, "ALTER TABLE orders ADD note TEXT;")
	applied := strings.Index(out, "UPDATE db_patches SET applied_at = FROM_UNIXTIME(1710072000) WHERE patch_name = 'sql_updates/sql_20240310_120000.sql';")

	require.NotEqual(t, -1, bootstrap)
	require.NotEqual(t, -1, insert)
	require.NotEqual(t, -1, script)
	require.NotEqual(t, -1, applied)
	assert.Less(t, bootstrap, insert)
	assert.Less(t, insert, script)
	assert.Less(t, script, applied)
	assert.NotContains(t, out, "DROP note")
}

func TestRun_Rollback(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"-dialect", "postgres", "-tz", "UTC", "rollback", "shop", "1710072000", "sql_updates/sql_20240310_120000.sql"},
		testFS, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	out := stdout.String()

	reverted := strings.Index(out, "UPDATE db_patches SET reverted_at = to_timestamp(1710072000)")
	script := strings.Index(out, "ALTER TABLE orders DROP note;")
	deleted := strings.Index(out, "DELETE FROM db_patches WHERE patch_name = 'sql_updates/sql_20240310_120000.sql';")

	require.NotEqual(t, -1, reverted)
	require.NotEqual(t, -1, script)
	require.NotEqual(t, -1, deleted)
	assert.Less(t, reverted, script)
	assert.Less(t, script, deleted)
}

func TestRun_NoPatchesPrintsNothing(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"update", "shop", "1710072000"}, testFS, &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.Empty(t, stdout.String())
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing arguments", []string{"update", "shop"}, "expected an action"},
		{"unknown action", []string{"migrate", "shop", "1"}, "unknown action"},
		{"empty database", []string{"update", "", "1"}, "which database"},
		{"bad timestamp", []string{"update", "shop", "yesterday"}, "not a unix time"},
		{"unknown dialect", []string{"-dialect", "oracle", "update", "shop", "1"}, "unknown dialect"},
		{"bad table", []string{"-table", "x;y", "update", "shop", "1"}, "table"},
		{"missing patch", []string{"update", "shop", "1", "sql_updates/sql_20240101_000000.sql"}, "patch not found"},
		{"malformed name", []string{"update", "shop", "1", "notes.txt"}, "does not match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer

			code := run(tt.args, testFS, &stdout, &stderr)

			assert.Equal(t, 1, code)
			assert.Empty(t, stdout.String())
			assert.Contains(t, stderr.String(), tt.want)
		})
	}
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"-colour", "blue"}, testFS, &stdout, &stderr)

	assert.Equal(t, 2, code)
}
