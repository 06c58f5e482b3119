package patch

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		up      string
		down    string
		wantErr bool
	}{
		/* s0 */ {name: "both empty", up: "", down: ""},
		/* s1 */ {name: "whitespace only", up: "  \n\t", down: "\n"},
		/* s2 */ {name: "terminated", up: "CREATE TABLE a (id INT);", down: "DROP TABLE a;"},
		/* s3 */ {name: "trailing whitespace after semicolon", up: "SELECT 1;\n\n  ", down: ""},
		/* s4 */ {name: "up missing semicolon", up: "SELECT 1", down: "", wantErr: true},
		/* s5 */ {name: "down missing semicolon", up: "SELECT 1;", down: "DROP TABLE a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("sql_updates/sql_20240101_120000.sql", time.Now(), tt.up, tt.down)
			if tt.wantErr {
				assert.ErrorIs(t, err, pupdeploy.ErrPatchValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidate_NamesTheFailingSide(t *testing.T) {
	_, err := New("sql_updates/sql_20240101_120000.sql", time.Now(), "SELECT 1;", "DROP TABLE a")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "down:")
	assert.Contains(t, err.Error(), "sql_updates/sql_20240101_120000.sql")
}

func TestPatch_ID(t *testing.T) {
	p := Patch{Name: "db/sql_updates/sql_20240101_120000.class.sql"}

	assert.Equal(t, "sql_20240101_120000", p.ID())
	assert.False(t, p.IsBootstrap())
}

func TestParseTimestamp(t *testing.T) {
	loc := time.UTC

	t.Run("valid name", func(t *testing.T) {
		ts, err := ParseTimestamp("sql_updates/sql_20240315_093000.sql", loc)

		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.March, 15, 9, 30, 0, 0, loc), ts)
		assert.Equal(t, "20240315_093000", FormatTimestamp(ts))
	})

	t.Run("february 30 is malformed", func(t *testing.T) {
		_, err := ParseTimestamp("sql_20240230_120000.class", loc)

		assert.ErrorIs(t, err, pupdeploy.ErrMalformedPatchName)
	})

	t.Run("hour 25 is malformed", func(t *testing.T) {
		_, err := ParseTimestamp("sql_20240101_250000.sql", loc)

		assert.ErrorIs(t, err, pupdeploy.ErrMalformedPatchName)
	})

	t.Run("wrong pattern", func(t *testing.T) {
		_, err := ParseTimestamp("patch_20240101_120000.sql", loc)

		assert.ErrorIs(t, err, pupdeploy.ErrMalformedPatchName)
	})
}

func TestParseTimestamp_RejectsSkippedLocalTime(t *testing.T) {
	amsterdam, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Skip("time zone database not available")
	}

	// 02:30 does not exist on the morning clocks move forward.
	_, err = ParseTimestamp("sql_20240331_023000.sql", amsterdam)

	assert.ErrorIs(t, err, pupdeploy.ErrMalformedPatchName)
}

func TestIsPatchFile(t *testing.T) {
	assert.True(t, IsPatchFile("sql_20240101_120000.sql"))
	assert.True(t, IsPatchFile("dir/sql_20240101_120000.class.php"))
	assert.False(t, IsPatchFile("sql_20240101_1200.sql"))
	assert.False(t, IsPatchFile("sql_20240101_120000"))
	assert.False(t, IsPatchFile("README.md"))
}

func TestParse_SQL(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantUp   string
		wantDown string
		wantErr  bool
	}{
		/* s0 */ {
			name:     "up and down sections",
			content:  "-- adds a column\n-- +up\nALTER TABLE a ADD b INT;\n-- +down\nALTER TABLE a DROP b;\n",
			wantUp:   "ALTER TABLE a ADD b INT;",
			wantDown: "ALTER TABLE a DROP b;",
		},
		/* s1 */ {
			name:    "no markers is all up",
			content: "CREATE INDEX i ON a (b);\n",
			wantUp:  "CREATE INDEX i ON a (b);",
		},
		/* s2 */ {
			name:     "markers are case insensitive",
			content:  "-- +UP\nSELECT 1;\n-- +Down\n",
			wantUp:   "SELECT 1;",
			wantDown: "",
		},
		/* s3 */ {
			name:    "statement before first marker",
			content: "DELETE FROM a;\n-- +up\nSELECT 1;\n",
			wantErr: true,
		},
		/* s4 */ {
			name:    "duplicate up marker",
			content: "-- +up\nSELECT 1;\n-- +up\nSELECT 2;\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up, down, err := Parse("sql_20240101_120000.sql", []byte(tt.content))
			if tt.wantErr {
				assert.ErrorIs(t, err, pupdeploy.ErrPatchValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUp, up)
			assert.Equal(t, tt.wantDown, down)
		})
	}
}

func TestParse_YAML(t *testing.T) {
	content := "up: |\n  CREATE TABLE a (id INT);\ndown: |\n  DROP TABLE a;\n"

	up, down, err := Parse("sql_20240101_120000.yaml", []byte(content))

	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE a (id INT);", up)
	assert.Equal(t, "DROP TABLE a;", down)
}

func TestParse_YAMLUnknownKey(t *testing.T) {
	_, _, err := Parse("sql_20240101_120000.yml", []byte("upp: SELECT 1;\n"))

	assert.ErrorIs(t, err, pupdeploy.ErrPatchValidation)
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, _, err := Parse("sql_20240101_120000.php", []byte("<?php"))

	assert.ErrorIs(t, err, pupdeploy.ErrPatchValidation)
}

func TestRepository_List(t *testing.T) {
	fsys := fstest.MapFS{
		"sql_updates/sql_20240102_120000.sql":        {Data: []byte("-- +up\nSELECT 2;\n-- +down\nSELECT -2;\n")},
		"sql_updates/sql_20240101_120000.sql":        {Data: []byte("SELECT 1;")},
		"sql_updates/README.md":                      {Data: []byte("not a patch")},
		"sql_updates/nested/sql_20240103_120000.sql": {Data: []byte("SELECT 3;")},
		"more/sql_20240101_110000.yaml":              {Data: []byte("up: SELECT 0;\n")},
	}

	repo := NewRepository(Config{FS: fsys, Dirs: []string{"sql_updates", "more"}, Location: time.UTC})

	patches, err := repo.List(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{
		"more/sql_20240101_110000.yaml",
		"sql_updates/sql_20240101_120000.sql",
		"sql_updates/sql_20240102_120000.sql",
	}, Names(patches))
	assert.Equal(t, "SELECT 2;", patches[2].Up())
	assert.Equal(t, "SELECT -2;", patches[2].Down())
}

func TestRepository_List_SkipsBootstrapFile(t *testing.T) {
	fsys := fstest.MapFS{
		"sql_updates/" + BootstrapName + ".sql": {Data: []byte("CREATE TABLE db_patches (name VARCHAR(255));")},
		"sql_updates/sql_20240101_120000.sql":   {Data: []byte("SELECT 1;")},
	}

	repo := NewRepository(Config{FS: fsys, Dirs: []string{"sql_updates"}, Location: time.UTC})

	patches, err := repo.List(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"sql_updates/sql_20240101_120000.sql"}, Names(patches))
}

func TestRepository_List_MalformedName(t *testing.T) {
	fsys := fstest.MapFS{
		"sql_updates/sql_20240230_120000.class": {Data: []byte("SELECT 1;")},
	}

	repo := NewRepository(Config{FS: fsys, Dirs: []string{"sql_updates"}, Location: time.UTC})

	_, err := repo.List(context.Background())

	assert.ErrorIs(t, err, pupdeploy.ErrMalformedPatchName)
}

func TestRepository_List_InvalidScript(t *testing.T) {
	fsys := fstest.MapFS{
		"sql_updates/sql_20240101_120000.sql": {Data: []byte("SELECT 1")},
	}

	repo := NewRepository(Config{FS: fsys, Dirs: []string{"sql_updates"}, Location: time.UTC})

	_, err := repo.List(context.Background())

	assert.ErrorIs(t, err, pupdeploy.ErrPatchValidation)
}

func TestRepository_List_MissingDirectory(t *testing.T) {
	repo := NewRepository(Config{FS: fstest.MapFS{}, Dirs: []string{"sql_updates"}})

	_, err := repo.List(context.Background())

	assert.Error(t, err)
}

func TestRepository_Load_NotFound(t *testing.T) {
	repo := NewRepository(Config{FS: fstest.MapFS{}, Location: time.UTC})

	_, err := repo.Load("sql_updates/sql_20240101_120000.sql")

	assert.ErrorIs(t, err, pupdeploy.ErrPatchNotFound)
}

func TestBootstrap(t *testing.T) {
	p, err := Bootstrap(pupdeploy.DialectMySQL, "db_patches", time.UTC)

	require.NoError(t, err)
	assert.True(t, p.IsBootstrap())
	assert.Equal(t, time.Date(1970, time.January, 1, 8, 0, 0, 0, time.UTC), p.Timestamp)
	assert.Contains(t, p.Up(), "CREATE TABLE IF NOT EXISTS db_patches")
	assert.Empty(t, p.Down())
}

func TestBootstrap_InvalidTable(t *testing.T) {
	_, err := Bootstrap(pupdeploy.DialectMySQL, "db patches", time.UTC)

	assert.ErrorIs(t, err, pupdeploy.ErrConfiguration)
}
