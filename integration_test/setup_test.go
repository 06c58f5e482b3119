//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/confirm"
	"github.com/getpup/pupdeploy/deploy"
	"github.com/getpup/pupdeploy/patch"
	"github.com/getpup/pupdeploy/remote"
	"github.com/getpup/pupdeploy/store"
	"github.com/getpup/pupdeploy/store/sqlstore"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// localRunner runs every command on this machine through the ssh runner's
// local shell, so the generated scripts execute for real.
type localRunner struct {
	shell *remote.SSHRunner
}

func (r localRunner) Run(ctx context.Context, cmd remote.Command) (remote.Result, error) {
	cmd.Host = ""
	return r.shell.Run(ctx, cmd)
}

// localSyncer copies the project into the release directory.
// Dry runs do nothing.
type localSyncer struct{}

func (localSyncer) Sync(ctx context.Context, req remote.SyncRequest) (remote.Result, error) {
	if req.DryRun {
		return remote.Result{}, nil
	}
	if err := os.CopyFS(req.Destination, os.DirFS(req.Source)); err != nil {
		return remote.Result{ExitCode: 1, Output: []string{err.Error()}}, nil
	}
	return remote.Result{}, nil
}

// database describes the tracking database a fleet patches.
type database struct {
	dialect pupdeploy.Dialect
	dsn     string
	db      *sql.DB
}

// sqliteDatabase returns a database in a temporary file.
func sqliteDatabase(t *testing.T) database {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "shop.db")
	db, err := sqlstore.Open(pupdeploy.DialectSQLite, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return database{dialect: pupdeploy.DialectSQLite, dsn: dsn, db: db}
}

// postgresDatabase returns the database in DATABASE_URL and skips the test if it is not set.
func postgresDatabase(t *testing.T) database {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := sqlstore.Open(pupdeploy.DialectPostgres, dbURL)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	d := database{dialect: pupdeploy.DialectPostgres, dsn: dbURL, db: db}
	d.teardown(t)
	t.Cleanup(func() {
		d.teardown(t)
		_ = db.Close()
	})
	return d
}

// teardown drops the tables the test patches create.
// Errors are logged but don't fail the test.
func (d database) teardown(t *testing.T) {
	t.Helper()

	for _, table := range []string{"invoices", "orders", "db_patches"} {
		if _, err := d.db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			t.Logf("warning: failed to drop %s: %v", table, err)
		}
	}
}

// tableExists reports whether table exists in d.
func (d database) tableExists(t *testing.T, table string) bool {
	t.Helper()

	query := "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	if d.dialect == pupdeploy.DialectPostgres {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1"
	}

	var n int
	if err := d.db.QueryRow(query, table).Scan(&n); err != nil {
		t.Fatalf("failed to look up table %s: %v", table, err)
	}
	return n > 0
}

// fleet is a project checkout plus one local "host" directory.
type fleet struct {
	localDir  string
	remoteDir string
	db        database
	now       time.Time
}

// newFleet writes a project with two schema patches.
func newFleet(t *testing.T, db database) *fleet {
	t.Helper()

	f := &fleet{
		localDir:  t.TempDir(),
		remoteDir: filepath.Join(t.TempDir(), "shop"),
		db:        db,
	}

	files := map[string]string{
		"index.php":                           "<?php echo 'shop';\n",
		"config/app.php":                      "<?php return ['env' => 'dev'];\n",
		"config/app.prod.php":                 "<?php return ['env' => 'prod'];\n",
		"sql_updates/sql_20240301_090000.sql": "-- +up\nCREATE TABLE orders (id INTEGER PRIMARY KEY);\n-- +down\nDROP TABLE orders;\n",
		"sql_updates/sql_20240308_090000.sql": "-- +up\nCREATE TABLE invoices (id INTEGER PRIMARY KEY);\n-- +down\nDROP TABLE invoices;\n",
	}
	for name, content := range files {
		path := filepath.Join(f.localDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	return f
}

// orchestrator builds an orchestrator whose clock reads f.now.
func (f *fleet) orchestrator(t *testing.T) *deploy.Orchestrator {
	t.Helper()

	metricsEnabled := false
	db := f.db
	orch, err := deploy.New(deploy.Config{
		Project:     "shop",
		Hosts:       []pupdeploy.Host{"web1"},
		RemoteDir:   f.remoteDir,
		LocalDir:    f.localDir,
		Target:      "prod",
		TargetFiles: []string{"config/app.php"},
		DataDirs:    []string{"uploads"},
		Runner:      localRunner{shell: remote.NewSSHRunner(remote.SSHConfig{Timeout: time.Minute})},
		Syncer:      localSyncer{},
		Prompter:    confirm.AutoApprove{},
		Database: &deploy.DatabaseConfig{
			Patches: patch.NewRepository(patch.Config{
				FS:       os.DirFS(f.localDir),
				Dirs:     []string{"sql_updates"},
				Location: time.UTC,
			}),
			Open: func(ctx context.Context, creds store.Credentials) (store.TrackingStore, error) {
				return sqlstore.New(db.db, sqlstore.Config{Dialect: db.dialect, Location: time.UTC})
			},
			Dialect:     db.dialect,
			Credentials: store.Credentials{Database: "shop"},
		},
		Location:       time.UTC,
		Now:            func() time.Time { return f.now },
		MetricsEnabled: &metricsEnabled,
	})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}
	return orch
}

// active returns the release the symlink points to.
func (f *fleet) active(t *testing.T) string {
	t.Helper()

	target, err := os.Readlink(filepath.Join(f.remoteDir, deploy.DefaultSymlink))
	if err != nil {
		t.Fatalf("failed to read symlink: %v", err)
	}
	return target
}

// releases lists the release directories on the host.
func (f *fleet) releases(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(f.remoteDir)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != deploy.DefaultDataDirPrefix {
			names = append(names, e.Name())
		}
	}
	return names
}
