package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/cache"
	"github.com/getpup/pupdeploy/confirm"
	"github.com/getpup/pupdeploy/migration"
	"github.com/getpup/pupdeploy/pkg/migrations"
	"github.com/getpup/pupdeploy/remote"
	"github.com/getpup/pupdeploy/store"
	"github.com/getpup/pupsourcing/es"
	"github.com/google/uuid"
)

// Defaults.
const (
	DefaultDataDirPrefix = "data"
	DefaultSymlink       = "production"
	DefaultCredentialTry = 3
)

// OpenStore connects a tracking store with the given credentials.
type OpenStore func(ctx context.Context, creds store.Credentials) (store.TrackingStore, error)

// DatabaseConfig configures schema patching. A nil DatabaseConfig disables it.
type DatabaseConfig struct {
	// Patches lists the local patches (required).
	Patches migration.PatchSource

	// Open connects the tracking store once credentials are known (required).
	Open OpenStore

	// Dialect and Table select the bootstrap patch (default: mysql, db_patches).
	Dialect pupdeploy.Dialect
	Table   string

	// Credentials known from configuration. Missing parts are asked for.
	// A database name of "skip" disables patching for the run.
	Credentials store.Credentials

	// Attempts bounds the credential prompts when the access check fails (default: 3).
	Attempts int
}

// WorkerServer is a job server whose workers are restarted after activation.
type WorkerServer struct {
	IP   string
	Port int
}

// WorkerConfig describes the worker processes restarted after activation.
type WorkerConfig struct {
	// Restarter is the restart command, relative to the release directory.
	Restarter string

	// Servers are the job servers to restart workers on.
	Servers []WorkerServer

	// Functions are the worker function names. "%s" is replaced by the target.
	Functions []string
}

// Enabled reports whether any worker is configured.
func (w WorkerConfig) Enabled() bool {
	return w.Restarter != "" && len(w.Servers) > 0 && len(w.Functions) > 0
}

// Config holds configuration for the deploy Orchestrator.
// It is copied by New and never changed afterwards.
type Config struct {
	// Project names the releases, as in {project}_{timestamp} (required).
	Project string

	// Hosts are the application servers (required). The first one is used
	// for discovery, dry runs and the database.
	Hosts []pupdeploy.Host

	// RemoteDir holds the release directories on every host (required).
	RemoteDir string

	// LocalDir is the project tree to deploy (default: ".").
	LocalDir string

	// Target names the environment, such as "prod". It selects target specific files.
	Target string

	// Symlink is the name of the link to the active release (default: "production").
	Symlink string

	// RsyncExcludes are local files with rsync exclude patterns.
	RsyncExcludes []string

	// DataDirs are excluded from sync and linked to {RemoteDir}/{DataDirPrefix}/{dir}.
	DataDirs []string

	// DataDirPrefix holds the shared data directories (default: "data").
	DataDirPrefix string

	// TargetFiles are moved into place from their target specific variant:
	// "config/app.php" is replaced by "config/app.{Target}.php".
	TargetFiles []string

	// Workers are restarted after activation.
	Workers WorkerConfig

	// Database configures schema patching (optional).
	Database *DatabaseConfig

	// Runner runs commands on the hosts (required).
	Runner remote.Runner

	// Syncer copies the project tree to the hosts (required).
	Syncer remote.Syncer

	// Prompter asks the operator for confirmation (required).
	Prompter confirm.Prompter

	// Invalidators clear caches on each host after activation.
	Invalidators []cache.HostInvalidator

	// Notifiers announce the activated release once per run.
	Notifiers []cache.Notifier

	// Hooks run project specific steps around activation (default: NopHooks).
	Hooks Hooks

	// Concurrency bounds the hosts worked on at once (default: 4).
	Concurrency int

	// Location is the time zone of release names (default: time.Local).
	Location *time.Location

	// Now returns the current time (default: time.Now).
	Now func() time.Time

	// Logger is for observability (optional).
	Logger es.Logger

	// RunID identifies the orchestrator in logs and pushed metrics (default: a random UUID).
	RunID string

	// MetricsEnabled enables Prometheus metrics collection (default: true).
	// Set to false explicitly to disable metrics.
	MetricsEnabled *bool
}

func (cfg *Config) applyDefaults() {
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.LocalDir == "" {
		cfg.LocalDir = "."
	}
	if cfg.Symlink == "" {
		cfg.Symlink = DefaultSymlink
	}
	if cfg.DataDirPrefix == "" {
		cfg.DataDirPrefix = DefaultDataDirPrefix
	}
	if cfg.Hooks == nil {
		cfg.Hooks = NopHooks{}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Database != nil {
		db := *cfg.Database
		cfg.Database = &db
		if db.Dialect == "" {
			db.Dialect = pupdeploy.DialectMySQL
		}
		if db.Table == "" {
			db.Table = migrations.DefaultTable
		}
		if db.Attempts <= 0 {
			db.Attempts = DefaultCredentialTry
		}
	}

	// Copy the slices so later changes by the caller do not leak in.
	cfg.Hosts = append([]pupdeploy.Host(nil), cfg.Hosts...)
	cfg.RsyncExcludes = append([]string(nil), cfg.RsyncExcludes...)
	cfg.DataDirs = append([]string(nil), cfg.DataDirs...)
	cfg.TargetFiles = append([]string(nil), cfg.TargetFiles...)
	cfg.Invalidators = append([]cache.HostInvalidator(nil), cfg.Invalidators...)
	cfg.Notifiers = append([]cache.Notifier(nil), cfg.Notifiers...)
}

func (cfg Config) validate() error {
	switch {
	case cfg.Project == "":
		return fmt.Errorf("%w: project is required", pupdeploy.ErrConfiguration)
	case len(cfg.Hosts) == 0:
		return fmt.Errorf("%w: at least one host is required", pupdeploy.ErrConfiguration)
	case cfg.RemoteDir == "":
		return fmt.Errorf("%w: remote directory is required", pupdeploy.ErrConfiguration)
	case cfg.Runner == nil:
		return fmt.Errorf("%w: runner is required", pupdeploy.ErrConfiguration)
	case cfg.Syncer == nil:
		return fmt.Errorf("%w: syncer is required", pupdeploy.ErrConfiguration)
	case cfg.Prompter == nil:
		return fmt.Errorf("%w: prompter is required", pupdeploy.ErrConfiguration)
	case len(cfg.TargetFiles) > 0 && cfg.Target == "":
		return fmt.Errorf("%w: target specific files need a target", pupdeploy.ErrConfiguration)
	}

	if db := cfg.Database; db != nil {
		if db.Patches == nil || db.Open == nil {
			return fmt.Errorf("%w: database patching needs a patch source and a store", pupdeploy.ErrConfiguration)
		}
		if !db.Dialect.Valid() {
			return fmt.Errorf("%w: unknown dialect %q", pupdeploy.ErrConfiguration, db.Dialect)
		}
	}

	return nil
}
