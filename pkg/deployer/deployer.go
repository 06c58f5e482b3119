// Package deployer is the public entry point for embedding the release
// orchestrator in another program.
package deployer

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	rootpkg "github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/cache"
	"github.com/getpup/pupdeploy/confirm"
	"github.com/getpup/pupdeploy/deploy"
	"github.com/getpup/pupdeploy/metrics"
	"github.com/getpup/pupdeploy/pkg/migrations"
	"github.com/getpup/pupdeploy/remote"
	"github.com/getpup/pupsourcing/es"
)

// Re-export core types from root package
type (
	// Host is a remote application server.
	Host = rootpkg.Host

	// Action is the direction of a release operation.
	Action = rootpkg.Action

	// Dialect selects the SQL flavour of the tracking table.
	Dialect = rootpkg.Dialect

	// Hooks run project specific steps on each host.
	Hooks = deploy.Hooks

	// HookContext tells a hook where it runs.
	HookContext = deploy.HookContext

	// NopHooks does nothing.
	NopHooks = deploy.NopHooks
)

// Option configures a Deployer.
type Option func(*config)

// config holds the internal configuration for creating a Deployer.
type config struct {
	deploy   deploy.Config
	ssh      remote.SSHConfig
	autoInit bool
}

// New creates a new deploy Orchestrator with the given options.
//
// Required options:
//   - WithProject: project name used in release directory names
//   - WithHosts: application servers
//   - WithRemoteDir: directory holding the releases on every host
//
// Optional configuration (with defaults):
//   - WithLocalDir: project tree to deploy (default: ".")
//   - WithTarget: environment name selecting target specific files
//   - WithDataDirs: shared directories linked into every release
//   - WithRsyncExcludes: local files with rsync exclude patterns
//   - WithTargetFiles: files replaced by their target specific variant
//   - WithWorkers: worker processes restarted after activation
//   - WithDatabase: schema patching (default: disabled)
//   - WithSSH: ssh transport settings (default: ssh as the current user)
//   - WithRunner / WithSyncer: custom transports (default: ssh and rsync)
//   - WithPrompter: operator prompts (default: terminal, or line based on pipes)
//   - WithInvalidators / WithNotifiers: cache invalidation after activation
//   - WithHooks: project specific steps (default: NopHooks)
//   - WithConcurrency: hosts worked on at once (default: 4)
//   - WithLocation: time zone of release names (default: time.Local)
//   - WithLogger: logger for observability (default: nil)
//   - WithRunID: identifier in logs and pushed metrics (default: random UUID)
//   - WithMetricsEnabled: enable Prometheus metrics (default: true)
//   - WithAutoInit: discover the releases while constructing (default: false)
//
// Example:
//
//	d, err := deployer.New(ctx,
//	    deployer.WithProject("shop"),
//	    deployer.WithHosts("web1", "web2"),
//	    deployer.WithRemoteDir("/srv/shop"),
//	)
//
// Returns an error if any required option is missing.
func New(ctx context.Context, opts ...Option) (*deploy.Orchestrator, error) {
	cfg := &config{}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	// Validate required fields
	if cfg.deploy.Project == "" {
		return nil, fmt.Errorf("%w: project is required: use WithProject option", rootpkg.ErrConfiguration)
	}
	if len(cfg.deploy.Hosts) == 0 {
		return nil, fmt.Errorf("%w: hosts are required: use WithHosts option", rootpkg.ErrConfiguration)
	}
	if cfg.deploy.RemoteDir == "" {
		return nil, fmt.Errorf("%w: remote directory is required: use WithRemoteDir option", rootpkg.ErrConfiguration)
	}

	// Create transports if not provided
	if cfg.deploy.Runner == nil {
		ssh := cfg.ssh
		ssh.Logger = cfg.deploy.Logger
		if ssh.Observe == nil && (cfg.deploy.MetricsEnabled == nil || *cfg.deploy.MetricsEnabled) {
			ssh.Observe = metrics.NewCollector(cfg.deploy.Project).ObserveRemoteCommand
		}
		cfg.deploy.Runner = remote.NewSSHRunner(ssh)
	}
	if cfg.deploy.Syncer == nil {
		syncer, err := remote.NewRsyncSyncer(remote.RsyncConfig{
			User:   cfg.ssh.User,
			Runner: cfg.deploy.Runner,
			Logger: cfg.deploy.Logger,
		})
		if err != nil {
			return nil, err
		}
		cfg.deploy.Syncer = syncer
	}
	if cfg.deploy.Prompter == nil {
		cfg.deploy.Prompter = confirm.New(confirm.Options{In: os.Stdin, Out: os.Stderr})
	}

	orch, err := deploy.New(cfg.deploy)
	if err != nil {
		return nil, err
	}

	if cfg.autoInit {
		if err := orch.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to discover releases: %w", err)
		}
	}

	return orch, nil
}

// WithProject sets the project name. Releases are named {project}_{timestamp}.
func WithProject(project string) Option {
	return func(c *config) {
		c.deploy.Project = project
	}
}

// WithHosts sets the application servers. The first one is used for
// discovery, dry runs and the database.
func WithHosts(hosts ...string) Option {
	return func(c *config) {
		c.deploy.Hosts = make([]Host, len(hosts))
		for i, h := range hosts {
			c.deploy.Hosts[i] = Host(h)
		}
	}
}

// WithRemoteDir sets the directory holding the releases on every host.
func WithRemoteDir(dir string) Option {
	return func(c *config) {
		c.deploy.RemoteDir = dir
	}
}

// WithLocalDir sets the project tree to deploy.
func WithLocalDir(dir string) Option {
	return func(c *config) {
		c.deploy.LocalDir = dir
	}
}

// WithTarget sets the environment name, such as "prod".
func WithTarget(target string) Option {
	return func(c *config) {
		c.deploy.Target = target
	}
}

// WithSymlink sets the name of the link to the active release.
func WithSymlink(name string) Option {
	return func(c *config) {
		c.deploy.Symlink = name
	}
}

// WithDataDirs sets the shared data directories. They live in
// {remoteDir}/{prefix}/{dir} and are linked into every release.
func WithDataDirs(prefix string, dirs ...string) Option {
	return func(c *config) {
		c.deploy.DataDirPrefix = prefix
		c.deploy.DataDirs = dirs
	}
}

// WithRsyncExcludes sets local files with rsync exclude patterns.
func WithRsyncExcludes(files ...string) Option {
	return func(c *config) {
		c.deploy.RsyncExcludes = files
	}
}

// WithTargetFiles sets files replaced by their target specific variant.
func WithTargetFiles(files ...string) Option {
	return func(c *config) {
		c.deploy.TargetFiles = files
	}
}

// WithWorkers sets the worker processes restarted after activation.
func WithWorkers(workers deploy.WorkerConfig) Option {
	return func(c *config) {
		c.deploy.Workers = workers
	}
}

// WithDatabase enables schema patching.
func WithDatabase(db deploy.DatabaseConfig) Option {
	return func(c *config) {
		c.deploy.Database = &db
	}
}

// WithSSH sets the ssh transport used when no runner is given.
func WithSSH(ssh remote.SSHConfig) Option {
	return func(c *config) {
		c.ssh = ssh
	}
}

// WithRunner sets a custom command runner.
func WithRunner(runner remote.Runner) Option {
	return func(c *config) {
		c.deploy.Runner = runner
	}
}

// WithSyncer sets a custom file syncer.
func WithSyncer(syncer remote.Syncer) Option {
	return func(c *config) {
		c.deploy.Syncer = syncer
	}
}

// WithPrompter sets how the operator is asked.
func WithPrompter(prompter confirm.Prompter) Option {
	return func(c *config) {
		c.deploy.Prompter = prompter
	}
}

// WithInvalidators adds per host cache invalidation.
func WithInvalidators(invalidators ...cache.HostInvalidator) Option {
	return func(c *config) {
		c.deploy.Invalidators = append(c.deploy.Invalidators, invalidators...)
	}
}

// WithNotifiers adds release notifications sent once per run.
func WithNotifiers(notifiers ...cache.Notifier) Option {
	return func(c *config) {
		c.deploy.Notifiers = append(c.deploy.Notifiers, notifiers...)
	}
}

// WithHooks sets project specific steps.
func WithHooks(hooks Hooks) Option {
	return func(c *config) {
		c.deploy.Hooks = hooks
	}
}

// WithConcurrency sets how many hosts are worked on at once.
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.deploy.Concurrency = n
	}
}

// WithLocation sets the time zone of release names.
func WithLocation(loc *time.Location) Option {
	return func(c *config) {
		c.deploy.Location = loc
	}
}

// WithClock sets the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.deploy.Now = now
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger es.Logger) Option {
	return func(c *config) {
		c.deploy.Logger = logger
	}
}

// WithRunID sets the identifier attached to logs and pushed metrics.
func WithRunID(runID string) Option {
	return func(c *config) {
		c.deploy.RunID = runID
	}
}

// WithMetricsEnabled enables or disables Prometheus metrics collection.
func WithMetricsEnabled(enabled bool) Option {
	return func(c *config) {
		c.deploy.MetricsEnabled = &enabled
	}
}

// WithAutoInit discovers the existing releases while New runs, so a
// configuration or connection problem surfaces before the first operation.
func WithAutoInit() Option {
	return func(c *config) {
		c.autoInit = true
	}
}

// RunMigrations creates the patch tracking table.
// Deploys create it themselves; this is for databases where the deploy
// account may not create tables.
func RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect, table string) error {
	if table == "" {
		table = migrations.DefaultTable
	}

	ddl, err := migrations.TrackingTableSQL(dialect, table)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}

	return nil
}
