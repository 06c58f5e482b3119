package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/cache"
	"github.com/getpup/pupdeploy/confirm"
	"github.com/getpup/pupdeploy/deploy"
	"github.com/getpup/pupdeploy/patch"
	"github.com/getpup/pupdeploy/remote"
	"github.com/getpup/pupdeploy/store"
	"github.com/getpup/pupdeploy/store/cli"
	"github.com/getpup/pupdeploy/store/sqlstore"
	"github.com/getpup/pupsourcing/es"
)

// Runtime holds the collaborators a configuration is bound to.
type Runtime struct {
	// Runner runs commands on the hosts (required).
	Runner remote.Runner

	// Prompter asks the operator (required).
	Prompter confirm.Prompter

	// Logger is for observability (optional).
	Logger es.Logger

	// Redis replaces the client built from the redis section (optional).
	Redis cache.RedisClient
}

// SSHConfig returns the ssh transport configuration.
func (f File) SSHConfig(logger es.Logger) remote.SSHConfig {
	return remote.SSHConfig{
		User:    f.SSH.User,
		SSHPath: f.SSH.Path,
		Options: append([]string(nil), f.SSH.Options...),
		Timeout: f.CommandTimeout,
		Logger:  logger,
	}
}

// Deploy builds the orchestrator configuration bound to rt.
func (f File) Deploy(rt Runtime) (deploy.Config, error) {
	if rt.Runner == nil || rt.Prompter == nil {
		return deploy.Config{}, fmt.Errorf("%w: runtime needs a runner and a prompter", pupdeploy.ErrConfiguration)
	}

	loc, err := f.Location()
	if err != nil {
		return deploy.Config{}, err
	}

	syncer, err := remote.NewRsyncSyncer(remote.RsyncConfig{
		RsyncPath:   f.SSH.RsyncPath,
		User:        f.SSH.User,
		RemoteShell: f.remoteShell(),
		Runner:      rt.Runner,
		Timeout:     f.SyncTimeout,
		Logger:      rt.Logger,
	})
	if err != nil {
		return deploy.Config{}, err
	}

	metricsEnabled := f.MetricsEnabled()
	cfg := deploy.Config{
		Project:        f.Project,
		Hosts:          f.HostList(),
		RemoteDir:      f.RemoteDir,
		LocalDir:       f.LocalDir,
		Target:         f.Target,
		Symlink:        f.Symlink,
		RsyncExcludes:  append([]string(nil), f.RsyncExcludes...),
		DataDirs:       append([]string(nil), f.DataDirs...),
		DataDirPrefix:  f.DataDirPrefix,
		TargetFiles:    append([]string(nil), f.TargetFiles...),
		Workers:        f.WorkerConfig(),
		Runner:         rt.Runner,
		Syncer:         syncer,
		Prompter:       rt.Prompter,
		Concurrency:    f.Concurrency,
		Location:       loc,
		Logger:         rt.Logger,
		MetricsEnabled: &metricsEnabled,
	}

	if f.Database != nil {
		db, err := f.database(rt, loc)
		if err != nil {
			return deploy.Config{}, err
		}
		cfg.Database = db
	}

	if f.Cache.Enabled() {
		marker, err := cache.NewVersionMarker(cache.MarkerConfig{
			Template: f.Cache.Template,
			Path:     f.Cache.Path,
			URLs:     f.Cache.SetrevURLs,
			Hosts:    cfg.Hosts,
			Runner:   rt.Runner,
			Logger:   rt.Logger,
		})
		if err != nil {
			return deploy.Config{}, err
		}
		cfg.Invalidators = append(cfg.Invalidators, marker)
	}

	if f.Redis != nil {
		client := rt.Redis
		if client == nil {
			client = cache.NewRedisClient(f.Redis.Addr, f.Redis.Password, f.Redis.DB)
		}
		cfg.Notifiers = append(cfg.Notifiers, cache.NewRedisNotifier(cache.RedisConfig{
			Client: client,
			Prefix: f.Redis.Prefix,
			Logger: rt.Logger,
		}))
	}

	return cfg, nil
}

// remoteShell is the ssh command rsync uses when ssh options are configured.
func (f File) remoteShell() string {
	if f.SSH.Path == "" && len(f.SSH.Options) == 0 {
		return ""
	}
	args := []string{"ssh"}
	if f.SSH.Path != "" {
		args[0] = f.SSH.Path
	}
	args = append(args, f.SSH.Options...)

	quoted := remote.Quote(args[0])
	for _, a := range args[1:] {
		quoted += " " + remote.Quote(a)
	}
	return quoted
}

func (f File) database(rt Runtime, loc *time.Location) (*deploy.DatabaseConfig, error) {
	db := f.Database
	dialect := pupdeploy.Dialect(db.Dialect)

	repo := patch.NewRepository(patch.Config{
		FS:       os.DirFS(f.LocalDir),
		Dirs:     append([]string(nil), db.PatchDirs...),
		Location: loc,
		Logger:   rt.Logger,
	})

	var open deploy.OpenStore
	switch db.Mode {
	case ModeDirect:
		open = func(ctx context.Context, creds store.Credentials) (store.TrackingStore, error) {
			dsn, err := sqlstore.DSN(dialect, db.Host, creds)
			if err != nil {
				return nil, err
			}
			conn, err := sqlstore.Connect(dsn, sqlstore.Config{
				Dialect:  dialect,
				Table:    db.Table,
				Location: loc,
				Logger:   rt.Logger,
			})
			if err != nil {
				return nil, err
			}
			return conn, nil
		}
	default:
		base, err := cli.New(cli.Config{
			Dialect:      dialect,
			Table:        db.Table,
			ControlHost:  pupdeploy.Host(db.ControlHost),
			DatabaseHost: db.Host,
			ClientPath:   db.Client,
			PatcherPath:  db.Patcher,
			Runner:       rt.Runner,
			Location:     loc,
			Logger:       rt.Logger,
		})
		if err != nil {
			return nil, err
		}
		open = func(ctx context.Context, creds store.Credentials) (store.TrackingStore, error) {
			return base.WithCredentials(creds), nil
		}
	}

	return &deploy.DatabaseConfig{
		Patches: repo,
		Open:    open,
		Dialect: dialect,
		Table:   db.Table,
		Credentials: store.Credentials{
			Database: db.Name,
			User:     db.User,
			Password: db.Password,
		},
		Attempts: db.Attempts,
	}, nil
}
