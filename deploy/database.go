package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/confirm"
	"github.com/getpup/pupdeploy/migration"
	"github.com/getpup/pupdeploy/patch"
	"github.com/getpup/pupdeploy/release"
	"github.com/getpup/pupdeploy/store"
	"github.com/getpup/pupsourcing/es"
)

// SkipDatabase as a database name disables patching for the run.
const SkipDatabase = "skip"

// Prompts asked during the database check.
const (
	PromptDatabaseName     = "Database name"
	PromptDatabaseUser     = "Database username"
	PromptDatabasePassword = "Database password"
	PromptApplyPatches     = "Apply database patches?"
	PromptRevertPatches    = "Rollback database patches?"
)

// PromptRegister returns the question asked before registering n patches as done.
func PromptRegister(n int) string {
	return fmt.Sprintf("Register the other %d patches as done?", n)
}

// dbSession is the database part of one run. It is filled during the check
// phase and read by the phases that follow.
type dbSession struct {
	store    store.TrackingStore
	plan     migration.Plan
	apply    bool
	register bool
}

func (s *dbSession) active() bool {
	return s != nil && s.store != nil
}

type database struct {
	config    DatabaseConfig
	prompter  confirm.Prompter
	logger    es.Logger
	bootstrap patch.Patch
}

func newDatabase(cfg DatabaseConfig, prompter confirm.Prompter, bootstrap patch.Patch, logger es.Logger) *database {
	return &database{config: cfg, prompter: prompter, bootstrap: bootstrap, logger: logger}
}

// close releases s if it holds a connection.
func (d *database) close(ctx context.Context, s store.TrackingStore) {
	c, ok := s.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil && d.logger != nil {
		d.logger.Error(ctx, "failed to close tracking store", "error", err)
	}
}

// connect asks for missing credentials, opens the store and checks access.
// A nil store means the operator skipped the database.
func (d *database) connect(ctx context.Context, checkAccess bool) (store.TrackingStore, error) {
	given := d.config.Credentials

	creds := given
	if creds.Database == "" {
		name, err := d.prompter.Input(ctx, PromptDatabaseName, SkipDatabase, false)
		if err != nil {
			return nil, err
		}
		creds.Database = name
	}
	if creds.Database == "" || creds.Database == SkipDatabase || creds.Database == "no" {
		if d.logger != nil {
			d.logger.Info(ctx, "skip database patches")
		}
		return nil, nil
	}

	for attempt := 1; ; attempt++ {
		if given.User == "" {
			user, err := d.prompter.Input(ctx, PromptDatabaseUser, "root", false)
			if err != nil {
				return nil, err
			}
			creds.User = user
		}
		if given.Password == "" {
			password, err := d.prompter.Input(ctx, PromptDatabasePassword, "", true)
			if err != nil && !errors.Is(err, confirm.ErrNonInteractive) {
				return nil, err
			}
			creds.Password = password
		}

		s, err := d.config.Open(ctx, creds)
		if err != nil {
			return nil, fmt.Errorf("failed to open tracking store: %w", err)
		}
		if !checkAccess {
			return s, nil
		}

		err = s.CheckAccess(ctx)
		if err == nil {
			if d.logger != nil {
				d.logger.Info(ctx, "database check passed", "database", creds.Database, "user", creds.User)
			}
			return s, nil
		}
		d.close(ctx, s)
		if !errors.Is(err, store.ErrAccessDenied) {
			return nil, err
		}

		if d.logger != nil {
			d.logger.Error(ctx, "database access denied", "database", creds.Database, "user", creds.User, "attempt", attempt)
		}
		if attempt >= d.config.Attempts || (given.User != "" && given.Password != "") {
			return nil, err
		}
	}
}

// check resolves the plan for action and asks which parts of it to run.
// With interactive false nothing is asked and nothing is confirmed.
func (d *database) check(ctx context.Context, action pupdeploy.Action, tl release.Timeline, interactive bool) (_ *dbSession, err error) {
	s, err := d.connect(ctx, interactive)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return &dbSession{}, nil
	}
	defer func() {
		if err != nil {
			d.close(ctx, s)
		}
	}()

	resolver, err := migration.NewResolver(migration.Config{
		Patches:   d.config.Patches,
		Store:     s,
		Bootstrap: d.bootstrap,
		Logger:    d.logger,
	})
	if err != nil {
		return nil, err
	}

	plan, err := resolver.Resolve(ctx, action, tl)
	if err != nil {
		return nil, err
	}

	session := &dbSession{store: s, plan: plan}

	if d.logger != nil {
		for _, line := range plan.Summary() {
			d.logger.Info(ctx, line)
		}
	}

	if !interactive {
		return session, nil
	}

	if len(plan.Patches) > 0 {
		question := PromptApplyPatches
		if action == pupdeploy.ActionRollback {
			question = PromptRevertPatches
		}
		if session.apply, err = d.prompter.Confirm(ctx, question); err != nil {
			return nil, err
		}
	}

	if len(plan.RegisterOnly) > 0 {
		if session.register, err = d.prompter.Confirm(ctx, PromptRegister(len(plan.RegisterOnly))); err != nil {
			return nil, err
		}
	}

	return session, nil
}

// run applies the confirmed parts of the plan.
// It returns the number of patches run and registered.
func (d *database) run(ctx context.Context, s *dbSession, tl release.Timeline, releaseDir string) (ran, registered int, err error) {
	if !s.active() {
		return 0, 0, nil
	}

	patches := s.plan.Patches
	if !s.apply {
		patches = nil
		// Registering needs the tracking table, which only the bootstrap patch creates.
		if s.register && s.plan.Mode == migration.ModeLegacy {
			patches = []patch.Patch{d.bootstrap}
		}
	}

	if len(patches) > 0 {
		err := s.store.Apply(ctx, store.ApplyRequest{
			Action:     s.plan.Action,
			Patches:    patches,
			At:         tl.Current.Timestamp,
			ReleaseDir: releaseDir,
		})
		if err != nil {
			return 0, 0, fmt.Errorf("failed to %s database patches: %w", s.plan.Action, err)
		}
		if d.logger != nil {
			d.logger.Info(ctx, "database patches done", "action", s.plan.Action, "patches", patch.Names(patches))
		}
	}

	if s.register && len(s.plan.RegisterOnly) > 0 {
		if err := s.store.Register(ctx, s.plan.RegisterOnly); err != nil {
			return len(patches), 0, fmt.Errorf("failed to register patches as done: %w", err)
		}
		if d.logger != nil {
			d.logger.Info(ctx, "patches registered as done", "count", len(s.plan.RegisterOnly))
		}
		registered = len(s.plan.RegisterOnly)
	}

	return len(patches), registered, nil
}
