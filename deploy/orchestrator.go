package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/cache"
	"github.com/getpup/pupdeploy/coordinator"
	"github.com/getpup/pupdeploy/lifecycle"
	"github.com/getpup/pupdeploy/metrics"
	"github.com/getpup/pupdeploy/migration"
	"github.com/getpup/pupdeploy/patch"
	"github.com/getpup/pupdeploy/release"
	"github.com/getpup/pupdeploy/remote"
	"github.com/getpup/pupdeploy/retention"
)

// Questions asked before each destructive phase.
const (
	PromptDeploy   = "Proceed with deployment?"
	PromptRollback = "Proceed with rollback?"
	PromptCleanup  = "Delete old directories?"
)

// Run names used in logs and metrics.
const (
	RunDeploy   = "deploy"
	RunRollback = "rollback"
	RunCleanup  = "cleanup"
)

// Orchestrator deploys, rolls back and cleans up releases of one project.
// Runs are serialized; an Orchestrator may be reused for several runs.
type Orchestrator struct {
	config      Config
	runID       string
	namer       *release.Namer
	coordinator *coordinator.Coordinator
	collector   *metrics.Collector
	database    *database

	mu         sync.Mutex
	timeline   release.Timeline
	discovered bool
}

// Compile-time check that Orchestrator implements Deployer.
var _ pupdeploy.Deployer = (*Orchestrator)(nil)

// New creates a new Orchestrator with the given configuration.
// Returns ErrConfiguration if a required option is missing.
func New(cfg Config) (*Orchestrator, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	coord, err := coordinator.New(coordinator.Config{
		Hosts:       cfg.Hosts,
		Concurrency: cfg.Concurrency,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	// Create metrics collector if enabled (default: true)
	var collector *metrics.Collector
	metricsEnabled := true
	if cfg.MetricsEnabled != nil {
		metricsEnabled = *cfg.MetricsEnabled
	}
	if metricsEnabled {
		collector = metrics.NewCollector(cfg.Project)
	}

	var db *database
	if cfg.Database != nil {
		bootstrap, err := patch.Bootstrap(cfg.Database.Dialect, cfg.Database.Table, cfg.Location)
		if err != nil {
			return nil, err
		}
		db = newDatabase(*cfg.Database, cfg.Prompter, bootstrap, cfg.Logger)
	}

	return &Orchestrator{
		config:      cfg,
		runID:       cfg.RunID,
		namer:       release.NewNamer(cfg.Project, cfg.Location),
		coordinator: coord,
		collector:   collector,
		database:    db,
	}, nil
}

// RunID identifies this orchestrator in logs and pushed metrics.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Init discovers the existing releases on the first host and names the
// release the next run creates. Runs call it themselves when needed.
func (o *Orchestrator) Init(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.discover(ctx)
}

// Timeline returns the releases found by the last discovery.
func (o *Orchestrator) Timeline() release.Timeline {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.timeline
}

// Deploy syncs a new release to every host, applies pending schema patches,
// activates the release and deletes old releases.
func (o *Orchestrator) Deploy(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := o.begin(ctx, RunDeploy)
	return o.finish(ctx, r, o.deploy(ctx, r))
}

// Rollback reactivates the previous release, reverts the schema patches of
// the last release and deletes it.
// Returns ErrNoPreviousRelease if fewer than two releases exist.
func (o *Orchestrator) Rollback(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := o.begin(ctx, RunRollback)
	return o.finish(ctx, r, o.rollback(ctx, r))
}

// Cleanup deletes releases selected by the retention policy on every host.
func (o *Orchestrator) Cleanup(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := o.begin(ctx, RunCleanup)
	err := func() error {
		if err := o.enter(ctx, r, pupdeploy.PhaseDiscover); err != nil {
			return err
		}
		if err := o.ensureDiscovered(ctx); err != nil {
			return err
		}
		if err := o.enter(ctx, r, pupdeploy.PhaseCleanup); err != nil {
			return err
		}
		if err := o.cleanup(ctx, r); err != nil {
			return err
		}
		return o.enter(ctx, r, pupdeploy.PhaseDone)
	}()
	return o.finish(ctx, r, err)
}

// Plan resolves the migration plan for action without asking anything or
// changing the database. Without database configuration the plan is empty.
func (o *Orchestrator) Plan(ctx context.Context, action pupdeploy.Action) (migration.Plan, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer func() { o.discovered = false }()

	if !action.Valid() {
		return migration.Plan{}, fmt.Errorf("%w: unknown action %q", pupdeploy.ErrConfiguration, action)
	}
	if err := o.ensureDiscovered(ctx); err != nil {
		return migration.Plan{}, err
	}
	if action == pupdeploy.ActionRollback && o.timeline.Previous.IsZero() {
		return migration.Plan{}, pupdeploy.ErrNoPreviousRelease
	}
	if o.database == nil {
		return migration.Plan{Action: action}, nil
	}

	session, err := o.database.check(ctx, action, o.timeline, false)
	if err != nil {
		return migration.Plan{}, err
	}
	if !session.active() {
		return migration.Plan{Action: action}, nil
	}
	o.database.close(ctx, session.store)
	return session.plan, nil
}

// run is the state of one Deploy, Rollback or Cleanup call.
type run struct {
	action    string
	lifecycle *lifecycle.Manager
	db        *dbSession
	renames   []Rename

	// activated holds the releases this run pointed the symlink at.
	activated map[string]bool
}

func (o *Orchestrator) begin(ctx context.Context, action string) *run {
	var observer lifecycle.Observer
	if o.collector != nil {
		observer = o.collector
	}

	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "run started", "action", action, "project", o.config.Project, "runID", o.runID)
	}

	return &run{
		action: action,
		lifecycle: lifecycle.New(lifecycle.Config{
			Action:   action,
			Observer: observer,
			Logger:   o.config.Logger,
			Now:      o.config.Now,
		}),
		activated: make(map[string]bool),
	}
}

func (o *Orchestrator) finish(ctx context.Context, r *run, err error) error {
	// The next run discovers again; the remote directory changed.
	o.discovered = false

	if r.db.active() {
		o.database.close(ctx, r.db.store)
	}

	result := metrics.ResultSuccess
	switch {
	case err != nil:
		err = r.lifecycle.Fail(ctx, err)
		result = metrics.ResultFailure
	case r.lifecycle.Phase() == pupdeploy.PhaseAborted:
		result = metrics.ResultAborted
	}

	if o.collector != nil {
		o.collector.IncRun(r.action, result, o.config.Now())
	}

	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "run finished", "action", r.action, "result", result, "phase", r.lifecycle.Phase())
	}

	return err
}

func (o *Orchestrator) enter(ctx context.Context, r *run, phase pupdeploy.Phase) error {
	return r.lifecycle.Transition(ctx, phase)
}

func (o *Orchestrator) abort(ctx context.Context, r *run) error {
	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "run declined by operator", "action", r.action, "phase", r.lifecycle.Phase())
	}
	return o.enter(ctx, r, pupdeploy.PhaseAborted)
}

func (o *Orchestrator) ensureDiscovered(ctx context.Context) error {
	if o.discovered {
		return nil
	}
	return o.discover(ctx)
}

func (o *Orchestrator) discover(ctx context.Context) error {
	first := o.coordinator.First()

	// 1. Make sure the release root and the data directories exist
	if err := o.prepareHost(ctx, first); err != nil {
		return err
	}

	// 2. List the releases
	res, err := o.exec(ctx, first, listScript(o.config.RemoteDir))
	if err != nil {
		return fmt.Errorf("failed to list releases: %w", err)
	}

	// 3. Derive the timeline
	current := o.namer.New(o.config.Now())
	tl, err := release.NewTimeline(o.namer.Discover(res.Output), current)
	if err != nil {
		return err
	}

	o.timeline = tl
	o.discovered = true

	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "releases discovered",
			"host", first,
			"previous", tl.Previous.Name,
			"last", tl.Last.Name,
			"current", tl.Current.Name)
	}

	return nil
}

func (o *Orchestrator) deploy(ctx context.Context, r *run) error {
	// 1. Discover
	if err := o.enter(ctx, r, pupdeploy.PhaseDiscover); err != nil {
		return err
	}
	if err := o.ensureDiscovered(ctx); err != nil {
		return err
	}
	tl := o.timeline

	// 2. Check everything before touching a release
	if err := o.enter(ctx, r, pupdeploy.PhaseCheck); err != nil {
		return err
	}
	if err := o.coordinator.ForEach(ctx, "prepare", o.coordinator.Rest(), o.prepareHost); err != nil {
		return err
	}
	if err := o.checkLocalFiles(); err != nil {
		return err
	}
	if err := o.dryRun(ctx, tl); err != nil {
		return err
	}
	if o.database != nil {
		session, err := o.database.check(ctx, pupdeploy.ActionUpdate, tl, true)
		if err != nil {
			return err
		}
		r.db = session
	}
	renames, err := renames(o.config.LocalDir, o.config.Target, o.config.TargetFiles)
	if err != nil {
		return err
	}
	r.renames = renames
	if o.config.Logger != nil {
		for _, rn := range renames {
			o.config.Logger.Info(ctx, "target specific file", "from", rn.From, "to", rn.To)
		}
	}

	ok, err := o.config.Prompter.Confirm(ctx, PromptDeploy)
	if err != nil {
		return err
	}
	if !ok {
		return o.abort(ctx, r)
	}
	if err := o.enter(ctx, r, pupdeploy.PhaseConfirmed); err != nil {
		return err
	}

	// 3. Sync every host, then patch the database once
	if err := o.enter(ctx, r, pupdeploy.PhaseExecute); err != nil {
		return err
	}
	if err := o.coordinator.ForEachHost(ctx, "sync", func(ctx context.Context, host pupdeploy.Host) error {
		return o.syncHost(ctx, host, tl, r.renames)
	}); err != nil {
		return err
	}
	if o.database != nil {
		ran, registered, err := o.database.run(ctx, r.db, tl, o.releaseDir(tl.Current))
		if err != nil {
			return err
		}
		if o.collector != nil {
			o.collector.AddPatches(string(pupdeploy.ActionUpdate), ran)
			o.collector.AddPatches("register", registered)
		}
	}

	// 4. Switch every host to the new release
	if err := o.enter(ctx, r, pupdeploy.PhaseActivate); err != nil {
		return err
	}
	if err := o.activate(ctx, r, tl.Current); err != nil {
		return err
	}

	// 5. Hooks, workers and caches
	if err := o.enter(ctx, r, pupdeploy.PhasePost); err != nil {
		return err
	}
	ev := o.event(pupdeploy.ActionUpdate, tl, tl.Current)
	if err := o.coordinator.ForEachHost(ctx, "post", func(ctx context.Context, host pupdeploy.Host) error {
		hc := o.hookContext(host, tl.Current)
		if err := o.config.Hooks.PostDeploy(ctx, hc); err != nil {
			return fmt.Errorf("post-deploy hook: %w", err)
		}
		if err := o.restartWorkers(ctx, host, hc.ReleaseDir); err != nil {
			return err
		}
		return o.invalidate(ctx, host, hc.ReleaseDir, ev)
	}); err != nil {
		return err
	}
	o.notify(ctx, ev)

	// 6. Delete old releases
	if err := o.enter(ctx, r, pupdeploy.PhaseCleanup); err != nil {
		return err
	}
	if err := o.cleanup(ctx, r); err != nil {
		return err
	}

	return o.enter(ctx, r, pupdeploy.PhaseDone)
}

func (o *Orchestrator) rollback(ctx context.Context, r *run) error {
	// 1. Discover
	if err := o.enter(ctx, r, pupdeploy.PhaseDiscover); err != nil {
		return err
	}
	if err := o.ensureDiscovered(ctx); err != nil {
		return err
	}
	tl := o.timeline
	if tl.Previous.IsZero() {
		return pupdeploy.ErrNoPreviousRelease
	}

	// 2. Check
	if err := o.enter(ctx, r, pupdeploy.PhaseCheck); err != nil {
		return err
	}
	if err := o.coordinator.ForEach(ctx, "prepare", o.coordinator.Rest(), o.prepareHost); err != nil {
		return err
	}
	if o.database != nil {
		session, err := o.database.check(ctx, pupdeploy.ActionRollback, tl, true)
		if err != nil {
			return err
		}
		r.db = session
	}

	ok, err := o.config.Prompter.Confirm(ctx, PromptRollback)
	if err != nil {
		return err
	}
	if !ok {
		return o.abort(ctx, r)
	}
	if err := o.enter(ctx, r, pupdeploy.PhaseConfirmed); err != nil {
		return err
	}

	// 3. Switch every host back before the schema changes
	if err := o.enter(ctx, r, pupdeploy.PhaseActivate); err != nil {
		return err
	}
	if err := o.coordinator.ForEachHost(ctx, "pre-rollback", func(ctx context.Context, host pupdeploy.Host) error {
		if err := o.config.Hooks.PreRollback(ctx, o.hookContext(host, tl.Previous)); err != nil {
			return fmt.Errorf("pre-rollback hook: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}
	if err := o.activate(ctx, r, tl.Previous); err != nil {
		return err
	}

	// 4. Revert the patches of the last release; its directory still holds them
	if err := o.enter(ctx, r, pupdeploy.PhaseExecute); err != nil {
		return err
	}
	if o.database != nil {
		ran, _, err := o.database.run(ctx, r.db, tl, o.releaseDir(tl.Last))
		if err != nil {
			return err
		}
		if o.collector != nil {
			o.collector.AddPatches(string(pupdeploy.ActionRollback), ran)
		}
	}

	// 5. Caches, hooks and workers
	if err := o.enter(ctx, r, pupdeploy.PhasePost); err != nil {
		return err
	}
	ev := o.event(pupdeploy.ActionRollback, tl, tl.Previous)
	if err := o.coordinator.ForEachHost(ctx, "post", func(ctx context.Context, host pupdeploy.Host) error {
		hc := o.hookContext(host, tl.Previous)
		if err := o.invalidate(ctx, host, hc.ReleaseDir, ev); err != nil {
			return err
		}
		if err := o.config.Hooks.PostRollback(ctx, hc); err != nil {
			return fmt.Errorf("post-rollback hook: %w", err)
		}
		return o.restartWorkers(ctx, host, hc.ReleaseDir)
	}); err != nil {
		return err
	}
	o.notify(ctx, ev)

	// 6. Delete the release that was rolled back
	if err := o.enter(ctx, r, pupdeploy.PhaseRetire); err != nil {
		return err
	}
	if err := o.coordinator.ForEachHost(ctx, "retire", func(ctx context.Context, host pupdeploy.Host) error {
		_, err := o.exec(ctx, host, removeScript(o.config.RemoteDir, []string{tl.Last.Name}))
		return err
	}); err != nil {
		return err
	}
	if o.collector != nil {
		o.collector.AddReleasesDeleted(len(o.config.Hosts))
	}

	return o.enter(ctx, r, pupdeploy.PhaseDone)
}

// cleanup deletes the releases the retention policy selects on each host,
// after confirmation. Declining skips the deletion without failing the run.
func (o *Orchestrator) cleanup(ctx context.Context, r *run) error {
	protected := o.timeline.Protected()
	for name := range r.activated {
		protected[name] = true
	}
	now := o.config.Now()

	var mu sync.Mutex
	selected := make(map[pupdeploy.Host][]retention.Decision)

	err := o.coordinator.ForEachHost(ctx, "retention", func(ctx context.Context, host pupdeploy.Host) error {
		res, err := o.exec(ctx, host, listScript(o.config.RemoteDir))
		if err != nil {
			return fmt.Errorf("failed to list releases: %w", err)
		}
		active, err := o.activeRelease(ctx, host)
		if err != nil {
			return err
		}

		var doomed []retention.Decision
		for _, d := range retention.Decide(o.namer.Discover(res.Output), now) {
			if !d.Delete || protected[d.Release.Name] || d.Release.Name == active {
				continue
			}
			doomed = append(doomed, d)
		}

		if len(doomed) > 0 {
			mu.Lock()
			selected[host] = doomed
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(selected) == 0 {
		if o.config.Logger != nil {
			o.config.Logger.Info(ctx, "no cleanup needed")
		}
		return nil
	}

	hosts := make([]pupdeploy.Host, 0, len(selected))
	total := 0
	for _, host := range o.coordinator.Hosts() {
		decisions, ok := selected[host]
		if !ok {
			continue
		}
		hosts = append(hosts, host)
		total += len(decisions)
		if o.config.Logger != nil {
			for _, d := range decisions {
				o.config.Logger.Info(ctx, "release selected for deletion", "host", host, "release", d.Release.Name, "reason", d.Reason)
			}
		}
	}

	ok, err := o.config.Prompter.Confirm(ctx, PromptCleanup)
	if err != nil {
		return err
	}
	if !ok {
		if o.config.Logger != nil {
			o.config.Logger.Info(ctx, "cleanup declined", "releases", total)
		}
		return nil
	}

	err = o.coordinator.ForEach(ctx, "delete", hosts, func(ctx context.Context, host pupdeploy.Host) error {
		names := make([]string, len(selected[host]))
		for i, d := range selected[host] {
			names[i] = d.Release.Name
		}
		_, err := o.exec(ctx, host, removeScript(o.config.RemoteDir, names))
		return err
	})
	if err != nil {
		return err
	}

	if o.collector != nil {
		o.collector.AddReleasesDeleted(total)
	}
	return nil
}

// activeRelease returns the release the symlink of host points at, or "".
func (o *Orchestrator) activeRelease(ctx context.Context, host pupdeploy.Host) (string, error) {
	res, err := o.config.Runner.Run(ctx, remote.Command{
		Host:         host,
		Script:       readlinkScript(o.config.RemoteDir, o.config.Symlink),
		AllowFailure: true,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil || !res.Success() || len(res.Output) == 0 {
		return "", nil
	}
	return path.Base(strings.TrimSpace(res.Output[0])), nil
}

func (o *Orchestrator) prepareHost(ctx context.Context, host pupdeploy.Host) error {
	script := prepareScript(o.config.RemoteDir, o.config.DataDirPrefix, o.config.DataDirs)
	if _, err := o.exec(ctx, host, script); err != nil {
		return fmt.Errorf("failed to prepare remote directory: %w", err)
	}
	return nil
}

// checkLocalFiles verifies the local files a deploy reads exist.
func (o *Orchestrator) checkLocalFiles() error {
	for _, f := range o.config.RsyncExcludes {
		if _, err := os.Stat(o.localPath(f)); err != nil {
			return fmt.Errorf("%w: rsync exclude file: %w", pupdeploy.ErrConfiguration, err)
		}
	}

	for _, inv := range o.config.Invalidators {
		if c, ok := inv.(cache.LocalFiler); ok {
			for _, f := range c.LocalFiles() {
				if _, err := os.Stat(o.localPath(f)); err != nil {
					return fmt.Errorf("%w: cache version template: %w", pupdeploy.ErrConfiguration, err)
				}
			}
		}
	}

	return nil
}

func (o *Orchestrator) dryRun(ctx context.Context, tl release.Timeline) error {
	if !tl.HasHistory() {
		if o.config.Logger != nil {
			o.config.Logger.Info(ctx, "no deployment history found")
		}
		return nil
	}

	req := o.syncRequest(o.coordinator.First(), tl.Last)
	req.DryRun = true

	res, err := o.sync(ctx, req)
	if err != nil {
		return fmt.Errorf("rsync check failed: %w", err)
	}

	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "changed directories and files", "since", tl.Last.Name, "lines", len(res.Output))
		for _, line := range res.Output {
			o.config.Logger.Info(ctx, line)
		}
	}

	return nil
}

func (o *Orchestrator) syncHost(ctx context.Context, host pupdeploy.Host, tl release.Timeline, renames []Rename) error {
	hc := o.hookContext(host, tl.Current)

	// 1. Project hook
	if err := o.config.Hooks.PreDeploy(ctx, hc); err != nil {
		return fmt.Errorf("pre-deploy hook: %w", err)
	}

	// 2. Copy the tree, reusing unchanged files of the last release
	req := o.syncRequest(host, tl.Current)
	if tl.HasHistory() {
		req.CopyDest = o.releaseDir(tl.Last)
	}
	if _, err := o.sync(ctx, req); err != nil {
		return fmt.Errorf("rsync failed: %w", err)
	}

	// 3. Link the shared data directories
	if script := dataDirScript(o.config.RemoteDir, o.config.DataDirPrefix, hc.ReleaseDir, o.config.DataDirs); script != "" {
		if _, err := o.exec(ctx, host, script); err != nil {
			return fmt.Errorf("failed to link data directories: %w", err)
		}
	}

	// 4. Move target specific files into place
	if script := renameScript(hc.ReleaseDir, renames); script != "" {
		if _, err := o.exec(ctx, host, script); err != nil {
			return fmt.Errorf("failed to rename target specific files: %w", err)
		}
	}

	return nil
}

func (o *Orchestrator) activate(ctx context.Context, r *run, rel release.Release) error {
	err := o.coordinator.ForEachHost(ctx, "activate", func(ctx context.Context, host pupdeploy.Host) error {
		if _, err := o.exec(ctx, host, symlinkScript(o.config.RemoteDir, o.config.Symlink, rel.Name)); err != nil {
			return fmt.Errorf("failed to switch %s to %s: %w", o.config.Symlink, rel.Name, err)
		}
		return nil
	})

	// A failure may leave some hosts switched already.
	r.activated[rel.Name] = true

	if err == nil && o.config.Logger != nil {
		o.config.Logger.Info(ctx, "release activated", "release", rel.Name, "hosts", len(o.config.Hosts))
	}
	return err
}

func (o *Orchestrator) restartWorkers(ctx context.Context, host pupdeploy.Host, releaseDir string) error {
	script := workerScript(releaseDir, o.config.Target, o.config.Workers)
	if script == "" {
		return nil
	}
	if _, err := o.exec(ctx, host, script); err != nil {
		return fmt.Errorf("failed to restart workers: %w", err)
	}
	return nil
}

func (o *Orchestrator) invalidate(ctx context.Context, host pupdeploy.Host, releaseDir string, ev cache.Event) error {
	for _, inv := range o.config.Invalidators {
		if err := inv.Invalidate(ctx, host, releaseDir, ev); err != nil {
			return fmt.Errorf("cache invalidation: %w", err)
		}
	}
	return nil
}

// notify announces ev. Failures are logged; the release is already live.
func (o *Orchestrator) notify(ctx context.Context, ev cache.Event) {
	for _, n := range o.config.Notifiers {
		if err := n.Notify(ctx, ev); err != nil && o.config.Logger != nil {
			o.config.Logger.Error(ctx, "release notification failed", "release", ev.Release, "error", err)
		}
	}
}

func (o *Orchestrator) event(action pupdeploy.Action, tl release.Timeline, active release.Release) cache.Event {
	return cache.Event{
		Project:  o.config.Project,
		Action:   action,
		Release:  active.Name,
		Revision: tl.Current.Timestamp.Unix(),
		At:       tl.Current.Timestamp,
	}
}

func (o *Orchestrator) hookContext(host pupdeploy.Host, rel release.Release) HookContext {
	return HookContext{
		Host:       host,
		RemoteDir:  o.config.RemoteDir,
		Release:    rel,
		ReleaseDir: o.releaseDir(rel),
		Runner:     o.config.Runner,
	}
}

func (o *Orchestrator) releaseDir(rel release.Release) string {
	return path.Join(o.config.RemoteDir, rel.Name)
}

func (o *Orchestrator) localPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.config.LocalDir, filepath.FromSlash(name))
}

func (o *Orchestrator) syncRequest(host pupdeploy.Host, rel release.Release) remote.SyncRequest {
	excludeFrom := make([]string, len(o.config.RsyncExcludes))
	for i, f := range o.config.RsyncExcludes {
		excludeFrom[i] = o.localPath(f)
	}

	excludes := make([]string, len(o.config.DataDirs))
	for i, d := range o.config.DataDirs {
		excludes[i] = "/" + strings.Trim(d, "/")
	}
	sort.Strings(excludes)

	return remote.SyncRequest{
		Host:        host,
		Source:      o.config.LocalDir,
		Destination: o.releaseDir(rel),
		ExcludeFrom: excludeFrom,
		Excludes:    excludes,
	}
}

// exec runs script on host and fails on a non-zero exit.
func (o *Orchestrator) exec(ctx context.Context, host pupdeploy.Host, script string) (remote.Result, error) {
	res, err := o.config.Runner.Run(ctx, remote.Command{Host: host, Script: script})
	return res, commandError(host, script, res, err)
}

func (o *Orchestrator) sync(ctx context.Context, req remote.SyncRequest) (remote.Result, error) {
	res, err := o.config.Syncer.Sync(ctx, req)
	return res, commandError(req.Host, "rsync to "+req.Destination, res, err)
}

// commandError turns a non-zero result into a RemoteCommandError.
func commandError(host pupdeploy.Host, script string, res remote.Result, err error) error {
	if err != nil {
		var rce *pupdeploy.RemoteCommandError
		if errors.As(err, &rce) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &pupdeploy.RemoteCommandError{
			Host:     string(host),
			Command:  remote.Redact(script),
			ExitCode: -1,
			Output:   res.Output,
			Err:      err,
		}
	}
	if !res.Success() {
		return &pupdeploy.RemoteCommandError{
			Host:     string(host),
			Command:  remote.Redact(script),
			ExitCode: res.ExitCode,
			Output:   res.Output,
		}
	}
	return nil
}
