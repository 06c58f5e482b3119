package migration

import (
	"context"
	"fmt"
	"sync"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/patch"
	"github.com/getpup/pupdeploy/release"
	"github.com/getpup/pupdeploy/store"
	"github.com/getpup/pupsourcing/es"
)

// PatchSource lists the patches available locally.
type PatchSource interface {
	List(ctx context.Context) ([]patch.Patch, error)
}

// Compile-time check that the patch repository is a PatchSource.
var _ PatchSource = (*patch.Repository)(nil)

// Config configures a Resolver.
type Config struct {
	// Patches lists the local patches (required).
	Patches PatchSource

	// Store reads the tracking table (required).
	Store store.TrackingStore

	// Bootstrap is the patch that creates the tracking table (required).
	Bootstrap patch.Patch

	// Logger is for observability (optional).
	Logger es.Logger
}

// Resolver resolves migration plans. The tracking table probe runs once and
// its result is reused for the lifetime of the Resolver.
type Resolver struct {
	config Config

	once    sync.Once
	mode    Mode
	modeErr error
}

// NewResolver creates a Resolver.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Patches == nil {
		return nil, fmt.Errorf("%w: patch source is required", pupdeploy.ErrConfiguration)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: tracking store is required", pupdeploy.ErrConfiguration)
	}
	if !cfg.Bootstrap.IsBootstrap() {
		return nil, fmt.Errorf("%w: bootstrap patch is required", pupdeploy.ErrConfiguration)
	}
	return &Resolver{config: cfg}, nil
}

// Mode probes the tracking table on first use and returns the resulting mode.
func (r *Resolver) Mode(ctx context.Context) (Mode, error) {
	r.once.Do(func() {
		exists, err := r.config.Store.TableExists(ctx)
		if err != nil {
			r.modeErr = fmt.Errorf("failed to probe tracking table: %w", err)
			return
		}
		r.mode = ModeLegacy
		if exists {
			r.mode = ModeTracked
		}
		if r.config.Logger != nil {
			r.config.Logger.Info(ctx, "tracking table probed", "exists", exists, "mode", r.mode)
		}
	})
	return r.mode, r.modeErr
}

// Resolve returns the plan for running action over the timeline.
func (r *Resolver) Resolve(ctx context.Context, action pupdeploy.Action, tl release.Timeline) (Plan, error) {
	if !action.Valid() {
		return Plan{}, fmt.Errorf("%w: unknown action %q", pupdeploy.ErrConfiguration, action)
	}
	if action == pupdeploy.ActionRollback && tl.Previous.IsZero() {
		return Plan{}, pupdeploy.ErrNoPreviousRelease
	}

	mode, err := r.Mode(ctx)
	if err != nil {
		return Plan{}, err
	}

	all, err := r.config.Patches.List(ctx)
	if err != nil {
		return Plan{}, err
	}

	var plan Plan
	if mode == ModeLegacy {
		plan = r.resolveLegacy(action, tl, all)
	} else {
		plan, err = r.resolveTracked(ctx, action, tl, all)
		if err != nil {
			return Plan{}, err
		}
	}

	if r.config.Logger != nil {
		r.config.Logger.Info(ctx, "migration plan resolved",
			"action", action,
			"mode", plan.Mode,
			"patches", len(plan.Patches),
			"register_only", len(plan.RegisterOnly),
		)
	}

	return plan, nil
}

func (r *Resolver) resolveLegacy(action pupdeploy.Action, tl release.Timeline, all []patch.Patch) Plan {
	if action == pupdeploy.ActionRollback {
		w := Window{Start: tl.Last.Timestamp, End: tl.Previous.Timestamp}
		return Plan{Action: action, Mode: ModeLegacy, Window: w, Patches: PatchesInWindow(all, w)}
	}

	w := Window{Start: tl.Last.Timestamp, End: tl.Current.Timestamp}
	inWindow := PatchesInWindow(all, w)

	patches := make([]patch.Patch, 0, len(inWindow)+1)
	patches = append(patches, r.config.Bootstrap)
	patches = append(patches, inWindow...)

	planned := make(map[string]bool, len(inWindow))
	for _, p := range inWindow {
		planned[p.Name] = true
	}

	var registerOnly []patch.Patch
	for _, p := range all {
		if !planned[p.Name] && !p.Timestamp.After(tl.Current.Timestamp) {
			registerOnly = append(registerOnly, p)
		}
	}

	return Plan{Action: action, Mode: ModeLegacy, Window: w, Patches: patches, RegisterOnly: registerOnly}
}

func (r *Resolver) resolveTracked(ctx context.Context, action pupdeploy.Action, tl release.Timeline, all []patch.Patch) (Plan, error) {
	records, err := r.config.Store.Records(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read tracking records: %w", err)
	}

	history := Classify(records)
	if err := history.Err(); err != nil {
		return Plan{}, err
	}

	if action == pupdeploy.ActionUpdate {
		w := Window{Start: tl.Last.Timestamp, End: tl.Current.Timestamp}
		return Plan{Action: action, Mode: ModeTracked, Window: w, Patches: PatchesToApply(all, history.Applied)}, nil
	}

	w := Window{Start: tl.Last.Timestamp, End: tl.Previous.Timestamp}
	applied, err := r.config.Store.AppliedBetween(ctx, tl.Previous.Timestamp, tl.Last.Timestamp)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read patches applied since %s: %w", tl.Previous.Name, err)
	}
	sortNewestApplied(applied)

	byName := make(map[string]patch.Patch, len(all))
	for _, p := range all {
		byName[p.Name] = p
	}

	patches := make([]patch.Patch, 0, len(applied))
	for _, rec := range applied {
		// The tracking table outlives a rollback of the run that created it.
		if rec.Name == r.config.Bootstrap.Name {
			continue
		}
		p, ok := byName[rec.Name]
		if !ok {
			return Plan{}, fmt.Errorf("%w: %s", pupdeploy.ErrPatchNotFound, rec.Name)
		}
		patches = append(patches, p)
	}

	return Plan{Action: action, Mode: ModeTracked, Window: w, Patches: patches}, nil
}
