package deploy

import (
	"context"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/release"
	"github.com/getpup/pupdeploy/remote"
)

// HookContext tells a hook where it runs.
type HookContext struct {
	Host pupdeploy.Host

	// RemoteDir holds the release directories.
	RemoteDir string

	// Release is the release the hook is about: the new one on deploy,
	// the reactivated one on rollback.
	Release release.Release

	// ReleaseDir is the absolute path of Release on the host.
	ReleaseDir string

	// Runner runs commands on Host.
	Runner remote.Runner
}

// Hooks run project specific steps on each host.
// An error stops the run like a failing remote command.
type Hooks interface {
	// PreDeploy runs before the files are synced to the host.
	PreDeploy(ctx context.Context, hc HookContext) error

	// PostDeploy runs after the host switched to the new release, before workers restart.
	PostDeploy(ctx context.Context, hc HookContext) error

	// PreRollback runs before the host switches back to the previous release.
	PreRollback(ctx context.Context, hc HookContext) error

	// PostRollback runs after the schema was reverted, before workers restart.
	PostRollback(ctx context.Context, hc HookContext) error
}

// NopHooks does nothing.
type NopHooks struct{}

// Compile-time check that NopHooks implements Hooks.
var _ Hooks = NopHooks{}

func (NopHooks) PreDeploy(ctx context.Context, hc HookContext) error    { return nil }
func (NopHooks) PostDeploy(ctx context.Context, hc HookContext) error   { return nil }
func (NopHooks) PreRollback(ctx context.Context, hc HookContext) error  { return nil }
func (NopHooks) PostRollback(ctx context.Context, hc HookContext) error { return nil }
