package pupdeploy

import "context"

// Deployer drives releases of one project to a fleet of hosts.
//
// A Deployer performs a single run per call. Every call goes through the
// same phases: discover the releases on the first host, check and present
// the plan, ask for confirmation, then execute. A negative answer ends the
// run in the aborted phase without an error.
type Deployer interface {
	// Deploy syncs a new release to every host, applies pending schema
	// patches once, activates the release and prunes old releases.
	//
	// File sync on all hosts finishes before any patch runs, and patches
	// finish before any host switches its production symlink.
	Deploy(ctx context.Context) error

	// Rollback reactivates the previous release on every host, reverts the
	// schema patches of the last release and deletes the last release.
	// Returns ErrNoPreviousRelease if fewer than two releases exist.
	Rollback(ctx context.Context) error

	// Cleanup deletes releases selected by the retention policy.
	// The two newest releases are never deleted.
	Cleanup(ctx context.Context) error
}
