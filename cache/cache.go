// Package cache tells application servers and their clients that a new
// release is live.
package cache

import (
	"context"
	"time"

	"github.com/getpup/pupdeploy"
)

// Event describes an activated release.
type Event struct {
	// Project is the project name.
	Project string `json:"project"`

	// Action is the run that activated the release.
	Action pupdeploy.Action `json:"action"`

	// Release is the name of the now active release directory.
	Release string `json:"release"`

	// Revision is the cache revision handed to every host.
	Revision int64 `json:"revision"`

	// At is the time the run started.
	At time.Time `json:"at"`
}

// HostInvalidator clears the caches of one host after its symlink changed.
type HostInvalidator interface {
	// Invalidate clears the caches of host for the release in releaseDir.
	Invalidate(ctx context.Context, host pupdeploy.Host, releaseDir string, ev Event) error
}

// Notifier announces an activated release once per run.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// LocalFiler is implemented by invalidators that read files from the
// release tree. The files are checked locally before anything is synced.
type LocalFiler interface {
	// LocalFiles returns paths relative to the release tree.
	LocalFiles() []string
}
