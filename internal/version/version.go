// Package version holds build information set by the linker:
//
//	go build -ldflags "-X github.com/getpup/pupdeploy/internal/version.Version=v1.2.0 \
//	    -X github.com/getpup/pupdeploy/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the release version.
	Version = "dev"

	// Commit is the source revision.
	Commit = "unknown"
)

// String describes the build in one line.
func String() string {
	return fmt.Sprintf("%s (commit %s, %s)", Version, Commit, runtime.Version())
}
