// Package remote runs shell commands on remote hosts and mirrors the local
// release tree to them.
package remote

import (
	"context"
	"strings"
	"time"

	"github.com/getpup/pupdeploy"
)

// Command is a shell script to run on one host.
type Command struct {
	// Host is the target host. An empty host runs the script locally.
	Host pupdeploy.Host

	// Script is passed to the remote shell as-is.
	Script string

	// Stdin, if set, is written to the standard input of the script.
	Stdin string

	// AllowFailure makes a non-zero exit status a normal Result instead of an error.
	AllowFailure bool

	// Timeout, if positive, replaces the runner's timeout for this command.
	Timeout time.Duration
}

// Result is the outcome of a finished command.
type Result struct {
	// Output holds the combined output lines, without trailing newlines.
	Output []string

	// ExitCode is the exit status of the script.
	ExitCode int
}

// Success reports whether the command exited with status zero.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Runner executes commands.
// A non-zero exit status is returned as a *pupdeploy.RemoteCommandError
// unless the command allows failure.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// SyncRequest describes one mirror of the local tree to a remote directory.
type SyncRequest struct {
	Host pupdeploy.Host

	// Source is the local directory to mirror.
	Source string

	// Destination is the remote directory to create or update.
	Destination string

	// CopyDest is a remote directory holding a previous release used as copy source.
	CopyDest string

	// ExcludeFrom are local files listing exclude patterns.
	ExcludeFrom []string

	// Excludes are patterns excluded in addition to ExcludeFrom.
	Excludes []string

	// DryRun only reports what would change.
	DryRun bool
}

// Syncer mirrors local trees to remote hosts.
type Syncer interface {
	Sync(ctx context.Context, req SyncRequest) (Result, error)
}

// Quote returns s quoted for a POSIX shell.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuoting) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:,+@%", r)
}

func splitLines(out []byte) []string {
	s := strings.TrimRight(string(out), "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}
