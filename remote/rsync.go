package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupsourcing/es"
)

// DefaultSyncTimeout bounds one rsync run. A first sync copies the whole tree.
const DefaultSyncTimeout = 2 * time.Hour

// RsyncConfig configures an RsyncSyncer.
type RsyncConfig struct {
	// RsyncPath is the rsync binary (default: "rsync").
	RsyncPath string

	// User is the remote user name.
	User string

	// RemoteShell is passed to rsync -e (optional).
	RemoteShell string

	// Runner runs the rsync command locally (required).
	Runner Runner

	// Timeout bounds each rsync run (default: DefaultSyncTimeout).
	Timeout time.Duration

	// Logger is for observability (optional).
	Logger es.Logger
}

// RsyncSyncer mirrors a local tree with rsync.
type RsyncSyncer struct {
	config RsyncConfig
}

// Compile-time check that RsyncSyncer implements Syncer.
var _ Syncer = (*RsyncSyncer)(nil)

// NewRsyncSyncer creates an RsyncSyncer with the given configuration.
func NewRsyncSyncer(cfg RsyncConfig) (*RsyncSyncer, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("%w: rsync needs a command runner", pupdeploy.ErrConfiguration)
	}
	if cfg.RsyncPath == "" {
		cfg.RsyncPath = "rsync"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultSyncTimeout
	}
	return &RsyncSyncer{config: cfg}, nil
}

// Script returns the shell command line for req.
func (s *RsyncSyncer) Script(req SyncRequest) string {
	args := []string{s.config.RsyncPath, "-azcO", "--force"}
	if req.DryRun {
		args = append(args, "--dry-run")
	}
	args = append(args, "--delete", "--progress")
	if s.config.RemoteShell != "" {
		args = append(args, "-e", Quote(s.config.RemoteShell))
	}
	for _, f := range req.ExcludeFrom {
		args = append(args, "--exclude-from="+Quote(f))
	}
	for _, e := range req.Excludes {
		args = append(args, "--exclude", Quote(e))
	}
	if req.CopyDest != "" {
		args = append(args, "--copy-dest="+Quote(req.CopyDest))
	}

	source := strings.TrimSuffix(req.Source, "/") + "/"
	target := string(req.Host)
	if s.config.User != "" {
		target = s.config.User + "@" + target
	}
	args = append(args, Quote(source), Quote(target+":"+req.Destination))

	return strings.Join(args, " ")
}

// Sync runs rsync for req.
func (s *RsyncSyncer) Sync(ctx context.Context, req SyncRequest) (Result, error) {
	if req.Host == "" || req.Destination == "" {
		return Result{}, fmt.Errorf("%w: rsync needs a host and a destination", pupdeploy.ErrConfiguration)
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "syncing files", "host", req.Host, "destination", req.Destination, "dry_run", req.DryRun)
	}

	return s.config.Runner.Run(ctx, Command{Script: s.Script(req), Timeout: s.config.Timeout})
}
