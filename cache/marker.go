package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/coordinator"
	"github.com/getpup/pupdeploy/remote"
	"github.com/getpup/pupsourcing/es"
)

// Placeholder is replaced by the cache revision in the version template.
const Placeholder = "#deployment_timestamp#"

// MarkerConfig holds configuration for a VersionMarker.
type MarkerConfig struct {
	// Template is the version file template, relative to the release directory (required).
	Template string

	// Path is the version file to write, relative to the release directory (required).
	Path string

	// URLs lists the setrev URL of each host (required).
	// A single URL is used for every host.
	URLs []string

	// Hosts are the hosts URLs belong to, in the same order (required).
	Hosts []pupdeploy.Host

	// Runner runs the commands on the hosts (required).
	Runner remote.Runner

	// Logger is for observability (optional).
	Logger es.Logger
}

// VersionMarker writes a version file from a template and calls a setrev URL on
// each host, so opcode and user caches pick up the new release.
type VersionMarker struct {
	config MarkerConfig
	urls   map[pupdeploy.Host]string
}

// Compile-time check that VersionMarker implements HostInvalidator and LocalFiler.
var (
	_ HostInvalidator = (*VersionMarker)(nil)
	_ LocalFiler      = (*VersionMarker)(nil)
)

// NewVersionMarker creates a VersionMarker.
// Returns ErrConfiguration if the URL list does not match the hosts.
func NewVersionMarker(cfg MarkerConfig) (*VersionMarker, error) {
	if cfg.Template == "" || cfg.Path == "" || len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("%w: cache template, path and setrev URL must all be set", pupdeploy.ErrConfiguration)
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("%w: cache invalidation needs a runner", pupdeploy.ErrConfiguration)
	}

	urls := cfg.URLs
	if len(urls) == 1 && len(cfg.Hosts) > 1 {
		urls = make([]string, len(cfg.Hosts))
		for i := range urls {
			urls[i] = cfg.URLs[0]
		}
	}

	assigned, err := coordinator.Assign(cfg.Hosts, urls)
	if err != nil {
		return nil, fmt.Errorf("setrev URLs: %w", err)
	}

	return &VersionMarker{config: cfg, urls: assigned}, nil
}

// LocalFiles returns the version template.
func (m *VersionMarker) LocalFiles() []string {
	return []string{m.config.Template}
}

// Script returns the shell script that refreshes the version file and calls the setrev URL.
func (m *VersionMarker) Script(host pupdeploy.Host, releaseDir string, rev int64) (string, error) {
	url, ok := m.urls[host]
	if !ok {
		return "", fmt.Errorf("%w: no setrev URL for host %s", pupdeploy.ErrConfiguration, host)
	}

	r := strconv.FormatInt(rev, 10)
	tmp := m.config.Path + ".tmp"

	return fmt.Sprintf("cd %s && sed 's/%s/%s/' %s > %s && mv %s %s && curl -s -S %s",
		remote.Quote(releaseDir),
		Placeholder, r,
		remote.Quote(m.config.Template), remote.Quote(tmp),
		remote.Quote(tmp), remote.Quote(m.config.Path),
		remote.Quote(url+"?rev="+r),
	), nil
}

// Invalidate runs the refresh script on host.
// A failing script is logged and does not fail the run.
func (m *VersionMarker) Invalidate(ctx context.Context, host pupdeploy.Host, releaseDir string, ev Event) error {
	script, err := m.Script(host, releaseDir, ev.Revision)
	if err != nil {
		return err
	}

	result, err := m.config.Runner.Run(ctx, remote.Command{
		Host:         host,
		Script:       script,
		AllowFailure: true,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if m.config.Logger != nil {
		for _, line := range result.Output {
			m.config.Logger.Debug(ctx, "setrev output", "host", host, "line", line)
		}
	}

	if err != nil || !result.Success() {
		if m.config.Logger != nil {
			m.config.Logger.Error(ctx, "clear cache failed", "host", host, "exitCode", result.ExitCode, "error", err)
		}
		return nil
	}

	if m.config.Logger != nil {
		m.config.Logger.Info(ctx, "cache cleared", "host", host, "revision", ev.Revision)
	}

	return nil
}
