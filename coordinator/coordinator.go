package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupsourcing/es"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of hosts worked on at the same time.
const DefaultConcurrency = 4

// Config holds configuration for the Coordinator.
type Config struct {
	// Hosts are the application servers of the fleet, in configuration order (required).
	Hosts []pupdeploy.Host

	// Concurrency bounds the number of hosts worked on at once (default: 4).
	// A value of 1 works through the hosts sequentially.
	Concurrency int

	// Logger is for observability (optional).
	Logger es.Logger
}

// HostFunc is the work done for one host within a phase.
type HostFunc func(ctx context.Context, host pupdeploy.Host) error

// Coordinator fans a phase out over the hosts of a fleet.
//
// Every ForEachHost call returns only after the work on every host has
// finished, so a phase never overlaps with the next one.
type Coordinator struct {
	config Config
}

// New creates a new Coordinator with the given configuration.
// Applies the default concurrency if not set.
func New(cfg Config) (*Coordinator, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("%w: at least one host is required", pupdeploy.ErrConfiguration)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	return &Coordinator{config: cfg}, nil
}

// Hosts returns the hosts of the fleet.
func (c *Coordinator) Hosts() []pupdeploy.Host {
	out := make([]pupdeploy.Host, len(c.config.Hosts))
	copy(out, c.config.Hosts)
	return out
}

// First returns the host used for discovery and checks.
func (c *Coordinator) First() pupdeploy.Host {
	return c.config.Hosts[0]
}

// Rest returns every host but the first.
func (c *Coordinator) Rest() []pupdeploy.Host {
	return c.Hosts()[1:]
}

// ForEachHost runs fn for every host of the fleet.
// See ForEach.
func (c *Coordinator) ForEachHost(ctx context.Context, phase string, fn HostFunc) error {
	return c.ForEach(ctx, phase, c.config.Hosts, fn)
}

// ForEach runs fn for every given host with bounded concurrency.
// The first failure cancels the context passed to the remaining calls, and
// ForEach waits for all started calls before returning that failure.
func (c *Coordinator) ForEach(ctx context.Context, phase string, hosts []pupdeploy.Host, fn HostFunc) error {
	if len(hosts) == 0 {
		return nil
	}

	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)

	for _, host := range hosts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			if c.config.Logger != nil {
				c.config.Logger.Debug(gctx, "host phase started", "phase", phase, "host", host)
			}

			if err := fn(gctx, host); err != nil {
				if c.config.Logger != nil {
					c.config.Logger.Error(gctx, "host phase failed", "phase", phase, "host", host, "error", err)
				}
				return fmt.Errorf("%s on %s: %w", phase, host, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "phase completed on all hosts",
			"phase", phase,
			"hosts", len(hosts),
			"duration", time.Since(start))
	}

	return nil
}
