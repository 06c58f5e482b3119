package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is the Pushgateway job name.
const DefaultJob = "pupdeploy"

// Pusher sends the metrics of a finished run to a Prometheus Pushgateway.
// A CLI run ends before any scraper could reach it, so metrics are pushed instead of served.
type Pusher struct {
	pusher *push.Pusher
}

// NewPusher creates a pusher for the gateway URL.
// Metrics are grouped by project and run ID. A nil gatherer means the default registry.
func NewPusher(url, project, runID string, gatherer prometheus.Gatherer) *Pusher {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	p := push.New(url, DefaultJob).
		Gatherer(gatherer).
		Grouping("project", project)
	if runID != "" {
		p = p.Grouping("run_id", runID)
	}

	return &Pusher{pusher: p}
}

// Push replaces the metrics of this group on the gateway.
func (p *Pusher) Push(ctx context.Context) error {
	if err := p.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
