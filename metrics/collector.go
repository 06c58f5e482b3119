package metrics

import (
	"time"

	"github.com/getpup/pupdeploy"
)

// Result values for RunsTotal and RemoteCommandsTotal.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultAborted = "aborted"
)

// Collector wraps metrics and provides helper methods with pre-filled labels.
type Collector struct {
	project string
}

// NewCollector creates a new Collector for the given project.
func NewCollector(project string) *Collector {
	return &Collector{project: project}
}

// IncRun counts a finished run and, on success, records its time.
func (c *Collector) IncRun(action, result string, at time.Time) {
	RunsTotal.WithLabelValues(c.project, action, result).Inc()
	if result == ResultSuccess {
		LastSuccess.WithLabelValues(c.project, action).Set(float64(at.Unix()))
	}
}

// ObservePhase records the time a run spent in a phase.
func (c *Collector) ObservePhase(action string, phase pupdeploy.Phase, duration time.Duration) {
	PhaseDuration.WithLabelValues(c.project, action, string(phase)).Observe(duration.Seconds())
}

// AddPatches counts patches handled by a migration.
// The action is "update", "rollback" or "register".
func (c *Collector) AddPatches(action string, n int) {
	if n <= 0 {
		return
	}
	PatchesTotal.WithLabelValues(c.project, action).Add(float64(n))
}

// ObserveRemoteCommand counts a remote command.
func (c *Collector) ObserveRemoteCommand(host pupdeploy.Host, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}
	label := host.String()
	if label == "" {
		label = "local"
	}
	RemoteCommandsTotal.WithLabelValues(c.project, label, result).Inc()
}

// AddReleasesDeleted counts deleted release directories.
func (c *Collector) AddReleasesDeleted(n int) {
	if n <= 0 {
		return
	}
	ReleasesDeletedTotal.WithLabelValues(c.project).Add(float64(n))
}
