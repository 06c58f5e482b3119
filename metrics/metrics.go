package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RunsTotal tracks finished runs by action and result.
var RunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupdeploy_runs_total",
		Help: "Total deploy, rollback and cleanup runs by result",
	},
	[]string{"project", "action", "result"},
)

// PhaseDuration tracks time spent in each phase of a run.
var PhaseDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pupdeploy_phase_duration_seconds",
		Help:    "Time spent in each phase of a run",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	},
	[]string{"project", "action", "phase"},
)

// PatchesTotal tracks schema patches applied, reverted or registered.
var PatchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupdeploy_patches_total",
		Help: "Total schema patches applied, reverted or registered",
	},
	[]string{"project", "action"},
)

// RemoteCommandsTotal tracks remote commands by host and result.
var RemoteCommandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupdeploy_remote_commands_total",
		Help: "Total remote commands by result",
	},
	[]string{"project", "host", "result"},
)

// ReleasesDeletedTotal tracks release directories removed from hosts.
var ReleasesDeletedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupdeploy_releases_deleted_total",
		Help: "Total release directories deleted",
	},
	[]string{"project"},
)

// LastSuccess tracks the unix time of the last successful run per action.
var LastSuccess = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pupdeploy_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run",
	},
	[]string{"project", "action"},
)
