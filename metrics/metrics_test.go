package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRunsTotal_Increment(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("test-proj", "deploy", "success"))
	RunsTotal.WithLabelValues("test-proj", "deploy", "success").Inc()
	after := testutil.ToFloat64(RunsTotal.WithLabelValues("test-proj", "deploy", "success"))

	assert.Equal(t, before+1, after)
}

func TestPatchesTotal_Add(t *testing.T) {
	before := testutil.ToFloat64(PatchesTotal.WithLabelValues("test-proj-2", "update"))
	PatchesTotal.WithLabelValues("test-proj-2", "update").Add(3)
	after := testutil.ToFloat64(PatchesTotal.WithLabelValues("test-proj-2", "update"))

	assert.Equal(t, before+3, after)
}

func TestLastSuccess_SetValue(t *testing.T) {
	LastSuccess.WithLabelValues("test-proj-3", "deploy").Set(1700000000)
	value := testutil.ToFloat64(LastSuccess.WithLabelValues("test-proj-3", "deploy"))

	assert.Equal(t, float64(1700000000), value)
}

func TestPhaseDuration_Observe(t *testing.T) {
	PhaseDuration.WithLabelValues("test-proj-4", "deploy", "execute").Observe(1.5)
	count := testutil.CollectAndCount(PhaseDuration)

	assert.Greater(t, count, 0)
}

func TestRemoteCommandsTotal_Increment(t *testing.T) {
	before := testutil.ToFloat64(RemoteCommandsTotal.WithLabelValues("test-proj-5", "web1", "failure"))
	RemoteCommandsTotal.WithLabelValues("test-proj-5", "web1", "failure").Inc()
	after := testutil.ToFloat64(RemoteCommandsTotal.WithLabelValues("test-proj-5", "web1", "failure"))

	assert.Equal(t, before+1, after)
}

func TestMetricsRegistered(t *testing.T) {
	RunsTotal.WithLabelValues("test-proj-6", "cleanup", "aborted").Inc()
	ReleasesDeletedTotal.WithLabelValues("test-proj-6").Inc()

	assert.Greater(t, testutil.CollectAndCount(RunsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(ReleasesDeletedTotal), 0)
}
