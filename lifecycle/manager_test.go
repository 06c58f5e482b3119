package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type phaseObservation struct {
	action   string
	phase    pupdeploy.Phase
	duration time.Duration
}

type recordingObserver struct {
	observed []phaseObservation
}

func (r *recordingObserver) ObservePhase(action string, phase pupdeploy.Phase, duration time.Duration) {
	r.observed = append(r.observed, phaseObservation{action: action, phase: phase, duration: duration})
}

func TestNew_StartsInInit(t *testing.T) {
	m := New(Config{Action: "deploy"})

	assert.Equal(t, pupdeploy.PhaseInit, m.Phase())
	assert.Equal(t, []pupdeploy.Phase{pupdeploy.PhaseInit}, m.History())
}

func TestTransition_DeployPath(t *testing.T) {
	m := New(Config{Action: "deploy"})
	ctx := context.Background()

	path := []pupdeploy.Phase{
		pupdeploy.PhaseDiscover,
		pupdeploy.PhaseCheck,
		pupdeploy.PhaseConfirmed,
		pupdeploy.PhaseExecute,
		pupdeploy.PhaseActivate,
		pupdeploy.PhasePost,
		pupdeploy.PhaseCleanup,
		pupdeploy.PhaseDone,
	}
	for _, p := range path {
		require.NoError(t, m.Transition(ctx, p), "transition to %s", p)
	}

	assert.Equal(t, append([]pupdeploy.Phase{pupdeploy.PhaseInit}, path...), m.History())
}

func TestTransition_RollbackPath(t *testing.T) {
	m := New(Config{Action: "rollback"})
	ctx := context.Background()

	for _, p := range []pupdeploy.Phase{
		pupdeploy.PhaseDiscover,
		pupdeploy.PhaseCheck,
		pupdeploy.PhaseConfirmed,
		pupdeploy.PhaseActivate,
		pupdeploy.PhaseExecute,
		pupdeploy.PhasePost,
		pupdeploy.PhaseRetire,
		pupdeploy.PhaseDone,
	} {
		require.NoError(t, m.Transition(ctx, p), "transition to %s", p)
	}
}

func TestTransition_CleanupPath(t *testing.T) {
	m := New(Config{Action: "cleanup"})
	ctx := context.Background()

	require.NoError(t, m.Transition(ctx, pupdeploy.PhaseDiscover))
	require.NoError(t, m.Transition(ctx, pupdeploy.PhaseCleanup))
	require.NoError(t, m.Transition(ctx, pupdeploy.PhaseDone))
}

func TestTransition_RejectsSkippingConfirmation(t *testing.T) {
	m := New(Config{Action: "deploy"})
	ctx := context.Background()
	require.NoError(t, m.Transition(ctx, pupdeploy.PhaseDiscover))
	require.NoError(t, m.Transition(ctx, pupdeploy.PhaseCheck))

	err := m.Transition(ctx, pupdeploy.PhaseExecute)

	assert.ErrorIs(t, err, pupdeploy.ErrInvalidTransition)
	assert.Equal(t, pupdeploy.PhaseCheck, m.Phase())
}

func TestTransition_TerminalPhasesAreFinal(t *testing.T) {
	for _, terminal := range []pupdeploy.Phase{pupdeploy.PhaseDone, pupdeploy.PhaseAborted, pupdeploy.PhaseFailed} {
		t.Run(string(terminal), func(t *testing.T) {
			assert.False(t, Allowed(terminal, pupdeploy.PhaseDiscover))
			assert.False(t, Allowed(terminal, pupdeploy.PhaseFailed))
		})
	}
}

func TestAllowed_AbortFromAnyActivePhase(t *testing.T) {
	for from := range transitions {
		assert.True(t, Allowed(from, pupdeploy.PhaseAborted), "abort from %s", from)
		assert.True(t, Allowed(from, pupdeploy.PhaseFailed), "fail from %s", from)
	}
}

func TestTransition_ObservesTimeSpent(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	obs := &recordingObserver{}
	m := New(Config{Action: "deploy", Observer: obs, Now: clock})

	now = now.Add(3 * time.Second)
	require.NoError(t, m.Transition(context.Background(), pupdeploy.PhaseDiscover))

	require.Len(t, obs.observed, 1)
	assert.Equal(t, phaseObservation{action: "deploy", phase: pupdeploy.PhaseInit, duration: 3 * time.Second}, obs.observed[0])
}

func TestFail_MovesToFailedAndReturnsError(t *testing.T) {
	m := New(Config{Action: "deploy"})
	ctx := context.Background()
	require.NoError(t, m.Transition(ctx, pupdeploy.PhaseDiscover))
	boom := errors.New("boom")

	err := m.Fail(ctx, boom)

	assert.Same(t, boom, err)
	assert.Equal(t, pupdeploy.PhaseFailed, m.Phase())
}

func TestFail_KeepsTerminalPhase(t *testing.T) {
	m := New(Config{Action: "deploy"})
	ctx := context.Background()
	require.NoError(t, m.Transition(ctx, pupdeploy.PhaseDiscover))
	require.NoError(t, m.Transition(ctx, pupdeploy.PhaseAborted))

	_ = m.Fail(ctx, errors.New("late"))

	assert.Equal(t, pupdeploy.PhaseAborted, m.Phase())
}
