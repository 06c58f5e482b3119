package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupsourcing/es"
)

// transitions lists the phases reachable from each phase.
// Any non-terminal phase may also move to aborted or failed.
var transitions = map[pupdeploy.Phase][]pupdeploy.Phase{
	pupdeploy.PhaseInit:      {pupdeploy.PhaseDiscover},
	pupdeploy.PhaseDiscover:  {pupdeploy.PhaseCheck, pupdeploy.PhaseCleanup, pupdeploy.PhaseDone},
	pupdeploy.PhaseCheck:     {pupdeploy.PhaseConfirmed, pupdeploy.PhaseDone},
	pupdeploy.PhaseConfirmed: {pupdeploy.PhaseExecute, pupdeploy.PhaseActivate},
	pupdeploy.PhaseExecute:   {pupdeploy.PhaseActivate, pupdeploy.PhasePost},
	pupdeploy.PhaseActivate:  {pupdeploy.PhaseExecute, pupdeploy.PhasePost},
	pupdeploy.PhasePost:      {pupdeploy.PhaseCleanup, pupdeploy.PhaseRetire, pupdeploy.PhaseDone},
	pupdeploy.PhaseCleanup:   {pupdeploy.PhaseDone},
	pupdeploy.PhaseRetire:    {pupdeploy.PhaseDone},
}

// Observer is notified when a run leaves a phase.
type Observer interface {
	ObservePhase(action string, phase pupdeploy.Phase, duration time.Duration)
}

// Config holds configuration for the lifecycle Manager.
type Config struct {
	// Action names the run for logs and metrics, such as "deploy" or "cleanup".
	Action string

	// Observer records phase durations (optional).
	Observer Observer

	// Logger is for observability (optional).
	Logger es.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Manager tracks the phase of a single run and rejects transitions that
// would skip a step.
type Manager struct {
	config Config

	mu      sync.Mutex
	phase   pupdeploy.Phase
	entered time.Time
	history []pupdeploy.Phase
}

// New creates a new lifecycle Manager in the init phase.
func New(cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		config:  cfg,
		phase:   pupdeploy.PhaseInit,
		entered: cfg.Now(),
		history: []pupdeploy.Phase{pupdeploy.PhaseInit},
	}
}

// Allowed reports whether a run may move from one phase to another.
func Allowed(from, to pupdeploy.Phase) bool {
	if from.Terminal() {
		return false
	}
	if to == pupdeploy.PhaseAborted || to == pupdeploy.PhaseFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the run to the given phase.
// Returns ErrInvalidTransition if the phase is not reachable from the current one.
func (m *Manager) Transition(ctx context.Context, to pupdeploy.Phase) error {
	m.mu.Lock()
	from := m.phase
	if !Allowed(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", pupdeploy.ErrInvalidTransition, from, to)
	}

	now := m.config.Now()
	spent := now.Sub(m.entered)
	m.phase = to
	m.entered = now
	m.history = append(m.history, to)
	m.mu.Unlock()

	if m.config.Observer != nil {
		m.config.Observer.ObservePhase(m.config.Action, from, spent)
	}

	if m.config.Logger != nil {
		m.config.Logger.Info(ctx, "phase changed",
			"action", m.config.Action,
			"from", from,
			"to", to,
			"duration", spent)
	}

	return nil
}

// Fail moves the run to the failed phase unless it already ended.
// It returns err unchanged so callers can write "return m.Fail(ctx, err)".
func (m *Manager) Fail(ctx context.Context, err error) error {
	if m.Phase().Terminal() {
		return err
	}

	if m.config.Logger != nil {
		m.config.Logger.Error(ctx, "run failed", "action", m.config.Action, "phase", m.Phase(), "error", err)
	}

	_ = m.Transition(ctx, pupdeploy.PhaseFailed)
	return err
}

// Phase returns the current phase.
func (m *Manager) Phase() pupdeploy.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.phase
}

// History returns every phase the run went through, in order.
func (m *Manager) History() []pupdeploy.Phase {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]pupdeploy.Phase, len(m.history))
	copy(out, m.history)
	return out
}
