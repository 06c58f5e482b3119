package migration

import (
	"fmt"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/patch"
)

// Mode is the bookkeeping strategy a plan was resolved with.
type Mode string

const (
	// ModeLegacy selects patches by release timestamps; no tracking table exists yet.
	ModeLegacy Mode = "legacy"

	// ModeTracked selects patches by diffing against the tracking table.
	ModeTracked Mode = "tracked"
)

// Plan is the resolved set of patches for one run.
type Plan struct {
	Action pupdeploy.Action
	Mode   Mode

	// Window is the release window the plan was resolved for.
	Window Window

	// Patches are run in order.
	Patches []patch.Patch

	// RegisterOnly are patches recorded as applied without running them.
	// Only a legacy update fills it.
	RegisterOnly []patch.Patch
}

// Empty reports whether the plan has nothing to run or register.
func (p Plan) Empty() bool {
	return len(p.Patches) == 0 && len(p.RegisterOnly) == 0
}

// Summary returns human readable lines describing the plan.
func (p Plan) Summary() []string {
	lines := []string{fmt.Sprintf("Database mode: %s", p.Mode)}

	if len(p.Patches) == 0 {
		lines = append(lines, "No database patches to "+verb(p.Action))
	} else {
		lines = append(lines, fmt.Sprintf("Database patches to %s:", verb(p.Action)))
		for _, pt := range p.Patches {
			lines = append(lines, "  "+pt.Name)
		}
	}

	if len(p.RegisterOnly) > 0 {
		lines = append(lines, fmt.Sprintf("Patches to register as done: %d", len(p.RegisterOnly)))
		for _, pt := range p.RegisterOnly {
			lines = append(lines, "  "+pt.Name)
		}
	}

	return lines
}

func verb(action pupdeploy.Action) string {
	if action == pupdeploy.ActionRollback {
		return "revert"
	}
	return "apply"
}
