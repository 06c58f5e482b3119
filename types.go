package pupdeploy

import "time"

// Action is the direction of a release operation.
type Action string

const (
	// ActionUpdate deploys a new release and applies pending schema patches.
	ActionUpdate Action = "update"

	// ActionRollback reactivates the previous release and reverts the patches of the last one.
	ActionRollback Action = "rollback"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionUpdate || a == ActionRollback
}

// Dialect selects the SQL flavour used for the patch tracking table.
type Dialect string

const (
	// DialectMySQL targets MySQL and MariaDB.
	DialectMySQL Dialect = "mysql"

	// DialectPostgres targets PostgreSQL.
	DialectPostgres Dialect = "postgres"

	// DialectSQLite targets SQLite 3.
	DialectSQLite Dialect = "sqlite3"
)

// Valid reports whether d is a supported dialect.
func (d Dialect) Valid() bool {
	switch d {
	case DialectMySQL, DialectPostgres, DialectSQLite:
		return true
	}
	return false
}

// Phase is a state of a deploy, rollback or cleanup run.
type Phase string

const (
	// PhaseInit is the state of a run that has not touched any host yet.
	PhaseInit Phase = "init"

	// PhaseDiscover lists the remote release directories and derives the release timeline.
	PhaseDiscover Phase = "discover"

	// PhaseCheck dry-runs the file sync and resolves the migration plan.
	// Nothing on the target changes apart from directory creation.
	PhaseCheck Phase = "check"

	// PhaseConfirmed is entered once the operator approved the run.
	PhaseConfirmed Phase = "confirmed"

	// PhaseExecute syncs files (update) or reverts the schema (rollback).
	PhaseExecute Phase = "execute"

	// PhaseActivate swaps the production symlink on every host.
	PhaseActivate Phase = "activate"

	// PhasePost runs post hooks, worker restarts and cache invalidation.
	PhasePost Phase = "post"

	// PhaseCleanup deletes old releases selected by the retention policy.
	PhaseCleanup Phase = "cleanup"

	// PhaseRetire deletes the release that a rollback deactivated.
	PhaseRetire Phase = "retire"

	// PhaseDone is the terminal state of a successful run.
	PhaseDone Phase = "done"

	// PhaseAborted is the terminal state of a run the operator declined.
	PhaseAborted Phase = "aborted"

	// PhaseFailed is the terminal state of a run that hit an error.
	PhaseFailed Phase = "failed"
)

// Terminal reports whether no further transition can leave p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseAborted || p == PhaseFailed
}

// PatchRecord is one row of the patch tracking table.
type PatchRecord struct {
	// Name is the relative path of the patch file and the primary key of the table.
	Name string

	// Timestamp is the timestamp encoded in the patch file name.
	Timestamp time.Time

	// AppliedAt is set once the update SQL of the patch succeeded.
	// A nil value means the update started but never completed.
	AppliedAt *time.Time

	// RevertedAt is set when a rollback of the patch begins.
	// A record that still exists with a non-nil value is a rollback that never completed.
	RevertedAt *time.Time
}

// Host is a remote application server as addressed by ssh and rsync.
type Host string

// String returns the host name.
func (h Host) String() string {
	return string(h)
}
