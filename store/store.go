package store

import (
	"context"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/patch"
)

// ApplyRequest describes one run of the patch application protocol.
type ApplyRequest struct {
	// Action selects update (apply up scripts) or rollback (apply down scripts).
	Action pupdeploy.Action

	// Patches are applied in the given order.
	Patches []patch.Patch

	// At is the release timestamp written to applied_at or reverted_at.
	At time.Time

	// ReleaseDir is the remote release directory that holds the patch files.
	// Stores that execute SQL locally ignore it.
	ReleaseDir string
}

// TrackingStore provides access to the patch tracking table.
// Implementations are used by one run at a time and need not be safe for concurrent use.
type TrackingStore interface {
	// TableExists reports whether the tracking table exists.
	TableExists(ctx context.Context) (bool, error)

	// Records returns every tracking record ordered by patch timestamp.
	Records(ctx context.Context) ([]pupdeploy.PatchRecord, error)

	// AppliedBetween returns records with after < applied_at <= until, ordered by patch timestamp.
	AppliedBetween(ctx context.Context, after, until time.Time) ([]pupdeploy.PatchRecord, error)

	// Apply runs the patch application protocol for the request.
	// A failure leaves the tracking table in the crash state of the failing patch.
	Apply(ctx context.Context, req ApplyRequest) error

	// Register records patches as applied without running their scripts.
	// applied_at is set to each patch's own timestamp.
	Register(ctx context.Context, patches []patch.Patch) error

	// CheckAccess verifies the credentials may change the schema.
	// Returns ErrAccessDenied if they may not.
	CheckAccess(ctx context.Context) error
}

// Credentials identify a database account.
type Credentials struct {
	Database string
	User     string
	Password string
}
