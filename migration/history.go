package migration

import (
	"github.com/getpup/pupdeploy"
)

// History is the tracking table split by record state.
type History struct {
	// Applied holds records whose update completed and that were not reverted.
	Applied []pupdeploy.PatchRecord

	// CrashedUpdate holds records whose update started but never completed.
	CrashedUpdate []pupdeploy.PatchRecord

	// CrashedRollback holds records whose rollback started but never completed.
	CrashedRollback []pupdeploy.PatchRecord
}

// Classify splits records by state, preserving their order.
// A record without applied_at is a crashed update. Otherwise a record with
// reverted_at is a crashed rollback.
func Classify(records []pupdeploy.PatchRecord) History {
	var h History
	for _, r := range records {
		switch {
		case r.AppliedAt == nil:
			h.CrashedUpdate = append(h.CrashedUpdate, r)
		case r.RevertedAt != nil:
			h.CrashedRollback = append(h.CrashedRollback, r)
		default:
			h.Applied = append(h.Applied, r)
		}
	}
	return h
}

// Crashed reports whether any record is in a crash state.
func (h History) Crashed() bool {
	return len(h.CrashedUpdate) > 0 || len(h.CrashedRollback) > 0
}

// Err returns a *pupdeploy.CrashedPatchError naming every crashed patch, or nil.
func (h History) Err() error {
	if !h.Crashed() {
		return nil
	}
	return &pupdeploy.CrashedPatchError{
		CrashedUpdate:   recordNames(h.CrashedUpdate),
		CrashedRollback: recordNames(h.CrashedRollback),
	}
}

func recordNames(records []pupdeploy.PatchRecord) []string {
	if len(records) == 0 {
		return nil
	}
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}
