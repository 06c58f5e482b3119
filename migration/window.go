// Package migration decides which patches a deploy or rollback must run.
//
// A Resolver works in one of two modes. Without a tracking table it falls
// back to the legacy mode, which selects patches purely by the release
// timestamps around the run. Once the table exists it diffs the patch
// directories against the recorded history and refuses to continue while
// any record shows a crashed update or rollback.
package migration

import (
	"sort"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/patch"
)

// Window is a time interval that bounds the patches of one operation.
// A window whose Start is after its End is a rollback window.
type Window struct {
	Start time.Time
	End   time.Time
}

// IsRollback reports whether the window runs backwards in time.
func (w Window) IsRollback() bool {
	return w.Start.After(w.End)
}

// Reverse returns the window with its bounds swapped.
func (w Window) Reverse() Window {
	return Window{Start: w.End, End: w.Start}
}

// Contains reports whether t lies strictly between the window bounds.
func (w Window) Contains(t time.Time) bool {
	lo, hi := w.Start, w.End
	if w.IsRollback() {
		lo, hi = hi, lo
	}
	return t.After(lo) && t.Before(hi)
}

// PatchesInWindow returns the patches whose timestamp lies inside w.
// Update windows are ordered oldest first, rollback windows newest first.
func PatchesInWindow(patches []patch.Patch, w Window) []patch.Patch {
	var out []patch.Patch
	for _, p := range patches {
		if w.Contains(p.Timestamp) {
			out = append(out, p)
		}
	}

	patch.Sort(out)
	if w.IsRollback() {
		reverse(out)
	}

	return out
}

// PatchesToApply returns the patches that have no applied record, oldest first.
// Patches are matched to records by name, so a patch added with an older
// timestamp than already applied patches is still picked up.
func PatchesToApply(all []patch.Patch, applied []pupdeploy.PatchRecord) []patch.Patch {
	done := make(map[string]bool, len(applied))
	for _, r := range applied {
		done[r.Name] = true
	}

	var out []patch.Patch
	for _, p := range all {
		if !done[p.Name] {
			out = append(out, p)
		}
	}

	patch.Sort(out)
	return out
}

// sortNewestApplied orders records by applied_at descending, then by patch timestamp descending.
func sortNewestApplied(records []pupdeploy.PatchRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := appliedAt(records[i]), appliedAt(records[j])
		if !a.Equal(b) {
			return a.After(b)
		}
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].Name > records[j].Name
	})
}

func appliedAt(r pupdeploy.PatchRecord) time.Time {
	if r.AppliedAt == nil {
		return time.Time{}
	}
	return *r.AppliedAt
}

func reverse(patches []patch.Patch) {
	for i, j := 0, len(patches)-1; i < j; i, j = i+1, j-1 {
		patches[i], patches[j] = patches[j], patches[i]
	}
}
