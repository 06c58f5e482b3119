// Package retention decides which old releases may be deleted.
//
// The two newest releases are always kept. Of the remaining candidates,
// releases older than a month are deleted, releases between a week and a
// month old are deleted when a newer candidate exists from the same
// calendar day, and anything newer than a week is kept.
package retention

import (
	"time"

	"github.com/getpup/pupdeploy/release"
)

// Keep is the number of newest releases that are never deleted.
const Keep = 2

// Reason explains a retention decision.
type Reason string

const (
	ReasonNewest          Reason = "one of the newest releases"
	ReasonOlderThanMonth  Reason = "older than a month"
	ReasonReplacedSameDay Reason = "replaced the same day"
	ReasonLastOfDay       Reason = "last release of its day"
	ReasonRecent          Reason = "newer than a week"
)

// Decision is the verdict for one release.
type Decision struct {
	Release release.Release
	Delete  bool
	Reason  Reason
}

// Decide returns a decision for every release, oldest first.
// The input need not be sorted and is not modified.
func Decide(releases []release.Release, now time.Time) []Decision {
	sorted := make([]release.Release, len(releases))
	copy(sorted, releases)
	release.Sort(sorted)

	monthAgo := now.AddDate(0, -1, 0)
	weekAgo := now.AddDate(0, 0, -7)

	candidates := len(sorted) - Keep
	if candidates < 0 {
		candidates = 0
	}

	decisions := make([]Decision, len(sorted))
	for i, r := range sorted {
		d := Decision{Release: r}

		switch {
		case i >= candidates:
			d.Reason = ReasonNewest
		case r.Timestamp.Before(monthAgo):
			d.Delete = true
			d.Reason = ReasonOlderThanMonth
		case r.Timestamp.Before(weekAgo):
			if i+1 < candidates && sameDay(r.Timestamp, sorted[i+1].Timestamp) {
				d.Delete = true
				d.Reason = ReasonReplacedSameDay
			} else {
				d.Reason = ReasonLastOfDay
			}
		default:
			d.Reason = ReasonRecent
		}

		decisions[i] = d
	}

	return decisions
}

// SelectForDeletion returns the releases that may be deleted, oldest first.
func SelectForDeletion(releases []release.Release, now time.Time) []release.Release {
	var out []release.Release
	for _, d := range Decide(releases, now) {
		if d.Delete {
			out = append(out, d.Release)
		}
	}
	return out
}

// sameDay compares calendar days in the location of a.
func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
