// Package release names, parses and discovers release directories.
package release

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// TimestampLayout is the time layout used in release directory names.
const TimestampLayout = "2006-01-02_150405"

// Release is one deployed snapshot of the project.
type Release struct {
	// Name is the directory name, {project}_{2006-01-02_150405}.
	Name string

	// Timestamp is the local time encoded in the name.
	Timestamp time.Time
}

// IsZero reports whether r is the zero Release.
func (r Release) IsZero() bool {
	return r.Name == ""
}

func (r Release) String() string {
	return r.Name
}

// Namer formats and parses release names for one project.
type Namer struct {
	project  string
	location *time.Location
	pattern  *regexp.Regexp
}

// NewNamer returns a Namer for project. Times are formatted and parsed in loc (default: time.Local).
func NewNamer(project string, loc *time.Location) *Namer {
	if loc == nil {
		loc = time.Local
	}
	return &Namer{
		project:  project,
		location: loc,
		pattern:  regexp.MustCompile(`^` + regexp.QuoteMeta(project) + `_(\d{4}-\d{2}-\d{2}_\d{6})$`),
	}
}

// New returns the release created at t, truncated to the second.
func (n *Namer) New(t time.Time) Release {
	t = t.In(n.location).Truncate(time.Second)
	return Release{
		Name:      n.project + "_" + t.Format(TimestampLayout),
		Timestamp: t,
	}
}

// Parse parses a release directory name. ok is false for names that do not
// belong to the project or do not encode a valid local time.
func (n *Namer) Parse(name string) (Release, bool) {
	m := n.pattern.FindStringSubmatch(name)
	if m == nil {
		return Release{}, false
	}

	t, err := time.ParseInLocation(TimestampLayout, m[1], n.location)
	if err != nil || t.Format(TimestampLayout) != m[1] {
		return Release{}, false
	}

	return Release{Name: name, Timestamp: t}, true
}

// Discover parses the lines of a directory listing and returns the project's
// releases oldest first. Blank lines and foreign entries are skipped.
func (n *Namer) Discover(lines []string) []Release {
	var releases []Release
	for _, line := range lines {
		if r, ok := n.Parse(strings.TrimSpace(line)); ok {
			releases = append(releases, r)
		}
	}
	Sort(releases)
	return releases
}

// Sort orders releases oldest first.
func Sort(releases []Release) {
	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].Timestamp.Before(releases[j].Timestamp)
	})
}

// Timeline holds the releases one run works with.
type Timeline struct {
	// Previous is the release before Last, or zero.
	Previous Release

	// Last is the most recent existing release, or zero.
	Last Release

	// Current is the release this run creates.
	Current Release
}

// NewTimeline derives Previous and Last from the existing releases and sets Current.
// Current must be strictly newer than every existing release.
func NewTimeline(existing []Release, current Release) (Timeline, error) {
	sorted := make([]Release, len(existing))
	copy(sorted, existing)
	Sort(sorted)

	tl := Timeline{Current: current}
	if n := len(sorted); n > 0 {
		tl.Last = sorted[n-1]
		if n > 1 {
			tl.Previous = sorted[n-2]
		}
	}

	if !tl.Last.IsZero() && !current.Timestamp.After(tl.Last.Timestamp) {
		return Timeline{}, fmt.Errorf("release %s is not newer than existing release %s", current.Name, tl.Last.Name)
	}

	return tl, nil
}

// HasHistory reports whether at least one release exists.
func (tl Timeline) HasHistory() bool {
	return !tl.Last.IsZero()
}

// Protected returns the names of the releases this run must never delete.
func (tl Timeline) Protected() map[string]bool {
	out := make(map[string]bool, 3)
	for _, r := range []Release{tl.Previous, tl.Last, tl.Current} {
		if !r.IsZero() {
			out[r.Name] = true
		}
	}
	return out
}
