package patch

import (
	"fmt"
	"path"
	"regexp"
	"time"

	"github.com/getpup/pupdeploy"
)

// TimestampLayout is the layout of the timestamp embedded in patch file names.
const TimestampLayout = "20060102_150405"

var fileNamePattern = regexp.MustCompile(`^sql_(\d{8}_\d{6})\..+$`)

// IsPatchFile reports whether a file name follows the patch naming convention.
// Only the base name is inspected.
func IsPatchFile(name string) bool {
	return fileNamePattern.MatchString(path.Base(name))
}

// ParseTimestamp returns the local time encoded in a patch file name.
//
// The digits must describe a real wall-clock time in loc: the parsed time has
// to format back into exactly the same digits. Dates such as February 30 and
// times skipped by a daylight saving change are rejected with ErrMalformedPatchName.
func ParseTimestamp(name string, loc *time.Location) (time.Time, error) {
	m := fileNamePattern.FindStringSubmatch(path.Base(name))
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %s does not match sql_YYYYMMDD_HHMMSS.ext", pupdeploy.ErrMalformedPatchName, name)
	}

	if loc == nil {
		loc = time.Local
	}

	ts, err := time.ParseInLocation(TimestampLayout, m[1], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", pupdeploy.ErrMalformedPatchName, name, err)
	}
	if ts.Format(TimestampLayout) != m[1] {
		return time.Time{}, fmt.Errorf("%w: %s: %s is not a valid local time", pupdeploy.ErrMalformedPatchName, name, m[1])
	}

	return ts, nil
}

// FormatTimestamp renders t the way patch file names encode it.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}
