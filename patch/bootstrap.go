package patch

import (
	"fmt"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/pkg/migrations"
)

// BootstrapName is the identifier of the patch that creates the tracking table.
const BootstrapName = "sql_19700101_080000"

// BootstrapTimestamp returns the timestamp of the bootstrap patch in loc.
// It predates every real patch so the bootstrap always runs first.
func BootstrapTimestamp(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(1970, time.January, 1, 8, 0, 0, 0, loc)
}

// Bootstrap returns the patch that creates the tracking table.
// It is built in code, never read from a patch directory, and has no down script.
func Bootstrap(dialect pupdeploy.Dialect, table string, loc *time.Location) (Patch, error) {
	ddl, err := migrations.TrackingTableSQL(dialect, table)
	if err != nil {
		return Patch{}, fmt.Errorf("%w: %v", pupdeploy.ErrConfiguration, err)
	}
	return New(BootstrapName, BootstrapTimestamp(loc), ddl, "")
}
