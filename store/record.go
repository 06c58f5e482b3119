package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/pkg/migrations"
)

// ParseRecord builds a record from the text columns of migrations.RecordsQuery:
// patch name, patch timestamp, applied_at and reverted_at, the timestamps as
// unix seconds and the nullable ones as migrations.NullMarker when unset.
func ParseRecord(columns []string, loc *time.Location) (pupdeploy.PatchRecord, error) {
	if len(columns) != 4 {
		return pupdeploy.PatchRecord{}, fmt.Errorf("expected 4 columns in tracking record, got %d", len(columns))
	}
	if loc == nil {
		loc = time.Local
	}

	ts, err := parseUnix(columns[1], loc)
	if err != nil {
		return pupdeploy.PatchRecord{}, fmt.Errorf("invalid patch_timestamp for %s: %w", columns[0], err)
	}

	applied, err := parseNullableUnix(columns[2], loc)
	if err != nil {
		return pupdeploy.PatchRecord{}, fmt.Errorf("invalid applied_at for %s: %w", columns[0], err)
	}

	reverted, err := parseNullableUnix(columns[3], loc)
	if err != nil {
		return pupdeploy.PatchRecord{}, fmt.Errorf("invalid reverted_at for %s: %w", columns[0], err)
	}

	return pupdeploy.PatchRecord{
		Name:       columns[0],
		Timestamp:  ts,
		AppliedAt:  applied,
		RevertedAt: reverted,
	}, nil
}

func parseUnix(s string, loc *time.Location) (time.Time, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(n, 0).In(loc), nil
}

func parseNullableUnix(s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == migrations.NullMarker || s == "" {
		return nil, nil
	}
	t, err := parseUnix(s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
