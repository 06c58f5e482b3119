// Package patch discovers, parses and validates schema patches.
//
// A patch is a pair of SQL scripts stored in a file named
// sql_YYYYMMDD_HHMMSS.<ext>. The timestamp in the name orders patches and
// places them in migration windows; the relative path is the key under
// which a patch is tracked.
package patch

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/getpup/pupdeploy"
)

// Script is the capability every patch provides.
type Script interface {
	// Up returns the SQL that applies the patch.
	Up() string

	// Down returns the SQL that reverts the patch.
	Down() string
}

// Patch is an immutable, validated schema patch.
type Patch struct {
	// Name is the relative path of the patch file, e.g. "sql_updates/sql_20240101_120000.sql".
	Name string

	// Timestamp is the local time encoded in the file name.
	Timestamp time.Time

	up   string
	down string
}

// Compile-time check that Patch implements Script.
var _ Script = Patch{}

// New builds a patch and validates its scripts.
func New(name string, timestamp time.Time, up, down string) (Patch, error) {
	p := Patch{
		Name:      name,
		Timestamp: timestamp,
		up:        up,
		down:      down,
	}
	if err := Validate(p); err != nil {
		return Patch{}, fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}

// Up returns the SQL that applies the patch.
func (p Patch) Up() string {
	return p.up
}

// Down returns the SQL that reverts the patch.
func (p Patch) Down() string {
	return p.down
}

// ID returns the base file name without extension, e.g. "sql_20240101_120000".
func (p Patch) ID() string {
	base := path.Base(p.Name)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// IsBootstrap reports whether p is the patch that creates the tracking table.
func (p Patch) IsBootstrap() bool {
	return p.ID() == BootstrapName
}

// Validate checks that each non-empty script ends with a semicolon after trimming whitespace.
func Validate(s Script) error {
	if err := validateScript(s.Up()); err != nil {
		return fmt.Errorf("up: %w", err)
	}
	if err := validateScript(s.Down()); err != nil {
		return fmt.Errorf("down: %w", err)
	}
	return nil
}

func validateScript(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return nil
	}
	if !strings.HasSuffix(trimmed, ";") {
		return fmt.Errorf("%w: script must end with a semicolon", pupdeploy.ErrPatchValidation)
	}
	return nil
}

// Names returns the names of patches in order.
func Names(patches []Patch) []string {
	names := make([]string, len(patches))
	for i, p := range patches {
		names[i] = p.Name
	}
	return names
}
