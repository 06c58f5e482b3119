package patch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupsourcing/es"
)

// Config configures a Repository.
type Config struct {
	// FS is the file system rooted at the project base directory (required).
	FS fs.FS

	// Dirs are the patch directories relative to FS, scanned non-recursively.
	Dirs []string

	// Location is the time zone patch file names are written in (default: time.Local).
	Location *time.Location

	// Logger is for observability (optional).
	Logger es.Logger
}

// Repository discovers and loads patches from a set of directories.
type Repository struct {
	config Config
}

// NewRepository creates a Repository with the given configuration.
func NewRepository(cfg Config) *Repository {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Repository{config: cfg}
}

// Location returns the time zone patch timestamps are parsed in.
func (r *Repository) Location() *time.Location {
	return r.config.Location
}

// List loads every patch found in the configured directories, ordered by timestamp and name.
// A file named after the bootstrap patch is skipped.
// A file that matches the naming convention but encodes an invalid time fails the whole listing
// with ErrMalformedPatchName; a script that fails validation fails it with ErrPatchValidation.
func (r *Repository) List(ctx context.Context) ([]Patch, error) {
	var patches []Patch

	for _, dir := range r.config.Dirs {
		dir = path.Clean(dir)
		entries, err := fs.ReadDir(r.config.FS, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read patch directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !IsPatchFile(entry.Name()) {
				continue
			}

			p, err := r.Load(path.Join(dir, entry.Name()))
			if err != nil {
				return nil, err
			}
			// The tracking table is created by the built-in bootstrap patch.
			if p.IsBootstrap() {
				if r.config.Logger != nil {
					r.config.Logger.Debug(ctx, "bootstrap patch file ignored", "name", p.Name)
				}
				continue
			}
			patches = append(patches, p)
		}
	}

	Sort(patches)

	if r.config.Logger != nil {
		r.config.Logger.Debug(ctx, "patches discovered", "count", len(patches), "dirs", r.config.Dirs)
	}

	return patches, nil
}

// Load reads and validates one patch file. name is relative to the repository file system.
func (r *Repository) Load(name string) (Patch, error) {
	ts, err := ParseTimestamp(name, r.config.Location)
	if err != nil {
		return Patch{}, err
	}

	content, err := fs.ReadFile(r.config.FS, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Patch{}, fmt.Errorf("%w: %s", pupdeploy.ErrPatchNotFound, name)
		}
		return Patch{}, fmt.Errorf("failed to read patch %s: %w", name, err)
	}

	up, down, err := Parse(name, content)
	if err != nil {
		return Patch{}, fmt.Errorf("%s: %w", name, err)
	}

	return New(name, ts, up, down)
}

// Sort orders patches oldest first, breaking timestamp ties by name.
func Sort(patches []Patch) {
	sort.SliceStable(patches, func(i, j int) bool {
		if !patches[i].Timestamp.Equal(patches[j].Timestamp) {
			return patches[i].Timestamp.Before(patches[j].Timestamp)
		}
		return patches[i].Name < patches[j].Name
	})
}
