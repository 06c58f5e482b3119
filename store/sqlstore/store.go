// Package sqlstore implements the tracking store over a database/sql connection.
//
// It runs the patch application protocol statement by statement on the
// connection, so a failing script leaves the tracking table in the same
// crash state as the command line client would.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/patch"
	"github.com/getpup/pupdeploy/pkg/migrations"
	"github.com/getpup/pupdeploy/protocol"
	"github.com/getpup/pupdeploy/store"
	"github.com/getpup/pupsourcing/es"
)

// Config configures a Store.
type Config struct {
	// Dialect selects the SQL dialect (required).
	Dialect pupdeploy.Dialect

	// Table is the tracking table name (default: db_patches).
	Table string

	// Location is the time zone records are returned in (default: time.Local).
	Location *time.Location

	// Now returns the current time. It names the access probe table (default: time.Now).
	Now func() time.Time

	// Logger is for observability (optional).
	Logger es.Logger
}

// Store is a database/sql implementation of TrackingStore.
type Store struct {
	db      *sql.DB
	config  Config
	emitter protocol.Emitter
}

// Compile-time check that Store implements TrackingStore.
var _ store.TrackingStore = (*Store)(nil)

// New creates a Store on db.
func New(db *sql.DB, cfg Config) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database connection is required", pupdeploy.ErrConfiguration)
	}

	emitter, err := protocol.NewEmitter(cfg.Dialect, cfg.Table)
	if err != nil {
		return nil, err
	}
	cfg.Table = emitter.Table

	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Store{db: db, config: cfg, emitter: emitter}, nil
}

// TableExists reports whether the tracking table exists.
func (s *Store) TableExists(ctx context.Context) (bool, error) {
	rows, err := s.db.QueryContext(ctx, migrations.TableExistsQuery(s.config.Dialect, s.config.Table))
	if err != nil {
		return false, fmt.Errorf("failed to probe tracking table: %w", err)
	}
	defer rows.Close()

	exists := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to probe tracking table: %w", err)
	}

	return exists, nil
}

// Records returns every tracking record ordered by patch timestamp.
// Returns store.ErrTableMissing if the tracking table does not exist.
func (s *Store) Records(ctx context.Context) ([]pupdeploy.PatchRecord, error) {
	return s.query(ctx, migrations.RecordsQuery(s.config.Dialect, s.config.Table))
}

// AppliedBetween returns records with after < applied_at <= until, ordered by patch timestamp.
func (s *Store) AppliedBetween(ctx context.Context, after, until time.Time) ([]pupdeploy.PatchRecord, error) {
	return s.query(ctx, migrations.AppliedBetweenQuery(s.config.Dialect, s.config.Table, after.Unix(), until.Unix()))
}

func (s *Store) query(ctx context.Context, query string) ([]pupdeploy.PatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		if exists, probeErr := s.TableExists(ctx); probeErr == nil && !exists {
			return nil, store.ErrTableMissing
		}
		return nil, fmt.Errorf("failed to query tracking records: %w", err)
	}
	defer rows.Close()

	var records []pupdeploy.PatchRecord
	for rows.Next() {
		var name, ts, applied, reverted string
		if err := rows.Scan(&name, &ts, &applied, &reverted); err != nil {
			return nil, fmt.Errorf("failed to scan tracking record: %w", err)
		}

		r, err := store.ParseRecord([]string{name, ts, applied, reverted}, s.config.Location)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tracking records: %w", err)
	}

	return records, nil
}

// Apply runs the patch application protocol for the request.
// Statements are not wrapped in a transaction: schema changes commit
// implicitly on MySQL, and the tracking rows must reflect how far a patch got.
func (s *Store) Apply(ctx context.Context, req store.ApplyRequest) error {
	for _, p := range req.Patches {
		statements, err := s.emitter.Statements(req.Action, []patch.Patch{p}, req.At)
		if err != nil {
			return err
		}

		for _, stmt := range statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%s %s: %w", req.Action, p.Name, err)
			}
		}

		if s.config.Logger != nil {
			s.config.Logger.Info(ctx, "patch executed", "action", req.Action, "patch", p.Name)
		}
	}

	return nil
}

// Register records patches as applied at their own timestamp without running them.
func (s *Store) Register(ctx context.Context, patches []patch.Patch) error {
	stmt := s.emitter.Register(patches)
	if stmt == "" {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to register patches: %w", err)
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "patches registered as done", "count", len(patches))
	}

	return nil
}

// CheckAccess creates and drops a scratch table.
// Returns store.ErrAccessDenied if either statement fails.
func (s *Store) CheckAccess(ctx context.Context) error {
	create, drop := migrations.AccessProbeSQL(s.config.Now().Unix())

	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("%w: %v", store.ErrAccessDenied, err)
	}
	if _, err := s.db.ExecContext(ctx, drop); err != nil {
		return fmt.Errorf("%w: %v", store.ErrAccessDenied, err)
	}

	return nil
}
