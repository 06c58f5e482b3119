// Package cli implements the tracking store through a database command line
// client on a control host reached over the remote runner.
//
// Queries are written to the client's standard input, so SQL never appears
// on a command line. Patches are applied by running the patch emitter inside
// the release directory and feeding its output to the client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/patch"
	"github.com/getpup/pupdeploy/pkg/migrations"
	"github.com/getpup/pupdeploy/protocol"
	"github.com/getpup/pupdeploy/remote"
	"github.com/getpup/pupdeploy/store"
	"github.com/getpup/pupsourcing/es"
)

// Config configures a Store.
type Config struct {
	// Dialect selects the SQL dialect and client (required).
	Dialect pupdeploy.Dialect

	// Table is the tracking table name (default: db_patches).
	Table string

	// ControlHost is the host the client runs on (required).
	ControlHost pupdeploy.Host

	// DatabaseHost is the database server as seen from the control host (optional).
	DatabaseHost string

	// Credentials select the database and account.
	Credentials store.Credentials

	// ClientPath overrides the client binary (default: mysql, psql or sqlite3).
	ClientPath string

	// PatcherPath is the patch emitter, relative to the release directory (default: bin/db-patcher).
	PatcherPath string

	// Runner runs commands on the control host (required).
	Runner remote.Runner

	// Location is the time zone records are returned in (default: time.Local).
	Location *time.Location

	// Now returns the current time. It names the access probe table (default: time.Now).
	Now func() time.Time

	// Logger is for observability (optional).
	Logger es.Logger
}

// Store is a TrackingStore backed by a command line client.
type Store struct {
	config  Config
	emitter protocol.Emitter
}

// Compile-time check that Store implements TrackingStore.
var _ store.TrackingStore = (*Store)(nil)

// New creates a Store with the given configuration.
func New(cfg Config) (*Store, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("%w: database client needs a command runner", pupdeploy.ErrConfiguration)
	}
	if cfg.ControlHost == "" {
		return nil, fmt.Errorf("%w: database control host is required", pupdeploy.ErrConfiguration)
	}

	emitter, err := protocol.NewEmitter(cfg.Dialect, cfg.Table)
	if err != nil {
		return nil, err
	}
	cfg.Table = emitter.Table

	if cfg.ClientPath == "" {
		cfg.ClientPath = defaultClient(cfg.Dialect)
	}
	if cfg.PatcherPath == "" {
		cfg.PatcherPath = "bin/db-patcher"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Store{config: cfg, emitter: emitter}, nil
}

// WithCredentials returns a copy of the store that logs in with creds.
func (s *Store) WithCredentials(creds store.Credentials) *Store {
	c := *s
	c.config.Credentials = creds
	return &c
}

func defaultClient(d pupdeploy.Dialect) string {
	switch d {
	case pupdeploy.DialectPostgres:
		return "psql"
	case pupdeploy.DialectSQLite:
		return "sqlite3"
	default:
		return "mysql"
	}
}

// tab expands to a tab character in a POSIX shell.
const tab = `"$(printf '\t')"`

// ClientCommand returns the shell command that reads SQL from standard input
// and prints rows as tab separated columns without headers.
func (s *Store) ClientCommand() string {
	c := s.config
	creds := c.Credentials
	var args []string

	switch c.Dialect {
	case pupdeploy.DialectPostgres:
		if creds.Password != "" {
			args = append(args, "PGPASSWORD="+remote.Quote(creds.Password))
		}
		args = append(args, c.ClientPath, "-X", "-q", "-A", "-t", "-F", tab, "-v", "ON_ERROR_STOP=1")
		if c.DatabaseHost != "" {
			args = append(args, "-h", remote.Quote(c.DatabaseHost))
		}
		if creds.User != "" {
			args = append(args, "-U", remote.Quote(creds.User))
		}
		args = append(args, "-d", remote.Quote(creds.Database))
	case pupdeploy.DialectSQLite:
		args = append(args, c.ClientPath, "-bail", "-batch", "-separator", tab, remote.Quote(creds.Database))
	default:
		if creds.Password != "" {
			args = append(args, "MYSQL_PWD="+remote.Quote(creds.Password))
		}
		args = append(args, c.ClientPath)
		if c.DatabaseHost != "" {
			args = append(args, "-h", remote.Quote(c.DatabaseHost))
		}
		if creds.User != "" {
			args = append(args, "-u", remote.Quote(creds.User))
		}
		args = append(args, "-N", "-B", remote.Quote(creds.Database))
	}

	return strings.Join(args, " ")
}

func (s *Store) exec(ctx context.Context, sql string) (remote.Result, error) {
	return s.config.Runner.Run(ctx, remote.Command{
		Host:   s.config.ControlHost,
		Script: s.ClientCommand(),
		Stdin:  sql + "\n",
	})
}

// TableExists reports whether the tracking table exists.
func (s *Store) TableExists(ctx context.Context) (bool, error) {
	result, err := s.exec(ctx, migrations.TableExistsQuery(s.config.Dialect, s.config.Table)+";")
	if err != nil {
		return false, fmt.Errorf("failed to probe tracking table: %w", err)
	}

	for _, line := range result.Output {
		if strings.TrimSpace(line) == s.config.Table {
			return true, nil
		}
	}
	return false, nil
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
	result, err := s.exec(ctx, query+";")
	if err != nil {
		if exists, probeErr := s.TableExists(ctx); probeErr == nil && !exists {
			return nil, store.ErrTableMissing
		}
		return nil, fmt.Errorf("failed to query tracking records: %w", err)
	}

	var records []pupdeploy.PatchRecord
	for _, line := range result.Output {
		columns := strings.Split(line, "\t")
		if len(columns) != 4 {
			// Clients may print warnings on the combined output.
			if s.config.Logger != nil && strings.TrimSpace(line) != "" {
				s.config.Logger.Debug(ctx, "skipping client output line", "line", line)
			}
			continue
		}

		r, err := store.ParseRecord(columns, s.config.Location)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, nil
}

// PatcherScript returns the shell script that emits the protocol for req
// inside the release directory and pipes it into the client.
func (s *Store) PatcherScript(req store.ApplyRequest) string {
	args := []string{
		remote.Quote(s.config.PatcherPath),
		"-dialect", string(s.config.Dialect),
		"-table", s.config.Table,
	}
	if s.config.Location != time.Local {
		args = append(args, "-tz", remote.Quote(s.config.Location.String()))
	}
	args = append(args,
		string(req.Action),
		remote.Quote(s.config.Credentials.Database),
		strconv.FormatInt(req.At.Unix(), 10),
	)
	for _, p := range req.Patches {
		if p.IsBootstrap() {
			args = append(args, patch.BootstrapName)
			continue
		}
		args = append(args, remote.Quote(p.Name))
	}

	return fmt.Sprintf(`cd %s && f=$(mktemp) && %s > "$f" && %s < "$f"; rc=$?; rm -f "$f"; exit $rc`,
		remote.Quote(req.ReleaseDir), strings.Join(args, " "), s.ClientCommand())
}

// Apply runs the patch emitter in the release directory and feeds its output to the client.
func (s *Store) Apply(ctx context.Context, req store.ApplyRequest) error {
	if len(req.Patches) == 0 {
		return nil
	}
	if req.ReleaseDir == "" {
		return fmt.Errorf("%w: applying patches needs the release directory", pupdeploy.ErrConfiguration)
	}

	result, err := s.config.Runner.Run(ctx, remote.Command{
		Host:   s.config.ControlHost,
		Script: s.PatcherScript(req),
	})
	if err != nil {
		return fmt.Errorf("failed to %s database patches: %w", req.Action, err)
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "database patches executed",
			"action", req.Action,
			"count", len(req.Patches),
			"output", result.Output,
		)
	}

	return nil
}

// Register records patches as applied at their own timestamp without running them.
func (s *Store) Register(ctx context.Context, patches []patch.Patch) error {
	stmt := s.emitter.Register(patches)
	if stmt == "" {
		return nil
	}

	if _, err := s.exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to register patches: %w", err)
	}

	return nil
}

// CheckAccess creates and drops a scratch table.
// Returns store.ErrAccessDenied if the client fails.
func (s *Store) CheckAccess(ctx context.Context) error {
	create, drop := migrations.AccessProbeSQL(s.config.Now().Unix())

	_, err := s.exec(ctx, create+"\n"+drop)
	if err == nil {
		return nil
	}

	if errors.Is(err, pupdeploy.ErrRemoteCommand) {
		return fmt.Errorf("%w: %v", store.ErrAccessDenied, err)
	}
	return err
}
