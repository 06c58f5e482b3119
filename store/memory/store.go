package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/patch"
	"github.com/getpup/pupdeploy/store"
)

// Store is an in-memory implementation of TrackingStore for testing.
// It follows the patch application protocol statement by statement, so a
// failing script leaves the same crash state a database would.
type Store struct {
	mu          sync.RWMutex
	tableExists bool
	records     map[string]pupdeploy.PatchRecord // patch name -> record
	executed    []string

	// FailScript, if set, is consulted before each up or down script runs.
	// Returning an error aborts Apply at that point.
	FailScript func(action pupdeploy.Action, p patch.Patch) error

	// AccessErr is returned by CheckAccess when set.
	AccessErr error
}

// Compile-time check that Store implements TrackingStore.
var _ store.TrackingStore = (*Store)(nil)

// New creates an in-memory store without a tracking table.
func New() *Store {
	return &Store{
		records: make(map[string]pupdeploy.PatchRecord),
	}
}

// Seed creates the tracking table if needed and stores the given records as-is.
func (s *Store) Seed(records ...pupdeploy.PatchRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tableExists = true
	for _, r := range records {
		s.records[r.Name] = r
	}
}

// Executed returns the scripts run so far as "update <name>" or "rollback <name>".
func (s *Store) Executed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.executed))
	copy(out, s.executed)
	return out
}

// TableExists reports whether the tracking table exists.
func (s *Store) TableExists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tableExists, nil
}

// Records returns every tracking record ordered by patch timestamp.
// Returns store.ErrTableMissing if the tracking table does not exist.
func (s *Store) Records(ctx context.Context) ([]pupdeploy.PatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.tableExists {
		return nil, store.ErrTableMissing
	}

	return s.sorted(func(pupdeploy.PatchRecord) bool { return true }), nil
}

// AppliedBetween returns records with after < applied_at <= until, ordered by patch timestamp.
func (s *Store) AppliedBetween(ctx context.Context, after, until time.Time) ([]pupdeploy.PatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.tableExists {
		return nil, store.ErrTableMissing
	}

	return s.sorted(func(r pupdeploy.PatchRecord) bool {
		return r.AppliedAt != nil && r.AppliedAt.After(after) && !r.AppliedAt.After(until)
	}), nil
}

// Apply runs the patch application protocol for the request.
func (s *Store) Apply(ctx context.Context, req store.ApplyRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := req.At.Truncate(time.Second)

	for _, p := range req.Patches {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch req.Action {
		case pupdeploy.ActionUpdate:
			err = s.update(p, at)
		case pupdeploy.ActionRollback:
			err = s.rollback(p, at)
		default:
			err = fmt.Errorf("unknown action %q", req.Action)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", req.Action, p.Name, err)
		}
	}

	return nil
}

func (s *Store) update(p patch.Patch, at time.Time) error {
	if p.IsBootstrap() {
		if err := s.run(pupdeploy.ActionUpdate, p); err != nil {
			return err
		}
		s.tableExists = true
		s.records[p.Name] = pupdeploy.PatchRecord{Name: p.Name, Timestamp: p.Timestamp, AppliedAt: &at}
		return nil
	}

	if !s.tableExists {
		return store.ErrTableMissing
	}
	if _, ok := s.records[p.Name]; ok {
		return fmt.Errorf("duplicate entry for %s", p.Name)
	}

	s.records[p.Name] = pupdeploy.PatchRecord{Name: p.Name, Timestamp: p.Timestamp}

	if err := s.run(pupdeploy.ActionUpdate, p); err != nil {
		return err
	}

	r := s.records[p.Name]
	r.AppliedAt = &at
	s.records[p.Name] = r
	return nil
}

func (s *Store) rollback(p patch.Patch, at time.Time) error {
	if !s.tableExists {
		return store.ErrTableMissing
	}

	// UPDATE on a missing row is a no-op, as in SQL.
	if r, ok := s.records[p.Name]; ok {
		r.RevertedAt = &at
		s.records[p.Name] = r
	}

	if err := s.run(pupdeploy.ActionRollback, p); err != nil {
		return err
	}

	delete(s.records, p.Name)
	return nil
}

func (s *Store) run(action pupdeploy.Action, p patch.Patch) error {
	if s.FailScript != nil {
		if err := s.FailScript(action, p); err != nil {
			return err
		}
	}
	s.executed = append(s.executed, string(action)+" "+p.Name)
	return nil
}

// Register records patches as applied at their own timestamp without running them.
func (s *Store) Register(ctx context.Context, patches []patch.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tableExists {
		return store.ErrTableMissing
	}

	for _, p := range patches {
		if _, ok := s.records[p.Name]; ok {
			return fmt.Errorf("duplicate entry for %s", p.Name)
		}
	}
	for _, p := range patches {
		applied := p.Timestamp.Truncate(time.Second)
		s.records[p.Name] = pupdeploy.PatchRecord{Name: p.Name, Timestamp: p.Timestamp, AppliedAt: &applied}
	}

	return nil
}

// CheckAccess returns AccessErr.
func (s *Store) CheckAccess(ctx context.Context) error {
	return s.AccessErr
}

func (s *Store) sorted(keep func(pupdeploy.PatchRecord) bool) []pupdeploy.PatchRecord {
	out := make([]pupdeploy.PatchRecord, 0, len(s.records))
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Name < out[j].Name
	})

	return out
}
