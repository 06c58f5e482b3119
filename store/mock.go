package store

import (
	"context"
	"sync"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupdeploy/patch"
)

// MockTrackingStore is a configurable mock implementation of TrackingStore
// for use in tests. It allows setting up expected return values, tracking method
// calls, and injecting errors for testing error paths.
type MockTrackingStore struct {
	mu sync.RWMutex

	// TableExistsFunc is called by TableExists if set.
	TableExistsFunc func(ctx context.Context) (bool, error)

	// RecordsFunc is called by Records if set.
	RecordsFunc func(ctx context.Context) ([]pupdeploy.PatchRecord, error)

	// AppliedBetweenFunc is called by AppliedBetween if set.
	AppliedBetweenFunc func(ctx context.Context, after, until time.Time) ([]pupdeploy.PatchRecord, error)

	// ApplyFunc is called by Apply if set.
	ApplyFunc func(ctx context.Context, req ApplyRequest) error

	// RegisterFunc is called by Register if set.
	RegisterFunc func(ctx context.Context, patches []patch.Patch) error

	// CheckAccessFunc is called by CheckAccess if set.
	CheckAccessFunc func(ctx context.Context) error

	// Call tracking
	TableExistsCalls    int
	RecordsCalls        int
	AppliedBetweenCalls []AppliedBetweenCall
	ApplyCalls          []ApplyRequest
	RegisterCalls       [][]patch.Patch
	CheckAccessCalls    int
}

// AppliedBetweenCall records the parameters of a single AppliedBetween call.
type AppliedBetweenCall struct {
	After time.Time
	Until time.Time
}

// Compile-time check that MockTrackingStore implements TrackingStore.
var _ TrackingStore = (*MockTrackingStore)(nil)

// NewMockTrackingStore creates a new mock tracking store.
func NewMockTrackingStore() *MockTrackingStore {
	return &MockTrackingStore{}
}

// TableExists implements TrackingStore.
// Without TableExistsFunc it reports that the table exists.
func (m *MockTrackingStore) TableExists(ctx context.Context) (bool, error) {
	m.mu.Lock()
	m.TableExistsCalls++
	m.mu.Unlock()

	if m.TableExistsFunc != nil {
		return m.TableExistsFunc(ctx)
	}

	return true, nil
}

// Records implements TrackingStore.
func (m *MockTrackingStore) Records(ctx context.Context) ([]pupdeploy.PatchRecord, error) {
	m.mu.Lock()
	m.RecordsCalls++
	m.mu.Unlock()

	if m.RecordsFunc != nil {
		return m.RecordsFunc(ctx)
	}

	return nil, nil
}

// AppliedBetween implements TrackingStore.
func (m *MockTrackingStore) AppliedBetween(ctx context.Context, after, until time.Time) ([]pupdeploy.PatchRecord, error) {
	m.mu.Lock()
	m.AppliedBetweenCalls = append(m.AppliedBetweenCalls, AppliedBetweenCall{After: after, Until: until})
	m.mu.Unlock()

	if m.AppliedBetweenFunc != nil {
		return m.AppliedBetweenFunc(ctx, after, until)
	}

	return nil, nil
}

// Apply implements TrackingStore.
func (m *MockTrackingStore) Apply(ctx context.Context, req ApplyRequest) error {
	m.mu.Lock()
	m.ApplyCalls = append(m.ApplyCalls, req)
	m.mu.Unlock()

	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, req)
	}

	return nil
}

// Register implements TrackingStore.
func (m *MockTrackingStore) Register(ctx context.Context, patches []patch.Patch) error {
	m.mu.Lock()
	m.RegisterCalls = append(m.RegisterCalls, patches)
	m.mu.Unlock()

	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, patches)
	}

	return nil
}

// CheckAccess implements TrackingStore.
func (m *MockTrackingStore) CheckAccess(ctx context.Context) error {
	m.mu.Lock()
	m.CheckAccessCalls++
	m.mu.Unlock()

	if m.CheckAccessFunc != nil {
		return m.CheckAccessFunc(ctx)
	}

	return nil
}

// Reset clears the call history.
func (m *MockTrackingStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TableExistsCalls = 0
	m.RecordsCalls = 0
	m.AppliedBetweenCalls = nil
	m.ApplyCalls = nil
	m.RegisterCalls = nil
	m.CheckAccessCalls = 0
}
