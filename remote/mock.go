package remote

import (
	"context"
	"sync"
)

// MockRunner is a mock implementation of Runner for testing.
// Without RunFunc every command succeeds with no output.
type MockRunner struct {
	mu       sync.Mutex
	RunFunc  func(ctx context.Context, cmd Command) (Result, error)
	RunCalls []Command
}

// Compile-time check that MockRunner implements Runner.
var _ Runner = (*MockRunner)(nil)

// NewMockRunner creates a new MockRunner with an empty call history.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		RunCalls: make([]Command, 0),
	}
}

// Run implements the Runner interface.
func (m *MockRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	m.mu.Lock()
	m.RunCalls = append(m.RunCalls, cmd)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, cmd)
	}

	return Result{}, nil
}

// Calls returns a copy of the call history.
func (m *MockRunner) Calls() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Command, len(m.RunCalls))
	copy(out, m.RunCalls)
	return out
}

// Reset clears the call history.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunCalls = make([]Command, 0)
}

// MockSyncer is a mock implementation of Syncer for testing.
type MockSyncer struct {
	mu        sync.Mutex
	SyncFunc  func(ctx context.Context, req SyncRequest) (Result, error)
	SyncCalls []SyncRequest
}

// Compile-time check that MockSyncer implements Syncer.
var _ Syncer = (*MockSyncer)(nil)

// NewMockSyncer creates a new MockSyncer with an empty call history.
func NewMockSyncer() *MockSyncer {
	return &MockSyncer{
		SyncCalls: make([]SyncRequest, 0),
	}
}

// Sync implements the Syncer interface.
func (m *MockSyncer) Sync(ctx context.Context, req SyncRequest) (Result, error) {
	m.mu.Lock()
	m.SyncCalls = append(m.SyncCalls, req)
	m.mu.Unlock()

	if m.SyncFunc != nil {
		return m.SyncFunc(ctx, req)
	}

	return Result{}, nil
}

// Calls returns a copy of the call history.
func (m *MockSyncer) Calls() []SyncRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SyncRequest, len(m.SyncCalls))
	copy(out, m.SyncCalls)
	return out
}

// Reset clears the call history.
func (m *MockSyncer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SyncCalls = make([]SyncRequest, 0)
}
