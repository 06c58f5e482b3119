package confirm

import (
	"context"
	"fmt"
	"sync"
)

// MockPrompter is a scripted Prompter for testing.
// Answers are looked up by question; unknown confirmations are declined.
type MockPrompter struct {
	mu sync.Mutex

	// Answers maps a confirmation question to its answer.
	Answers map[string]bool

	// Inputs maps an input question to its answers, consumed in order.
	Inputs map[string][]string

	// ConfirmFunc, if set, replaces the Answers lookup.
	ConfirmFunc func(ctx context.Context, question string) (bool, error)

	// Call tracking
	Questions []string
}

// Compile-time check that MockPrompter implements Prompter.
var _ Prompter = (*MockPrompter)(nil)

// NewMockPrompter creates a MockPrompter that answers yes to the given questions.
func NewMockPrompter(yes ...string) *MockPrompter {
	m := &MockPrompter{
		Answers: make(map[string]bool),
		Inputs:  make(map[string][]string),
	}
	for _, q := range yes {
		m.Answers[q] = true
	}
	return m
}

// Confirm implements Prompter.
func (m *MockPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	m.mu.Lock()
	m.Questions = append(m.Questions, question)
	answer := m.Answers[question]
	m.mu.Unlock()

	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, question)
	}
	return answer, nil
}

// Input implements Prompter.
func (m *MockPrompter) Input(ctx context.Context, question, def string, secret bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Questions = append(m.Questions, question)

	queue := m.Inputs[question]
	if len(queue) == 0 {
		if def != "" {
			return def, nil
		}
		return "", fmt.Errorf("%w: no scripted answer for %q", ErrNonInteractive, question)
	}
	m.Inputs[question] = queue[1:]
	return queue[0], nil
}

// Asked reports whether question was asked.
func (m *MockPrompter) Asked(question string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, q := range m.Questions {
		if q == question {
			return true
		}
	}
	return false
}
