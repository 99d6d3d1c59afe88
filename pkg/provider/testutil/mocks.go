// Package testutil provides mock providers for engine and handler tests.
package testutil

import (
	"context"
	"strings"
	"sync"

	"loom/pkg/provider"
)

// MockProvider implements provider.Provider for testing. By default it
// streams its Fragments one callback at a time, then returns Err (nil for
// success). StreamFunc overrides the whole behavior when set.
type MockProvider struct {
	Fragments  []string
	Err        error
	StreamFunc func(ctx context.Context, messages []provider.Message, cb provider.StreamCallback) error
	PingFunc   func(ctx context.Context) error

	mu    sync.Mutex
	calls [][]provider.Message
}

// NewMockProvider returns a mock that streams the given fragments.
func NewMockProvider(fragments ...string) *MockProvider {
	return &MockProvider{Fragments: fragments}
}

func (m *MockProvider) Stream(ctx context.Context, messages []provider.Message, cb provider.StreamCallback) error {
	m.mu.Lock()
	m.calls = append(m.calls, messages)
	m.mu.Unlock()
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, messages, cb)
	}
	for _, f := range m.Fragments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cb != nil {
			if err := cb(f); err != nil {
				return err
			}
		}
	}
	return m.Err
}

func (m *MockProvider) Complete(ctx context.Context, messages []provider.Message) (string, error) {
	var b strings.Builder
	err := m.Stream(ctx, messages, func(fragment string) error {
		b.WriteString(fragment)
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func (m *MockProvider) Model() string { return "mock-model" }

func (m *MockProvider) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Calls returns the message lists passed to Stream, in order.
func (m *MockProvider) Calls() [][]provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]provider.Message, len(m.calls))
	copy(out, m.calls)
	return out
}
