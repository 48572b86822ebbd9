package mocks

import (
	"context"
	"sync"
)

// MockAuthenticator is a function-based stand-in for *session.Manager in
// component tests. With no CallFunc set it passes Token to fn.
type MockAuthenticator struct {
	Token    string
	CallFunc func(ctx context.Context, fn func(ctx context.Context, token string) error) (uint64, error)

	mu    sync.Mutex
	epoch uint64
}

// Call implements the Authenticator interface
func (m *MockAuthenticator) Call(ctx context.Context, fn func(ctx context.Context, token string) error) (uint64, error) {
	if m.CallFunc != nil {
		return m.CallFunc(ctx, fn)
	}
	epoch := m.Epoch()
	return epoch, fn(ctx, m.Token)
}

// Epoch implements the Authenticator interface
func (m *MockAuthenticator) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Bump simulates a login or logout.
func (m *MockAuthenticator) Bump() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
}
