// Package tokenstore persists the session token across process restarts.
//
// A Store holds at most one token per (origin, key) pair. Writes replace the
// value in a single statement so a reader never observes a partial token.
package tokenstore

import (
	"context"
	"errors"
	"sync"
)

// DefaultKey is the fixed key the session token is stored under.
const DefaultKey = "access_token"

// ErrNotFound is returned by Load when no token is stored.
var ErrNotFound = errors.New("token not found")

// Store is origin-scoped durable storage for a single token.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	Close() error
}

// Memory is a process-local Store, used in tests and with TOKEN_STORE=memory.
type Memory struct {
	mu    sync.Mutex
	token string
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", ErrNotFound
	}
	return m.token, nil
}

func (m *Memory) Save(_ context.Context, token string) error {
	if token == "" {
		return errors.New("token must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

func (m *Memory) Close() error { return nil }
