package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/godilite/aiticket/internal/api"
	"github.com/godilite/aiticket/internal/api/models"
	"github.com/godilite/aiticket/pkg/tokenstore"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Session is the authenticated identity and its bearer token.
type Session struct {
	Token string
	User  models.User
}

// Backend is the subset of the API client the manager needs.
type Backend interface {
	Token(ctx context.Context, email, password string) (models.TokenResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) error
	Me(ctx context.Context, token string) (models.User, error)
}

// Manager owns the token and the current user. Every login, logout and
// invalidation bumps the epoch; results computed under an older epoch
// belong to a session that no longer exists.
type Manager struct {
	backend Backend
	store   tokenstore.Store
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.RWMutex
	current *Session
	epoch   uint64
	hooks   []func()

	restoreGroup singleflight.Group
}

// NewManager creates a Manager.
func NewManager(backend Backend, store tokenstore.Store, logger *zap.Logger) *Manager {
	if backend == nil {
		panic("backend must not be nil")
	}
	if store == nil {
		panic("token store must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		backend: backend,
		store:   store,
		logger:  logger.Named("session"),
		now:     time.Now,
	}
}

// OnReset registers fn to run whenever the session is destroyed or replaced.
func (m *Manager) OnReset(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Current returns the active session, if any.
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

func (m *Manager) Epoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch
}

// Credentials returns the token to attach to an authenticated call and the
// epoch it belongs to.
func (m *Manager) Credentials() (token string, epoch uint64, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return "", m.epoch, false
	}
	return m.current.Token, m.epoch, true
}

// Call runs fn with the current token. A 401 from fn resets the session and
// is reported as ErrSessionInvalidated. The returned epoch is the one fn ran
// under; callers compare it with Epoch before applying results.
func (m *Manager) Call(ctx context.Context, fn func(ctx context.Context, token string) error) (uint64, error) {
	token, epoch, ok := m.Credentials()
	if !ok {
		return epoch, ErrNotAuthenticated
	}

	err := fn(ctx, token)
	if err != nil && api.IsUnauthorized(err) {
		m.Invalidate(ctx, epoch)
		return epoch, fmt.Errorf("%w: %v", ErrSessionInvalidated, err)
	}
	return epoch, err
}

// Login exchanges credentials for a session. On failure any prior session
// is left untouched.
func (m *Manager) Login(ctx context.Context, email, password string) (Session, error) {
	resp, err := m.backend.Token(ctx, email, password)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			m.logger.Info("login rejected", zap.String("email", email), zap.Int("status", apiErr.StatusCode))
			return Session{}, &AuthError{Kind: InvalidCredentials, Detail: apiErr.Detail, Err: err}
		}
		return Session{}, fmt.Errorf("login: %w", err)
	}

	var user models.User
	if resp.User != nil {
		user = *resp.User
	} else {
		user, err = m.backend.Me(ctx, resp.AccessToken)
		if err != nil {
			return Session{}, fmt.Errorf("login: fetch profile: %w", err)
		}
	}

	s := Session{Token: resp.AccessToken, User: user}
	replaced, err := m.install(ctx, &s)
	if err != nil {
		return Session{}, fmt.Errorf("login: persist token: %w", err)
	}
	if replaced {
		m.runHooks()
	}

	m.logger.Info("signed in", zap.Int64("user_id", user.ID), zap.Bool("admin", user.IsAdmin))
	return s, nil
}

// Register creates an account and signs in with the same credentials.
func (m *Manager) Register(ctx context.Context, fullName, email, password string) (Session, error) {
	err := m.backend.Register(ctx, models.RegisterRequest{
		Email:    email,
		Password: password,
		FullName: fullName,
	})
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			m.logger.Info("registration rejected", zap.String("email", email), zap.String("detail", apiErr.Detail))
			return Session{}, &AuthError{Kind: Validation, Detail: apiErr.Detail, Err: err}
		}
		return Session{}, fmt.Errorf("register: %w", err)
	}
	return m.Login(ctx, email, password)
}

// Restore revalidates a durable token left by a previous run. A rejected
// or expired token is cleared and (zero, false, nil) is returned. Transport
// failures keep the token and return the error.
func (m *Manager) Restore(ctx context.Context) (Session, bool, error) {
	if s, ok := m.Current(); ok {
		return s, true, nil
	}

	v, err, _ := m.restoreGroup.Do("restore", func() (any, error) {
		return m.restore(ctx)
	})
	if err != nil {
		return Session{}, false, err
	}
	s, _ := v.(*Session)
	if s == nil {
		return Session{}, false, nil
	}
	return *s, true, nil
}

func (m *Manager) restore(ctx context.Context) (*Session, error) {
	epoch := m.Epoch()

	token, err := m.store.Load(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("restore: load token: %w", err)
	}

	if tokenExpired(token, m.now()) {
		if m.clearStoredAt(ctx, epoch) {
			m.logger.Info("stored token expired, cleared")
		}
		return nil, nil
	}

	user, err := m.backend.Me(ctx, token)
	if err != nil {
		switch api.StatusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			if !m.clearStoredAt(ctx, epoch) {
				// The token now on disk belongs to a newer session.
				return m.currentPtr(), nil
			}
			m.logger.Info("stored token rejected, cleared", zap.Int("status", api.StatusCode(err)))
			return nil, nil
		}
		return nil, fmt.Errorf("restore: validate token: %w", err)
	}

	m.mu.Lock()
	if m.epoch != epoch {
		// A login or logout finished while we were validating; it wins.
		current := m.current
		m.mu.Unlock()
		return current, nil
	}
	s := &Session{Token: token, User: user}
	m.current = s
	m.epoch++
	m.mu.Unlock()

	m.logger.Info("session restored", zap.Int64("user_id", user.ID))
	return s, nil
}

// Logout clears the durable token and the in-memory session unconditionally
// and resets every dependent component.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.epoch++
	err := m.store.Clear(ctx)
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("failed to clear stored token", zap.Error(err))
	}
	m.runHooks()
	m.logger.Info("signed out")
	return err
}

// Invalidate resets the session after the backend rejected its token. It
// is a no-op when the session of that epoch has already been replaced.
func (m *Manager) Invalidate(ctx context.Context, epoch uint64) bool {
	m.mu.Lock()
	if m.current == nil || m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	m.current = nil
	m.epoch++
	m.clearStoredLocked(ctx)
	m.mu.Unlock()

	m.logger.Warn("session invalidated by backend")
	m.runHooks()
	return true
}

// Durable token writes happen under m.mu so they are ordered with epoch
// changes: a stale restore can never erase a token saved by a newer login.

func (m *Manager) install(ctx context.Context, s *Session) (replaced bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(ctx, s.Token); err != nil {
		return false, err
	}
	replaced = m.current != nil
	m.current = s
	m.epoch++
	return replaced, nil
}

// clearStoredAt clears the durable token only if no login or logout has
// happened since epoch.
func (m *Manager) clearStoredAt(ctx context.Context, epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return false
	}
	m.clearStoredLocked(ctx)
	return true
}

func (m *Manager) clearStoredLocked(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error("failed to clear stored token", zap.Error(err))
	}
}

func (m *Manager) currentPtr() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) runHooks() {
	m.mu.RLock()
	hooks := make([]func(), len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}

// tokenExpired reports whether token is a JWT whose exp claim has passed.
// Opaque tokens are never considered expired locally.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
