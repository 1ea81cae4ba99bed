// Package session owns the client's credential and the identity of the
// current actor, and tells interested components when a session starts or
// ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aimed/aimed/internal/domain/entity"
	"github.com/aimed/aimed/internal/platform/credential"
	"github.com/aimed/aimed/internal/platform/gateway"
)

// ErrNoSession is returned by operations that need a resolved identity.
var ErrNoSession = errors.New("no active session")

// Authenticator is the slice of the gateway the session manager uses.
type Authenticator interface {
	Login(ctx context.Context, email, password string, role entity.Role) (gateway.AuthResult, error)
	Register(ctx context.Context, req gateway.RegisterRequest) (gateway.AuthResult, error)
	Me(ctx context.Context) (entity.User, error)
}

// Clearer empties the mirrored collections.
type Clearer interface {
	Clear()
}

// Listener is notified when an identity is installed or removed. Listeners
// run synchronously, in registration order, before the triggering call
// returns.
type Listener interface {
	SessionStarted(user entity.User)
	SessionEnded()
}

type Manager struct {
	auth   Authenticator
	creds  credential.Store
	store  Clearer
	logger zerolog.Logger

	mu        sync.RWMutex
	current   *entity.User
	listeners []Listener
}

func NewManager(auth Authenticator, creds credential.Store, store Clearer, logger zerolog.Logger) *Manager {
	return &Manager{
		auth:   auth,
		creds:  creds,
		store:  store,
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// AddListener registers l for session start and end notifications.
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Current returns the resolved identity, if any.
func (m *Manager) Current() (entity.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return entity.User{}, false
	}
	return *m.current, true
}

// Active reports whether an identity is resolved.
func (m *Manager) Active() bool {
	_, ok := m.Current()
	return ok
}

// Login exchanges credentials for a bearer token. On failure the returned
// error carries the server's message; no state changes.
func (m *Manager) Login(ctx context.Context, email, password string, role entity.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	res, err := m.auth.Login(ctx, strings.TrimSpace(email), password, role)
	if err != nil {
		m.logger.Warn().Err(err).Str("email", email).Msg("login failed")
		return err
	}
	return m.install(res)
}

// Register creates an account and signs in as it.
func (m *Manager) Register(ctx context.Context, name, email, password string, role entity.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	res, err := m.auth.Register(ctx, gateway.RegisterRequest{
		Name:     strings.TrimSpace(name),
		Email:    strings.TrimSpace(email),
		Password: password,
		Role:     role,
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("email", email).Msg("registration failed")
		return err
	}
	return m.install(res)
}

func (m *Manager) install(res gateway.AuthResult) error {
	if res.Token == "" {
		return &gateway.Error{Kind: gateway.ErrInvalid, Op: "authenticate", Message: "server returned no token"}
	}
	if err := m.creds.Save(res.Token); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	m.start(res.User)
	return nil
}

// start installs u. Replacing a different identity ends the previous
// session first: listeners hear SessionEnded and the mirror is emptied
// before SessionStarted, so nothing mirrored for the old identity survives.
func (m *Manager) start(u entity.User) {
	m.mu.Lock()
	prev := m.current
	m.current = &u
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if prev != nil && prev.ID != u.ID {
		m.logger.Info().Str("user_id", prev.ID).Msg("session replaced")
		for _, l := range listeners {
			l.SessionEnded()
		}
		m.store.Clear()
	}

	m.logger.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("session started")
	for _, l := range listeners {
		l.SessionStarted(u)
	}
}

// Logout clears the persisted credential, removes the identity and empties
// every mirrored collection. Listeners are told before the mirror is
// cleared so an in-flight refresh cannot repopulate it.
func (m *Manager) Logout() {
	if err := m.creds.Clear(); err != nil {
		m.logger.Error().Err(err).Msg("failed to clear persisted credential")
	}

	m.mu.Lock()
	wasActive := m.current != nil
	m.current = nil
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l.SessionEnded()
	}
	m.store.Clear()

	if wasActive {
		m.logger.Info().Msg("session ended")
	}
}

// RestoreSession resolves the identity behind a persisted credential. It
// reports false when there is nothing to restore. Any failure to resolve
// the identity is treated as an unusable credential and triggers the same
// cleanup as Logout.
func (m *Manager) RestoreSession(ctx context.Context) (bool, error) {
	if m.Active() {
		return true, nil
	}

	_, ok, err := m.creds.Load()
	if err != nil {
		m.logger.Warn().Err(err).Msg("persisted credential unreadable")
		m.Logout()
		return false, fmt.Errorf("load credential: %w", err)
	}
	if !ok {
		m.store.Clear()
		return false, nil
	}

	u, err := m.auth.Me(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("session restore failed")
		m.Logout()
		return false, err
	}
	m.start(u)
	return true, nil
}

// SetIdentity replaces the current identity after a profile update. It is
// a no-op without an active session or when u is someone else.
func (m *Manager) SetIdentity(u entity.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.ID != u.ID {
		return
	}
	m.current = &u
}
