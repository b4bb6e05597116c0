package loginsession

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/sponsor-auth/internal/errors"
	"github.com/jrsteele09/sponsor-auth/sessions"
	"github.com/jrsteele09/sponsor-auth/users"
	"github.com/rs/zerolog/log"
)

// UserKey is the session attribute holding the logged in Identity
const UserKey = "user"

// Manager binds authenticated identities to sessions. Every login runs on a
// freshly created session so that an identifier seen before authentication
// never carries an authenticated principal.
type Manager struct {
	jar         *sessions.Jar
	maxInactive time.Duration
}

func NewManager(jar *sessions.Jar, maxInactive time.Duration) (*Manager, error) {
	if jar == nil {
		return nil, errors.New("[NewManager] session jar is required")
	}
	return &Manager{
		jar:         jar,
		maxInactive: maxInactive,
	}, nil
}

// Login replaces the request's session with a new one holding identity,
// stripped of its secrets. It reports false when nothing was bound.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, identity users.Identity) bool {
	if !identity.Valid() {
		log.Warn().Str("role", string(identity.Role)).Msg("refusing to bind invalid identity")
		return false
	}

	fresh, err := m.regenerate(w, r)
	if err != nil {
		log.Err(err).Str("remote", r.RemoteAddr).Msg("could not login user due to a session error")
		return false
	}

	bound := identity.WithoutSecret()
	_, err = m.jar.Store().Update(r.Context(), fresh.ID, func(s *sessions.Session) error {
		if m.maxInactive > 0 {
			s.InactivityTimeout = m.maxInactive
		}
		return sessions.SetAttr(s, UserKey, bound)
	})
	if err != nil {
		log.Err(err).Str("remote", r.RemoteAddr).Msg("could not bind user to session")
		if invErr := m.jar.Invalidate(w, r, fresh); invErr != nil {
			log.Err(invErr).Msg("could not discard unbound session")
		}
		return false
	}

	log.Info().Str("role", string(bound.Role)).Int("id", bound.ID).Msg("user logged in")
	return true
}

func (m *Manager) regenerate(w http.ResponseWriter, r *http.Request) (*sessions.Session, error) {
	old, err := m.jar.GetOrCreate(w, r)
	if err != nil {
		return nil, err
	}
	if err := m.jar.Invalidate(w, r, old); err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
		return nil, err
	}
	return m.jar.Create(w, r)
}

// Logout unbinds the user and invalidates s without creating a replacement
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request, s *sessions.Session) bool {
	if s == nil {
		return false
	}

	_, err := m.jar.Store().Update(r.Context(), s.ID, func(sess *sessions.Session) error {
		sess.Remove(UserKey)
		return nil
	})
	if err != nil {
		if !errors.Is(err, sessions.ErrSessionNotFound) {
			log.Err(err).Msg("could not logout user due to a session error")
		}
		return false
	}

	if err := m.jar.Invalidate(w, r, s); err != nil {
		if !errors.Is(err, sessions.ErrSessionNotFound) {
			log.Err(err).Msg("could not invalidate session on logout")
		}
		return false
	}
	return true
}

// IsLoggedIn reports whether s currently holds a well-formed identity
func (m *Manager) IsLoggedIn(ctx context.Context, s *sessions.Session) bool {
	_, ok := m.User(ctx, s)
	return ok
}

// User returns the identity bound to s. Values of the wrong shape read as
// absent.
func (m *Manager) User(ctx context.Context, s *sessions.Session) (users.Identity, bool) {
	if s == nil {
		return users.Identity{}, false
	}
	current, err := m.jar.Store().Load(ctx, s.ID)
	if err != nil {
		if !errors.Is(err, sessions.ErrSessionNotFound) {
			log.Err(err).Msg("could not get user due to a session error")
		}
		return users.Identity{}, false
	}

	identity, ok := sessions.GetAttr[users.Identity](current, UserKey)
	if !ok || !identity.Valid() {
		return users.Identity{}, false
	}
	return identity, true
}

// Role maps an identity to its role tag
func (m *Manager) Role(identity users.Identity) users.Role {
	return identity.Role
}
