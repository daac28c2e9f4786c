// Package session holds the client's single source of truth for the bearer
// credential and the identity it belongs to. Every other component reads the
// token through the store at the moment it needs it; nothing caches a token
// beyond the lifetime of one outgoing call.
package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/StorefrontGo/internal/domain"
	apperrors "github.com/utafrali/StorefrontGo/pkg/errors"
)

// Store is an injectable, concurrency-safe session holder. The zero store is
// anonymous; use New.
type Store struct {
	mu      sync.RWMutex
	current domain.Session
	nextSub int
	subs    map[int]func(domain.Session)
}

// New creates an anonymous session store.
func New() *Store {
	return &Store{subs: make(map[int]func(domain.Session))}
}

// Token returns the current access token, or "" when anonymous.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AccessToken
}

// Current returns a copy of the current session.
func (s *Store) Current() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSession(s.current)
}

// Authenticated reports whether a user is signed in.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Authenticated()
}

// Set installs a new authenticated session. Both the user and the token must
// be present; a partial session is rejected so that no observer can ever see
// a user without a token or a token without a user.
func (s *Store) Set(user domain.User, accessToken string) error {
	if accessToken == "" {
		return apperrors.InvalidInput("access token is required")
	}
	if user.ID == "" {
		return apperrors.InvalidInput("user id is required")
	}

	u := user
	next := domain.Session{AccessToken: accessToken, User: &u}

	s.mu.Lock()
	s.current = next
	subs := s.snapshotSubs()
	s.mu.Unlock()

	notify(subs, cloneSession(next))
	return nil
}

// Clear drops the session, returning the store to the anonymous state.
// It is idempotent; subscribers are only notified on an actual transition.
func (s *Store) Clear() {
	s.mu.Lock()
	wasAuthenticated := s.current.Authenticated()
	s.current = domain.Session{}
	subs := s.snapshotSubs()
	s.mu.Unlock()

	if wasAuthenticated {
		notify(subs, domain.Session{})
	}
}

// Subscribe registers fn to be called on every session transition (login,
// refresh, logout). The returned function removes the subscription.
func (s *Store) Subscribe(fn func(domain.Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// ExpiresAt decodes the access token's exp claim without verifying the
// signature (the client holds no signing secret) so callers can refresh
// proactively. The second return value is false when anonymous or when the
// token carries no parsable expiry.
func (s *Store) ExpiresAt() (time.Time, bool) {
	token := s.Token()
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// snapshotSubs must be called with s.mu held.
func (s *Store) snapshotSubs() []func(domain.Session) {
	subs := make([]func(domain.Session), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

// notify runs outside the store lock so a subscriber may call back into the
// store without deadlocking.
func notify(subs []func(domain.Session), sess domain.Session) {
	for _, fn := range subs {
		fn(cloneSession(sess))
	}
}

func cloneSession(sess domain.Session) domain.Session {
	if sess.User == nil {
		return sess
	}
	u := *sess.User
	sess.User = &u
	return sess
}
