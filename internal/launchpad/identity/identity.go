// Package identity is a thin stand-in for the identity service: it
// issues ephemeral, scoped session tokens that resolve to a
// domain.Principal. End-user session management itself (login flows,
// credential storage, revocation UX) is explicitly out of scope — the
// rest of the launchpad only ever needs "does this token currently
// resolve to a principal with this scope", which is all this package
// answers.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
)

// Scope names a permission a session token may carry.
type Scope string

const (
	ScopeEtch     Scope = "etch"
	ScopeRegistry Scope = "registry_read"
	ScopeAdmin    Scope = "admin"
)

// Session binds an opaque token to a principal, a scope set, and an
// expiry.
type Session struct {
	Token     string
	Principal domain.Principal
	Scopes    map[Scope]bool
	ExpiresAt int64
}

// Store issues and resolves ephemeral sessions. Sessions live only in
// memory: restarting the process invalidates every outstanding token,
// which is acceptable since nothing in the etching or registry state
// machines is keyed by token, only by the principal it resolves to.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewStore builds an empty session Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]Session)}
}

// Issue mints a new session token for principal with the given scopes
// and ttl.
func (s *Store) Issue(principal domain.Principal, scopes []Scope, ttl time.Duration) (Session, error) {
	token, err := newToken()
	if err != nil {
		return Session{}, fmt.Errorf("issue session for %s: %w", principal, err)
	}

	scopeSet := make(map[Scope]bool, len(scopes))
	for _, sc := range scopes {
		scopeSet[sc] = true
	}

	session := Session{
		Token:     token,
		Principal: principal,
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}

	s.mu.Lock()
	s.sessions[token] = session
	s.mu.Unlock()

	return session, nil
}

// Resolve returns the principal a token currently resolves to,
// provided it has not expired and carries scope.
func (s *Store) Resolve(token string, scope Scope) (domain.Principal, bool) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return "", false
	}
	if time.Now().Unix() > session.ExpiresAt {
		return "", false
	}
	if !session.Scopes[scope] {
		return "", false
	}
	return session.Principal, true
}

// Revoke invalidates a token immediately.
func (s *Store) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

func newToken() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sess_" + hex.EncodeToString(buf), nil
}
