// Package auth provides the credential-check collaborator: username/secret
// validation and session token issuance. Credentials live on the user
// record; hashing and password policy are the embedding platform's
// concern, not this service's.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poolvest/ledger/internal/model"
	"github.com/poolvest/ledger/internal/store"
)

var (
	// ErrAuthFailure is returned for unknown usernames and wrong secrets
	// alike, so callers cannot distinguish the two.
	ErrAuthFailure = errors.New("auth: authentication failed")

	// ErrSessionExpired is returned for unknown or expired session tokens.
	ErrSessionExpired = errors.New("auth: session expired")
)

// DefaultSessionTTL is how long an issued session stays valid.
const DefaultSessionTTL = 24 * time.Hour

// Session is an issued login session.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticator validates credentials against the store and tracks
// sessions in memory. Sessions do not survive restarts; clients re-login.
type Authenticator struct {
	store    store.Store
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewAuthenticator creates an authenticator over the given store.
func NewAuthenticator(st store.Store) *Authenticator {
	return &Authenticator{
		store:    st,
		ttl:      DefaultSessionTTL,
		sessions: make(map[string]Session),
	}
}

// Authenticate validates a username/secret pair and issues a session.
// The secret comparison is constant-time.
func (a *Authenticator) Authenticate(ctx context.Context, username, secret string) (*model.User, *Session, error) {
	u, err := a.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrAuthFailure
		}
		return nil, nil, fmt.Errorf("auth: lookup: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(u.Secret), []byte(secret)) != 1 {
		return nil, nil, ErrAuthFailure
	}

	sess := Session{
		Token:     uuid.New().String(),
		UserID:    u.ID,
		ExpiresAt: time.Now().UTC().Add(a.ttl),
	}

	a.mu.Lock()
	a.sessions[sess.Token] = sess
	a.mu.Unlock()

	return u, &sess, nil
}

// Resolve returns the user ID for a live session token.
func (a *Authenticator) Resolve(token string) (string, error) {
	a.mu.RLock()
	sess, ok := a.sessions[token]
	a.mu.RUnlock()

	if !ok || time.Now().UTC().After(sess.ExpiresAt) {
		if ok {
			a.mu.Lock()
			delete(a.sessions, token)
			a.mu.Unlock()
		}
		return "", ErrSessionExpired
	}
	return sess.UserID, nil
}

// Revoke invalidates a session token. Idempotent.
func (a *Authenticator) Revoke(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}
