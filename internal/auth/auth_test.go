package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger/internal/model"
	"github.com/poolvest/ledger/internal/store"
)

func newTestAuth(t *testing.T) *Authenticator {
	t.Helper()
	ms := store.NewMemoryStore()
	err := ms.CreateUser(context.Background(), &model.User{
		ID:          "u1",
		Username:    "alice",
		Secret:      "hunter2",
		CashBalance: decimal.Zero,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewAuthenticator(ms)
}

func TestAuthenticate(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	u, sess, err := a.Authenticate(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u1" {
		t.Errorf("expected u1, got %s", u.ID)
	}
	if sess.Token == "" {
		t.Error("expected a session token")
	}
	if !sess.ExpiresAt.After(time.Now()) {
		t.Error("session must expire in the future")
	}

	id, err := a.Resolve(sess.Token)
	if err != nil || id != "u1" {
		t.Errorf("resolve: got (%s, %v), want (u1, nil)", id, err)
	}
}

// Wrong secret and unknown username produce the same error, so a caller
// cannot enumerate which usernames exist.
func TestAuthenticate_Failure(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	_, _, errSecret := a.Authenticate(ctx, "alice", "wrong")
	_, _, errUser := a.Authenticate(ctx, "nobody", "hunter2")

	if !errors.Is(errSecret, ErrAuthFailure) {
		t.Errorf("wrong secret: expected ErrAuthFailure, got %v", errSecret)
	}
	if !errors.Is(errUser, ErrAuthFailure) {
		t.Errorf("unknown user: expected ErrAuthFailure, got %v", errUser)
	}
	if errSecret.Error() != errUser.Error() {
		t.Error("failure modes must be indistinguishable")
	}
}

func TestResolve_ExpiredAndRevoked(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	if _, err := a.Resolve("no-such-token"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("unknown token: expected ErrSessionExpired, got %v", err)
	}

	_, sess, err := a.Authenticate(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatal(err)
	}

	a.Revoke(sess.Token)
	a.Revoke(sess.Token) // idempotent
	if _, err := a.Resolve(sess.Token); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("revoked token: expected ErrSessionExpired, got %v", err)
	}

	// A session past its deadline is rejected and evicted.
	a.ttl = -time.Minute
	_, sess, err = a.Authenticate(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Resolve(sess.Token); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expired token: expected ErrSessionExpired, got %v", err)
	}
}
