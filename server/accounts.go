package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-login/storage"
)

// KeySignedInAccount is the session key of the signed-in account id
const KeySignedInAccount = "oauth_login.account"

// AccountSession tracks which account is signed in for a browser session.
type AccountSession interface {
	// CurrentAccount returns the signed-in account or nil for anonymous
	// sessions
	CurrentAccount(ctx context.Context, sessionID string) (*storage.Account, error)

	// SignIn binds acc to sessionID
	SignIn(ctx context.Context, sessionID string, acc *storage.Account) error

	// SignOut clears the signed-in account
	SignOut(ctx context.Context, sessionID string) error
}

// StoreAccountSession keeps the signed-in account id in a SessionStore.
type StoreAccountSession struct {
	sessions storage.SessionStore
	accounts storage.AccountStore
	ttl      time.Duration
}

var _ AccountSession = (*StoreAccountSession)(nil)

// NewStoreAccountSession creates an AccountSession whose sign-ins last ttl
func NewStoreAccountSession(sessions storage.SessionStore, accounts storage.AccountStore, ttl time.Duration) *StoreAccountSession {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &StoreAccountSession{sessions: sessions, accounts: accounts, ttl: ttl}
}

// CurrentAccount implements AccountSession. A session pointing at a deleted
// account is treated as anonymous.
func (s *StoreAccountSession) CurrentAccount(ctx context.Context, sessionID string) (*storage.Account, error) {
	if sessionID == "" {
		return nil, nil
	}
	raw, err := s.sessions.Get(ctx, sessionID, KeySignedInAccount)
	if errors.Is(err, storage.ErrSessionValueNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read signed-in account: %w", err)
	}

	acc, err := s.accounts.Find(ctx, string(raw))
	if errors.Is(err, storage.ErrAccountNotFound) {
		_ = s.sessions.Forget(ctx, sessionID, KeySignedInAccount)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load signed-in account: %w", err)
	}
	return acc, nil
}

// SignIn implements AccountSession
func (s *StoreAccountSession) SignIn(ctx context.Context, sessionID string, acc *storage.Account) error {
	if sessionID == "" || acc == nil || acc.ID == "" {
		return fmt.Errorf("session id and account are required")
	}
	return s.sessions.Put(ctx, sessionID, KeySignedInAccount, []byte(acc.ID), s.ttl)
}

// SignOut implements AccountSession
func (s *StoreAccountSession) SignOut(ctx context.Context, sessionID string) error {
	return s.sessions.Forget(ctx, sessionID, KeySignedInAccount)
}
