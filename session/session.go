// Package session keeps the per-browser state of the provider login: the
// single-use authorization state, the connect session and a pending
// registration. Values are JSON encoded into a storage.SessionStore.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/security"
	"github.com/giantswarm/oauth-login/storage"
)

// Session keys
const (
	KeyAuthorizationState  = "oauth_login.authorization_state"
	KeyConnectSession      = "oauth_login.connect"
	KeyPendingRegistration = "oauth_login.pending_registration"
)

// ConnectTimeout is how long a connect request stays valid.
const ConnectTimeout = 300 * time.Second

// connectRetention keeps an expired connect session readable long enough
// to report the timeout instead of silently forgetting it.
const connectRetention = 2 * ConnectTimeout

// DefaultRegistrationTTL bounds the time between the Register decision and
// the user's confirmation.
const DefaultRegistrationTTL = 15 * time.Minute

// ErrNotFound is returned when the requested value is not in the session.
var ErrNotFound = storage.ErrSessionValueNotFound

// AuthorizationState is written when a redirect to a provider is issued and
// taken exactly once by the callback.
type AuthorizationState struct {
	State         string              `json:"state"`
	PKCEVerifier  string              `json:"pkce_verifier,omitempty"`
	Provider      string              `json:"provider"`
	ReturnURL     string              `json:"return_url,omitempty"`
	Scope         string              `json:"scope,omitempty"`
	ConnectAction login.ConnectAction `json:"connect_action"`
	CreatedAt     time.Time           `json:"created_at"`
	ExpiresAt     time.Time           `json:"expires_at"`
}

// IsExpired reports whether the state outlived its ExpiresAt
func (a *AuthorizationState) IsExpired(now time.Time) bool {
	return security.IsExpired(a.ExpiresAt, now)
}

// ConnectSession records that a signed-in user asked to link a provider.
type ConnectSession struct {
	ProviderName string    `json:"provider_name"`
	TargetUserID string    `json:"target_user_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsExpired reports whether more than ConnectTimeout passed since CreatedAt.
// Exactly ConnectTimeout is still valid.
func (c *ConnectSession) IsExpired(now time.Time) bool {
	return security.IsOlderThan(c.CreatedAt, ConnectTimeout, now)
}

// BelongsTo reports whether the connect session was started by userID
func (c *ConnectSession) BelongsTo(userID string) bool {
	return userID != "" && c.TargetUserID == userID
}

// PendingRegistration is a Register decision waiting for the user's
// confirmation. Token is the opaque password token and never leaves the
// server; Confirmation is handed to the client and must come back with the
// confirmed form.
type PendingRegistration struct {
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	ProviderEmail  string    `json:"provider_email"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	Token          string    `json:"token"`
	Confirmation   string    `json:"confirmation"`
	ReturnURL      string    `json:"return_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Linkage returns the provider linkage the registered account gets
func (p *PendingRegistration) Linkage() storage.Linkage {
	return storage.Linkage{
		ProviderName:   p.Provider,
		ProviderUserID: p.ProviderUserID,
		ProviderEmail:  p.ProviderEmail,
	}
}

// Store reads and writes the typed session values.
type Store struct {
	backend storage.SessionStore
}

// New wraps backend
func New(backend storage.SessionStore) *Store {
	return &Store{backend: backend}
}

// SaveAuthorizationState stores state until its ExpiresAt.
func (s *Store) SaveAuthorizationState(ctx context.Context, sessionID string, state *AuthorizationState) error {
	ttl := state.ExpiresAt.Sub(state.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization state expires before it is created")
	}
	return s.put(ctx, sessionID, KeyAuthorizationState, state, ttl)
}

// TakeAuthorizationState returns the stored authorization state and removes
// it. A second call returns ErrNotFound.
func (s *Store) TakeAuthorizationState(ctx context.Context, sessionID string) (*AuthorizationState, error) {
	raw, err := s.backend.Take(ctx, sessionID, KeyAuthorizationState)
	if err != nil {
		return nil, err
	}
	var state AuthorizationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode authorization state: %w", err)
	}
	return &state, nil
}

// SaveConnectSession stores cs, replacing any previous connect session.
func (s *Store) SaveConnectSession(ctx context.Context, sessionID string, cs *ConnectSession) error {
	return s.put(ctx, sessionID, KeyConnectSession, cs, connectRetention)
}

// ConnectSession returns the current connect session, or nil when there is
// none.
func (s *Store) ConnectSession(ctx context.Context, sessionID string) (*ConnectSession, error) {
	var cs ConnectSession
	if err := s.get(ctx, sessionID, KeyConnectSession, &cs); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cs, nil
}

// ForgetConnectSession removes the connect session
func (s *Store) ForgetConnectSession(ctx context.Context, sessionID string) error {
	return s.backend.Forget(ctx, sessionID, KeyConnectSession)
}

// SavePendingRegistration stores p for ttl (DefaultRegistrationTTL when 0).
func (s *Store) SavePendingRegistration(ctx context.Context, sessionID string, p *PendingRegistration, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultRegistrationTTL
	}
	return s.put(ctx, sessionID, KeyPendingRegistration, p, ttl)
}

// PendingRegistration returns the pending registration without removing it.
func (s *Store) PendingRegistration(ctx context.Context, sessionID string) (*PendingRegistration, error) {
	var p PendingRegistration
	if err := s.get(ctx, sessionID, KeyPendingRegistration, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// TakePendingRegistration returns the pending registration and removes it.
func (s *Store) TakePendingRegistration(ctx context.Context, sessionID string) (*PendingRegistration, error) {
	raw, err := s.backend.Take(ctx, sessionID, KeyPendingRegistration)
	if err != nil {
		return nil, err
	}
	var p PendingRegistration
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode pending registration: %w", err)
	}
	return &p, nil
}

func (s *Store) put(ctx context.Context, sessionID, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.backend.Put(ctx, sessionID, key, raw, ttl); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, sessionID, key string, out any) error {
	raw, err := s.backend.Get(ctx, sessionID, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
