package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by every backend. Callers match them with
// errors.Is.
var (
	// ErrAccountNotFound is returned when no account matches a lookup
	ErrAccountNotFound = errors.New("account not found")

	// ErrSessionValueNotFound is returned when a session key is absent or expired
	ErrSessionValueNotFound = errors.New("session value not found")

	// ErrAccountExists is returned by CreateAccount when the username or
	// email is already taken
	ErrAccountExists = errors.New("account already exists")

	// ErrIdentityAlreadyLinked is returned when a provider identity would be
	// linked to a second account
	ErrIdentityAlreadyLinked = errors.New("provider identity already linked to another account")
)

// SessionStore keeps small values scoped to a browser session. Values are
// opaque bytes; every write carries its own TTL.
// All methods accept context.Context for tracing and cancellation.
type SessionStore interface {
	// Put stores value under (sessionID, key), replacing any previous value.
	// A ttl of 0 uses the backend's default.
	Put(ctx context.Context, sessionID, key string, value []byte, ttl time.Duration) error

	// Get returns the value or ErrSessionValueNotFound
	Get(ctx context.Context, sessionID, key string) ([]byte, error)

	// Has reports whether a value exists
	Has(ctx context.Context, sessionID, key string) (bool, error)

	// Forget removes the value. Removing an absent value is not an error.
	Forget(ctx context.Context, sessionID, key string) error

	// Take atomically returns and removes the value. Of two concurrent calls
	// at most one gets the value; the other gets ErrSessionValueNotFound.
	// SECURITY: single-use values (authorization state) MUST be read with Take.
	Take(ctx context.Context, sessionID, key string) ([]byte, error)
}

// AccountStore is the part of the host's account storage the login core
// reads and writes.
type AccountStore interface {
	// Find returns the account with id
	Find(ctx context.Context, id string) (*Account, error)

	// FindByProviderIdentity returns the account linked to (provider, providerUserID)
	FindByProviderIdentity(ctx context.Context, provider, providerUserID string) (*Account, error)

	// FindByEmail returns the account with email (case-insensitive)
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// FindByUsername returns the account with username (case-insensitive)
	FindByUsername(ctx context.Context, username string) (*Account, error)

	// SetLinkage replaces the provider linkage; a zero Linkage unlinks.
	// It returns ErrIdentityAlreadyLinked when another account holds the
	// same (provider, provider user id).
	SetLinkage(ctx context.Context, id string, linkage Linkage) error

	// SetLastActive records the last login time
	SetLastActive(ctx context.Context, id string, at time.Time) error

	// SetEmail updates the account email
	SetEmail(ctx context.Context, id, email string) error
}

// AccountCreator creates accounts for confirmed registrations.
type AccountCreator interface {
	// CreateAccount stores a new account, hashing the password. It returns
	// ErrAccountExists when the username or email is taken.
	CreateAccount(ctx context.Context, account NewAccount) (*Account, error)

	// RegistrationComments returns the comments stored with a created
	// account, "" when there were none
	RegistrationComments(ctx context.Context, id string) (string, error)
}

// Linkage binds an account to one provider identity.
type Linkage struct {
	ProviderName   string `json:"provider_name,omitempty"`
	ProviderUserID string `json:"provider_user_id,omitempty"`
	ProviderEmail  string `json:"provider_email,omitempty"`
}

// IsLinked reports whether the linkage names a provider identity
func (l Linkage) IsLinked() bool {
	return l.ProviderName != "" && l.ProviderUserID != ""
}

// Matches reports whether the linkage is exactly (provider, providerUserID)
func (l Linkage) Matches(provider, providerUserID string) bool {
	return l.IsLinked() && l.ProviderName == provider && l.ProviderUserID == providerUserID
}

// Account is a local user account.
type Account struct {
	ID            string
	Username      string
	RealName      string
	Email         string
	EmailVerified bool
	Approved      bool

	// LastActive is zero for accounts that never logged in
	LastActive time.Time
	CreatedAt  time.Time

	// PasswordHash is a bcrypt hash; empty for accounts without password
	PasswordHash string

	Linkage Linkage
}

// HasBeenActive reports whether the account ever logged in
func (a *Account) HasBeenActive() bool {
	return !a.LastActive.IsZero()
}

// Clone returns a copy that can be modified freely
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// NewAccount is the input of AccountCreator.CreateAccount.
type NewAccount struct {
	Username string
	RealName string
	Email    string

	// Password is hashed by the store and never kept in clear
	Password string

	// Comments are free text the user added to the registration request
	Comments string

	// Verified and Approved are false for self-registered accounts
	Verified bool
	Approved bool

	Linkage Linkage
}
