package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth-login/storage"
)

// AddAccount inserts or replaces an account as is. It is meant for seeding
// and tests; registrations go through CreateAccount.
func (s *Store) AddAccount(acc *storage.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acc.ID] = acc.Clone()
}

// Find returns a copy of the account with id.
func (s *Store) Find(ctx context.Context, id string) (*storage.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// findFirst returns the first account in id order matching fn.
// Callers hold mu.
func (s *Store) findFirst(fn func(*storage.Account) bool) (*storage.Account, error) {
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if acc := s.accounts[id]; fn(acc) {
			return acc.Clone(), nil
		}
	}
	return nil, storage.ErrAccountNotFound
}

// FindByProviderIdentity returns the account linked to (provider, providerUserID).
func (s *Store) FindByProviderIdentity(ctx context.Context, provider, providerUserID string) (acc *storage.Account, err error) {
	ctx, span := s.startStorageSpan(ctx, "find_by_provider_identity")
	defer span.End()
	defer func(start time.Time) {
		s.recordStorageOperation(ctx, span, "find_by_provider_identity", err, start)
	}(time.Now())

	if provider == "" || providerUserID == "" {
		return nil, storage.ErrAccountNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findFirst(func(a *storage.Account) bool {
		return a.Linkage.Matches(provider, providerUserID)
	})
}

// FindByEmail returns the account with email, compared case-insensitively.
func (s *Store) FindByEmail(ctx context.Context, email string) (*storage.Account, error) {
	if email == "" {
		return nil, storage.ErrAccountNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findFirst(func(a *storage.Account) bool {
		return strings.EqualFold(a.Email, email)
	})
}

// FindByUsername returns the account with username, compared case-insensitively.
func (s *Store) FindByUsername(ctx context.Context, username string) (*storage.Account, error) {
	if username == "" {
		return nil, storage.ErrAccountNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findFirst(func(a *storage.Account) bool {
		return strings.EqualFold(a.Username, username)
	})
}

// update applies fn to the stored account under the write lock.
func (s *Store) update(ctx context.Context, operation, id string, fn func(*storage.Account) error) (err error) {
	ctx, span := s.startStorageSpan(ctx, operation)
	defer span.End()
	defer func(start time.Time) { s.recordStorageOperation(ctx, span, operation, err, start) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return storage.ErrAccountNotFound
	}
	return fn(acc)
}

// SetLinkage replaces the provider linkage of an account.
func (s *Store) SetLinkage(ctx context.Context, id string, linkage storage.Linkage) error {
	return s.update(ctx, "set_linkage", id, func(a *storage.Account) error {
		if s.linkedElsewhere(id, linkage) {
			return storage.ErrIdentityAlreadyLinked
		}
		a.Linkage = linkage
		return nil
	})
}

// linkedElsewhere reports whether another account holds linkage.
// Callers hold mu.
func (s *Store) linkedElsewhere(id string, linkage storage.Linkage) bool {
	if !linkage.IsLinked() {
		return false
	}
	for otherID, other := range s.accounts {
		if otherID != id && other.Linkage.Matches(linkage.ProviderName, linkage.ProviderUserID) {
			return true
		}
	}
	return false
}

// SetLastActive records the last login time.
func (s *Store) SetLastActive(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, "set_last_active", id, func(a *storage.Account) error {
		a.LastActive = at
		return nil
	})
}

// SetEmail updates the account email.
func (s *Store) SetEmail(ctx context.Context, id, email string) error {
	return s.update(ctx, "set_email", id, func(a *storage.Account) error {
		a.Email = email
		return nil
	})
}

// CreateAccount stores a new account with a bcrypt password hash.
func (s *Store) CreateAccount(ctx context.Context, na storage.NewAccount) (acc *storage.Account, err error) {
	ctx, span := s.startStorageSpan(ctx, "create_account")
	defer span.End()
	defer func(start time.Time) { s.recordStorageOperation(ctx, span, "create_account", err, start) }(time.Now())

	if na.Username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}

	var hash []byte
	if na.Password != "" {
		hash, err = bcrypt.GenerateFromPassword([]byte(na.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Username, na.Username) ||
			(na.Email != "" && strings.EqualFold(existing.Email, na.Email)) {
			return nil, storage.ErrAccountExists
		}
	}
	if s.linkedElsewhere("", na.Linkage) {
		return nil, storage.ErrIdentityAlreadyLinked
	}

	acc = &storage.Account{
		ID:            uuid.NewString(),
		Username:      na.Username,
		RealName:      na.RealName,
		Email:         na.Email,
		EmailVerified: na.Verified,
		Approved:      na.Approved,
		CreatedAt:     s.now(),
		PasswordHash:  string(hash),
		Linkage:       na.Linkage,
	}
	s.accounts[acc.ID] = acc
	if na.Comments != "" {
		s.comments[acc.ID] = na.Comments
	}

	s.logger.Info("Created account", "account_id", acc.ID, "approved", acc.Approved)
	return acc.Clone(), nil
}

// RegistrationComments returns the comments given to CreateAccount.
func (s *Store) RegistrationComments(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[id]; !ok {
		return "", storage.ErrAccountNotFound
	}
	return s.comments[id], nil
}
