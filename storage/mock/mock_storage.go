// Package mock provides mock implementations of storage interfaces for testing.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/giantswarm/oauth-login/storage"
	"github.com/giantswarm/oauth-login/storage/memory"
)

// MockAccountStore is an AccountStore and AccountCreator backed by an
// in-memory store. Any Func field that is set replaces the default
// behaviour, which lets tests inject failures.
type MockAccountStore struct {
	*memory.Store

	mu sync.Mutex

	FindFunc                   func(ctx context.Context, id string) (*storage.Account, error)
	FindByProviderIdentityFunc func(ctx context.Context, provider, providerUserID string) (*storage.Account, error)
	FindByEmailFunc            func(ctx context.Context, email string) (*storage.Account, error)
	FindByUsernameFunc         func(ctx context.Context, username string) (*storage.Account, error)
	SetLinkageFunc             func(ctx context.Context, id string, linkage storage.Linkage) error
	SetLastActiveFunc          func(ctx context.Context, id string, at time.Time) error
	SetEmailFunc               func(ctx context.Context, id, email string) error
	CreateAccountFunc          func(ctx context.Context, account storage.NewAccount) (*storage.Account, error)

	CallCounts map[string]int
}

// Compile-time interface checks
var (
	_ storage.AccountStore   = (*MockAccountStore)(nil)
	_ storage.AccountCreator = (*MockAccountStore)(nil)
)

// NewMockAccountStore creates a mock seeded with accounts.
func NewMockAccountStore(accounts ...*storage.Account) *MockAccountStore {
	m := &MockAccountStore{
		Store:      memory.NewWithInterval(time.Hour),
		CallCounts: make(map[string]int),
	}
	for _, acc := range accounts {
		m.AddAccount(acc)
	}
	return m
}

func (m *MockAccountStore) count(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[method]++
}

// GetCallCount returns how often method was called
func (m *MockAccountStore) GetCallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts[method]
}

// ResetCallCounts clears all call counts
func (m *MockAccountStore) ResetCallCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts = make(map[string]int)
}

// Find mocks AccountStore.Find
func (m *MockAccountStore) Find(ctx context.Context, id string) (*storage.Account, error) {
	m.count("Find")
	if m.FindFunc != nil {
		return m.FindFunc(ctx, id)
	}
	return m.Store.Find(ctx, id)
}

// FindByProviderIdentity mocks AccountStore.FindByProviderIdentity
func (m *MockAccountStore) FindByProviderIdentity(ctx context.Context, provider, providerUserID string) (*storage.Account, error) {
	m.count("FindByProviderIdentity")
	if m.FindByProviderIdentityFunc != nil {
		return m.FindByProviderIdentityFunc(ctx, provider, providerUserID)
	}
	return m.Store.FindByProviderIdentity(ctx, provider, providerUserID)
}

// FindByEmail mocks AccountStore.FindByEmail
func (m *MockAccountStore) FindByEmail(ctx context.Context, email string) (*storage.Account, error) {
	m.count("FindByEmail")
	if m.FindByEmailFunc != nil {
		return m.FindByEmailFunc(ctx, email)
	}
	return m.Store.FindByEmail(ctx, email)
}

// FindByUsername mocks AccountStore.FindByUsername
func (m *MockAccountStore) FindByUsername(ctx context.Context, username string) (*storage.Account, error) {
	m.count("FindByUsername")
	if m.FindByUsernameFunc != nil {
		return m.FindByUsernameFunc(ctx, username)
	}
	return m.Store.FindByUsername(ctx, username)
}

// SetLinkage mocks AccountStore.SetLinkage
func (m *MockAccountStore) SetLinkage(ctx context.Context, id string, linkage storage.Linkage) error {
	m.count("SetLinkage")
	if m.SetLinkageFunc != nil {
		return m.SetLinkageFunc(ctx, id, linkage)
	}
	return m.Store.SetLinkage(ctx, id, linkage)
}

// SetLastActive mocks AccountStore.SetLastActive
func (m *MockAccountStore) SetLastActive(ctx context.Context, id string, at time.Time) error {
	m.count("SetLastActive")
	if m.SetLastActiveFunc != nil {
		return m.SetLastActiveFunc(ctx, id, at)
	}
	return m.Store.SetLastActive(ctx, id, at)
}

// SetEmail mocks AccountStore.SetEmail
func (m *MockAccountStore) SetEmail(ctx context.Context, id, email string) error {
	m.count("SetEmail")
	if m.SetEmailFunc != nil {
		return m.SetEmailFunc(ctx, id, email)
	}
	return m.Store.SetEmail(ctx, id, email)
}

// CreateAccount mocks AccountCreator.CreateAccount
func (m *MockAccountStore) CreateAccount(ctx context.Context, account storage.NewAccount) (*storage.Account, error) {
	m.count("CreateAccount")
	if m.CreateAccountFunc != nil {
		return m.CreateAccountFunc(ctx, account)
	}
	return m.Store.CreateAccount(ctx, account)
}
