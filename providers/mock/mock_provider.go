// Package mock provides a mock implementation of the providers.Adapter
// interface for testing.
package mock

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-login/providers"
)

var _ providers.Adapter = (*MockProvider)(nil)

// MockProvider is a mock implementation of the Adapter interface for testing
type MockProvider struct {
	// ProviderName and ProviderLabel back Name() and Label()
	ProviderName  string
	ProviderLabel string

	// Registration backs SupportsRegistration()
	Registration bool

	// PKCE backs PKCEMethod()
	PKCE string

	// ExchangeCodeFunc is called when ExchangeCode() is invoked
	ExchangeCodeFunc func(ctx context.Context, code string, codeVerifier string) (*oauth2.Token, error)

	// FetchIdentityFunc is called when FetchIdentity() is invoked
	FetchIdentityFunc func(ctx context.Context, token *oauth2.Token) (*providers.Identity, error)

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.RWMutex
}

// NewMockProvider creates a mock provider that exchanges any code and
// returns identity for any token.
func NewMockProvider(name string, identity *providers.Identity) *MockProvider {
	return &MockProvider{
		ProviderName:  name,
		ProviderLabel: name,
		Registration:  true,
		CallCounts:    make(map[string]int),
		ExchangeCodeFunc: func(ctx context.Context, code string, codeVerifier string) (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "mock-access-token-" + code, TokenType: "Bearer"}, nil
		},
		FetchIdentityFunc: func(ctx context.Context, token *oauth2.Token) (*providers.Identity, error) {
			if identity == nil {
				return nil, fmt.Errorf("no identity configured")
			}
			copied := *identity
			return &copied, nil
		},
	}
}

func (m *MockProvider) count(method string) {
	m.mu.Lock()
	if m.CallCounts == nil {
		m.CallCounts = make(map[string]int)
	}
	m.CallCounts[method]++
	m.mu.Unlock()
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Label returns the label, defaulting to the name
func (m *MockProvider) Label() string {
	if m.ProviderLabel == "" {
		return m.Name()
	}
	return m.ProviderLabel
}

// RequiredConfigKeys returns the client credential keys
func (m *MockProvider) RequiredConfigKeys() []string {
	return []string{providers.OptionClientID, providers.OptionClientSecret}
}

// SupportsRegistration returns Registration
func (m *MockProvider) SupportsRegistration() bool {
	return m.Registration
}

// PKCEMethod returns PKCE
func (m *MockProvider) PKCEMethod() string {
	return m.PKCE
}

// AuthorizationURL returns a mock.example.com URL carrying the parameters
func (m *MockProvider) AuthorizationURL(state string, codeChallenge string, codeChallengeMethod string) string {
	m.count("AuthorizationURL")
	q := url.Values{"state": {state}}
	if codeChallenge != "" {
		q.Set("code_challenge", codeChallenge)
		q.Set("code_challenge_method", codeChallengeMethod)
	}
	return "https://mock.example.com/authorize?" + q.Encode()
}

// ExchangeCode exchanges an authorization code for tokens
func (m *MockProvider) ExchangeCode(ctx context.Context, code string, codeVerifier string) (*oauth2.Token, error) {
	// LOCK PATTERN: count under lock, call the user function without it
	m.count("ExchangeCode")
	m.mu.RLock()
	fn := m.ExchangeCodeFunc
	m.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("ExchangeCodeFunc not configured")
	}
	return fn(ctx, code, codeVerifier)
}

// FetchIdentity returns the identity behind token
func (m *MockProvider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*providers.Identity, error) {
	m.count("FetchIdentity")
	m.mu.RLock()
	fn := m.FetchIdentityFunc
	m.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("FetchIdentityFunc not configured")
	}
	return fn(ctx, token)
}

// ResetCallCounts resets all call counters
func (m *MockProvider) ResetCallCounts() {
	m.mu.Lock()
	m.CallCounts = make(map[string]int)
	m.mu.Unlock()
}

// GetCallCount returns the number of times a method was called
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}
