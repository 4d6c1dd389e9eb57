package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/oauth-login/storage"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// ProviderServer is a fake identity provider. Every request made through
// Client() is routed to it whatever the original host, so adapters keep
// their production endpoint URLs in tests.
type ProviderServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []*http.Request
	forms    []url.Values
}

// NewProviderServer starts a fake provider serving mux. It is closed when
// the test ends.
func NewProviderServer(t *testing.T, mux *http.ServeMux) *ProviderServer {
	t.Helper()
	ps := &ProviderServer{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		ps.mu.Lock()
		ps.requests = append(ps.requests, r.Clone(r.Context()))
		ps.forms = append(ps.forms, r.PostForm)
		ps.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(ps.Close)
	return ps
}

// Client returns an HTTP client whose requests all land on the fake provider.
func (ps *ProviderServer) Client() *http.Client {
	target, _ := url.Parse(ps.URL)
	return &http.Client{Transport: &rewriteTransport{target: target}}
}

// Requests returns the requests received so far
func (ps *ProviderServer) Requests() []*http.Request {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]*http.Request(nil), ps.requests...)
}

// LastForm returns the form body of the most recent request with path.
func (ps *ProviderServer) LastForm(path string) url.Values {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for i := len(ps.requests) - 1; i >= 0; i-- {
		if ps.requests[i].URL.Path == path {
			return ps.forms[i]
		}
	}
	return nil
}

type rewriteTransport struct {
	target *url.URL
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	out.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

// TokenHandler answers a token request with accessToken.
func TokenHandler(accessToken string) http.HandlerFunc {
	return JSONHandler(http.StatusOK, map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

// JSONHandler writes body as JSON with the given status.
func JSONHandler(status int, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// RequireBearer rejects requests without the expected bearer token.
func RequireBearer(accessToken string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+accessToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// NewAccount returns an active, verified and approved account without
// provider linkage.
func NewAccount(id, username, email string) *storage.Account {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &storage.Account{
		ID:            id,
		Username:      username,
		RealName:      username,
		Email:         email,
		EmailVerified: true,
		Approved:      true,
		LastActive:    created.Add(24 * time.Hour),
		CreatedAt:     created,
	}
}

// NewLinkedAccount is NewAccount linked to (provider, providerUserID).
func NewLinkedAccount(id, username, email, provider, providerUserID string) *storage.Account {
	acc := NewAccount(id, username, email)
	acc.Linkage = storage.Linkage{
		ProviderName:   provider,
		ProviderUserID: providerUserID,
		ProviderEmail:  email,
	}
	return acc
}
