package github

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/internal/testutil"
	"github.com/giantswarm/oauth-login/providers"
)

const (
	testAccessToken   = "gho_test_access_token"
	testTokenEndpoint = "/login/oauth/access_token"
)

func newTestProvider(t *testing.T, ps *testutil.ProviderServer) *Provider {
	t.Helper()
	cfg := providers.ConfigFromOptions(map[string]string{
		providers.OptionClientID:     "test-client-id",
		providers.OptionClientSecret: "test-client-secret",
	}, "https://example.com/callback")
	if ps != nil {
		cfg.HTTPClient = ps.Client()
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]string
		wantErr string
	}{
		{
			name:    "valid config",
			options: map[string]string{"clientId": "id", "clientSecret": "secret"},
		},
		{
			name:    "missing client ID",
			options: map[string]string{"clientSecret": "secret"},
			wantErr: "client ID is required",
		},
		{
			name:    "missing client secret",
			options: map[string]string{"clientId": "id"},
			wantErr: "client secret is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(providers.ConfigFromOptions(tt.options, "https://example.com/callback"))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("New() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestProvider_Defaults(t *testing.T) {
	p := newTestProvider(t, nil)

	if p.Name() != "Github" {
		t.Errorf("Name() = %q, want %q", p.Name(), "Github")
	}
	if p.Label() != "Github" {
		t.Errorf("Label() = %q, want the name when no label is configured", p.Label())
	}
	if !p.SupportsRegistration() {
		t.Error("SupportsRegistration() = false, want true")
	}
	if p.PKCEMethod() != "" {
		t.Errorf("PKCEMethod() = %q, want empty", p.PKCEMethod())
	}
	if p.ResourceOwnerURL() != userEndpoint {
		t.Errorf("ResourceOwnerURL() = %q, want %q", p.ResourceOwnerURL(), userEndpoint)
	}
}

func TestProvider_AuthorizationURL(t *testing.T) {
	p := newTestProvider(t, nil)

	authURL := p.AuthorizationURL("test-state", "", "")
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}

	if u.Host != "github.com" || u.Path != "/login/oauth/authorize" {
		t.Errorf("authorization URL = %s, want github.com/login/oauth/authorize", authURL)
	}
	q := u.Query()
	if q.Get("state") != "test-state" {
		t.Errorf("state = %q, want %q", q.Get("state"), "test-state")
	}
	if q.Get("scope") != "read:user user:email" {
		t.Errorf("scope = %q, want %q", q.Get("scope"), "read:user user:email")
	}
	if q.Has("code_challenge") {
		t.Error("code_challenge present although PKCE is off")
	}
}

func TestProvider_ExchangeCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(testTokenEndpoint, testutil.TokenHandler(testAccessToken))
	ps := testutil.NewProviderServer(t, mux)

	p := newTestProvider(t, ps)

	token, err := p.ExchangeCode(context.Background(), "test-code", "")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if token.AccessToken != testAccessToken {
		t.Errorf("AccessToken = %q, want %q", token.AccessToken, testAccessToken)
	}
}

func TestProvider_FetchIdentity(t *testing.T) {
	tests := []struct {
		name         string
		user         map[string]any
		emails       []map[string]any
		wantID       string
		wantUsername string
		wantName     string
		wantEmail    string
		wantReason   login.Reason
	}{
		{
			name:         "public email",
			user:         map[string]any{"id": 583231, "login": "octocat", "name": "The Octocat", "email": "octocat@github.com"},
			wantID:       "583231",
			wantUsername: "octocat",
			wantName:     "The Octocat",
			wantEmail:    "octocat@github.com",
		},
		{
			name: "private email uses primary verified",
			user: map[string]any{"id": 1, "login": "hubot", "email": nil},
			emails: []map[string]any{
				{"email": "old@example.com", "primary": false, "verified": true},
				{"email": "hubot@example.com", "primary": true, "verified": true},
			},
			wantID:       "1",
			wantUsername: "hubot",
			wantEmail:    "hubot@example.com",
		},
		{
			name: "unverified primary falls back to verified",
			user: map[string]any{"id": 2, "login": "monalisa"},
			emails: []map[string]any{
				{"email": "primary@example.com", "primary": true, "verified": false},
				{"email": "verified@example.com", "primary": false, "verified": true},
			},
			wantID:       "2",
			wantUsername: "monalisa",
			wantEmail:    "verified@example.com",
		},
		{
			name:         "no usable email",
			user:         map[string]any{"id": 3, "login": "ghost"},
			emails:       []map[string]any{{"email": "x@example.com", "primary": true, "verified": false}},
			wantID:       "3",
			wantUsername: "ghost",
		},
		{
			name:       "missing id",
			user:       map[string]any{"login": "octocat", "email": "octocat@github.com"},
			wantReason: login.ReasonIdentityData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/user", testutil.RequireBearer(testAccessToken, testutil.JSONHandler(http.StatusOK, tt.user)))
			if tt.emails != nil {
				mux.HandleFunc("/user/emails", testutil.RequireBearer(testAccessToken, testutil.JSONHandler(http.StatusOK, tt.emails)))
			}
			ps := testutil.NewProviderServer(t, mux)
			p := newTestProvider(t, ps)

			identity, err := p.FetchIdentity(context.Background(), &oauth2.Token{AccessToken: testAccessToken})
			if tt.wantReason != "" {
				var lerr *login.Error
				if !errors.As(err, &lerr) || lerr.Reason != tt.wantReason {
					t.Fatalf("FetchIdentity() error = %v, want reason %s", err, tt.wantReason)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchIdentity() error = %v", err)
			}

			if identity.ProviderUserID != tt.wantID {
				t.Errorf("ProviderUserID = %q, want %q", identity.ProviderUserID, tt.wantID)
			}
			if identity.Username != tt.wantUsername {
				t.Errorf("Username = %q, want %q", identity.Username, tt.wantUsername)
			}
			if identity.DisplayName != tt.wantName {
				t.Errorf("DisplayName = %q, want %q", identity.DisplayName, tt.wantName)
			}
			if identity.Email != tt.wantEmail {
				t.Errorf("Email = %q, want %q", identity.Email, tt.wantEmail)
			}
		})
	}
}

func TestProvider_FetchIdentityUnauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", testutil.RequireBearer(testAccessToken, testutil.JSONHandler(http.StatusOK, map[string]any{"id": 1})))
	ps := testutil.NewProviderServer(t, mux)
	p := newTestProvider(t, ps)

	_, err := p.FetchIdentity(context.Background(), &oauth2.Token{AccessToken: "wrong"})
	if !errors.Is(err, login.ErrProvider) {
		t.Fatalf("FetchIdentity() error = %v, want provider error", err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error %q does not carry the provider status", err)
	}
}
