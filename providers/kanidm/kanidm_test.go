package kanidm

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"golang.org/x/oauth2"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/internal/testutil"
	"github.com/giantswarm/oauth-login/providers"
)

const testAccessToken = "kanidm-token"

func testOptions() map[string]string {
	return map[string]string{
		providers.OptionClientID:          "wiki",
		providers.OptionClientSecret:      "secret",
		providers.OptionKanidmURL:         "https://idm.example.com/",
		providers.OptionSignInButtonLabel: "Company IdM",
	}
}

func TestEndpointsFor(t *testing.T) {
	ep := EndpointsFor("https://idm.example.com/", "wiki")

	if ep.OAuth2.AuthURL != "https://idm.example.com/ui/oauth2" {
		t.Errorf("AuthURL = %q", ep.OAuth2.AuthURL)
	}
	if ep.OAuth2.TokenURL != "https://idm.example.com/oauth2/token" {
		t.Errorf("TokenURL = %q", ep.OAuth2.TokenURL)
	}
	if ep.ResourceOwner != "https://idm.example.com/oauth2/openid/wiki/userinfo" {
		t.Errorf("ResourceOwner = %q", ep.ResourceOwner)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(map[string]string)
		wantPKCE string
		wantErr  bool
	}{
		{name: "defaults to S256", mutate: func(map[string]string) {}, wantPKCE: "S256"},
		{name: "explicit plain", mutate: func(o map[string]string) { o[providers.OptionPKCEMethod] = "plain" }, wantPKCE: "plain"},
		{name: "missing url", mutate: func(o map[string]string) { delete(o, providers.OptionKanidmURL) }, wantErr: true},
		{name: "insecure url", mutate: func(o map[string]string) { o[providers.OptionKanidmURL] = "http://idm.example.com" }, wantErr: true},
		{name: "local development url", mutate: func(o map[string]string) { o[providers.OptionKanidmURL] = "http://localhost:8443" }, wantPKCE: "S256"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(opts)
			p, err := New(providers.ConfigFromOptions(opts, "https://app.example.com/callback"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.PKCEMethod() != tt.wantPKCE {
				t.Errorf("PKCEMethod() = %q, want %q", p.PKCEMethod(), tt.wantPKCE)
			}
		})
	}
}

func TestProvider_AuthorizationRequest(t *testing.T) {
	p, err := New(providers.ConfigFromOptions(testOptions(), "https://app.example.com/callback"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	req := providers.BuildAuthorizationRequest(p)
	if req.PKCEVerifier == "" {
		t.Fatal("no PKCE verifier generated")
	}

	u, _ := url.Parse(req.URL)
	q := u.Query()
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q", q.Get("code_challenge_method"))
	}
	if q.Get("code_challenge") != oauth2.S256ChallengeFromVerifier(req.PKCEVerifier) {
		t.Error("code_challenge does not match verifier")
	}
	if q.Get("scope") != "openid email profile" {
		t.Errorf("scope = %q", q.Get("scope"))
	}
}

func TestProvider_FetchIdentity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/openid/wiki/userinfo", testutil.RequireBearer(testAccessToken, testutil.JSONHandler(http.StatusOK, map[string]any{
		"sub":                "0b5e2b9a-3c2b-4a4e-a9d5-5b0d7c1b1a11",
		"preferred_username": "alice@idm.example.com",
		"name":               "Alice",
		"email":              "alice@example.com",
	})))
	mux.HandleFunc("/oauth2/token", testutil.TokenHandler(testAccessToken))
	ps := testutil.NewProviderServer(t, mux)

	cfg := providers.ConfigFromOptions(testOptions(), "https://app.example.com/callback")
	cfg.HTTPClient = ps.Client()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	token, err := p.ExchangeCode(context.Background(), "code", "verifier")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	identity, err := p.FetchIdentity(context.Background(), token)
	if err != nil {
		t.Fatalf("FetchIdentity() error = %v", err)
	}
	if identity.ProviderUserID != "0b5e2b9a-3c2b-4a4e-a9d5-5b0d7c1b1a11" {
		t.Errorf("ProviderUserID = %q", identity.ProviderUserID)
	}
	if identity.Username != "alice@idm.example.com" || identity.DisplayName != "Alice" || identity.Email != "alice@example.com" {
		t.Errorf("identity = %+v", identity)
	}
}

func TestProvider_FetchIdentityMissingSub(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/openid/wiki/userinfo", testutil.JSONHandler(http.StatusOK, map[string]any{
		"preferred_username": "alice",
	}))
	ps := testutil.NewProviderServer(t, mux)

	cfg := providers.ConfigFromOptions(testOptions(), "https://app.example.com/callback")
	cfg.HTTPClient = ps.Client()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = p.FetchIdentity(context.Background(), &oauth2.Token{AccessToken: testAccessToken})
	var lerr *login.Error
	if !errors.As(err, &lerr) || lerr.Reason != login.ReasonIdentityData {
		t.Fatalf("FetchIdentity() error = %v, want identity data error", err)
	}
}
