package wordpress

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

const testAccessToken = "wp-token"

func testConfig(ps *testutil.ProviderServer) providers.Config {
	cfg := providers.ConfigFromOptions(map[string]string{
		providers.OptionClientID:                "wp-client",
		providers.OptionClientSecret:            "wp-secret",
		providers.OptionURLAuthorize:            "https://blog.example.com/wp-json/moserver/authorize",
		providers.OptionURLAccessToken:          "https://blog.example.com/wp-json/moserver/token",
		providers.OptionURLResourceOwnerDetails: "https://blog.example.com/wp-json/moserver/resource",
		providers.OptionSignInButtonLabel:       "Our Blog",
	}, "https://app.example.com/callback")
	if ps != nil {
		cfg.HTTPClient = ps.Client()
	}
	return cfg
}

func TestProvider_DefaultScopes(t *testing.T) {
	p, err := New(testConfig(nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	u, err := url.Parse(p.AuthorizationURL("s", "", ""))
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}
	if got := u.Query().Get("scope"); got != "openid profile email" {
		t.Errorf("scope = %q, want %q", got, "openid profile email")
	}
	if p.Label() != "Our Blog" {
		t.Errorf("Label() = %q", p.Label())
	}
}

func TestProvider_FetchIdentity(t *testing.T) {
	tests := []struct {
		name        string
		body        map[string]any
		wantDisplay string
		wantErr     bool
	}{
		{
			name:        "display name",
			body:        map[string]any{"sub": "7", "username": "editor", "display_name": "Ed Itor", "user_login": "editor", "email": "ed@example.com"},
			wantDisplay: "Ed Itor",
		},
		{
			name:        "falls back to user_login",
			body:        map[string]any{"sub": "7", "username": "editor", "user_login": "editor", "email": "ed@example.com"},
			wantDisplay: "editor",
		},
		{
			name:    "no sub",
			body:    map[string]any{"username": "editor", "id": "7"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/wp-json/moserver/resource", testutil.RequireBearer(testAccessToken, testutil.JSONHandler(http.StatusOK, tt.body)))
			ps := testutil.NewProviderServer(t, mux)

			p, err := New(testConfig(ps))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			identity, err := p.FetchIdentity(context.Background(), &oauth2.Token{AccessToken: testAccessToken})
			if tt.wantErr {
				if !errors.Is(err, login.ErrIdentityData) {
					t.Fatalf("FetchIdentity() error = %v, want identity data error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchIdentity() error = %v", err)
			}
			if identity.ProviderUserID != "7" || identity.Username != "editor" || identity.Email != "ed@example.com" {
				t.Errorf("identity = %+v", identity)
			}
			if identity.DisplayName != tt.wantDisplay {
				t.Errorf("DisplayName = %q, want %q", identity.DisplayName, tt.wantDisplay)
			}
		})
	}
}
