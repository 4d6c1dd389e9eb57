package spotify

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"golang.org/x/oauth2"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/internal/testutil"
	"github.com/giantswarm/oauth-login/providers"
)

const testAccessToken = "spotify-token"

func TestProvider_FetchIdentity(t *testing.T) {
	tests := []struct {
		name         string
		body         map[string]any
		wantUsername string
		wantDisplay  string
		wantEmail    string
		wantErr      error
	}{
		{
			name:         "full profile",
			body:         map[string]any{"id": "wizzler", "display_name": "JM Wizzler", "email": "email@example.com"},
			wantUsername: "Spt:wizzler",
			wantDisplay:  "JM Wizzler",
			wantEmail:    "email@example.com",
		},
		{
			name:         "no email scope",
			body:         map[string]any{"id": "wizzler", "display_name": nil},
			wantUsername: "Spt:wizzler",
		},
		{
			name:    "missing id",
			body:    map[string]any{"display_name": "JM Wizzler"},
			wantErr: login.ErrIdentityData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/v1/me", testutil.RequireBearer(testAccessToken, testutil.JSONHandler(http.StatusOK, tt.body)))
			ps := testutil.NewProviderServer(t, mux)

			cfg := providers.ConfigFromOptions(map[string]string{
				providers.OptionClientID:     "id",
				providers.OptionClientSecret: "secret",
			}, "https://app.example.com/callback")
			cfg.HTTPClient = ps.Client()
			p, err := New(cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			identity, err := p.FetchIdentity(context.Background(), &oauth2.Token{AccessToken: testAccessToken})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FetchIdentity() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FetchIdentity() error = %v", err)
			}
			if identity.Username != tt.wantUsername {
				t.Errorf("Username = %q, want %q", identity.Username, tt.wantUsername)
			}
			if identity.DisplayName != tt.wantDisplay {
				t.Errorf("DisplayName = %q, want %q", identity.DisplayName, tt.wantDisplay)
			}
			if identity.Email != tt.wantEmail {
				t.Errorf("Email = %q, want %q", identity.Email, tt.wantEmail)
			}
		})
	}
}

func TestProvider_NoRegistration(t *testing.T) {
	p, err := New(providers.ConfigFromOptions(map[string]string{
		providers.OptionClientID:     "id",
		providers.OptionClientSecret: "secret",
	}, "https://app.example.com/callback"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.SupportsRegistration() {
		t.Error("SupportsRegistration() = true, want false")
	}
	if p.Endpoint.TokenURL != "https://accounts.spotify.com/api/token" {
		t.Errorf("TokenURL = %q", p.Endpoint.TokenURL)
	}
}
