package github

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github.com/giantswarm/oauth-login/providers"
)

// Compile-time check that Provider implements the providers.Adapter interface.
var _ providers.Adapter = (*Provider)(nil)

// Name is the registry key of the GitHub provider.
const Name = "Github"

// GitHub API endpoints
const (
	userEndpoint   = "https://api.github.com/user"
	emailsEndpoint = "https://api.github.com/user/emails"
)

// DefaultScopes lets the adapter read the primary email when the profile
// email is private.
var DefaultScopes = []string{"read:user", "user:email"}

// RequiredKeys are the options that must be configured.
var RequiredKeys = []string{
	providers.OptionClientID,
	providers.OptionClientSecret,
}

// Provider implements the providers.Adapter interface for GitHub OAuth Apps.
type Provider struct {
	*providers.Base
}

// New creates a GitHub provider. Endpoints are fixed; cfg only supplies the
// client credentials, label, scopes and PKCE setting.
func New(cfg providers.Config) (*Provider, error) {
	base, err := providers.NewBase(Name, cfg, providers.Endpoints{
		OAuth2:        oauthgithub.Endpoint,
		ResourceOwner: userEndpoint,
	}, DefaultScopes)
	if err != nil {
		return nil, err
	}
	return &Provider{Base: base}, nil
}

// RequiredConfigKeys returns RequiredKeys
func (p *Provider) RequiredConfigKeys() []string {
	return RequiredKeys
}

// SupportsRegistration returns true
func (p *Provider) SupportsRegistration() bool {
	return true
}

// FetchIdentity fetches /user. If the profile email is private the primary
// verified address from /user/emails is used instead.
func (p *Provider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*providers.Identity, error) {
	attrs, err := p.FetchResourceOwner(ctx, token, http.MethodGet)
	if err != nil {
		return nil, err
	}

	identity, err := providers.NewIdentity(Name, attrs, "id")
	if err != nil {
		return nil, err
	}

	identity.Username = providers.StringAttr(attrs, "login")
	identity.DisplayName = providers.StringAttr(attrs, "name")
	identity.Email = providers.StringAttr(attrs, "email")

	if identity.Email == "" {
		// a missing email is not fatal, registration will be refused later
		identity.Email = p.fetchPrimaryEmail(ctx, token)
	}

	return identity, nil
}

// fetchPrimaryEmail returns the primary verified email, falling back to the
// first verified one. Errors yield "".
func (p *Provider) fetchPrimaryEmail(ctx context.Context, token *oauth2.Token) string {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := p.GetJSON(ctx, token, http.MethodGet, emailsEndpoint, &emails); err != nil {
		return ""
	}

	for _, email := range emails {
		if email.Primary && email.Verified {
			return email.Email
		}
	}
	for _, email := range emails {
		if email.Verified {
			return email.Email
		}
	}
	return ""
}
