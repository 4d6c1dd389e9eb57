// Package wordpress implements the adapter for the WordPress OpenID Connect
// server plugin.
package wordpress

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-login/providers"
)

var _ providers.Adapter = (*Provider)(nil)

// Name is the registry key of the WordPress provider.
const Name = "WordPress"

// DefaultScopes are always requested unless overridden.
var DefaultScopes = []string{"openid", "profile", "email"}

// RequiredKeys are the options that must be configured.
var RequiredKeys = []string{
	providers.OptionClientID,
	providers.OptionClientSecret,
	providers.OptionURLAuthorize,
	providers.OptionURLAccessToken,
	providers.OptionURLResourceOwnerDetails,
	providers.OptionSignInButtonLabel,
}

// Provider is the WordPress adapter.
type Provider struct {
	*providers.Base
}

// New creates a WordPress provider from configured endpoints.
func New(cfg providers.Config) (*Provider, error) {
	base, err := providers.NewBase(Name, cfg, providers.Endpoints{}, DefaultScopes)
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

// FetchIdentity maps the userinfo claims. The display name prefers
// display_name over the login name.
func (p *Provider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*providers.Identity, error) {
	attrs, err := p.FetchResourceOwner(ctx, token, http.MethodGet)
	if err != nil {
		return nil, err
	}

	identity, err := providers.NewIdentity(Name, attrs, "sub")
	if err != nil {
		return nil, err
	}

	identity.Username = providers.StringAttr(attrs, "username")
	identity.DisplayName = providers.FirstNonEmpty(
		providers.StringAttr(attrs, "display_name"),
		providers.StringAttr(attrs, "user_login"),
	)
	identity.Email = providers.StringAttr(attrs, "email")
	return identity, nil
}
