// Package spotify implements the Spotify adapter. Spotify has no username
// concept; the username is derived from the user id and the provider
// cannot be used for registration.
package spotify

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/giantswarm/oauth-login/providers"
)

var _ providers.Adapter = (*Provider)(nil)

// Name is the registry key of the Spotify provider.
const Name = "Spotify"

// UsernamePrefix is prepended to the Spotify user id to form a username.
const UsernamePrefix = "Spt:"

const meEndpoint = "https://api.spotify.com/v1/me"

// DefaultScopes request read access to the account email.
var DefaultScopes = []string{"user-read-email"}

// RequiredKeys are the options that must be configured.
var RequiredKeys = []string{
	providers.OptionClientID,
	providers.OptionClientSecret,
}

// Provider is the Spotify adapter.
type Provider struct {
	*providers.Base
}

// New creates a Spotify provider.
func New(cfg providers.Config) (*Provider, error) {
	base, err := providers.NewBase(Name, cfg, providers.Endpoints{
		OAuth2:        endpoints.Spotify,
		ResourceOwner: meEndpoint,
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

// SupportsRegistration returns false: a generated username is not
// acceptable for a new account.
func (p *Provider) SupportsRegistration() bool {
	return false
}

// FetchIdentity maps /v1/me onto an Identity.
func (p *Provider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*providers.Identity, error) {
	attrs, err := p.FetchResourceOwner(ctx, token, http.MethodGet)
	if err != nil {
		return nil, err
	}

	identity, err := providers.NewIdentity(Name, attrs, "id")
	if err != nil {
		return nil, err
	}

	identity.Username = UsernamePrefix + identity.ProviderUserID
	identity.DisplayName = providers.StringAttr(attrs, "display_name")
	identity.Email = providers.StringAttr(attrs, "email")
	return identity, nil
}
