// Package kanidm implements the adapter for Kanidm identity servers. All
// endpoints are derived from the kanidmUrl option.
package kanidm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-login/internal/util"
	"github.com/giantswarm/oauth-login/providers"
)

var _ providers.Adapter = (*Provider)(nil)

// Name is the registry key of the Kanidm provider.
const Name = "Kanidm"

// DefaultScopes are requested unless overridden.
var DefaultScopes = []string{"openid", "email", "profile"}

// RequiredKeys are the options that must be configured.
var RequiredKeys = []string{
	providers.OptionClientID,
	providers.OptionClientSecret,
	providers.OptionKanidmURL,
	providers.OptionSignInButtonLabel,
}

// Provider is the Kanidm adapter.
type Provider struct {
	*providers.Base
}

// EndpointsFor derives the Kanidm endpoints from the server URL and the
// OAuth2 client id.
func EndpointsFor(kanidmURL, clientID string) providers.Endpoints {
	base := util.NormalizeURL(kanidmURL)
	return providers.Endpoints{
		OAuth2: oauth2.Endpoint{
			AuthURL:  base + "/ui/oauth2",
			TokenURL: base + "/oauth2/token",
		},
		ResourceOwner: base + "/oauth2/openid/" + url.PathEscape(clientID) + "/userinfo",
	}
}

// New creates a Kanidm provider. Kanidm rejects flows without PKCE, so S256
// is used unless pkceMethod says otherwise.
func New(cfg providers.Config) (*Provider, error) {
	kanidmURL := cfg.Option(providers.OptionKanidmURL)
	if kanidmURL == "" {
		return nil, fmt.Errorf("%s is required", providers.OptionKanidmURL)
	}
	if cfg.PKCEMethod == "" {
		cfg.PKCEMethod = providers.PKCEMethodS256
	}

	base, err := providers.NewBase(Name, cfg, EndpointsFor(kanidmURL, cfg.ClientID), DefaultScopes)
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

// FetchIdentity maps the OIDC userinfo claims.
func (p *Provider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*providers.Identity, error) {
	attrs, err := p.FetchResourceOwner(ctx, token, http.MethodGet)
	if err != nil {
		return nil, err
	}

	identity, err := providers.NewIdentity(Name, attrs, "sub")
	if err != nil {
		return nil, err
	}

	identity.Username = providers.StringAttr(attrs, "preferred_username")
	identity.DisplayName = providers.StringAttr(attrs, "name")
	identity.Email = providers.StringAttr(attrs, "email")
	return identity, nil
}
