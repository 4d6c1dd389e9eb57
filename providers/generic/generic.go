// Package generic implements an adapter for any OAuth2 server whose
// endpoints are configured explicitly.
package generic

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-login/providers"
)

var _ providers.Adapter = (*Provider)(nil)

// Name is the registry key of the generic provider.
const Name = "Generic"

// DefaultResourceOwnerID is the attribute holding the user id unless
// responseResourceOwnerId says otherwise.
const DefaultResourceOwnerID = "id"

// RequiredKeys are the options that must be configured.
var RequiredKeys = []string{
	providers.OptionClientID,
	providers.OptionClientSecret,
	providers.OptionURLAuthorize,
	providers.OptionURLAccessToken,
	providers.OptionURLResourceOwnerDetails,
	providers.OptionSignInButtonLabel,
}

// Provider is a generic OAuth2 adapter.
type Provider struct {
	*providers.Base
	idKey string
}

// New creates a generic provider from cfg.
func New(cfg providers.Config) (*Provider, error) {
	base, err := providers.NewBase(Name, cfg, providers.Endpoints{}, nil)
	if err != nil {
		return nil, err
	}

	idKey := cfg.Option(providers.OptionResourceOwnerID)
	if idKey == "" {
		idKey = DefaultResourceOwnerID
	}

	return &Provider{Base: base, idKey: idKey}, nil
}

// RequiredConfigKeys returns RequiredKeys
func (p *Provider) RequiredConfigKeys() []string {
	return RequiredKeys
}

// SupportsRegistration returns true
func (p *Provider) SupportsRegistration() bool {
	return true
}

// FetchIdentity maps the resource owner: id from the configured attribute,
// username from "username", display name from "name" falling back to the
// username.
func (p *Provider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*providers.Identity, error) {
	attrs, err := p.FetchResourceOwner(ctx, token, http.MethodGet)
	if err != nil {
		return nil, err
	}

	identity, err := providers.NewIdentity(Name, attrs, p.idKey)
	if err != nil {
		return nil, err
	}

	identity.Username = providers.StringAttr(attrs, "username")
	identity.DisplayName = providers.FirstNonEmpty(providers.StringAttr(attrs, "name"), identity.Username)
	identity.Email = providers.StringAttr(attrs, "email")
	return identity, nil
}
