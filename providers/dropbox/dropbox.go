// Package dropbox implements the Dropbox adapter. Dropbox has no username
// concept, so the account id doubles as the username.
package dropbox

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/giantswarm/oauth-login/providers"
)

var _ providers.Adapter = (*Provider)(nil)

// Name is the registry key of the Dropbox provider.
const Name = "Dropbox"

const currentAccountEndpoint = "https://api.dropboxapi.com/2/users/get_current_account"

// RequiredKeys are the options that must be configured.
var RequiredKeys = []string{
	providers.OptionClientID,
	providers.OptionClientSecret,
}

// Provider is the Dropbox adapter.
type Provider struct {
	*providers.Base
}

// New creates a Dropbox provider.
func New(cfg providers.Config) (*Provider, error) {
	base, err := providers.NewBase(Name, cfg, providers.Endpoints{
		OAuth2:        endpoints.Dropbox,
		ResourceOwner: currentAccountEndpoint,
	}, nil)
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

// FetchIdentity calls users/get_current_account, which only accepts POST.
func (p *Provider) FetchIdentity(ctx context.Context, token *oauth2.Token) (*providers.Identity, error) {
	attrs, err := p.FetchResourceOwner(ctx, token, http.MethodPost)
	if err != nil {
		return nil, err
	}

	identity, err := providers.NewIdentity(Name, attrs, "account_id")
	if err != nil {
		return nil, err
	}

	identity.Username = identity.ProviderUserID
	identity.DisplayName = providers.NestedStringAttr(attrs, "name", "display_name")
	identity.Email = providers.StringAttr(attrs, "email")
	return identity, nil
}
