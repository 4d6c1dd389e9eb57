package providers

import (
	"context"

	"golang.org/x/oauth2"
)

// PKCE methods accepted in the pkceMethod option.
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// Adapter normalizes one identity provider into a canonical Identity.
// Implementations are selected through the registry's static variant table.
type Adapter interface {
	// Name returns the stable provider name ("Github", "Kanidm", ...). It is
	// used as storage key and URL parameter and must not change across restarts.
	Name() string

	// Label returns the text for the sign-in button (defaults to Name)
	Label() string

	// RequiredConfigKeys lists the option keys that must be configured
	RequiredConfigKeys() []string

	// SupportsRegistration is false when the provider cannot guarantee both
	// a usable email and username
	SupportsRegistration() bool

	// PKCEMethod returns "S256", "plain" or "" when PKCE is not used
	PKCEMethod() string

	// AuthorizationURL builds the redirect to the provider's authorize endpoint.
	// codeChallenge and codeChallengeMethod are empty when PKCE is off.
	AuthorizationURL(state, codeChallenge, codeChallengeMethod string) string

	// ExchangeCode exchanges an authorization code for a token. codeVerifier
	// is empty when PKCE is off. Failures are *login.Error with reason
	// provider_error.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error)

	// FetchIdentity loads the resource owner and maps it onto an Identity.
	// A missing stable id fails with reason identity_data_error.
	FetchIdentity(ctx context.Context, token *oauth2.Token) (*Identity, error)
}

// Identity is the canonical identity derived from a resource-owner payload.
// ProviderUserID is never empty; Username, DisplayName and Email are "" when
// the provider does not supply them.
type Identity struct {
	ProviderName   string
	ProviderUserID string
	Username       string
	DisplayName    string
	Email          string

	// RawAttributes is the decoded resource-owner payload
	RawAttributes map[string]any
}
