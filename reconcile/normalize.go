package reconcile

import (
	"strings"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/providers"
)

// Normalize returns a copy of identity with whitespace trimmed and every
// value cut to its storage limit. Lookups and comparisons always use the
// normalized values.
func Normalize(identity *providers.Identity) *providers.Identity {
	if identity == nil {
		return nil
	}
	return &providers.Identity{
		ProviderName:   identity.ProviderName,
		ProviderUserID: login.TruncateField(strings.TrimSpace(identity.ProviderUserID)),
		Username:       login.TruncateUsername(strings.TrimSpace(identity.Username)),
		DisplayName:    login.TruncateField(strings.TrimSpace(identity.DisplayName)),
		Email:          login.TruncateField(strings.TrimSpace(identity.Email)),
		RawAttributes:  identity.RawAttributes,
	}
}
