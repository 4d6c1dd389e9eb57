// Package oidc validates the endpoint URLs and scopes of OAuth2/OpenID
// Connect providers before an adapter is built.
//
// Endpoint URLs must use HTTPS. Plain HTTP is only accepted for loopback
// hosts so local development setups keep working. Link-local and unspecified
// addresses are always rejected since they point at cloud metadata services
// or nowhere at all; private ranges are allowed because self-hosted identity
// servers such as Kanidm commonly live on them.
//
// Example:
//
//	if err := oidc.ValidateEndpointURL("https://idm.example.com/oauth2/token"); err != nil {
//	    return fmt.Errorf("invalid token endpoint: %w", err)
//	}
package oidc
