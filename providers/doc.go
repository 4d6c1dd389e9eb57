// Package providers defines the adapter interface for OAuth2/OIDC identity
// providers and the Base that every variant embeds.
//
// Implementations are provided in subpackages:
//   - providers/generic: any OAuth2 server with configured endpoints
//   - providers/github: GitHub OAuth Apps
//   - providers/dropbox: Dropbox
//   - providers/spotify: Spotify (no registration)
//   - providers/wordpress: WordPress OpenID Connect server plugin
//   - providers/kanidm: Kanidm OIDC, endpoints derived from kanidmUrl
//   - providers/mock: mock adapter for testing
//   - providers/oidc: endpoint URL and scope validation
//
// An adapter handles:
//   - Authorization URL generation with optional PKCE
//   - Authorization code exchange
//   - Fetching the resource owner and mapping it onto an Identity
//
// Example usage:
//
//	cfg := providers.ConfigFromOptions(map[string]string{
//	    "clientId":     "your-client-id",
//	    "clientSecret": "your-client-secret",
//	}, "https://app.example.com/login/callback")
//	adapter, err := github.New(cfg)
//	if err != nil {
//	    return err
//	}
//	req := providers.BuildAuthorizationRequest(adapter)
//	// persist req.State and req.PKCEVerifier, then redirect to req.URL
package providers
