package oidc

import (
	"fmt"
	"net/url"

	"github.com/giantswarm/oauth-login/internal/util"
)

const (
	maxScopes      = 50
	maxScopeLength = 256
	maxURLLength   = 2048
)

// ValidateEndpointURL validates a provider endpoint URL with SSRF protection.
//
// Security Considerations:
//   - HTTPS Enforcement: Prevents code and token interception
//   - Link-local Blocking: Prevents metadata service attacks (169.254.169.254)
//   - Unspecified Blocking: 0.0.0.0 and :: are never valid targets
func ValidateEndpointURL(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("URL is required")
	}
	if len(endpoint) > maxURLLength {
		return fmt.Errorf("URL exceeds maximum length of %d characters", maxURLLength)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	if u.User != nil {
		return fmt.Errorf("URL must not contain credentials")
	}

	class := util.ClassifyHost(host)
	switch class {
	case util.HostLinkLocal, util.HostUnspecified:
		return fmt.Errorf("URL must not point to %s addresses", class)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if class != util.HostLoopback {
			return fmt.Errorf("URL must use HTTPS, got %s", u.Scheme)
		}
	default:
		return fmt.Errorf("URL must use HTTPS, got %q", u.Scheme)
	}

	return nil
}

// ValidateScopes validates OAuth scopes.
//
// Security Considerations:
//   - Array Size Limit: Prevents DoS from excessive scopes
//   - String Length Limit: Prevents memory exhaustion
//   - Empty Scope Detection: Prevents malformed requests
func ValidateScopes(scopes []string) error {
	if len(scopes) > maxScopes {
		return fmt.Errorf("too many scopes (max %d, got %d)", maxScopes, len(scopes))
	}

	for i, scope := range scopes {
		if scope == "" {
			return fmt.Errorf("scope at index %d is empty", i)
		}
		if len(scope) > maxScopeLength {
			return fmt.Errorf("scope at index %d exceeds maximum length of %d characters", i, maxScopeLength)
		}
	}

	return nil
}
