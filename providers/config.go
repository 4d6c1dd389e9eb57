package providers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/giantswarm/oauth-login/instrumentation"
)

// Option keys as they appear in the host configuration (<Name>_<option>).
const (
	OptionClientID                = "clientId"
	OptionClientSecret            = "clientSecret"
	OptionURLAuthorize            = "urlAuthorize"
	OptionURLAccessToken          = "urlAccessToken"
	OptionURLResourceOwnerDetails = "urlResourceOwnerDetails"
	OptionSignInButtonLabel       = "signInButtonLabel"
	OptionRedirectURI             = "redirectUri"
	OptionScopes                  = "scopes"
	OptionPKCEMethod              = "pkceMethod"
	OptionResourceOwnerID         = "responseResourceOwnerId"
	OptionKanidmURL               = "kanidmUrl"
)

// DefaultRequestTimeout bounds token exchange and resource-owner calls when
// the caller's context has no deadline.
const DefaultRequestTimeout = 30 * time.Second

// Config holds the configuration of one provider. It is immutable once the
// adapter is built.
type Config struct {
	ClientID         string
	ClientSecret     string
	AuthorizeURL     string
	TokenURL         string
	ResourceOwnerURL string
	RedirectURL      string
	SignInLabel      string

	// Scopes overrides the variant's default scopes
	Scopes []string

	// PKCEMethod enables PKCE ("S256" or "plain"); empty disables it
	PKCEMethod string

	// Options keeps every configured option, including variant-specific
	// ones such as kanidmUrl or responseResourceOwnerId
	Options map[string]string

	// HTTPClient is used for token exchange and resource-owner calls
	HTTPClient *http.Client

	// RequestTimeout applies when the context has no deadline (default: 30s)
	RequestTimeout time.Duration

	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger
}

// ConfigFromOptions maps host configuration options onto a Config.
// redirectURL is used unless the options carry their own redirectUri.
func ConfigFromOptions(options map[string]string, redirectURL string) Config {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[k] = strings.TrimSpace(v)
	}

	cfg := Config{
		ClientID:         opts[OptionClientID],
		ClientSecret:     opts[OptionClientSecret],
		AuthorizeURL:     opts[OptionURLAuthorize],
		TokenURL:         opts[OptionURLAccessToken],
		ResourceOwnerURL: opts[OptionURLResourceOwnerDetails],
		RedirectURL:      redirectURL,
		SignInLabel:      opts[OptionSignInButtonLabel],
		PKCEMethod:       opts[OptionPKCEMethod],
		Options:          opts,
	}
	if uri := opts[OptionRedirectURI]; uri != "" {
		cfg.RedirectURL = uri
	}
	if scopes := opts[OptionScopes]; scopes != "" {
		cfg.Scopes = splitScopes(scopes)
	}
	return cfg
}

// Option returns a variant-specific option value
func (c Config) Option(key string) string {
	return c.Options[key]
}

// MissingKeys returns the required keys that are absent or blank in options,
// in the order they were required.
func MissingKeys(required []string, options map[string]string) []string {
	var missing []string
	for _, key := range required {
		if strings.TrimSpace(options[key]) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// splitScopes accepts space or comma separated scope lists.
func splitScopes(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ','
	})
}
