package server

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/giantswarm/oauth-login/flow"
	"github.com/giantswarm/oauth-login/internal/util"
	"github.com/giantswarm/oauth-login/session"
)

// Config holds login server configuration
type Config struct {
	// BaseURL is the public URL of the application (scheme and host)
	BaseURL string

	// AllowInsecureHTTP permits a plain http BaseURL on a non-loopback host.
	// WARNING: session cookies are sent in clear text.
	AllowInsecureHTTP bool

	// DefaultReturnURL is used when the url parameter is missing or not a
	// local path
	DefaultReturnURL string // default: "/"

	// AllowRegistration is the site-level switch for requesting new accounts
	AllowRegistration bool

	// SyncProviderEmail updates the account email to the provider email
	// after every login that is not a connect
	SyncProviderEmail bool

	// RegistrationURL is the confirmation page shown after a Register
	// decision. When empty the proposal is answered as JSON.
	RegistrationURL string

	// ErrorURL receives rejections as ?reason=...&message=... When empty
	// rejections are answered as JSON.
	ErrorURL string

	// SessionCookieName names the browser session cookie
	SessionCookieName string // default: "oauth_login_session"

	// SessionTTL is the lifetime of the browser session cookie and of the
	// signed-in account
	SessionTTL time.Duration // default: 24h

	// StateTTL is how long an authorization state stays valid
	StateTTL time.Duration // default: 10m

	// RegistrationTTL is how long a pending registration waits for
	// confirmation
	RegistrationTTL time.Duration // default: 15m

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this server
	TrustedProxyCount int // default: 1
}

// Defaults
const (
	DefaultSessionCookieName = "oauth_login_session"
	DefaultSessionTTL        = 24 * time.Hour
)

// applyDefaults fills unset values and warns about insecure settings
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	c := *config
	if c.DefaultReturnURL == "" {
		c.DefaultReturnURL = "/"
	}
	if c.SessionCookieName == "" {
		c.SessionCookieName = DefaultSessionCookieName
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.StateTTL == 0 {
		c.StateTTL = flow.DefaultStateTTL
	}
	if c.RegistrationTTL == 0 {
		c.RegistrationTTL = session.DefaultRegistrationTTL
	}
	if c.TrustedProxyCount == 0 {
		c.TrustedProxyCount = 1
	}

	if c.TrustProxy {
		logger.Warn("Trusting proxy headers for client IPs",
			"trusted_proxy_count", c.TrustedProxyCount)
	}
	if c.AllowRegistration {
		logger.Info("Account registration through providers is enabled")
	}
	return &c
}

// validate checks the values applyDefaults cannot repair
func (c *Config) validate(logger *slog.Logger) error {
	if !IsLocalReturnURL(c.DefaultReturnURL) {
		return fmt.Errorf("default return URL must be a local path, got %q", c.DefaultReturnURL)
	}
	if c.StateTTL < 0 || c.RegistrationTTL < 0 || c.SessionTTL < 0 {
		return fmt.Errorf("TTLs must not be negative")
	}
	return c.validateHTTPSEnforcement(logger)
}

// validateHTTPSEnforcement rejects a plain http BaseURL outside of loopback
// development unless AllowInsecureHTTP is set.
func (c *Config) validateHTTPSEnforcement(logger *slog.Logger) error {
	if c.BaseURL == "" {
		return nil
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
	default:
		return fmt.Errorf("base URL must use https, got scheme %q", u.Scheme)
	}

	if util.ClassifyHost(u.Hostname()) == util.HostLoopback {
		logger.Warn("Running over plain HTTP on loopback (development only)", "base_url", c.BaseURL)
		return nil
	}
	if c.AllowInsecureHTTP {
		logger.Error("Running over plain HTTP on a public host; session cookies are not protected",
			"base_url", c.BaseURL)
		return nil
	}
	return fmt.Errorf("base URL %q must use https (set AllowInsecureHTTP to override)", c.BaseURL)
}

// secureCookies reports whether cookies get the Secure attribute
func (c *Config) secureCookies() bool {
	u, err := url.Parse(c.BaseURL)
	return err == nil && u.Scheme == "https"
}
