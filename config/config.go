// Package config loads the process configuration of oauth-login: a YAML
// file merged over defaults, then OAUTH_LOGIN_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/oauth-login/registry"
	"github.com/giantswarm/oauth-login/server"
)

// Storage backends
const (
	BackendMemory = "memory"
	BackendValkey = "valkey"
	BackendSQLite = "sqlite"
)

// Config is the complete process configuration.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Storage         StorageConfig         `yaml:"storage"`
	Instrumentation InstrumentationConfig `yaml:"instrumentation"`

	// Providers maps a provider name to its options:
	//
	//	providers:
	//	  Github:
	//	    clientId: ...
	//	    clientSecret: ...
	Providers map[string]map[string]string `yaml:"providers"`

	// ProviderOptions accepts the flat <Name>_<option> form, e.g.
	// Github_clientId. Values here win over Providers.
	ProviderOptions map[string]string `yaml:"providerOptions" env:"OAUTH_LOGIN_PROVIDER_OPTIONS" envSeparator:"," envKeyValSeparator:"="`
}

// ServerConfig configures the HTTP side.
type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr" env:"OAUTH_LOGIN_LISTEN_ADDR"`
	BaseURL    string `yaml:"baseUrl" env:"OAUTH_LOGIN_BASE_URL"`

	// RedirectPath is appended to BaseURL to form the provider redirect URL
	RedirectPath string `yaml:"redirectPath" env:"OAUTH_LOGIN_REDIRECT_PATH"`

	DefaultReturnURL  string `yaml:"defaultReturnUrl" env:"OAUTH_LOGIN_DEFAULT_RETURN_URL"`
	RegistrationURL   string `yaml:"registrationUrl" env:"OAUTH_LOGIN_REGISTRATION_URL"`
	ErrorURL          string `yaml:"errorUrl" env:"OAUTH_LOGIN_ERROR_URL"`
	AllowRegistration bool   `yaml:"allowRegistration" env:"OAUTH_LOGIN_ALLOW_REGISTRATION"`
	SyncProviderEmail bool   `yaml:"syncProviderEmail" env:"OAUTH_LOGIN_SYNC_PROVIDER_EMAIL"`
	AllowInsecureHTTP bool   `yaml:"allowInsecureHttp" env:"OAUTH_LOGIN_ALLOW_INSECURE_HTTP"`
	TrustProxy        bool   `yaml:"trustProxy" env:"OAUTH_LOGIN_TRUST_PROXY"`
	TrustedProxyCount int    `yaml:"trustedProxyCount" env:"OAUTH_LOGIN_TRUSTED_PROXY_COUNT"`

	StateTTL        time.Duration `yaml:"stateTtl" env:"OAUTH_LOGIN_STATE_TTL"`
	RegistrationTTL time.Duration `yaml:"registrationTtl" env:"OAUTH_LOGIN_REGISTRATION_TTL"`
	SessionTTL      time.Duration `yaml:"sessionTtl" env:"OAUTH_LOGIN_SESSION_TTL"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"OAUTH_LOGIN_SHUTDOWN_TIMEOUT"`
}

// StorageConfig selects and configures the backends.
type StorageConfig struct {
	// Sessions is "memory" or "valkey"
	Sessions string `yaml:"sessions" env:"OAUTH_LOGIN_SESSION_STORE"`

	// Accounts is "memory" or "sqlite"
	Accounts string `yaml:"accounts" env:"OAUTH_LOGIN_ACCOUNT_STORE"`

	SQLitePath string `yaml:"sqlitePath" env:"OAUTH_LOGIN_SQLITE_PATH"`

	ValkeyAddress   string `yaml:"valkeyAddress" env:"OAUTH_LOGIN_VALKEY_ADDRESS"`
	ValkeyPassword  string `yaml:"valkeyPassword" env:"OAUTH_LOGIN_VALKEY_PASSWORD"`
	ValkeyDB        int    `yaml:"valkeyDb" env:"OAUTH_LOGIN_VALKEY_DB"`
	ValkeyKeyPrefix string `yaml:"valkeyKeyPrefix" env:"OAUTH_LOGIN_VALKEY_KEY_PREFIX"`
	ValkeyTLS       bool   `yaml:"valkeyTls" env:"OAUTH_LOGIN_VALKEY_TLS"`

	// EncryptionKey is a base64 AES-256 key for session values at rest
	EncryptionKey string `yaml:"encryptionKey" env:"OAUTH_LOGIN_ENCRYPTION_KEY"`

	// EncryptionSecret derives the key when EncryptionKey is not set
	EncryptionSecret string `yaml:"encryptionSecret" env:"OAUTH_LOGIN_ENCRYPTION_SECRET"`
}

// InstrumentationConfig configures OpenTelemetry.
type InstrumentationConfig struct {
	Enabled        bool   `yaml:"enabled" env:"OAUTH_LOGIN_OTEL_ENABLED"`
	ServiceName    string `yaml:"serviceName" env:"OAUTH_LOGIN_OTEL_SERVICE_NAME"`
	ServiceVersion string `yaml:"serviceVersion" env:"OAUTH_LOGIN_OTEL_SERVICE_VERSION"`
	LogClientIPs   bool   `yaml:"logClientIps" env:"OAUTH_LOGIN_OTEL_LOG_CLIENT_IPS"`
	Audit          bool   `yaml:"audit" env:"OAUTH_LOGIN_AUDIT"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:       ":8080",
			BaseURL:          "http://localhost:8080",
			RedirectPath:     "/login",
			DefaultReturnURL: "/",
			ShutdownTimeout:  10 * time.Second,
		},
		Storage: StorageConfig{
			Sessions:   BackendMemory,
			Accounts:   BackendMemory,
			SQLitePath: "oauth-login.db",
		},
		Instrumentation: InstrumentationConfig{
			ServiceName: "oauth-login",
			Audit:       true,
		},
		Providers: map[string]map[string]string{},
	}
}

// Load reads path (when not empty) over the defaults and applies the
// environment. A missing file is an error only when path was given.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// RedirectURL is the URL providers redirect back to
func (c Config) RedirectURL() string {
	return strings.TrimRight(c.Server.BaseURL, "/") + c.Server.RedirectPath
}

// AllProviderOptions merges Providers and the flat ProviderOptions into one
// map keyed by provider name.
func (c Config) AllProviderOptions() (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(c.Providers))
	for name, opts := range c.Providers {
		merged := make(map[string]string, len(opts))
		for k, v := range opts {
			merged[k] = v
		}
		out[name] = merged
	}

	var errs []error
	for key, value := range c.ProviderOptions {
		name, option, ok := strings.Cut(key, "_")
		if !ok || name == "" || option == "" {
			errs = append(errs, fmt.Errorf("provider option %q is not of the form <Name>_<option>", key))
			continue
		}
		if out[name] == nil {
			out[name] = make(map[string]string)
		}
		out[name][option] = value
	}
	return out, errors.Join(errs...)
}

// ServerConfig converts to the login server configuration
func (c Config) ServerConfig() *server.Config {
	return &server.Config{
		BaseURL:           c.Server.BaseURL,
		AllowInsecureHTTP: c.Server.AllowInsecureHTTP,
		DefaultReturnURL:  c.Server.DefaultReturnURL,
		AllowRegistration: c.Server.AllowRegistration,
		SyncProviderEmail: c.Server.SyncProviderEmail,
		RegistrationURL:   c.Server.RegistrationURL,
		ErrorURL:          c.Server.ErrorURL,
		StateTTL:          c.Server.StateTTL,
		RegistrationTTL:   c.Server.RegistrationTTL,
		SessionTTL:        c.Server.SessionTTL,
		TrustProxy:        c.Server.TrustProxy,
		TrustedProxyCount: c.Server.TrustedProxyCount,
	}
}

// Validate returns every problem found, joined
func (c Config) Validate() error {
	var errs []error

	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listenAddr is required"))
	}
	if c.Server.BaseURL == "" {
		errs = append(errs, errors.New("server.baseUrl is required"))
	}
	if !strings.HasPrefix(c.Server.RedirectPath, "/") {
		errs = append(errs, fmt.Errorf("server.redirectPath must start with /, got %q", c.Server.RedirectPath))
	}
	if c.Server.DefaultReturnURL != "" && !server.IsLocalReturnURL(c.Server.DefaultReturnURL) {
		errs = append(errs, fmt.Errorf("server.defaultReturnUrl must be a local path, got %q", c.Server.DefaultReturnURL))
	}

	switch c.Storage.Sessions {
	case BackendMemory:
	case BackendValkey:
		if c.Storage.ValkeyAddress == "" {
			errs = append(errs, errors.New("storage.valkeyAddress is required for valkey sessions"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.sessions must be %s or %s, got %q", BackendMemory, BackendValkey, c.Storage.Sessions))
	}
	switch c.Storage.Accounts {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlitePath is required for sqlite accounts"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.accounts must be %s or %s, got %q", BackendMemory, BackendSQLite, c.Storage.Accounts))
	}

	if c.Storage.EncryptionKey != "" && c.Storage.EncryptionSecret != "" {
		errs = append(errs, errors.New("storage.encryptionKey and storage.encryptionSecret are mutually exclusive"))
	}

	options, err := c.AllProviderOptions()
	if err != nil {
		errs = append(errs, err)
	}
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := registry.Lookup(name); !ok {
			errs = append(errs, fmt.Errorf("unknown provider %q", name))
		}
	}

	return errors.Join(errs...)
}
