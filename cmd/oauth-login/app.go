package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/giantswarm/oauth-login/config"
	"github.com/giantswarm/oauth-login/instrumentation"
	"github.com/giantswarm/oauth-login/providers"
	"github.com/giantswarm/oauth-login/registry"
	"github.com/giantswarm/oauth-login/security"
	"github.com/giantswarm/oauth-login/server"
	"github.com/giantswarm/oauth-login/storage"
	"github.com/giantswarm/oauth-login/storage/memory"
	"github.com/giantswarm/oauth-login/storage/sqlite"
	"github.com/giantswarm/oauth-login/storage/valkey"
)

const providerRequestTimeout = 30 * time.Second

// accountBackend is what the account store must provide to the server.
type accountBackend interface {
	storage.AccountStore
	storage.AccountCreator
}

// app holds the wired components of a running process.
type app struct {
	cfg             config.Config
	logger          *slog.Logger
	instrumentation *instrumentation.Instrumentation
	providers       *registry.Registry
	server          *server.Server

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.instrumentation, err = instrumentation.New(instrumentation.Config{
		ServiceName:    cfg.Instrumentation.ServiceName,
		ServiceVersion: firstNonEmpty(cfg.Instrumentation.ServiceVersion, version),
		Enabled:        cfg.Instrumentation.Enabled,
		LogClientIPs:   cfg.Instrumentation.LogClientIPs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}

	encryptor, err := newEncryptor(cfg.Storage.EncryptionKey, cfg.Storage.EncryptionSecret)
	if err != nil {
		return nil, err
	}
	if encryptor != nil {
		encryptor.SetInstrumentation(a.instrumentation)
	}

	var mem *memory.Store
	memoryStore := func() *memory.Store {
		if mem == nil {
			mem = memory.New()
			mem.SetLogger(logger)
			mem.SetInstrumentation(a.instrumentation)
			a.closers = append(a.closers, func() error { mem.Stop(); return nil })
		}
		return mem
	}

	sessions, err := a.openSessions(memoryStore, encryptor)
	if err != nil {
		return nil, err
	}
	accounts, err := a.openAccounts(ctx, memoryStore)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Accounts == config.BackendMemory {
		logger.Warn("Accounts are kept in memory and lost on restart")
	}

	a.providers, err = a.buildProviders()
	if err != nil {
		return nil, err
	}

	auditor := security.NewAuditor(logger, cfg.Instrumentation.Audit)
	auditor.SetInstrumentation(a.instrumentation)

	deps := server.Dependencies{
		Providers:       a.providers,
		Accounts:        accounts,
		Sessions:        sessions,
		Auditor:         auditor,
		Instrumentation: a.instrumentation,
	}
	if cfg.Server.AllowRegistration {
		deps.Registrar = server.NewStoreRegistrar(accounts, logger)
	}

	a.server, err = server.New(deps, cfg.ServerConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create login server: %w", err)
	}
	return a, nil
}

func (a *app) openSessions(memoryStore func() *memory.Store, encryptor *security.Encryptor) (storage.SessionStore, error) {
	switch a.cfg.Storage.Sessions {
	case config.BackendValkey:
		vcfg := valkey.Config{
			Address:   a.cfg.Storage.ValkeyAddress,
			Password:  a.cfg.Storage.ValkeyPassword,
			DB:        a.cfg.Storage.ValkeyDB,
			KeyPrefix: a.cfg.Storage.ValkeyKeyPrefix,
			Logger:    a.logger,
		}
		if a.cfg.Storage.ValkeyTLS {
			vcfg.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		store, err := valkey.New(vcfg)
		if err != nil {
			return nil, err
		}
		store.SetInstrumentation(a.instrumentation)
		if encryptor != nil {
			store.SetEncryptor(encryptor)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		return store, nil
	default:
		store := memoryStore()
		if encryptor != nil {
			store.SetEncryptor(encryptor)
		}
		return store, nil
	}
}

func (a *app) openAccounts(ctx context.Context, memoryStore func() *memory.Store) (accountBackend, error) {
	switch a.cfg.Storage.Accounts {
	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, a.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open account database: %w", err)
		}
		store.SetLogger(a.logger)
		store.SetInstrumentation(a.instrumentation)
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return memoryStore(), nil
	}
}

func (a *app) buildProviders() (*registry.Registry, error) {
	options, err := a.cfg.AllProviderOptions()
	if err != nil {
		return nil, err
	}
	reg, err := registry.NewFromOptions(registry.Builtin, options, providers.Config{
		RedirectURL:     a.cfg.RedirectURL(),
		HTTPClient:      &http.Client{Timeout: providerRequestTimeout},
		RequestTimeout:  providerRequestTimeout,
		Instrumentation: a.instrumentation,
		Logger:          a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid provider configuration: %w", err)
	}
	if reg.Len() == 0 {
		a.logger.Warn("No provider is fully configured; sign-in is unavailable")
	}
	return reg, nil
}

// Handler returns the login routes plus a health check.
func (a *app) Handler() http.Handler {
	h := server.NewHandler(a.server, a.logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return security.RequestIDMiddleware(security.SecurityHeadersMiddleware(a.cfg.Server.BaseURL, mux))
}

// Close releases the stores and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if a.instrumentation != nil {
		errs = append(errs, a.instrumentation.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// newEncryptor returns nil when neither a key nor a secret is configured
func newEncryptor(encodedKey, secret string) (*security.Encryptor, error) {
	var (
		key []byte
		err error
	)
	switch {
	case encodedKey != "":
		key, err = security.KeyFromBase64(encodedKey)
	case secret != "":
		key, err = security.KeyFromSecret(secret)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	return security.NewEncryptor(key)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
