// Package registry holds the configured provider adapters of a process.
//
// A provider is available only when all of its required options are set.
// Partially configured providers are skipped and logged so that a half
// finished configuration never shows a broken sign-in button.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/giantswarm/oauth-login/providers"
	"github.com/giantswarm/oauth-login/storage"
)

// Entry is a provider as shown to users.
type Entry struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Registry resolves adapters by name. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	adapters   map[string]providers.Adapter
	incomplete map[string][]string
	logger     *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		adapters:   make(map[string]providers.Adapter),
		incomplete: make(map[string][]string),
		logger:     logger,
	}
}

// Register builds the adapter for variant from cfg and adds it. A variant
// with missing required options is skipped without error; an invalid
// option value is an error.
func (r *Registry) Register(variant Variant, cfg providers.Config) error {
	if missing := providers.MissingKeys(variant.RequiredKeys, cfg.Options); len(missing) > 0 {
		r.logger.Warn("Provider is not fully configured and will not be offered",
			"provider", variant.Name,
			"missing", missing)
		r.mu.Lock()
		r.incomplete[variant.Name] = missing
		r.mu.Unlock()
		return nil
	}

	adapter, err := variant.New(cfg)
	if err != nil {
		return fmt.Errorf("provider %s: %w", variant.Name, err)
	}

	r.RegisterAdapter(adapter)
	return nil
}

// RegisterAdapter adds an already built adapter, replacing one with the
// same name.
func (r *Registry) RegisterAdapter(adapter providers.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
	delete(r.incomplete, adapter.Name())
	r.logger.Debug("Registered provider", "provider", adapter.Name(), "label", adapter.Label())
}

// Resolve returns the adapter registered as name.
func (r *Registry) Resolve(name string) (providers.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[name]
	return adapter, ok
}

// SupportsRegistration reports whether name is registered and can be used
// to create accounts.
func (r *Registry) SupportsRegistration(name string) bool {
	adapter, ok := r.Resolve(name)
	return ok && adapter.SupportsRegistration()
}

// ListAvailable returns the registered providers sorted by label. With
// registrationOnly, providers that cannot register accounts are left out.
func (r *Registry) ListAvailable(registrationOnly bool) []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		if registrationOnly && !adapter.SupportsRegistration() {
			continue
		}
		entries = append(entries, Entry{Name: adapter.Name(), Label: adapter.Label()})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Label != entries[j].Label {
			return entries[i].Label < entries[j].Label
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// LabelsForAccounts returns the labels of the registered providers the
// accounts are linked to, in account order without duplicates.
func (r *Registry) LabelsForAccounts(accounts []*storage.Account, registrationOnly bool) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, acc := range accounts {
		if acc == nil || !acc.Linkage.IsLinked() {
			continue
		}
		adapter, ok := r.Resolve(acc.Linkage.ProviderName)
		if !ok || (registrationOnly && !adapter.SupportsRegistration()) {
			continue
		}
		if seen[adapter.Name()] {
			continue
		}
		seen[adapter.Name()] = true
		labels = append(labels, adapter.Label())
	}
	return labels
}

// Incomplete returns the partially configured providers and the keys they
// are missing.
func (r *Registry) Incomplete() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.incomplete))
	for name, keys := range r.incomplete {
		out[name] = append([]string(nil), keys...)
	}
	return out
}

// Len returns the number of available providers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// NewFromOptions builds a registry from per-provider option maps keyed by
// variant name. Every variant with no options at all is ignored silently;
// defaults supplies the redirect URL, HTTP client, instrumentation and
// logger. All invalid providers are reported together.
func NewFromOptions(variants []Variant, options map[string]map[string]string, defaults providers.Config) (*Registry, error) {
	r := New(defaults.Logger)

	var errs []error
	for _, variant := range variants {
		opts, ok := options[variant.Name]
		if !ok || len(opts) == 0 {
			continue
		}
		cfg := providers.ConfigFromOptions(opts, defaults.RedirectURL)
		cfg.HTTPClient = defaults.HTTPClient
		cfg.RequestTimeout = defaults.RequestTimeout
		cfg.Instrumentation = defaults.Instrumentation
		cfg.Logger = defaults.Logger
		if err := r.Register(variant, cfg); err != nil {
			errs = append(errs, err)
		}
	}

	for name := range options {
		if _, ok := lookupIn(variants, name); !ok {
			errs = append(errs, fmt.Errorf("unknown provider %q", name))
		}
	}

	return r, errors.Join(errs...)
}

func lookupIn(variants []Variant, name string) (Variant, bool) {
	for _, v := range variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}
