package registry

import (
	"github.com/giantswarm/oauth-login/providers"
	"github.com/giantswarm/oauth-login/providers/dropbox"
	"github.com/giantswarm/oauth-login/providers/generic"
	"github.com/giantswarm/oauth-login/providers/github"
	"github.com/giantswarm/oauth-login/providers/kanidm"
	"github.com/giantswarm/oauth-login/providers/spotify"
	"github.com/giantswarm/oauth-login/providers/wordpress"
)

// Variant describes one provider implementation.
type Variant struct {
	Name         string
	RequiredKeys []string
	New          func(cfg providers.Config) (providers.Adapter, error)
}

// Builtin is the static table of supported providers.
var Builtin = []Variant{
	{
		Name:         generic.Name,
		RequiredKeys: generic.RequiredKeys,
		New:          func(cfg providers.Config) (providers.Adapter, error) { return generic.New(cfg) },
	},
	{
		Name:         github.Name,
		RequiredKeys: github.RequiredKeys,
		New:          func(cfg providers.Config) (providers.Adapter, error) { return github.New(cfg) },
	},
	{
		Name:         dropbox.Name,
		RequiredKeys: dropbox.RequiredKeys,
		New:          func(cfg providers.Config) (providers.Adapter, error) { return dropbox.New(cfg) },
	},
	{
		Name:         spotify.Name,
		RequiredKeys: spotify.RequiredKeys,
		New:          func(cfg providers.Config) (providers.Adapter, error) { return spotify.New(cfg) },
	},
	{
		Name:         wordpress.Name,
		RequiredKeys: wordpress.RequiredKeys,
		New:          func(cfg providers.Config) (providers.Adapter, error) { return wordpress.New(cfg) },
	},
	{
		Name:         kanidm.Name,
		RequiredKeys: kanidm.RequiredKeys,
		New:          func(cfg providers.Config) (providers.Adapter, error) { return kanidm.New(cfg) },
	},
}

// Lookup returns the builtin variant called name.
func Lookup(name string) (Variant, bool) {
	for _, v := range Builtin {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}
