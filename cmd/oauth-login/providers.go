package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/giantswarm/oauth-login/config"
	"github.com/giantswarm/oauth-login/providers"
	"github.com/giantswarm/oauth-login/registry"
)

func newProvidersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the configured providers",
		Long: `Lists the providers that are fully configured and would be offered,
followed by those that are missing required options.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			options, err := cfg.AllProviderOptions()
			if err != nil {
				return err
			}
			reg, err := registry.NewFromOptions(registry.Builtin, options, providers.Config{
				RedirectURL: cfg.RedirectURL(),
				Logger:      opts.logger,
			})
			if err != nil {
				return err
			}
			return printProviders(cmd.OutOrStdout(), cfg, reg)
		},
	}
}

func printProviders(w io.Writer, cfg config.Config, reg *registry.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLABEL\tREGISTRATION\tSTATUS")

	for _, entry := range reg.ListAvailable(false) {
		registration := "no"
		if cfg.Server.AllowRegistration && reg.SupportsRegistration(entry.Name) {
			registration = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\tavailable\n", entry.Name, entry.Label, registration)
	}

	incomplete := reg.Incomplete()
	names := make([]string, 0, len(incomplete))
	for name := range incomplete {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t-\t-\tmissing %s\n", name, strings.Join(incomplete[name], ", "))
	}
	return tw.Flush()
}
