package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/giantswarm/oauth-login/config"
)

const defaultEnvFile = ".env"

// rootOptions are the persistent flags shared by all commands.
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "oauth-login",
		Short: "Sign in with external OAuth2 and OpenID Connect providers",
		Long: `oauth-login lets users sign in to local accounts with GitHub, Dropbox,
Spotify, WordPress.com, Kanidm or any generic OAuth2 provider, connect
and disconnect those providers, and request new accounts from a
provider identity.

Configuration is read from an optional YAML file and OAUTH_LOGIN_*
environment variables. A .env file in the working directory is loaded
first when present.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(opts.envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			opts.logger = logger
			slog.SetDefault(logger)
			return nil
		},
	}
	cmd.SetVersionTemplate(`{{printf "oauth-login version %s\n" .Version}}`)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")
	flags.StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file loaded before reading the environment")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newProvidersCmd(opts))
	cmd.AddCommand(newGenkeyCmd())
	return cmd
}

// loadConfig loads and validates the process configuration
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
