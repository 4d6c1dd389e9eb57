package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the login HTTP server",
		Long: `Runs the login HTTP server until SIGINT or SIGTERM.

Routes:
  GET  /login       start a provider request, or finish one when the
                    provider redirects back with code and state
  GET  /callback    finish a provider request
  POST /register    confirm a pending registration
  GET  /providers   list the available providers
  GET  /account     signed-in account and its connected providers
  GET  /healthz     liveness check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, opts.logger)
			if err != nil {
				return err
			}

			listener, err := net.Listen("tcp", cfg.Server.ListenAddr)
			if err != nil {
				_ = a.Close(context.Background())
				return fmt.Errorf("listen on %s: %w", cfg.Server.ListenAddr, err)
			}
			return serve(ctx, a, listener, cfg.Server.ShutdownTimeout)
		},
	}
}

// serve runs the HTTP server on listener until ctx is done, then shuts it
// down and releases the app within shutdownTimeout.
func serve(ctx context.Context, a *app, listener net.Listener, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Starting login server",
			"addr", listener.Addr().String(),
			"base_url", a.cfg.Server.BaseURL,
			"providers", a.providers.Len(),
			"registration", a.cfg.Server.AllowRegistration)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down login server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(httpServer.Shutdown(shutdownCtx), a.Close(shutdownCtx))
	})
	return g.Wait()
}
