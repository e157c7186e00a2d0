package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/api"
	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analyzer and the ledger over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.Close()

			if port > 0 {
				a.cfg.Server.Port = port
			}
			srv := api.NewServer(api.Config{
				Port:      a.cfg.Server.Port,
				AuthToken: a.cfg.Server.AuthToken,
			}, a.service, a.metrics, a.log.Logger)
			if a.cfg.Server.AuthToken == "" {
				a.log.Warn("server.auth_token is empty; API is unauthenticated")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				a.log.Info("Shutdown signal received, stopping server...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			a.log.Info("Server stopped")
			return <-errCh
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Override server.port")
	return cmd
}
