package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellojohn-oidc/internal/app"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logger.ToContext(ctx, logger.L())

			a, err := app.New(ctx, cfg, app.Options{})
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.L().Warn("shutdown cleanup", logger.Err(err))
				}
			}()

			logger.L().Info("starting",
				logger.String("addr", cfg.Server.Addr),
				logger.String("issuer", cfg.Issuer),
				logger.String("storage", cfg.Storage.Driver),
			)
			return a.Run(ctx)
		},
	}
}
