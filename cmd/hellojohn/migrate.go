package main

import (
	"fmt"

	"github.com/spf13/cobra"

	migrations "github.com/dropDatabas3/hellojohn-oidc/migrations/postgres"

	"github.com/dropDatabas3/hellojohn-oidc/internal/config"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/pg"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de Postgres pendientes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			store, err := openPG(cmd, cfg, dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := logger.ToContext(cmd.Context(), logger.L())
			n, err := pg.Migrate(ctx, store.Pool(), migrations.PostgresFS)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "DSN de Postgres (default: postgres.dsn de la config)")
	return cmd
}

func openPG(cmd *cobra.Command, cfg *config.Config, dsn string) (*pg.Store, error) {
	if dsn == "" {
		dsn = cfg.Postgres.DSN
	}
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty: use --dsn or postgres.dsn")
	}
	return pg.New(logger.ToContext(cmd.Context(), logger.L()), dsn, pg.PoolConfig{
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
}
