package main

import (
	"fmt"

	"github.com/spf13/cobra"

	migrations "github.com/dropDatabas3/hellojohn-oidc/migrations/postgres"

	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/catalog"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/pg"
)

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	catCmd := &cobra.Command{Use: "catalog", Short: "Catálogo de clientes, scopes y usuarios"}

	var (
		file    string
		dsn     string
		migrate bool
	)
	imp := &cobra.Command{
		Use:   "import",
		Short: "Upsert del catálogo YAML en las tablas oidc_* de Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Catalog.File
			}
			if file == "" {
				return fmt.Errorf("no catalog file: use --file or catalog.file")
			}
			cat, err := catalog.Load(file)
			if err != nil {
				return err
			}

			store, err := openPG(cmd, cfg, dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := logger.ToContext(cmd.Context(), logger.L())
			if migrate {
				if _, err := pg.Migrate(ctx, store.Pool(), migrations.PostgresFS); err != nil {
					return err
				}
			}
			for i := range cat.Scopes {
				if err := store.Catalog.UpsertScope(ctx, &cat.Scopes[i]); err != nil {
					return fmt.Errorf("scope %s: %w", cat.Scopes[i].Name, err)
				}
			}
			for i := range cat.Clients {
				if err := store.Catalog.UpsertClient(ctx, &cat.Clients[i]); err != nil {
					return fmt.Errorf("client %s: %w", cat.Clients[i].ClientID, err)
				}
			}
			for i := range cat.Users {
				if err := store.Users.UpsertUser(ctx, &cat.Users[i]); err != nil {
					return fmt.Errorf("user %s: %w", cat.Users[i].Subject, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d scope(s), %d client(s), %d user(s)\n", len(cat.Scopes), len(cat.Clients), len(cat.Users))
			return nil
		},
	}
	imp.Flags().StringVarP(&file, "file", "f", "", "Catálogo YAML (default: catalog.file de la config)")
	imp.Flags().StringVar(&dsn, "dsn", "", "DSN de Postgres (default: postgres.dsn de la config)")
	imp.Flags().BoolVar(&migrate, "migrate", false, "Aplicar migraciones antes de importar")

	catCmd.AddCommand(imp)
	return catCmd
}
