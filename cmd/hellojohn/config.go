package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellojohn-oidc/internal/store/catalog"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Configuración"}

	check := &cobra.Command{
		Use:   "check",
		Short: "Valida la config y el catálogo sin levantar el servidor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: issuer=%s storage=%s cache=%s\n", cfg.Issuer, cfg.Storage.Driver, cfg.Cache.Driver)
			if cfg.Catalog.File == "" {
				fmt.Fprintln(out, "catalog: postgres")
				return nil
			}
			cat, err := catalog.Load(cfg.Catalog.File)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "catalog ok: %d client(s), %d scope(s), %d user(s)\n", len(cat.Clients), len(cat.Scopes), len(cat.Users))
			return nil
		},
	}
	cfgCmd.AddCommand(check)
	return cfgCmd
}
