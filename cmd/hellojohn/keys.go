package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellojohn-oidc/internal/jwt"
)

func newKeysCmd() *cobra.Command {
	keys := &cobra.Command{Use: "keys", Short: "Claves de firma Ed25519"}

	var (
		out   string
		force bool
	)
	gen := &cobra.Command{
		Use:   "gen",
		Short: "Genera una clave Ed25519 (PEM PKCS8) e imprime su kid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", out)
			}
			k, err := jwt.GenerateEd25519()
			if err != nil {
				return err
			}
			if err := jwt.WritePrivateKeyFile(out, k.Private); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k.KID)
			return nil
		},
	}
	gen.Flags().StringVarP(&out, "out", "o", "", "Ruta del PEM a escribir")
	gen.Flags().BoolVar(&force, "force", false, "Sobrescribir si existe")

	keys.AddCommand(gen)
	return keys
}
