package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellojohn-oidc/internal/security/secret"
)

func newSecretCmd() *cobra.Command {
	sec := &cobra.Command{Use: "secret", Short: "Utilidades de secretos"}

	var useBcrypt bool
	hash := &cobra.Command{
		Use:   "hash [secret]",
		Short: "Hashea un secreto (argon2id por default); sin argumento lee stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read secret: %w", err)
				}
				plain = strings.TrimRight(line, "\r\n")
			}

			var (
				h   string
				err error
			)
			if useBcrypt {
				h, err = secret.HashBcrypt(plain)
			} else {
				h, err = secret.Hash(secret.Default, plain)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	hash.Flags().BoolVar(&useBcrypt, "bcrypt", false, "Usar bcrypt en vez de argon2id")

	sec.AddCommand(hash)
	return sec
}
