package main

import (
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellojohn-oidc/internal/config"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{configFile: envOr("HJ_CONFIG_FILE", "config.yaml")}

	root := &cobra.Command{
		Use:           "hellojohn",
		Short:         "Proveedor OAuth2 / OpenID Connect",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", opts.configFile, "Archivo de configuración YAML (env HJ_CONFIG_FILE)")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newKeysCmd(),
		newSecretCmd(),
		newConfigCmd(opts),
		newCatalogCmd(opts),
	)
	return root
}

// load lee la config e inicializa el logger global con sus valores.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: cfg.App.ServiceName,
		Version:     version,
	})
	return cfg, nil
}
