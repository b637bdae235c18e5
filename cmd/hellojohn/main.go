// Command hellojohn corre el proveedor OIDC y sus tareas de operación.
package main

import (
	"fmt"
	"os"

	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// version se inyecta con -ldflags "-X main.version=...".
var version = "dev"

func main() {
	defer func() { _ = logger.Sync() }()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
