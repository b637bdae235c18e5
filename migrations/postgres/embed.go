// Package migrations embebe los scripts SQL del esquema.
package migrations

import "embed"

// PostgresFS contiene los *_up.sql de Postgres, aplicados en orden lexicográfico.
//
//go:embed *.sql
var PostgresFS embed.FS
