package pg

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// migrationLockID es el id del pg_advisory_lock que serializa migraciones
// entre réplicas que arrancan a la vez.
func migrationLockID(name string) int64 {
	h := sha256.Sum256([]byte("oidc_migration:" + name))
	return int64(binary.BigEndian.Uint64(h[:8]))
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS oidc_schema_migrations (
	    version    TEXT        PRIMARY KEY,
	    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// Migrate aplica los *_up.sql de fsys (orden lexicográfico) que todavía no
// están en oidc_schema_migrations. Devuelve cuántos aplicó.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) (int, error) {
	log := logger.From(ctx).With(logger.Component("store.pg"), logger.Op("migrate"))

	files, err := upScripts(fsys)
	if err != nil {
		return 0, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("pg: acquire: %w", err)
	}
	defer conn.Release()

	lockID := migrationLockID("schema")
	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := conn.Exec(lockCtx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		return 0, fmt.Errorf("pg: migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", lockID); err != nil {
			log.Warn("failed to release migration lock", logger.Err(err))
		}
	}()

	if _, err := conn.Exec(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("pg: migrations table: %w", err)
	}

	applied := 0
	for _, name := range files {
		var done bool
		if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM oidc_schema_migrations WHERE version = $1)`, name).Scan(&done); err != nil {
			return applied, fmt.Errorf("pg: check %s: %w", name, err)
		}
		if done {
			continue
		}
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return applied, err
		}
		err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(b)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO oidc_schema_migrations (version) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("pg: exec %s: %w", name, err)
		}
		log.Info("migration applied", logger.String("version", name))
		applied++
	}
	return applied, nil
}

func upScripts(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("pg: read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), "_up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
