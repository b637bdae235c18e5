// Package pg implementa los stores sobre Postgres (pgx/v5): grants, consents,
// catálogo de clientes/scopes y usuarios locales.
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// querier es lo que los stores usan del pool (o de una tx).
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PoolConfig ajusta el pool; ceros = defaults de pgx.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// Store agrupa todos los stores sobre un mismo pool.
type Store struct {
	pool *pgxpool.Pool

	Codes    *AuthorizationCodes
	Refresh  *RefreshTokens
	Handles  *TokenHandles
	Consents *Consents
	Catalog  *Catalog
	Users    *UserService
}

func New(ctx context.Context, dsn string, cfg PoolConfig) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: pool: %w", err)
	}

	// arranque no bloqueante: si la base todavía no está, /readyz lo reporta
	log := logger.From(ctx).With(logger.Component("store.pg"))
	if err := pool.Ping(ctx); err != nil {
		log.Warn("pg pool startup ping failed", logger.Err(err))
	} else {
		log.Info("pg pool ready", logger.Int("max_conns", int(pcfg.MaxConns)))
	}
	return NewFromPool(pool), nil
}

// NewFromPool arma los stores sobre un pool existente.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:     pool,
		Codes:    &AuthorizationCodes{newGrants[repository.AuthorizationCode](pool, kindCode)},
		Refresh:  &RefreshTokens{newGrants[repository.RefreshToken](pool, kindRefresh), pool},
		Handles:  &TokenHandles{newGrants[repository.Token](pool, kindHandle)},
		Consents: &Consents{q: pool},
		Catalog:  &Catalog{q: pool},
		Users:    NewUserService(pool),
	}
}

// Pool expone el pool (migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// PurgeExpired borra los grants vencidos; retorna cuántos.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM oidc_grant WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("pg: purge: %w", err)
	}
	return ct.RowsAffected(), nil
}
