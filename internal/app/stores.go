package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/hellojohn-oidc/internal/cache"
	"github.com/dropDatabas3/hellojohn-oidc/internal/config"
	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
	healthctrl "github.com/dropDatabas3/hellojohn-oidc/internal/http/controllers/health"
	"github.com/dropDatabas3/hellojohn-oidc/internal/metrics"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-oidc/internal/rate"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/catalog"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/memory"
	"github.com/dropDatabas3/hellojohn-oidc/internal/store/pg"
	redisstore "github.com/dropDatabas3/hellojohn-oidc/internal/store/redis"
	migrations "github.com/dropDatabas3/hellojohn-oidc/migrations/postgres"

	rdb "github.com/redis/go-redis/v9"
)

// janitorInterval es cada cuánto se purgan grants vencidos (memory y pg).
const janitorInterval = 5 * time.Minute

// stores es el resultado de abrir el backend configurado.
type stores struct {
	codes    repository.AuthorizationCodeStore
	refresh  repository.RefreshTokenStore
	handles  repository.TokenHandleStore
	consents repository.ConsentStore
	clients  repository.ClientStore
	scopes   repository.ScopeStore
	users    repository.UserService

	sessions cache.Client
	limiter  rate.MultiLimiter

	checks []healthctrl.Check
	// background corre hasta que ctx se cancele (janitors).
	background []func(ctx context.Context)
	closers    []func() error
}

func (s *stores) close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openStores abre el storage de grants, el catálogo, el cache de sesiones y
// el rate limiter según cfg. Ante error cierra lo que haya abierto.
func openStores(ctx context.Context, cfg *config.Config) (_ *stores, err error) {
	log := logger.From(ctx).With(logger.Component("app"), logger.Op("openStores"))
	s := &stores{}
	defer func() {
		if err != nil {
			_ = s.close()
		}
	}()

	var redisClient *rdb.Client
	needRedis := cfg.Storage.Driver == "redis" || cfg.Cache.Driver == "redis"
	if needRedis {
		redisClient, err = redisstore.Connect(ctx, redisstore.Options{
			Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB, Prefix: cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, redisClient.Close)
		s.checks = append(s.checks, healthctrl.Check{
			Name: "redis", Critical: true,
			Fn: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	var pgStore *pg.Store
	switch cfg.Storage.Driver {
	case "memory":
		m := memory.New()
		s.codes, s.refresh, s.handles, s.consents = m.Codes, m.Refresh, m.Handles, m.Consents
		s.background = append(s.background, func(ctx context.Context) { m.RunJanitor(ctx, janitorInterval) })
	case "redis":
		r := redisstore.New(redisClient, cfg.Redis.Prefix)
		s.codes, s.refresh, s.handles, s.consents = r.Codes, r.Refresh, r.Handles, r.Consents
	case "postgres":
		pgStore, err = pg.New(ctx, cfg.Postgres.DSN, pg.PoolConfig{
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { pgStore.Close(); return nil })
		if cfg.Postgres.AutoMigrate {
			n, err := pg.Migrate(ctx, pgStore.Pool(), migrations.PostgresFS)
			if err != nil {
				return nil, err
			}
			log.Info("postgres migrations checked", logger.Count(n))
		}
		if err := metrics.RegisterCollector(nil, metrics.NewPoolCollector(pgStore.Pool())); err != nil {
			log.Warn("pool collector not registered", logger.Err(err))
		}
		s.codes, s.refresh, s.handles, s.consents = pgStore.Codes, pgStore.Refresh, pgStore.Handles, pgStore.Consents
		s.checks = append(s.checks, healthctrl.Check{Name: "postgres", Critical: true, Fn: pgStore.Ping})
		s.background = append(s.background, func(ctx context.Context) { runPGJanitor(ctx, pgStore) })
	default:
		return nil, fmt.Errorf("app: unknown storage driver %q", cfg.Storage.Driver)
	}

	// catálogo: archivo YAML o tablas oidc_*
	if cfg.Postgres.CatalogFromDB {
		if pgStore == nil {
			return nil, fmt.Errorf("app: catalog_from_db requires storage.driver=postgres")
		}
		cached := catalog.NewCached(pgStore.Catalog, pgStore.Catalog, cfg.Catalog.CacheTTL)
		s.clients, s.scopes, s.users = cached, cached, pgStore.Users
	} else {
		cat, err := catalog.Load(cfg.Catalog.File)
		if err != nil {
			return nil, err
		}
		st := catalog.NewStoreFromCatalog(cat)
		s.clients, s.scopes, s.users = st, st, catalog.NewUserService(cat.Users)
		log.Info("catalog loaded", logger.String("file", cfg.Catalog.File),
			logger.Int("clients", len(cat.Clients)), logger.Int("scopes", len(cat.Scopes)), logger.Int("users", len(cat.Users)))
	}

	s.sessions, err = cache.New(cache.Config{Driver: cfg.Cache.Driver, Prefix: cfg.Cache.Prefix, Redis: redisClient})
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.sessions.Close)
	if cfg.Cache.Driver != "redis" {
		s.checks = append(s.checks, healthctrl.Check{Name: "cache", Fn: s.sessions.Ping})
	}

	if cfg.Rate.Enabled {
		if redisClient != nil {
			s.limiter = rate.NewMultiRedisLimiter(redisClient, cfg.Redis.Prefix+"rl:")
		} else {
			s.limiter = rate.NewMultiMemoryLimiter()
		}
	}
	return s, nil
}

func runPGJanitor(ctx context.Context, st *pg.Store) {
	log := logger.From(ctx).With(logger.Component("store.pg"), logger.Op("janitor"))
	t := time.NewTicker(janitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := st.PurgeExpired(ctx)
			if err != nil {
				log.Warn("purge failed", logger.Err(err))
				continue
			}
			if n > 0 {
				log.Debug("expired grants purged", logger.Int("count", int(n)))
			}
		}
	}
}
