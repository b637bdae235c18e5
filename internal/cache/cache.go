// Package cache es el key-value con vencimiento donde viven las sesiones de
// login. Toda entrada vence: no hay Put sin TTL.
//
// Drivers:
//   - memory: go-cache in-process (dev, un solo nodo)
//   - redis: compartido entre réplicas, sobre el cliente de los stores
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Client define las operaciones que necesita session.
type Client interface {
	// Put guarda value por ttl. ttl tiene que ser positivo.
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// Touch lee key y, con ttl > 0, reinicia su vencimiento a ttl en la misma
	// operación. Retorna ErrNotFound si no existe o venció.
	Touch(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Delete elimina una key (idempotente).
	Delete(ctx context.Context, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// Config para crear un cliente de cache.
type Config struct {
	Driver string // "memory" | "redis"
	Prefix string // se antepone tal cual a cada key

	// Redis es el cliente ya abierto de los stores; obligatorio con driver redis.
	Redis *rdb.Client
}

var (
	// ErrNotFound: la key no existe o expiró.
	ErrNotFound = errors.New("cache: key not found")
	// ErrNoTTL: Put sin vencimiento.
	ErrNoTTL = errors.New("cache: ttl must be positive")
)

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// New crea un cliente de cache según la configuración.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("cache: redis driver without client")
		}
		return NewRedis(cfg.Redis, cfg.Prefix), nil
	case "memory", "":
		return NewMemory(cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}
