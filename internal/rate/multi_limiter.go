package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// MultiLimiter aplica límites distintos por llamada (una regla por endpoint).
type MultiLimiter interface {
	AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Rule es un límite fijo: Limit requests por Window.
type Rule struct {
	Limit  int           `yaml:"limit" validate:"gte=0"`
	Window time.Duration `yaml:"window"`
}

// Enabled es false si la regla no limita nada.
func (r Rule) Enabled() bool { return r.Limit > 0 && r.Window > 0 }

// pool mantiene un Limiter por configuración limit+window.
type pool struct {
	mu       sync.RWMutex
	limiters map[string]Limiter
	build    func(limit int, window time.Duration) Limiter
}

func (m *pool) AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	configKey := fmt.Sprintf("%d:%s", limit, window.String())

	m.mu.RLock()
	limiter, exists := m.limiters[configKey]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if limiter, exists = m.limiters[configKey]; !exists {
			limiter = m.build(limit, window)
			m.limiters[configKey] = limiter
		}
		m.mu.Unlock()
	}
	return limiter.Allow(ctx, key)
}

// NewMultiRedisLimiter comparte las ventanas entre réplicas.
func NewMultiRedisLimiter(client *rdb.Client, prefix string) MultiLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &pool{
		limiters: make(map[string]Limiter),
		build: func(limit int, window time.Duration) Limiter {
			return NewRedisLimiter(client, fmt.Sprintf("%s%d:", prefix, limit), limit, window)
		},
	}
}

// NewMultiMemoryLimiter cuenta en memoria del proceso.
func NewMultiMemoryLimiter() MultiLimiter {
	return &pool{
		limiters: make(map[string]Limiter),
		build: func(limit int, window time.Duration) Limiter {
			return NewMemoryLimiter(limit, window)
		},
	}
}
