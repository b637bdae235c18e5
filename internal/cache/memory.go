package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryCache implementa Client sobre go-cache. mu serializa Touch contra
// Delete: un logout no puede quedar pisado por una renovación en curso.
type memoryCache struct {
	prefix string
	mu     sync.Mutex
	items  *gocache.Cache
}

// NewMemory crea el driver en memoria. go-cache purga los vencidos cada minuto.
func NewMemory(prefix string) *memoryCache {
	return &memoryCache{
		prefix: prefix,
		items:  gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (c *memoryCache) Put(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrNoTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Set(c.prefix+key, value, ttl)
	return nil
}

func (c *memoryCache) Touch(_ context.Context, key string, ttl time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items.Get(c.prefix + key)
	if !ok {
		return "", ErrNotFound
	}
	s := v.(string)
	if ttl > 0 {
		c.items.Set(c.prefix+key, s, ttl)
	}
	return s, nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Delete(c.prefix + key)
	return nil
}

func (c *memoryCache) Ping(context.Context) error { return nil }

func (c *memoryCache) Close() error {
	c.items.Flush()
	return nil
}
